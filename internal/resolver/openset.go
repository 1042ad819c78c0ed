package resolver

// OpenSet is the chain of documents being expanded on the current descent. It
// is immutable: With returns a new set sharing the receiver's tail, so sibling
// branches (including concurrent ones) never see each other's entries.
type OpenSet struct {
	head *openEntry
	size int
}

type openEntry struct {
	path   string
	parent *openEntry
}

// NewOpenSet returns a set holding paths in order.
func NewOpenSet(paths ...string) OpenSet {
	var set OpenSet
	for _, p := range paths {
		set = set.With(p)
	}
	return set
}

// With returns a set extended with path.
func (s OpenSet) With(path string) OpenSet {
	return OpenSet{head: &openEntry{path: path, parent: s.head}, size: s.size + 1}
}

// Contains reports whether path is open on this descent.
func (s OpenSet) Contains(path string) bool {
	for e := s.head; e != nil; e = e.parent {
		if e.path == path {
			return true
		}
	}
	return false
}

// Len returns the number of open documents.
func (s OpenSet) Len() int { return s.size }

// Chain lists the open documents, outermost first.
func (s OpenSet) Chain() []string {
	out := make([]string, s.size)
	i := s.size - 1
	for e := s.head; e != nil; e = e.parent {
		out[i] = e.path
		i--
	}
	return out
}

// Current returns the innermost open document, or "" for an empty set.
func (s OpenSet) Current() string {
	if s.head == nil {
		return ""
	}
	return s.head.path
}
