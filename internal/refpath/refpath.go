// Package refpath turns reference strings into absolute file targets. Paths are
// always resolved against the directory of the file that holds the reference,
// never against the root document.
package refpath

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FragmentSeparator splits the file component of a reference from its fragment.
const FragmentSeparator = "#"

// Target is a resolved reference.
type Target struct {
	// Ref is the reference string as written in the document.
	Ref string
	// Path is the absolute, cleaned path of the referenced file.
	Path string
	// Fragment is the part after the separator, without the separator.
	Fragment    string
	HasFragment bool
}

// InvalidReferenceError reports a reference string that cannot name a file.
type InvalidReferenceError struct {
	Ref    string
	Reason string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("refpath: invalid reference %q: %s", e.Ref, e.Reason)
}

// IsExternal reports whether ref points at another file. Only explicit
// relative paths qualify; anchors such as "#/components/schemas/User" and
// absolute or remote locations are left to the document itself.
func IsExternal(ref string) bool {
	return strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../")
}

// Split separates the path and fragment components of ref.
func Split(ref string) (path, fragment string, hasFragment bool) {
	path, fragment, hasFragment = strings.Cut(ref, FragmentSeparator)
	return path, fragment, hasFragment
}

// Resolve computes the absolute target of ref as seen from referringDir.
func Resolve(ref, referringDir string) (Target, error) {
	if !IsExternal(ref) {
		return Target{}, &InvalidReferenceError{Ref: ref, Reason: "not a relative file reference"}
	}
	path, fragment, hasFragment := Split(ref)
	base := filepath.Base(filepath.FromSlash(path))
	if strings.HasSuffix(path, "/") || base == "." || base == ".." {
		return Target{}, &InvalidReferenceError{Ref: ref, Reason: "path component does not name a file"}
	}
	if strings.ContainsRune(path, 0) {
		return Target{}, &InvalidReferenceError{Ref: ref, Reason: "path contains a NUL byte"}
	}
	joined := filepath.Join(referringDir, filepath.FromSlash(path))
	abs, err := filepath.Abs(joined)
	if err != nil {
		return Target{}, &InvalidReferenceError{Ref: ref, Reason: err.Error()}
	}
	return Target{
		Ref:         ref,
		Path:        abs,
		Fragment:    fragment,
		HasFragment: hasFragment,
	}, nil
}
