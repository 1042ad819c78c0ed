package document

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// Store loads documents from a filesystem and caches parsed trees by absolute
// path. Every Load returns a private copy, so callers may not rely on node
// identity across loads.
type Store struct {
	fs      afero.Fs
	caching bool

	mu    sync.RWMutex
	docs  map[string]*yaml.Node
	group singleflight.Group
	reads atomic.Int64
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithFs overrides the filesystem documents are read from.
func WithFs(fsys afero.Fs) StoreOption {
	return func(s *Store) {
		if fsys != nil {
			s.fs = fsys
		}
	}
}

// WithoutCache disables the parsed-tree cache.
func WithoutCache() StoreOption {
	return func(s *Store) {
		s.caching = false
	}
}

// NewStore builds a store reading from the OS filesystem unless overridden.
func NewStore(opts ...StoreOption) *Store {
	store := &Store{
		fs:      afero.NewOsFs(),
		caching: true,
		docs:    make(map[string]*yaml.Node),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Fs exposes the filesystem backing the store.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Reads returns how many files have been read and parsed so far.
func (s *Store) Reads() int {
	return int(s.reads.Load())
}

// Load returns the parsed root node of the document at path. Missing paths and
// directories yield a *NotFoundError; unparseable content a *ParseError.
func (s *Store) Load(path string) (*yaml.Node, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &NotFoundError{Path: path, Err: errors.New("empty path")}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("document: resolve %s: %w", path, err)
	}
	if !s.caching {
		return s.read(abs)
	}
	if node, ok := s.cached(abs); ok {
		return Clone(node), nil
	}
	v, err, _ := s.group.Do(abs, func() (any, error) {
		if node, ok := s.cached(abs); ok {
			return node, nil
		}
		node, err := s.read(abs)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.docs[abs] = node
		s.mu.Unlock()
		return node, nil
	})
	if err != nil {
		return nil, err
	}
	return Clone(v.(*yaml.Node)), nil
}

func (s *Store) cached(abs string) (*yaml.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.docs[abs]
	return node, ok
}

func (s *Store) read(abs string) (*yaml.Node, error) {
	info, err := s.fs.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: abs}
		}
		return nil, fmt.Errorf("document: stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return nil, &NotFoundError{Path: abs, Err: errors.New("path is a directory")}
	}
	data, err := afero.ReadFile(s.fs, abs)
	if err != nil {
		return nil, fmt.Errorf("document: read %s: %w", abs, err)
	}
	s.reads.Add(1)
	node, err := Parse(data)
	if err != nil {
		return nil, &ParseError{Path: abs, Err: err}
	}
	return node, nil
}
