package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// BundledSuffix is appended to the input name to derive a default output path.
const BundledSuffix = "-bundled"

// State describes a bundled output on disk relative to freshly bundled content.
type State string

const (
	StateMissing State = "missing"
	StateStale   State = "stale"
	StateFresh   State = "fresh"
	StateError   State = "error"
)

// CheckResult reports the state of one output file.
type CheckResult struct {
	Path  string
	State State
	// Diff is a line diff from the file on disk to the expected content, set
	// for stale outputs.
	Diff string
	Err  error
}

// Store reads and writes bundled outputs.
type Store struct {
	fs afero.Fs
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithFs overrides the filesystem outputs are written to.
func WithFs(fsys afero.Fs) StoreOption {
	return func(s *Store) {
		if fsys != nil {
			s.fs = fsys
		}
	}
}

// NewStore builds a store writing to the OS filesystem unless overridden.
func NewStore(opts ...StoreOption) *Store {
	store := &Store{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// DefaultPath derives "<dir>/<stem>-bundled<ext>" from an input path.
func DefaultPath(input string) string {
	ext := filepath.Ext(input)
	stem := strings.TrimSuffix(filepath.Base(input), ext)
	return filepath.Join(filepath.Dir(input), stem+BundledSuffix+ext)
}

// IsBundled reports whether path looks like a default bundled output.
func IsBundled(path string) bool {
	ext := filepath.Ext(path)
	return strings.HasSuffix(strings.TrimSuffix(filepath.Base(path), ext), BundledSuffix)
}

// Check compares the file at path with want.
func (s *Store) Check(path string, want []byte) (CheckResult, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Path: path, State: StateMissing}, nil
		}
		return CheckResult{Path: path, State: StateError, Err: err}, err
	}
	if info.IsDir() {
		err := fmt.Errorf("artifact: %s is a directory", path)
		return CheckResult{Path: path, State: StateError, Err: err}, err
	}
	got, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return CheckResult{Path: path, State: StateError, Err: err}, err
	}
	if bytes.Equal(got, want) {
		return CheckResult{Path: path, State: StateFresh}, nil
	}
	return CheckResult{Path: path, State: StateStale, Diff: Diff(string(got), string(want))}, nil
}

// Write replaces the file at path with data. The content is staged in a
// temporary file in the same directory and renamed into place.
func (s *Store) Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: ensure dir %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("artifact: stage %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("artifact: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("artifact: write %s: %w", path, err)
	}
	if err := s.fs.Chmod(tmpName, 0o644); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("artifact: chmod %s: %w", path, err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("artifact: replace %s: %w", path, err)
	}
	return nil
}
