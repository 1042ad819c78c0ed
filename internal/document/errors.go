package document

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches any NotFoundError via errors.Is.
	ErrNotFound = errors.New("document: not found")
	// ErrParse matches any ParseError via errors.Is.
	ErrParse = errors.New("document: parse failed")
)

// NotFoundError reports a document path that does not exist or is not a file.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document: %s not found: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("document: %s not found", e.Path)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ParseError reports content that could not be parsed into a node tree.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("document: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }
