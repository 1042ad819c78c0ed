package resolver

import "fmt"

// ReferenceError aborts strict-mode resolution. It names the reference and the
// document that holds it, and wraps the cause.
type ReferenceError struct {
	File string
	Ref  string
	Err  error
}

func (e *ReferenceError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("resolver: resolve %q: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("resolver: resolve %q in %s: %v", e.Ref, e.File, e.Err)
}

func (e *ReferenceError) Unwrap() error { return e.Err }

// UnsupportedFragmentError reports a reference that asks for a sub-node of its
// target while fragments are rejected.
type UnsupportedFragmentError struct {
	Ref      string
	Fragment string
}

func (e *UnsupportedFragmentError) Error() string {
	return fmt.Sprintf("resolver: fragment %q in %q is not supported", e.Fragment, e.Ref)
}
