package registry

import "errors"

// Domain errors for the registry package.
//
// Registry methods return a Result; Result.Err maps it onto these so callers
// that propagate errors can use errors.Is.
var (
	// ErrFull is returned when every slot holds a live record.
	ErrFull = errors.New("registry: full")

	// ErrDuplicate is returned when a live record already has the link address.
	ErrDuplicate = errors.New("registry: device already present")

	// ErrNotFound is returned when no live record matches.
	ErrNotFound = errors.New("registry: device not found")
)
