package composition

import "errors"

// Domain errors for composition decoding.
var (
	// ErrBlobOverflow is returned when a fragment would exceed the buffer
	// capacity. The receive must be abandoned.
	ErrBlobOverflow = errors.New("composition: blob overflow")

	// ErrElementOverCapacity describes an element whose declared model
	// counts exceeded the limits. Decode does not return it; the element is
	// marked Truncated instead.
	ErrElementOverCapacity = errors.New("composition: element over capacity")

	// ErrShortHeader is returned when the blob is shorter than the page header.
	ErrShortHeader = errors.New("composition: blob shorter than header")

	// ErrNoElements is returned when no complete element follows the header.
	ErrNoElements = errors.New("composition: no elements")
)
