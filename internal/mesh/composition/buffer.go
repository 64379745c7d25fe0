package composition

import "fmt"

// DefaultBufferSize is the maximum reassembled composition blob length.
const DefaultBufferSize = 256

// Buffer accumulates composition data fragments until the stack signals the
// end of the page.
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	data []byte
	max  int
}

// NewBuffer creates a buffer that accepts at most size bytes.
// A size of zero or less means DefaultBufferSize.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{
		data: make([]byte, 0, size),
		max:  size,
	}
}

// Append adds a fragment. A fragment that would exceed the capacity is
// rejected whole and the buffer is left unchanged.
//
// Returns:
//   - error: ErrBlobOverflow if the fragment does not fit
func (b *Buffer) Append(fragment []byte) error {
	if len(b.data)+len(fragment) > b.max {
		return fmt.Errorf("%w: have %d, fragment %d, max %d",
			ErrBlobOverflow, len(b.data), len(fragment), b.max)
	}
	b.data = append(b.data, fragment...)
	return nil
}

// Bytes returns the accumulated data. The slice aliases the buffer and is
// only valid until the next Append or Reset.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of accumulated bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Cap returns the maximum number of bytes the buffer accepts.
func (b *Buffer) Cap() int {
	return b.max
}

// Reset discards the accumulated data.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}
