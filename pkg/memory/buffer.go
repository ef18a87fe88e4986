package memory

import (
	"github.com/stratumdb/stratum/pkg/errors"
)

// Buffer is an owning handle to a resource allocation. Exactly one Buffer
// owns an allocation at a time; Close returns the memory to the resource.
// Non-owning access goes through Bytes, which borrows the backing slice
// without lifetime authority.
type Buffer struct {
	data     []byte
	resource Resource
	stream   *Stream
	closed   bool
}

// NewBuffer allocates size bytes from r on the given stream. A nil resource
// uses the process default; a nil stream uses the default stream.
func NewBuffer(size int, r Resource, stream *Stream) (*Buffer, error) {
	if r == nil {
		r = Default()
	}
	stream = orStream(stream)
	data, err := r.Allocate(size, stream)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeResource, "buffer allocation failed")
	}
	return &Buffer{data: data, resource: r, stream: stream}, nil
}

// NewBufferFromBytes allocates a buffer and copies src into it.
func NewBufferFromBytes(src []byte, r Resource, stream *Stream) (*Buffer, error) {
	b, err := NewBuffer(len(src), r, stream)
	if err != nil {
		return nil, err
	}
	copy(b.data, src)
	return b, nil
}

// Bytes borrows the backing slice. The slice is valid until Close or Resize.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Size returns the buffer length in bytes.
func (b *Buffer) Size() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Resize grows or shrinks the buffer, preserving the prefix that fits.
func (b *Buffer) Resize(size int) error {
	if b.closed {
		return errors.New(errors.ErrorTypeLogic, "resize of closed buffer")
	}
	if size == len(b.data) {
		return nil
	}
	data, err := b.resource.Allocate(size, b.stream)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeResource, "buffer resize failed")
	}
	copy(data, b.data)
	b.resource.Deallocate(b.data, b.stream)
	b.data = data
	return nil
}

// Stream returns the stream the buffer's lifetime is ordered on.
func (b *Buffer) Stream() *Stream { return b.stream }

// Close returns the allocation to its resource. Close is idempotent.
func (b *Buffer) Close() {
	if b == nil || b.closed {
		return
	}
	b.closed = true
	b.resource.Deallocate(b.data, b.stream)
	b.data = nil
}
