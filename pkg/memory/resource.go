// Package memory provides the pluggable allocation layer for stratum.
// Every buffer above this layer is allocated through a Resource, so
// allocation policy (pooling, tracking, limits) can be swapped without
// touching the data model or the codecs.
//
// Allocation is stream-ordered: a Resource may defer reuse of a freed
// buffer until the stream it was freed on has synchronized. Resources are
// not safe for concurrent use unless documented otherwise.
package memory

import (
	"sync"

	"github.com/stratumdb/stratum/pkg/errors"
)

// Resource allocates and frees byte buffers. Implementations decide the
// backing policy; callers must free every allocation on the same resource.
type Resource interface {
	// Allocate returns a zeroed buffer of exactly size bytes. The stream
	// orders the allocation relative to other work; it may be nil, which
	// means the default stream.
	Allocate(size int, stream *Stream) ([]byte, error)

	// Deallocate returns a buffer obtained from Allocate. Passing a buffer
	// from a different resource is undefined.
	Deallocate(b []byte, stream *Stream)

	// SupportsStreams reports whether the resource honors stream ordering
	// or treats every allocation as synchronous.
	SupportsStreams() bool

	// Name identifies the resource in logs and error messages.
	Name() string
}

// StandardResource allocates directly from the Go runtime and lets the
// garbage collector reclaim freed buffers.
type StandardResource struct{}

// NewStandardResource returns a Resource backed by plain make/GC.
func NewStandardResource() *StandardResource { return &StandardResource{} }

// Allocate returns a zeroed buffer of the requested size.
func (r *StandardResource) Allocate(size int, _ *Stream) ([]byte, error) {
	if size < 0 {
		return nil, errors.Newf(errors.ErrorTypeLogic, "allocation size %d is negative", size)
	}
	return make([]byte, size), nil
}

// Deallocate is a no-op; the garbage collector reclaims the buffer.
func (r *StandardResource) Deallocate(_ []byte, _ *Stream) {}

// SupportsStreams reports stream ordering support.
func (r *StandardResource) SupportsStreams() bool { return false }

// Name returns the resource name.
func (r *StandardResource) Name() string { return "standard" }

var (
	defaultMu       sync.RWMutex
	defaultResource Resource = NewStandardResource()
)

// Default returns the process-wide default resource. It is the injection
// point for calls that do not take an explicit resource.
func Default() Resource {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultResource
}

// SetDefault replaces the process-wide default resource and returns the
// previous one. Mutating the default while allocations are in flight on
// other goroutines is not safe; set it once during startup.
func SetDefault(r Resource) Resource {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultResource
	defaultResource = r
	return prev
}
