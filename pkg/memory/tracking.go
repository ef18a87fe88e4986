package memory

import (
	"sync"
	"sync/atomic"
)

// TrackingResource wraps an upstream resource and records outstanding and
// peak allocation totals. It is safe for concurrent use and is intended for
// tests and for bounding peak memory of reader pipelines.
type TrackingResource struct {
	upstream Resource

	outstandingBytes atomic.Int64
	allocationCount  atomic.Int64

	mu        sync.Mutex
	peakBytes int64
	sizes     map[*byte]int
}

// NewTrackingResource creates a tracking adaptor over upstream. A nil
// upstream defaults to a StandardResource.
func NewTrackingResource(upstream Resource) *TrackingResource {
	if upstream == nil {
		upstream = NewStandardResource()
	}
	return &TrackingResource{
		upstream: upstream,
		sizes:    make(map[*byte]int),
	}
}

// Allocate forwards to the upstream and records the allocation.
func (t *TrackingResource) Allocate(size int, stream *Stream) ([]byte, error) {
	b, err := t.upstream.Allocate(size, stream)
	if err != nil {
		return nil, err
	}
	t.allocationCount.Add(1)
	out := t.outstandingBytes.Add(int64(size))
	t.mu.Lock()
	if out > t.peakBytes {
		t.peakBytes = out
	}
	if len(b) > 0 {
		t.sizes[&b[0]] = size
	}
	t.mu.Unlock()
	return b, nil
}

// Deallocate records the free and forwards to the upstream.
func (t *TrackingResource) Deallocate(b []byte, stream *Stream) {
	if len(b) > 0 {
		t.mu.Lock()
		if size, ok := t.sizes[&b[0]]; ok {
			delete(t.sizes, &b[0])
			t.outstandingBytes.Add(int64(-size))
		}
		t.mu.Unlock()
	}
	t.upstream.Deallocate(b, stream)
}

// SupportsStreams passes through the upstream's stream support.
func (t *TrackingResource) SupportsStreams() bool { return t.upstream.SupportsStreams() }

// Name returns the resource name.
func (t *TrackingResource) Name() string { return "tracking(" + t.upstream.Name() + ")" }

// OutstandingBytes returns the bytes currently allocated and not freed.
func (t *TrackingResource) OutstandingBytes() int64 { return t.outstandingBytes.Load() }

// PeakBytes returns the high-water mark of outstanding bytes.
func (t *TrackingResource) PeakBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakBytes
}

// AllocationCount returns the total number of allocations served.
func (t *TrackingResource) AllocationCount() int64 { return t.allocationCount.Load() }
