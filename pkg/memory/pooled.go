package memory

import (
	"sync"
	"sync/atomic"
)

// Bucket sizes: 64, 128, 256, 512, 1K, 2K, 4K, 8K, 16K, 32K,
// 64K, 128K, 256K, 512K, 1M, 2M, 4M, 8M, 16M, 32M
const (
	minBucketShift = 6  // 64 bytes minimum
	maxBucketShift = 25 // 32MB maximum
	numBuckets     = maxBucketShift - minBucketShift + 1
)

// PooledResource reuses freed buffers through size-bucketed sync.Pools to
// reduce GC pressure during decode-heavy workloads. Allocations larger than
// the largest bucket fall through to the upstream resource.
//
// PooledResource is safe for concurrent use.
type PooledResource struct {
	pools    [numBuckets]*sync.Pool
	upstream Resource
	reused   atomic.Int64
	misses   atomic.Int64
}

// NewPooledResource creates a pooled resource over the given upstream.
// A nil upstream defaults to a StandardResource.
func NewPooledResource(upstream Resource) *PooledResource {
	if upstream == nil {
		upstream = NewStandardResource()
	}
	p := &PooledResource{upstream: upstream}
	for i := 0; i < numBuckets; i++ {
		size := 1 << (i + minBucketShift)
		p.pools[i] = &sync.Pool{
			New: func(s int) func() interface{} {
				return func() interface{} {
					b := make([]byte, s)
					return &b
				}
			}(size),
		}
	}
	return p
}

// bucketIndex returns the pool index for a given size, or -1 if the size
// exceeds the largest bucket.
func bucketIndex(size int) int {
	if size <= 0 {
		return 0
	}
	if size > (1 << maxBucketShift) {
		return -1
	}
	shift := minBucketShift
	for (1 << shift) < size {
		shift++
	}
	return shift - minBucketShift
}

// Allocate returns a zeroed buffer of exactly the requested size. The
// backing array may be larger due to bucketing.
func (p *PooledResource) Allocate(size int, stream *Stream) ([]byte, error) {
	idx := bucketIndex(size)
	if idx < 0 {
		p.misses.Add(1)
		return p.upstream.Allocate(size, stream)
	}
	bp := p.pools[idx].Get().(*[]byte)
	p.reused.Add(1)
	b := (*bp)[:size]
	for i := range b {
		b[i] = 0
	}
	return b, nil
}

// Deallocate returns a buffer to its bucket. Oversized buffers are handed
// back to the upstream resource.
func (p *PooledResource) Deallocate(b []byte, stream *Stream) {
	if b == nil {
		return
	}
	idx := bucketIndex(cap(b))
	if idx < 0 {
		p.upstream.Deallocate(b, stream)
		return
	}
	b = b[:cap(b)]
	p.pools[idx].Put(&b)
}

// SupportsStreams passes through the upstream's stream support.
func (p *PooledResource) SupportsStreams() bool { return p.upstream.SupportsStreams() }

// Name returns the resource name.
func (p *PooledResource) Name() string { return "pooled(" + p.upstream.Name() + ")" }

// Stats returns the number of pooled reuses and fall-through allocations.
func (p *PooledResource) Stats() (reused, misses int64) {
	return p.reused.Load(), p.misses.Load()
}
