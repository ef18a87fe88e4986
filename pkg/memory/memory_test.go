package memory

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardResourceAllocate(t *testing.T) {
	r := NewStandardResource()

	b, err := r.Allocate(128, nil)
	require.NoError(t, err)
	assert.Len(t, b, 128)

	_, err = r.Allocate(-1, nil)
	assert.Error(t, err)
}

func TestPooledResourceReuse(t *testing.T) {
	p := NewPooledResource(nil)

	b, err := p.Allocate(100, nil)
	require.NoError(t, err)
	assert.Len(t, b, 100)
	assert.GreaterOrEqual(t, cap(b), 128, "expected power-of-two bucket")

	b[0] = 0xff
	p.Deallocate(b, nil)

	// A same-bucket allocation must come back zeroed even when recycled.
	b2, err := p.Allocate(100, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0), b2[0])

	reused, _ := p.Stats()
	assert.Greater(t, reused, int64(0))
}

func TestPooledResourceOversized(t *testing.T) {
	p := NewPooledResource(nil)

	size := (1 << maxBucketShift) + 1
	b, err := p.Allocate(size, nil)
	require.NoError(t, err)
	assert.Len(t, b, size)

	_, misses := p.Stats()
	assert.Equal(t, int64(1), misses)
	p.Deallocate(b, nil)
}

func TestTrackingResourceCounts(t *testing.T) {
	tr := NewTrackingResource(nil)

	a, err := tr.Allocate(1000, nil)
	require.NoError(t, err)
	b, err := tr.Allocate(500, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1500), tr.OutstandingBytes())
	assert.Equal(t, int64(2), tr.AllocationCount())

	tr.Deallocate(a, nil)
	assert.Equal(t, int64(500), tr.OutstandingBytes())
	assert.Equal(t, int64(1500), tr.PeakBytes())

	tr.Deallocate(b, nil)
	assert.Equal(t, int64(0), tr.OutstandingBytes())
}

func TestStreamOrdering(t *testing.T) {
	s := NewStream()
	defer s.Close()

	var counter atomic.Int64
	var order [3]int64
	for i := 0; i < 3; i++ {
		i := i
		s.Enqueue(func() {
			order[i] = counter.Add(1)
		})
	}
	s.Synchronize()

	assert.Equal(t, [3]int64{1, 2, 3}, order)
}

func TestBufferLifecycle(t *testing.T) {
	tr := NewTrackingResource(nil)

	buf, err := NewBufferFromBytes([]byte{1, 2, 3, 4}, tr, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, buf.Size())
	assert.Equal(t, []byte{1, 2, 3, 4}, buf.Bytes())

	require.NoError(t, buf.Resize(8))
	assert.Equal(t, 8, buf.Size())
	assert.Equal(t, []byte{1, 2, 3, 4}, buf.Bytes()[:4])

	buf.Close()
	buf.Close() // idempotent
	assert.Equal(t, int64(0), tr.OutstandingBytes())
}

func TestSetDefaultResource(t *testing.T) {
	tr := NewTrackingResource(nil)
	prev := SetDefault(tr)
	defer SetDefault(prev)

	assert.Equal(t, tr, Default())

	buf, err := NewBuffer(64, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(64), tr.OutstandingBytes())
	buf.Close()
}
