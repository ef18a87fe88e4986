package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerElapsed(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	d := timer.Stop()
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)

	// A second stop keeps counting from the original start.
	assert.GreaterOrEqual(t, timer.Stop(), d)
}

func TestThroughputTracker(t *testing.T) {
	tr := NewThroughputTracker()
	tr.Increment(100)
	time.Sleep(2 * time.Millisecond)

	rate := tr.GetAndReset()
	assert.Greater(t, rate, 0.0)

	// The window restarted, so an immediate query sees no rows.
	time.Sleep(time.Millisecond)
	assert.Equal(t, 0.0, tr.GetAndReset())
}

type fakeResource struct {
	name  string
	bytes int64
}

func (f *fakeResource) Name() string            { return f.name }
func (f *fakeResource) OutstandingBytes() int64 { return f.bytes }

func TestObserveResource(t *testing.T) {
	ObserveResource(&fakeResource{name: "test-pool", bytes: 4096})

	g, err := PoolMemoryInUse.GetMetricWithLabelValues("test-pool")
	require.NoError(t, err)
	assert.Equal(t, 4096.0, testutil.ToFloat64(g))
}

func TestCountersRegistered(t *testing.T) {
	BytesRead.WithLabelValues("test").Add(10)
	BytesRead.WithLabelValues("test").Add(5)

	c, err := BytesRead.GetMetricWithLabelValues("test")
	require.NoError(t, err)
	assert.Equal(t, 15.0, testutil.ToFloat64(c))
}
