package memory

import "sync"

// Stream is an ordered work queue. Work enqueued on a stream executes
// strictly in order; Enqueue returns immediately and Synchronize blocks
// until everything enqueued so far has completed. Any host-visible read of
// data produced by enqueued work must follow a Synchronize.
type Stream struct {
	mu     sync.Mutex
	tasks  chan func()
	wg     sync.WaitGroup
	closed bool
}

// NewStream creates a stream with its own executor goroutine.
func NewStream() *Stream {
	s := &Stream{tasks: make(chan func(), 64)}
	go func() {
		for fn := range s.tasks {
			fn()
			s.wg.Done()
		}
	}()
	return s
}

// Enqueue schedules fn after all previously enqueued work. It does not wait
// for fn to run. Enqueue on a closed stream panics.
func (s *Stream) Enqueue(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		panic("memory: enqueue on closed stream")
	}
	s.wg.Add(1)
	s.mu.Unlock()
	s.tasks <- fn
}

// Synchronize blocks until all work enqueued before the call has completed.
func (s *Stream) Synchronize() {
	s.wg.Wait()
}

// Close drains the stream and stops its executor. The stream must not be
// used afterwards.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	close(s.tasks)
}

var (
	defaultStreamOnce sync.Once
	defaultStream     *Stream
)

// DefaultStream returns the shared process-wide stream used when callers
// pass a nil stream.
func DefaultStream() *Stream {
	defaultStreamOnce.Do(func() {
		defaultStream = NewStream()
	})
	return defaultStream
}

// orStream resolves a possibly-nil stream to the default stream.
func orStream(s *Stream) *Stream {
	if s == nil {
		return DefaultStream()
	}
	return s
}
