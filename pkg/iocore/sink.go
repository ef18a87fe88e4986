package iocore

import (
	"bufio"
	"os"

	"github.com/stratumdb/stratum/pkg/errors"
)

// DataSink is an append-only byte sink tracking its write position.
type DataSink interface {
	// Write appends data to the sink.
	Write(data []byte) error
	// BytesWritten returns the number of bytes written so far.
	BytesWritten() int64
	// Flush forces buffered bytes out.
	Flush() error
	// Close flushes and releases the sink.
	Close() error
}

// FileSink writes to a file through a buffered writer.
type FileSink struct {
	f       *os.File
	w       *bufio.Writer
	written int64
}

// CreateFile creates (truncating) a file-backed sink.
func CreateFile(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "creating data sink")
	}
	return &FileSink{f: f, w: bufio.NewWriterSize(f, 1<<20)}, nil
}

// Write appends data to the file.
func (s *FileSink) Write(data []byte) error {
	n, err := s.w.Write(data)
	s.written += int64(n)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "writing data sink")
	}
	return nil
}

// BytesWritten returns the bytes written so far.
func (s *FileSink) BytesWritten() int64 { return s.written }

// Flush flushes the buffered writer.
func (s *FileSink) Flush() error { return s.w.Flush() }

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return errors.Wrap(err, errors.ErrorTypeIO, "flushing data sink")
	}
	return s.f.Close()
}

// BufferSink accumulates written bytes in memory.
type BufferSink struct {
	data []byte
}

// NewBufferSink creates an in-memory sink.
func NewBufferSink() *BufferSink { return &BufferSink{} }

// Write appends data to the buffer.
func (s *BufferSink) Write(data []byte) error {
	s.data = append(s.data, data...)
	return nil
}

// BytesWritten returns the buffer length.
func (s *BufferSink) BytesWritten() int64 { return int64(len(s.data)) }

// Flush is a no-op for buffer sinks.
func (s *BufferSink) Flush() error { return nil }

// Close is a no-op for buffer sinks.
func (s *BufferSink) Close() error { return nil }

// Bytes returns the accumulated buffer.
func (s *BufferSink) Bytes() []byte { return s.data }

// VoidSink discards writes while counting them, for sizing passes.
type VoidSink struct {
	written int64
}

// NewVoidSink creates a discarding sink.
func NewVoidSink() *VoidSink { return &VoidSink{} }

// Write counts and discards data.
func (s *VoidSink) Write(data []byte) error {
	s.written += int64(len(data))
	return nil
}

// BytesWritten returns the number of discarded bytes.
func (s *VoidSink) BytesWritten() int64 { return s.written }

// Flush is a no-op for void sinks.
func (s *VoidSink) Flush() error { return nil }

// Close is a no-op for void sinks.
func (s *VoidSink) Close() error { return nil }
