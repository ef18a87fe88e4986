// Package iocore provides the byte-source and byte-sink abstractions the
// format readers and writers are built on. Sources and sinks are owned by
// reader/writer pipelines, never by columns.
package iocore

import (
	"os"

	"github.com/stratumdb/stratum/pkg/errors"
)

// Datasource is a random-access byte source.
type Datasource interface {
	// ReadAt returns size bytes starting at offset. Short reads are errors.
	ReadAt(offset int64, size int) ([]byte, error)
	// Size returns the total number of bytes available.
	Size() int64
	// Close releases the source.
	Close() error
}

// FileSource is a file-backed datasource.
type FileSource struct {
	f    *os.File
	size int64
}

// OpenFile opens a file-backed datasource.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "opening datasource")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "stat datasource")
	}
	return &FileSource{f: f, size: info.Size()}, nil
}

// ReadAt reads size bytes at offset from the file.
func (s *FileSource) ReadAt(offset int64, size int) ([]byte, error) {
	if offset < 0 || offset+int64(size) > s.size {
		return nil, errors.Newf(errors.ErrorTypeIO,
			"read [%d, %d+%d) out of range for source of %d bytes", offset, offset, size, s.size)
	}
	buf := make([]byte, size)
	if _, err := s.f.ReadAt(buf, offset); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "reading datasource")
	}
	return buf, nil
}

// Size returns the file size.
func (s *FileSource) Size() int64 { return s.size }

// Close closes the file.
func (s *FileSource) Close() error { return s.f.Close() }

// BufferSource is a memory-backed datasource.
type BufferSource struct {
	data []byte
}

// NewBufferSource wraps a byte slice as a datasource. The slice is borrowed,
// not copied.
func NewBufferSource(data []byte) *BufferSource {
	return &BufferSource{data: data}
}

// ReadAt returns a sub-slice of the backing buffer.
func (s *BufferSource) ReadAt(offset int64, size int) ([]byte, error) {
	if offset < 0 || offset+int64(size) > int64(len(s.data)) {
		return nil, errors.Newf(errors.ErrorTypeIO,
			"read [%d, %d+%d) out of range for source of %d bytes", offset, offset, size, len(s.data))
	}
	return s.data[offset : offset+int64(size)], nil
}

// Size returns the buffer length.
func (s *BufferSource) Size() int64 { return int64(len(s.data)) }

// Close is a no-op for buffer sources.
func (s *BufferSource) Close() error { return nil }
