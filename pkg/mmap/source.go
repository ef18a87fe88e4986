// Package mmap provides a memory-mapped data source for reading files
// without buffer copies.
package mmap

import (
	"os"
	"sync"

	"github.com/stratumdb/stratum/pkg/errors"
)

// Source is a read-only memory-mapped file. ReadAt returns slices of the
// mapping itself; they stay valid only until Close.
type Source struct {
	mu   sync.Mutex
	f    *os.File
	data []byte
}

// Open maps a file. Empty files cannot be mapped and are rejected.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeIO, "opening %q", path)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, errors.ErrorTypeIO, "stat %q", path)
	}
	if stat.Size() == 0 {
		f.Close()
		return nil, errors.Newf(errors.ErrorTypeIO, "cannot map empty file %q", path)
	}

	data, err := mapFile(int(f.Fd()), int(stat.Size()))
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, errors.ErrorTypeIO, "mapping %q", path)
	}
	// File decoding walks metadata back to front, then streams forward.
	// Sequential advice still wins for the stripe bodies; ignore failures.
	_ = adviseSequential(data)

	return &Source{f: f, data: data}, nil
}

// ReadAt returns the mapped bytes at [offset, offset+size).
func (s *Source) ReadAt(offset int64, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+int64(size) > int64(len(s.data)) {
		return nil, errors.Newf(errors.ErrorTypeIO,
			"read [%d, %d) outside file of %d bytes", offset, offset+int64(size), len(s.data))
	}
	return s.data[offset : offset+int64(size)], nil
}

// Size returns the mapped file's length.
func (s *Source) Size() int64 { return int64(len(s.data)) }

// Close unmaps the file. Slices returned by ReadAt become invalid.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	err := unmapFile(s.data)
	s.data = nil
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
