package store

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// MmapStore is a read-only memory mapping of an index file.
type MmapStore struct {
	f    *os.File
	data mmap.MMap
}

// OpenMmap maps the file at path read-only and hints random access.
func OpenMmap(path string) (*MmapStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	// the hint is advisory
	_ = adviseRandom(m)
	return &MmapStore{f: f, data: m}, nil
}

// Bytes returns the full mapped file. The slice is valid until Close.
func (s *MmapStore) Bytes() []byte {
	return s.data
}

// Close unmaps the file and closes it.
func (s *MmapStore) Close() error {
	if s.data != nil {
		if err := s.data.Unmap(); err != nil {
			return err
		}
		s.data = nil
	}
	if s.f != nil {
		err := s.f.Close()
		s.f = nil
		return err
	}
	return nil
}
