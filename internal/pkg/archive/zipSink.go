package archive

import (
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
)

// Sink receives named buffers in order and frames them into one archive.
type Sink interface {
	Add(name string, data []byte) error
	Len() int
	Close() error
}

type zipSink struct {
	zw      *zip.Writer
	names   map[string]struct{}
	modTime time.Time
}

// NewZipSink writes a zip stream to w. Entries are stored, not deflated:
// the payloads are already compressed images.
func NewZipSink(w io.Writer) Sink {
	return &zipSink{
		zw:      zip.NewWriter(w),
		names:   make(map[string]struct{}),
		modTime: time.Now(),
	}
}

func (s *zipSink) Add(name string, data []byte) error {
	if _, dup := s.names[name]; dup {
		return fmt.Errorf("duplicate archive entry %q", name)
	}

	w, err := s.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: s.modTime,
	})
	if err != nil {
		return fmt.Errorf("create entry %q: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write entry %q: %w", name, err)
	}

	s.names[name] = struct{}{}
	return nil
}

func (s *zipSink) Len() int {
	return len(s.names)
}

func (s *zipSink) Close() error {
	return s.zw.Close()
}
