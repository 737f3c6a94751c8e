package archive

import (
	"bytes"
	"fmt"

	"github.com/ds124wfegd/imgsqueeze/internal/pkg/storage"
)

type dirSink struct {
	store storage.FileStorage
	names map[string]struct{}
}

// NewDirSink writes every entry as a separate file in the storage directory.
func NewDirSink(store storage.FileStorage) Sink {
	return &dirSink{store: store, names: make(map[string]struct{})}
}

func (s *dirSink) Add(name string, data []byte) error {
	if _, dup := s.names[name]; dup {
		return fmt.Errorf("duplicate archive entry %q", name)
	}
	if err := s.store.Save(name, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save %q: %w", name, err)
	}
	s.names[name] = struct{}{}
	return nil
}

func (s *dirSink) Len() int {
	return len(s.names)
}

func (s *dirSink) Close() error {
	return nil
}
