package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"reorgcdc/core"
)

// FileSink appends (or truncates then writes) one JSON line per CDC
// message to a file, mirroring the reference FileSink. flushInterval is
// recorded for parity with the reference config but Go's os.File.Sync is
// synchronous, so Flush does not need a timeout.
type FileSink struct {
	mu            sync.Mutex
	file          *os.File
	flushInterval uint64
}

func NewFileSink(path string, append bool, flushInterval uint64) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create sink directory: %v", core.ErrSink, err)
		}
	}
	flags := os.O_WRONLY | os.O_CREATE
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open sink file: %v", core.ErrSink, err)
	}
	return &FileSink{file: f, flushInterval: flushInterval}, nil
}

func (s *FileSink) Send(messages []core.CdcMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("%w: serialize cdc message: %v", core.ErrSerialization, err)
		}
		if _, err := s.file.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("%w: write cdc message: %v", core.ErrSink, err)
		}
	}
	return nil
}

func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("%w: flush sink file: %v", core.ErrSink, err)
	}
	return nil
}

func (s *FileSink) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("%w: close sink file: %v", core.ErrSink, err)
	}
	return nil
}
