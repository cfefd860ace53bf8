package sink

import (
	"fmt"
	"io"
	"sync"
)

// WriterSink forwards rendered PCM blocks to any io.Writer, such as a
// file, pipe or network connection.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w as an output sink.
func NewWriter(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// WritePCM writes one rendered block.
func (s *WriterSink) WritePCM(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(p); err != nil {
		return fmt.Errorf("sink write: %w", err)
	}
	return nil
}
