package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
)

// WAVSink encodes rendered 16-bit PCM blocks into a RIFF/WAVE file.
// Close must be called to finalize the headers.
type WAVSink struct {
	mu     sync.Mutex
	enc    *wav.Encoder
	format pcm.Format
	buf    *audio.IntBuffer
	closed bool
}

// NewWAV creates a WAV encoder over ws in the given format.
//
// Parameters:
//   - ws: destination, seekable so the encoder can patch chunk sizes
//     on close
//   - format: PCM format of the blocks to come, 16-bit only
//
// Returns:
//   - *WAVSink: sink ready for WritePCM calls
//   - error: when the format cannot be represented
func NewWAV(ws io.WriteSeeker, format pcm.Format) (*WAVSink, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("invalid wav format %s", format)
	}
	if format.Bits != 16 {
		return nil, fmt.Errorf("wav sink requires 16-bit PCM, got %d bits", format.Bits)
	}

	enc := wav.NewEncoder(ws, int(format.SampleRate), int(format.Bits), int(format.Channels), 1)
	s := &WAVSink{
		enc:    enc,
		format: format,
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: int(format.Channels),
				SampleRate:  int(format.SampleRate),
			},
			SourceBitDepth: 16,
		},
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewWAV",
		"format":   format.String(),
	}).Info("WAV sink opened")
	return s, nil
}

// Format reports the format the sink encodes.
func (s *WAVSink) Format() pcm.Format { return s.format }

// WritePCM encodes one rendered block.
func (s *WAVSink) WritePCM(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("wav sink is closed")
	}

	n := len(p) / 2
	if cap(s.buf.Data) < n {
		s.buf.Data = make([]int, n)
	}
	s.buf.Data = s.buf.Data[:n]
	for i := 0; i < n; i++ {
		s.buf.Data[i] = int(int16(p[i*2]) | int16(p[i*2+1])<<8)
	}

	if err := s.enc.Write(s.buf); err != nil {
		return fmt.Errorf("wav encode: %w", err)
	}
	return nil
}

// Close finalizes the RIFF headers. The sink rejects writes afterward.
func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.enc.Close(); err != nil {
		return fmt.Errorf("wav finalize: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "WAVSink.Close",
		"format":   s.format.String(),
	}).Info("WAV sink closed")
	return nil
}
