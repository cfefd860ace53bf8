package source

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
)

// wavChunkFrames sizes the decode buffer in frames per refill.
const wavChunkFrames = 2048

// WAVSource decodes a RIFF/WAVE asset into 16-bit PCM, rescaling
// other bit depths on the fly.
type WAVSource struct {
	dec     *wav.Decoder
	format  pcm.Format
	buf     *audio.IntBuffer
	pending []byte
	shift   int // left shift from file bit depth to 16-bit, negative for narrowing
}

// NewWAV opens a WAV decoder over r.
//
// Parameters:
//   - r: seekable reader positioned at the start of the RIFF header
//
// Returns:
//   - *WAVSource: decoder producing 16-bit PCM at the file's rate and
//     channel count
//   - error: ErrBadAsset when r is not a valid WAV file
func NewWAV(r io.ReadSeeker) (*WAVSource, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrBadAsset)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: no PCM data chunk: %v", ErrBadAsset, err)
	}

	format := pcm.Format{
		SampleRate: dec.SampleRate,
		Bits:       16,
		Channels:   uint8(dec.NumChans),
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: unusable format %s", ErrBadAsset, format)
	}

	s := &WAVSource{
		dec:    dec,
		format: format,
		shift:  16 - int(dec.BitDepth),
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: int(dec.NumChans),
				SampleRate:  int(dec.SampleRate),
			},
			Data:           make([]int, wavChunkFrames*int(dec.NumChans)),
			SourceBitDepth: int(dec.BitDepth),
		},
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewWAV",
		"format":    format.String(),
		"bit_depth": dec.BitDepth,
	}).Info("WAV source opened")
	return s, nil
}

// Format reports the decoded PCM format.
func (s *WAVSource) Format() pcm.Format { return s.format }

// Read implements Source.
func (s *WAVSource) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		if len(s.pending) == 0 {
			if err := s.refill(); err != nil {
				if total > 0 {
					return total, nil
				}
				return 0, err
			}
		}
		n := copy(p[total:], s.pending)
		s.pending = s.pending[n:]
		total += n
	}
	return total, nil
}

func (s *WAVSource) refill() error {
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		return fmt.Errorf("wav decode: %w", err)
	}
	if n == 0 {
		return io.EOF
	}

	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := s.buf.Data[i]
		if s.shift > 0 {
			v <<= s.shift
		} else if s.shift < 0 {
			v >>= -s.shift
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	s.pending = out
	return nil
}
