package source

import (
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
)

// beepChunkFrames sizes the streamer pull per refill.
const beepChunkFrames = 1024

// StreamerSource adapts a beep.Streamer into a PCM Source. Beep
// streamers produce stereo float64 frames, converted here to 16-bit
// little-endian stereo.
type StreamerSource struct {
	streamer beep.Streamer
	format   pcm.Format
	frames   [][2]float64
	pending  []byte
	done     bool
}

// FromStreamer wraps a beep streamer at the given sample rate.
func FromStreamer(st beep.Streamer, sampleRate uint32) *StreamerSource {
	return &StreamerSource{
		streamer: st,
		frames:   make([][2]float64, beepChunkFrames),
		format:   pcm.Format{SampleRate: sampleRate, Bits: 16, Channels: 2},
	}
}

// NewSineTone creates a pure sine tone source, useful for level checks
// and channel identification.
func NewSineTone(sampleRate uint32, freqHz int) (*StreamerSource, error) {
	st, err := generators.SineTone(beep.SampleRate(sampleRate), float64(freqHz))
	if err != nil {
		return nil, fmt.Errorf("sine tone generator: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewSineTone",
		"sample_rate": sampleRate,
		"freq_hz":     freqHz,
	}).Info("Sine tone source created")
	return FromStreamer(st, sampleRate), nil
}

// Format reports the decoded PCM format.
func (s *StreamerSource) Format() pcm.Format { return s.format }

// Read implements Source. Infinite streamers such as tone generators
// never return io.EOF; bound them with beep.Take before wrapping.
func (s *StreamerSource) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		if len(s.pending) == 0 {
			if s.done {
				if total > 0 {
					return total, nil
				}
				return 0, io.EOF
			}
			n, ok := s.streamer.Stream(s.frames)
			if !ok {
				s.done = true
			}
			if n > 0 {
				s.pending = framesToPCM(s.frames[:n])
			}
			continue
		}
		n := copy(p[total:], s.pending)
		s.pending = s.pending[n:]
		total += n
	}
	return total, nil
}

func framesToPCM(frames [][2]float64) []byte {
	out := make([]byte, len(frames)*4)
	for i, fr := range frames {
		for ch := 0; ch < 2; ch++ {
			v := int32(fr[ch] * 32767)
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			out[i*4+ch*2] = byte(v)
			out[i*4+ch*2+1] = byte(v >> 8)
		}
	}
	return out
}
