package source

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
)

// vorbisChunkSamples sizes the float decode buffer per refill.
const vorbisChunkSamples = 4096

// VorbisSource decodes an Ogg Vorbis stream, converting the decoder's
// float samples to 16-bit PCM.
type VorbisSource struct {
	dec     *oggvorbis.Reader
	format  pcm.Format
	fbuf    []float32
	pending []byte
}

// NewVorbis opens an Ogg Vorbis decoder over r.
func NewVorbis(r io.Reader) (*VorbisSource, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAsset, err)
	}

	s := &VorbisSource{
		dec:  dec,
		fbuf: make([]float32, vorbisChunkSamples),
		format: pcm.Format{
			SampleRate: uint32(dec.SampleRate()),
			Bits:       16,
			Channels:   uint8(dec.Channels()),
		},
	}
	if !s.format.Valid() {
		return nil, fmt.Errorf("%w: unusable format %s", ErrBadAsset, s.format)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewVorbis",
		"format":   s.format.String(),
	}).Info("Vorbis source opened")
	return s, nil
}

// Format reports the decoded PCM format.
func (s *VorbisSource) Format() pcm.Format { return s.format }

// Read implements Source.
func (s *VorbisSource) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		if len(s.pending) == 0 {
			n, err := s.dec.Read(s.fbuf)
			if n > 0 {
				s.pending = floatsToPCM(s.fbuf[:n])
			} else if err != nil {
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

func floatsToPCM(in []float32) []byte {
	out := make([]byte, len(in)*2)
	for i, f := range in {
		v := int32(f * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
