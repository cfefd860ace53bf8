package source

import (
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
)

// MP3Source decodes an MPEG-1 Layer III stream. go-mp3 always emits
// 16-bit little-endian stereo, so no sample conversion is needed.
type MP3Source struct {
	dec    *mp3.Decoder
	format pcm.Format
}

// NewMP3 opens an MP3 decoder over r.
func NewMP3(r io.Reader) (*MP3Source, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAsset, err)
	}

	s := &MP3Source{
		dec: dec,
		format: pcm.Format{
			SampleRate: uint32(dec.SampleRate()),
			Bits:       16,
			Channels:   2,
		},
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewMP3",
		"format":   s.format.String(),
	}).Info("MP3 source opened")
	return s, nil
}

// Format reports the decoded PCM format.
func (s *MP3Source) Format() pcm.Format { return s.format }

// Read implements Source.
func (s *MP3Source) Read(p []byte) (int, error) { return s.dec.Read(p) }
