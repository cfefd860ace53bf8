package source

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
)

// opusOutputBytes holds one decoded frame, 40 ms at 48 kHz mono.
const opusOutputBytes = 1920 * 2

// OpusFrameDecoder turns individual Opus frames into PCM blocks. Opus
// is frame-oriented rather than stream-oriented, so it does not fit
// the pull-based Source shape; callers feed frames as they arrive,
// typically from a network jitter buffer.
type OpusFrameDecoder struct {
	dec opus.Decoder
	out []byte
}

// NewOpusFrameDecoder creates a decoder for a sequence of Opus frames.
func NewOpusFrameDecoder() *OpusFrameDecoder {
	logrus.WithFields(logrus.Fields{
		"function": "NewOpusFrameDecoder",
	}).Info("Opus frame decoder created")
	return &OpusFrameDecoder{
		dec: opus.NewDecoder(),
		out: make([]byte, opusOutputBytes),
	}
}

// DecodeFrame decodes one Opus frame.
//
// Parameters:
//   - frame: one complete encoded Opus frame
//
// Returns:
//   - []byte: decoded 16-bit little-endian PCM, valid until the next
//     call
//   - pcm.Format: the frame's format derived from the Opus bandwidth
//     and stereo flag
//   - error: any decode failure
func (d *OpusFrameDecoder) DecodeFrame(frame []byte) ([]byte, pcm.Format, error) {
	if len(frame) == 0 {
		return nil, pcm.Format{}, fmt.Errorf("%w: empty opus frame", ErrBadAsset)
	}

	bandwidth, isStereo, err := d.dec.Decode(frame, d.out)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "OpusFrameDecoder.DecodeFrame",
			"error":    err.Error(),
		}).Error("Opus decode failed")
		return nil, pcm.Format{}, fmt.Errorf("%w: opus decode: %v", ErrBadAsset, err)
	}

	format := pcm.Format{
		SampleRate: uint32(bandwidth.SampleRate()),
		Bits:       16,
		Channels:   1,
	}
	if isStereo {
		format.Channels = 2
	}

	logrus.WithFields(logrus.Fields{
		"function":    "OpusFrameDecoder.DecodeFrame",
		"frame_bytes": len(frame),
		"format":      format.String(),
	}).Debug("Opus frame decoded")
	return d.out, format, nil
}
