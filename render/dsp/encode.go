package dsp

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
)

// encodeFrameDuration is the amount of audio packaged per output frame.
const encodeFrameDuration = 20 * time.Millisecond

// BlockEncoder packages mixed PCM into fixed-duration frames.
//
// The payload passes through unchanged; this stage provides the framing
// a downstream codec or packetizer expects, emitting exactly one frame
// per step and buffering the remainder. A real codec plugs in through
// the same Stage interface.
type BlockEncoder struct {
	frameBytes int
	buf        []byte
}

// NewBlockEncoder creates an unopened encode stage.
func NewBlockEncoder() *BlockEncoder {
	return &BlockEncoder{}
}

// Kind identifies the stage as an encoder.
func (e *BlockEncoder) Kind() graph.StageKind { return graph.KindEncode }

// Open derives the frame size from the input format. The declared
// output format is the input format since the payload is not
// transformed.
func (e *BlockEncoder) Open(in, _ pcm.Format) (pcm.Format, error) {
	e.frameBytes = in.BytesForDuration(encodeFrameDuration)
	if e.frameBytes == 0 {
		e.frameBytes = in.FrameBytes()
	}
	e.buf = e.buf[:0]

	logrus.WithFields(logrus.Fields{
		"function":    "BlockEncoder.Open",
		"format":      in.String(),
		"frame_bytes": e.frameBytes,
	}).Debug("Block encoder opened")

	return in, nil
}

// Process appends the block to the frame buffer and emits at most one
// full frame, reporting More while additional full frames remain
// buffered. Trailing partial frames are held for the next block.
func (e *BlockEncoder) Process(in []byte) (graph.Result, error) {
	e.buf = append(e.buf, in...)
	if len(e.buf) < e.frameBytes {
		return graph.Result{}, nil
	}

	frame := make([]byte, e.frameBytes)
	copy(frame, e.buf[:e.frameBytes])
	e.buf = e.buf[:copy(e.buf, e.buf[e.frameBytes:])]

	return graph.Result{Out: frame, More: len(e.buf) >= e.frameBytes}, nil
}

// Close discards any buffered partial frame.
func (e *BlockEncoder) Close() error {
	e.buf = nil
	return nil
}
