package dsp

import (
	"fmt"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
)

// ChannelConverter changes the interleaved channel count of 8, 16, 24
// or 32-bit PCM, preserving the sample depth.
//
// Reducing channels averages every input channel into one signal which
// is then written to each output channel; growing channels replicates
// the input channels cyclically. This covers the common mono/stereo
// cases and degrades gracefully for larger layouts.
type ChannelConverter struct {
	inCh  int
	outCh int
	bits  int
}

// NewChannelConverter creates an unopened channel conversion stage.
func NewChannelConverter() *ChannelConverter {
	return &ChannelConverter{}
}

// Kind identifies the stage as a channel converter.
func (c *ChannelConverter) Kind() graph.StageKind { return graph.KindChannelConvert }

// Open binds the converter to its input format. The output format is
// the input with the target channel count.
func (c *ChannelConverter) Open(in, target pcm.Format) (pcm.Format, error) {
	if !supportedBits(int(in.Bits)) {
		return pcm.Format{}, fmt.Errorf("%w: channel conversion at %d bits",
			graph.ErrNotSupported, in.Bits)
	}
	c.inCh = int(in.Channels)
	c.outCh = int(target.Channels)
	c.bits = int(in.Bits)

	out := in
	out.Channels = target.Channels
	return out, nil
}

// Process converts one block to the output channel count.
func (c *ChannelConverter) Process(in []byte) (graph.Result, error) {
	if len(in) == 0 {
		return graph.Result{}, nil
	}
	if c.inCh == c.outCh {
		return graph.Result{Out: in}, nil
	}

	sampleBytes := c.bits / 8
	frames := len(in) / (sampleBytes * c.inCh)
	out := make([]byte, frames*c.outCh*sampleBytes)

	if c.outCh < c.inCh {
		for f := 0; f < frames; f++ {
			var sum int64
			for ch := 0; ch < c.inCh; ch++ {
				sum += int64(sampleAt(in, f*c.inCh+ch, c.bits))
			}
			mixed := int32(sum / int64(c.inCh))
			for ch := 0; ch < c.outCh; ch++ {
				storeSample(out, f*c.outCh+ch, c.bits, mixed)
			}
		}
	} else {
		for f := 0; f < frames; f++ {
			for ch := 0; ch < c.outCh; ch++ {
				storeSample(out, f*c.outCh+ch, c.bits, sampleAt(in, f*c.inCh+ch%c.inCh, c.bits))
			}
		}
	}

	return graph.Result{Out: out}, nil
}

// Close releases converter state.
func (c *ChannelConverter) Close() error { return nil }
