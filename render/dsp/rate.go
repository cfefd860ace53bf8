package dsp

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
)

// RateConverter resamples 16-bit PCM between sample rates using linear
// interpolation.
//
// Linear interpolation gives good quality for voice and mixed program
// material without filter tables or external dependencies. One frame of
// history is carried across blocks so interpolation is continuous at
// block boundaries.
type RateConverter struct {
	inRate   uint32
	outRate  uint32
	channels int
	step     float64 // input frames advanced per output frame
	pos      float64 // fractional read position into hist+block
	hist     []int16 // one frame of history, nil until primed
}

// NewRateConverter creates an unopened rate conversion stage.
func NewRateConverter() *RateConverter {
	return &RateConverter{}
}

// Kind identifies the stage as a rate converter.
func (r *RateConverter) Kind() graph.StageKind { return graph.KindRateConvert }

// Open binds the converter to its input format. Only 16-bit input is
// supported; the output format is the input with the target sample rate.
func (r *RateConverter) Open(in, target pcm.Format) (pcm.Format, error) {
	if in.Bits != 16 {
		return pcm.Format{}, fmt.Errorf("%w: rate conversion requires 16-bit input, got %d",
			graph.ErrNotSupported, in.Bits)
	}

	r.inRate = in.SampleRate
	r.outRate = target.SampleRate
	r.channels = int(in.Channels)
	r.step = float64(r.inRate) / float64(r.outRate)
	r.pos = 0
	r.hist = nil

	logrus.WithFields(logrus.Fields{
		"function": "RateConverter.Open",
		"in_rate":  r.inRate,
		"out_rate": r.outRate,
		"channels": r.channels,
	}).Debug("Rate converter opened")

	out := in
	out.SampleRate = target.SampleRate
	return out, nil
}

// Process resamples one block. Output length is proportional to the
// rate ratio; an empty result means the block was too small to produce
// a frame yet and has been buffered.
func (r *RateConverter) Process(in []byte) (graph.Result, error) {
	if len(in) == 0 {
		return graph.Result{}, nil
	}
	if r.inRate == r.outRate {
		return graph.Result{Out: in}, nil
	}

	samples := toInt16(in)
	ext := samples
	if r.hist != nil {
		ext = make([]int16, 0, len(r.hist)+len(samples))
		ext = append(ext, r.hist...)
		ext = append(ext, samples...)
	}

	frames := len(ext) / r.channels
	if frames < 2 {
		// Not enough to interpolate; keep for the next block.
		r.hist = append([]int16(nil), ext...)
		return graph.Result{}, nil
	}

	out := make([]int16, 0, int(float64(frames)/r.step)*r.channels+r.channels)
	pos := r.pos
	for int(pos)+1 < frames {
		i := int(pos)
		frac := pos - float64(i)
		for c := 0; c < r.channels; c++ {
			a := float64(ext[i*r.channels+c])
			b := float64(ext[(i+1)*r.channels+c])
			out = append(out, clip16(a+(b-a)*frac))
		}
		pos += r.step
	}

	// Keep the final frame as history; positions are rebased onto it.
	consumed := frames - 1
	r.pos = pos - float64(consumed)
	r.hist = append(r.hist[:0], ext[consumed*r.channels:]...)

	return graph.Result{Out: fromInt16(out)}, nil
}

// Close releases converter state.
func (r *RateConverter) Close() error {
	r.hist = nil
	return nil
}
