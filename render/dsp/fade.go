package dsp

import (
	"fmt"
	"sync"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
)

// Fade applies a linear fade-in or fade-out envelope to 16-bit PCM.
//
// The stage starts at unity gain doing nothing. FadeIn ramps gain from
// 0 to 1 over the given duration, FadeOut from 1 to 0; after the ramp
// completes the final gain holds until the next trigger.
type Fade struct {
	mu sync.Mutex

	sampleRate uint32
	channels   int

	active      bool
	rising      bool
	rampFrames  int
	frameCursor int
}

// NewFade creates an idle fade stage.
func NewFade() *Fade {
	return &Fade{}
}

// Kind identifies the stage as a fade envelope.
func (f *Fade) Kind() graph.StageKind { return graph.KindFade }

// Open binds the fade stage to its input format. The format is unchanged.
func (f *Fade) Open(in, _ pcm.Format) (pcm.Format, error) {
	if in.Bits != 16 {
		return pcm.Format{}, fmt.Errorf("%w: fade requires 16-bit input, got %d",
			graph.ErrNotSupported, in.Bits)
	}
	f.sampleRate = in.SampleRate
	f.channels = int(in.Channels)
	return in, nil
}

// FadeIn starts a fade from silence to unity over durationMS.
func (f *Fade) FadeIn(durationMS uint32) {
	f.trigger(durationMS, true)
}

// FadeOut starts a fade from unity to silence over durationMS.
func (f *Fade) FadeOut(durationMS uint32) {
	f.trigger(durationMS, false)
}

func (f *Fade) trigger(durationMS uint32, rising bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = true
	f.rising = rising
	f.rampFrames = int(uint64(f.sampleRate) * uint64(durationMS) / 1000)
	f.frameCursor = 0
}

// Process applies the envelope to one block in place.
func (f *Fade) Process(in []byte) (graph.Result, error) {
	if len(in) == 0 {
		return graph.Result{}, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.active {
		return graph.Result{Out: in}, nil
	}

	samples := toInt16(in)
	frames := len(samples) / f.channels
	for fr := 0; fr < frames; fr++ {
		gain := 1.0
		if f.rampFrames > 0 && f.frameCursor < f.rampFrames {
			progress := float64(f.frameCursor) / float64(f.rampFrames)
			if f.rising {
				gain = progress
			} else {
				gain = 1.0 - progress
			}
			f.frameCursor++
		} else if !f.rising {
			gain = 0.0
		}
		if gain != 1.0 {
			for c := 0; c < f.channels; c++ {
				idx := fr*f.channels + c
				samples[idx] = clip16(float64(samples[idx]) * gain)
			}
		}
	}

	return graph.Result{Out: fromInt16(samples)}, nil
}

// Close releases stage state.
func (f *Fade) Close() error { return nil }
