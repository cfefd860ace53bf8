package dsp

import (
	"fmt"
	"math"
	"sync"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
)

// crossoverHz splits the band for the two shelves.
const crossoverHz = 1000.0

// EQ applies two-band shelving equalization to 16-bit PCM.
//
// A one-pole lowpass at the crossover splits each channel into low and
// high bands which are scaled independently and recombined. Per-channel
// filter state carries across blocks.
type EQ struct {
	mu sync.Mutex

	lowGain  float64
	highGain float64
	alpha    float64
	state    []float64 // lowpass state per channel
	channels int
}

// NewEQ creates a flat (unity gain) equalizer stage.
func NewEQ() *EQ {
	return &EQ{lowGain: 1.0, highGain: 1.0}
}

// Kind identifies the stage as an equalizer.
func (e *EQ) Kind() graph.StageKind { return graph.KindEQ }

// Open binds the equalizer to its input format and derives the
// crossover coefficient from the sample rate.
func (e *EQ) Open(in, _ pcm.Format) (pcm.Format, error) {
	if in.Bits != 16 {
		return pcm.Format{}, fmt.Errorf("%w: equalization requires 16-bit input, got %d",
			graph.ErrNotSupported, in.Bits)
	}

	dt := 1.0 / float64(in.SampleRate)
	rc := 1.0 / (2.0 * math.Pi * crossoverHz)
	e.alpha = dt / (rc + dt)
	e.channels = int(in.Channels)
	e.state = make([]float64, e.channels)
	return in, nil
}

// SetBandGains adjusts the low and high shelf gains (0.0 to 4.0 each).
// This is the tuning hook exposed through the engine's element lookup.
func (e *EQ) SetBandGains(low, high float64) error {
	if low < 0 || low > 4.0 || high < 0 || high > 4.0 {
		return fmt.Errorf("band gain out of range [0, 4]: low=%f high=%f", low, high)
	}
	e.mu.Lock()
	e.lowGain = low
	e.highGain = high
	e.mu.Unlock()
	return nil
}

// BandGains returns the current low and high shelf gains.
func (e *EQ) BandGains() (low, high float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lowGain, e.highGain
}

// Process equalizes one block in place.
func (e *EQ) Process(in []byte) (graph.Result, error) {
	if len(in) == 0 {
		return graph.Result{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lowGain == 1.0 && e.highGain == 1.0 {
		return graph.Result{Out: in}, nil
	}

	samples := toInt16(in)
	for i, s := range samples {
		ch := i % e.channels
		x := float64(s)
		e.state[ch] += e.alpha * (x - e.state[ch])
		low := e.state[ch]
		high := x - low
		samples[i] = clip16(low*e.lowGain + high*e.highGain)
	}

	return graph.Result{Out: fromInt16(samples)}, nil
}

// Close releases filter state.
func (e *EQ) Close() error {
	e.state = nil
	return nil
}
