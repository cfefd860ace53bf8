package dsp

import (
	"fmt"
	"math"
	"sync"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
)

// Sonic adjusts playback speed of 16-bit PCM without changing the
// declared format.
//
// Speed change is done by resampling the time axis with linear
// interpolation: speed 2.0 halves the output length, speed 0.5 doubles
// it. Pitch shifts along with speed, which is acceptable for prompt and
// notification audio.
type Sonic struct {
	mu sync.Mutex

	speed    float64
	channels int
	pos      float64
	hist     []int16
}

// NewSonic creates a speed stage at normal (1.0) speed.
func NewSonic() *Sonic {
	return &Sonic{speed: 1.0}
}

// Kind identifies the stage as a speed adjuster.
func (s *Sonic) Kind() graph.StageKind { return graph.KindSonic }

// Open validates the input format. The output format is unchanged.
func (s *Sonic) Open(in, _ pcm.Format) (pcm.Format, error) {
	if in.Bits != 16 {
		return pcm.Format{}, fmt.Errorf("%w: speed adjustment requires 16-bit input, got %d",
			graph.ErrNotSupported, in.Bits)
	}
	s.channels = int(in.Channels)
	s.pos = 0
	s.hist = nil
	return in, nil
}

// Speed returns the current speed factor.
func (s *Sonic) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// SetSpeed adjusts the speed factor (0.25 to 4.0). This is the tuning
// hook exposed through the engine's element lookup.
func (s *Sonic) SetSpeed(speed float64) error {
	if speed < 0.25 || speed > 4.0 {
		return fmt.Errorf("speed out of range [0.25, 4]: %f", speed)
	}
	s.mu.Lock()
	s.speed = speed
	s.mu.Unlock()
	return nil
}

// Process time-scales one block.
func (s *Sonic) Process(in []byte) (graph.Result, error) {
	if len(in) == 0 {
		return graph.Result{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.speed == 1.0 {
		return graph.Result{Out: in}, nil
	}

	samples := toInt16(in)
	ext := samples
	if s.hist != nil {
		ext = make([]int16, 0, len(s.hist)+len(samples))
		ext = append(ext, s.hist...)
		ext = append(ext, samples...)
	}

	frames := len(ext) / s.channels
	if frames < 2 {
		s.hist = append([]int16(nil), ext...)
		return graph.Result{}, nil
	}

	estimate := int(math.Ceil(float64(frames)/s.speed)) * s.channels
	out := make([]int16, 0, estimate)
	pos := s.pos
	for int(pos)+1 < frames {
		i := int(pos)
		frac := pos - float64(i)
		for c := 0; c < s.channels; c++ {
			a := float64(ext[i*s.channels+c])
			b := float64(ext[(i+1)*s.channels+c])
			out = append(out, clip16(a+(b-a)*frac))
		}
		pos += s.speed
	}

	consumed := frames - 1
	s.pos = pos - float64(consumed)
	s.hist = append(s.hist[:0], ext[consumed*s.channels:]...)

	return graph.Result{Out: fromInt16(out)}, nil
}

// Close releases stage state.
func (s *Sonic) Close() error {
	s.hist = nil
	return nil
}
