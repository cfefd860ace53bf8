package dsp

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
)

// ALC applies automatic level control to 16-bit PCM.
//
// A smoothed peak follower drives the gain toward the level that would
// bring the program peak to the target, with separate attack and
// release rates so speech does not pump. Gain is bounded to keep a
// quiet or silent stream from being amplified into the noise floor.
type ALC struct {
	mu sync.Mutex

	targetLevel float64 // target peak as a fraction of full scale
	currentGain float64
	peakLevel   float64
	attackRate  float64 // gain increase per sample
	releaseRate float64 // gain decrease per sample
	minGain     float64
	maxGain     float64
}

// NewALC creates a level control stage with defaults tuned for mixed
// program material: 30% target peak, gain bounded to [0.1, 4.0].
func NewALC() *ALC {
	return &ALC{
		targetLevel: 0.3,
		currentGain: 1.0,
		attackRate:  0.001,
		releaseRate: 0.0001,
		minGain:     0.1,
		maxGain:     4.0,
	}
}

// Kind identifies the stage as automatic level control.
func (a *ALC) Kind() graph.StageKind { return graph.KindALC }

// Open validates the input format. ALC does not change the format.
func (a *ALC) Open(in, _ pcm.Format) (pcm.Format, error) {
	if in.Bits != 16 {
		return pcm.Format{}, fmt.Errorf("%w: level control requires 16-bit input, got %d",
			graph.ErrNotSupported, in.Bits)
	}
	return in, nil
}

// TargetLevel returns the configured target peak level.
func (a *ALC) TargetLevel() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.targetLevel
}

// SetTargetLevel adjusts the target peak level (0.0 to 1.0]. This is
// the tuning hook exposed through the engine's element lookup.
func (a *ALC) SetTargetLevel(level float64) error {
	if level <= 0.0 || level > 1.0 {
		return fmt.Errorf("target level out of range (0, 1]: %f", level)
	}
	a.mu.Lock()
	a.targetLevel = level
	a.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "ALC.SetTargetLevel",
		"target_level": level,
	}).Info("Level control target updated")
	return nil
}

// Process applies level control to one block in place.
func (a *ALC) Process(in []byte) (graph.Result, error) {
	if len(in) == 0 {
		return graph.Result{}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	samples := toInt16(in)

	// Smoothed peak follower.
	var peak float64
	for _, s := range samples {
		v := math.Abs(float64(s)) / 32768.0
		if v > peak {
			peak = v
		}
	}
	a.peakLevel = a.peakLevel*0.9 + peak*0.1

	desired := a.currentGain
	if a.peakLevel > 0.001 {
		desired = a.targetLevel / a.peakLevel
	}
	if desired < a.minGain {
		desired = a.minGain
	}
	if desired > a.maxGain {
		desired = a.maxGain
	}

	rate := a.releaseRate
	if desired > a.currentGain {
		rate = a.attackRate
	}
	step := rate * float64(len(samples))
	if math.Abs(desired-a.currentGain) <= step {
		a.currentGain = desired
	} else if desired > a.currentGain {
		a.currentGain += step
	} else {
		a.currentGain -= step
	}

	for i, s := range samples {
		samples[i] = clip16(float64(s) * a.currentGain)
	}

	return graph.Result{Out: fromInt16(samples)}, nil
}

// Close releases stage state.
func (a *ALC) Close() error { return nil }
