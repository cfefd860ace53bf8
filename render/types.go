package render

import (
	"time"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
)

// Period defaults and floor, in milliseconds. The mixer wakes once per
// period and consumes one block of output-format audio.
const (
	DefaultPeriodMS = 20
	MinPeriodMS     = 5
)

// SoloNone disables solo mode; every open stream mixes normally.
const SoloNone = -1

// MixerGain describes one stream's mixing weight ramp.
//
// The mixer interpolates the stream's weight linearly from InitialGain
// to TargetGain over TransitionMS, in the direction selected by
// Stream.SetFade. When a stream never had a gain configured, the engine
// assigns InitialGain 0, TargetGain sqrt(1/activeStreams) and a 100 ms
// transition, so streams fade in and the mix stays power-balanced.
type MixerGain struct {
	InitialGain  float32
	TargetGain   float32
	TransitionMS uint32
}

// DefaultTransitionMS is the ramp time assigned with the default gain.
const DefaultTransitionMS = 100

// Event identifies an engine lifecycle notification.
type Event int

const (
	// EventOpened fires when the first stream transitions to running,
	// before any data flows. A non-nil error returned from the callback
	// aborts the corresponding open.
	EventOpened Event = iota
	// EventClosed fires after the last stream has torn down.
	EventClosed
)

// String returns the event name for logging.
func (e Event) String() string {
	switch e {
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventFunc receives engine lifecycle events.
type EventFunc func(Event) error

// OutputSink consumes the engine's rendered PCM.
//
// WritePCM is called either synchronously from a caller goroutine
// (single-stream engines, solo mode) or from the mixer goroutine. The
// engine does not retry a failed write and queues no audio on sink
// failure; the sink is expected to buffer or drop internally.
type OutputSink interface {
	WritePCM(p []byte) error
}

// Clock supplies monotonic time for period timing and latency
// estimation. Injectable for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Config describes an Engine.
type Config struct {
	// MaxStreams is the stream capacity. Must be at least 1. With more
	// than one stream the engine mixes through a background goroutine;
	// with exactly one it processes writes synchronously.
	MaxStreams int

	// OutFormat is the output PCM format. Zero value selects
	// pcm.DefaultFormat (48 kHz, 16-bit, stereo). Multi-stream engines
	// mix in 16-bit and reject other output depths.
	OutFormat pcm.Format

	// PeriodMS is the mixer period in milliseconds. Zero selects
	// DefaultPeriodMS; values below MinPeriodMS are clamped up to it.
	PeriodMS int

	// Sink receives the rendered audio. Required.
	Sink OutputSink

	// Catalog produces processing stages for stream and post-mix
	// chains. Required.
	Catalog graph.Catalog

	// Clock overrides the time source. Nil selects SystemClock.
	Clock Clock
}
