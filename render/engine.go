package render

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
)

// Engine is the render façade: it owns the stream table, validates
// configuration, creates and destroys the mixer goroutine lazily, and
// dispatches lifecycle events.
//
// All configuration mutation and stream open/close is serialized by one
// engine mutex; the mixer goroutine never takes it, operating only on
// per-stream atomic state, ring buffers and its own scratch memory.
type Engine struct {
	mu sync.Mutex

	sink       OutputSink
	catalog    graph.Catalog
	clock      Clock
	outFormat  pcm.Format
	period     time.Duration
	maxStreams int

	streams   []*Stream
	postProcs []graph.StageKind

	// postMu serializes the post-mix chain and sink between the mixer
	// tick and solo-mode writers.
	postMu    sync.Mutex
	postChain *graph.Chain

	eventFn   EventFunc
	solo      atomic.Int32
	mixer     *mixerLoop
	openCount int
	failed    atomic.Bool
	destroyed bool
}

// NewEngine creates an engine from cfg.
//
// The sink and catalog are required; the output format defaults to
// 48 kHz/16-bit/stereo and the period to 20 ms (floor 5 ms). Streams
// are allocated once here and reused across open/close cycles.
func NewEngine(cfg Config) (*Engine, error) {
	logrus.WithFields(logrus.Fields{
		"function":    "NewEngine",
		"max_streams": cfg.MaxStreams,
		"out_format":  cfg.OutFormat.String(),
		"period_ms":   cfg.PeriodMS,
	}).Info("Creating render engine")

	if cfg.Sink == nil {
		return nil, fmt.Errorf("%w: nil output sink", ErrInvalidArg)
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("%w: nil stage catalog", ErrInvalidArg)
	}
	if cfg.MaxStreams < 1 {
		return nil, fmt.Errorf("%w: max streams %d", ErrInvalidArg, cfg.MaxStreams)
	}

	out := cfg.OutFormat
	if out == (pcm.Format{}) {
		out = pcm.DefaultFormat
	}
	if !out.Valid() {
		return nil, fmt.Errorf("%w: output format %s", ErrInvalidArg, out)
	}
	if cfg.MaxStreams > 1 && out.Bits != 16 {
		return nil, fmt.Errorf("%w: mixing requires a 16-bit output format, got %d bits",
			ErrNotSupported, out.Bits)
	}

	periodMS := cfg.PeriodMS
	if periodMS == 0 {
		periodMS = DefaultPeriodMS
	}
	if periodMS < MinPeriodMS {
		logrus.WithFields(logrus.Fields{
			"function":  "NewEngine",
			"period_ms": periodMS,
			"floor_ms":  MinPeriodMS,
		}).Warn("Process period below floor, clamping")
		periodMS = MinPeriodMS
	}

	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	e := &Engine{
		sink:       cfg.Sink,
		catalog:    cfg.Catalog,
		clock:      clock,
		outFormat:  out,
		period:     time.Duration(periodMS) * time.Millisecond,
		maxStreams: cfg.MaxStreams,
		streams:    make([]*Stream, cfg.MaxStreams),
	}
	e.solo.Store(SoloNone)
	for i := range e.streams {
		e.streams[i] = &Stream{
			id:      i,
			eng:     e,
			exitAck: make(chan struct{}, 1),
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewEngine",
		"max_streams": e.maxStreams,
		"out_format":  e.outFormat.String(),
		"period":      e.period.String(),
	}).Info("Render engine created")

	return e, nil
}

// OutFormat returns the engine output format.
func (e *Engine) OutFormat() pcm.Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outFormat
}

// Period returns the mixer process period.
func (e *Engine) Period() time.Duration {
	return e.period
}

// SetOutputFormat reconfigures the output format. Only legal while no
// stream is open.
func (e *Engine) SetOutputFormat(f pcm.Format) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return fmt.Errorf("%w: engine destroyed", ErrInvalidState)
	}
	if e.openCount > 0 {
		return fmt.Errorf("%w: cannot change output format with %d open streams",
			ErrInvalidState, e.openCount)
	}
	if !f.Valid() {
		return fmt.Errorf("%w: output format %s", ErrInvalidArg, f)
	}
	if e.maxStreams > 1 && f.Bits != 16 {
		return fmt.Errorf("%w: mixing requires a 16-bit output format, got %d bits",
			ErrNotSupported, f.Bits)
	}
	e.outFormat = f
	return nil
}

// SetEventFunc installs the lifecycle event callback. The callback is
// invoked with engine internals locked and must not call back into the
// engine.
func (e *Engine) SetEventFunc(fn EventFunc) {
	e.mu.Lock()
	e.eventFn = fn
	e.mu.Unlock()
}

// AddPostProcessor requests a processing stage on the post-mix chain.
// Only legal before the first stream opens.
func (e *Engine) AddPostProcessor(kind graph.StageKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return fmt.Errorf("%w: engine destroyed", ErrInvalidState)
	}
	if e.openCount > 0 {
		return fmt.Errorf("%w: post processors must be added before streams open", ErrInvalidState)
	}
	e.postProcs = append(e.postProcs, kind)

	logrus.WithFields(logrus.Fields{
		"function": "Engine.AddPostProcessor",
		"kind":     kind.String(),
	}).Info("Post-mix processor added")
	return nil
}

// PostElement returns the live post-mix stage of the given kind for
// external tuning, or ErrNotFound. On a single-stream engine the post
// processors run at the tail of the stream chain, so the lookup goes
// there.
func (e *Engine) PostElement(kind graph.StageKind) (graph.Stage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.maxStreams == 1 {
		if c := e.streams[0].chain; c != nil {
			if s := c.Stage(kind); s != nil {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%w: %s not in post-mix chain", ErrNotFound, kind)
	}

	e.postMu.Lock()
	defer e.postMu.Unlock()
	if e.postChain == nil {
		return nil, fmt.Errorf("%w: post-mix chain not active", ErrNotFound)
	}
	if s := e.postChain.Stage(kind); s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s not in post-mix chain", ErrNotFound, kind)
}

// SetSolo routes exactly one stream around the mixer straight to the
// post-mix chain and sink; all other streams' writes are accepted but
// discarded. Pass SoloNone to restore normal mixing. Solo mode only
// applies to multi-stream engines.
func (e *Engine) SetSolo(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return fmt.Errorf("%w: engine destroyed", ErrInvalidState)
	}
	if e.maxStreams == 1 {
		return fmt.Errorf("%w: solo requires a multi-stream engine", ErrNotSupported)
	}
	if id != SoloNone && (id < 0 || id >= e.maxStreams) {
		return fmt.Errorf("%w: stream id %d", ErrInvalidArg, id)
	}
	e.solo.Store(int32(id))

	logrus.WithFields(logrus.Fields{
		"function": "Engine.SetSolo",
		"stream":   id,
	}).Info("Solo mode changed")
	return nil
}

// Stream returns the stream handle for id.
func (e *Engine) Stream(id int) (*Stream, error) {
	if id < 0 || id >= e.maxStreams {
		return nil, fmt.Errorf("%w: stream id %d", ErrInvalidArg, id)
	}
	return e.streams[id], nil
}

// Destroy closes every still-open stream, waits for the mixer to exit,
// and releases all resources. No call is legal on the engine afterward.
func (e *Engine) Destroy() error {
	logrus.WithFields(logrus.Fields{
		"function": "Engine.Destroy",
	}).Info("Destroying render engine")

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return fmt.Errorf("%w: engine already destroyed", ErrInvalidState)
	}
	for _, s := range e.streams {
		if s.state.snapshot().has(flagRunning) {
			if err := s.closeLocked(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Engine.Destroy",
					"stream":   s.id,
					"error":    err.Error(),
				}).Error("Stream close failed during destroy")
			}
		}
	}
	e.destroyed = true

	logrus.WithFields(logrus.Fields{
		"function": "Engine.Destroy",
	}).Info("Render engine destroyed")
	return nil
}

// startMixerLocked creates the mixer loop and the post-mix chain.
// Caller holds e.mu.
func (e *Engine) startMixerLocked() error {
	post, err := graph.Build(e.catalog, e.outFormat, e.outFormat, e.postProcs)
	if err != nil {
		return fmt.Errorf("build post-mix chain: %w", err)
	}
	if err := post.Open(); err != nil {
		return fmt.Errorf("open post-mix chain: %w", err)
	}

	m := newMixerLoop(e)
	e.postMu.Lock()
	e.postChain = post
	e.postMu.Unlock()
	e.mixer = m
	m.start()

	logrus.WithFields(logrus.Fields{
		"function":    "Engine.startMixerLocked",
		"period":      e.period.String(),
		"block_bytes": m.blockBytes,
	}).Info("Mixer engine started")
	return nil
}

// stopMixerLocked stops the mixer loop, waits for its exit signal and
// releases the post-mix chain. Caller holds e.mu.
func (e *Engine) stopMixerLocked() {
	if e.mixer == nil {
		return
	}
	e.mixer.stop()
	e.mixer = nil

	e.postMu.Lock()
	if e.postChain != nil {
		e.postChain.Close()
		e.postChain = nil
	}
	e.postMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Engine.stopMixerLocked",
	}).Info("Mixer engine stopped")
}

// recomputeDefaultGainsLocked reassigns the default target gain
// sqrt(1/activeStreams) to every running stream that never had an
// explicit gain configured. Caller holds e.mu.
func (e *Engine) recomputeDefaultGainsLocked() {
	if e.openCount == 0 {
		return
	}
	target := float32(math.Sqrt(1.0 / float64(e.openCount)))
	for _, s := range e.streams {
		if !s.state.snapshot().has(flagRunning) {
			continue
		}
		s.gainMu.Lock()
		if !s.gainSet {
			s.gain.TargetGain = target
		}
		s.gainMu.Unlock()
	}
}

// fireEventLocked invokes the event callback if one is installed.
// Caller holds e.mu.
func (e *Engine) fireEventLocked(ev Event) error {
	if e.eventFn == nil {
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"function": "Engine.fireEventLocked",
		"event":    ev.String(),
	}).Debug("Dispatching engine event")
	return e.eventFn(ev)
}

// forwardPost pushes one rendered block through the post-mix chain (or
// directly to the sink when none is active) under the post mutex.
func (e *Engine) forwardPost(block []byte) error {
	e.postMu.Lock()
	defer e.postMu.Unlock()
	if e.postChain != nil {
		return e.postChain.Process(block, e.sink.WritePCM)
	}
	return e.sink.WritePCM(block)
}
