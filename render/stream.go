package render

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
	"github.com/opd-ai/audiomix/ringbuf"
)

// ringBlocks sizes each stream's ring buffer in mixer blocks.
const ringBlocks = 3

// writeTimeoutPeriods bounds how long a write waits on a full ring.
const writeTimeoutPeriods = 2

// Stream is one producer's connection to the engine.
//
// A stream is allocated once with the engine and opened, written to and
// closed repeatedly. On a multi-stream engine each write converts the
// block to the output format through the stream's processing chain and
// queues it for the mixer; on a single-stream engine the write is
// processed synchronously and delivered to the sink before returning.
type Stream struct {
	id  int
	eng *Engine

	state streamState

	// Configuration and chain, guarded by eng.mu across open/close.
	procs    []graph.StageKind
	inFormat pcm.Format
	chain    *graph.Chain
	ring     *ringbuf.Buffer

	// writeMu is held by every write across its use of the chain and
	// ring. Close acquires it after dropping the running flag, so a
	// write already past the flag check finishes against still-valid
	// buffers before they are released.
	writeMu sync.Mutex

	// exitAck carries the mixer's guarantee that it will no longer
	// touch this stream's buffers.
	exitAck chan struct{}

	gainMu  sync.Mutex
	gain    MixerGain
	gainSet bool
	fadeOut bool
	current float64 // current ramp gain, advanced by the mixer
}

// ID returns the stream's index in the engine.
func (s *Stream) ID() int { return s.id }

// AddProcessor requests a processing stage on this stream's chain.
// Only legal before the stream opens; encode stages are rejected on
// input streams.
func (s *Stream) AddProcessor(kind graph.StageKind) error {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()
	if s.state.snapshot().has(flagRunning) {
		return fmt.Errorf("%w: processors must be added before open", ErrInvalidState)
	}
	if kind == graph.KindEncode {
		return fmt.Errorf("%w: encode is only legal on the post-mix chain", ErrNotSupported)
	}
	s.procs = append(s.procs, kind)

	logrus.WithFields(logrus.Fields{
		"function": "Stream.AddProcessor",
		"stream":   s.id,
		"kind":     kind.String(),
	}).Info("Stream processor added")
	return nil
}

// Element returns the live stage of the given kind from this stream's
// chain for external tuning, or ErrNotFound.
func (s *Stream) Element(kind graph.StageKind) (graph.Stage, error) {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()
	if s.chain == nil {
		return nil, fmt.Errorf("%w: stream %d is not open", ErrNotFound, s.id)
	}
	if st := s.chain.Stage(kind); st != nil {
		return st, nil
	}
	return nil, fmt.Errorf("%w: %s not in stream %d chain", ErrNotFound, kind, s.id)
}

// Open starts the stream for writes in the given input format.
//
// The first open of a multi-stream engine starts the mixer goroutine
// and allocates this stream's ring buffer. Fails with ErrInvalidState
// if the stream is already running; any failure fully unwinds, leaving
// no partial chain or buffer behind.
func (s *Stream) Open(format pcm.Format) error {
	logrus.WithFields(logrus.Fields{
		"function": "Stream.Open",
		"stream":   s.id,
		"format":   format.String(),
	}).Info("Opening render stream")

	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()

	if s.eng.destroyed {
		return fmt.Errorf("%w: engine destroyed", ErrInvalidState)
	}
	if !format.Valid() {
		return fmt.Errorf("%w: input format %s", ErrInvalidArg, format)
	}
	if s.state.snapshot().has(flagRunning) {
		return fmt.Errorf("%w: stream %d already open", ErrInvalidState, s.id)
	}

	multi := s.eng.maxStreams > 1
	requested := s.procs
	if !multi {
		// A single-stream engine has no separate post-mix chain; post
		// processors run at the tail of the stream chain instead.
		requested = make([]graph.StageKind, 0, len(s.procs)+len(s.eng.postProcs))
		requested = append(requested, s.procs...)
		requested = append(requested, s.eng.postProcs...)
	}

	chain, err := graph.Build(s.eng.catalog, format, s.eng.outFormat, requested)
	if err != nil {
		return fmt.Errorf("build stream %d chain: %w", s.id, err)
	}
	if err := chain.Open(); err != nil {
		return fmt.Errorf("open stream %d chain: %w", s.id, err)
	}

	startedMixer := false
	if multi && s.eng.mixer == nil {
		if err := s.eng.startMixerLocked(); err != nil {
			chain.Close()
			return err
		}
		startedMixer = true
	}

	if s.eng.openCount == 0 {
		if err := s.eng.fireEventLocked(EventOpened); err != nil {
			chain.Close()
			if startedMixer {
				s.eng.stopMixerLocked()
			}
			logrus.WithFields(logrus.Fields{
				"function": "Stream.Open",
				"stream":   s.id,
				"error":    err.Error(),
			}).Error("Open aborted by event callback")
			return fmt.Errorf("open aborted by event callback: %w", err)
		}
	}

	if multi {
		s.ring = ringbuf.New(ringBlocks * s.eng.mixer.blockBytes)
	}
	s.inFormat = format
	s.chain = chain

	s.gainMu.Lock()
	if !s.gainSet {
		s.gain = MixerGain{TransitionMS: DefaultTransitionMS}
	}
	s.current = float64(s.gain.InitialGain)
	s.fadeOut = false
	s.gainMu.Unlock()

	// Discard any stale exit acknowledgement from a previous cycle.
	select {
	case <-s.exitAck:
	default:
	}

	s.state.reset()
	s.state.set(flagRunning)
	s.eng.openCount++
	s.eng.recomputeDefaultGainsLocked()

	logrus.WithFields(logrus.Fields{
		"function":     "Stream.Open",
		"stream":       s.id,
		"format":       format.String(),
		"open_streams": s.eng.openCount,
		"mixed":        multi,
	}).Info("Render stream opened")
	return nil
}

// Write pushes one PCM block into the stream.
//
// Single-stream engines process the block synchronously and return the
// sink's result. Multi-stream engines convert the block and queue it
// for the mixer, blocking up to two mixer periods when the ring is
// full. While another stream is soloed the write is accepted and
// discarded.
func (s *Stream) Write(p []byte) error {
	if !s.state.snapshot().has(flagRunning) {
		return fmt.Errorf("%w: stream %d is not open", ErrInvalidState, s.id)
	}
	if s.eng.failed.Load() {
		return fmt.Errorf("%w: engine is in an error state", ErrInvalidState)
	}
	if len(p) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	// Recheck under the writer lock: a close that won the race has
	// already released the chain and ring.
	if !s.state.snapshot().has(flagRunning) {
		return fmt.Errorf("%w: stream %d is not open", ErrInvalidState, s.id)
	}
	s.state.set(flagWriting)

	if solo := s.eng.solo.Load(); solo != SoloNone {
		if int(solo) != s.id {
			logrus.WithFields(logrus.Fields{
				"function": "Stream.Write",
				"stream":   s.id,
				"solo":     solo,
			}).Debug("Write discarded, another stream is soloed")
			return nil
		}
		if err := s.chain.Process(p, s.eng.forwardPost); err != nil {
			return fmt.Errorf("%w: solo write on stream %d: %v", ErrFail, s.id, err)
		}
		return nil
	}

	if s.ring == nil {
		// Single-stream engine: synchronous render in the caller's
		// goroutine straight to the sink.
		if err := s.chain.Process(p, s.eng.forwardPost); err != nil {
			return fmt.Errorf("%w: stream %d render: %v", ErrFail, s.id, err)
		}
		return nil
	}

	err := s.chain.Process(p, func(block []byte) error {
		_, werr := s.ring.Write(block, writeTimeoutPeriods*s.eng.period)
		return werr
	})
	if err != nil {
		if errors.Is(err, ringbuf.ErrTimeout) {
			return fmt.Errorf("%w: stream %d ring buffer full", ErrTimeout, s.id)
		}
		if errors.Is(err, ringbuf.ErrClosed) {
			return fmt.Errorf("%w: stream %d closed during write", ErrInvalidState, s.id)
		}
		return fmt.Errorf("%w: stream %d render: %v", ErrFail, s.id, err)
	}
	return nil
}

// SetMixerGain configures the stream's mixing weight ramp. Requires
// TargetGain >= InitialGain >= 0.
func (s *Stream) SetMixerGain(g MixerGain) error {
	if g.InitialGain < 0 || g.TargetGain < g.InitialGain {
		return fmt.Errorf("%w: gain ramp initial=%f target=%f", ErrInvalidArg,
			g.InitialGain, g.TargetGain)
	}
	s.gainMu.Lock()
	s.gain = g
	s.gainSet = true
	s.gainMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":      "Stream.SetMixerGain",
		"stream":        s.id,
		"initial_gain":  g.InitialGain,
		"target_gain":   g.TargetGain,
		"transition_ms": g.TransitionMS,
	}).Info("Stream mixer gain configured")
	return nil
}

// SetFade flips the stream's gain ramp direction without stopping
// audio: fade in ramps toward TargetGain, fade out back toward
// InitialGain. Only meaningful while the mixer runs.
func (s *Stream) SetFade(fadeIn bool) {
	s.gainMu.Lock()
	s.fadeOut = !fadeIn
	s.gainMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Stream.SetFade",
		"stream":   s.id,
		"fade_in":  fadeIn,
	}).Debug("Stream fade direction changed")
}

// Pause makes the mixer skip the stream without discarding buffered
// audio. Writes remain accepted.
func (s *Stream) Pause(paused bool) error {
	if !s.state.snapshot().has(flagRunning) {
		return fmt.Errorf("%w: stream %d is not open", ErrInvalidState, s.id)
	}
	if paused {
		s.state.set(flagPaused)
	} else {
		s.state.clear(flagPaused)
	}
	return nil
}

// Flush asks the mixer to discard the stream's buffered audio on its
// next tick.
func (s *Stream) Flush() error {
	if !s.state.snapshot().has(flagRunning) {
		return fmt.Errorf("%w: stream %d is not open", ErrInvalidState, s.id)
	}
	if s.ring != nil {
		s.state.set(flagFlushing)
	}
	return nil
}

// Latency returns the play time of audio currently buffered between
// this stream and the mixer.
func (s *Stream) Latency() time.Duration {
	s.eng.mu.Lock()
	ring := s.ring
	s.eng.mu.Unlock()
	if ring == nil {
		return 0
	}
	return s.eng.outFormat.Duration(ring.Buffered())
}

// Close stops the stream.
//
// Running and writing flags drop immediately, so concurrent writes fail
// fast. On a mixed stream Close then blocks until the mixer
// acknowledges it will no longer touch the stream's buffers before
// releasing them. Closing the last stream tears down the mixer and
// fires the closed event.
func (s *Stream) Close() error {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()
	return s.closeLocked()
}

// closeLocked implements Close with e.mu held.
func (s *Stream) closeLocked() error {
	if !s.state.snapshot().has(flagRunning) {
		return fmt.Errorf("%w: stream %d is not open", ErrInvalidState, s.id)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Stream.Close",
		"stream":   s.id,
	}).Info("Closing render stream")

	s.state.clear(flagRunning | flagWriting)

	// Wait for any write already inside the chain or ring to finish.
	// New writes fail the running check, so this drains, bounded by
	// the ring write timeout.
	s.writeMu.Lock()
	s.writeMu.Unlock()

	if s.ring != nil {
		// Handshake: wait until the mixer has seen the exit request and
		// promised to stay out of our buffers. Unbounded by design.
		select {
		case <-s.exitAck:
		default:
		}
		s.state.set(flagExiting)
		<-s.exitAck
		s.state.clear(flagExiting)

		s.ring.Close()
		s.ring = nil
	}

	if s.chain != nil {
		s.chain.Close()
		s.chain = nil
	}

	s.eng.openCount--
	s.eng.recomputeDefaultGainsLocked()

	if s.eng.openCount == 0 {
		s.eng.stopMixerLocked()
		s.eng.failed.Store(false)
		if err := s.eng.fireEventLocked(EventClosed); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Stream.Close",
				"stream":   s.id,
				"error":    err.Error(),
			}).Error("Closed event callback failed")
		}
	}

	s.state.reset()

	logrus.WithFields(logrus.Fields{
		"function":     "Stream.Close",
		"stream":       s.id,
		"open_streams": s.eng.openCount,
	}).Info("Render stream closed")
	return nil
}

// ackExit hands the closer the mixer's guarantee that this stream's
// buffers are no longer touched. Called only from the mixer goroutine.
func (s *Stream) ackExit() {
	select {
	case s.exitAck <- struct{}{}:
	default:
	}
}

// advanceGain moves the gain ramp one mixer period toward its goal and
// returns the weight to apply this tick. Called only from the mixer
// goroutine.
func (s *Stream) advanceGain(period time.Duration) float64 {
	s.gainMu.Lock()
	defer s.gainMu.Unlock()

	goal := float64(s.gain.TargetGain)
	if s.fadeOut {
		goal = float64(s.gain.InitialGain)
	}
	transition := time.Duration(s.gain.TransitionMS) * time.Millisecond
	if transition <= 0 || s.current == goal {
		s.current = goal
		return s.current
	}

	span := float64(s.gain.TargetGain) - float64(s.gain.InitialGain)
	step := span * float64(period) / float64(transition)
	if step < 0 {
		step = -step
	}
	if s.current < goal {
		s.current += step
		if s.current > goal {
			s.current = goal
		}
	} else {
		s.current -= step
		if s.current < goal {
			s.current = goal
		}
	}
	return s.current
}
