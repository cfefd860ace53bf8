package render

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// mixerLoop is the single background task that exists while a
// multi-stream engine has at least one open stream.
//
// Once per period it snapshots every stream's state, drains ring
// buffers into per-stream scratch blocks, applies gain ramps, sums the
// result and forwards it through the post-mix chain to the sink. It
// never takes the engine mutex; coordination with open/close happens
// through atomic stream state and the per-stream exit handshake.
type mixerLoop struct {
	eng        *Engine
	period     time.Duration
	blockBytes int

	scratch  [][]byte // per-stream mixer input, one block each
	zeroed   []bool   // scratch is known to be all zero
	supplied []bool   // stream delivered data this tick
	acc      []float64
	outBuf   []byte

	running atomic.Bool
	done    chan struct{}

	// fast records that the previous tick finished in under half the
	// period; the next shortfall then takes one bounded blocking read
	// instead of busy-looping on a slightly-behind producer.
	fast bool
}

func newMixerLoop(e *Engine) *mixerLoop {
	block := e.outFormat.BytesForDuration(e.period)
	m := &mixerLoop{
		eng:        e,
		period:     e.period,
		blockBytes: block,
		scratch:    make([][]byte, len(e.streams)),
		zeroed:     make([]bool, len(e.streams)),
		supplied:   make([]bool, len(e.streams)),
		acc:        make([]float64, block/2),
		outBuf:     make([]byte, block),
		done:       make(chan struct{}),
	}
	for i := range m.scratch {
		m.scratch[i] = make([]byte, block)
		m.zeroed[i] = true
	}
	return m
}

func (m *mixerLoop) start() {
	m.running.Store(true)
	go m.run()
}

// stop clears the running flag and waits for the loop's own exit
// signal so the caller can safely free shared buffers afterward.
func (m *mixerLoop) stop() {
	m.running.Store(false)
	<-m.done
}

func (m *mixerLoop) run() {
	defer close(m.done)

	logrus.WithFields(logrus.Fields{
		"function":    "mixerLoop.run",
		"period":      m.period.String(),
		"block_bytes": m.blockBytes,
	}).Info("Mixer loop running")

	for m.running.Load() {
		tickStart := m.eng.clock.Now()

		anyData := m.collect()
		soloActive := m.eng.solo.Load() != SoloNone

		if anyData && !soloActive {
			m.mix()
			if err := m.eng.forwardPost(m.outBuf); err != nil {
				m.eng.failed.Store(true)
				logrus.WithFields(logrus.Fields{
					"function": "mixerLoop.run",
					"error":    err.Error(),
				}).Error("Post-mix forward failed, engine marked faulted")
			}
		}

		elapsed := m.eng.clock.Now().Sub(tickStart)
		m.fast = elapsed < m.period/2
		if sleep := m.period - elapsed; sleep > 0 {
			time.Sleep(sleep)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "mixerLoop.run",
	}).Info("Mixer loop exited")
}

// collect snapshots every stream once and fills its scratch block,
// returning whether any stream delivered data this tick.
func (m *mixerLoop) collect() bool {
	anyData := false
	for i, s := range m.eng.streams {
		m.supplied[i] = false
		st := s.state.snapshot()

		switch {
		case st.has(flagExiting):
			s.ackExit()
			m.zero(i)

		case st.has(flagFlushing):
			if r := s.ring; r != nil {
				r.Reset()
			}
			s.state.clear(flagFlushing)
			m.zero(i)

		case !st.has(flagRunning) || !st.has(flagWriting) || st.has(flagPaused) || s.ring == nil:
			m.zero(i)

		default:
			n := s.ring.TryRead(m.scratch[i])
			if n < m.blockBytes && m.fast {
				// Fast-consumer fallback: we finished the last tick
				// early, so the producer may be marginally behind.
				extra, _ := s.ring.ReadExact(m.scratch[i][n:], m.period)
				n += extra
			}
			if n == 0 {
				m.zero(i)
				continue
			}
			if n < m.blockBytes {
				clearBytes(m.scratch[i][n:])
			}
			m.zeroed[i] = false
			m.supplied[i] = true
			anyData = true
		}
	}
	return anyData
}

// zero clears stream i's scratch block unless it is already clear.
func (m *mixerLoop) zero(i int) {
	if m.zeroed[i] {
		return
	}
	clearBytes(m.scratch[i])
	m.zeroed[i] = true
}

// mix applies each supplying stream's gain ramp and sums the scratch
// blocks into the output block.
//
// The per-stream weight is the ramp gain applied symmetrically (once on
// the sample, once on its mix contribution), so the default target of
// sqrt(1/n) yields an effective 1/n and two settled streams mix to
// (a+b)/2.
func (m *mixerLoop) mix() {
	for j := range m.acc {
		m.acc[j] = 0
	}

	for i, s := range m.eng.streams {
		if !m.supplied[i] {
			continue
		}
		g := s.advanceGain(m.period)
		w := g * g
		if w == 0 {
			continue
		}
		buf := m.scratch[i]
		for j := 0; j+1 < len(buf); j += 2 {
			sample := float64(int16(uint16(buf[j]) | uint16(buf[j+1])<<8))
			m.acc[j/2] += sample * w
		}
	}

	for j, v := range m.acc {
		var s int16
		switch {
		case v > 32767.0:
			s = 32767
		case v < -32768.0:
			s = -32768
		default:
			s = int16(v)
		}
		m.outBuf[j*2] = byte(s)
		m.outBuf[j*2+1] = byte(s >> 8)
	}
}

func clearBytes(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
