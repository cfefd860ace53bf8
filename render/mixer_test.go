package render

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/dsp"
)

// monoFmt keeps mixer blocks small so integration tests stay fast.
var monoFmt = pcm.Format{SampleRate: 8000, Bits: 16, Channels: 1}

// constBlock builds one block of 16-bit LE samples all set to v.
func constBlock(n int, v int16) []byte {
	p := make([]byte, n)
	for i := 0; i+1 < n; i += 2 {
		p[i] = byte(v)
		p[i+1] = byte(v >> 8)
	}
	return p
}

func countSamples(samples []int16, v int16) int {
	n := 0
	for _, s := range samples {
		if s == v {
			n++
		}
	}
	return n
}

// feed writes blocks of constant samples until done, pacing off the
// ring buffer's backpressure.
func feed(t *testing.T, s *Stream, blockBytes, blocks int, v int16) {
	t.Helper()
	block := constBlock(blockBytes, v)
	for i := 0; i < blocks; i++ {
		if err := s.Write(block); err != nil {
			t.Errorf("stream %d write %d: %v", s.ID(), i, err)
			return
		}
	}
}

func TestMixer_TwoStreamsDefaultGainAverages(t *testing.T) {
	e, sink := newTestEngine(t, Config{MaxStreams: 2, OutFormat: monoFmt, PeriodMS: 10})
	defer e.Destroy()

	s0, _ := e.Stream(0)
	s1, _ := e.Stream(1)
	require.NoError(t, s0.Open(monoFmt))
	require.NoError(t, s1.Open(monoFmt))

	blockBytes := monoFmt.BytesForDuration(e.period)
	const blocks = 60

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); feed(t, s0, blockBytes, blocks, 1000) }()
	go func() { defer wg.Done(); feed(t, s1, blockBytes, blocks, 2000) }()
	wg.Wait()

	require.NoError(t, s0.Close())
	require.NoError(t, s1.Close())

	// Default gains settle at sqrt(1/2), an effective weight of 1/2 per
	// stream, so the steady-state mix of 1000 and 2000 is 1500. The ramp
	// and tick alignment make the edges fuzzy, but the bulk must settle.
	samples := sink.samples()
	require.NotEmpty(t, samples)
	settled := countSamples(samples, 1500)
	assert.Greater(t, settled, len(samples)/4,
		"expected most mixed samples at (1000+2000)/2, got %d of %d", settled, len(samples))
}

func TestMixer_ExplicitUnityGainSums(t *testing.T) {
	e, sink := newTestEngine(t, Config{MaxStreams: 2, OutFormat: monoFmt, PeriodMS: 10})
	defer e.Destroy()

	s0, _ := e.Stream(0)
	s1, _ := e.Stream(1)
	unity := MixerGain{InitialGain: 1, TargetGain: 1}
	require.NoError(t, s0.SetMixerGain(unity))
	require.NoError(t, s1.SetMixerGain(unity))
	require.NoError(t, s0.Open(monoFmt))
	require.NoError(t, s1.Open(monoFmt))

	blockBytes := monoFmt.BytesForDuration(e.period)
	const blocks = 40

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); feed(t, s0, blockBytes, blocks, 1000) }()
	go func() { defer wg.Done(); feed(t, s1, blockBytes, blocks, 2000) }()
	wg.Wait()

	require.NoError(t, s0.Close())
	require.NoError(t, s1.Close())

	samples := sink.samples()
	require.NotEmpty(t, samples)
	summed := countSamples(samples, 3000)
	assert.Greater(t, summed, len(samples)/4,
		"expected most mixed samples at 1000+2000, got %d of %d", summed, len(samples))
}

func TestMixer_SoloBypassesMixing(t *testing.T) {
	e, sink := newTestEngine(t, Config{MaxStreams: 2, OutFormat: monoFmt, PeriodMS: 10})
	defer e.Destroy()

	s0, _ := e.Stream(0)
	s1, _ := e.Stream(1)
	require.NoError(t, s0.Open(monoFmt))
	require.NoError(t, s1.Open(monoFmt))
	require.NoError(t, e.SetSolo(0))

	blockBytes := monoFmt.BytesForDuration(e.period)
	const blocks = 5
	feed(t, s0, blockBytes, blocks, 777)
	feed(t, s1, blockBytes, blocks, 999)

	// Soloed writes render synchronously without gain; the other
	// stream's writes are discarded.
	require.Equal(t, blocks*blockBytes, sink.size())
	for i, s := range sink.samples() {
		require.Equalf(t, int16(777), s, "sample %d", i)
	}
	soloSamples := sink.size() / 2

	// Clearing solo restores normal mixing: both streams feed the
	// mixer again and the default weights settle at 1/2 each.
	require.NoError(t, e.SetSolo(SoloNone))
	const mixedBlocks = 60
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); feed(t, s0, blockBytes, mixedBlocks, 777) }()
	go func() { defer wg.Done(); feed(t, s1, blockBytes, mixedBlocks, 999) }()
	wg.Wait()

	require.NoError(t, s0.Close())
	require.NoError(t, s1.Close())

	mixed := sink.samples()[soloSamples:]
	require.NotEmpty(t, mixed)
	settled := countSamples(mixed, 888)
	assert.Greater(t, settled, len(mixed)/4,
		"expected most post-solo samples at (777+999)/2, got %d of %d", settled, len(mixed))
}

func TestMixer_PauseFlushAndLatency(t *testing.T) {
	e, sink := newTestEngine(t, Config{MaxStreams: 2, OutFormat: monoFmt, PeriodMS: 5})
	defer e.Destroy()

	s, _ := e.Stream(0)
	require.NoError(t, s.Open(monoFmt))
	require.NoError(t, s.Pause(true))

	blockBytes := monoFmt.BytesForDuration(e.period)
	block := constBlock(blockBytes, 123)

	// Paused, the mixer leaves the ring alone: writes accumulate until
	// the ring (three blocks) fills and the two-period timeout trips.
	require.NoError(t, s.Write(block))
	require.NoError(t, s.Write(block))
	time.Sleep(50 * time.Millisecond)
	assert.Greater(t, s.Latency(), time.Duration(0))
	assert.Zero(t, sink.size(), "paused stream must not reach the sink")

	require.NoError(t, s.Write(block))
	err := s.Write(block)
	require.ErrorIs(t, err, ErrTimeout)

	// Flush discards the buffered audio without unpausing.
	require.NoError(t, s.Flush())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, s.Latency())
	assert.Zero(t, sink.size())

	// Unpaused, fresh writes flow through to the sink again.
	require.NoError(t, s.Pause(false))
	feed(t, s, blockBytes, 4, 123)
	time.Sleep(100 * time.Millisecond)
	assert.Greater(t, sink.size(), 0)

	require.NoError(t, s.Close())
}

func TestMixer_FadeOutReturnsToInitialGain(t *testing.T) {
	e, sink := newTestEngine(t, Config{MaxStreams: 2, OutFormat: monoFmt, PeriodMS: 10})
	defer e.Destroy()

	s, _ := e.Stream(0)
	require.NoError(t, s.SetMixerGain(MixerGain{InitialGain: 0, TargetGain: 1, TransitionMS: 40}))
	require.NoError(t, s.Open(monoFmt))

	blockBytes := monoFmt.BytesForDuration(e.period)
	feed(t, s, blockBytes, 15, 1000)
	s.SetFade(false)
	feed(t, s, blockBytes, 15, 1000)
	require.NoError(t, s.Close())

	samples := sink.samples()
	require.NotEmpty(t, samples)
	// Ramped up to unity, then faded back down: full-level samples in
	// the middle, attenuated at the start, silent at the end.
	assert.Greater(t, countSamples(samples, 1000), 0, "ramp never reached target gain")
	assert.Less(t, samples[0], int16(500), "fade-in must start attenuated")
	assert.Equal(t, int16(0), samples[len(samples)-1], "fade-out must end silent")
}

func TestMixer_ConcurrentLifecycleFuzz(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping lifecycle fuzz in short mode")
	}

	e, _ := newTestEngine(t, Config{MaxStreams: 4, OutFormat: monoFmt, PeriodMS: 5})
	defer e.Destroy()

	blockBytes := monoFmt.BytesForDuration(e.period)
	deadline := time.Now().Add(400 * time.Millisecond)

	var wg sync.WaitGroup
	for id := 0; id < 4; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(id)))
			s, err := e.Stream(id)
			if err != nil {
				t.Errorf("Stream(%d): %v", id, err)
				return
			}
			for time.Now().Before(deadline) {
				if err := s.Open(monoFmt); err != nil {
					t.Errorf("stream %d open: %v", id, err)
					return
				}
				for w := 0; w < 1+rng.Intn(4); w++ {
					err := s.Write(constBlock(blockBytes, int16(100*id)))
					if err != nil && !errors.Is(err, ErrTimeout) {
						t.Errorf("stream %d write: %v", id, err)
					}
				}
				if rng.Intn(3) == 0 {
					s.Pause(true)
					s.Pause(false)
				}
				if rng.Intn(3) == 0 {
					s.Flush()
				}
				if err := s.Close(); err != nil {
					t.Errorf("stream %d close: %v", id, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()
}

func TestMixer_SinkFailureFaultsEngine(t *testing.T) {
	cat := dsp.NewCatalog()
	sink := &failingSink{}
	e, err := NewEngine(Config{MaxStreams: 2, OutFormat: monoFmt, PeriodMS: 5, Sink: sink, Catalog: cat})
	require.NoError(t, err)
	defer e.Destroy()

	s, _ := e.Stream(0)
	require.NoError(t, s.Open(monoFmt))

	blockBytes := monoFmt.BytesForDuration(e.period)
	block := constBlock(blockBytes, 42)
	require.NoError(t, s.Write(block))

	// The mixer marks the engine faulted once the sink rejects a block;
	// subsequent writes fail until the last stream closes.
	deadline := time.Now().Add(time.Second)
	for !e.failed.Load() && time.Now().Before(deadline) {
		s.Write(block)
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, e.failed.Load(), "engine never entered the faulted state")
	require.ErrorIs(t, s.Write(block), ErrInvalidState)

	// Closing the last stream clears the fault.
	require.NoError(t, s.Close())
	require.False(t, e.failed.Load())
}

type failingSink struct{}

func (failingSink) WritePCM([]byte) error { return errors.New("device gone") }
