package graph

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiomix/pcm"
)

// Chain is an ordered sequence of processing stages transforming PCM
// from an input format to an output format.
//
// A chain is built with Build, opened with Open, driven with Process
// from a single goroutine, and released with Close. The zero Chain is
// an empty passthrough and is not usable until built and opened.
type Chain struct {
	stages []Stage
	in     pcm.Format
	out    pcm.Format
	opened bool
}

// Build constructs a chain converting in to out, with the requested
// extra stages inserted between the shrinking and growing conversions.
//
// Conversions that reduce the data rate are placed first so the
// requested stages (level control, EQ, encoding) operate on the
// smallest payload; conversions that increase it are placed last.
// Requested kinds are deduplicated: a kind already present in the chain
// is skipped. On any failure every stage created so far is closed and
// no partial chain is returned.
func Build(cat Catalog, in, out pcm.Format, requested []StageKind) (*Chain, error) {
	logrus.WithFields(logrus.Fields{
		"function":  "graph.Build",
		"in":        in.String(),
		"out":       out.String(),
		"requested": len(requested),
	}).Debug("Building processing chain")

	if cat == nil {
		return nil, fmt.Errorf("%w: nil catalog", ErrNoResource)
	}
	if !in.Valid() || !out.Valid() {
		return nil, fmt.Errorf("%w: invalid format in=%s out=%s", ErrNotSupported, in, out)
	}

	var kinds []StageKind

	// Shrinking conversions first.
	if in.Channels > out.Channels {
		kinds = append(kinds, KindChannelConvert)
	}
	if in.Bits > out.Bits {
		kinds = append(kinds, KindBitConvert)
	}
	if in.SampleRate > out.SampleRate || in.BytesPerSecond() > out.BytesPerSecond() {
		kinds = append(kinds, KindRateConvert)
	}

	// Requested stages in caller order, skipping kinds already present.
	for _, k := range requested {
		if containsKind(kinds, k) {
			continue
		}
		kinds = append(kinds, k)
	}

	// Growing conversions last.
	if in.SampleRate < out.SampleRate && !containsKind(kinds, KindRateConvert) {
		kinds = append(kinds, KindRateConvert)
	}
	if in.Bits < out.Bits && !containsKind(kinds, KindBitConvert) {
		kinds = append(kinds, KindBitConvert)
	}
	if in.Channels < out.Channels && !containsKind(kinds, KindChannelConvert) {
		kinds = append(kinds, KindChannelConvert)
	}

	c := &Chain{in: in, out: out}
	for _, k := range kinds {
		stage, err := cat.Create(k)
		if err != nil {
			c.closeStages()
			logrus.WithFields(logrus.Fields{
				"function": "graph.Build",
				"kind":     k.String(),
				"error":    err.Error(),
			}).Error("Stage creation failed")
			return nil, fmt.Errorf("create %s stage: %w", k, err)
		}
		c.stages = append(c.stages, stage)
	}

	logrus.WithFields(logrus.Fields{
		"function": "graph.Build",
		"stages":   len(c.stages),
	}).Debug("Processing chain built")

	return c, nil
}

func containsKind(kinds []StageKind, k StageKind) bool {
	for _, have := range kinds {
		if have == k {
			return true
		}
	}
	return false
}

// Open opens every stage in order, binding each stage's output format
// to the next stage's input. If any stage rejects its format the stages
// opened so far are closed and the chain is left unopened.
func (c *Chain) Open() error {
	cur := c.in
	for i, stage := range c.stages {
		next, err := stage.Open(cur, c.out)
		if err != nil {
			for _, opened := range c.stages[:i] {
				opened.Close()
			}
			logrus.WithFields(logrus.Fields{
				"function": "Chain.Open",
				"kind":     stage.Kind().String(),
				"in":       cur.String(),
				"target":   c.out.String(),
				"error":    err.Error(),
			}).Error("Stage open failed")
			return fmt.Errorf("open %s stage: %w", stage.Kind(), err)
		}
		cur = next
	}

	// The encode stage repackages bytes without a PCM format, so format
	// equality is only enforced on pure PCM chains.
	if cur != c.out && !c.Has(KindEncode) {
		for _, opened := range c.stages {
			opened.Close()
		}
		return fmt.Errorf("%w: chain settles at %s, want %s", ErrNotSupported, cur, c.out)
	}

	c.opened = true
	return nil
}

// InFormat returns the chain's input format.
func (c *Chain) InFormat() pcm.Format { return c.in }

// OutFormat returns the chain's output format.
func (c *Chain) OutFormat() pcm.Format { return c.out }

// Len returns the number of stages in the chain.
func (c *Chain) Len() int { return len(c.stages) }

// Has reports whether the chain contains a stage of the given kind.
func (c *Chain) Has(kind StageKind) bool {
	return c.Stage(kind) != nil
}

// Stage returns the live stage of the given kind, or nil if the chain
// has none. Used for external tuning of a running chain.
func (c *Chain) Stage(kind StageKind) Stage {
	for _, s := range c.stages {
		if s.Kind() == kind {
			return s
		}
	}
	return nil
}

// Process pushes one PCM block through the chain and hands every
// produced output block to emit.
//
// The chain is evaluated stage by stage. A stage that reports buffered
// output is drained, recursively stepping the downstream stages, before
// it accepts new input, so trailing samples held across block
// boundaries are never dropped. A stage producing nothing is a normal
// outcome (it needs more input) and is not an error.
func (c *Chain) Process(in []byte, emit func([]byte) error) error {
	if !c.opened {
		return ErrNotOpen
	}
	if len(in) == 0 {
		return nil
	}
	return c.step(0, in, emit)
}

func (c *Chain) step(idx int, in []byte, emit func([]byte) error) error {
	if idx >= len(c.stages) {
		return emit(in)
	}

	stage := c.stages[idx]
	res, err := stage.Process(in)
	if err != nil {
		return fmt.Errorf("%s stage: %w", stage.Kind(), err)
	}
	for {
		if len(res.Out) > 0 {
			if err := c.step(idx+1, res.Out, emit); err != nil {
				return err
			}
		}
		if !res.More {
			return nil
		}
		// Truncate case: the stage still holds output from the block it
		// was just fed; drain it through the downstream stages before
		// accepting anything new.
		res, err = stage.Process(nil)
		if err != nil {
			return fmt.Errorf("%s stage drain: %w", stage.Kind(), err)
		}
	}
}

// Close closes every stage. The chain may not be used afterward.
func (c *Chain) Close() error {
	var firstErr error
	for _, s := range c.stages {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.stages = nil
	c.opened = false
	return firstErr
}

func (c *Chain) closeStages() {
	for _, s := range c.stages {
		s.Close()
	}
	c.stages = nil
}
