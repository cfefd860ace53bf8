package graph

import (
	"bytes"
	"errors"
	"testing"

	"github.com/opd-ai/audiomix/pcm"
)

// fakeStage records calls and optionally converts one format dimension.
type fakeStage struct {
	kind      StageKind
	opened    bool
	closed    bool
	openErr   error
	holdBytes int // emit output in chunks of holdBytes to exercise draining
	buffered  []byte
}

func (f *fakeStage) Kind() StageKind { return f.kind }

func (f *fakeStage) Open(in, target pcm.Format) (pcm.Format, error) {
	if f.openErr != nil {
		return pcm.Format{}, f.openErr
	}
	f.opened = true
	out := in
	switch f.kind {
	case KindRateConvert:
		out.SampleRate = target.SampleRate
	case KindBitConvert:
		out.Bits = target.Bits
	case KindChannelConvert:
		out.Channels = target.Channels
	}
	return out, nil
}

func (f *fakeStage) Process(in []byte) (Result, error) {
	f.buffered = append(f.buffered, in...)
	if len(f.buffered) == 0 {
		return Result{}, nil
	}
	n := len(f.buffered)
	if f.holdBytes > 0 && n > f.holdBytes {
		n = f.holdBytes
	}
	out := f.buffered[:n]
	f.buffered = f.buffered[n:]
	return Result{Out: out, More: len(f.buffered) > 0}, nil
}

func (f *fakeStage) Close() error {
	f.closed = true
	return nil
}

// fakeCatalog hands out fakeStages and remembers every stage created.
type fakeCatalog struct {
	missing []StageKind
	created []*fakeStage
	openErr map[StageKind]error
}

func (c *fakeCatalog) Create(kind StageKind) (Stage, error) {
	for _, m := range c.missing {
		if m == kind {
			return nil, ErrNotFound
		}
	}
	s := &fakeStage{kind: kind}
	if c.openErr != nil {
		s.openErr = c.openErr[kind]
	}
	c.created = append(c.created, s)
	return s, nil
}

func kindsOf(c *Chain) []StageKind {
	var kinds []StageKind
	for _, s := range c.stages {
		kinds = append(kinds, s.Kind())
	}
	return kinds
}

func TestBuild_StageOrdering(t *testing.T) {
	tests := []struct {
		name      string
		in, out   pcm.Format
		requested []StageKind
		want      []StageKind
	}{
		{
			name: "identity needs no stages",
			in:   pcm.Format{SampleRate: 48000, Bits: 16, Channels: 2},
			out:  pcm.Format{SampleRate: 48000, Bits: 16, Channels: 2},
			want: nil,
		},
		{
			name: "shrink all dimensions before requested stages",
			in:   pcm.Format{SampleRate: 48000, Bits: 32, Channels: 2},
			out:  pcm.Format{SampleRate: 16000, Bits: 16, Channels: 1},
			requested: []StageKind{
				KindALC,
			},
			want: []StageKind{KindChannelConvert, KindBitConvert, KindRateConvert, KindALC},
		},
		{
			name: "grow all dimensions after requested stages",
			in:   pcm.Format{SampleRate: 16000, Bits: 16, Channels: 1},
			out:  pcm.Format{SampleRate: 48000, Bits: 32, Channels: 2},
			requested: []StageKind{
				KindEQ,
			},
			want: []StageKind{KindEQ, KindRateConvert, KindBitConvert, KindChannelConvert},
		},
		{
			name: "mixed shrink and grow",
			in:   pcm.Format{SampleRate: 48000, Bits: 16, Channels: 1},
			out:  pcm.Format{SampleRate: 16000, Bits: 16, Channels: 2},
			want: []StageKind{KindRateConvert, KindChannelConvert},
		},
		{
			name: "byte rate shrink forces early rate convert",
			// Sample rate goes up but total byte rate goes down, so the
			// rate converter still runs before requested stages and is
			// not added again afterward.
			in:        pcm.Format{SampleRate: 8000, Bits: 32, Channels: 2},
			out:       pcm.Format{SampleRate: 12000, Bits: 16, Channels: 1},
			requested: []StageKind{KindALC},
			want:      []StageKind{KindChannelConvert, KindBitConvert, KindRateConvert, KindALC},
		},
		{
			name:      "requested kinds deduplicated",
			in:        pcm.Format{SampleRate: 48000, Bits: 16, Channels: 2},
			out:       pcm.Format{SampleRate: 16000, Bits: 16, Channels: 2},
			requested: []StageKind{KindRateConvert, KindALC, KindALC},
			want:      []StageKind{KindRateConvert, KindALC},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := &fakeCatalog{}
			c, err := Build(cat, tt.in, tt.out, tt.requested)
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}
			got := kindsOf(c)
			if len(got) != len(tt.want) {
				t.Fatalf("Build() kinds = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Build() kinds = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestBuild_MissingKindClosesCreatedStages(t *testing.T) {
	cat := &fakeCatalog{missing: []StageKind{KindALC}}
	in := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 2}
	out := pcm.Format{SampleRate: 16000, Bits: 16, Channels: 2}

	_, err := Build(cat, in, out, []StageKind{KindALC})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Build() error = %v, want ErrNotFound", err)
	}
	for _, s := range cat.created {
		if !s.closed {
			t.Errorf("stage %s left open after failed build", s.kind)
		}
	}
}

func TestChain_OpenUnwindsOnFailure(t *testing.T) {
	cat := &fakeCatalog{openErr: map[StageKind]error{KindRateConvert: ErrNotSupported}}
	in := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 2}
	out := pcm.Format{SampleRate: 16000, Bits: 16, Channels: 1}

	c, err := Build(cat, in, out, nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if err := c.Open(); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("Open() error = %v, want ErrNotSupported", err)
	}
	for _, s := range cat.created {
		if s.opened && !s.closed {
			t.Errorf("stage %s left open after failed chain open", s.kind)
		}
	}
}

func TestChain_ProcessBeforeOpen(t *testing.T) {
	cat := &fakeCatalog{}
	f := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 2}
	c, err := Build(cat, f, f, nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	err = c.Process([]byte{1, 2, 3, 4}, func([]byte) error { return nil })
	if !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Process() error = %v, want ErrNotOpen", err)
	}
}

func TestChain_ProcessDrainsBufferedStages(t *testing.T) {
	// A stage that emits in 4-byte chunks forces the chain to drain it
	// repeatedly; all input bytes must come out in order.
	cat := &fakeCatalog{}
	in := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 2}
	out := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 2}

	c, err := Build(cat, in, out, []StageKind{KindALC})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if err := c.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	cat.created[0].holdBytes = 4

	input := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	var got []byte
	err = c.Process(input, func(p []byte) error {
		got = append(got, p...)
		return nil
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if !bytes.Equal(got, input) {
		t.Fatalf("Process() output = %v, want %v", got, input)
	}
}

func TestChain_StageLookup(t *testing.T) {
	cat := &fakeCatalog{}
	f := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 2}
	c, err := Build(cat, f, f, []StageKind{KindALC, KindEQ})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if s := c.Stage(KindALC); s == nil || s.Kind() != KindALC {
		t.Errorf("Stage(KindALC) = %v, want ALC stage", s)
	}
	if s := c.Stage(KindRateConvert); s != nil {
		t.Errorf("Stage(KindRateConvert) = %v, want nil", s)
	}
	if !c.Has(KindEQ) {
		t.Error("Has(KindEQ) = false, want true")
	}
}
