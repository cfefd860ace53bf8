package dsp

import (
	"errors"
	"testing"

	"github.com/opd-ai/audiomix/pcm"
	"github.com/opd-ai/audiomix/render/graph"
)

func TestRateConverter_ThroughputRatio(t *testing.T) {
	tests := []struct {
		name    string
		inRate  uint32
		outRate uint32
	}{
		{name: "downsample 48k to 16k", inRate: 48000, outRate: 16000},
		{name: "upsample 16k to 48k", inRate: 16000, outRate: 48000},
		{name: "fractional 44.1k to 48k", inRate: 44100, outRate: 48000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := NewRateConverter()
			in := pcm.Format{SampleRate: tt.inRate, Bits: 16, Channels: 2}
			target := pcm.Format{SampleRate: tt.outRate, Bits: 16, Channels: 2}
			got, err := rc.Open(in, target)
			if err != nil {
				t.Fatalf("Open() error: %v", err)
			}
			if got.SampleRate != tt.outRate {
				t.Fatalf("Open() out rate = %d, want %d", got.SampleRate, tt.outRate)
			}

			// One second of audio in 20ms blocks.
			blockBytes := in.BytesForDuration(20_000_000) // 20ms
			var total int
			for i := 0; i < 50; i++ {
				res, err := rc.Process(make([]byte, blockBytes))
				if err != nil {
					t.Fatalf("Process() error: %v", err)
				}
				total += len(res.Out)
			}

			want := target.BytesPerSecond()
			tolerance := target.BytesForDuration(20_000_000) // one block
			if total < want-tolerance || total > want+tolerance {
				t.Errorf("throughput = %d bytes, want %d ±%d", total, want, tolerance)
			}
		})
	}
}

func TestRateConverter_RejectsNon16Bit(t *testing.T) {
	rc := NewRateConverter()
	in := pcm.Format{SampleRate: 48000, Bits: 24, Channels: 2}
	target := pcm.Format{SampleRate: 16000, Bits: 24, Channels: 2}
	if _, err := rc.Open(in, target); !errors.Is(err, graph.ErrNotSupported) {
		t.Fatalf("Open() error = %v, want ErrNotSupported", err)
	}
}

func TestRateConverter_PreservesDCLevel(t *testing.T) {
	// Linear interpolation of a constant signal must reproduce it exactly.
	rc := NewRateConverter()
	in := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 1}
	target := pcm.Format{SampleRate: 24000, Bits: 16, Channels: 1}
	if _, err := rc.Open(in, target); err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = 1000
	}
	res, err := rc.Process(fromInt16(samples))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	for i, s := range toInt16(res.Out) {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
}

func TestBitConverter_RoundTripMSBs(t *testing.T) {
	tests := []struct {
		name    string
		inBits  uint8
		outBits uint8
	}{
		{name: "16 to 32", inBits: 16, outBits: 32},
		{name: "32 to 16", inBits: 32, outBits: 16},
		{name: "16 to 24", inBits: 16, outBits: 24},
		{name: "24 to 16", inBits: 24, outBits: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc := NewBitConverter()
			in := pcm.Format{SampleRate: 48000, Bits: tt.inBits, Channels: 1}
			target := pcm.Format{SampleRate: 48000, Bits: tt.outBits, Channels: 1}
			got, err := bc.Open(in, target)
			if err != nil {
				t.Fatalf("Open() error: %v", err)
			}
			if got.Bits != tt.outBits {
				t.Fatalf("Open() bits = %d, want %d", got.Bits, tt.outBits)
			}

			block := make([]byte, 8*int(tt.inBits)/8)
			res, err := bc.Process(block)
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			want := 8 * int(tt.outBits) / 8
			if len(res.Out) != want {
				t.Errorf("Process() output = %d bytes, want %d", len(res.Out), want)
			}
		})
	}
}

func TestBitConverter_WidenNarrowIdentity(t *testing.T) {
	widen := NewBitConverter()
	narrow := NewBitConverter()
	f16 := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 1}
	f32 := pcm.Format{SampleRate: 48000, Bits: 32, Channels: 1}
	if _, err := widen.Open(f16, f32); err != nil {
		t.Fatalf("widen Open() error: %v", err)
	}
	if _, err := narrow.Open(f32, f16); err != nil {
		t.Fatalf("narrow Open() error: %v", err)
	}

	input := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	mid, err := widen.Process(fromInt16(input))
	if err != nil {
		t.Fatalf("widen Process() error: %v", err)
	}
	back, err := narrow.Process(mid.Out)
	if err != nil {
		t.Fatalf("narrow Process() error: %v", err)
	}
	got := toInt16(back.Out)
	for i := range input {
		if got[i] != input[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], input[i])
		}
	}
}

func TestChannelConverter_MonoStereo(t *testing.T) {
	cc := NewChannelConverter()
	mono := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 1}
	stereo := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 2}
	if _, err := cc.Open(mono, stereo); err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	res, err := cc.Process(fromInt16([]int16{100, -200, 300}))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	got := toInt16(res.Out)
	want := []int16{100, 100, -200, -200, 300, 300}
	if len(got) != len(want) {
		t.Fatalf("Process() output = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Process() output = %v, want %v", got, want)
		}
	}
}

func TestChannelConverter_StereoMonoAverages(t *testing.T) {
	cc := NewChannelConverter()
	stereo := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 2}
	mono := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 1}
	if _, err := cc.Open(stereo, mono); err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	res, err := cc.Process(fromInt16([]int16{100, 300, -100, -300}))
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	got := toInt16(res.Out)
	want := []int16{200, -200}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Process() output = %v, want %v", got, want)
	}
}

func TestChannelConverter_StereoMono32Bit(t *testing.T) {
	cc := NewChannelConverter()
	stereo := pcm.Format{SampleRate: 48000, Bits: 32, Channels: 2}
	mono := pcm.Format{SampleRate: 48000, Bits: 32, Channels: 1}
	if _, err := cc.Open(stereo, mono); err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	in := make([]byte, 4*4)
	storeSample(in, 0, 32, 1<<20)
	storeSample(in, 1, 32, 3<<20)
	storeSample(in, 2, 32, -(1 << 20))
	storeSample(in, 3, 32, -(3 << 20))

	res, err := cc.Process(in)
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(res.Out) != 8 {
		t.Fatalf("Process() output = %d bytes, want 8", len(res.Out))
	}
	if got := sampleAt(res.Out, 0, 32); got != 2<<20 {
		t.Errorf("frame 0 = %d, want %d", got, 2<<20)
	}
	if got := sampleAt(res.Out, 1, 32); got != -(2 << 20) {
		t.Errorf("frame 1 = %d, want %d", got, -(2 << 20))
	}
}

func TestChain_32BitStereoTo16BitMono(t *testing.T) {
	// The channel converter runs ahead of the bit-depth converter in a
	// shrinking chain, so it must accept 32-bit input.
	in := pcm.Format{SampleRate: 48000, Bits: 32, Channels: 2}
	out := pcm.Format{SampleRate: 48000, Bits: 16, Channels: 1}

	chain, err := graph.Build(NewCatalog(), in, out, nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if err := chain.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer chain.Close()

	const frames = 64
	block := make([]byte, frames*in.FrameBytes())
	for f := 0; f < frames; f++ {
		storeSample(block, f*2, 32, 1000<<16)
		storeSample(block, f*2+1, 32, 3000<<16)
	}

	var rendered []byte
	err = chain.Process(block, func(p []byte) error {
		rendered = append(rendered, p...)
		return nil
	})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	samples := toInt16(rendered)
	if len(samples) != frames {
		t.Fatalf("rendered %d samples, want %d", len(samples), frames)
	}
	for i, s := range samples {
		if s != 2000 {
			t.Fatalf("sample %d = %d, want 2000", i, s)
		}
	}
}
