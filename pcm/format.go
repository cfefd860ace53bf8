package pcm

import (
	"fmt"
	"time"
)

// Format describes the layout of a raw interleaved PCM stream.
//
// All three fields must be non-zero for a format to be usable. Samples
// are signed little-endian integers of Bits width, interleaved by
// channel (frame = one sample per channel).
type Format struct {
	// SampleRate is the number of frames per second (e.g. 48000).
	SampleRate uint32
	// Bits is the width of one sample in bits (8, 16, 24 or 32).
	Bits uint8
	// Channels is the number of interleaved channels (1 = mono, 2 = stereo).
	Channels uint8
}

// DefaultFormat is the output format used when none is configured:
// 48 kHz, 16-bit, stereo.
var DefaultFormat = Format{SampleRate: 48000, Bits: 16, Channels: 2}

// Valid reports whether every field of the format is non-zero.
func (f Format) Valid() bool {
	return f.SampleRate != 0 && f.Bits != 0 && f.Channels != 0
}

// FrameBytes returns the size of one frame (one sample per channel) in bytes.
func (f Format) FrameBytes() int {
	return int(f.Bits) / 8 * int(f.Channels)
}

// BytesPerSecond returns the raw data rate of the format in bytes.
func (f Format) BytesPerSecond() int {
	return int(f.SampleRate) * f.FrameBytes()
}

// BytesForDuration returns the number of bytes covering d of audio,
// rounded down to a whole frame.
func (f Format) BytesForDuration(d time.Duration) int {
	frames := int(int64(f.SampleRate) * d.Milliseconds() / 1000)
	return frames * f.FrameBytes()
}

// Duration returns the play time of n bytes of audio in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// String returns a compact "rate/bits/channels" description for logging.
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.Bits, f.Channels)
}
