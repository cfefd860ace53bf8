package graph

import "github.com/opd-ai/audiomix/pcm"

// StageKind identifies a class of processing stage.
type StageKind int

const (
	// KindRateConvert resamples audio between sample rates.
	KindRateConvert StageKind = iota
	// KindBitConvert changes the sample bit depth.
	KindBitConvert
	// KindChannelConvert changes the channel count.
	KindChannelConvert
	// KindALC applies automatic level control.
	KindALC
	// KindSonic adjusts playback speed.
	KindSonic
	// KindEQ applies equalization.
	KindEQ
	// KindFade applies a fade-in/fade-out gain envelope.
	KindFade
	// KindEncode packages PCM into encoded frames. Only legal on the
	// post-mix chain.
	KindEncode
)

// String returns the stage kind name for logging.
func (k StageKind) String() string {
	switch k {
	case KindRateConvert:
		return "rate_convert"
	case KindBitConvert:
		return "bit_convert"
	case KindChannelConvert:
		return "channel_convert"
	case KindALC:
		return "alc"
	case KindSonic:
		return "sonic"
	case KindEQ:
		return "eq"
	case KindFade:
		return "fade"
	case KindEncode:
		return "encode"
	default:
		return "unknown"
	}
}

// Result reports the outcome of one Stage.Process step.
type Result struct {
	// Out holds the bytes produced by this step. May be empty when the
	// stage needs more input before it can produce anything.
	Out []byte
	// More is true when the stage still holds buffered output; the
	// caller must call Process(nil) to drain it before supplying new
	// input.
	More bool
}

// Stage is one processing element in a chain.
//
// A stage is created by a Catalog, opened once with its input format,
// fed blocks through Process, and closed when the chain is released.
// Stages are driven from a single goroutine at a time; they do not need
// to be internally synchronized, but tuning setters exposed by concrete
// implementations must be safe to call concurrently with Process.
type Stage interface {
	// Kind identifies the stage class.
	Kind() StageKind

	// Open binds the stage to its input format and returns the format
	// it will emit. Conversion stages move exactly one dimension of the
	// format toward target; all other stages emit their input format
	// unchanged. Returns ErrNotSupported if the stage cannot handle the
	// combination, in which case the stage acquires no resources.
	Open(in, target pcm.Format) (pcm.Format, error)

	// Process consumes one block of input. Passing nil input drains
	// output the stage buffered on a previous call. An empty Result
	// with More unset means the stage needs more input.
	Process(in []byte) (Result, error)

	// Close releases stage resources. Safe to call on a stage that was
	// never opened.
	Close() error
}

// Catalog creates fresh stage instances by kind.
//
// The render engine receives a Catalog at construction; there is no
// process-wide element registry. Implementations must return a new,
// unopened Stage on every call.
type Catalog interface {
	// Create returns a fresh stage of the given kind, or ErrNotFound
	// if the catalog does not provide it.
	Create(kind StageKind) (Stage, error)
}
