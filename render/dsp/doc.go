// Package dsp provides the default processing-stage catalog for the
// render engine.
//
// Every graph.StageKind has a pure Go implementation here: linear
// interpolation rate conversion, bit-depth and channel conversion,
// automatic level control, two-band shelving EQ, playback-speed
// adjustment, fade envelopes, and a PCM block encoder. The engine
// itself depends only on the graph.Stage and graph.Catalog interfaces;
// this package is one catalog implementation and callers may register
// their own stages over the defaults.
//
// The bit and channel converters handle 8, 16, 24 and 32-bit samples,
// since they may run ahead of bit conversion in a shrinking chain. The
// remaining stages operate on 16-bit samples and reject other depths
// with graph.ErrNotSupported; the chain builder places bit conversion
// so that 16-bit data reaches them whenever the endpoint formats allow
// it.
package dsp
