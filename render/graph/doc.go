// Package graph builds and runs ordered chains of PCM processing stages.
//
// A Chain transforms audio from one pcm.Format into another by composing
// Stage instances created from a Catalog. The builder inserts only the
// format conversions actually required, ordered so that conversions which
// reduce the data rate run before expensive processing stages and
// conversions which increase it run after:
//
//	shrink channels → shrink bits → downsample → requested stages →
//	upsample → grow bits → grow channels
//
// Stages may buffer input and output internally; Chain.Process steps the
// chain stage by stage, draining any stage that still holds output before
// feeding it more input, so no trailing samples are silently dropped.
package graph
