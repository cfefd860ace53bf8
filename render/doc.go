// Package render implements a multi-stream PCM render and mixing engine.
//
// An Engine accepts independently produced PCM streams (capture feeds,
// media playback, prompts, tones), converts each to a common output
// format through a per-stream processing chain, mixes them with smooth
// per-stream gain ramps, and delivers a single PCM stream to an output
// sink at a fixed cadence.
//
// With a single configured stream the engine processes writes
// synchronously in the caller's goroutine. With multiple streams a
// dedicated mixer goroutine is created lazily when the first stream
// opens and torn down when the last one closes; each stream then feeds
// a bounded ring buffer the mixer drains once per period.
//
// The engine consumes four capabilities supplied at construction or
// through collaborator packages: an OutputSink for mixed audio, a
// graph.Catalog producing processing stages, the ringbuf byte queue,
// and a Clock for period timing. It holds no process-wide state.
package render
