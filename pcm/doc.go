// Package pcm defines value types describing raw interleaved PCM audio.
//
// A Format fully describes the byte layout of a PCM stream: sample rate,
// bit depth, and channel count. Samples are signed little-endian integers
// interleaved by channel. Every component in this module that moves audio
// bytes around carries a Format alongside them.
package pcm
