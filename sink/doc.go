// Package sink provides output destinations for rendered PCM: a WAV
// file writer built on go-audio/wav and a raw io.Writer adapter. Every
// sink accepts the interleaved little-endian 16-bit blocks the render
// engine emits.
package sink
