// Package source decodes audio assets into the interleaved
// little-endian PCM blocks the render engine consumes.
//
// Each decoder wraps one container or codec library behind the shared
// Source interface: WAV via go-audio/wav, MP3 via go-mp3, Ogg Vorbis
// via oggvorbis and Opus frames via pion/opus. Beep streamers, used
// for generated audio such as test tones, adapt through FromStreamer.
package source
