// Package audio turns codec payloads into interleaved signed 16-bit
// little-endian PCM at the playback format.
//
// A Decoder is a push/pull transform: Write hands it one compressed payload,
// Read drains zero or more decoded chunks. Chunks are go-audio IntBuffers
// carrying their own sample rate and channel count, so a decoder may change
// format mid-stream (Opus bandwidth switches do) and the Resampler follows.
//
// Stage wraps a Decoder and a Resampler into the single decode step used by
// the jitter buffer, and learns the playout duration of one frame from the
// first successful decode.
//
// Supported codecs:
//
//	opus       SILK-mode Opus via pion/opus, 48 kHz output
//	pcm_s16le  raw interleaved signed 16-bit little-endian samples
//	pcm_f32le  raw interleaved 32-bit float little-endian samples
package audio
