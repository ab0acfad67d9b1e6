// Package jitter implements the sequence-ordered playout buffer that sits
// between the network receive loop and the audio pull callback.
//
// Frames are kept in a gapless run of sequence numbers starting at the front
// of the queue. A number skipped on arrival is stored as a placeholder so the
// reader can tell "late" from "lost" without waiting. When the reader finds a
// placeholder, or runs the queue dry, it repeats the last frame it played
// rather than emitting silence.
//
// An empty queue puts the buffer into a holding state: reads keep repeating
// the last frame until enough new packets have arrived, which stops playback
// from flapping between hold and resume on every late packet.
//
// Buffer is not safe for concurrent use. The playback session owns the lock.
//
// Example:
//
//	buf, err := jitter.NewBuffer(jitter.DefaultConfig(), decoder)
//	if err != nil {
//	    return err
//	}
//	if buf.Write(pkt) == jitter.ActionRead {
//	    ok, err := buf.Read(&pcm)
//	    ...
//	}
package jitter
