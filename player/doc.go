// Package player ties the jitter buffer to an audio backend.
//
// A Player owns the backend objects (engine, output mix, buffer player), the
// jitter buffer, and the lock that guards the buffer. Three kinds of callers
// share it: the network loop enqueues packets, the backend's pull callback
// reads frames, and control calls query or adjust the delay. Each of them
// takes the lock for one short critical section and never holds it across a
// call into the backend.
//
// A panic inside a critical section poisons the lock. The panic is recovered
// and every later call fails with apperr.ErrLockPoisoned, so a corrupted
// buffer is never read again.
package player
