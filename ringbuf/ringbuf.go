// Package ringbuf implements a bounded blocking byte FIFO.
//
// Buffer is the queue capability between audio producers and the mixer
// loop: writers block with a timeout when the buffer is full, readers
// may either block for an exact byte count or take whatever is
// available without blocking, and Reset discards buffered data in one
// step. One producer and one consumer may operate concurrently;
// multiple producers must serialize among themselves.
package ringbuf

import (
	"errors"
	"sync"
	"time"
)

// Sentinel errors for buffer operations.
var (
	// ErrTimeout indicates a bounded wait elapsed before enough space
	// or data became available.
	ErrTimeout = errors.New("ring buffer wait timed out")

	// ErrClosed indicates the buffer has been closed.
	ErrClosed = errors.New("ring buffer is closed")
)

// Buffer is a fixed-capacity circular byte queue.
type Buffer struct {
	mu     sync.Mutex
	buf    []byte
	r      int // read position
	n      int // bytes stored
	closed bool

	// Edge-triggered wakeups; buffered so a signal is never lost.
	readable chan struct{}
	writable chan struct{}
}

// New creates a buffer holding up to capacity bytes.
func New(capacity int) *Buffer {
	return &Buffer{
		buf:      make([]byte, capacity),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

// Cap returns the buffer capacity in bytes.
func (b *Buffer) Cap() int { return len(b.buf) }

// Buffered returns the number of bytes currently stored.
func (b *Buffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Write stores all of p, blocking up to timeout for space. Writes
// larger than the capacity are served in chunks as the reader drains.
//
// On timeout the bytes accepted so far stay queued and ErrTimeout is
// returned with their count; the prefix is not rolled back, so a
// caller must resume from the returned offset rather than retry the
// whole block.
func (b *Buffer) Write(p []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	written := 0

	for written < len(p) {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return written, ErrClosed
		}
		space := len(b.buf) - b.n
		if space > 0 {
			chunk := len(p) - written
			if chunk > space {
				chunk = space
			}
			b.put(p[written : written+chunk])
			written += chunk
			b.mu.Unlock()
			signal(b.readable)
			continue
		}
		b.mu.Unlock()

		remain := time.Until(deadline)
		if remain <= 0 {
			return written, ErrTimeout
		}
		timer := time.NewTimer(remain)
		select {
		case <-b.writable:
			timer.Stop()
		case <-timer.C:
			return written, ErrTimeout
		}
	}
	return written, nil
}

// ReadExact fills p completely, blocking up to timeout for data. On
// timeout the bytes read so far are returned with ErrTimeout.
func (b *Buffer) ReadExact(p []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	read := 0

	for read < len(p) {
		b.mu.Lock()
		if b.n > 0 {
			chunk := len(p) - read
			if chunk > b.n {
				chunk = b.n
			}
			b.take(p[read : read+chunk])
			read += chunk
			b.mu.Unlock()
			signal(b.writable)
			continue
		}
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return read, ErrClosed
		}

		remain := time.Until(deadline)
		if remain <= 0 {
			return read, ErrTimeout
		}
		timer := time.NewTimer(remain)
		select {
		case <-b.readable:
			timer.Stop()
		case <-timer.C:
			return read, ErrTimeout
		}
	}
	return read, nil
}

// TryRead copies up to len(p) of buffered bytes into p without
// blocking and returns the count.
func (b *Buffer) TryRead(p []byte) int {
	b.mu.Lock()
	chunk := len(p)
	if chunk > b.n {
		chunk = b.n
	}
	if chunk > 0 {
		b.take(p[:chunk])
	}
	b.mu.Unlock()
	if chunk > 0 {
		signal(b.writable)
	}
	return chunk
}

// Reset discards all buffered bytes and wakes blocked writers.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.r = 0
	b.n = 0
	b.mu.Unlock()
	signal(b.writable)
}

// Close marks the buffer closed and wakes all waiters. Buffered bytes
// remain readable; writes fail with ErrClosed.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	signal(b.readable)
	signal(b.writable)
}

// put copies p into the ring. Caller holds the lock and has checked space.
func (b *Buffer) put(p []byte) {
	end := (b.r + b.n) % len(b.buf)
	right := len(b.buf) - end
	if right > len(p) {
		right = len(p)
	}
	copy(b.buf[end:end+right], p[:right])
	if right < len(p) {
		copy(b.buf, p[right:])
	}
	b.n += len(p)
}

// take copies out of the ring into p. Caller holds the lock and has
// checked availability.
func (b *Buffer) take(p []byte) {
	right := len(b.buf) - b.r
	if right > len(p) {
		right = len(p)
	}
	copy(p[:right], b.buf[b.r:b.r+right])
	if right < len(p) {
		copy(p[right:], b.buf)
	}
	b.r = (b.r + len(p)) % len(b.buf)
	b.n -= len(p)
}
