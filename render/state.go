package render

import "sync/atomic"

// stateFlag is one bit of a stream's lifecycle state. The flags are
// independent and mutated atomically; the mixer snapshots the whole set
// once per tick so a concurrent close cannot tear its view.
type stateFlag uint32

const (
	// flagRunning is set between a successful open and close.
	flagRunning stateFlag = 1 << iota
	// flagWriting marks that the stream has written at least once since
	// opening. Cleared only by close, it lets the mixer distinguish
	// "never fed" from "fed, currently silent".
	flagWriting
	// flagExiting asks the mixer to acknowledge that it will no longer
	// touch the stream's buffers.
	flagExiting
	// flagFlushing asks the mixer to discard buffered ring content on
	// its next tick.
	flagFlushing
	// flagPaused makes the mixer skip the stream.
	flagPaused
)

func (f stateFlag) has(x stateFlag) bool { return f&x != 0 }

// streamState is an atomic bitset of stateFlags.
type streamState struct {
	bits atomic.Uint32
}

func (s *streamState) snapshot() stateFlag {
	return stateFlag(s.bits.Load())
}

func (s *streamState) set(f stateFlag) {
	for {
		old := s.bits.Load()
		if s.bits.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

func (s *streamState) clear(f stateFlag) {
	for {
		old := s.bits.Load()
		if s.bits.CompareAndSwap(old, old&^uint32(f)) {
			return
		}
	}
}

func (s *streamState) reset() {
	s.bits.Store(0)
}
