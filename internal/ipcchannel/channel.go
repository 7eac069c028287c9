// Package ipcchannel implements the single-slot SPSC channel that is the
// basis of every sim<->shim communication path (spec §4.A). Layout is kept
// position-independent in spirit: a Channel carries only inline values and
// one atomic state word, the same shape the teacher's FastState
// (eventloop/state.go) uses for its lock-free loop state machine, cache-line
// padded so the state word never false-shares with a neighboring channel's.
package ipcchannel

import (
	"errors"
)

// state values for the single atomic word. Ordered the way the spec lists
// them so State.String reads naturally.
type state uint32

const (
	stateEmpty state = iota
	stateReady
	stateWriterClosed
	stateReaderClosed
)

func (s state) String() string {
	switch s {
	case stateEmpty:
		return "Empty"
	case stateReady:
		return "Ready"
	case stateWriterClosed:
		return "WriterClosed"
	case stateReaderClosed:
		return "ReaderClosed"
	default:
		return "Unknown"
	}
}

// ErrClosed is returned by Receive once the writer has closed the channel
// and there is no pending message, and by Send after CloseWriter.
var ErrClosed = errors.New("ipcchannel: channel closed")

// ErrReaderClosed is returned by Send once the reader has closed its end.
var ErrReaderClosed = errors.New("ipcchannel: reader closed")

// Channel is a one-slot SPSC channel holding Empty, Ready(M), or a closed
// marker. It has exactly one writer goroutine and one reader goroutine for
// its lifetime; Send from two goroutines concurrently is a contract
// violation, matching spec invariant 4 ("channel alternation").
type Channel[M any] struct { // betteralign:ignore
	_     [cacheLinePad]byte
	st    atomicState
	_     [cacheLinePad - stateWordSize]byte
	msg   M
	waitC chan struct{} // portable parking primitive; see park/wake
}

// New returns a new, empty Channel.
func New[M any]() *Channel[M] {
	c := &Channel[M]{waitC: make(chan struct{}, 1)}
	c.st.store(uint32(stateEmpty))
	return c
}

// Send places m in the slot and transitions Empty->Ready. Returns
// ErrReaderClosed or ErrClosed if either end has been closed. Panics if the
// slot still holds an unread message: that's the single-producer contract
// spec §4.A describes.
func (c *Channel[M]) Send(m M) error {
	switch state(c.st.load()) {
	case stateReaderClosed:
		return ErrReaderClosed
	case stateWriterClosed:
		return ErrClosed
	case stateEmpty:
	default:
		panic("ipcchannel: Send called on non-Empty channel")
	}
	c.msg = m
	c.st.store(uint32(stateReady))
	c.wake()
	return nil
}

// TryReceive is a non-blocking probe: returns (m, true, nil) if a message
// was ready, (zero, false, nil) if still Empty, or an error if closed.
func (c *Channel[M]) TryReceive() (m M, ok bool, err error) {
	switch state(c.st.load()) {
	case stateReady:
		m = c.msg
		var zero M
		c.msg = zero
		c.st.store(uint32(stateEmpty))
		return m, true, nil
	case stateWriterClosed:
		return m, false, ErrClosed
	default:
		return m, false, nil
	}
}

// Receive blocks until a message is Ready or the writer has closed the
// channel.
func (c *Channel[M]) Receive() (M, error) {
	for {
		if m, ok, err := c.TryReceive(); ok || err != nil {
			return m, err
		}
		c.park()
	}
}

// CloseWriter transitions the channel to WriterClosed, waking any blocked
// receiver. Idempotent.
func (c *Channel[M]) CloseWriter() {
	for {
		cur := state(c.st.load())
		if cur == stateWriterClosed || cur == stateReaderClosed {
			return
		}
		if c.st.cas(uint32(cur), uint32(stateWriterClosed)) {
			c.wake()
			return
		}
	}
}

// CloseReader transitions the channel to ReaderClosed, so a subsequent Send
// fails fast instead of writing into a slot nobody will ever drain.
func (c *Channel[M]) CloseReader() {
	for {
		cur := state(c.st.load())
		if cur == stateReaderClosed || cur == stateWriterClosed {
			return
		}
		if c.st.cas(uint32(cur), uint32(stateReaderClosed)) {
			return
		}
	}
}

// State reports the current state, for diagnostics/tests only.
func (c *Channel[M]) State() string { return state(c.st.load()).String() }

const (
	cacheLinePad  = 64
	stateWordSize = 4
)
