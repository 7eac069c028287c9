// Package ipc implements the shim/simulator transport: one IPCData per
// managed thread, carrying a command channel (sim -> shim) and an event
// channel (shim -> sim), each a one-slot ipcchannel.Channel, so every
// transition is exactly one send plus one receive and the protocol is
// strictly alternating (spec §4.H).
package ipc

import "github.com/joeycumines/shadowsim/internal/ipcchannel"

// CommandTag identifies which variant of Command is populated.
type CommandTag uint8

const (
	CommandRunUntilSyscall CommandTag = iota
	CommandResumeWithResult
	CommandInjectSignal
	CommandBlockOnFutexReleased
)

// Command is the POD tagged union the simulator sends to a shim thread.
// Every field is a plain value (no pointers, no slices, no maps) so the
// type stays VirtualAddressSpaceIndependent (spec §9): copying the bytes
// between two processes' views of shared memory must always be safe.
type Command struct { // betteralign:ignore
	Tag CommandTag

	// ResumeWithResult
	SyscallResult int64
	SyscallErrno  int32

	// InjectSignal
	Signal int32

	// RunUntilSyscall / BlockOnFutexReleased share these.
	FutexAddr uint64
}

// ShimEventTag identifies which variant of ShimEvent is populated.
type ShimEventTag uint8

const (
	ShimEventSyscallMade ShimEventTag = iota
	ShimEventThreadExited
	ShimEventNativeSyscallCompleted
)

// SyscallArgs is a fixed-size array, not a slice, so ShimEvent stays POD.
type SyscallArgs [6]uint64

// ShimEvent is the POD tagged union the shim sends to the simulator.
type ShimEvent struct { // betteralign:ignore
	Tag ShimEventTag

	// SyscallMade
	SyscallNr   uint64
	SyscallArgs SyscallArgs

	// ThreadExited
	ExitCode int32

	// NativeSyscallCompleted
	NativeResult int64
}

// Data is the shared-memory IPCData for one managed thread: a command
// channel and an event channel. Cache-line alignment between the two
// channels is handled by ipcchannel.Channel itself, which pads its state
// word to a full cache line (spec: "cache-line aligned so the two atomics
// never false-share with unrelated data").
type Data struct {
	Commands *ipcchannel.Channel[Command]
	Events   *ipcchannel.Channel[ShimEvent]
}

// New allocates a fresh IPCData for one managed thread.
func New() *Data {
	return &Data{
		Commands: ipcchannel.New[Command](),
		Events:   ipcchannel.New[ShimEvent](),
	}
}

// Close shuts down both channels from the simulator side, called when a
// thread's IPCData is explicitly dropped (spec: "each thread explicitly
// drops its IPCData").
func (d *Data) Close() {
	d.Commands.CloseWriter()
	d.Events.CloseReader()
}
