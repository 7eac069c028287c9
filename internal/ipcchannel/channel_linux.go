//go:build linux

package ipcchannel

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// wake and park on Linux use the state word itself as a futex, the same
// "userspace mutex primitive" described for the host-local futex table
// (spec §4.C), rather than a side-channel semaphore: FUTEX_WAKE only has to
// touch the one word every reader is already polling, so the rendezvous
// costs a single syscall on each side with no extra allocation.
func (c *Channel[M]) wake() {
	_, _, _ = unix.Syscall(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(&c.st.v)),
		uintptr(unix.FUTEX_WAKE),
		1,
	)
}

func (c *Channel[M]) park() {
	expected := c.st.load()
	if expected != uint32(stateEmpty) {
		// Raced with a state change between the caller's last check and
		// here; nothing to wait for.
		return
	}
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(&c.st.v)),
		uintptr(unix.FUTEX_WAIT),
		uintptr(expected),
		0, 0, 0,
	)
}
