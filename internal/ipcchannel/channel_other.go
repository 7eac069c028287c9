//go:build !linux

package ipcchannel

// wake and park fall back to a one-slot Go channel as the platform
// equivalent of a futex wait on the state word (spec §4.A: "or a platform
// equivalent"), for platforms without a direct futex syscall wrapper.
func (c *Channel[M]) wake() {
	select {
	case c.waitC <- struct{}{}:
	default:
	}
}

func (c *Channel[M]) park() {
	<-c.waitC
}
