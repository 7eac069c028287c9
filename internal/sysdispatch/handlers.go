package sysdispatch

import "net/netip"

// DNSRegistry resolves/records host addresses. Implementations live outside
// this module; the core only consumes this interface (spec §6, "pluggable
// collaborators").
type DNSRegistry interface {
	Register(hostID uint64, hostname string, addr netip.Addr) error
	Deregister(hostID uint64) error
	Resolve(hostname string) (netip.Addr, bool)
}

// MemoryReader reads a NUL-terminated string out of the managed process's
// address space, the one piece of real syscall-arg marshaling this package
// needs: hostname_to_addr_ipv4 takes a pointer in args[0], not an inline
// value. The mechanism backing this (ptrace peek, /proc/pid/mem, a shared
// mapping) is out of scope for the core, per spec §9.
type MemoryReader interface {
	ReadCString(addr uint64) (string, error)
}

// RegisterReserved installs the three shadow-internal syscalls (spec §6):
// hostname_to_addr_ipv4, init_memory_manager, and shadow_yield. yield is
// called with the thread so the scheduler can re-enqueue it at the same
// sim time with sched_yield semantics (spec scenario S6: "no time advance,
// thread re-enters queue at same priority").
func RegisterReserved(tbl *Table, dns DNSRegistry, mem MemoryReader, yield func(t *Thread)) {
	tbl.Register(SysHostnameToAddrIPv4, func(t *Thread, args SyscallArgs) Outcome {
		name, err := mem.ReadCString(args[0])
		if err != nil {
			return DoneErr(-14) // -EFAULT
		}
		addr, ok := dns.Resolve(name)
		if !ok {
			return DoneErr(-3) // -ESRCH: no such host
		}
		if !addr.Is4() {
			return DoneErr(-97) // -EAFNOSUPPORT
		}
		v4 := addr.As4()
		var packed uint64
		for _, b := range v4 {
			packed = packed<<8 | uint64(b)
		}
		return Done(int64(packed))
	})

	tbl.Register(SysInitMemoryManager, func(t *Thread, args SyscallArgs) Outcome {
		return ShadowInternal()
	})

	tbl.Register(SysShadowYield, func(t *Thread, args SyscallArgs) Outcome {
		if yield != nil {
			yield(t)
		}
		return Done(0)
	})
}
