package rootedcell

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
)

// Tag is a globally unique id stamped into every host-local shared object,
// so cross-host misuse of a RootedRc/RootedRefCell is caught by comparison
// rather than by chance.
//
// A Tag is a random 32-bit prefix (drawn once per process) concatenated with
// a monotonically increasing 32-bit suffix, so two cooperating processes
// sharing the same memory layout still mint disjoint tags.
type Tag uint64

// String renders a Tag as prefix:suffix, for diagnostics.
func (t Tag) String() string {
	return fmt.Sprintf("%08x:%08x", uint32(t>>32), uint32(t))
}

var (
	tagPrefix     uint32
	tagPrefixOnce sync.Once
	nextTagSuffix atomic.Uint32
)

// newTag mints a fresh, process-unique Tag.
func newTag() Tag {
	prefix := loadTagPrefix()
	suffix := nextTagSuffix.Add(1)
	if suffix == 0 {
		// Wrapped a uint32 worth of hosts in one process; by construction
		// this process has already violated the "bounded host count" that
		// every caller of newTag assumes, so abort loudly rather than
		// silently reusing a tag.
		panic("rootedcell: tag suffix counter overflowed")
	}
	return Tag(uint64(prefix)<<32 | uint64(suffix))
}

// loadTagPrefix lazily initializes the process-wide random prefix from a
// cryptographic source, once, on first use.
func loadTagPrefix() uint32 {
	tagPrefixOnce.Do(func() {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			// crypto/rand failing is a platform-level problem this package
			// can't recover from; every Tag minted afterwards would be
			// predictable, defeating the point.
			panic("rootedcell: crypto/rand unavailable: " + err.Error())
		}
		tagPrefix = binary.BigEndian.Uint32(buf[:])
	})
	return tagPrefix
}
