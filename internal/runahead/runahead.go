// Package runahead implements the runahead controller: the single piece of
// writeable state shared across every scheduler worker (spec §4.F, §5:
// "the runahead controller is the single piece of writeable state shared
// across workers, protected by a read-write lock"). Every other piece of
// cross-goroutine mutable state in this module goes through a rootedcell
// Root instead; this is the one deliberate exception, because the
// controller is read on every worker's DISTRIBUTE step and written at most
// once per round at COMMIT, a read-mostly access pattern RWMutex fits and a
// single-goroutine root-lock cannot, since there is no one host that owns
// it.
package runahead

import (
	"sync"
	"time"

	"github.com/joeycumines/shadowsim/internal/simlog"
)

// Controller tracks the bounded look-ahead window used to compute
// round_end in the scheduler's DISTRIBUTE phase.
type Controller struct {
	mu sync.RWMutex

	minPossibleLatency time.Duration
	minRunaheadConfig  time.Duration
	minUsedLatency     time.Duration
	dynamicEnabled     bool

	log simlog.Logger
}

// New builds a Controller. minPossibleLatency is the static lower bound
// derived from the network graph's smallest edge weight; minRunaheadConfig
// is an optional user-supplied floor (zero disables it); dynamicEnabled
// controls whether UpdateLowestUsedLatency has any effect.
func New(minPossibleLatency, minRunaheadConfig time.Duration, dynamicEnabled bool, log simlog.Logger) *Controller {
	if minPossibleLatency <= 0 {
		panic("runahead: minPossibleLatency must be > 0")
	}
	return &Controller{
		minPossibleLatency: minPossibleLatency,
		minRunaheadConfig:  minRunaheadConfig,
		minUsedLatency:     minPossibleLatency,
		dynamicEnabled:     dynamicEnabled,
		log:                log,
	}
}

// Get returns max(min_runahead_config, min_used_latency or
// min_possible_latency) and is never zero (spec §4.F, invariant 6).
func (c *Controller) Get() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.get()
}

func (c *Controller) get() time.Duration {
	used := c.minUsedLatency
	if used <= 0 {
		used = c.minPossibleLatency
	}
	if c.minRunaheadConfig > used {
		return c.minRunaheadConfig
	}
	return used
}

// UpdateLowestUsedLatency lowers min_used_latency to l if dynamic mode is
// enabled and l is strictly lower than the current value, double-checking
// under the write lock (spec §4.F: "double-checks under write-lock, lowers
// min_used_latency monotonically, and logs the transition").
func (c *Controller) UpdateLowestUsedLatency(l time.Duration) {
	if !c.dynamicEnabled || l <= 0 {
		return
	}
	c.mu.RLock()
	needsUpdate := l < c.minUsedLatency
	c.mu.RUnlock()
	if !needsUpdate {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if l >= c.minUsedLatency {
		return
	}
	prev := c.minUsedLatency
	c.minUsedLatency = l
	c.log.Debug().Dur("previous", prev).Dur("updated", l).Log("runahead: lowered min_used_latency")
}
