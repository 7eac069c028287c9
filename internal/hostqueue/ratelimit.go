package hostqueue

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// dropRateLimiter caps how often a single CoDel queue logs its own drop
// transitions, using go-catrate's per-category sliding-window limiter
// (spec §4.C: "logged through internal/simlog at a rate capped by
// go-catrate ... so a queue stuck in drop mode cannot flood the log").
type dropRateLimiter struct {
	limiter  *catrate.Limiter
	category string
}

func newDropRateLimiter(ifaceName string) dropRateLimiter {
	return dropRateLimiter{
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 1,
		}),
		category: ifaceName,
	}
}

// Allow reports whether this drop transition should be logged.
func (d dropRateLimiter) Allow() bool {
	if d.limiter == nil {
		return true
	}
	_, ok := d.limiter.Allow(d.category)
	return ok
}
