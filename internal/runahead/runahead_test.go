package runahead

import (
	"testing"
	"time"

	"github.com/joeycumines/shadowsim/internal/simlog"
)

func TestController_GetNeverZero(t *testing.T) {
	c := New(time.Millisecond, 0, false, simlog.Nop())
	if got := c.Get(); got <= 0 {
		t.Fatalf("Get() = %v, want > 0", got)
	}
}

func TestController_ConfigFloorWins(t *testing.T) {
	c := New(time.Millisecond, 50*time.Millisecond, false, simlog.Nop())
	if got := c.Get(); got != 50*time.Millisecond {
		t.Fatalf("Get() = %v, want 50ms floor", got)
	}
}

func TestController_UpdateLowestUsedLatencyRequiresDynamicMode(t *testing.T) {
	c := New(10*time.Millisecond, 0, false, simlog.Nop())
	c.UpdateLowestUsedLatency(time.Microsecond)
	if got := c.Get(); got != 10*time.Millisecond {
		t.Fatalf("Get() = %v, want unchanged 10ms (dynamic mode disabled)", got)
	}
}

func TestController_UpdateLowestUsedLatencyMonotonicallyLowers(t *testing.T) {
	c := New(10*time.Millisecond, 0, true, simlog.Nop())
	c.UpdateLowestUsedLatency(5 * time.Millisecond)
	if got := c.Get(); got != 5*time.Millisecond {
		t.Fatalf("Get() = %v, want 5ms", got)
	}

	// A higher observed latency must not raise it back up.
	c.UpdateLowestUsedLatency(8 * time.Millisecond)
	if got := c.Get(); got != 5*time.Millisecond {
		t.Fatalf("Get() = %v, want still 5ms (monotonic decrease only)", got)
	}

	c.UpdateLowestUsedLatency(2 * time.Millisecond)
	if got := c.Get(); got != 2*time.Millisecond {
		t.Fatalf("Get() = %v, want 2ms", got)
	}
}

func TestController_ConcurrentReadsDuringUpdate(t *testing.T) {
	c := New(10*time.Millisecond, 0, true, simlog.Nop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			c.Get()
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		c.UpdateLowestUsedLatency(time.Duration(1000-i) * time.Microsecond)
	}
	<-done
	if got := c.Get(); got <= 0 {
		t.Fatalf("Get() = %v, want > 0", got)
	}
}
