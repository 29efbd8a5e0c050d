package hwwatchdog

import (
	"testing"
	"time"
)

func TestKickPreventsExpiry(t *testing.T) {
	w := New(PowerOnReset)
	for i := 0; i < 5; i++ {
		time.Sleep(Period / 4)
		w.Kick()
		if w.Expired() {
			t.Fatalf("watchdog reported expired despite regular kicks")
		}
	}
}

func TestExpiresWithoutKick(t *testing.T) {
	w := New(PowerOnReset)
	time.Sleep(Period*2 + 5*time.Millisecond)
	if !w.Expired() {
		t.Fatalf("expected watchdog to expire without kicks")
	}
}

func TestResetCauseLatched(t *testing.T) {
	w := New(WatchdogReset)
	if !w.CausedReset() {
		t.Fatalf("expected CausedReset true when booted from WatchdogReset")
	}

	w2 := New(PowerOnReset)
	if w2.CausedReset() {
		t.Fatalf("expected CausedReset false when booted from PowerOnReset")
	}
}
