package power

import "testing"

type noopStatus struct{ raised int }

func (n *noopStatus) RaiseSoftwareWatchdogTrigger() { n.raised++ }

func TestInitialStateLowBattery(t *testing.T) {
	p := New(10000, 11500, false, false, nil)
	if p.State() != OffLowBatt {
		t.Fatalf("state = %v, want OffLowBatt", p.State())
	}
	if p.PwrEn() {
		t.Fatalf("expected pwr_en false at low-battery boot")
	}
	if !p.BadBatt() {
		t.Fatalf("expected bad_batt true at 10000 mV (below 10500)")
	}
}

func TestInitialStateOffDayWhenPctrlAndDaytime(t *testing.T) {
	p := New(13000, 11500, true, false, nil)
	if p.State() != OffDay {
		t.Fatalf("state = %v, want OffDay", p.State())
	}
}

func TestInitialStateOnOtherwise(t *testing.T) {
	p := New(13000, 11500, false, false, nil)
	if p.State() != On {
		t.Fatalf("state = %v, want On", p.State())
	}
}

// Property 8: On -> Vb held at pwroff-1 for LOWPWR_TIMEOUT s -> alert_n
// asserts for PWROFF_WARN_TIMEOUT s -> pwr_en deasserts.
func TestPowerPreWarnSequence(t *testing.T) {
	p := New(13000, 11500, false, false, nil)
	const pwroff, pwron = 11500, 12500

	for i := 0; i < LowPwrTimeout; i++ {
		p.Update(pwroff-1, pwroff, pwron, false, false, false)
	}
	if p.State() != AlertLowBatt {
		t.Fatalf("state after LOWPWR_TIMEOUT = %v, want AlertLowBatt", p.State())
	}
	if p.AlertN() {
		t.Fatalf("expected alert_n asserted (false) in AlertLowBatt")
	}
	if !p.PwrEn() {
		t.Fatalf("expected pwr_en still true during alert pre-warn")
	}

	for i := 0; i < PwroffWarnTimeout; i++ {
		p.Update(pwroff-1, pwroff, pwron, false, false, false)
	}
	if p.State() != OffLowBatt {
		t.Fatalf("state after warn timeout = %v, want OffLowBatt", p.State())
	}
	if p.PwrEn() {
		t.Fatalf("expected pwr_en deasserted in OffLowBatt")
	}
}

// Property 9: watchdog cycle.
func TestWatchdogCycle(t *testing.T) {
	status := &noopStatus{}
	p := New(13000, 11500, false, false, status)
	const pwroff, pwron = 11500, 12500

	p.SetWatchdogEnable(true)
	p.SetWatchdogSeconds(10)

	for i := 0; i < 10; i++ {
		p.Update(13000, pwroff, pwron, false, false, false)
	}
	if p.State() != WdAlert {
		t.Fatalf("state after 10s watchdog count = %v, want WdAlert", p.State())
	}
	if status.raised != 1 {
		t.Fatalf("expected sticky sw_wd_triggered raised once, got %d", status.raised)
	}

	for i := 0; i < PwroffWarnTimeout; i++ {
		p.Update(13000, pwroff, pwron, false, false, false)
	}
	if p.State() != WdOff {
		t.Fatalf("state after warn = %v, want WdOff", p.State())
	}
	if p.PwrEn() {
		t.Fatalf("expected pwr_en dropped in WdOff")
	}

	for i := 0; i < PwroffDefWdTimeout; i++ {
		p.Update(13000, pwroff, pwron, false, false, false)
	}
	if p.State() != On {
		t.Fatalf("state after pwroff TO = %v, want On", p.State())
	}
	if !p.PwrEn() {
		t.Fatalf("expected pwr_en re-asserted in On")
	}
	if p.WatchdogRunning() {
		t.Fatalf("expected watchdog disabled after WdOff restart")
	}
}

func TestEnableWatchdogAsymmetry(t *testing.T) {
	p := New(13000, 11500, false, false, nil)
	p.SetWatchdogEnable(true)
	p.SetWatchdogSeconds(5)
	if !p.WatchdogRunning() {
		t.Fatalf("expected watchdog running")
	}

	// Enabling again (already enabled) must not reset anything.
	p.SetWatchdogEnable(true)
	if p.WatchdogSeconds() != 5 {
		t.Fatalf("re-enabling reset the count to %d, want unchanged 5", p.WatchdogSeconds())
	}

	// Disabling while globally enabled fully resets.
	p.SetWatchdogEnable(false)
	if p.WatchdogRunning() || p.WatchdogSeconds() != 0 {
		t.Fatalf("expected full reset on disable, got running=%v seconds=%d", p.WatchdogRunning(), p.WatchdogSeconds())
	}
}
