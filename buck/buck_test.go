package buck

import "testing"

type fakeStatus struct {
	words []uint16
}

func (f *fakeStatus) SetBuckStatus(word uint16) {
	f.words = append(f.words, word)
}

type fakeSource struct {
	vs, is, vb, ib int
}

func (f *fakeSource) GetValueForISR(ch int) int {
	switch ch {
	case chVs:
		return f.vs
	case chIs:
		return f.is
	case chVb:
		return f.vb
	case chIb:
		return f.ib
	default:
		return 0
	}
}

func TestEnableSeedsContinuousConductionGuess(t *testing.T) {
	status := &fakeStatus{}
	b := New(status)
	b.SetSolarSetpoint(18000)
	b.SetBattSetpoint(14000)

	b.Enable(true)
	if !b.Enabled() {
		t.Fatalf("expected enabled")
	}
	want := (PwmMax * 14000) / 18000
	if b.Pwm() != want {
		t.Fatalf("seeded pwm = %d, want %d", b.Pwm(), want)
	}
	if len(status.words) != 1 {
		t.Fatalf("expected one status publish on enable, got %d", len(status.words))
	}
}

func TestEnableTwiceDoesNotReseed(t *testing.T) {
	b := New(nil)
	b.SetSolarSetpoint(18000)
	b.SetBattSetpoint(14000)
	b.Enable(true)
	b.Update(&fakeSource{vs: 19000, vb: 13000, is: 500}) // advances pwm by one step
	pwmAfterStep := b.Pwm()

	b.Enable(true) // already enabled: must not reseed
	if b.Pwm() != pwmAfterStep {
		t.Fatalf("re-enabling reseeded pwm: got %d, want unchanged %d", b.Pwm(), pwmAfterStep)
	}
}

func TestDisableClearsFlagsAndPublishesZero(t *testing.T) {
	status := &fakeStatus{}
	b := New(status)
	b.SetSolarSetpoint(18000)
	b.SetBattSetpoint(14000)
	b.Enable(true)
	b.Update(&fakeSource{vs: 19000, vb: 15000, is: 500}) // forces limit1

	b.Enable(false)
	if b.Enabled() || b.Pwm() != 0 || b.Limit1() || b.Limit2() {
		t.Fatalf("expected fully cleared state after disable")
	}
	last := status.words[len(status.words)-1]
	if last != 0 {
		t.Fatalf("expected final status word 0 on disable, got 0x%04X", last)
	}
}

func TestStepUpWhenBelowSetpointAndNotLimiting(t *testing.T) {
	b := New(nil)
	b.SetSolarSetpoint(18000)
	b.SetBattSetpoint(14000)
	b.Enable(true)
	start := b.Pwm()

	b.Update(&fakeSource{vs: 19000, is: 500, vb: 12000, ib: 100})
	if b.Pwm() != start+1 {
		t.Fatalf("pwm = %d, want %d (one step up)", b.Pwm(), start+1)
	}
}

func TestStepDownWhenAboveBattCeiling(t *testing.T) {
	b := New(nil)
	b.SetSolarSetpoint(18000)
	b.SetBattSetpoint(14000)
	b.Enable(true)
	start := b.Pwm()

	b.Update(&fakeSource{vs: 19000, is: 500, vb: 14100, ib: 100}) // vb > battSetpoint+hyst
	if !b.Limit1() {
		t.Fatalf("expected limit1 set for over-voltage battery")
	}
	if start > PwmMin && b.Pwm() != start-1 {
		t.Fatalf("pwm = %d, want %d (one step down)", b.Pwm(), start-1)
	}
}

func TestOverCurrentForcesLimit1(t *testing.T) {
	b := New(nil)
	b.SetSolarSetpoint(18000)
	b.SetBattSetpoint(14000)
	b.Enable(true)

	b.Update(&fakeSource{vs: 19000, is: iSolarMax + 1, vb: 12000})
	if !b.Limit1() {
		t.Fatalf("expected limit1 for solar current above iSolarMax")
	}
}

func TestGetEfficiencyTableLookup(t *testing.T) {
	cases := []struct {
		powerMw int
		want    int
	}{
		{0, 56},
		{250, 62},   // first point not exceeded by 250 itself (250<250 false) -> falls to next
		{249, 56},
		{40000, 92}, // above table range: last entry
	}
	for _, c := range cases {
		if got := GetEfficiency(c.powerMw); got != c.want {
			t.Fatalf("GetEfficiency(%d) = %d, want %d", c.powerMw, got, c.want)
		}
	}
}

func TestIsLimitingReflectsEitherFlag(t *testing.T) {
	b := New(nil)
	b.SetSolarSetpoint(18000)
	b.SetBattSetpoint(14000)
	b.Enable(true)
	if b.IsLimiting() {
		t.Fatalf("expected not limiting before any Update")
	}
	b.Update(&fakeSource{vs: 19000, is: 500, vb: 14100})
	if !b.IsLimiting() {
		t.Fatalf("expected limiting once limit1 set")
	}
}
