package led

import "testing"

func TestFaultPriorityBadBatteryWinsOverTempRange(t *testing.T) {
	l := New(Inputs{BadBattery: true, TempLimited: true})
	if l.fault != FaultBadBattery {
		t.Fatalf("fault = %v, want FaultBadBattery", l.fault)
	}

	// A higher-priority fault preempts a lower one already displayed.
	l2 := New(Inputs{TempLimited: true})
	if l2.fault != FaultTempRange {
		t.Fatalf("fault = %v, want FaultTempRange", l2.fault)
	}
	l2.Update(Inputs{BadBattery: true, TempLimited: true})
	if l2.fault != FaultBadBattery {
		t.Fatalf("fault after higher-priority fault arrived = %v, want FaultBadBattery", l2.fault)
	}
}

func TestFaultClearsToNormalState(t *testing.T) {
	l := New(Inputs{BadBattery: true})
	l.Update(Inputs{IdleOrNight: true})
	if l.state != stIdleChg {
		t.Fatalf("state after fault clears = %v, want stIdleChg", l.state)
	}
}

func TestPulseBrightnessScalesWithSolarCurrent(t *testing.T) {
	lowCurrent := New(Inputs{SolarIsMa: 0})
	if lowCurrent.pulseMax != minPwm {
		t.Fatalf("pulseMax at 0 mA = %d, want %d", lowCurrent.pulseMax, minPwm)
	}

	highCurrent := New(Inputs{SolarIsMa: iSolarMax})
	if highCurrent.pulseMax != 255 {
		t.Fatalf("pulseMax at iSolarMax = %d, want 255", highCurrent.pulseMax)
	}
}

func TestPulseRampsUpThenDown(t *testing.T) {
	l := New(Inputs{SolarIsMa: iSolarMax})
	if l.state != stCharge {
		t.Fatalf("expected stCharge for charging inputs")
	}

	sawPeak := false
	sawDown := false
	for i := 0; i < numSteps*2+2; i++ {
		l.Update(Inputs{SolarIsMa: iSolarMax})
		if sawPeak && l.Intensity() < l.pulseMax {
			sawDown = true
		}
		if l.Intensity() == l.pulseMax {
			sawPeak = true
		}
	}
	if !sawPeak {
		t.Fatalf("pulse never reached its peak brightness")
	}
	if !sawDown {
		t.Fatalf("pulse never ramped down after its peak")
	}
}

func TestIdleBlinkSingleFlashPerPeriod(t *testing.T) {
	l := New(Inputs{IdleOrNight: true})
	onTicks := 0
	for i := 0; i < idlePeriodMs/EvalMs; i++ {
		l.Update(Inputs{IdleOrNight: true})
		if l.Intensity() == blinkPwm {
			onTicks++
		}
	}
	if onTicks != blinkOnMs/EvalMs {
		t.Fatalf("lit ticks during idle blink period = %d, want %d (one flash)", onTicks, blinkOnMs/EvalMs)
	}
}
