// Package led implements the status-indicator state machine: a short
// blink when idle or power is off, a current-scaled "breathing" pulse
// while charging, and priority-ordered multi-blink fault codes. It is
// driven from the fast (10 ms) tick.
package led

import "sync"

// EvalMs is the tick period Update is expected to be called at.
const EvalMs = 10

// Normal-state display periods and fault-blink period, ms.
const (
	poPeriodMs    = 10000 // power off / low-battery disabled
	idlePeriodMs  = 5000  // night or idle, not charging
	faultPeriodMs = 5000
	blinkOnMs     = 60
	blinkOffMs    = 240
	blinkPwm      = 160
)

// Pulse brightness scaling: peak brightness ranges from minPwm to 255 as
// solar current ranges from 0 to iSolarMax; numSteps sets the ramp
// granularity on each half of the pulse.
const (
	minPwm    = 32
	numSteps  = 64
	iSolarMax = 2000 // mA, buck.iSolarMax duplicated to avoid importing buck for one constant
)

// normalState is the display chosen absent any fault.
type normalState int

const (
	stInit normalState = iota
	stIdleChg
	stLowBatt
	stCharge
)

// Fault identifies a display-priority fault code; lower values are
// higher priority, matching the reference firmware's ordering.
type Fault int

const (
	FaultNone Fault = iota
	FaultBadBattery
	FaultMissingExtSensor
	FaultTempRange
)

func (f Fault) blinkCount() int {
	switch f {
	case FaultBadBattery:
		return 2
	case FaultMissingExtSensor:
		return 3
	case FaultTempRange:
		return 4
	default:
		return 5
	}
}

type blinkPhase int

const (
	blinkOff blinkPhase = iota
	blinkOn
	blinkWait
	pulseUp
	pulseDown
)

// Inputs is the per-tick snapshot of the rest of the system Led needs —
// deliberately plain fields rather than package references, so Led does
// not import power/charge/temp directly.
type Inputs struct {
	LowBattDisabled  bool // power.State() == OffLowBatt
	BadBattery       bool // power.BadBatt()
	ExtSensorMissing bool // temp.Result.ExtMissing
	TempLimited      bool // charge.IsTempLimited()
	IdleOrNight      bool // charge.State() is Idle or Night
	SolarIsMa        int  // charge.IsMa(), for pulse brightness scaling
}

// Led owns the display state machine.
type Led struct {
	mu sync.Mutex

	state normalState
	fault Fault
	phase blinkPhase

	curPwm         int
	totBlinkCount  int
	curBlinkCount  int
	curPeriod      int
	maxPeriod      int
	pulseMax       int
	pulseValueX256 int
	pulseIncX256   int
}

// New constructs Led and evaluates the initial display from in, matching
// the reference firmware's LED_Init (which resolves state immediately
// rather than waiting for the first tick).
func New(in Inputs) *Led {
	l := &Led{state: stInit, fault: FaultNone}
	l.evaluate(in)
	return l
}

// Intensity returns the current 8-bit LED brightness, 0 (off) to 255.
func (l *Led) Intensity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.curPwm
}

// Update advances the display state machine by one fast tick.
func (l *Led) Update(in Inputs) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evaluate(in)
}

func (l *Led) evaluate(in Inputs) {
	fault := faultInfo(in)

	if l.state == stFaultMarker {
		if fault == FaultNone {
			l.setNormalState(normalStateFor(in), in)
		} else if fault < l.fault {
			l.setupFault(fault, in)
		} else {
			l.doBlink()
		}
		return
	}

	if fault != FaultNone {
		l.setupFault(fault, in)
		return
	}

	want := normalStateFor(in)
	if l.state != want {
		l.setNormalState(want, in)
		return
	}
	if l.state == stCharge {
		l.doPulse(in)
	} else {
		l.doBlink()
	}
}

// stFaultMarker is a sentinel value outside normalState's defined range
// used to mark "currently displaying a fault", mirroring the reference
// firmware's single shared LED_curState variable.
const stFaultMarker normalState = -1

func faultInfo(in Inputs) Fault {
	switch {
	case in.BadBattery:
		return FaultBadBattery
	case in.ExtSensorMissing:
		return FaultMissingExtSensor
	case in.TempLimited:
		return FaultTempRange
	default:
		return FaultNone
	}
}

func normalStateFor(in Inputs) normalState {
	switch {
	case in.LowBattDisabled:
		return stLowBatt
	case in.IdleOrNight:
		return stIdleChg
	default:
		return stCharge
	}
}

func (l *Led) setNormalState(s normalState, in Inputs) {
	l.fault = FaultNone
	l.state = s
	switch s {
	case stIdleChg:
		l.setupBlink(idlePeriodMs, 1)
	case stLowBatt:
		l.setupBlink(poPeriodMs, 1)
	case stCharge:
		l.setupPulse(in)
	}
}

func (l *Led) setupFault(f Fault, in Inputs) {
	l.state = stFaultMarker
	if f == l.fault {
		return
	}
	l.fault = f
	l.setupBlink(faultPeriodMs, f.blinkCount())
}

func (l *Led) setConstIntensity(v int) {
	l.curPwm = v
}

func (l *Led) setupBlink(periodMs, count int) {
	l.curPwm = 0
	l.totBlinkCount = count
	l.curBlinkCount = 0
	l.maxPeriod = periodMs / EvalMs
	l.curPeriod = 0
	l.phase = blinkOff
}

func (l *Led) setupPulse(in Inputs) {
	t := (255 - minPwm) * in.SolarIsMa / iSolarMax
	t += minPwm
	if t > 255 {
		t = 255
	}
	l.pulseMax = t
	l.pulseIncX256 = (l.pulseMax << 8) / numSteps
	l.curPwm = 0
	l.pulseValueX256 = 0
	l.phase = pulseUp
}

func (l *Led) doBlink() {
	switch l.phase {
	case blinkOff:
		l.curPeriod++
		if l.curPeriod == blinkOffMs/EvalMs {
			l.curPeriod = 0
			l.phase = blinkOn
			l.setConstIntensity(blinkPwm)
		}
	case blinkOn:
		l.curPeriod++
		if l.curPeriod == blinkOnMs/EvalMs {
			l.curPeriod = 0
			l.setConstIntensity(0)
			l.curBlinkCount++
			if l.curBlinkCount == l.totBlinkCount {
				l.phase = blinkWait
			} else {
				l.phase = blinkOff
			}
		}
	case blinkWait:
		l.curPeriod++
		if l.curPeriod == l.maxPeriod {
			l.curPeriod = 0
			l.phase = blinkOff
			l.curBlinkCount = 0
		}
	default:
		l.phase = blinkOff
		l.curPeriod = 0
		l.curBlinkCount = 0
		l.setConstIntensity(0)
	}
}

func (l *Led) doPulse(in Inputs) {
	switch l.phase {
	case pulseUp:
		l.pulseValueX256 += l.pulseIncX256
		l.curPwm = l.pulseValueX256 >> 8
		if l.curPwm >= l.pulseMax {
			l.curPwm = l.pulseMax
			l.phase = pulseDown
		}
	case pulseDown:
		l.pulseValueX256 -= l.pulseIncX256
		if l.pulseValueX256 < 0 {
			l.pulseValueX256 = 0
		}
		l.curPwm = l.pulseValueX256 >> 8
		if l.pulseValueX256 == 0 {
			l.phase = pulseUp
			l.setupPulse(in) // re-sample brightness ceiling once per pulse
		}
	default:
		l.setupPulse(in)
	}
}
