// Package charge implements MPPT tracking and the seven-state charge
// machine: a periodic voltage sweep to locate the panel's maximum-power
// point, a perturb-and-observe tracker that rides it between sweeps, and
// the night/idle/scan/bulk/absorption/float progression with temperature
// gating and charge-time safety timers.
package charge

import (
	"sync"

	"github.com/devskill-org/mppt-charger-fw/buck"
)

// State is one of the seven charge states.
type State int

const (
	Night State = iota
	Idle
	VsRecover
	Scan
	Bulk
	Absorption
	Float
)

func (s State) String() string {
	switch s {
	case Night:
		return "Night"
	case Idle:
		return "Idle"
	case VsRecover:
		return "VsRecover"
	case Scan:
		return "Scan"
	case Bulk:
		return "Bulk"
	case Absorption:
		return "Absorption"
	case Float:
		return "Float"
	default:
		return "unknown"
	}
}

// IsValid reports whether s is one of the seven defined states.
func (s State) IsValid() bool {
	return s >= Night && s <= Float
}

// Voltage thresholds, mV, from the reference firmware's config.h.
const (
	VNightThresh  = 3500
	VMaxSolarV    = 21000
	VMinGoodSolar = 18000
	VMinSolarV    = 12000
	VDeltaChange  = 20
	VBadBattery   = 10500

	vMinIdle2FltLeadAcid = 12700
	vMinIdle2FltLiFePO4  = 13200

	ChgScanEndDelta = 1500
)

// Current/power thresholds.
const (
	IAbsCutoff = 300 // mA
	PMinThresh = 100 // mW
)

// MPPT step sizes, mV and mA.
const (
	MpptHiIStepMv  = 50
	MpptMidIStepMv = 100
	MpptLoIStepMv  = 200
	MpptHiIStepMa  = 200
	MpptLoIStepMa  = 100
	MpptScanStepMv = 200
)

// Tick-count timeouts. Charge runs entirely on the 250 ms slow tick, so
// these are counts of StateUpdate calls, not seconds.
const (
	WakeTimeout       = 60
	NightTimeout      = 300
	ChgRcvrPeriod     = 3
	MpptScanTimeout   = 600
	HighChargeTimeout = 36000
	LowProdTimeout    = 15
	AbsTermTimeout    = 30
)

// Over/under-temperature charge-suspension limits and hysteresis, tenths
// of °C. Charge is the sole owner of this gating — package temp only
// publishes the effective temperature and compensated thresholds.
const (
	TempLimitHighC10     = 500
	TempLimitLowLeadAcid = -200
	TempLimitLowLiFePO4  = 0
	TempLimitHystC10     = 50
)

// Channel indices match sampler.Channel's Vs/Is/Vb/Ib ordinals; duplicated
// here as plain ints so this package does not import sampler.
const (
	chVs = 0
	chIs = 1
	chVb = 2
	chIb = 3
)

// Buck is the subset of buck.Buck that Charge drives.
type Buck interface {
	SetSolarSetpoint(mv int)
	SetBattSetpoint(mv int)
	EnableBatteryLimit(en bool)
	Enable(en bool)
	Enabled() bool
	Pwm() int
	Limit2() bool
	IsLimiting() bool
	CurBattRegMv() int
}

// MeasurementSource is the subset of sampler.Sampler Charge needs, read
// through the locking accessor since Charge runs on its own slow tick,
// independent of Sampler's fast-tick goroutine.
type MeasurementSource interface {
	GetValue(ch int) int
}

// Charge owns the MPPT tracker and charge-state machine.
type Charge struct {
	mu sync.Mutex

	state       State
	tempLimited bool
	lifePO4     bool

	mpptEnable bool
	scanEnable bool

	lowProdCount int
	highCount    int
	absTermCount int
	timeoutCount int

	solarRegMv       int
	mpptStepMv       int
	compThreshMv     int
	scanEndMv        int
	maxPower         int
	maxScanVSetpoint int
	scanExitState    State

	lastPowerMw int
	lastSolarMv int

	vsMv, isMa, vbMv, ibMa, icMa, solarPowerMw int

	buck Buck
}

// New constructs Charge. vsMv is the panel voltage at boot (selects Night
// vs. Idle as the entry state) and floatMv seeds the initial compensated
// threshold before the first slow tick runs. lifePO4 selects the low-
// temperature charging limit and the idle-to-float voltage crossover.
func New(lifePO4 bool, vsMv, floatMv int, b Buck) *Charge {
	c := &Charge{
		lifePO4:      lifePO4,
		solarRegMv:   VMinGoodSolar,
		mpptStepMv:   MpptLoIStepMv,
		compThreshMv: floatMv,
		buck:         b,
	}
	if vsMv < VNightThresh+VDeltaChange {
		c.state = Night
	} else {
		c.state = Idle
	}
	return c
}

// State returns the current charge state.
func (c *Charge) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsNight reports whether Charge is in the Night state.
func (c *Charge) IsNight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Night
}

// NotCharging reports whether Charge is in Night or Idle — the condition
// under which Power's low-battery timeout is held at its ceiling rather
// than counted down.
func (c *Charge) NotCharging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Night || c.state == Idle
}

// IsTempLimited reports whether charging is currently suspended for
// being outside the temperature window.
func (c *Charge) IsTempLimited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempLimited
}

// VsMv, IsMa, VbMv, IbMa, IcMa and MpptMv return the latest measurement
// snapshot and the current MPPT solar-voltage setpoint, for register
// mirroring.
func (c *Charge) VsMv() int  { c.mu.Lock(); defer c.mu.Unlock(); return c.vsMv }
func (c *Charge) IsMa() int  { c.mu.Lock(); defer c.mu.Unlock(); return c.isMa }
func (c *Charge) VbMv() int  { c.mu.Lock(); defer c.mu.Unlock(); return c.vbMv }
func (c *Charge) IbMa() int  { c.mu.Lock(); defer c.mu.Unlock(); return c.ibMa }
func (c *Charge) IcMa() int  { c.mu.Lock(); defer c.mu.Unlock(); return c.icMa }
func (c *Charge) MpptMv() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.solarRegMv
}

// CompMv returns the compensated threshold currently commanded to Buck.
func (c *Charge) CompMv() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compThreshMv
}

// MpptUpdate reads the current measurement snapshot, runs whichever of
// the scan or perturb-and-observe sub-algorithms is active, and updates
// Buck's solar setpoint. Must be called once per slow tick, before
// StateUpdate.
func (c *Charge) MpptUpdate(src MeasurementSource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vsMv = src.GetValue(chVs)
	c.isMa = src.GetValue(chIs)
	c.vbMv = src.GetValue(chVb)
	c.ibMa = src.GetValue(chIb)
	c.solarPowerMw = c.vsMv * c.isMa / 1000
	c.icMa = c.computeChargeCurrent()

	switch {
	case c.scanEnable:
		if c.solarPowerMw > c.maxPower {
			c.maxPower = c.solarPowerMw
			c.maxScanVSetpoint = c.vsMv
		}
		c.solarRegMv -= MpptScanStepMv
		c.buck.SetSolarSetpoint(c.solarRegMv)
		if c.solarRegMv < c.scanEndMv {
			c.scanEnable = false
		}

	case c.mpptEnable:
		if c.buck.IsLimiting() {
			// Let the setpoint follow the panel so resumption starts
			// from a realistic value.
			c.solarRegMv = c.vsMv
		} else {
			switch {
			case c.isMa > MpptHiIStepMa:
				c.mpptStepMv = MpptHiIStepMv
			case c.isMa > MpptLoIStepMa:
				c.mpptStepMv = MpptMidIStepMv
			default:
				c.mpptStepMv = MpptLoIStepMv
			}

			if c.solarRegMv >= VMaxSolarV && c.buck.Pwm() == 0 {
				// Wandered upward until Buck stopped operating — force
				// the setpoint back down until it restarts.
				c.solarRegMv = c.vsMv - c.mpptStepMv
				if c.solarRegMv < VMinSolarV {
					c.solarRegMv = VMinSolarV
				}
			} else {
				deltaVpos := c.vsMv >= c.lastSolarMv
				if c.solarPowerMw > c.lastPowerMw {
					if deltaVpos {
						c.incMpptRegVoltage()
					} else {
						c.decMpptRegVoltage()
					}
				} else {
					if deltaVpos {
						c.decMpptRegVoltage()
					} else {
						c.incMpptRegVoltage()
					}
				}
			}
			c.buck.SetSolarSetpoint(c.solarRegMv)
		}
	}

	c.lastPowerMw = c.solarPowerMw
	c.lastSolarMv = c.vsMv
}

func (c *Charge) computeChargeCurrent() int {
	if !c.buck.Enabled() || c.vbMv <= 0 {
		return -c.ibMa
	}
	t := (c.vsMv * c.isMa) / c.vbMv
	t = t * buck.GetEfficiency(c.solarPowerMw) / 100
	return t - c.ibMa
}

func (c *Charge) incMpptRegVoltage() {
	c.solarRegMv += c.mpptStepMv
	if c.solarRegMv > VMaxSolarV {
		c.solarRegMv = VMaxSolarV
	}
}

func (c *Charge) decMpptRegVoltage() {
	c.solarRegMv -= c.mpptStepMv
	if c.solarRegMv < VMinSolarV {
		c.solarRegMv = VMinSolarV
	}
}

// StateUpdate advances the charge state machine by one slow tick.
// compBulkMv/compFloatMv and effectiveTempC10 come from temp.Compensator's
// latest result; pctrlSet is the "power only at night" jumper input.
// MpptUpdate must have already run this tick.
func (c *Charge) StateUpdate(compBulkMv, compFloatMv, effectiveTempC10 int, pctrlSet bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Bulk || c.state == Absorption {
		c.compThreshMv = compBulkMv
		if c.vbMv > compFloatMv+VDeltaChange {
			c.highCount++
			if c.highCount >= HighChargeTimeout {
				c.setState(Float)
			}
		} else {
			c.highCount = 0
		}
	} else {
		c.compThreshMv = compFloatMv
	}

	lowLimit := TempLimitLowLeadAcid
	if c.lifePO4 {
		lowLimit = TempLimitLowLiFePO4
	}
	if c.tempLimited {
		if effectiveTempC10 < TempLimitHighC10-TempLimitHystC10 && effectiveTempC10 > lowLimit+TempLimitHystC10 {
			c.tempLimited = false
		}
	} else if effectiveTempC10 > TempLimitHighC10 || effectiveTempC10 < lowLimit {
		c.tempLimited = true
		if !(c.state == Night || c.state == Idle) {
			c.setState(Idle)
		}
	}

	if c.state == Bulk || c.state == Absorption || c.state == Float {
		if c.vbMv < VBadBattery {
			c.setState(Idle)
		} else {
			c.timeoutCount++
			switch {
			case c.timeoutCount == MpptScanTimeout:
				if !c.buck.IsLimiting() {
					c.scanExitState = c.state
					c.setState(VsRecover)
				} else {
					c.timeoutCount = 0
				}
			case c.solarPowerMw < PMinThresh && !c.buck.IsLimiting():
				c.lowProdCount++
				if c.lowProdCount >= LowProdTimeout {
					c.setState(Idle)
				}
			default:
				c.lowProdCount = 0
			}
		}
	}

	switch c.state {
	case Night:
		if c.vsMv > VNightThresh+VDeltaChange {
			if !pctrlSet {
				c.setState(Idle)
			} else {
				c.timeoutCount++
				if c.timeoutCount == WakeTimeout {
					c.setState(Idle)
				}
			}
		} else {
			c.timeoutCount = 0
		}

	case Idle:
		if c.vsMv < VNightThresh-VDeltaChange {
			c.timeoutCount++
			if c.timeoutCount == NightTimeout {
				c.setState(Night)
			}
		} else {
			c.timeoutCount = 0
			if c.vsMv > VMinGoodSolar && c.vbMv >= VBadBattery && !c.tempLimited {
				c.setState(Scan)
				minIdle2Flt := vMinIdle2FltLeadAcid
				if c.lifePO4 {
					minIdle2Flt = vMinIdle2FltLiFePO4
				}
				if c.vbMv < minIdle2Flt {
					c.scanExitState = Bulk
				} else {
					c.scanExitState = Float
				}
			}
		}

	case VsRecover:
		c.timeoutCount++
		if c.timeoutCount == ChgRcvrPeriod {
			c.setState(Scan)
		}

	case Scan:
		if !c.scanEnable {
			// Scan done, restart charging: force Buck to reseed by
			// disabling it here and re-enabling via setState's regulate.
			c.buck.Enable(false)
			c.solarRegMv = c.maxScanVSetpoint
			if c.scanExitState != Float {
				// Compensation logic reset the threshold to float while
				// scanning; restore it to bulk/absorption if needed.
				c.compThreshMv = compBulkMv
			}
			c.setState(c.scanExitState)
		}

	case Bulk:
		c.adjustCompBattV()
		if c.vbMv >= c.compThreshMv {
			c.setState(Absorption)
		}

	case Absorption:
		c.adjustCompBattV()
		if c.icMa < IAbsCutoff && c.buck.Limit2() {
			c.absTermCount++
			if c.absTermCount == AbsTermTimeout {
				c.setState(Float)
			}
		} else {
			c.absTermCount = 0
		}

	case Float:
		c.adjustCompBattV()

	default:
		c.setState(Idle)
	}
}

// setState must be called with mu held. It mirrors the reference
// firmware's _CHARGE_SetState: resetting the relevant timers and
// (re)configuring Buck for the new state.
func (c *Charge) setState(newSt State) {
	c.state = newSt
	switch newSt {
	case Night:
		c.setRegulate(false)

	case Idle:
		c.timeoutCount = 0
		c.setRegulate(false)

	case VsRecover:
		c.timeoutCount = 0
		c.setRegulate(false)

	case Scan:
		c.timeoutCount = 0
		c.startScan(c.vbMv+ChgScanEndDelta, c.vsMv)

	case Bulk:
		c.lowProdCount = 0
		c.highCount = 0
		c.setRegulate(true)

	case Absorption:
		c.lowProdCount = 0
		c.absTermCount = 0
		c.setRegulate(true)

	case Float:
		c.lowProdCount = 0
		c.setRegulate(true)
	}
}

func (c *Charge) setRegulate(en bool) {
	if en {
		c.buck.SetSolarSetpoint(c.solarRegMv)
		c.buck.SetBattSetpoint(c.compThreshMv)
		c.buck.EnableBatteryLimit(true)
	}
	c.buck.Enable(en)
	c.mpptEnable = en
}

func (c *Charge) adjustCompBattV() {
	if c.compThreshMv != c.buck.CurBattRegMv() {
		c.buck.SetBattSetpoint(c.compThreshMv)
	}
}

func (c *Charge) startScan(lowMv, highMv int) {
	c.scanEnable = true
	c.scanEndMv = lowMv
	c.solarRegMv = highMv
	c.maxPower = 0
	c.mpptEnable = false
	c.buck.SetSolarSetpoint(highMv)
	c.buck.EnableBatteryLimit(false)
	c.buck.Enable(true)
}
