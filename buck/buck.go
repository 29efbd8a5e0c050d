// Package buck implements the synchronous buck-converter control law: a
// bounded ±1-step integer PWM controller regulating panel voltage to an
// MPPT setpoint while enforcing battery-side over-voltage and
// over-current ceilings.
package buck

import "sync"

// PWM range.
const (
	PwmMin = 0
	PwmMax = 1023
)

// V_BUCK_HYST and I_SOLAR_MAX from the reference firmware's config.h.
const (
	hystMv    = 15
	iSolarMax = 2000 // mA
)

// Efficiency lookup table: efficiency (percent) as a function of input
// power (mW), determined by hardware measurement on the reference board.
// GetEfficiency returns the value for the first power point strictly
// above the queried power.
var effPowerPoints = [...]int{
	250, 375, 500, 750, 1000, 1250, 1500, 1750, 2000, 2250, 2500, 2750,
	3000, 3250, 3500, 4000, 5000, 6000, 7500, 11500, 25000, 35000,
}

var effValues = [...]int{
	56, 62, 67, 71, 75, 77, 78, 80, 81, 83, 84, 85,
	86, 87, 88, 89, 90, 91, 92, 93, 93, 92,
}

// StatusPublisher receives the buck status word whenever it changes, for
// mirroring onto the register bus. bit0=limit1, bit1=limit2,
// bits[15:8]=pwm[9:2].
type StatusPublisher interface {
	SetBuckStatus(word uint16)
}

// MeasurementSource is the subset of sampler.Sampler Buck needs, read
// through the no-disable accessor since Buck.Update runs inline from the
// same fast-tick call as the sample producer.
type MeasurementSource interface {
	GetValueForISR(ch int) int
}

// Channel indices match sampler.Channel's Vs/Is/Vb/Ib ordinals; duplicated
// here as plain ints so this package does not import sampler (Buck is
// consumed by Sampler, not the other way around).
const (
	chVs = 0
	chIs = 1
	chVb = 2
	chIb = 3
)

// Buck holds the regulator's control state.
type Buck struct {
	mu sync.Mutex

	pwm     int
	enabled bool

	solarSetpointMv int
	battSetpointMv  int
	battLimitEnable bool

	limit1 bool
	limit2 bool

	status StatusPublisher
}

// New constructs a disabled Buck publishing status changes to status.
func New(status StatusPublisher) *Buck {
	return &Buck{
		battLimitEnable: true,
		status:          status,
	}
}

// SetSolarSetpoint atomically updates the panel-voltage setpoint Update
// regulates to.
func (b *Buck) SetSolarSetpoint(mv int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.solarSetpointMv = mv
}

// SetBattSetpoint atomically updates the battery-side ceiling voltage.
func (b *Buck) SetBattSetpoint(mv int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.battSetpointMv = mv
}

// SolarSetpoint returns the current panel-voltage setpoint.
func (b *Buck) SolarSetpoint() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.solarSetpointMv
}

// EnableBatteryLimit toggles whether the battery-side ceiling is enforced.
func (b *Buck) EnableBatteryLimit(en bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.battLimitEnable = en
}

// Enabled reports whether the regulator is currently driving the output.
func (b *Buck) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Pwm returns the current duty value, [0,1023].
func (b *Buck) Pwm() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pwm
}

// Limit1 reports the over-voltage/over-current limit flag.
func (b *Buck) Limit1() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit1
}

// Limit2 reports the at-or-above-ceiling flag.
func (b *Buck) Limit2() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit2
}

// IsLimiting reports whether either limit flag is currently set — Charge
// uses this to suppress MPPT P&O math and the periodic scan while the
// battery side, not the panel, is constraining output.
func (b *Buck) IsLimiting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit1 || b.limit2
}

// CurBattRegMv returns the battery-side setpoint Update is currently
// regulating against.
func (b *Buck) CurBattRegMv() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.battSetpointMv
}

// Enable turns the regulator on or off. On enable from disabled, it seeds
// pwm with a continuous-conduction first guess before engaging — on
// disable it clears the enable flag before clearing pwm and flags, the
// asymmetric ordering the reference firmware uses.
func (b *Buck) Enable(en bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if en {
		if !b.enabled {
			guess := PwmMax
			if b.solarSetpointMv > 0 {
				guess = (PwmMax * b.battSetpointMv) / b.solarSetpointMv
			}
			if guess > PwmMax {
				guess = PwmMax
			}
			if guess < PwmMin {
				guess = PwmMin
			}
			b.pwm = guess
			b.enabled = true
			b.publishStatusLocked()
		}
		return
	}

	if b.enabled {
		b.enabled = false
		b.pwm = 0
		b.limit1 = false
		b.limit2 = false
		if b.status != nil {
			b.status.SetBuckStatus(0)
		}
	}
}

// Update runs every 5 ms (every 20th sampler fast-tick fire). When
// enabled it reads Vs/Vb/Is through src, computes the limit flags, takes
// at most one ±1 PWM step, and republishes the status word.
func (b *Buck) Update(src MeasurementSource) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled {
		return
	}

	solarMv := src.GetValueForISR(chVs)
	battMv := src.GetValueForISR(chVb)
	solarMa := src.GetValueForISR(chIs)

	b.limit1 = (b.battLimitEnable && battMv > b.battSetpointMv+hystMv) || solarMa > iSolarMax
	b.limit2 = b.battLimitEnable && battMv >= b.battSetpointMv-hystMv

	switch {
	case solarMv < b.solarSetpointMv || b.limit1:
		if b.pwm > PwmMin {
			b.pwm--
		}
	case solarMv > b.solarSetpointMv && !b.limit2:
		if b.pwm < PwmMax {
			b.pwm++
		}
	}

	b.publishStatusLocked()
}

func (b *Buck) publishStatusLocked() {
	if b.status == nil {
		return
	}
	word := uint16((b.pwm>>2)&0xFF) << 8
	if b.limit1 {
		word |= 0x0001
	}
	if b.limit2 {
		word |= 0x0002
	}
	b.status.SetBuckStatus(word)
}

// GetEfficiency returns the efficiency percentage for input power
// powerMw, taken from the first table entry whose power threshold exceeds
// powerMw (the last entry is used at or above the table's last point).
func GetEfficiency(powerMw int) int {
	for i, threshold := range effPowerPoints {
		if powerMw < threshold {
			return effValues[i]
		}
	}
	return effValues[len(effValues)-1]
}
