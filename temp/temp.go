// Package temp tracks the internal/external temperature readings, detects
// a missing external sensor, and derives temperature-compensated charging
// thresholds. The over/under-temperature charge-suspension hysteresis is
// owned by package charge, which is the sole consumer of the effective
// temperature this package publishes.
package temp

import "github.com/devskill-org/mppt-charger-fw/utils"

// Missing-external-sensor detection thresholds.
const (
	extMissingBelowC10 = -425 // -42.5 °C
	extDiffThreshC10    = 200 // 20.0 °C
)

// Reference temperature for compensation, 25.0 °C, and the per-mille
// compensation slopes (mV per 0.1 °C * 1000), negative because higher
// temperature lowers the setpoint. LiFePO4 uses zero compensation.
const (
	refTempC10   = 250
	bulkSlopeX10  = -300
	floatSlopeX10 = -198
)

// Chemistry selects which compensation slopes apply.
type Chemistry int

const (
	LeadAcid Chemistry = iota
	LiFePO4
)

// Compensator derives comp_bulk_mv/comp_float_mv from the currently
// effective temperature and the persisted bulk/float thresholds.
type Compensator struct {
	chemistry Chemistry

	extMissing bool
}

// New constructs a Compensator for the given battery chemistry, which
// selects the compensation slope (LiFePO4 applies none).
func New(chemistry Chemistry) *Compensator {
	return &Compensator{chemistry: chemistry}
}

// Result is the per-tick output of Update.
type Result struct {
	EffectiveC10 int
	ExtMissing   bool
	CompBulkMv   int
	CompFloatMv  int
}

// Update runs once per slow tick. tiC10/teC10 are the averaged internal
// and external temperatures; bulkMv/floatMv are the current persisted
// thresholds.
func (c *Compensator) Update(tiC10, teC10, bulkMv, floatMv int) Result {
	c.extMissing = teC10 < extMissingBelowC10 && utils.AbsI(tiC10-teC10) > extDiffThreshC10

	effective := teC10
	if c.extMissing {
		effective = tiC10
	}

	bulkSlope, floatSlope := bulkSlopeX10, floatSlopeX10
	if c.chemistry == LiFePO4 {
		bulkSlope, floatSlope = 0, 0
	}

	return Result{
		EffectiveC10: effective,
		ExtMissing:   c.extMissing,
		CompBulkMv:   compensate(bulkMv, effective, bulkSlope),
		CompFloatMv:  compensate(floatMv, effective, floatSlope),
	}
}

// compensate applies Δ = (T_eff - 250) * slope/1000, rounded half-up at the
// 0.5 mV boundary, to baseMv.
func compensate(baseMv, effectiveC10, slopeX10 int) int {
	deltaX10 := (effectiveC10 - refTempC10) * slopeX10
	// deltaX10 is in units of 0.1 mV * 10 = mV*100 scaled by slope
	// definition; divide by 1000 with round-half-up (slopes are already
	// expressed so that deltaX10/1000 yields whole mV).
	return baseMv + roundDiv(deltaX10, 1000)
}

func roundDiv(numerator, denominator int) int {
	if numerator >= 0 {
		return (numerator + denominator/2) / denominator
	}
	return -((-numerator + denominator/2) / denominator)
}
