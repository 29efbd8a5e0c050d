// Package param holds the four host-writable charging thresholds.
//
// All four values are validated on write and clamped into their documented
// range; pwroff_mv's upper bound is not a constant but whatever pwron_mv
// currently holds, so its setter must read live state rather than a fixed
// limit.
package param

import (
	"sync"

	"github.com/devskill-org/mppt-charger-fw/utils"
)

// BatteryType selects the default threshold set at boot. It is read once
// from a jumper/pin input and never changes at runtime.
type BatteryType int

const (
	LeadAcid BatteryType = iota
	LiFePO4
)

func (t BatteryType) String() string {
	switch t {
	case LeadAcid:
		return "lead_acid"
	case LiFePO4:
		return "lifepo4"
	default:
		return "unknown"
	}
}

// Index identifies one of the four persisted thresholds for indexed
// get/set access, in the same order as the register-bus offsets
// bus.OffsetBulk, bus.OffsetFloat, bus.OffsetPwroff and bus.OffsetPwron.
// It is a plain int alias (not a distinct named type) so *Params satisfies
// bus.ParamStore without an adapter.
type Index = int

const (
	Bulk Index = iota
	Float
	PwrOff
	PwrOn
)

// Range bounds, mV. See spec.md §3.
const (
	BulkMin, BulkMax     = 14000, 15000
	FloatMin, FloatMax   = 13000, 14000
	PwrOffMin            = 11000
	PwrOnMin, PwrOnMax   = 12000, 15000
)

// Battery-type-dependent defaults, mV. Lead-acid and LiFePO4 bulk/pwron
// defaults differ; float and pwroff defaults do not.
const (
	bulkDefaultLeadAcid = 14700
	bulkDefaultLiFePO4  = 14400
	floatDefault        = 13650
	pwroffDefault       = 11500
	pwronDefaultLeadAcid = 12500
	pwronDefaultLiFePO4  = 13600
)

// Params is the atomically-accessed set of four persisted thresholds.
// Every accessor takes mu, standing in for the short bus-interrupt-disable
// critical section the reference firmware uses around these fields.
type Params struct {
	mu       sync.Mutex
	bulkMv   int
	floatMv  int
	pwroffMv int
	pwronMv  int
}

// New constructs Params with the defaults for the given battery type.
func New(batteryType BatteryType) *Params {
	p := &Params{}
	switch batteryType {
	case LiFePO4:
		p.bulkMv = bulkDefaultLiFePO4
		p.pwronMv = pwronDefaultLiFePO4
	default:
		p.bulkMv = bulkDefaultLeadAcid
		p.pwronMv = pwronDefaultLeadAcid
	}
	p.floatMv = floatDefault
	p.pwroffMv = pwroffDefault
	return p
}

// BulkMv returns the current bulk threshold, mV.
func (p *Params) BulkMv() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bulkMv
}

// FloatMv returns the current float threshold, mV.
func (p *Params) FloatMv() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.floatMv
}

// PwroffMv returns the current load-off threshold, mV.
func (p *Params) PwroffMv() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pwroffMv
}

// PwronMv returns the current load-on threshold, mV.
func (p *Params) PwronMv() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pwronMv
}

// SetIndexedValue validates and stores value for the given index, clamping
// it into range. It never errors: an out-of-range write is clamped, per
// spec.md §7 ("Configuration range error").
func (p *Params) SetIndexedValue(idx Index, value int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch idx {
	case Bulk:
		p.bulkMv = utils.ClampI(value, BulkMin, BulkMax)
	case Float:
		p.floatMv = utils.ClampI(value, FloatMin, FloatMax)
	case PwrOff:
		// Upper bound is whatever pwron currently is, not a constant.
		p.pwroffMv = utils.ClampI(value, PwrOffMin, p.pwronMv)
	case PwrOn:
		p.pwronMv = utils.ClampI(value, PwrOnMin, PwrOnMax)
		// If pwron dropped below the stored pwroff, pull pwroff down too
		// so the invariant pwroff <= pwron never breaks.
		if p.pwroffMv > p.pwronMv {
			p.pwroffMv = p.pwronMv
		}
	}
}

// GetIndexedValue reads the given threshold by index, for bus register
// mirroring.
func (p *Params) GetIndexedValue(idx Index) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch idx {
	case Bulk:
		return p.bulkMv
	case Float:
		return p.floatMv
	case PwrOff:
		return p.pwroffMv
	case PwrOn:
		return p.pwronMv
	default:
		return 0
	}
}
