package system

import (
	"math"
	"sync"
	"time"

	"github.com/devskill-org/mppt-charger-fw/buck"
	"github.com/devskill-org/mppt-charger-fw/config"
	"github.com/devskill-org/mppt-charger-fw/sampler"
)

// SyntheticBackend stands in for the reference firmware's ADC + panel +
// battery hardware: it implements sampler.Backend by modeling a PV panel's
// single-peaked power curve and a slowly-integrating battery voltage,
// reacting to the real Buck controller's PWM duty exactly as a physical
// buck converter's input voltage would. This is harness/environment code,
// not firmware: unlike every control package, it is allowed float64 math
// (see DESIGN.md) because spec.md's no-floating-point Non-goal binds the
// control arithmetic, not the simulated world around it.
type SyntheticBackend struct {
	mu sync.Mutex

	vocMv  int // configured open-circuit voltage at full irradiance
	vmppMv int // configured maximum-power voltage at full irradiance
	iscMa  int // configured short-circuit current at full irradiance

	irradiance float64 // 0 (night) .. 1 (full sun)

	battMv int
	loadMa int

	tiC10, teC10 int

	buck *buck.Buck
}

// NewSyntheticBackend constructs a backend from the harness configuration,
// wired to read the live PWM duty from b.
func NewSyntheticBackend(cfg *config.Config, b *buck.Buck) *SyntheticBackend {
	return &SyntheticBackend{
		vocMv:  cfg.SimPanelOpenCircuitMv,
		vmppMv: cfg.SimPanelMpptMv,
		iscMa:  cfg.SimPanelShortCircuitMa,
		battMv: cfg.SimBatteryMv,
		loadMa: quiescentLoadMa,
		tiC10:  ambientBaseC10,
		teC10:  ambientBaseC10 - extSensorOffsetC10,
		buck:   b,
	}
}

const (
	quiescentLoadMa    = 50
	switchedLoadMa     = 1500
	ambientBaseC10     = 200 // 20.0 degC baseline, before irradiance warming
	ambientSwingC10    = 100 // +10.0 degC at full irradiance
	extSensorOffsetC10 = 20  // external sensor runs slightly cooler, nominally
)

// Read implements sampler.Backend.
func (s *SyntheticBackend) Read(ch sampler.Channel) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	effVoc := int(float64(s.vocMv) * s.irradiance)

	switch ch {
	case sampler.Vs:
		return s.panelVoltageLocked(effVoc)
	case sampler.Is:
		vs := s.panelVoltageLocked(effVoc)
		return s.panelCurrentLocked(effVoc, vs)
	case sampler.Vb:
		return s.battMv
	case sampler.Ib:
		return s.loadMa
	case sampler.Ti:
		return s.tiC10
	case sampler.Te:
		return s.teC10
	default:
		return 0
	}
}

// panelVoltageLocked derives the panel's instantaneous operating voltage
// from the buck converter's duty: an ideal synchronous buck holds
// Vbatt = Vpanel * duty, so with Vbatt roughly fixed on the timescale of
// one sample, Vpanel = Vbatt / duty. Disabled or zero duty floats the
// panel to its (irradiance-scaled) open-circuit voltage.
func (s *SyntheticBackend) panelVoltageLocked(effVoc int) int {
	if effVoc <= 0 {
		return 0
	}
	if s.buck == nil || !s.buck.Enabled() || s.buck.Pwm() <= 0 {
		return effVoc
	}
	vs := s.battMv * buck.PwmMax / s.buck.Pwm()
	if vs > effVoc {
		vs = effVoc
	}
	if vs < 0 {
		vs = 0
	}
	return vs
}

// panelCurrentLocked evaluates the panel's I-V curve at vs. The curve is
// shaped so its power maximum falls exactly at s.vmppMv: choosing the
// exponent n = (Voc-Vmpp)/Vmpp makes d/dVs[Vs*(1-Vs/Voc)^n] vanish at
// Vs=Vmpp.
func (s *SyntheticBackend) panelCurrentLocked(effVoc, vs int) int {
	if effVoc <= 0 || vs >= effVoc || s.vmppMv <= 0 {
		return 0
	}
	effIsc := float64(s.iscMa) * s.irradiance
	n := (float64(effVoc) - float64(s.vmppMv)) / float64(s.vmppMv)
	ratio := 1 - float64(vs)/float64(effVoc)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return int(effIsc * math.Pow(ratio, n))
}

// SetIrradiance updates the 0..1 sun-intensity factor driving both the
// panel curve and the ambient-temperature model.
func (s *SyntheticBackend) SetIrradiance(f float64) {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.irradiance = f
	s.tiC10 = ambientBaseC10 + int(ambientSwingC10*f)
	s.teC10 = s.tiC10 - extSensorOffsetC10
}

// SetLoadEnabled toggles the simulated switched-load current on top of
// the fixed quiescent draw.
func (s *SyntheticBackend) SetLoadEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.loadMa = quiescentLoadMa + switchedLoadMa
	} else {
		s.loadMa = quiescentLoadMa
	}
}

// SimulateMissingExternalSensor forces Te to a reading spec.md's
// ext_missing test (Te < -42.5 degC) will detect, for exercising that
// fault path on demand.
func (s *SyntheticBackend) SimulateMissingExternalSensor(missing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if missing {
		s.teC10 = -500
	} else {
		s.teC10 = s.tiC10 - extSensorOffsetC10
	}
}

// SimulateExternalTemperature overrides Te directly, for exercising the
// over-temperature fault path on demand (spec.md §8's "Over-temperature"
// end-to-end scenario).
func (s *SyntheticBackend) SimulateExternalTemperature(tenthsC int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teC10 = tenthsC
}

// IntegrateBattery nudges the simulated battery terminal voltage toward
// (or away from) its charged rail based on the net charge current Charge
// last estimated, over elapsed wall time dt. The gain is deliberately
// tiny: this models a battery with real capacity, not an instant voltage
// source, so the charge/absorption/float progression takes many slow
// ticks exactly as it would on real hardware.
func (s *SyntheticBackend) IntegrateBattery(icMa int, dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	const gainMvPerMaSecond = 0.0006
	s.battMv += int(float64(icMa) * dt.Seconds() * gainMvPerMaSecond)
	if s.battMv < 9000 {
		s.battMv = 9000
	}
	if s.battMv > 15500 {
		s.battMv = 15500
	}
}

// BattMv returns the current simulated battery terminal voltage, for
// status logging.
func (s *SyntheticBackend) BattMv() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.battMv
}

// Irradiance returns the current 0..1 sun-intensity factor, for telemetry.
func (s *SyntheticBackend) Irradiance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.irradiance
}
