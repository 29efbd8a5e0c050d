package system

import (
	"time"

	"github.com/devskill-org/mppt-charger-fw/bus"
	"github.com/devskill-org/mppt-charger-fw/temp"
)

// Snapshot is the per-slow-tick telemetry frame published over the
// websocket feed and consulted internally (e.g. the fast tick's LED
// fault evaluation needs the last ExtMissing reading without re-running
// temp.Compensator itself).
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	ChargeState string `json:"charge_state"`
	PowerState  string `json:"power_state"`

	VsMv   int `json:"vs_mv"`
	IsMa   int `json:"is_ma"`
	VbMv   int `json:"vb_mv"`
	IbMa   int `json:"ib_ma"`
	IcMa   int `json:"ic_ma"`
	MpptMv int `json:"mppt_mv"`
	CompMv int `json:"comp_mv"`

	TiC10 int `json:"ti_c10"`
	TeC10 int `json:"te_c10"`

	BuckEnabled bool `json:"buck_enabled"`
	BuckPwm     int  `json:"buck_pwm"`
	BuckLimit2  bool `json:"buck_limit2"`

	ExtMissing  bool `json:"ext_missing"`
	TempLimited bool `json:"temp_limited"`
	BadBatt     bool `json:"bad_batt"`
	PwrEn       bool `json:"pwr_en"`
	AlertN      bool `json:"alert_n"`

	Irradiance float64 `json:"irradiance"`
}

// snapshotLocked assembles a Snapshot from the just-published Status and
// temp.Result, plus the raw tiC10/teC10 readings and the backend's
// current irradiance factor. Caller must hold s.mu.
func (s *System) snapshotLocked(status bus.Status, tempResult temp.Result, tiC10, teC10 int) Snapshot {
	return Snapshot{
		Timestamp:   time.Now(),
		ChargeState: s.chargeFS.State().String(),
		PowerState:  s.powerFS.State().String(),

		VsMv:   s.chargeFS.VsMv(),
		IsMa:   s.chargeFS.IsMa(),
		VbMv:   s.chargeFS.VbMv(),
		IbMa:   s.chargeFS.IbMa(),
		IcMa:   s.chargeFS.IcMa(),
		MpptMv: s.chargeFS.MpptMv(),
		CompMv: s.chargeFS.CompMv(),

		TiC10: tiC10,
		TeC10: teC10,

		BuckEnabled: s.buckCtrl.Enabled(),
		BuckPwm:     s.buckCtrl.Pwm(),
		BuckLimit2:  s.buckCtrl.Limit2(),

		ExtMissing:  tempResult.ExtMissing,
		TempLimited: status.TLimited,
		BadBatt:     status.BadBatt,
		PwrEn:       status.PwrEn,
		AlertN:      s.powerFS.AlertN(),

		Irradiance: s.backend.Irradiance(),
	}
}

// Status returns a copy of the most recently published telemetry
// snapshot, safe for concurrent readers (HTTP handlers, the websocket
// broadcaster).
func (s *System) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}
