package charge

import (
	"testing"

	"github.com/devskill-org/mppt-charger-fw/utils"
)

type fakeBuck struct {
	solarSetpoint int
	battSetpoint  int
	curBattReg    int
	enabled       bool
	pwm           int
	limit2        bool
	limiting      bool
}

func (b *fakeBuck) SetSolarSetpoint(mv int)    { b.solarSetpoint = mv }
func (b *fakeBuck) SetBattSetpoint(mv int)     { b.battSetpoint = mv; b.curBattReg = mv }
func (b *fakeBuck) EnableBatteryLimit(en bool) {}
func (b *fakeBuck) Enable(en bool)             { b.enabled = en }
func (b *fakeBuck) Enabled() bool              { return b.enabled }
func (b *fakeBuck) Pwm() int                   { return b.pwm }
func (b *fakeBuck) Limit2() bool               { return b.limit2 }
func (b *fakeBuck) IsLimiting() bool           { return b.limiting }
func (b *fakeBuck) CurBattRegMv() int          { return b.curBattReg }

type fakeSource struct {
	vs, is, vb, ib int
}

func (f *fakeSource) GetValue(ch int) int {
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

// Property 3: perturb-and-observe drives |V-Vmpp| toward 0 within one
// step size, for a synthetic parabolic panel P(V) = Pmax - (V-Vmpp)^2/k.
func TestMpptDirectionConvergesToMaxPower(t *testing.T) {
	const vmpp = 15000

	bk := &fakeBuck{enabled: true, pwm: 500, limiting: false}
	c := New(false, 20000, 13650, bk)
	c.mu.Lock()
	c.state = Bulk
	c.mpptEnable = true
	c.scanEnable = false
	c.solarRegMv = 12000
	c.mu.Unlock()

	panelPowerMw := func(v int) int {
		d := v - vmpp
		p := 5000 - (d*d)/5000
		if p < 0 {
			p = 0
		}
		return p
	}

	vs := 12000
	const maxIters = 400
	for i := 0; i < maxIters; i++ {
		p := panelPowerMw(vs)
		isMa := 0
		if vs > 0 {
			isMa = p * 1000 / vs
		}
		c.MpptUpdate(&fakeSource{vs: vs, is: isMa, vb: 12000, ib: 100})
		vs = c.MpptMv()
	}

	if d := utils.AbsI(vs - vmpp); d > MpptHiIStepMv {
		t.Fatalf("P&O failed to converge: final Vs=%d, Vmpp=%d, |delta|=%d", vs, vmpp, d)
	}
}

// Property 4: scan mode locates the argmax-power setpoint within one scan
// step of the true maximum.
func TestScanLocatesArgmaxPower(t *testing.T) {
	const vmpp = 16000

	bk := &fakeBuck{limiting: false}
	c := New(false, 20000, 13650, bk)
	c.mu.Lock()
	c.vbMv = 12000
	c.vsMv = 19000
	c.setState(Scan)
	c.mu.Unlock()

	panelPowerMw := func(v int) int {
		d := v - vmpp
		p := 5000 - (d*d)/5000
		if p < 0 {
			p = 0
		}
		return p
	}

	vs := 19000
	for i := 0; i < 100 && c.scanEnable; i++ {
		p := panelPowerMw(vs)
		isMa := 0
		if vs > 0 {
			isMa = p * 1000 / vs
		}
		c.MpptUpdate(&fakeSource{vs: vs, is: isMa, vb: 12000, ib: 100})
		vs = c.solarRegMv
	}

	if c.scanEnable {
		t.Fatalf("scan did not complete within iteration bound")
	}
	if d := utils.AbsI(c.maxScanVSetpoint - vmpp); d > MpptScanStepMv {
		t.Fatalf("scan argmax = %d, want within %d of %d", c.maxScanVSetpoint, MpptScanStepMv, vmpp)
	}
}

// Property 5: from Idle with good panel and battery voltage and no
// temperature fault, the machine reaches Bulk (via Scan) within bounded
// ticks.
func TestChargeMachineLivenessIdleToBulk(t *testing.T) {
	bk := &fakeBuck{limiting: false}
	c := New(false, 20000, 13650, bk)
	if c.State() != Idle {
		t.Fatalf("expected initial state Idle, got %v", c.State())
	}

	reached := false
	for i := 0; i < 200; i++ {
		c.MpptUpdate(&fakeSource{vs: 20000, is: 300, vb: 12500, ib: 100})
		c.StateUpdate(14700, 13650, 250, false)
		if c.State() == Bulk {
			reached = true
			break
		}
	}
	if !reached {
		t.Fatalf("charge machine never reached Bulk within bound")
	}
}

// Property 6: in Bulk, crossing comp_bulk_mv transitions to Absorption in
// one tick; in Absorption, i_c < I_ABS_CUTOFF with limit2 sustained for
// ABS_TERM_TIMEOUT ticks transitions to Float.
func TestChargeMachineTerminationBulkAbsFloat(t *testing.T) {
	bk := &fakeBuck{limiting: false}
	c := New(false, 20000, 13650, bk)

	c.mu.Lock()
	c.state = Bulk
	c.vbMv = 14800 // above comp_bulk_mv (14700)
	c.mu.Unlock()

	c.StateUpdate(14700, 13650, 250, false)
	if c.State() != Absorption {
		t.Fatalf("state after crossing comp_bulk = %v, want Absorption", c.State())
	}

	bk.limit2 = true
	bk.limiting = true // battery-full hold: suppress the low-production override
	c.mu.Lock()
	c.icMa = 100 // < I_ABS_CUTOFF
	c.vbMv = 14700
	c.mu.Unlock()

	for i := 0; i < AbsTermTimeout; i++ {
		c.StateUpdate(14700, 13650, 250, false)
	}
	if c.State() != Float {
		t.Fatalf("state after ABS_TERM_TIMEOUT = %v, want Float", c.State())
	}
}
