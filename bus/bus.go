// Package bus implements the register-address slave: a bit-exact,
// big-endian, 16-bit register surface shared between the control loops
// and an external host. The control loops are the sole writers of the
// read-only mirror; writes from the host flow through validated setters
// into Param and the watchdog controller.
package bus

import "sync"

// Register byte offsets, per spec.md §4.7.
const (
	OffsetID     = 0
	OffsetStatus = 2
	OffsetBuck   = 4
	OffsetVs     = 6
	OffsetIs     = 8
	OffsetVb     = 10
	OffsetIb     = 12
	OffsetIc     = 14
	OffsetTi     = 16
	OffsetTe     = 18
	OffsetVm     = 20
	OffsetVth    = 22

	OffsetBulk   = 24
	OffsetFloat  = 26
	OffsetPwroff = 28
	OffsetPwron  = 30

	OffsetWdEnable  = 33
	OffsetWdSeconds = 35
	OffsetWdPwrOff  = 36
)

// STATUS bit positions, MSB to LSB.
const (
	bitHwWdDetect   = 1 << 15
	bitSwWdTrig     = 1 << 14
	bitBadBatt      = 1 << 13
	bitExtMissing   = 1 << 12
	bitWdRunning    = 1 << 8
	bitPwrEn        = 1 << 7
	bitAlert        = 1 << 6
	bitPctrl        = 1 << 5
	bitTLimited     = 1 << 4
	bitNight        = 1 << 3
	chgStateMask    = 0x0007
)

// WdArmMagic is the byte the host must write to OffsetWdEnable to arm the
// host watchdog. Anything else disarms it; see spec.md §9 Open Question
// (a).
const WdArmMagic = 0xEA

// ParamStore is the subset of param.Params Bus needs for the four
// host-writable thresholds.
type ParamStore interface {
	SetIndexedValue(idx int, value int)
	GetIndexedValue(idx int) int
}

// WatchdogControl is the subset of power.Power's host watchdog controls
// Bus forwards writes to.
type WatchdogControl interface {
	SetWatchdogEnable(armed bool)
	SetWatchdogSeconds(seconds int)
	SetWatchdogPowerOffSeconds(seconds int)
	WatchdogSeconds() int
	WatchdogPowerOffSeconds() int
}

// Status is the set of flags that compose the STATUS register, excluding
// the two sticky watchdog-detect bits which Bus itself owns.
type Status struct {
	BadBatt     bool
	ExtMissing  bool
	WdRunning   bool
	PwrEn       bool
	Alert       bool
	Pctrl       bool
	TLimited    bool
	Night       bool
	ChgState    int // 0-7
}

// Bus owns the in-RAM register mirror and the two sticky watchdog-detect
// bits. ParamStore and WatchdogControl are the passthrough targets for
// host writes to offsets 24-36.
type Bus struct {
	mu sync.Mutex

	id   uint16
	buck uint16

	status        Status
	hwWdDetect    bool
	swWdTriggered bool

	vs, is, vb, ib, ic, ti, te, vm, vth int

	params   ParamStore
	watchdog WatchdogControl
}

// New constructs a Bus with the given board/firmware identity word
// (ID = board_id<<12 | major<<4 | minor), wired to params and watchdog for
// RW register passthrough.
func New(boardID, major, minor int, params ParamStore, watchdog WatchdogControl) *Bus {
	return &Bus{
		id:       uint16(boardID<<12 | major<<4 | minor),
		params:   params,
		watchdog: watchdog,
	}
}

// SeedResetDetect seeds the sticky hardware-watchdog-detect bit at boot,
// from the hardware reset-cause latch (see hwwatchdog.Watchdog.CausedReset).
func (b *Bus) SeedResetDetect(detected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hwWdDetect = detected
}

// SetWatchdog wires the watchdog passthrough target after construction,
// for callers that must break a Bus/Power construction cycle (Power's
// StatusPublisher is Bus; Bus's WatchdogControl is Power).
func (b *Bus) SetWatchdog(w WatchdogControl) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchdog = w
}

// SetBuckStatus implements buck.StatusPublisher.
func (b *Bus) SetBuckStatus(word uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buck = word
}

// SetMeasurements publishes the latest measurement snapshot to the RO
// mirror. Called from the slow tick under the same brief critical section
// discipline the reference firmware uses around bus mirror writes.
func (b *Bus) SetMeasurements(vs, is, vb, ib, ic, ti, te, vm, vth int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vs, b.is, b.vb, b.ib, b.ic, b.ti, b.te, b.vm, b.vth = vs, is, vb, ib, ic, ti, te, vm, vth
}

// SetStatus publishes the non-sticky STATUS flags.
func (b *Bus) SetStatus(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// RaiseSoftwareWatchdogTrigger sets the sticky sw_wd_triggered bit, called
// when Power's watchdog count reaches zero.
func (b *Bus) RaiseSoftwareWatchdogTrigger() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.swWdTriggered = true
}

// statusWordLocked assembles the 16-bit STATUS register from the current
// flags. Caller must hold b.mu.
func (b *Bus) statusWordLocked() uint16 {
	var w uint16
	if b.hwWdDetect {
		w |= bitHwWdDetect
	}
	if b.swWdTriggered {
		w |= bitSwWdTrig
	}
	if b.status.BadBatt {
		w |= bitBadBatt
	}
	if b.status.ExtMissing {
		w |= bitExtMissing
	}
	if b.status.WdRunning {
		w |= bitWdRunning
	}
	if b.status.PwrEn {
		w |= bitPwrEn
	}
	if b.status.Alert {
		w |= bitAlert
	}
	if b.status.Pctrl {
		w |= bitPctrl
	}
	if b.status.TLimited {
		w |= bitTLimited
	}
	if b.status.Night {
		w |= bitNight
	}
	w |= uint16(b.status.ChgState) & chgStateMask
	return w
}

// ReadRegister16 reads the 16-bit register at offset addr. Out-of-range or
// reserved addresses read as zero. Reading the STATUS register's high
// byte (addr == OffsetStatus) clears both sticky watchdog-detect bits
// after assembling the value to return, per the sticky-clear rule.
func (b *Bus) ReadRegister16(addr int) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch addr {
	case OffsetID:
		return b.id
	case OffsetStatus:
		w := b.statusWordLocked()
		b.hwWdDetect = false
		b.swWdTriggered = false
		return w
	case OffsetBuck:
		return b.buck
	case OffsetVs:
		return uint16(b.vs)
	case OffsetIs:
		return uint16(b.is)
	case OffsetVb:
		return uint16(b.vb)
	case OffsetIb:
		return uint16(b.ib)
	case OffsetIc:
		return uint16(b.ic)
	case OffsetTi:
		return uint16(b.ti)
	case OffsetTe:
		return uint16(b.te)
	case OffsetVm:
		return uint16(b.vm)
	case OffsetVth:
		return uint16(b.vth)
	case OffsetBulk:
		return uint16(b.paramGet(0))
	case OffsetFloat:
		return uint16(b.paramGet(1))
	case OffsetPwroff:
		return uint16(b.paramGet(2))
	case OffsetPwron:
		return uint16(b.paramGet(3))
	case OffsetWdPwrOff:
		if b.watchdog != nil {
			return uint16(b.watchdog.WatchdogPowerOffSeconds())
		}
		return 0
	default:
		return 0
	}
}

// ReadRegister8 reads the 8-bit register at addr. Only the watchdog
// seconds register reads back its value; the watchdog enable register
// (OffsetWdEnable) and unknown addresses read zero.
func (b *Bus) ReadRegister8(addr int) uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch addr {
	case OffsetWdSeconds:
		if b.watchdog != nil {
			return uint8(b.watchdog.WatchdogSeconds())
		}
	}
	return 0
}

// WriteRegister16 writes value to the 16-bit RW register at addr. Writes
// commit on the low byte of the register pair per the two-wire slave
// protocol; callers assemble the full 16-bit value before calling this.
// Out-of-range values are silently clamped by the passthrough target; out
// of range or reserved addresses silently drop the write.
func (b *Bus) WriteRegister16(addr int, value uint16) {
	b.mu.Lock()
	params := b.params
	watchdog := b.watchdog
	b.mu.Unlock()

	switch addr {
	case OffsetBulk:
		if params != nil {
			params.SetIndexedValue(0, int(value))
		}
	case OffsetFloat:
		if params != nil {
			params.SetIndexedValue(1, int(value))
		}
	case OffsetPwroff:
		if params != nil {
			params.SetIndexedValue(2, int(value))
		}
	case OffsetPwron:
		if params != nil {
			params.SetIndexedValue(3, int(value))
		}
	case OffsetWdPwrOff:
		if watchdog != nil {
			watchdog.SetWatchdogPowerOffSeconds(int(value))
		}
	}
}

// WriteRegister8 writes an 8-bit RW register (watchdog enable/seconds).
func (b *Bus) WriteRegister8(addr int, value uint8) {
	b.mu.Lock()
	watchdog := b.watchdog
	b.mu.Unlock()

	if watchdog == nil {
		return
	}

	switch addr {
	case OffsetWdEnable:
		watchdog.SetWatchdogEnable(value == WdArmMagic)
	case OffsetWdSeconds:
		watchdog.SetWatchdogSeconds(int(value))
	}
}

func (b *Bus) paramGet(idx int) int {
	if b.params == nil {
		return 0
	}
	return b.params.GetIndexedValue(idx)
}
