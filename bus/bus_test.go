package bus

import "testing"

type fakeParams struct {
	values [4]int
}

func (f *fakeParams) SetIndexedValue(idx int, value int) {
	clamped := value
	switch idx {
	case 0: // bulk
		if clamped < 14000 {
			clamped = 14000
		}
		if clamped > 15000 {
			clamped = 15000
		}
	}
	f.values[idx] = clamped
}

func (f *fakeParams) GetIndexedValue(idx int) int { return f.values[idx] }

type fakeWatchdog struct {
	enabled    bool
	seconds    int
	pwroffSecs int
}

func (f *fakeWatchdog) SetWatchdogEnable(armed bool)         { f.enabled = armed }
func (f *fakeWatchdog) SetWatchdogSeconds(s int)             { f.seconds = s }
func (f *fakeWatchdog) SetWatchdogPowerOffSeconds(s int)     { f.pwroffSecs = s }
func (f *fakeWatchdog) WatchdogSeconds() int                 { return f.seconds }
func (f *fakeWatchdog) WatchdogPowerOffSeconds() int         { return f.pwroffSecs }

func TestBusRoundTripAndClamp(t *testing.T) {
	params := &fakeParams{values: [4]int{14700, 13650, 11500, 12500}}
	b := New(1, 2, 0, params, &fakeWatchdog{})

	b.WriteRegister16(OffsetBulk, 0x3A98) // 15000
	if got := b.ReadRegister16(OffsetBulk); got != 0x3A98 {
		t.Fatalf("bulk round trip got 0x%04X, want 0x3A98", got)
	}

	b.WriteRegister16(OffsetBulk, 0x2710) // 10000, below min 14000
	if got := b.ReadRegister16(OffsetBulk); got != 14000 {
		t.Fatalf("bulk clamp got %d, want 14000", got)
	}
}

func TestStatusHighByteStickyClear(t *testing.T) {
	b := New(1, 2, 0, &fakeParams{}, &fakeWatchdog{})
	b.SeedResetDetect(true)
	b.RaiseSoftwareWatchdogTrigger()

	first := b.ReadRegister16(OffsetStatus)
	if first&bitHwWdDetect == 0 || first&bitSwWdTrig == 0 {
		t.Fatalf("expected both sticky bits set on first read, got 0x%04X", first)
	}

	second := b.ReadRegister16(OffsetStatus)
	if second&bitHwWdDetect != 0 || second&bitSwWdTrig != 0 {
		t.Fatalf("expected sticky bits cleared on second read, got 0x%04X", second)
	}
}

func TestIDRegister(t *testing.T) {
	b := New(1, 2, 0, &fakeParams{}, &fakeWatchdog{})
	want := uint16(1<<12 | 2<<4 | 0)
	if got := b.ReadRegister16(OffsetID); got != want {
		t.Fatalf("ID = 0x%04X, want 0x%04X", got, want)
	}
}

func TestOutOfRangeAddressReadsZero(t *testing.T) {
	b := New(1, 2, 0, &fakeParams{}, &fakeWatchdog{})
	if got := b.ReadRegister16(9999); got != 0 {
		t.Fatalf("out-of-range read = %d, want 0", got)
	}
}

func TestWatchdogEnableMagicByte(t *testing.T) {
	wd := &fakeWatchdog{}
	b := New(1, 2, 0, &fakeParams{}, wd)

	b.WriteRegister8(OffsetWdEnable, WdArmMagic)
	if !wd.enabled {
		t.Fatalf("expected watchdog armed on magic byte")
	}

	b.WriteRegister8(OffsetWdEnable, 0x00)
	if wd.enabled {
		t.Fatalf("expected watchdog disarmed on non-magic byte")
	}
}
