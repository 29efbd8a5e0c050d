package param

import "testing"

func TestDefaultsByBatteryType(t *testing.T) {
	la := New(LeadAcid)
	if la.BulkMv() != bulkDefaultLeadAcid {
		t.Fatalf("lead-acid bulk default = %d, want %d", la.BulkMv(), bulkDefaultLeadAcid)
	}
	if la.PwronMv() != pwronDefaultLeadAcid {
		t.Fatalf("lead-acid pwron default = %d, want %d", la.PwronMv(), pwronDefaultLeadAcid)
	}

	li := New(LiFePO4)
	if li.BulkMv() != bulkDefaultLiFePO4 {
		t.Fatalf("lifepo4 bulk default = %d, want %d", li.BulkMv(), bulkDefaultLiFePO4)
	}
	if li.PwronMv() != pwronDefaultLiFePO4 {
		t.Fatalf("lifepo4 pwron default = %d, want %d", li.PwronMv(), pwronDefaultLiFePO4)
	}
}

func TestClampToDocumentedRange(t *testing.T) {
	p := New(LeadAcid)

	cases := []struct {
		idx       Index
		write     int
		wantInLo  int
		wantInHi  int
	}{
		{Bulk, 0, BulkMin, BulkMax},
		{Bulk, 99999, BulkMin, BulkMax},
		{Float, 0, FloatMin, FloatMax},
		{PwrOn, 1, PwrOnMin, PwrOnMax},
	}

	for _, c := range cases {
		p.SetIndexedValue(c.idx, c.write)
		got := p.GetIndexedValue(c.idx)
		if got < c.wantInLo || got > c.wantInHi {
			t.Errorf("index %d write %d -> %d, want in [%d,%d]", c.idx, c.write, got, c.wantInLo, c.wantInHi)
		}
	}
}

func TestPwroffUpperBoundTracksPwron(t *testing.T) {
	p := New(LeadAcid)
	p.SetIndexedValue(PwrOn, 12000)
	p.SetIndexedValue(PwrOff, 14000) // above pwron, must clamp to pwron
	if got := p.GetIndexedValue(PwrOff); got != 12000 {
		t.Fatalf("pwroff clamped to %d, want 12000 (pwron)", got)
	}

	p.SetIndexedValue(PwrOn, 15000)
	p.SetIndexedValue(PwrOff, 14500)
	if got := p.GetIndexedValue(PwrOff); got != 14500 {
		t.Fatalf("pwroff = %d, want 14500", got)
	}
}

func TestRoundTripExact(t *testing.T) {
	p := New(LeadAcid)
	p.SetIndexedValue(Bulk, 14500)
	if got := p.GetIndexedValue(Bulk); got != 14500 {
		t.Fatalf("round trip got %d, want 14500", got)
	}
}
