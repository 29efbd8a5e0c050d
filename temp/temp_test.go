package temp

import "testing"

func TestCompensationAtReferenceTemp(t *testing.T) {
	c := New(LeadAcid)
	r := c.Update(250, 250, 14700, 13650)
	if r.CompBulkMv != 14700 || r.CompFloatMv != 13650 {
		t.Fatalf("at 25C comp = (%d,%d), want (14700,13650)", r.CompBulkMv, r.CompFloatMv)
	}
}

func TestCompensationAt35C(t *testing.T) {
	c := New(LeadAcid)
	r := c.Update(350, 350, 14700, 13650)
	if r.CompBulkMv != 14700-30 {
		t.Fatalf("comp_bulk = %d, want %d", r.CompBulkMv, 14700-30)
	}
	if r.CompFloatMv != 13650-20 {
		t.Fatalf("comp_float = %d, want %d", r.CompFloatMv, 13650-20)
	}
}

func TestLiFePO4ZeroCompensation(t *testing.T) {
	c := New(LiFePO4)
	r := c.Update(500, 500, 14400, 13650)
	if r.CompBulkMv != 14400 || r.CompFloatMv != 13650 {
		t.Fatalf("lifepo4 comp = (%d,%d), want unmodified", r.CompBulkMv, r.CompFloatMv)
	}
}

func TestExtSensorMissingFallsBackToInternal(t *testing.T) {
	c := New(LeadAcid)
	r := c.Update(250, -500, 14700, 13650) // Te far below threshold, far from Ti
	if !r.ExtMissing {
		t.Fatalf("expected ext_missing")
	}
	if r.EffectiveC10 != 250 {
		t.Fatalf("effective = %d, want Ti=250 used as fallback", r.EffectiveC10)
	}
}
