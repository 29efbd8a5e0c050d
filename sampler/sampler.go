// Package sampler implements the multi-channel acquisition and filtering
// layer: per-signal low-pass filters for the four power-path channels and
// ring-buffer averaging for the two temperature channels, scheduled in the
// same round-robin order the reference firmware's ADC conversion-complete
// handler uses.
//
// There is no physical ADC in this port. A Backend supplies already
// engineering-unit samples (mV, mA, tenths of °C) each time a channel comes
// up for conversion, standing in for the reference's raw-code-plus-
// calibration step.
package sampler

import (
	"sync"

	"github.com/devskill-org/mppt-charger-fw/buck"
)

// Channel identifies one of the six sampled signals.
type Channel int

const (
	Vs Channel = iota
	Is
	Vb
	Ib
	Ti
	Te
)

func (c Channel) String() string {
	switch c {
	case Vs:
		return "Vs"
	case Is:
		return "Is"
	case Vb:
		return "Vb"
	case Ib:
		return "Ib"
	case Ti:
		return "Ti"
	case Te:
		return "Te"
	default:
		return "unknown"
	}
}

// Filter shifts, in bits. Voltage channels use a shallower filter (faster
// settling, more ripple); current channels use a deeper one.
const (
	voltFilterShift    = 3
	currentFilterShift = 6
)

// Temperature ring depth and rounding mask, per spec.md §3: average is
// (sum + 4) >> 3 over 8 samples.
const (
	tempRingLen   = 8
	tempShift     = 3
	tempRoundHalf = 1 << (tempShift - 1)
)

// Buck update runs every 20th fast-tick fire (200 Hz against a nominal
// 4 kHz sampler rate). Temperature sampling interrupts the power-path
// round robin once every 2000 fires (500 ms), alternating Ti/Te.
const (
	evalsPerBuckUpdate = 20
	evalsPerTempSample = 2000
)

// Backend supplies one freshly-converted engineering-unit sample for a
// channel, standing in for the real ADC conversion + calibrated scaling.
type Backend interface {
	Read(ch Channel) int
}

// BuckUpdater is invoked inline from the same fast tick as the sample that
// immediately precedes it, exactly as the reference's Timer0 ISR calls
// BUCK_Update. Buck consumes Sampler's filtered values through the
// no-disable accessor (GetValueForISR) because it executes in the same
// scheduling domain as the producer; *Sampler implements
// buck.MeasurementSource directly, so it is passed as its own source.
type BuckUpdater interface {
	Update(src buck.MeasurementSource)
}

type leakyFilter struct {
	sum   int
	shift int
}

func (f *leakyFilter) push(new int) {
	f.sum = f.sum - (f.sum >> f.shift) + new
}

func (f *leakyFilter) value() int {
	return f.sum >> f.shift
}

type tempRing struct {
	samples [tempRingLen]int
	idx     int
	sum     int
	filled  bool
}

func (r *tempRing) push(new int) {
	r.sum -= r.samples[r.idx]
	r.samples[r.idx] = new
	r.sum += new
	r.idx++
	if r.idx == tempRingLen {
		r.idx = 0
		r.filled = true
	}
}

func (r *tempRing) average() int {
	return (r.sum + tempRoundHalf) >> tempShift
}

// Sampler owns the four leaky filters and two temperature rings, and
// schedules conversions round-robin across Vs, Is, Vb, Ib with a periodic
// temperature interruption.
type Sampler struct {
	mu sync.Mutex

	filters [4]leakyFilter // indexed by Vs,Is,Vb,Ib
	temps   [2]tempRing    // indexed by Ti,Te (offset by tiIdx)

	backend Backend
	buck    BuckUpdater

	evalCount    int
	powerRRIndex int  // next of Vs,Is,Vb,Ib to sample
	tempTurn     int  // which of Ti/Te samples next
}

const tiIdx = 0 // Channel Ti/Te as index into s.temps

// New constructs a Sampler reading from backend and driving buck's update
// every 20th fast tick.
func New(backend Backend, buck BuckUpdater) *Sampler {
	s := &Sampler{backend: backend, buck: buck}
	s.filters[Vs] = leakyFilter{shift: voltFilterShift}
	s.filters[Vb] = leakyFilter{shift: voltFilterShift}
	s.filters[Is] = leakyFilter{shift: currentFilterShift}
	s.filters[Ib] = leakyFilter{shift: currentFilterShift}
	return s
}

// Step advances the acquisition state machine by one fast-tick fire: one
// ADC conversion, possibly interrupted for a temperature sample, and a
// Buck.Update invocation every 20th fire.
func (s *Sampler) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evalCount++

	if s.evalCount%evalsPerTempSample == 0 {
		ch := Ti
		if s.tempTurn == 1 {
			ch = Te
		}
		s.temps[s.tempTurn].push(s.backend.Read(ch))
		s.tempTurn = 1 - s.tempTurn
	} else {
		ch := Channel(s.powerRRIndex)
		s.filters[ch].push(s.backend.Read(ch))
		s.powerRRIndex = (s.powerRRIndex + 1) % 4
	}

	if s.evalCount%evalsPerBuckUpdate == 0 && s.buck != nil {
		s.buck.Update(s)
	}
}

// GetValue returns the engineering value for ch, taking a brief lock to
// read it atomically with respect to Step. ok is false for an unknown
// channel.
func (s *Sampler) GetValue(ch Channel) (value int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valueLocked(ch)
}

// GetValueForISR is the non-locking variant used by Buck, which runs
// inline from the same Step call that produced the sample — there is no
// concurrent writer to race with. It implements buck.MeasurementSource,
// whose channel indices (chVs=0, chIs=1, chVb=2, chIb=3) match Channel's
// ordinals.
func (s *Sampler) GetValueForISR(ch int) int {
	v, _ := s.valueLocked(Channel(ch))
	return v
}

func (s *Sampler) valueLocked(ch Channel) (int, bool) {
	switch ch {
	case Vs, Is, Vb, Ib:
		return s.filters[ch].value(), true
	case Ti:
		return s.temps[0].average(), true
	case Te:
		return s.temps[1].average(), true
	default:
		return 0, false
	}
}
