package clk

import (
	"testing"

	"github.com/pkg/errors"
)

type recRegulator struct {
	corners []Corner
	fail    bool
}

func (r *recRegulator) Enable() error  { return nil }
func (r *recRegulator) Disable() error { return nil }

func (r *recRegulator) SetCorner(c Corner) error {
	if r.fail {
		return errors.New("regulator refused")
	}
	r.corners = append(r.corners, c)
	return nil
}

func TestVddDataCorner(t *testing.T) {
	d := &VddData{Class: "cx"}
	d.RateMax[CornerLower] = 6144000
	d.RateMax[CornerLow] = 12288000
	d.RateMax[CornerNominal] = 24576000
	tests := []struct {
		rate uint64
		want Corner
		fail bool
	}{
		{0, CornerNone, false},
		{1, CornerLower, false},
		{6144000, CornerLower, false},
		{6144001, CornerLow, false},
		{24576000, CornerNominal, false},
		{24576001, CornerNone, true},
	}
	for _, test := range tests {
		got, err := d.corner(test.rate)
		if test.fail {
			if errors.Cause(err) != ErrRateExceedsEnvelope {
				t.Errorf("corner(%d) got err: %v, want: %v", test.rate, err, ErrRateExceedsEnvelope)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("corner(%d) got: %v (err %v), want: %v", test.rate, got, err, test.want)
		}
	}
}

func TestVoteUnvote(t *testing.T) {
	reg := &recRegulator{}
	v := NewVddClass("cx", reg)
	if err := v.enable(); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	v.Vote(CornerLow)
	v.Vote(CornerNominal)
	v.Vote(CornerLow)
	if got := v.Corner(); got != CornerNominal {
		t.Errorf("corner with nominal vote got: %v, want: %v", got, CornerNominal)
	}
	v.Unvote(CornerLow)
	if got := v.Corner(); got != CornerNominal {
		t.Errorf("corner after dropping a low vote got: %v, want: %v", got, CornerNominal)
	}
	v.Unvote(CornerNominal)
	if got := v.Corner(); got != CornerLow {
		t.Errorf("corner after dropping nominal got: %v, want: %v", got, CornerLow)
	}
	v.Unvote(CornerLow)
	if got := v.Votes(CornerLow); got != 0 {
		t.Errorf("low votes got: %d, want: 0", got)
	}
	// Unbalanced unvotes are ignored.
	v.Unvote(CornerLow)
	if got := v.Votes(CornerLow); got != 0 {
		t.Errorf("low votes after extra unvote got: %d, want: 0", got)
	}
	want := []Corner{CornerNone, CornerLow, CornerNominal, CornerLow, CornerNone}
	if len(reg.corners) != len(want) {
		t.Fatalf("regulator saw %v, want: %v", reg.corners, want)
	}
	for i := range want {
		if reg.corners[i] != want[i] {
			t.Errorf("regulator request %d got: %v, want: %v", i, reg.corners[i], want[i])
		}
	}
}

func TestVoteFailure(t *testing.T) {
	reg := &recRegulator{}
	v := NewVddClass("cx", reg)
	v.enable()
	reg.fail = true
	err := v.Vote(CornerHigh)
	if errors.Cause(err) != ErrSupplyFailure {
		t.Errorf("Vote with failing regulator got: %v, want: %v", err, ErrSupplyFailure)
	}
	if got := v.Votes(CornerHigh); got != 0 {
		t.Errorf("failed vote recorded, votes got: %d, want: 0", got)
	}
	if got := v.Corner(); got != CornerNone {
		t.Errorf("corner after failed vote got: %v, want: %v", got, CornerNone)
	}
}

func TestTransition(t *testing.T) {
	reg := &recRegulator{}
	v := NewVddClass("cx", reg)
	v.enable()
	v.Vote(CornerLow)

	var during Corner
	err := v.Transition(CornerLow, CornerNominal, func() error {
		during = v.Corner()
		return nil
	})
	if err != nil {
		t.Fatalf("Transition up failed: %v", err)
	}
	if during != CornerNominal {
		t.Errorf("corner while raising got: %v, want: %v", during, CornerNominal)
	}

	err = v.Transition(CornerNominal, CornerLower, func() error {
		during = v.Corner()
		return nil
	})
	if err != nil {
		t.Fatalf("Transition down failed: %v", err)
	}
	if during != CornerNominal {
		t.Errorf("corner while lowering got: %v, want: %v", during, CornerNominal)
	}
	if got := v.Corner(); got != CornerLower {
		t.Errorf("corner after lowering got: %v, want: %v", got, CornerLower)
	}

	failed := errors.New("apply failed")
	err = v.Transition(CornerLower, CornerHigh, func() error { return failed })
	if err != failed {
		t.Errorf("Transition with failing apply got: %v, want: %v", err, failed)
	}
	if got := v.Corner(); got != CornerLower {
		t.Errorf("corner after failed transition got: %v, want: %v", got, CornerLower)
	}
	if got := v.Votes(CornerLower); got != 1 {
		t.Errorf("old vote after failed transition got: %d, want: 1", got)
	}
}

func TestVoteWhileOff(t *testing.T) {
	reg := &recRegulator{}
	v := NewVddClass("cx", reg)
	v.Vote(CornerNominal)
	if len(reg.corners) != 0 {
		t.Errorf("rail off but regulator saw %v", reg.corners)
	}
	v.enable()
	if len(reg.corners) != 1 || reg.corners[0] != CornerNominal {
		t.Errorf("enable applied %v, want: [%v]", reg.corners, CornerNominal)
	}
}
