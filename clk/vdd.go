package clk

import (
	"fmt"
	"log"
	"sync"

	"github.com/pkg/errors"
)

// Corner is a discrete voltage operating point, ordered from lowest to highest.
type Corner int

const (
	CornerNone Corner = iota
	CornerMin
	CornerLower
	CornerLow
	CornerLowL1
	CornerNominal
	CornerHigh
	NumCorners
)

var cornerNames = [...]string{"none", "min", "lower", "low", "low_l1", "nominal", "high"}

func (c Corner) String() string {
	if c < 0 || c >= NumCorners {
		return fmt.Sprintf("corner(%d)", int(c))
	}
	return cornerNames[c]
}

// ParseCorner is the inverse of Corner.String.
func ParseCorner(s string) (Corner, error) {
	for i, n := range cornerNames {
		if n == s {
			return Corner(i), nil
		}
	}
	return CornerNone, errors.Wrapf(ErrNotFound, "corner %q", s)
}

// Regulator is the supply behind a power domain or a voltage rail.
type Regulator interface {
	Enable() error
	Disable() error
	SetCorner(c Corner) error
}

type nopRegulator struct{}

func (nopRegulator) Enable() error { return nil }
func (nopRegulator) Disable() error { return nil }
func (nopRegulator) SetCorner(c Corner) error { return nil }

// corner returns the lowest corner whose envelope covers rate.
func (d *VddData) corner(rate uint64) (Corner, error) {
	if rate == 0 {
		return CornerNone, nil
	}
	for c := CornerMin; c < NumCorners; c++ {
		if rate <= d.RateMax[c] {
			return c, nil
		}
	}
	return CornerNone, errors.Wrapf(ErrRateExceedsEnvelope, "%d Hz on %s", rate, d.Class)
}

// VddClass aggregates the corner votes of every enabled clock on one rail. The rail sits at
// the highest voted corner; it is raised as soon as a higher vote arrives and lowered only
// when the last vote at the top corner goes away.
type VddClass struct {
	Name string

	mu    sync.Mutex
	reg   Regulator
	votes [NumCorners]int
	cur   Corner
	on    bool
}

func NewVddClass(name string, reg Regulator) *VddClass {
	if reg == nil {
		reg = nopRegulator{}
	}
	return &VddClass{Name: name, reg: reg}
}

// Corner returns the corner the rail is currently set to.
func (v *VddClass) Corner() Corner {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Votes returns how many enabled clocks currently need corner c.
func (v *VddClass) Votes(c Corner) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c < 0 || c >= NumCorners {
		return 0
	}
	return v.votes[c]
}

func (v *VddClass) top() Corner {
	for c := NumCorners - 1; c > CornerNone; c-- {
		if v.votes[c] > 0 {
			return c
		}
	}
	return CornerNone
}

// set moves the rail to c. v.mu must be held.
func (v *VddClass) set(c Corner) error {
	if c == v.cur {
		return nil
	}
	if v.on {
		if err := v.reg.SetCorner(c); err != nil {
			return errors.Wrapf(ErrSupplyFailure, "%s: couldn't set corner %v: %v", v.Name, c, err)
		}
		log.Printf("vdd %s: corner %v -> %v", v.Name, v.cur, c)
	}
	v.cur = c
	vddCorner.WithLabelValues(v.Name).Set(float64(c))
	return nil
}

// Vote adds a requirement for corner c, raising the rail first if needed. On failure the
// vote is not recorded.
func (v *VddClass) Vote(c Corner) error {
	if c <= CornerNone || c >= NumCorners {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.votes[c]++
	if c > v.cur {
		if err := v.set(c); err != nil {
			v.votes[c]--
			return err
		}
	}
	return nil
}

// Unvote drops one requirement for corner c and lowers the rail if nothing else needs it.
// Lowering failures are logged and leave the rail higher than needed.
func (v *VddClass) Unvote(c Corner) {
	if c <= CornerNone || c >= NumCorners {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.votes[c] == 0 {
		log.Printf("vdd %s: unbalanced unvote at %v", v.Name, c)
		return
	}
	v.votes[c]--
	if t := v.top(); t < v.cur {
		if err := v.set(t); err != nil {
			log.Printf("vdd %s: staying at %v: %v", v.Name, v.cur, err)
		}
	}
}

// Transition moves one requirement from old to new around apply: the new corner is voted
// before apply runs, the old one dropped after it succeeds. If apply fails the new vote is
// dropped and the old one kept.
func (v *VddClass) Transition(old, new Corner, apply func() error) error {
	if old == new {
		return apply()
	}
	if err := v.Vote(new); err != nil {
		return err
	}
	if err := apply(); err != nil {
		v.Unvote(new)
		return err
	}
	v.Unvote(old)
	return nil
}

// enable turns the rail on and applies the corner the current votes ask for.
func (v *VddClass) enable() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.on {
		return nil
	}
	if err := v.reg.Enable(); err != nil {
		return errors.Wrapf(ErrSupplyFailure, "%s: couldn't enable: %v", v.Name, err)
	}
	v.on = true
	c := v.top()
	if err := v.reg.SetCorner(c); err != nil {
		v.reg.Disable() // Ignore error
		v.on = false
		return errors.Wrapf(ErrSupplyFailure, "%s: couldn't set corner %v: %v", v.Name, c, err)
	}
	v.cur = c
	vddCorner.WithLabelValues(v.Name).Set(float64(c))
	supplyTransitions.WithLabelValues(v.Name, "on").Inc()
	return nil
}

func (v *VddClass) disable() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.on {
		return nil
	}
	v.on = false
	supplyTransitions.WithLabelValues(v.Name, "off").Inc()
	if err := v.reg.Disable(); err != nil {
		return errors.Wrapf(ErrSupplyFailure, "%s: couldn't disable: %v", v.Name, err)
	}
	return nil
}
