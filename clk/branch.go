package clk

import (
	"log"
	"time"

	"github.com/pkg/errors"
)

type branchOps struct {
	hw
	d *BranchDesc
}

func newBranch(h hw, d *BranchDesc) *branchOps {
	return &branchOps{hw: h, d: d}
}

func (b *branchOps) init() (int, error) {
	return 0, nil
}

func (b *branchOps) current() setting {
	return passthrough{}
}

func (b *branchOps) determineRate(req rateRequest) (rateChoice, error) {
	want := req.parentRate(0)
	if req.setParent {
		want = req.rate
	}
	return rateChoice{s: passthrough{}, parent: 0, parentRate: want}, nil
}

func (b *branchOps) setRate(st setting, parent int, parentRate uint64) error {
	return nil
}

// hwGated reports whether hardware clock gating owns the branch, in which case the halt bit
// says nothing about our vote.
func (b *branchOps) hwGated() bool {
	if b.d.HWCGReg == 0 {
		return false
	}
	v, err := b.regs.Read(b.d.HWCGReg)
	if err != nil {
		return false
	}
	return v&(1<<b.d.HWCGBit) != 0
}

// waitHalt waits for CLK_OFF to reach the state matching on.
func (b *branchOps) waitHalt(on bool) error {
	switch b.d.HaltCheck {
	case HaltSkip:
		return nil
	case HaltDelay:
		time.Sleep(HALT_DELAY)
		return nil
	case HaltVoted:
		if !on {
			return nil
		}
	}
	if b.hwGated() {
		return nil
	}
	want := CBCR_CLK_OFF
	if on {
		want = 0
	}
	if err := b.regs.PollUntil(b.d.HaltReg, CBCR_CLK_OFF, want, b.cfg.HaltTimeout); err != nil {
		timeouts.WithLabelValues(b.name, "halt").Inc()
		state := "off"
		if on {
			state = "on"
		}
		return errors.Wrapf(ErrHaltTimeout, "%s: status stuck %s: %v", b.name, state, err)
	}
	return nil
}

// enable sets the enable bit and waits for the branch to report running. On a halt timeout
// the bit stays set.
func (b *branchOps) enable() error {
	if err := b.regs.SetBits(b.d.EnableReg, b.d.EnableMask); err != nil {
		return err
	}
	return b.waitHalt(true)
}

// disable clears the enable bit and waits for the branch to stop. On a halt timeout the bit
// stays cleared.
func (b *branchOps) disable() error {
	if err := b.regs.ClearBits(b.d.EnableReg, b.d.EnableMask); err != nil {
		return err
	}
	if err := b.waitHalt(false); err != nil {
		log.Printf("%s: %v", b.name, err)
		return err
	}
	return nil
}

func (b *branchOps) isEnabled() (bool, error) {
	v, err := b.regs.Read(b.d.EnableReg)
	if err != nil {
		return false, err
	}
	return v&b.d.EnableMask != 0, nil
}
