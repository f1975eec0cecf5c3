package clk

import (
	"github.com/pkg/errors"
)

// divOps is a divider whose ratio firmware sets; we only read it.
type divOps struct {
	hw
	d   *DividerDesc
	cur divSetting
}

func newDivider(h hw, d *DividerDesc) *divOps {
	return &divOps{hw: h, d: d}
}

func (v *divOps) init() (int, error) {
	r, err := v.regs.Read(v.d.Reg)
	if err != nil {
		return 0, err
	}
	val := (r >> v.d.Shift) & fieldMask(v.d.Width)
	v.cur = divSetting{val: val, div: val + 1}
	return 0, nil
}

func (v *divOps) current() setting {
	return v.cur
}

func (v *divOps) determineRate(req rateRequest) (rateChoice, error) {
	want := req.parentRate(0)
	if req.setParent {
		want = req.rate * uint64(v.cur.div)
	}
	return rateChoice{s: v.cur, parent: 0, parentRate: want}, nil
}

func (v *divOps) setRate(st setting, parent int, parentRate uint64) error {
	if s, ok := st.(divSetting); !ok || s != v.cur {
		return errors.Wrapf(ErrInvalidState, "%s: divider is read-only", v.name)
	}
	return nil
}
