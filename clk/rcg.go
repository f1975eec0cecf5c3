package clk

import (
	"log"

	"github.com/pkg/errors"
)

// output is the rate this row produces from parent.
func (f FreqRow) output(parent uint64) uint64 {
	r := parent
	if f.Div2 > 1 {
		r = r * 2 / uint64(f.Div2)
	}
	if f.N != 0 && f.M != 0 {
		r = r * uint64(f.M) / uint64(f.N)
	}
	return r
}

// input is the parent rate this row needs to produce exactly Freq.
func (f FreqRow) input() uint64 {
	r := f.Freq
	if f.Div2 > 1 {
		r = r * uint64(f.Div2) / 2
	}
	if f.N != 0 && f.M != 0 {
		r = r * uint64(f.N) / uint64(f.M)
	}
	return r
}

// hid is the SRC_DIV field value for the row's pre-divider.
func (f FreqRow) hid() uint32 {
	if f.Div2 > 1 {
		return f.Div2 - 1
	}
	return 0
}

func (f FreqRow) mnd() bool {
	return f.N != 0 && f.M != f.N
}

type rcgSetting struct {
	row    FreqRow
	parent int
}

func (s rcgSetting) rate(parent uint64) uint64 {
	return s.row.output(parent)
}

// unknown is the setting of a node whose hardware state couldn't be confirmed.
type unknown struct{}

func (unknown) rate(uint64) uint64 {
	return 0
}

type rcgOps struct {
	hw
	d *RCGDesc

	cur rcgSetting
	// applied is false while the hardware doesn't hold cur: parked on the safe source or
	// with a configuration recorded while disabled.
	applied bool
	// stale is set when programming failed half way and the hardware state is unknown.
	stale bool
	on    bool
}

func newRCG(h hw, d *RCGDesc) *rcgOps {
	return &rcgOps{hw: h, d: d}
}

func (r *rcgOps) parentIndex(name string) int {
	for i, p := range r.d.ParentMap {
		if p.Parent == name {
			return i
		}
	}
	return -1
}

func (r *rcgOps) safeRow() FreqRow {
	return FreqRow{Src: r.d.ParentMap[0].Parent}
}

func (r *rcgOps) init() (int, error) {
	base := r.d.CmdRCGR
	cfg, err := r.regs.Read(base + RCG_CFG_REG)
	if err != nil {
		return 0, err
	}
	sel := (cfg & RCG_CFG_SRC_SEL_MASK) >> RCG_CFG_SRC_SEL_SHIFT
	idx := -1
	for i, p := range r.d.ParentMap {
		if p.Sel == sel {
			idx = i
			break
		}
	}
	if idx < 0 {
		log.Printf("%s: hardware selects unknown source %d, assuming %s", r.name, sel, r.d.ParentMap[0].Parent)
		idx = 0
	}
	row := FreqRow{Src: r.d.ParentMap[idx].Parent}
	if hid := cfg & fieldMask(r.d.HIDWidth); hid != 0 {
		row.Div2 = hid + 1
	}
	if r.d.MNDWidth > 0 && cfg&RCG_CFG_MODE_MASK != 0 {
		mask := fieldMask(r.d.MNDWidth)
		m, err := r.regs.Read(base + RCG_M_REG)
		if err != nil {
			return 0, err
		}
		n, err := r.regs.Read(base + RCG_N_REG)
		if err != nil {
			return 0, err
		}
		row.M = m & mask
		row.N = (^n&mask + row.M) & mask
	}
	for _, t := range r.d.FreqTable {
		if t.Src == row.Src && t.hid() == row.hid() && t.mnd() == row.mnd() && (!t.mnd() || (t.M == row.M && t.N == row.N)) {
			row = t
			break
		}
	}
	r.cur = rcgSetting{row: row, parent: idx}
	r.applied = !(r.d.SafeConfig && row == r.safeRow())
	return idx, nil
}

func (r *rcgOps) current() setting {
	if r.stale {
		return unknown{}
	}
	return r.cur
}

// find picks a row for rate according to the rounding policy. The table is sorted by
// ascending frequency.
func (r *rcgOps) find(rate uint64) (FreqRow, error) {
	t := r.d.FreqTable
	switch r.d.Rounding {
	case RoundFloor:
		for i := len(t) - 1; i >= 0; i-- {
			if t[i].Freq <= rate {
				return t[i], nil
			}
		}
	case RoundNearest:
		if len(t) == 0 {
			break
		}
		best := t[0]
		for _, f := range t[1:] {
			if absDiff(f.Freq, rate) <= absDiff(best.Freq, rate) {
				best = f
			}
		}
		return best, nil
	default:
		for _, f := range t {
			if f.Freq >= rate {
				return f, nil
			}
		}
	}
	return FreqRow{}, errors.Wrapf(ErrUnsupportedRate, "%s: no table entry for %d Hz", r.name, rate)
}

func (r *rcgOps) determineRate(req rateRequest) (rateChoice, error) {
	row, err := r.find(req.rate)
	if err != nil {
		return rateChoice{}, err
	}
	idx := r.parentIndex(row.Src)
	if idx < 0 {
		return rateChoice{}, errors.Wrapf(ErrUnsupportedRate, "%s: table source %s not in parent map", r.name, row.Src)
	}
	want := req.parentRate(idx)
	if req.setParent {
		want = row.input()
	}
	return rateChoice{s: rcgSetting{row: row, parent: idx}, parent: idx, parentRate: want}, nil
}

func (r *rcgOps) setRate(st setting, parent int, parentRate uint64) error {
	s, ok := st.(rcgSetting)
	if !ok {
		return errors.Wrapf(ErrInvalidState, "%s: not an RCG setting", r.name)
	}
	if s == r.cur && r.applied && !r.stale {
		return nil
	}
	if r.d.SafeConfig && !r.on {
		// Applied on the next enable.
		r.cur, r.applied, r.stale = s, false, false
		return nil
	}
	if r.d.SafeConfig {
		if err := r.program(r.safeRow(), 0); err != nil {
			r.stale = true
			return err
		}
	}
	if err := r.program(s.row, s.parent); err != nil {
		r.stale = true
		return err
	}
	r.cur, r.applied, r.stale = s, true, false
	return nil
}

// program writes a row's configuration and latches it with the update handshake.
func (r *rcgOps) program(row FreqRow, parent int) error {
	base := r.d.CmdRCGR
	cfg := row.hid()&fieldMask(r.d.HIDWidth) | r.d.ParentMap[parent].Sel<<RCG_CFG_SRC_SEL_SHIFT
	if r.d.MNDWidth > 0 && row.N != 0 {
		mask := fieldMask(r.d.MNDWidth)
		if _, err := r.regs.Update(base+RCG_M_REG, mask, row.M); err != nil {
			return err
		}
		if _, err := r.regs.Update(base+RCG_N_REG, mask, ^(row.N - row.M)); err != nil {
			return err
		}
		d := row.N
		if d < row.M {
			d = row.M
		}
		if hi := 2 * (row.N - row.M); d > hi {
			d = hi
		}
		if _, err := r.regs.Update(base+RCG_D_REG, mask, ^d); err != nil {
			return err
		}
		if row.mnd() {
			cfg |= RCG_CFG_MODE_DUAL_EDGE
		}
	}
	cfgMask := fieldMask(r.d.HIDWidth) | RCG_CFG_SRC_SEL_MASK | RCG_CFG_MODE_MASK | RCG_CFG_HW_CLK_CTRL_MASK
	if _, err := r.regs.Update(base+RCG_CFG_REG, cfgMask, cfg); err != nil {
		return err
	}
	if err := r.regs.SetBits(base+RCG_CMD_REG, RCG_CMD_UPDATE); err != nil {
		return err
	}
	if err := r.regs.PollUntil(base+RCG_CMD_REG, RCG_CMD_UPDATE, 0, r.cfg.PollTimeout); err != nil {
		timeouts.WithLabelValues(r.name, "update").Inc()
		return errors.Wrapf(err, "%s: configuration update not taken", r.name)
	}
	log.Printf("%s: source %s, div2 %d, m/n %d/%d", r.name, row.Src, row.Div2, row.M, row.N)
	return nil
}

// enable restores the recorded configuration of a parked RCG.
func (r *rcgOps) enable() error {
	if !r.d.SafeConfig {
		return nil
	}
	if !r.applied || r.stale {
		if err := r.program(r.cur.row, r.cur.parent); err != nil {
			// The update wasn't taken: still parked, configuration still cached.
			r.applied = false
			return err
		}
	}
	r.on, r.applied, r.stale = true, true, false
	return nil
}

// disable parks the RCG on its always-on safe source.
func (r *rcgOps) disable() error {
	if !r.d.SafeConfig {
		return nil
	}
	r.on, r.applied = false, false
	return r.program(r.safeRow(), 0)
}

func (r *rcgOps) isEnabled() (bool, error) {
	return r.d.SafeConfig && r.applied, nil
}
