package clk

import (
	"log"

	"github.com/pkg/errors"
)

type pllSetting struct {
	l     uint32
	alpha uint32
}

func (s pllSetting) rate(parent uint64) uint64 {
	return parent*uint64(s.l) + (parent*uint64(s.alpha))>>PLL_ALPHA_WIDTH
}

// alphaSetting splits rate/parent into the integer L and a 16-bit fraction. The fraction is
// rounded up, so the result is never below the request by more than a fraction step.
func alphaSetting(rate, parent uint64) pllSetting {
	l := rate / parent
	rem := rate % parent
	if rem == 0 {
		return pllSetting{l: uint32(l)}
	}
	q := (rem << PLL_ALPHA_WIDTH) / parent
	if (rem<<PLL_ALPHA_WIDTH)%parent != 0 {
		q++
	}
	return pllSetting{l: uint32(l), alpha: uint32(q) & fieldMask(PLL_ALPHA_WIDTH)}
}

type pllOps struct {
	hw
	d   *PLLDesc
	r   pllRegs
	cur pllSetting
	on  bool
}

func newPLL(h hw, d *PLLDesc) *pllOps {
	return &pllOps{hw: h, d: d, r: pllLayouts[d.Family]}
}

func (p *pllOps) reg(off uint32) uint32 {
	return p.d.Offset + off
}

func (p *pllOps) init() (int, error) {
	l, err := p.regs.Read(p.reg(p.r.l))
	if err != nil {
		return 0, err
	}
	a, err := p.regs.Read(p.reg(p.r.alpha))
	if err != nil {
		return 0, err
	}
	mode, err := p.regs.Read(p.reg(p.r.mode))
	if err != nil {
		return 0, err
	}
	p.cur = pllSetting{l: l & 0xffff, alpha: a & fieldMask(PLL_ALPHA_WIDTH)}
	// Output on without lock isn't running: the next enable goes through the full sequence.
	p.on = mode&PLL_OUTCTRL != 0 && mode&PLL_LOCK_DET != 0
	return 0, nil
}

// configure writes the one-time calibration. A PLL that is already running (firmware left
// it on, or we enabled it) is not touched.
func (p *pllOps) configure(c *PLLConfig) error {
	if p.on {
		return errors.Wrapf(ErrInvalidState, "%s: configure while enabled", p.name)
	}
	writes := []struct {
		off uint32
		val uint32
	}{
		{p.r.l, c.L},
		{p.r.calL, c.CalL},
		{p.r.alpha, c.Alpha},
		{p.r.configCtl, c.ConfigCtl},
		{p.r.configCtlU, c.ConfigCtlU},
		{p.r.configCtlU1, c.ConfigCtlU1},
		{p.r.userCtl, c.UserCtl},
		{p.r.userCtlU, c.UserCtlU},
		{p.r.userCtlU1, c.UserCtlU1},
		{p.r.testCtl, c.TestCtl},
		{p.r.testCtlU, c.TestCtlU},
	}
	for _, w := range writes {
		if w.off == noReg || w.val == 0 {
			continue
		}
		if err := p.regs.Write(p.reg(w.off), w.val); err != nil {
			return errors.Wrapf(err, "%s: couldn't configure", p.name)
		}
	}
	switch p.d.Family {
	case PLLLucid:
		// Out of reset, parked in standby until first enable.
		if err := p.regs.SetBits(p.reg(p.r.mode), PLL_RESET_N); err != nil {
			return err
		}
	case PLLZonda:
		if err := p.regs.ClearBits(p.reg(p.r.mode), PLL_BYPASSNL|PLL_RESET_N|PLL_OUTCTRL); err != nil {
			return err
		}
	}
	if err := p.regs.Write(p.reg(p.r.opmode), PLL_OPMODE_STANDBY); err != nil {
		return err
	}
	if c.L != 0 {
		p.cur = pllSetting{l: c.L, alpha: c.Alpha & fieldMask(PLL_ALPHA_WIDTH)}
	}
	log.Printf("%s: configured %v PLL, L %#x alpha %#x", p.name, p.d.Family, p.cur.l, p.cur.alpha)
	return nil
}

func (p *pllOps) current() setting {
	return p.cur
}

func (p *pllOps) inVCO(rate uint64) bool {
	if len(p.d.VCO) == 0 {
		return true
	}
	for _, v := range p.d.VCO {
		if rate >= v.Min && rate <= v.Max {
			return true
		}
	}
	return false
}

func (p *pllOps) determineRate(req rateRequest) (rateChoice, error) {
	prate := req.parentRate(0)
	if prate == 0 {
		return rateChoice{}, errors.Wrapf(ErrUnsupportedRate, "%s: reference has no rate", p.name)
	}
	s := alphaSetting(req.rate, prate)
	if r := s.rate(prate); !p.inVCO(r) {
		return rateChoice{}, errors.Wrapf(ErrUnsupportedRate, "%s: %d Hz outside VCO", p.name, r)
	}
	if p.d.Family == PLLZonda && p.on && s != p.cur {
		return rateChoice{}, errors.Wrapf(ErrInvalidState, "%s: static PLL can't change rate while enabled", p.name)
	}
	return rateChoice{s: s, parent: 0, parentRate: prate}, nil
}

func (p *pllOps) setRate(st setting, parent int, parentRate uint64) error {
	s, ok := st.(pllSetting)
	if !ok {
		return errors.Wrapf(ErrInvalidState, "%s: not a PLL setting", p.name)
	}
	if s == p.cur {
		return nil
	}
	if p.d.Family == PLLZonda && p.on {
		return errors.Wrapf(ErrInvalidState, "%s: static PLL can't change rate while enabled", p.name)
	}
	if err := p.regs.Write(p.reg(p.r.l), s.l); err != nil {
		return err
	}
	if err := p.regs.Write(p.reg(p.r.alpha), s.alpha); err != nil {
		return err
	}
	p.cur = s
	if !p.on {
		return nil
	}
	return p.latch()
}

// latch makes a running dynamic PLL pick up new L/alpha values and waits for it to relock.
func (p *pllOps) latch() error {
	mode := p.reg(p.r.mode)
	if err := p.regs.SetBits(mode, PLL_UPDATE); err != nil {
		return err
	}
	if err := p.regs.PollUntil(mode, PLL_ACK_LATCH, PLL_ACK_LATCH, p.cfg.PollTimeout); err != nil {
		timeouts.WithLabelValues(p.name, "latch").Inc()
		p.regs.ClearBits(mode, PLL_UPDATE) // Ignore error
		return errors.Wrapf(err, "%s: latch not acknowledged", p.name)
	}
	if err := p.regs.ClearBits(mode, PLL_UPDATE); err != nil {
		return err
	}
	if err := p.regs.PollUntil(mode, PLL_LOCK_DET, PLL_LOCK_DET, p.cfg.LockTimeout); err != nil {
		timeouts.WithLabelValues(p.name, "lock").Inc()
		return errors.Wrapf(ErrLockTimeout, "%s: after rate change: %v", p.name, err)
	}
	log.Printf("%s: relocked at L %#x alpha %#x", p.name, p.cur.l, p.cur.alpha)
	return nil
}

func (p *pllOps) enable() error {
	if p.on {
		return nil
	}
	mode := p.reg(p.r.mode)
	if p.d.Family == PLLZonda {
		if err := p.regs.SetBits(mode, PLL_BYPASSNL); err != nil {
			return err
		}
	}
	if err := p.regs.SetBits(mode, PLL_RESET_N); err != nil {
		return err
	}
	if err := p.regs.Write(p.reg(p.r.opmode), PLL_OPMODE_RUN); err != nil {
		return err
	}
	if err := p.regs.PollUntil(mode, PLL_LOCK_DET, PLL_LOCK_DET, p.cfg.LockTimeout); err != nil {
		timeouts.WithLabelValues(p.name, "lock").Inc()
		p.off() // Ignore error
		return errors.Wrapf(ErrLockTimeout, "%s: %v", p.name, err)
	}
	if err := p.regs.SetBits(p.reg(p.r.userCtl), PLL_OUT_MASK); err != nil {
		return err
	}
	if err := p.regs.SetBits(mode, PLL_OUTCTRL); err != nil {
		return err
	}
	p.on = true
	log.Printf("%s: locked", p.name)
	return nil
}

func (p *pllOps) off() error {
	mode := p.reg(p.r.mode)
	if err := p.regs.ClearBits(mode, PLL_OUTCTRL); err != nil {
		return err
	}
	if err := p.regs.ClearBits(p.reg(p.r.userCtl), PLL_OUT_MASK); err != nil {
		return err
	}
	if err := p.regs.Write(p.reg(p.r.opmode), PLL_OPMODE_STANDBY); err != nil {
		return err
	}
	if p.d.Family == PLLZonda {
		return p.regs.ClearBits(mode, PLL_BYPASSNL|PLL_RESET_N)
	}
	return nil
}

func (p *pllOps) disable() error {
	err := p.off()
	p.on = false
	return err
}

func (p *pllOps) isEnabled() (bool, error) {
	mode, err := p.regs.Read(p.reg(p.r.mode))
	if err != nil {
		return false, err
	}
	return mode&PLL_OUTCTRL != 0, nil
}

// divSetting is a divider field value and the divisor it selects.
type divSetting struct {
	val uint32
	div uint32
}

func (s divSetting) rate(parent uint64) uint64 {
	if s.div == 0 {
		return parent
	}
	return parent / uint64(s.div)
}

type postDivOps struct {
	hw
	d   *PostDivDesc
	reg uint32
	cur divSetting
}

func newPostDiv(h hw, d *PostDivDesc) *postDivOps {
	return &postDivOps{hw: h, d: d, reg: d.Offset + pllLayouts[d.Family].userCtl}
}

func (p *postDivOps) lookup(val uint32) divSetting {
	for _, t := range p.d.Table {
		if t.Val == val {
			return divSetting{t.Val, t.Div}
		}
	}
	// Values outside the table pass the VCO through undivided.
	return divSetting{val, 1}
}

func (p *postDivOps) init() (int, error) {
	v, err := p.regs.Read(p.reg)
	if err != nil {
		return 0, err
	}
	p.cur = p.lookup((v >> p.d.Shift) & fieldMask(p.d.Width))
	return 0, nil
}

func (p *postDivOps) current() setting {
	return p.cur
}

func (p *postDivOps) determineRate(req rateRequest) (rateChoice, error) {
	if len(p.d.Table) == 0 {
		return rateChoice{}, errors.Wrapf(ErrUnsupportedRate, "%s: empty divider table", p.name)
	}
	prate := req.parentRate(0)
	var best divSetting
	var bestDiff uint64
	for i, t := range p.d.Table {
		s := divSetting{t.Val, t.Div}
		d := absDiff(s.rate(prate), req.rate)
		if i == 0 || d < bestDiff {
			best, bestDiff = s, d
		}
	}
	want := prate
	if req.setParent && bestDiff != 0 {
		want = req.rate * uint64(best.div)
	}
	return rateChoice{s: best, parent: 0, parentRate: want}, nil
}

func (p *postDivOps) setRate(st setting, parent int, parentRate uint64) error {
	s, ok := st.(divSetting)
	if !ok {
		return errors.Wrapf(ErrInvalidState, "%s: not a divider setting", p.name)
	}
	if s == p.cur {
		return nil
	}
	mask := fieldMask(p.d.Width) << p.d.Shift
	if _, err := p.regs.Update(p.reg, mask, s.val<<p.d.Shift); err != nil {
		return err
	}
	p.cur = s
	return nil
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
