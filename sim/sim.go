// Package sim models the register-level behaviour of a clock controller well enough to run
// the clk package against memory instead of hardware: RCG update bits self-clear, PLLs lock
// when brought out of reset into run mode, and branch status follows the enable bit.
package sim

import (
	"log"

	"github.com/Jon-Bright/clkctl/clk"
	"github.com/Jon-Bright/clkctl/regmap"
)

// Sim is a simulated register block.
type Sim struct {
	Mem  *regmap.Mem
	Regs *regmap.Region
}

// New builds a block for topo. defaults are power-on register values, applied before any
// behaviour is attached.
func New(topo *clk.Topology, defaults map[uint32]uint32) *Sim {
	m := regmap.NewMem()
	for off, v := range defaults {
		m.Poke(off, v)
	}
	s := &Sim{
		Mem:  m,
		Regs: regmap.NewRegion(topo.Name, m, topo.MaxRegister),
	}
	for i := range topo.Clocks {
		d := &topo.Clocks[i]
		switch d.Kind {
		case clk.PLL:
			s.pll(d.PLL)
		case clk.RCG:
			s.rcg(d.RCG)
		case clk.Branch:
			s.branch(d.Branch)
		}
	}
	log.Printf("sim: %s, %d clocks", topo.Name, len(topo.Clocks))
	return s
}

func (s *Sim) rcg(d *clk.RCGDesc) {
	s.Mem.Hook(d.CmdRCGR+clk.RCG_CMD_REG, func(regs regmap.Regs, old, val uint32) uint32 {
		return val &^ clk.RCG_CMD_UPDATE
	})
}

func (s *Sim) branch(d *clk.BranchDesc) {
	status := func(en uint32) uint32 {
		if en&d.EnableMask != 0 {
			return 0
		}
		return clk.CBCR_CLK_OFF
	}
	s.Mem.Poke(d.HaltReg, s.Mem.Peek(d.HaltReg)|status(s.Mem.Peek(d.EnableReg)))
	s.Mem.Hook(d.EnableReg, func(regs regmap.Regs, old, val uint32) uint32 {
		if d.HaltReg == d.EnableReg {
			return val&^clk.CBCR_CLK_OFF | status(val)
		}
		regs.Set(d.HaltReg, regs.Get(d.HaltReg)&^clk.CBCR_CLK_OFF|status(val))
		return val
	})
}

func (s *Sim) pll(d *clk.PLLDesc) {
	mode := clk.PLLRegister(d.Family, d.Offset, "mode")
	opmode := clk.PLLRegister(d.Family, d.Offset, "opmode")
	locked := func(mode, opmode uint32) bool {
		return mode&clk.PLL_RESET_N != 0 && opmode == clk.PLL_OPMODE_RUN
	}
	withLock := func(mode uint32, lock bool) uint32 {
		if lock {
			return mode | clk.PLL_LOCK_DET
		}
		return mode &^ clk.PLL_LOCK_DET
	}
	s.Mem.Hook(mode, func(regs regmap.Regs, old, val uint32) uint32 {
		if val&clk.PLL_UPDATE != 0 {
			val |= clk.PLL_ACK_LATCH
		} else {
			val &^= clk.PLL_ACK_LATCH
		}
		return withLock(val, locked(val, regs.Get(opmode)))
	})
	s.Mem.Hook(opmode, func(regs regmap.Regs, old, val uint32) uint32 {
		m := regs.Get(mode)
		regs.Set(mode, withLock(m, locked(m, val)))
		return val
	})
}
