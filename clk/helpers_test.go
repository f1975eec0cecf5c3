package clk_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Jon-Bright/clkctl/clk"
	"github.com/Jon-Bright/clkctl/sim"
	"github.com/Jon-Bright/clkctl/supply"
)

// Register layout of the test controller.
const (
	pll0Base        = 0x1000
	pll0Mode        = pll0Base
	pll0L           = pll0Base + 0x04
	pll0UserCtl     = pll0Base + 0x0c
	zpllBase        = 0x2000
	zdivReg         = 0x3000
	if1CmdRCGR      = 0x4000
	if1IbitCBCR     = 0x4020
	slimBCR         = 0x4ffc
	slimCmdRCGR     = 0x5000
	slimClkCBCR     = 0x5014
	slimNplCBCR     = 0x501c
	testMaxRegister = 0x6000
)

func testTopology() *clk.Topology {
	cx := func(m map[clk.Corner]uint64) *clk.VddData {
		v := &clk.VddData{Class: "cx"}
		for c, r := range m {
			v.RateMax[c] = r
		}
		return v
	}
	return &clk.Topology{
		Name:        "test",
		MaxRegister: testMaxRegister,
		VddClasses:  []string{"cx"},
		Clocks: []clk.Desc{
			{
				Name:    "pll0",
				Kind:    clk.PLL,
				Parents: []string{"xo"},
				Vdd:     cx(map[clk.Corner]uint64{clk.CornerMin: 615000000, clk.CornerLow: 1066000000, clk.CornerNominal: 1500000000}),
				PLL: &clk.PLLDesc{
					Offset: pll0Base,
					Family: clk.PLLLucid,
					VCO:    []clk.VCORange{{Min: 249600000, Max: 2000000000}},
					Config: &clk.PLLConfig{L: 0x20, ConfigCtl: 0x20485699},
				},
			},
			{
				Name:    "pll0_odd",
				Kind:    clk.PostDiv,
				Parents: []string{"pll0"},
				Flags:   clk.SetRateParent,
				PostDiv: &clk.PostDivDesc{Offset: pll0Base, Family: clk.PLLLucid, Shift: 12, Width: 4, Table: []clk.DivVal{{Val: 5, Div: 5}}},
			},
			{
				Name:    "zpll",
				Kind:    clk.PLL,
				Parents: []string{"xo"},
				Vdd:     cx(map[clk.Corner]uint64{clk.CornerLower: 1800000000, clk.CornerHigh: 3600000000}),
				PLL: &clk.PLLDesc{
					Offset: zpllBase,
					Family: clk.PLLZonda,
					VCO:    []clk.VCORange{{Min: 595200000, Max: 3600000000}},
					Config: &clk.PLLConfig{L: 0x3b, Alpha: 0xff05, UserCtl: 0x100},
				},
			},
			{
				Name:    "zpll_aux2",
				Kind:    clk.PostDiv,
				Parents: []string{"zpll"},
				Flags:   clk.SetRateParent,
				PostDiv: &clk.PostDivDesc{Offset: zpllBase, Family: clk.PLLZonda, Shift: 8, Width: 2, Table: []clk.DivVal{{Val: 1, Div: 2}}},
			},
			{
				Name:    "zdiv",
				Kind:    clk.Divider,
				Parents: []string{"zpll_aux2"},
				Flags:   clk.SetRateParent,
				Divider: &clk.DividerDesc{Reg: zdivReg, Width: 4},
			},
			{
				Name:  "if1_src",
				Kind:  clk.RCG,
				Flags: clk.SetRateParent,
				Vdd:   cx(map[clk.Corner]uint64{clk.CornerLower: 6144000, clk.CornerLow: 12288000, clk.CornerNominal: 24576000}),
				RCG: &clk.RCGDesc{
					CmdRCGR:  if1CmdRCGR,
					MNDWidth: 16,
					HIDWidth: 5,
					ParentMap: []clk.ParentSel{
						{Parent: "xo", Sel: 0},
						{Parent: "pll0_odd", Sel: 4},
						{Parent: "aon", Sel: 5},
						{Parent: "zdiv", Sel: 6},
					},
					FreqTable: []clk.FreqRow{
						clk.F(6144000, "aon", 10, 1, 2),
						clk.F(9600000, "xo", 2, 0, 0),
						clk.F(11289600, "zdiv", 10, 0, 0),
						clk.F(12288000, "aon", 10, 0, 0),
						clk.F(24576000, "aon", 5, 0, 0),
					},
					SafeConfig: true,
				},
			},
			{
				Name:    "if1_ibit",
				Kind:    clk.Branch,
				Parents: []string{"if1_src"},
				Flags:   clk.SetRateParent | clk.IgnoreUnused,
				Branch:  &clk.BranchDesc{EnableReg: if1IbitCBCR, EnableMask: clk.CBCR_CLK_ENABLE, HaltReg: if1IbitCBCR},
			},
			{
				Name:  "slim_src",
				Kind:  clk.RCG,
				Flags: clk.SetRateParent,
				Vdd:   cx(map[clk.Corner]uint64{clk.CornerLower: 24576000}),
				RCG: &clk.RCGDesc{
					CmdRCGR:  slimCmdRCGR,
					MNDWidth: 8,
					HIDWidth: 5,
					ParentMap: []clk.ParentSel{
						{Parent: "xo", Sel: 0},
						{Parent: "pll0_odd", Sel: 4},
					},
					FreqTable: []clk.FreqRow{
						clk.F(6144000, "pll0_odd", 10, 1, 2),
						clk.F(12288000, "pll0_odd", 10, 0, 0),
						clk.F(24576000, "pll0_odd", 5, 0, 0),
					},
					SafeConfig: true,
				},
			},
			{
				Name:    "slim_clk",
				Kind:    clk.Branch,
				Parents: []string{"slim_src"},
				Flags:   clk.SetRateParent,
				Branch:  &clk.BranchDesc{EnableReg: slimClkCBCR, EnableMask: clk.CBCR_CLK_ENABLE, HaltReg: slimClkCBCR},
			},
			{
				Name:    "slim_npl",
				Kind:    clk.Branch,
				Parents: []string{"slim_src"},
				Branch:  &clk.BranchDesc{EnableReg: slimNplCBCR, EnableMask: clk.CBCR_CLK_ENABLE, HaltReg: slimNplCBCR, HaltCheck: clk.HaltVoted},
			},
		},
		Resets: []clk.ResetDesc{
			{Name: "SLIM_BCR", Reg: slimBCR, Clocks: []string{"slim_clk", "slim_npl"}},
			{Name: "IF1_BCR", Reg: 0x3ffc, Bit: 2},
		},
	}
}

var testExternals = map[string]uint64{
	"xo":  19200000,
	"aon": 122880000,
}

type fixture struct {
	t    *testing.T
	sim  *sim.Sim
	c    *clk.Controller
	main *supply.Dummy
	cx   *supply.Dummy

	mu     sync.Mutex
	events []string
}

// newFixture brings up the test controller over a simulated block and activates it.
func newFixture(t *testing.T, defaults map[uint32]uint32, externals map[string]uint64) *fixture {
	topo := testTopology()
	regs := map[uint32]uint32{zdivReg: 9}
	for off, v := range defaults {
		regs[off] = v
	}
	f := &fixture{
		t:    t,
		sim:  sim.New(topo, regs),
		main: supply.NewDummy("main"),
		cx:   supply.NewDummy("cx"),
	}
	f.cx.Trace = func(op string, c clk.Corner) {
		f.event(fmt.Sprintf("%s %v", op, c))
	}
	cfg := clk.Config{
		Externals:   externals,
		Power:       f.main,
		Rails:       map[string]clk.Regulator{"cx": f.cx},
		PollTimeout: 200 * time.Microsecond,
		LockTimeout: 200 * time.Microsecond,
		HaltTimeout: 200 * time.Microsecond,
	}
	c, err := clk.New(f.sim.Regs, topo, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.c = c
	if err := c.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	f.clearEvents()
	return f
}

func (f *fixture) event(e string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fixture) clearEvents() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

func (f *fixture) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fixture) id(name string) clk.ID {
	id, err := f.c.Lookup(name)
	if err != nil {
		f.t.Fatalf("Lookup(%s) failed: %v", name, err)
	}
	return id
}

func (f *fixture) rate(name string) uint64 {
	r, err := f.c.Rate(f.id(name))
	if err != nil {
		f.t.Fatalf("Rate(%s) failed: %v", name, err)
	}
	return r
}

func (f *fixture) count(name string) int {
	n, err := f.c.EnableCount(f.id(name))
	if err != nil {
		f.t.Fatalf("EnableCount(%s) failed: %v", name, err)
	}
	return n
}

func (f *fixture) parent(name string) string {
	p, err := f.c.Parent(f.id(name))
	if err != nil {
		f.t.Fatalf("Parent(%s) failed: %v", name, err)
	}
	if p < 0 {
		return ""
	}
	i, err := f.c.Info(p)
	if err != nil {
		f.t.Fatalf("Info(%d) failed: %v", p, err)
	}
	return i.Name
}

func (f *fixture) setRate(name string, rate uint64) uint64 {
	got, err := f.c.SetRate(f.id(name), rate)
	if err != nil {
		f.t.Fatalf("SetRate(%s, %d) failed: %v", name, rate, err)
	}
	return got
}

func (f *fixture) enable(name string) {
	if err := f.c.Enable(f.id(name)); err != nil {
		f.t.Fatalf("Enable(%s) failed: %v", name, err)
	}
}

func (f *fixture) disable(name string) {
	if err := f.c.Disable(f.id(name)); err != nil {
		f.t.Fatalf("Disable(%s) failed: %v", name, err)
	}
}

func (f *fixture) checkRates() {
	if err := f.c.CheckRates(); err != nil {
		f.t.Errorf("tree inconsistent: %v", err)
	}
}
