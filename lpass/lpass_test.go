package lpass

import (
	"testing"

	"github.com/Jon-Bright/clkctl/clk"
	"github.com/Jon-Bright/clkctl/sim"
)

func TestLookup(t *testing.T) {
	v, err := Lookup("qcom,lpassaudiocc-khaje")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if v.Topology != &Khaje {
		t.Errorf("Lookup returned the wrong topology: %s", v.Topology.Name)
	}
	if _, err := Lookup("qcom,lpassaudiocc-nope"); err == nil {
		t.Errorf("Lookup of an unknown controller succeeded")
	}
	if c := Compatibles(); len(c) != 1 || c[0] != "qcom,lpassaudiocc-khaje" {
		t.Errorf("Compatibles got: %v", c)
	}
}

// sourceRate is what a row's source must run at for the row to be exact.
func sourceRate(row clk.FreqRow) uint64 {
	r := row.Freq
	if row.Div2 > 1 {
		r = r * uint64(row.Div2) / 2
	}
	if row.N != 0 && row.M != 0 {
		r = r * uint64(row.N) / uint64(row.M)
	}
	return r
}

func TestFreqTables(t *testing.T) {
	tables := map[string][]clk.FreqRow{
		"slimbus": slimbusFreqs,
		"ext_if1": extIF1Freqs,
		"ext_if2": extIF2Freqs,
		"pcmoe":   pcmoeFreqs,
	}
	rates := map[string]uint64{
		digPLLOutOdd:    122880000,
		AON_PLL_OUT_ODD: 122880000,
		BI_TCXO:         19200000,
		pllOutAux2Div:   112896000,
	}
	for name, tbl := range tables {
		for i, row := range tbl {
			if i > 0 && row.Freq <= tbl[i-1].Freq {
				t.Errorf("%s: row %d (%d Hz) out of order", name, i, row.Freq)
			}
			// Each row is exact from its source's nominal rate.
			if got := sourceRate(row); got != rates[row.Src] {
				t.Errorf("%s: %d Hz row needs %d Hz from %s, want: %d", name, row.Freq, got, row.Src, rates[row.Src])
			}
		}
	}
}

func newKhaje(t *testing.T) (*clk.Controller, *sim.Sim) {
	v, err := Lookup("qcom,lpassaudiocc-khaje")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	s := sim.New(v.Topology, v.Defaults)
	c, err := clk.New(s.Regs, v.Topology, clk.Config{Externals: v.Externals})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	return c, s
}

func TestKhajeBringUp(t *testing.T) {
	c, _ := newKhaje(t)
	if got := len(c.Summary()); got != 46 {
		t.Errorf("clock count got: %d, want: 46", got)
	}
	if got := len(c.ResetNames()); got != 11 {
		t.Errorf("reset count got: %d, want: 11", got)
	}
	tests := []struct {
		name string
		rate uint64
	}{
		{digPLL, 614400000},
		{audioPLL, 1151926464},
		{pllOutAux2Div, 115192646},
		{"lpass_audio_cc_rx_mclk_clk", 9600000},
		{"lpass_audio_cc_bus_clk", 19200000},
	}
	for _, test := range tests {
		id, err := c.Lookup(test.name)
		if err != nil {
			t.Fatalf("Lookup(%s) failed: %v", test.name, err)
		}
		if got, _ := c.Rate(id); got != test.rate {
			t.Errorf("%s rate got: %d, want: %d", test.name, got, test.rate)
		}
	}
}

func TestKhajeAudioPath(t *testing.T) {
	c, s := newKhaje(t)
	src, _ := c.Lookup("lpass_audio_cc_ext_if1_clk_src")
	ibit, _ := c.Lookup("lpass_audio_cc_ext_if1_ibit_clk")
	pll, _ := c.Lookup(audioPLL)

	got, err := c.SetRate(ibit, 11289600)
	if err != nil {
		t.Fatalf("SetRate failed: %v", err)
	}
	if got != 11289600 {
		t.Errorf("SetRate got: %d, want: %d", got, 11289600)
	}
	if r, _ := c.Rate(pll); r != 2257920117 {
		t.Errorf("audio PLL rate got: %d, want: %d", r, 2257920117)
	}
	if err := c.Enable(ibit); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if n, _ := c.EnableCount(pll); n != 1 {
		t.Errorf("audio PLL count got: %d, want: 1", n)
	}
	cfg := s.Mem.Peek(0x10004 + clk.RCG_CFG_REG)
	if sel := (cfg & clk.RCG_CFG_SRC_SEL_MASK) >> clk.RCG_CFG_SRC_SEL_SHIFT; sel != 6 {
		t.Errorf("ext_if1 source select got: %d, want: %d", sel, 6)
	}
	if err := c.AssertReset("LPASS_AUDIO_CC_EXT_IF1_BCR"); err == nil {
		t.Errorf("AssertReset with ext_if1 running succeeded")
	}

	// 12.288 MHz moves the interface onto the always-on PLL and releases the audio PLL.
	if _, err := c.SetRate(src, 12288000); err != nil {
		t.Fatalf("SetRate failed: %v", err)
	}
	if n, _ := c.EnableCount(pll); n != 0 {
		t.Errorf("audio PLL count after reparent got: %d, want: 0", n)
	}
	if err := c.Disable(ibit); err != nil {
		t.Errorf("Disable failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
