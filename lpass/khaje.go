package lpass

import (
	"github.com/Jon-Bright/clkctl/clk"
)

// External parents of the Khaje audio clock controller.
const (
	BI_TCXO          = "bi_tcxo"
	AON_PLL_OUT_ODD  = "lpass_aon_cc_pll_out_odd_clk"
	AON_MAIN_RCG_SRC = "lpass_aon_cc_main_rcg_clk_src"

	VDD_LPI_CX = "vdd_lpi_cx"
)

const (
	digPLL        = "lpass_audio_cc_dig_pll"
	digPLLOutOdd  = "lpass_audio_cc_dig_pll_out_odd"
	audioPLL      = "lpass_audio_cc_pll"
	pllOutAux2    = "lpass_audio_cc_pll_out_aux2"
	pllOutAux2Div = "lpass_audio_cc_pll_out_aux2_div_clk_src"
)

var (
	parentMap0 = []clk.ParentSel{
		{Parent: BI_TCXO, Sel: 0},
		{Parent: audioPLL, Sel: 3},
		{Parent: digPLLOutOdd, Sel: 4},
		{Parent: AON_PLL_OUT_ODD, Sel: 5},
		{Parent: pllOutAux2Div, Sel: 6},
	}
	parentMap1 = []clk.ParentSel{
		{Parent: BI_TCXO, Sel: 0},
		{Parent: digPLLOutOdd, Sel: 4},
		{Parent: AON_PLL_OUT_ODD, Sel: 5},
	}
	parentMap2 = []clk.ParentSel{
		{Parent: BI_TCXO, Sel: 0},
		{Parent: digPLLOutOdd, Sel: 4},
		{Parent: AON_PLL_OUT_ODD, Sel: 5},
		{Parent: pllOutAux2, Sel: 6},
	}
)

var f = clk.F

var (
	slimbusFreqs = []clk.FreqRow{
		f(6144000, digPLLOutOdd, 10, 1, 2),
		f(12288000, digPLLOutOdd, 10, 0, 0),
		f(24576000, digPLLOutOdd, 5, 0, 0),
	}
	extIF1Freqs = []clk.FreqRow{
		f(256000, AON_PLL_OUT_ODD, 15, 1, 32),
		f(352800, pllOutAux2Div, 10, 1, 32),
		f(512000, AON_PLL_OUT_ODD, 15, 1, 16),
		f(705600, pllOutAux2Div, 10, 1, 16),
		f(768000, AON_PLL_OUT_ODD, 10, 1, 16),
		f(1024000, AON_PLL_OUT_ODD, 15, 1, 8),
		f(1411200, pllOutAux2Div, 10, 1, 8),
		f(1536000, AON_PLL_OUT_ODD, 10, 1, 8),
		f(2048000, AON_PLL_OUT_ODD, 15, 1, 4),
		f(2822400, pllOutAux2Div, 10, 1, 4),
		f(3072000, AON_PLL_OUT_ODD, 10, 1, 4),
		f(4096000, AON_PLL_OUT_ODD, 15, 1, 2),
		f(5644800, pllOutAux2Div, 10, 1, 2),
		f(6144000, AON_PLL_OUT_ODD, 10, 1, 2),
		f(8192000, AON_PLL_OUT_ODD, 15, 0, 0),
		f(9600000, BI_TCXO, 2, 0, 0),
		f(11289600, pllOutAux2Div, 10, 0, 0),
		f(12288000, AON_PLL_OUT_ODD, 10, 0, 0),
		f(24576000, AON_PLL_OUT_ODD, 5, 0, 0),
	}
	// extIF2Freqs adds 19.2 and 22.5792 MHz to extIF1Freqs.
	extIF2Freqs = []clk.FreqRow{
		f(256000, AON_PLL_OUT_ODD, 15, 1, 32),
		f(352800, pllOutAux2Div, 10, 1, 32),
		f(512000, AON_PLL_OUT_ODD, 15, 1, 16),
		f(705600, pllOutAux2Div, 10, 1, 16),
		f(768000, AON_PLL_OUT_ODD, 10, 1, 16),
		f(1024000, AON_PLL_OUT_ODD, 15, 1, 8),
		f(1411200, pllOutAux2Div, 10, 1, 8),
		f(1536000, AON_PLL_OUT_ODD, 10, 1, 8),
		f(2048000, AON_PLL_OUT_ODD, 15, 1, 4),
		f(2822400, pllOutAux2Div, 10, 1, 4),
		f(3072000, AON_PLL_OUT_ODD, 10, 1, 4),
		f(4096000, AON_PLL_OUT_ODD, 15, 1, 2),
		f(5644800, pllOutAux2Div, 10, 1, 2),
		f(6144000, AON_PLL_OUT_ODD, 10, 1, 2),
		f(8192000, AON_PLL_OUT_ODD, 15, 0, 0),
		f(9600000, BI_TCXO, 2, 0, 0),
		f(11289600, pllOutAux2Div, 10, 0, 0),
		f(12288000, AON_PLL_OUT_ODD, 10, 0, 0),
		f(19200000, BI_TCXO, 1, 0, 0),
		f(22579200, pllOutAux2Div, 5, 0, 0),
		f(24576000, AON_PLL_OUT_ODD, 5, 0, 0),
	}
	pcmoeFreqs = []clk.FreqRow{
		f(15360000, AON_PLL_OUT_ODD, 8, 0, 0),
		f(30720000, AON_PLL_OUT_ODD, 4, 0, 0),
		f(61440000, AON_PLL_OUT_ODD, 2, 0, 0),
		f(122880000, AON_PLL_OUT_ODD, 1, 0, 0),
	}
)

type envelope map[clk.Corner]uint64

// vdd puts a clock on vdd_lpi_cx with the given per-corner maximum rates.
func vdd(e envelope) *clk.VddData {
	v := &clk.VddData{Class: VDD_LPI_CX}
	for c, r := range e {
		v.RateMax[c] = r
	}
	return v
}

var (
	ifVdd   = vdd(envelope{clk.CornerLower: 6144000, clk.CornerLow: 12288000, clk.CornerNominal: 24576000})
	mclkVdd = vdd(envelope{clk.CornerLower: 24576000})
)

func rcg(name string, cmd uint32, mnd uint, pm []clk.ParentSel, ft []clk.FreqRow, v *clk.VddData) clk.Desc {
	return clk.Desc{
		Name:  name,
		Kind:  clk.RCG,
		Flags: clk.SetRateParent,
		Vdd:   v,
		RCG: &clk.RCGDesc{
			CmdRCGR:    cmd,
			MNDWidth:   mnd,
			HIDWidth:   5,
			ParentMap:  pm,
			FreqTable:  ft,
			SafeConfig: true,
		},
	}
}

func branch(name, parent string, reg uint32, check clk.HaltCheck) clk.Desc {
	d := clk.Desc{
		Name: name,
		Kind: clk.Branch,
		Branch: &clk.BranchDesc{
			EnableReg:  reg,
			EnableMask: clk.CBCR_CLK_ENABLE,
			HaltReg:    reg,
			HaltCheck:  check,
		},
	}
	if parent != "" {
		d.Parents = []string{parent}
		d.Flags = clk.SetRateParent
	}
	return d
}

func divider(name, parent string, reg uint32) clk.Desc {
	return clk.Desc{
		Name:    name,
		Kind:    clk.Divider,
		Parents: []string{parent},
		Flags:   clk.SetRateParent,
		Divider: &clk.DividerDesc{Reg: reg, Width: 4},
	}
}

// Khaje is the LPASS audio clock controller found on Khaje SoCs.
var Khaje = clk.Topology{
	Name:        "lpassaudiocc-khaje",
	MaxRegister: 0x2f100,
	VddClasses:  []string{VDD_LPI_CX},
	Clocks: []clk.Desc{
		{
			Name:    digPLL,
			Kind:    clk.PLL,
			Parents: []string{BI_TCXO},
			Vdd: vdd(envelope{
				clk.CornerMin:     615000000,
				clk.CornerLow:     1066000000,
				clk.CornerLowL1:   1500000000,
				clk.CornerNominal: 1750000000,
				clk.CornerHigh:    2000000000,
			}),
			PLL: &clk.PLLDesc{
				Offset: 0x3e8,
				Family: clk.PLLLucid,
				VCO:    []clk.VCORange{{Min: 249600000, Max: 2000000000}},
				// 614.4 MHz
				Config: &clk.PLLConfig{
					L:           0x20,
					CalL:        0x44,
					ConfigCtl:   0x20485699,
					ConfigCtlU:  0x00002261,
					ConfigCtlU1: 0xb292399c,
					UserCtl:     0x1,
					UserCtlU:    0x00050805,
				},
			},
		},
		{
			Name:    digPLLOutOdd,
			Kind:    clk.PostDiv,
			Parents: []string{digPLL},
			Flags:   clk.SetRateParent,
			PostDiv: &clk.PostDivDesc{
				Offset: 0x3e8,
				Family: clk.PLLLucid,
				Shift:  12,
				Width:  4,
				Table:  []clk.DivVal{{Val: 0x5, Div: 5}},
			},
		},
		{
			Name:    audioPLL,
			Kind:    clk.PLL,
			Parents: []string{BI_TCXO},
			Vdd: vdd(envelope{
				clk.CornerLower:   1800000000,
				clk.CornerLow:     2400000000,
				clk.CornerNominal: 3000000000,
				clk.CornerHigh:    3600000000,
			}),
			PLL: &clk.PLLDesc{
				Offset: 0x7d0,
				Family: clk.PLLZonda,
				VCO:    []clk.VCORange{{Min: 595200000, Max: 3600000000}},
				Config: &clk.PLLConfig{
					L:          0x3b,
					Alpha:      0xff05,
					ConfigCtl:  0x08200920,
					ConfigCtlU: 0x05002001,
					UserCtl:    0x3000001,
				},
			},
		},
		{
			Name:    pllOutAux2,
			Kind:    clk.PostDiv,
			Parents: []string{audioPLL},
			Flags:   clk.SetRateParent,
			PostDiv: &clk.PostDivDesc{
				Offset: 0x7d0,
				Family: clk.PLLZonda,
				Shift:  8,
				Width:  2,
				Table:  []clk.DivVal{{Val: 0x1, Div: 2}},
			},
		},
		divider(pllOutAux2Div, pllOutAux2, 0x48),

		rcg("aud_slimbus_clk_src", 0x17000, 8, parentMap1, slimbusFreqs, vdd(envelope{clk.CornerLower: 24576000})),
		rcg("lpass_audio_cc_ext_if1_clk_src", 0x10004, 16, parentMap0, extIF1Freqs, ifVdd),
		rcg("lpass_audio_cc_ext_if2_clk_src", 0x11004, 16, parentMap0, extIF2Freqs, ifVdd),
		rcg("lpass_audio_cc_ext_if3_clk_src", 0x12004, 16, parentMap0, extIF1Freqs, ifVdd),
		rcg("lpass_audio_cc_ext_if4_clk_src", 0x13008, 16, parentMap0, extIF1Freqs, ifVdd),
		rcg("lpass_audio_cc_ext_mclk0_clk_src", 0x20004, 8, parentMap0, extIF2Freqs, mclkVdd),
		rcg("lpass_audio_cc_ext_mclk1_clk_src", 0x21004, 8, parentMap0, extIF2Freqs, mclkVdd),
		rcg("lpass_audio_cc_lpaif_pcmoe_clk_src", 0x19004, 8, parentMap2, pcmoeFreqs, vdd(envelope{clk.CornerLower: 122880000})),
		rcg("lpass_audio_cc_rx_mclk_clk_src", 0x24004, 8, parentMap0, extIF2Freqs, mclkVdd),
		rcg("lpass_audio_cc_wsa_mclk_clk_src", 0x22004, 8, parentMap0, extIF2Freqs, mclkVdd),

		divider("lpass_audio_cc_cdiv_rx_mclk_div_clk_src", "lpass_audio_cc_rx_mclk_clk_src", 0x240d0),
		divider("lpass_audio_cc_cdiv_wsa_mclk_div_clk_src", "lpass_audio_cc_wsa_mclk_clk_src", 0x220d0),

		branch("lpass_audio_cc_aud_slimbus_clk", "aud_slimbus_clk_src", 0x17014, clk.Halt),
		branch("lpass_audio_cc_aud_slimbus_core_clk", AON_MAIN_RCG_SRC, 0x1e018, clk.Halt),
		{
			Name:    "lpass_audio_cc_aud_slimbus_npl_clk",
			Kind:    clk.Branch,
			Parents: []string{"aud_slimbus_clk_src"},
			Flags:   clk.SetRateParent,
			Branch: &clk.BranchDesc{
				EnableReg:  0x1701c,
				EnableMask: clk.CBCR_CLK_ENABLE,
				HaltReg:    0x1701c,
				HaltCheck:  clk.HaltVoted,
				HWCGReg:    0x1701c,
				HWCGBit:    1,
			},
		},
		branch("lpass_audio_cc_bus_clk", AON_MAIN_RCG_SRC, 0x1f000, clk.HaltVoted),
		branch("lpass_audio_cc_bus_timeout_clk", AON_MAIN_RCG_SRC, 0x1e014, clk.Halt),
		branch("lpass_audio_cc_codec_mem0_clk", AON_MAIN_RCG_SRC, 0x1e004, clk.Halt),
		branch("lpass_audio_cc_codec_mem1_clk", AON_MAIN_RCG_SRC, 0x1e008, clk.Halt),
		branch("lpass_audio_cc_codec_mem2_clk", AON_MAIN_RCG_SRC, 0x1e00c, clk.Halt),
		branch("lpass_audio_cc_codec_mem3_clk", AON_MAIN_RCG_SRC, 0x1e010, clk.Halt),
		branch("lpass_audio_cc_codec_mem_clk", AON_MAIN_RCG_SRC, 0x1e000, clk.Halt),
		branch("lpass_audio_cc_ext_if1_ebit_clk", "", 0x10020, clk.Halt),
		branch("lpass_audio_cc_ext_if1_ibit_clk", "lpass_audio_cc_ext_if1_clk_src", 0x1001c, clk.Halt),
		branch("lpass_audio_cc_ext_if2_ebit_clk", "", 0x11020, clk.Halt),
		branch("lpass_audio_cc_ext_if2_ibit_clk", "lpass_audio_cc_ext_if2_clk_src", 0x1101c, clk.Halt),
		branch("lpass_audio_cc_ext_if3_ebit_clk", "", 0x12020, clk.Halt),
		branch("lpass_audio_cc_ext_if3_ibit_clk", "lpass_audio_cc_ext_if3_clk_src", 0x1201c, clk.Halt),
		branch("lpass_audio_cc_ext_if4_ebit_clk", "", 0x13024, clk.Halt),
		branch("lpass_audio_cc_ext_if4_ibit_clk", "lpass_audio_cc_ext_if4_clk_src", 0x13020, clk.Halt),
		branch("lpass_audio_cc_ext_mclk0_clk", "lpass_audio_cc_ext_mclk0_clk_src", 0x20018, clk.Halt),
		branch("lpass_audio_cc_ext_mclk1_clk", "lpass_audio_cc_ext_mclk1_clk_src", 0x21018, clk.Halt),
		branch("lpass_audio_cc_lpaif_pcmoe_clk", "lpass_audio_cc_lpaif_pcmoe_clk_src", 0x19018, clk.Halt),
		branch("lpass_audio_cc_rx_mclk_2x_clk", "lpass_audio_cc_rx_mclk_clk_src", 0x240cc, clk.Halt),
		branch("lpass_audio_cc_rx_mclk_clk", "lpass_audio_cc_cdiv_rx_mclk_div_clk_src", 0x240d4, clk.Halt),
		branch("lpass_audio_cc_sampling_clk", "", 0x13000, clk.Halt),
		branch("lpass_audio_cc_wsa_mclk_2x_clk", "lpass_audio_cc_wsa_mclk_clk_src", 0x220cc, clk.Halt),
		branch("lpass_audio_cc_wsa_mclk_clk", "lpass_audio_cc_cdiv_wsa_mclk_div_clk_src", 0x220d4, clk.Halt),
	},
	Resets: []clk.ResetDesc{
		{Name: "LPASS_AUDIO_CC_EXT_IF1_BCR", Reg: 0x10000, Clocks: []string{"lpass_audio_cc_ext_if1_ibit_clk", "lpass_audio_cc_ext_if1_ebit_clk"}},
		{Name: "LPASS_AUDIO_CC_EXT_IF2_BCR", Reg: 0x11000, Clocks: []string{"lpass_audio_cc_ext_if2_ibit_clk", "lpass_audio_cc_ext_if2_ebit_clk"}},
		{Name: "LPASS_AUDIO_CC_EXT_IF3_BCR", Reg: 0x12000, Clocks: []string{"lpass_audio_cc_ext_if3_ibit_clk", "lpass_audio_cc_ext_if3_ebit_clk"}},
		{Name: "LPASS_AUDIO_CC_EXT_IF4_BCR", Reg: 0x13004, Clocks: []string{"lpass_audio_cc_ext_if4_ibit_clk", "lpass_audio_cc_ext_if4_ebit_clk"}},
		{Name: "LPASS_AUDIO_CC_EXT_MCLK0_BCR", Reg: 0x20000, Clocks: []string{"lpass_audio_cc_ext_mclk0_clk"}},
		{Name: "LPASS_AUDIO_CC_EXT_MCLK1_BCR", Reg: 0x21000, Clocks: []string{"lpass_audio_cc_ext_mclk1_clk"}},
		{Name: "LPASS_AUDIO_CC_PCM_DATA_OE_BCR", Reg: 0x19000, Clocks: []string{"lpass_audio_cc_lpaif_pcmoe_clk"}},
		{Name: "LPASS_AUDIO_CC_QCA_SLIMBUS_BCR", Reg: 0x16ffc, Clocks: []string{"lpass_audio_cc_aud_slimbus_clk", "lpass_audio_cc_aud_slimbus_npl_clk"}},
		{Name: "LPASS_AUDIO_CC_RX_MCLK_BCR", Reg: 0x24000, Clocks: []string{"lpass_audio_cc_rx_mclk_clk", "lpass_audio_cc_rx_mclk_2x_clk"}},
		{Name: "LPASS_AUDIO_CC_TX_MCLK_BCR", Reg: 0x23000},
		{Name: "LPASS_AUDIO_CC_WSA_MCLK_BCR", Reg: 0x22000, Clocks: []string{"lpass_audio_cc_wsa_mclk_clk", "lpass_audio_cc_wsa_mclk_2x_clk"}},
	},
}

// KhajeDefaults are register values firmware leaves behind that the driver only reads: the
// fixed output dividers.
var KhajeDefaults = map[uint32]uint32{
	0x48:    0x9, // aux2 / 10
	0x240d0: 0x1, // rx mclk / 2
	0x220d0: 0x1, // wsa mclk / 2
}

// KhajeExternals are the nominal rates of the clocks Khaje takes from outside.
var KhajeExternals = map[string]uint64{
	BI_TCXO:          19200000,
	AON_PLL_OUT_ODD:  122880000,
	AON_MAIN_RCG_SRC: 19200000,
}
