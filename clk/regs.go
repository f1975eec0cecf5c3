package clk

// Register layouts. Offsets and bit positions are fixed by the hardware.

// Root clock generator (RCG2), relative to the command register.
const (
	RCG_CMD_REG = 0x0
	RCG_CFG_REG = 0x4
	RCG_M_REG   = 0x8
	RCG_N_REG   = 0xc
	RCG_D_REG   = 0x10

	RCG_CMD_UPDATE   = 1 << 0
	RCG_CMD_ROOT_EN  = 1 << 1
	RCG_CMD_ROOT_OFF = uint32(1 << 31)

	RCG_CFG_SRC_DIV_SHIFT    = 0
	RCG_CFG_SRC_SEL_SHIFT    = 8
	RCG_CFG_SRC_SEL_MASK     = 0x7 << RCG_CFG_SRC_SEL_SHIFT
	RCG_CFG_MODE_SHIFT       = 12
	RCG_CFG_MODE_MASK        = 0x3 << RCG_CFG_MODE_SHIFT
	RCG_CFG_MODE_DUAL_EDGE   = 0x2 << RCG_CFG_MODE_SHIFT
	RCG_CFG_HW_CLK_CTRL_MASK = 1 << 20
)

// Branch control register (CBCR).
const (
	CBCR_CLK_ENABLE = 1 << 0
	CBCR_HW_CTL     = 1 << 1
	CBCR_CLK_OFF    = uint32(1 << 31)
)

// Alpha PLL mode register bits and operating modes.
const (
	PLL_OUTCTRL   = 1 << 0
	PLL_BYPASSNL  = 1 << 1
	PLL_RESET_N   = 1 << 2
	PLL_UPDATE    = 1 << 22
	PLL_ACK_LATCH = 1 << 29
	PLL_LOCK_DET  = uint32(1 << 31)

	PLL_OPMODE_STANDBY = 0x0
	PLL_OPMODE_RUN     = 0x1

	// USER_CTL output enables
	PLL_OUT_MAIN = 1 << 0
	PLL_OUT_AUX  = 1 << 1
	PLL_OUT_AUX2 = 1 << 2
	PLL_OUT_MASK = PLL_OUT_MAIN | PLL_OUT_AUX | PLL_OUT_AUX2

	PLL_ALPHA_WIDTH = 16
)

// noReg marks a register a PLL family doesn't have.
const noReg = ^uint32(0)

// pllRegs holds register offsets relative to a PLL's base.
type pllRegs struct {
	mode        uint32
	l           uint32
	calL        uint32
	alpha       uint32
	userCtl     uint32
	userCtlU    uint32
	userCtlU1   uint32
	configCtl   uint32
	configCtlU  uint32
	configCtlU1 uint32
	testCtl     uint32
	testCtlU    uint32
	opmode      uint32
	status      uint32
}

var pllLayouts = map[PLLFamily]pllRegs{
	PLLLucid: {
		mode:        0x00,
		l:           0x04,
		calL:        0x08,
		userCtl:     0x0c,
		userCtlU:    0x10,
		userCtlU1:   0x14,
		configCtl:   0x18,
		configCtlU:  0x1c,
		configCtlU1: 0x20,
		testCtl:     0x24,
		testCtlU:    0x28,
		status:      0x30,
		opmode:      0x38,
		alpha:       0x40,
	},
	PLLZonda: {
		mode:        0x00,
		l:           0x04,
		calL:        noReg,
		alpha:       0x08,
		userCtl:     0x0c,
		userCtlU:    noReg,
		userCtlU1:   noReg,
		configCtl:   0x10,
		configCtlU:  0x14,
		configCtlU1: 0x18,
		testCtl:     0x1c,
		testCtlU:    0x20,
		opmode:      0x28,
		status:      0x38,
	},
}

// PLLRegister returns the absolute offset of one of a PLL's registers, for code that models
// the hardware. name is one of "mode", "l", "alpha", "user_ctl", "opmode".
func PLLRegister(f PLLFamily, base uint32, name string) uint32 {
	l := pllLayouts[f]
	switch name {
	case "mode":
		return base + l.mode
	case "l":
		return base + l.l
	case "alpha":
		return base + l.alpha
	case "user_ctl":
		return base + l.userCtl
	case "opmode":
		return base + l.opmode
	}
	return noReg
}
