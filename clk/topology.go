package clk

import (
	"fmt"
	"time"
)

// Kind says which hardware block a node models.
type Kind int

const (
	Fixed Kind = iota
	PLL
	PostDiv
	RCG
	Divider
	Branch
)

var kindNames = [...]string{"fixed", "pll", "postdiv", "rcg", "divider", "branch"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Flags change how a node takes part in rate changes and gating.
type Flags uint32

const (
	// SetRateParent lets a rate request on this node change its parent's rate.
	SetRateParent Flags = 1 << iota
	// Critical nodes keep running whatever firmware set; DisableUnused never gates them.
	Critical
	// IgnoreUnused keeps DisableUnused away from a node firmware may depend on.
	IgnoreUnused
)

type PLLFamily int

const (
	PLLLucid PLLFamily = iota // dynamic: L/alpha may change while locked
	PLLZonda                  // static: reprogram only while disabled
)

func (f PLLFamily) String() string {
	switch f {
	case PLLLucid:
		return "lucid"
	case PLLZonda:
		return "zonda"
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// VCORange is an inclusive range of output rates a PLL's oscillator supports.
type VCORange struct {
	Min uint64
	Max uint64
}

// PLLConfig is the one-time calibration written before a PLL is first enabled. Zero
// fields are skipped, as are fields for registers the family doesn't have.
type PLLConfig struct {
	L           uint32
	CalL        uint32
	Alpha       uint32
	ConfigCtl   uint32
	ConfigCtlU  uint32
	ConfigCtlU1 uint32
	UserCtl     uint32
	UserCtlU    uint32
	UserCtlU1   uint32
	TestCtl     uint32
	TestCtlU    uint32
}

type PLLDesc struct {
	Offset uint32
	Family PLLFamily
	VCO    []VCORange
	Config *PLLConfig
}

// DivVal maps a register field value to the divisor it selects.
type DivVal struct {
	Val uint32
	Div uint32
}

// PostDivDesc describes a divider field in a PLL's USER_CTL register.
type PostDivDesc struct {
	Offset uint32 // of the PLL
	Family PLLFamily
	Shift  uint
	Width  uint
	Table  []DivVal
}

// ParentSel maps a parent name to its SRC_SEL field value.
type ParentSel struct {
	Parent string
	Sel    uint32
}

// FreqRow is one entry of an RCG frequency table. Div2 is twice the pre-divisor, so 3 means
// divide by 1.5; 0 and 1 both mean bypass. M and N are the MND counter, N==0 means unused.
type FreqRow struct {
	Freq uint64
	Src  string
	Div2 uint32
	M    uint32
	N    uint32
}

// F builds a FreqRow the way the vendor tables are written: h is the (possibly
// half-integer) pre-divisor, m/n the MND values.
func F(freq uint64, src string, h float64, m, n uint32) FreqRow {
	return FreqRow{Freq: freq, Src: src, Div2: uint32(2 * h), M: m, N: n}
}

// Rounding picks a frequency table row for a request that isn't in the table.
type Rounding int

const (
	RoundCeil    Rounding = iota // lowest row >= request
	RoundFloor                   // highest row <= request
	RoundNearest                 // closest row, ties go up
)

type RCGDesc struct {
	CmdRCGR    uint32
	MNDWidth   uint
	HIDWidth   uint
	ParentMap  []ParentSel
	FreqTable  []FreqRow
	SafeConfig bool
	Rounding   Rounding
}

// DividerDesc is a read-only divider: rate = parent / (field+1).
type DividerDesc struct {
	Reg   uint32
	Shift uint
	Width uint
}

// HaltCheck says how a branch confirms it actually started or stopped.
type HaltCheck int

const (
	Halt      HaltCheck = iota // poll CLK_OFF both ways
	HaltVoted                  // shared vote: poll on enable only
	HaltDelay                  // wait a fixed time instead of polling
	HaltSkip                   // trust the enable bit
)

type BranchDesc struct {
	EnableReg  uint32
	EnableMask uint32
	HaltReg    uint32
	HaltCheck  HaltCheck
	HWCGReg    uint32 // 0: no hardware clock gating control
	HWCGBit    uint32
}

// VddData ties a clock to a voltage class. RateMax[c] is the highest rate the clock may run
// at with the rail at corner c; zero entries are skipped.
type VddData struct {
	Class   string
	RateMax [NumCorners]uint64
}

// Desc is one clock in a Topology. Parents lists the static parent set for every kind but
// RCG, whose parents come from its ParentMap. Names not described anywhere in the topology
// are external parents, rated by Config.Externals.
type Desc struct {
	Name    string
	Kind    Kind
	Parents []string
	Flags   Flags
	Rate    uint64 // Fixed only
	Vdd     *VddData

	PLL     *PLLDesc
	PostDiv *PostDivDesc
	RCG     *RCGDesc
	Divider *DividerDesc
	Branch  *BranchDesc
}

// ResetDesc is one block reset line (BCR). Clocks lists branches that must be off while the
// line is asserted.
type ResetDesc struct {
	Name   string
	Reg    uint32
	Bit    uint
	Clocks []string
}

// Topology is the static description of one clock controller.
type Topology struct {
	Name        string
	MaxRegister uint32
	Clocks      []Desc
	Resets      []ResetDesc
	VddClasses  []string
}

// Config carries everything about a controller that isn't the topology itself.
type Config struct {
	// Externals rates named parents the topology doesn't describe. A missing entry leaves
	// that parent unresolved (rate 0).
	Externals map[string]uint64
	// Power is the supply the whole register block sits behind. nil means always on.
	Power Regulator
	// Rails maps each VddClasses entry to its regulator. Missing classes get a no-op.
	Rails map[string]Regulator

	PollTimeout time.Duration // RCG update handshake
	LockTimeout time.Duration // PLL lock
	HaltTimeout time.Duration // branch halt status
}

const (
	DEFAULT_POLL_TIMEOUT = 500 * time.Microsecond
	DEFAULT_LOCK_TIMEOUT = time.Millisecond
	DEFAULT_HALT_TIMEOUT = 500 * time.Microsecond
	HALT_DELAY           = 10 * time.Microsecond
)

func (c *Config) fill() {
	if c.PollTimeout == 0 {
		c.PollTimeout = DEFAULT_POLL_TIMEOUT
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = DEFAULT_LOCK_TIMEOUT
	}
	if c.HaltTimeout == 0 {
		c.HaltTimeout = DEFAULT_HALT_TIMEOUT
	}
}
