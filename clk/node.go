package clk

import (
	"sync"

	"github.com/Jon-Bright/clkctl/regmap"
	"github.com/pkg/errors"
)

// ID identifies a clock within one Controller.
type ID int

// setting is a node's hardware configuration, reduced to what decides its output rate.
// Implementations are comparable values so that an unchanged request can be spotted.
type setting interface {
	rate(parent uint64) uint64
}

type rateRequest struct {
	rate       uint64
	setParent  bool
	parentRate func(idx int) uint64
}

// rateChoice is what a node would do to produce a requested rate: the setting, which of its
// parents to run from (-1 for none) and, when it may change its parent, the parent rate it
// would like.
type rateChoice struct {
	s          setting
	parent     int
	parentRate uint64
}

// ops is the part of a node that knows its hardware.
type ops interface {
	// init reads back the hardware and returns the selected parent index.
	init() (int, error)
	current() setting
	determineRate(req rateRequest) (rateChoice, error)
	// setRate programs s. parentRate is the rate the parent will have once the change
	// completes.
	setRate(s setting, parent int, parentRate uint64) error
}

// gate is implemented by nodes that can be switched on and off.
type gate interface {
	enable() error
	disable() error
	isEnabled() (bool, error)
}

// hw is what every hardware-backed node needs to reach its registers.
type hw struct {
	name string
	regs *regmap.Region
	cfg  *Config
}

type node struct {
	id       ID
	name     string
	kind     Kind
	flags    Flags
	external bool
	ops      ops
	vdd      *VddData
	class    *VddClass

	parents  []ID // static parent set
	parent   int  // index into parents, -1 for roots
	children []ID

	mu    sync.Mutex
	count int
	rate  uint64
	vote  Corner
}

func (n *node) parentID() ID {
	if n.parent < 0 || n.parent >= len(n.parents) {
		return -1
	}
	return n.parents[n.parent]
}

// passthrough is the setting of a node whose output is its input.
type passthrough struct{}

func (passthrough) rate(parent uint64) uint64 {
	return parent
}

type fixedRate uint64

func (f fixedRate) rate(uint64) uint64 {
	return uint64(f)
}

type fixedOps struct {
	hz uint64
}

func (f *fixedOps) init() (int, error) {
	return -1, nil
}

func (f *fixedOps) current() setting {
	return fixedRate(f.hz)
}

func (f *fixedOps) determineRate(req rateRequest) (rateChoice, error) {
	if f.hz == 0 {
		return rateChoice{}, errors.Wrap(ErrUnsupportedRate, "unresolved external clock")
	}
	return rateChoice{s: fixedRate(f.hz), parent: -1}, nil
}

func (f *fixedOps) setRate(s setting, parent int, parentRate uint64) error {
	return nil
}

// fieldMask returns a mask of width bits.
func fieldMask(width uint) uint32 {
	if width >= 32 {
		return ^uint32(0)
	}
	return (1 << width) - 1
}
