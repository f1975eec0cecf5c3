// Package supply provides the regulators a clock controller sits behind: a GPIO switched
// power pin, a corner rail voted through a level register, and a dummy for simulation.
package supply

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Jon-Bright/clkctl/clk"
	"github.com/Jon-Bright/clkctl/regmap"
)

const (
	RAIL_ENABLE     = 1 << 0
	RAIL_LEVEL_MASK = 0x1ff
)

// DefaultLevels maps corners to the hardware voltage levels a rail controller understands.
var DefaultLevels = [clk.NumCorners]uint32{
	clk.CornerNone:    0,
	clk.CornerMin:     48,
	clk.CornerLower:   64,
	clk.CornerLow:     128,
	clk.CornerLowL1:   192,
	clk.CornerNominal: 256,
	clk.CornerHigh:    384,
}

// Rail is a voltage rail controlled through three registers: an enable bit, a requested
// level and the level the controller has actually applied.
type Rail struct {
	Name    string
	regs    *regmap.Region
	enable  uint32
	level   uint32
	ack     uint32
	Levels  [clk.NumCorners]uint32
	Timeout time.Duration
}

func NewRail(name string, regs *regmap.Region, enableReg, levelReg, ackReg uint32) *Rail {
	return &Rail{
		Name:    name,
		regs:    regs,
		enable:  enableReg,
		level:   levelReg,
		ack:     ackReg,
		Levels:  DefaultLevels,
		Timeout: time.Millisecond,
	}
}

func (r *Rail) Enable() error {
	if err := r.regs.SetBits(r.enable, RAIL_ENABLE); err != nil {
		return fmt.Errorf("couldn't enable %s: %v", r.Name, err)
	}
	return nil
}

func (r *Rail) Disable() error {
	if err := r.regs.ClearBits(r.enable, RAIL_ENABLE); err != nil {
		return fmt.Errorf("couldn't disable %s: %v", r.Name, err)
	}
	return nil
}

// SetCorner requests c and waits until the controller reports it applied.
func (r *Rail) SetCorner(c clk.Corner) error {
	if c < 0 || c >= clk.NumCorners {
		return fmt.Errorf("%s: invalid corner %d", r.Name, c)
	}
	lvl := r.Levels[c] & RAIL_LEVEL_MASK
	if _, err := r.regs.Update(r.level, RAIL_LEVEL_MASK, lvl); err != nil {
		return fmt.Errorf("couldn't request %v on %s: %v", c, r.Name, err)
	}
	if err := r.regs.PollUntil(r.ack, RAIL_LEVEL_MASK, lvl, r.Timeout); err != nil {
		return fmt.Errorf("%s never reached %v: %v", r.Name, c, err)
	}
	return nil
}

// Dummy is a regulator with no hardware behind it. It remembers its state and lets tests
// inject failures and watch the order of operations.
type Dummy struct {
	Name string
	// Fail, if set, is asked before each operation ("enable", "disable", "corner") and a
	// non-nil result fails it.
	Fail func(op string) error
	// Trace, if set, is told about each operation that succeeded.
	Trace func(op string, c clk.Corner)

	mu     sync.Mutex
	on     bool
	corner clk.Corner
}

func NewDummy(name string) *Dummy {
	return &Dummy{Name: name}
}

func (d *Dummy) do(op string, c clk.Corner, f func()) error {
	if d.Fail != nil {
		if err := d.Fail(op); err != nil {
			return err
		}
	}
	d.mu.Lock()
	f()
	d.mu.Unlock()
	log.Printf("%s: %s %v", d.Name, op, c)
	if d.Trace != nil {
		d.Trace(op, c)
	}
	return nil
}

func (d *Dummy) Enable() error {
	return d.do("enable", d.Corner(), func() { d.on = true })
}

func (d *Dummy) Disable() error {
	return d.do("disable", d.Corner(), func() { d.on = false })
}

func (d *Dummy) SetCorner(c clk.Corner) error {
	return d.do("corner", c, func() { d.corner = c })
}

func (d *Dummy) On() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on
}

func (d *Dummy) Corner() clk.Corner {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.corner
}
