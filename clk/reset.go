package clk

import (
	"log"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// RESET_PULSE is how long Reset holds a line asserted.
const RESET_PULSE = time.Microsecond

type reset struct {
	ResetDesc
	clocks []ID
}

func (c *Controller) buildResets(topo *Topology) error {
	for _, r := range topo.Resets {
		if _, ok := c.resets[r.Name]; ok {
			return errors.Errorf("reset %s defined twice", r.Name)
		}
		if r.Bit > 31 {
			return errors.Errorf("reset %s: bit %d", r.Name, r.Bit)
		}
		rs := &reset{ResetDesc: r}
		for _, name := range r.Clocks {
			id, ok := c.byName[name]
			if !ok {
				return errors.Errorf("reset %s: unknown clock %s", r.Name, name)
			}
			rs.clocks = append(rs.clocks, id)
		}
		c.resets[r.Name] = rs
	}
	return nil
}

func (c *Controller) resetLine(name string) (*reset, error) {
	r, ok := c.resets[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "reset %q", name)
	}
	return r, nil
}

// assertLocked needs the tree locked for writing.
func (c *Controller) assertLocked(r *reset) error {
	for _, id := range r.clocks {
		n := c.nodes[id]
		if n.count > 0 {
			return errors.Wrapf(ErrInvalidState, "reset %s: %s is enabled", r.Name, n.name)
		}
	}
	if err := c.regs.SetBits(r.Reg, 1<<r.Bit); err != nil {
		return err
	}
	log.Printf("%s: reset %s asserted", c.name, r.Name)
	return nil
}

func (c *Controller) deassertLocked(r *reset) error {
	if err := c.regs.ClearBits(r.Reg, 1<<r.Bit); err != nil {
		return err
	}
	log.Printf("%s: reset %s deasserted", c.name, r.Name)
	return nil
}

// AssertReset holds a block in reset. It refuses while any clock feeding the block is
// enabled.
func (c *Controller) AssertReset(name string) error {
	span := startSpan("AssertReset", attribute.String("reset", name))
	err := c.withReset(name, c.assertLocked)
	endSpan(span, err)
	return err
}

func (c *Controller) DeassertReset(name string) error {
	span := startSpan("DeassertReset", attribute.String("reset", name))
	err := c.withReset(name, c.deassertLocked)
	endSpan(span, err)
	return err
}

// Reset pulses a reset line: assert, wait RESET_PULSE, deassert.
func (c *Controller) Reset(name string) error {
	span := startSpan("Reset", attribute.String("reset", name))
	err := c.withReset(name, func(r *reset) error {
		if err := c.assertLocked(r); err != nil {
			return err
		}
		time.Sleep(RESET_PULSE)
		return c.deassertLocked(r)
	})
	endSpan(span, err)
	return err
}

// Asserted reports whether a reset line is currently held.
func (c *Controller) Asserted(name string) (bool, error) {
	var on bool
	err := c.withReset(name, func(r *reset) error {
		v, err := c.regs.Read(r.Reg)
		on = v&(1<<r.Bit) != 0
		return err
	})
	return on, err
}

func (c *Controller) withReset(name string, f func(r *reset) error) error {
	if err := c.lockActive(); err != nil {
		return err
	}
	defer c.power.mu.RUnlock()
	c.tree.Lock()
	defer c.tree.Unlock()
	r, err := c.resetLine(name)
	if err != nil {
		return err
	}
	return f(r)
}
