package clk

import (
	"log"
	"sync"

	"github.com/pkg/errors"
)

// powerSeq tracks who needs the register block powered. Clock operations hold mu for
// reading for their whole duration, so the block can't go away under them.
type powerSeq struct {
	mu     sync.RWMutex
	users  int
	main   Regulator
	closed bool
}

// lockActive read-locks the power state and fails unless the block is powered. On success
// the caller must release c.power.mu.RUnlock.
func (c *Controller) lockActive() error {
	c.power.mu.RLock()
	if c.power.users == 0 {
		c.power.mu.RUnlock()
		return errors.Wrapf(ErrInvalidState, "%s: not active", c.name)
	}
	return nil
}

// Active reports whether anyone holds the block powered.
func (c *Controller) Active() bool {
	c.power.mu.RLock()
	defer c.power.mu.RUnlock()
	return c.power.users > 0
}

// Activate takes a use of the power domain. The first use enables the main supply and then
// every voltage rail; if any of them fails, the ones already on are turned off again.
func (c *Controller) Activate() error {
	span := startSpan("Activate")
	err := c.activate()
	endSpan(span, err)
	return err
}

func (c *Controller) activate() error {
	c.power.mu.Lock()
	defer c.power.mu.Unlock()
	if c.power.closed {
		return errors.Wrapf(ErrInvalidState, "%s: closed", c.name)
	}
	if c.power.users > 0 {
		c.power.users++
		return nil
	}
	if err := c.power.main.Enable(); err != nil {
		return errors.Wrapf(ErrSupplyFailure, "%s: couldn't enable power: %v", c.name, err)
	}
	supplyTransitions.WithLabelValues(c.name, "on").Inc()
	for i, v := range c.classes {
		if err := v.enable(); err != nil {
			for j := i - 1; j >= 0; j-- {
				c.classes[j].disable() // Ignore error
			}
			c.power.main.Disable() // Ignore error
			supplyTransitions.WithLabelValues(c.name, "off").Inc()
			return err
		}
	}
	c.power.users = 1
	log.Printf("%s: active", c.name)
	return nil
}

// Deactivate drops a use of the power domain; the last one turns the rails and the main
// supply off. Deactivating an idle domain does nothing.
func (c *Controller) Deactivate() error {
	span := startSpan("Deactivate")
	err := c.deactivate()
	endSpan(span, err)
	return err
}

func (c *Controller) deactivate() error {
	c.power.mu.Lock()
	defer c.power.mu.Unlock()
	if c.power.users == 0 {
		return nil
	}
	c.power.users--
	if c.power.users > 0 {
		return nil
	}
	return c.powerOff()
}

// powerOff needs c.power.mu held for writing.
func (c *Controller) powerOff() error {
	var first error
	for i := len(c.classes) - 1; i >= 0; i-- {
		if err := c.classes[i].disable(); err != nil && first == nil {
			first = err
		}
	}
	if err := c.power.main.Disable(); err != nil && first == nil {
		first = errors.Wrapf(ErrSupplyFailure, "%s: couldn't disable power: %v", c.name, err)
	}
	supplyTransitions.WithLabelValues(c.name, "off").Inc()
	log.Printf("%s: inactive", c.name)
	return first
}

// Close switches off every clock still held, leaves first, and powers the block down. The
// controller can't be used afterwards.
func (c *Controller) Close() error {
	c.power.mu.Lock()
	defer c.power.mu.Unlock()
	c.tree.Lock()
	defer c.tree.Unlock()
	if c.power.closed {
		return nil
	}
	c.power.closed = true
	var first error
	for i := len(c.order) - 1; i >= 0; i-- {
		n := c.nodes[c.order[i]]
		if n.count == 0 {
			continue
		}
		if c.power.users == 0 {
			// Nothing to touch in hardware; just drop the bookkeeping.
			if n.class != nil {
				n.class.Unvote(n.vote)
			}
			n.count, n.vote = 0, CornerNone
			continue
		}
		// A node holds one reference on its parent however many it has itself.
		n.count = 1
		if err := c.disableLocked(n); err != nil && first == nil {
			first = err
		}
	}
	if c.power.users > 0 {
		c.power.users = 0
		if err := c.powerOff(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
