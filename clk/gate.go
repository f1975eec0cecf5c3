package clk

import (
	"log"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// lockPath locks n and its ancestors, root first, and returns the matching unlock.
func (c *Controller) lockPath(n *node) func() {
	var path []*node
	for p := n; p != nil; p = c.parentOf(p) {
		path = append(path, p)
	}
	for i := len(path) - 1; i >= 0; i-- {
		path[i].mu.Lock()
	}
	return func() {
		for _, p := range path {
			p.mu.Unlock()
		}
	}
}

// Enable takes a reference on id. The first reference enables the parent chain, votes the
// clock's voltage corner and switches the hardware on. A halt timeout is reported but the
// reference is kept, so the caller must still Disable.
func (c *Controller) Enable(id ID) error {
	span := startSpan("Enable", attribute.Int("clock", int(id)))
	err := c.enable(id)
	endSpan(span, err)
	return err
}

func (c *Controller) enable(id ID) error {
	if err := c.lockActive(); err != nil {
		return err
	}
	defer c.power.mu.RUnlock()
	c.tree.RLock()
	defer c.tree.RUnlock()
	n, err := c.node(id)
	if err != nil {
		return err
	}
	unlock := c.lockPath(n)
	defer unlock()
	return c.enableLocked(n)
}

// enableLocked needs the path to n locked, or the tree locked for writing.
func (c *Controller) enableLocked(n *node) error {
	if n.count > 0 {
		n.count++
		return nil
	}
	var soft error
	p := c.parentOf(n)
	if p != nil {
		if err := c.enableLocked(p); err != nil {
			if !isBestEffort(err) {
				return err
			}
			soft = err
		}
	}
	corner := CornerNone
	if n.class != nil {
		var err error
		corner, err = n.vdd.corner(n.rate)
		if err == nil {
			err = n.class.Vote(corner)
		}
		if err != nil {
			if p != nil {
				c.disableLocked(p) // Ignore error
			}
			return errors.Wrapf(err, "%s", n.name)
		}
	}
	if g, ok := n.ops.(gate); ok {
		if err := g.enable(); err != nil {
			if !isBestEffort(err) {
				if n.class != nil {
					n.class.Unvote(corner)
				}
				if p != nil {
					c.disableLocked(p) // Ignore error
				}
				return errors.Wrapf(err, "%s: couldn't enable", n.name)
			}
			log.Printf("%s: enabled without confirmation: %v", n.name, err)
			soft = err
		}
		hwEnables.WithLabelValues(n.name).Inc()
	}
	n.vote = corner
	n.count = 1
	return soft
}

// Disable drops a reference on id. Dropping the last one switches the hardware off, releases
// the voltage vote and then the parent. Disabling a clock nobody holds does nothing.
func (c *Controller) Disable(id ID) error {
	span := startSpan("Disable", attribute.Int("clock", int(id)))
	err := c.disable(id)
	endSpan(span, err)
	return err
}

func (c *Controller) disable(id ID) error {
	if err := c.lockActive(); err != nil {
		return err
	}
	defer c.power.mu.RUnlock()
	c.tree.RLock()
	defer c.tree.RUnlock()
	n, err := c.node(id)
	if err != nil {
		return err
	}
	unlock := c.lockPath(n)
	defer unlock()
	return c.disableLocked(n)
}

// disableLocked needs the same locks as enableLocked. Hardware errors don't stop the
// release: the node counts as disabled and the first error is returned.
func (c *Controller) disableLocked(n *node) error {
	if n.count == 0 {
		return nil
	}
	n.count--
	if n.count > 0 {
		return nil
	}
	var first error
	if g, ok := n.ops.(gate); ok {
		if err := g.disable(); err != nil {
			first = errors.Wrapf(err, "%s: couldn't disable", n.name)
		}
		hwDisables.WithLabelValues(n.name).Inc()
	}
	if n.class != nil {
		n.class.Unvote(n.vote)
	}
	n.vote = CornerNone
	if p := c.parentOf(n); p != nil {
		if err := c.disableLocked(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DisableUnused switches off everything firmware left running that nobody holds a
// reference on, children before parents. It returns how many clocks it turned off.
func (c *Controller) DisableUnused() (int, error) {
	if err := c.lockActive(); err != nil {
		return 0, err
	}
	defer c.power.mu.RUnlock()
	c.tree.Lock()
	defer c.tree.Unlock()
	off := 0
	var first error
	for i := len(c.order) - 1; i >= 0; i-- {
		n := c.nodes[c.order[i]]
		if n.count > 0 || n.flags&(IgnoreUnused|Critical) != 0 {
			continue
		}
		g, ok := n.ops.(gate)
		if !ok {
			continue
		}
		on, err := g.isEnabled()
		if err != nil || !on {
			continue
		}
		log.Printf("%s: disabling unused clock", n.name)
		if err := g.disable(); err != nil && first == nil {
			first = errors.Wrapf(err, "%s", n.name)
		}
		hwDisables.WithLabelValues(n.name).Inc()
		off++
	}
	return off, first
}
