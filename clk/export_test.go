package clk

import (
	"github.com/pkg/errors"
)

// CheckRates verifies every cached rate against its parent and reference counts against
// children, for tests in clk_test.
func (c *Controller) CheckRates() error {
	c.tree.Lock()
	defer c.tree.Unlock()
	held := make(map[ID]int)
	for _, n := range c.nodes {
		if n.count < 0 {
			return errors.Errorf("%s: count %d", n.name, n.count)
		}
		if n.count > 0 {
			if p := n.parentID(); p >= 0 {
				held[p]++
			}
		}
	}
	for _, n := range c.nodes {
		var prate uint64
		if p := c.parentOf(n); p != nil {
			prate = p.rate
		}
		if want := n.ops.current().rate(prate); n.rate != want {
			return errors.Errorf("%s: rate %d, parent gives %d", n.name, n.rate, want)
		}
		if held[n.id] > 0 && n.count < 1 {
			return errors.Errorf("%s: %d enabled children but count %d", n.name, held[n.id], n.count)
		}
	}
	return nil
}
