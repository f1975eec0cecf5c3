package clk

import (
	"log"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// change is one node's part in a rate change.
type change struct {
	n *node

	old           setting
	oldParent     int
	oldRate       uint64
	oldParentRate uint64

	s          setting
	parent     int
	parentRate uint64
	rate       uint64

	done bool
}

func (ch *change) reparents() bool {
	return ch.parent != ch.oldParent
}

func (ch *change) same() bool {
	return ch.s == ch.old && !ch.reparents()
}

// plan works out how n would produce rate, walking up through parents that are allowed to
// and need to change. Changes are appended root first. It touches no hardware.
func (c *Controller) plan(n *node, rate uint64, out *[]*change) (uint64, error) {
	req := rateRequest{
		rate:      rate,
		setParent: n.flags&SetRateParent != 0,
		parentRate: func(idx int) uint64 {
			if idx < 0 || idx >= len(n.parents) {
				return 0
			}
			return c.nodes[n.parents[idx]].rate
		},
	}
	choice, err := n.ops.determineRate(req)
	if err != nil {
		return 0, err
	}
	var prate uint64
	if choice.parent >= 0 {
		if choice.parent >= len(n.parents) {
			return 0, errors.Wrapf(ErrUnsupportedRate, "%s has no parent", n.name)
		}
		p := c.nodes[n.parents[choice.parent]]
		prate = p.rate
		if req.setParent && choice.parentRate != 0 && choice.parentRate != p.rate {
			prate, err = c.plan(p, choice.parentRate, out)
			if err != nil {
				return 0, err
			}
		}
		if prate == 0 && rate != 0 {
			return 0, errors.Wrapf(ErrUnsupportedRate, "%s: parent %s has no rate", n.name, p.name)
		}
	}
	var oldParentRate uint64
	if p := c.parentOf(n); p != nil {
		oldParentRate = p.rate
	}
	achieved := choice.s.rate(prate)
	*out = append(*out, &change{
		n:             n,
		old:           n.ops.current(),
		oldParent:     n.parent,
		oldRate:       n.rate,
		oldParentRate: oldParentRate,
		s:             choice.s,
		parent:        choice.parent,
		parentRate:    prate,
		rate:          achieved,
	})
	return achieved, nil
}

// predict returns the rate every node touched by plan would end up at.
func (c *Controller) predict(plan []*change) map[ID]uint64 {
	pred := make(map[ID]uint64)
	planned := make(map[ID]bool)
	for _, ch := range plan {
		pred[ch.n.id] = ch.rate
		planned[ch.n.id] = true
	}
	var walk func(n *node)
	walk = func(n *node) {
		for _, id := range n.children {
			if planned[id] {
				continue
			}
			ch := c.nodes[id]
			pred[id] = ch.ops.current().rate(pred[n.id])
			walk(ch)
		}
	}
	for _, ch := range plan {
		walk(ch.n)
	}
	return pred
}

type voteChange struct {
	n        *node
	old, new Corner
}

// votesFor checks every predicted rate against its voltage envelope and lists the corner
// changes enabled nodes need. Nodes on the planned chain must fit even while disabled.
func (c *Controller) votesFor(plan []*change, pred map[ID]uint64) ([]voteChange, error) {
	planned := make(map[ID]bool)
	for _, ch := range plan {
		planned[ch.n.id] = true
	}
	var out []voteChange
	for _, id := range c.order {
		r, ok := pred[id]
		n := c.nodes[id]
		if !ok || n.class == nil {
			continue
		}
		n.mu.Lock()
		count := n.count
		n.mu.Unlock()
		if count == 0 && !planned[id] {
			continue
		}
		corner, err := n.vdd.corner(r)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", n.name)
		}
		if count > 0 && corner != n.vote {
			out = append(out, voteChange{n, n.vote, corner})
		}
	}
	return out, nil
}

// withVotes raises every corner in vs, runs apply and then drops the old corners. If apply
// fails the new votes are dropped instead.
func withVotes(vs []voteChange, apply func() error) error {
	if len(vs) == 0 {
		return apply()
	}
	v := vs[0]
	return v.n.class.Transition(v.old, v.new, func() error {
		return withVotes(vs[1:], apply)
	})
}

// SetRate asks for id to run at rate and returns what it actually runs at. Parents are
// reprogrammed before children; on failure everything already changed is put back.
func (c *Controller) SetRate(id ID, rate uint64) (uint64, error) {
	span := startSpan("SetRate", attribute.Int("clock", int(id)), attribute.Int64("rate", int64(rate)))
	start := time.Now()
	achieved, err := c.setRate(id, rate)
	setRateSeconds.Observe(time.Since(start).Seconds())
	if n, nerr := c.node(id); nerr == nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		rateChanges.WithLabelValues(n.name, result).Inc()
	}
	span.SetAttributes(attribute.Int64("achieved", int64(achieved)))
	endSpan(span, err)
	return achieved, err
}

func (c *Controller) setRate(id ID, rate uint64) (uint64, error) {
	if err := c.lockActive(); err != nil {
		return 0, err
	}
	defer c.power.mu.RUnlock()
	c.tree.Lock()
	defer c.tree.Unlock()
	n, err := c.node(id)
	if err != nil {
		return 0, err
	}
	var plan []*change
	achieved, err := c.plan(n, rate, &plan)
	if err != nil {
		return 0, err
	}
	unchanged := true
	for _, ch := range plan {
		if !ch.same() {
			unchanged = false
			break
		}
	}
	if unchanged {
		return achieved, nil
	}
	votes, err := c.votesFor(plan, c.predict(plan))
	if err != nil {
		return 0, err
	}
	err = withVotes(votes, func() error {
		return c.apply(plan)
	})
	if err != nil {
		return 0, err
	}
	for _, v := range votes {
		v.n.vote = v.new
	}
	c.recalc(plan[0].n)
	log.Printf("%s: %d Hz requested, running at %d Hz", n.name, rate, n.rate)
	return n.rate, nil
}

// RoundRate returns the rate SetRate would achieve for id, without changing anything.
func (c *Controller) RoundRate(id ID, rate uint64) (uint64, error) {
	c.tree.Lock()
	defer c.tree.Unlock()
	n, err := c.node(id)
	if err != nil {
		return 0, err
	}
	var plan []*change
	return c.plan(n, rate, &plan)
}

func (c *Controller) apply(plan []*change) error {
	for i, ch := range plan {
		if err := c.applyOne(ch); err != nil {
			c.rollback(plan[:i+1])
			return err
		}
	}
	return nil
}

func (c *Controller) applyOne(ch *change) error {
	n := ch.n
	if ch.same() {
		n.rate = ch.rate
		ch.done = true
		return nil
	}
	var np *node
	if ch.reparents() {
		np = c.nodes[n.parents[ch.parent]]
		if n.count > 0 {
			if err := c.enableLocked(np); err != nil {
				if !isBestEffort(err) {
					return errors.Wrapf(err, "%s: couldn't enable new parent", n.name)
				}
				log.Printf("%s: %v", n.name, err)
			}
		}
	}
	if err := n.ops.setRate(ch.s, ch.parent, ch.parentRate); err != nil {
		if np != nil && n.count > 0 {
			c.disableLocked(np) // Ignore error
		}
		return errors.Wrapf(err, "%s", n.name)
	}
	if np != nil {
		old := c.parentOf(n)
		c.reparent(n, ch.parent)
		if old != nil && n.count > 0 {
			if err := c.disableLocked(old); err != nil {
				log.Printf("%s: releasing old parent: %v", n.name, err)
			}
		}
	}
	n.rate = ch.rate
	ch.done = true
	return nil
}

// rollback restores the nodes of a failed change, newest first. Failures here are only
// logged: the original error is what the caller gets.
func (c *Controller) rollback(plan []*change) {
	for i := len(plan) - 1; i >= 0; i-- {
		ch := plan[i]
		n := ch.n
		if ch.same() {
			n.rate = ch.oldRate
			continue
		}
		if err := n.ops.setRate(ch.old, ch.oldParent, ch.oldParentRate); err != nil {
			log.Printf("%s: couldn't roll back: %v", n.name, err)
		}
		if ch.done && ch.reparents() {
			cur := c.parentOf(n)
			c.reparent(n, ch.oldParent)
			if n.count > 0 {
				if p := c.parentOf(n); p != nil {
					c.enableLocked(p) // Ignore error
				}
				if cur != nil {
					c.disableLocked(cur) // Ignore error
				}
			}
		}
		n.rate = ch.oldRate
		rollbacks.Inc()
		log.Printf("%s: rolled back", n.name)
	}
	// A node whose restore failed no longer knows its rate.
	for _, ch := range plan {
		c.recalc(ch.n)
	}
}

// reparent moves n under its idx'th parent.
func (c *Controller) reparent(n *node, idx int) {
	if old := c.parentOf(n); old != nil {
		for i, id := range old.children {
			if id == n.id {
				old.children = append(old.children[:i], old.children[i+1:]...)
				break
			}
		}
	}
	n.parent = idx
	if p := c.parentOf(n); p != nil {
		p.children = append(p.children, n.id)
	}
}
