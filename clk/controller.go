package clk

import (
	"log"
	"sort"
	"sync"

	"github.com/Jon-Bright/clkctl/regmap"
	"github.com/pkg/errors"
)

// Controller owns one clock tree and the register block behind it.
type Controller struct {
	name string
	regs *regmap.Region
	cfg  Config

	// tree guards the shape of the tree and every node's setting. Enable and Disable hold it
	// for reading plus the node locks of the path they touch; rate changes, resets and
	// teardown hold it for writing.
	tree    sync.RWMutex
	nodes   []*node
	byName  map[string]ID
	order   []ID // parents before children, over every possible parent
	classes []*VddClass
	resets  map[string]*reset

	power powerSeq
}

// New builds the tree described by topo over regs. It powers the block up, applies each
// PLL's one-time configuration, reads back what the hardware is doing and powers it down
// again.
func New(regs *regmap.Region, topo *Topology, cfg Config) (*Controller, error) {
	cfg.fill()
	c := &Controller{
		name:   topo.Name,
		regs:   regs,
		cfg:    cfg,
		byName: make(map[string]ID),
		resets: make(map[string]*reset),
	}
	c.power.main = cfg.Power
	if c.power.main == nil {
		c.power.main = nopRegulator{}
	}
	classes := make(map[string]*VddClass)
	for _, name := range topo.VddClasses {
		v := NewVddClass(name, cfg.Rails[name])
		classes[name] = v
		c.classes = append(c.classes, v)
	}
	if err := c.build(topo, classes); err != nil {
		return nil, errors.Wrapf(err, "%s: bad topology", topo.Name)
	}
	if err := c.buildResets(topo); err != nil {
		return nil, errors.Wrapf(err, "%s: bad topology", topo.Name)
	}

	if err := c.Activate(); err != nil {
		return nil, errors.Wrapf(err, "%s: couldn't power up", topo.Name)
	}
	defer c.Deactivate() // Ignore error
	c.tree.Lock()
	defer c.tree.Unlock()
	for _, id := range c.order {
		n := c.nodes[id]
		idx, err := n.ops.init()
		if err != nil {
			return nil, errors.Wrapf(err, "%s: couldn't read state", n.name)
		}
		if idx >= len(n.parents) {
			idx = -1
		}
		n.parent = idx
		if p := n.parentID(); p >= 0 {
			c.nodes[p].children = append(c.nodes[p].children, id)
		}
	}
	// A PLL firmware left running keeps its settings.
	for _, id := range c.order {
		n := c.nodes[id]
		p, ok := n.ops.(*pllOps)
		if !ok || p.d.Config == nil {
			continue
		}
		if p.on {
			log.Printf("%s: left running at L %#x alpha %#x, not configuring", n.name, p.cur.l, p.cur.alpha)
			continue
		}
		if err := p.configure(p.d.Config); err != nil {
			log.Printf("%s: skipping configuration: %v", n.name, err)
		}
	}
	for _, id := range c.order {
		if c.nodes[id].parent < 0 {
			c.recalc(c.nodes[id])
		}
	}
	log.Printf("%s: registered %d clocks, %d resets", c.name, len(topo.Clocks), len(c.resets))
	return c, nil
}

func (c *Controller) build(topo *Topology, classes map[string]*VddClass) error {
	descs := make(map[string]*Desc)
	for i := range topo.Clocks {
		d := &topo.Clocks[i]
		if d.Name == "" {
			return errors.Errorf("clock %d has no name", i)
		}
		if _, ok := descs[d.Name]; ok {
			return errors.Errorf("%s defined twice", d.Name)
		}
		descs[d.Name] = d
	}
	for i := range topo.Clocks {
		d := &topo.Clocks[i]
		n, err := c.newNode(d)
		if err != nil {
			return errors.Wrapf(err, "%s", d.Name)
		}
		if d.Vdd != nil {
			n.vdd = d.Vdd
			n.class = classes[d.Vdd.Class]
			if n.class == nil {
				return errors.Errorf("%s: unknown vdd class %s", d.Name, d.Vdd.Class)
			}
		}
		c.add(n)
	}
	// Parents nobody describes are external, rated by the config.
	for i := range topo.Clocks {
		d := &topo.Clocks[i]
		n := c.nodes[c.byName[d.Name]]
		for _, p := range parentNames(d) {
			id, ok := c.byName[p]
			if !ok {
				hz := c.cfg.Externals[p]
				if hz == 0 {
					log.Printf("%s: external parent %s has no rate", c.name, p)
				}
				id = c.add(&node{name: p, kind: Fixed, external: true, ops: &fixedOps{hz: hz}})
			}
			n.parents = append(n.parents, id)
		}
	}
	return c.sort()
}

func parentNames(d *Desc) []string {
	if d.Kind != RCG || d.RCG == nil {
		return d.Parents
	}
	names := make([]string, len(d.RCG.ParentMap))
	for i, p := range d.RCG.ParentMap {
		names[i] = p.Parent
	}
	return names
}

func (c *Controller) add(n *node) ID {
	n.id = ID(len(c.nodes))
	n.parent = -1
	c.nodes = append(c.nodes, n)
	c.byName[n.name] = n.id
	return n.id
}

func (c *Controller) newNode(d *Desc) (*node, error) {
	h := hw{name: d.Name, regs: c.regs, cfg: &c.cfg}
	n := &node{name: d.Name, kind: d.Kind, flags: d.Flags}
	missing := errors.Errorf("%v clock without %v description", d.Kind, d.Kind)
	switch d.Kind {
	case Fixed:
		n.ops = &fixedOps{hz: d.Rate}
	case PLL:
		if d.PLL == nil {
			return nil, missing
		}
		if len(d.Parents) != 1 {
			return nil, errors.New("a PLL needs exactly one reference")
		}
		n.ops = newPLL(h, d.PLL)
	case PostDiv:
		if d.PostDiv == nil {
			return nil, missing
		}
		n.ops = newPostDiv(h, d.PostDiv)
	case RCG:
		if d.RCG == nil {
			return nil, missing
		}
		if err := checkRCG(d.RCG); err != nil {
			return nil, err
		}
		n.ops = newRCG(h, d.RCG)
	case Divider:
		if d.Divider == nil {
			return nil, missing
		}
		n.ops = newDivider(h, d.Divider)
	case Branch:
		if d.Branch == nil {
			return nil, missing
		}
		n.ops = newBranch(h, d.Branch)
	default:
		return nil, errors.Errorf("unknown kind %v", d.Kind)
	}
	return n, nil
}

func checkRCG(d *RCGDesc) error {
	if len(d.ParentMap) == 0 {
		return errors.New("RCG without parents")
	}
	srcs := make(map[string]bool)
	for _, p := range d.ParentMap {
		srcs[p.Parent] = true
	}
	for i, f := range d.FreqTable {
		if i > 0 && f.Freq < d.FreqTable[i-1].Freq {
			return errors.Errorf("frequency table not sorted at %d Hz", f.Freq)
		}
		if !srcs[f.Src] {
			return errors.Errorf("%d Hz row uses %s, not a parent", f.Freq, f.Src)
		}
		if f.hid() > fieldMask(d.HIDWidth) {
			return errors.Errorf("%d Hz row divider %d too wide", f.Freq, f.Div2)
		}
		if f.N != 0 && (d.MNDWidth == 0 || f.M > f.N || f.N > fieldMask(d.MNDWidth)) {
			return errors.Errorf("%d Hz row has bad M/N %d/%d", f.Freq, f.M, f.N)
		}
	}
	return nil
}

// sort fills c.order so that every possible parent comes before its children, rejecting
// cycles.
func (c *Controller) sort() error {
	const (
		unseen = iota
		visiting
		done
	)
	state := make([]int, len(c.nodes))
	var visit func(id ID) error
	visit = func(id ID) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return errors.Errorf("parent cycle through %s", c.nodes[id].name)
		}
		state[id] = visiting
		for _, p := range c.nodes[id].parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		state[id] = done
		c.order = append(c.order, id)
		return nil
	}
	for id := range c.nodes {
		if err := visit(ID(id)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) node(id ID) (*node, error) {
	if id < 0 || int(id) >= len(c.nodes) {
		return nil, errors.Wrapf(ErrNotFound, "clock id %d", id)
	}
	return c.nodes[id], nil
}

func (c *Controller) parentOf(n *node) *node {
	if p := n.parentID(); p >= 0 {
		return c.nodes[p]
	}
	return nil
}

// recalc rederives the rate of n and everything below it from the current settings.
func (c *Controller) recalc(n *node) {
	var prate uint64
	if p := c.parentOf(n); p != nil {
		prate = p.rate
	}
	n.rate = n.ops.current().rate(prate)
	clockRate.WithLabelValues(n.name).Set(float64(n.rate))
	for _, ch := range n.children {
		c.recalc(c.nodes[ch])
	}
}

// Name returns the controller's topology name.
func (c *Controller) Name() string {
	return c.name
}

// Lookup returns the ID of the clock called name.
func (c *Controller) Lookup(name string) (ID, error) {
	id, ok := c.byName[name]
	if !ok {
		return -1, errors.Wrapf(ErrNotFound, "clock %q", name)
	}
	return id, nil
}

// Rate returns the cached rate of id. 0 means unknown.
func (c *Controller) Rate(id ID) (uint64, error) {
	c.tree.RLock()
	defer c.tree.RUnlock()
	n, err := c.node(id)
	if err != nil {
		return 0, err
	}
	return n.rate, nil
}

// Parent returns the currently selected parent of id, or -1 for a root.
func (c *Controller) Parent(id ID) (ID, error) {
	c.tree.RLock()
	defer c.tree.RUnlock()
	n, err := c.node(id)
	if err != nil {
		return -1, err
	}
	return n.parentID(), nil
}

func (c *Controller) EnableCount(id ID) (int, error) {
	c.tree.RLock()
	defer c.tree.RUnlock()
	n, err := c.node(id)
	if err != nil {
		return 0, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count, nil
}

// Info is a snapshot of one clock.
type Info struct {
	ID       ID
	Name     string
	Kind     Kind
	Rate     uint64
	Count    int
	Parent   string
	Corner   Corner
	External bool
}

func (c *Controller) info(n *node) Info {
	n.mu.Lock()
	defer n.mu.Unlock()
	i := Info{
		ID:       n.id,
		Name:     n.name,
		Kind:     n.kind,
		Rate:     n.rate,
		Count:    n.count,
		Corner:   n.vote,
		External: n.external,
	}
	if p := c.parentOf(n); p != nil {
		i.Parent = p.name
	}
	return i
}

func (c *Controller) Info(id ID) (Info, error) {
	c.tree.RLock()
	defer c.tree.RUnlock()
	n, err := c.node(id)
	if err != nil {
		return Info{}, err
	}
	return c.info(n), nil
}

// Summary returns every clock, parents before children.
func (c *Controller) Summary() []Info {
	c.tree.RLock()
	defer c.tree.RUnlock()
	out := make([]Info, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.info(c.nodes[id]))
	}
	return out
}

// VddClass returns the voltage class called name.
func (c *Controller) VddClass(name string) (*VddClass, error) {
	for _, v := range c.classes {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "vdd class %q", name)
}

// ResetNames returns the names of all reset lines, sorted.
func (c *Controller) ResetNames() []string {
	names := make([]string, 0, len(c.resets))
	for n := range c.resets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ConfigurePLL rewrites a PLL's calibration. Only allowed while nothing uses the PLL.
func (c *Controller) ConfigurePLL(id ID, cfg PLLConfig) error {
	if err := c.lockActive(); err != nil {
		return err
	}
	defer c.power.mu.RUnlock()
	c.tree.Lock()
	defer c.tree.Unlock()
	n, err := c.node(id)
	if err != nil {
		return err
	}
	p, ok := n.ops.(*pllOps)
	if !ok {
		return errors.Wrapf(ErrInvalidState, "%s is not a PLL", n.name)
	}
	if n.count > 0 {
		return errors.Wrapf(ErrInvalidState, "%s: configure while enabled", n.name)
	}
	if err := p.configure(&cfg); err != nil {
		return err
	}
	c.recalc(n)
	return nil
}
