package regmap

import (
	"sync"
)

// Regs is the register file as seen by a WriteHook while a write is in progress.
type Regs interface {
	Get(off uint32) uint32
	Set(off uint32, val uint32)
}

// WriteHook models hardware side effects of writing val over old at one offset. It returns the
// value that ends up stored and may change other registers through regs.
type WriteHook func(regs Regs, old uint32, val uint32) uint32

type stuckBits struct {
	mask uint32
	val  uint32
}

// Mem is an in-memory register file. Hooks give it just enough behaviour to stand in for the
// real block; counters let tests see what the hardware would have seen.
type Mem struct {
	mu     sync.Mutex
	regs   map[uint32]uint32
	hooks  map[uint32][]WriteHook
	stuck  map[uint32]stuckBits
	writes map[uint32]int
	rises  map[uint32]*[32]int
}

func NewMem() *Mem {
	return &Mem{
		regs:   make(map[uint32]uint32),
		hooks:  make(map[uint32][]WriteHook),
		stuck:  make(map[uint32]stuckBits),
		writes: make(map[uint32]int),
		rises:  make(map[uint32]*[32]int),
	}
}

type memView struct {
	m *Mem
}

func (v memView) Get(off uint32) uint32 {
	return v.m.regs[off]
}

func (v memView) Set(off uint32, val uint32) {
	v.m.store(off, val)
}

// store records val at off, honouring stuck bits and counting 0->1 transitions. m.mu must be held.
func (m *Mem) store(off uint32, val uint32) {
	if s, ok := m.stuck[off]; ok {
		val = (val &^ s.mask) | s.val
	}
	old := m.regs[off]
	rose := ^old & val
	if rose != 0 {
		r := m.rises[off]
		if r == nil {
			r = new([32]int)
			m.rises[off] = r
		}
		for b := uint(0); b < 32; b++ {
			if rose&(1<<b) != 0 {
				r[b]++
			}
		}
	}
	m.regs[off] = val
}

func (m *Mem) Read32(off uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[off]
}

func (m *Mem) Write32(off uint32, val uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[off]++
	old := m.regs[off]
	for _, h := range m.hooks[off] {
		val = h(memView{m}, old, val)
	}
	m.store(off, val)
}

// Poke sets a register without counting it as a write or running hooks, the way firmware
// would have left it before we started.
func (m *Mem) Poke(off uint32, val uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(off, val)
}

// Peek reads a register without going through a Region.
func (m *Mem) Peek(off uint32) uint32 {
	return m.Read32(off)
}

// Hook adds h to the hooks run on every write to off, in the order added.
func (m *Mem) Hook(off uint32, h WriteHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[off] = append(m.hooks[off], h)
}

// Stick forces the bits in mask at off to val until Unstick is called.
func (m *Mem) Stick(off uint32, mask uint32, val uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stuck[off] = stuckBits{mask, val & mask}
	m.store(off, m.regs[off])
}

func (m *Mem) Unstick(off uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stuck, off)
}

// Writes returns how many writes have reached off.
func (m *Mem) Writes(off uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[off]
}

// Rises returns how many times bit went from 0 to 1 at off.
func (m *Mem) Rises(off uint32, bit uint) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rises[off]
	if r == nil || bit > 31 {
		return 0
	}
	return r[bit]
}
