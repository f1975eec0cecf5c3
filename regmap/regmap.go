package regmap

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrTimeout is returned by PollUntil when the register never showed the expected bits.
	ErrTimeout = errors.New("register poll timed out")
	// ErrOutOfRange is returned for offsets past the end of the region or not on a 4-byte stride.
	ErrOutOfRange = errors.New("register offset out of range")
)

// Backend is whatever actually holds the registers: a /dev/mem mapping or an in-memory model.
type Backend interface {
	Read32(off uint32) uint32
	Write32(off uint32, val uint32)
}

// Region is one memory-mapped register block. Every access goes through a single lock, so
// read-modify-write sequences on different offsets of the same block can't interleave.
type Region struct {
	name string
	max  uint32
	be   Backend

	mu sync.Mutex

	// PollInterval is how long PollUntil sleeps between reads.
	PollInterval time.Duration
}

// NewRegion wraps be. maxRegister is the last valid offset.
func NewRegion(name string, be Backend, maxRegister uint32) *Region {
	return &Region{
		name:         name,
		max:          maxRegister,
		be:           be,
		PollInterval: time.Microsecond,
	}
}

func (r *Region) Name() string {
	return r.name
}

func (r *Region) MaxRegister() uint32 {
	return r.max
}

func (r *Region) check(off uint32) error {
	if off > r.max || off%4 != 0 {
		return errors.Wrapf(ErrOutOfRange, "%s: offset %#x (max %#x)", r.name, off, r.max)
	}
	return nil
}

func (r *Region) Read(off uint32) (uint32, error) {
	if err := r.check(off); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.be.Read32(off), nil
}

func (r *Region) Write(off uint32, val uint32) error {
	if err := r.check(off); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.be.Write32(off, val)
	return nil
}

// Update replaces the bits in mask with val. The read and the write happen under the region
// lock; the returned value is the one the update was computed from.
func (r *Region) Update(off uint32, mask uint32, val uint32) (uint32, error) {
	if err := r.check(off); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.be.Read32(off)
	nv := (old &^ mask) | (val & mask)
	if nv != old {
		r.be.Write32(off, nv)
	}
	return old, nil
}

func (r *Region) SetBits(off uint32, bits uint32) error {
	_, err := r.Update(off, bits, bits)
	return err
}

func (r *Region) ClearBits(off uint32, bits uint32) error {
	_, err := r.Update(off, bits, 0)
	return err
}

// PollUntil reads off until (val & mask) == want or timeout passes. The register is always
// read at least once, so a zero timeout is a single check.
func (r *Region) PollUntil(off uint32, mask uint32, want uint32, timeout time.Duration) error {
	if err := r.check(off); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	i := 0
	for {
		r.mu.Lock()
		v := r.be.Read32(off)
		r.mu.Unlock()
		if v&mask == want {
			return nil
		}
		i++
		if !time.Now().Before(deadline) {
			return errors.Wrapf(ErrTimeout, "%s: %#x & %08X = %08X after %d reads, want %08X", r.name, off, mask, v&mask, i, want)
		}
		time.Sleep(r.PollInterval)
	}
}

func (r *Region) String() string {
	return fmt.Sprintf("%s[0..%#x]", r.name, r.max)
}
