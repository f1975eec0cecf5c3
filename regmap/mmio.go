package regmap

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
)

const (
	MEM_FILE  = "/dev/mem"
	PAGE_SIZE = 4096 // Theoretically, we could get this via whatever getconf does
)

// MMIO is a physical register window mapped from /dev/mem.
type MMIO struct {
	buf  mmap.MMap
	offs uintptr
	size int
}

// MapMMIO opens /dev/mem and uses mmap to map a given physical address into our address space.
// Since the mapping has to start at a page boundary, the physical address is rounded down to the
// nearest page boundary and the remainder is kept as the offset of register 0.
func MapMMIO(physAddr uintptr, size int) (*MMIO, error) {
	f, err := os.OpenFile(MEM_FILE, os.O_RDWR|os.O_SYNC, os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s: %v", MEM_FILE, err)
	}
	defer f.Close() // Ignore error

	pagemask := ^uintptr(PAGE_SIZE - 1)
	mapAddr := physAddr & pagemask
	mapSize := size + int(physAddr-mapAddr)
	log.Printf("MapRegion(f, %d, RDWR, 0, %08X), physAddr %08X, mask %08X", mapSize, int64(mapAddr), physAddr, pagemask)
	mm, err := mmap.MapRegion(f, mapSize, mmap.RDWR, 0, int64(mapAddr))
	if err != nil {
		return nil, fmt.Errorf("couldn't map region (%v, %v): %v", physAddr, size, err)
	}
	return &MMIO{buf: mm, offs: physAddr & (PAGE_SIZE - 1), size: size}, nil
}

func (m *MMIO) reg(off uint32) *uint32 {
	if int(off)+4 > m.size {
		panic(fmt.Sprintf("mmio offset %#x outside %d byte window", off, m.size))
	}
	return (*uint32)(unsafe.Pointer(&m.buf[m.offs+uintptr(off)]))
}

func (m *MMIO) Read32(off uint32) uint32 {
	return atomic.LoadUint32(m.reg(off))
}

func (m *MMIO) Write32(off uint32, val uint32) {
	atomic.StoreUint32(m.reg(off), val)
}

// Close unmaps the window.
func (m *MMIO) Close() error {
	if m.buf == nil {
		return nil
	}
	err := m.buf.Unmap()
	m.buf = nil
	return err
}
