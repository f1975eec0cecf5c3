// Package dtclk reads what a clock controller needs from a flattened device tree: the
// rates of fixed external clocks and the controller's register window.
package dtclk

import (
	"encoding/binary"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/u-root/u-root/pkg/dt"
)

// Window is a physical register range.
type Window struct {
	Base uint64
	Size uint64
}

// ReadFile parses the DTB at path.
func ReadFile(path string) (*dt.FDT, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open %s", path)
	}
	defer f.Close()
	fdt, err := dt.ReadFDT(f)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't parse %s", path)
	}
	return fdt, nil
}

// stringList decodes a NUL-separated string list property.
func stringList(p *dt.Property) []string {
	l, err := p.AsStringList()
	if err != nil {
		return nil
	}
	return l
}

func compatible(n *dt.Node, want string) bool {
	p, ok := n.LookProperty("compatible")
	if !ok {
		return false
	}
	for _, c := range stringList(p) {
		if c == want {
			return true
		}
	}
	return false
}

// Externals returns the rate of every fixed-clock node, keyed by its clock-output-names
// entry, or its node name when it has none.
func Externals(fdt *dt.FDT) (map[string]uint64, error) {
	if fdt.RootNode == nil {
		return nil, errors.New("device tree has no root node")
	}
	out := make(map[string]uint64)
	nodes, ok := fdt.RootNode.FindAll(func(n *dt.Node) bool {
		return compatible(n, "fixed-clock")
	})
	if !ok {
		return out, nil
	}
	for _, n := range nodes {
		p, ok := n.LookProperty("clock-frequency")
		if !ok {
			log.Printf("%s: fixed clock without clock-frequency, ignored", n.Name)
			continue
		}
		var hz uint64
		var err error
		if len(p.Value) == 8 {
			hz, err = p.AsU64()
		} else {
			var v uint32
			v, err = p.AsU32()
			hz = uint64(v)
		}
		if err != nil {
			log.Printf("%s: bad clock-frequency (%v), ignored", n.Name, err)
			continue
		}
		name := n.Name
		if i := strings.IndexByte(name, '@'); i >= 0 {
			name = name[:i]
		}
		if p, ok := n.LookProperty("clock-output-names"); ok {
			if names := stringList(p); len(names) > 0 && names[0] != "" {
				name = names[0]
			}
		}
		out[name] = hz
	}
	return out, nil
}

func cells(n *dt.Node, name string, def uint32) uint32 {
	p, ok := n.LookProperty(name)
	if !ok {
		return def
	}
	v, err := p.AsU32()
	if err != nil {
		return def
	}
	return v
}

// find returns the first node below n compatible with compat, along with the address and
// size cell counts its parent declares.
func find(n *dt.Node, compat string) (*dt.Node, uint32, uint32) {
	ac := cells(n, "#address-cells", 2)
	sc := cells(n, "#size-cells", 1)
	for _, c := range n.Children {
		if compatible(c, compat) {
			return c, ac, sc
		}
	}
	for _, c := range n.Children {
		if f, a, s := find(c, compat); f != nil {
			return f, a, s
		}
	}
	return nil, 0, 0
}

func readCells(b []byte, n uint32) uint64 {
	var v uint64
	for i := uint32(0); i < n; i++ {
		v = v<<32 | uint64(binary.BigEndian.Uint32(b[4*i:]))
	}
	return v
}

// Controller finds the node compatible with compat and returns its first reg entry.
func Controller(fdt *dt.FDT, compat string) (Window, error) {
	if fdt.RootNode == nil {
		return Window{}, errors.New("device tree has no root node")
	}
	n, ac, sc := find(fdt.RootNode, compat)
	if n == nil {
		return Window{}, errors.Errorf("no %s node", compat)
	}
	p, ok := n.LookProperty("reg")
	if !ok {
		return Window{}, errors.Errorf("%s has no reg", n.Name)
	}
	b, err := p.AsPropEncodedArray()
	if err != nil {
		return Window{}, errors.Wrapf(err, "%s: bad reg", n.Name)
	}
	if ac > 2 || sc > 2 || len(b) < int(4*(ac+sc)) {
		return Window{}, errors.Errorf("%s: reg of %d bytes doesn't fit %d+%d cells", n.Name, len(b), ac, sc)
	}
	return Window{Base: readCells(b, ac), Size: readCells(b[4*ac:], sc)}, nil
}
