// Package lpass holds the clock topologies of LPASS audio clock controllers, keyed by the
// device tree compatible string that identifies each one.
package lpass

import (
	"sort"

	"github.com/Jon-Bright/clkctl/clk"
	"github.com/pkg/errors"
)

// Variant is everything needed to bring up one controller besides its supplies.
type Variant struct {
	Compatible string
	Topology   *clk.Topology
	// Defaults are power-on register values, for simulation.
	Defaults map[uint32]uint32
	// Externals are the rates to assume for external parents when nothing better is known.
	Externals map[string]uint64
}

var variants = []Variant{
	{
		Compatible: "qcom,lpassaudiocc-khaje",
		Topology:   &Khaje,
		Defaults:   KhajeDefaults,
		Externals:  KhajeExternals,
	},
}

// Lookup returns the variant with the given compatible string.
func Lookup(compatible string) (*Variant, error) {
	for i := range variants {
		if variants[i].Compatible == compatible {
			return &variants[i], nil
		}
	}
	return nil, errors.Errorf("couldn't find clock controller %q", compatible)
}

// Compatibles lists every supported compatible string, sorted.
func Compatibles() []string {
	var out []string
	for _, v := range variants {
		out = append(out, v.Compatible)
	}
	sort.Strings(out)
	return out
}
