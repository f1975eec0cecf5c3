package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/Jon-Bright/clkctl/clk"
	"github.com/Jon-Bright/clkctl/regmap"
	"github.com/Jon-Bright/clkctl/supply"
)

var powerCtrlPin = flag.Int("powerCtrlPin", -1, "A GPIO pin which, when set high, turns on power for the clock controller. -1 means no such pin exists.")
var powerStatusPin = flag.Int("powerStatusPin", -1, "A GPIO pin which indicates healthy power to the clock controller. -1 means no such pin exists. Only relevant if powerCtrlPin is specified.")
var powerStatusWait = flag.Duration("powerStatusWait", 2*time.Second, "How long to wait for a healthy power signal. Only relevant if powerStatusPin is specified and relevant.")
var gpioAddr = flag.Uint64("gpioAddr", 0, "The physical address of the GPIO block carrying the power pins. Required if powerCtrlPin is specified.")
var railAddr = flag.Uint64("railAddr", 0, "The physical address of the rail controller. Each voltage class takes 16 bytes: enable, level, ack. 0 means rails aren't controlled.")

const RAIL_STRIDE = 0x10

// initPower builds the supplies for topo from the flags. In simulation every supply is a
// dummy.
func initPower(topo *clk.Topology) (clk.Regulator, map[string]clk.Regulator, error) {
	rails := make(map[string]clk.Regulator)
	if *simulate {
		for _, name := range topo.VddClasses {
			rails[name] = supply.NewDummy(name)
		}
		return supply.NewDummy(topo.Name), rails, nil
	}

	var power clk.Regulator
	if *powerCtrlPin >= 0 {
		if *gpioAddr == 0 {
			return nil, nil, fmt.Errorf("powerCtrlPin %d needs -gpioAddr", *powerCtrlPin)
		}
		mm, err := regmap.MapMMIO(uintptr(*gpioAddr), supply.GPIO_MAX_REG+4)
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't map GPIO: %v", err)
		}
		g := supply.NewGPIO(regmap.NewRegion("gpio", mm, supply.GPIO_MAX_REG))
		p, err := supply.NewPowerPin(topo.Name, g, *powerCtrlPin, *powerStatusPin, *powerStatusWait)
		if err != nil {
			return nil, nil, err
		}
		power = p
	}

	if *railAddr == 0 || len(topo.VddClasses) == 0 {
		return power, rails, nil
	}
	size := uint32(RAIL_STRIDE * len(topo.VddClasses))
	mm, err := regmap.MapMMIO(uintptr(*railAddr), int(size))
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't map rail controller: %v", err)
	}
	regs := regmap.NewRegion("rails", mm, size-4)
	for i, name := range topo.VddClasses {
		base := uint32(i * RAIL_STRIDE)
		rails[name] = supply.NewRail(name, regs, base, base+4, base+8)
	}
	return power, rails, nil
}
