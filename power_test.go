package main

import (
	"testing"

	"github.com/Jon-Bright/clkctl/lpass"
	"github.com/Jon-Bright/clkctl/supply"
)

func TestInitPowerSim(t *testing.T) {
	defer func(s bool) { *simulate = s }(*simulate)
	*simulate = true
	power, rails, err := initPower(&lpass.Khaje)
	if err != nil {
		t.Fatalf("initPower failed: %v", err)
	}
	if _, ok := power.(*supply.Dummy); !ok {
		t.Errorf("main supply got: %T, want: *supply.Dummy", power)
	}
	if _, ok := rails[lpass.VDD_LPI_CX].(*supply.Dummy); !ok {
		t.Errorf("%s rail got: %T, want: *supply.Dummy", lpass.VDD_LPI_CX, rails[lpass.VDD_LPI_CX])
	}
}

func TestInitPowerNeedsGPIOAddr(t *testing.T) {
	defer func(s bool, pin int, addr uint64) {
		*simulate, *powerCtrlPin, *gpioAddr = s, pin, addr
	}(*simulate, *powerCtrlPin, *gpioAddr)
	*simulate = false
	*powerCtrlPin = 4
	*gpioAddr = 0
	if _, _, err := initPower(&lpass.Khaje); err == nil {
		t.Errorf("initPower with a power pin and no GPIO address succeeded")
	}
}
