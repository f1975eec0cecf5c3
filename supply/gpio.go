package supply

import (
	"fmt"
	"log"
	"time"

	"github.com/Jon-Bright/clkctl/clk"
	"github.com/Jon-Bright/clkctl/regmap"
)

// GPIO register offsets, BCM2835 layout.
const (
	GPIO_FSEL   = 0x00 // 6 registers, 3 bits per pin
	GPIO_SET    = 0x1c
	GPIO_CLR    = 0x28
	GPIO_LEV    = 0x34
	GPIO_PUD    = 0x94
	GPIO_PUDCLK = 0x98

	GPIO_MAX_PIN  = 53
	GPIO_MAX_REG  = 0xb0
	GPIO_FN_INPUT = 0
	GPIO_FN_OUT   = 1
)

type PullMode uint32

const (
	// GPPUD values
	PullNone PullMode = 0
	PullDown PullMode = 1
	PullUp   PullMode = 2
)

// GPIO drives pins of a GPIO block.
type GPIO struct {
	regs *regmap.Region
}

func NewGPIO(regs *regmap.Region) *GPIO {
	return &GPIO{regs: regs}
}

func (g *GPIO) setPinFunction(pin int, fnc uint32) error {
	if pin < 0 || pin > GPIO_MAX_PIN {
		return fmt.Errorf("pin %d not supported", pin)
	}
	reg := uint32(GPIO_FSEL + 4*(pin/10))
	offset := uint((pin % 10) * 3)
	_, err := g.regs.Update(reg, 0x7<<offset, fnc<<offset)
	return err
}

func (g *GPIO) SetInput(pin int) error {
	return g.setPinFunction(pin, GPIO_FN_INPUT)
}

func (g *GPIO) SetOutput(pin int, pm PullMode) error {
	if pm > PullUp {
		return fmt.Errorf("%d is an invalid pull mode", pm)
	}
	err := g.setPinFunction(pin, GPIO_FN_OUT)
	if err != nil {
		return fmt.Errorf("couldn't set pin as output: %v", err)
	}
	reg := uint32(GPIO_PUDCLK + 4*(pin/32))
	offset := uint(pin % 32)
	if err := g.regs.Write(GPIO_PUD, uint32(pm)); err != nil {
		return err
	}
	time.Sleep(10 * time.Microsecond) // Datasheet says to sleep for 150 cycles after setting pud
	if err := g.regs.Write(reg, 1<<offset); err != nil {
		return err
	}
	time.Sleep(10 * time.Microsecond) // Datasheet says to sleep for 150 cycles after setting pudclk
	if err := g.regs.Write(GPIO_PUD, 0); err != nil {
		return err
	}
	return g.regs.Write(reg, 0)
}

func (g *GPIO) SetPin(pin int, high bool) error {
	if pin < 0 || pin > GPIO_MAX_PIN {
		return fmt.Errorf("pin %d not supported", pin)
	}
	base := uint32(GPIO_CLR)
	if high {
		base = GPIO_SET
	}
	return g.regs.Write(base+uint32(4*(pin/32)), 1<<uint(pin%32))
}

func (g *GPIO) GetPin(pin int) (bool, error) {
	if pin < 0 || pin > GPIO_MAX_PIN {
		return false, fmt.Errorf("pin %d not supported", pin)
	}
	v, err := g.regs.Read(GPIO_LEV + uint32(4*(pin/32)))
	if err != nil {
		return false, err
	}
	return v&(1<<uint(pin%32)) != 0, nil
}

// PowerPin is a supply switched by one GPIO, optionally with a second GPIO reporting that
// the supply is healthy.
type PowerPin struct {
	Name       string
	g          *GPIO
	ctrl       int
	status     int
	statusWait time.Duration
	PollEvery  time.Duration
}

// NewPowerPin sets up ctrl as an output and, if status >= 0, status as an input.
func NewPowerPin(name string, g *GPIO, ctrl, status int, statusWait time.Duration) (*PowerPin, error) {
	err := g.SetOutput(ctrl, PullNone)
	if err != nil {
		return nil, fmt.Errorf("couldn't set power control to output: %v", err)
	}
	if status >= 0 {
		if err := g.SetInput(status); err != nil {
			return nil, fmt.Errorf("couldn't set power status to input: %v", err)
		}
	}
	return &PowerPin{
		Name:       name,
		g:          g,
		ctrl:       ctrl,
		status:     status,
		statusWait: statusWait,
		PollEvery:  50 * time.Millisecond, // No point overdoing it - we're not in _that_ much of a rush
	}, nil
}

func (p *PowerPin) Enable() error {
	log.Printf("%s: power on", p.Name)
	err := p.g.SetPin(p.ctrl, true)
	if err != nil {
		return fmt.Errorf("couldn't set power control high: %v", err)
	}
	if p.status < 0 {
		return nil
	}
	start := time.Now()
	for {
		val, err := p.g.GetPin(p.status)
		if err != nil {
			return fmt.Errorf("couldn't query power status: %v", err)
		}
		t := time.Now()
		if val {
			log.Printf("%s: power stabilized after %v", p.Name, t.Sub(start))
			return nil
		}
		if t.Sub(start) > p.statusWait {
			return fmt.Errorf("timed out waiting for power to be healthy, started %v, now %v", start, t)
		}
		time.Sleep(p.PollEvery)
	}
}

func (p *PowerPin) Disable() error {
	log.Printf("%s: power off", p.Name)
	err := p.g.SetPin(p.ctrl, false)
	if err != nil {
		return fmt.Errorf("couldn't set power control low: %v", err)
	}
	// We could wait for power status to go low, but that might take a while and doesn't seem to provide any benefit
	return nil
}

// SetCorner does nothing: a switched supply has no corners.
func (p *PowerPin) SetCorner(c clk.Corner) error {
	return nil
}
