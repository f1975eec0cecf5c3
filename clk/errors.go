package clk

import (
	"github.com/Jon-Bright/clkctl/regmap"
	"github.com/pkg/errors"
)

// Everything the controller returns wraps one of these; use errors.Cause to tell them apart.
var (
	ErrTimeout             = regmap.ErrTimeout
	ErrLockTimeout         = errors.New("pll failed to lock")
	ErrHaltTimeout         = errors.New("branch halt status did not change")
	ErrUnsupportedRate     = errors.New("no configuration for requested rate")
	ErrRateExceedsEnvelope = errors.New("rate above every voltage corner")
	ErrInvalidState        = errors.New("operation not allowed in current state")
	ErrSupplyFailure       = errors.New("supply request failed")
	ErrNotFound            = errors.New("no such clock or reset")
)

// isBestEffort reports whether an enable that failed with err still left the clock running.
// Only a branch that didn't confirm its new state qualifies; anything else is undone.
func isBestEffort(err error) bool {
	return errors.Cause(err) == ErrHaltTimeout
}
