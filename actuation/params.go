// Package actuation holds the per-platform limits a steering and
// longitudinal controller must respect when building commands.
//
// Nothing here watches the controller. The limits are a contract; the helper
// functions are provided so consumers apply them the same way.
package actuation

import (
	"errors"
	"fmt"

	"github.com/Raudi1/opendbc/platform"
)

// Params bounds steering torque (in command units) and longitudinal
// acceleration (m/s^2).
type Params struct {
	SteerMax              int `json:"steer_max"`
	SteerStep             int `json:"steer_step"`       // frames between steering commands
	SteerDeltaUp          int `json:"steer_delta_up"`   // per-command increase in magnitude
	SteerDeltaDown        int `json:"steer_delta_down"` // per-command decrease in magnitude
	SteerDriverAllowance  int `json:"steer_driver_allowance"`
	SteerDriverMultiplier int `json:"steer_driver_multiplier"`
	SteerDriverFactor     int `json:"steer_driver_factor"` // driver Nm to command units

	AccelMin float64 `json:"accel_min"`
	AccelMax float64 `json:"accel_max"`
}

var ErrInvalidParams = errors.New("invalid actuation params")

// R1 torque is capped for roughly 2.5 m/s^2 of lateral acceleration turning
// left at 80 mph; the car reaches less at lower speed and turning right.
var rivianR1Gen1 = Params{
	SteerMax:              250,
	SteerStep:             1,
	SteerDeltaUp:          3,
	SteerDeltaDown:        5,
	SteerDriverAllowance:  100,
	SteerDriverMultiplier: 2,
	SteerDriverFactor:     100,
	AccelMin:              -3.5,
	AccelMax:              2.0,
}

var byPlatform = map[string]Params{
	platform.RivianR1Gen1: rivianR1Gen1,
}

// ForPlatform returns the limits for a registry entry.
func ForPlatform(name string) (Params, error) {
	p, ok := byPlatform[name]
	if !ok {
		return Params{}, fmt.Errorf("%w: no actuation params for %s", platform.ErrUnknownPlatform, name)
	}
	return p, nil
}

func (p Params) Validate() error {
	switch {
	case p.SteerMax <= 0:
		return fmt.Errorf("%w: steer_max %d", ErrInvalidParams, p.SteerMax)
	case p.SteerStep <= 0:
		return fmt.Errorf("%w: steer_step %d", ErrInvalidParams, p.SteerStep)
	case p.SteerDeltaUp <= 0:
		return fmt.Errorf("%w: steer_delta_up %d", ErrInvalidParams, p.SteerDeltaUp)
	case p.SteerDeltaDown < p.SteerDeltaUp:
		return fmt.Errorf("%w: steer_delta_down %d below steer_delta_up %d", ErrInvalidParams, p.SteerDeltaDown, p.SteerDeltaUp)
	case p.SteerDriverAllowance < 0 || p.SteerDriverMultiplier <= 0 || p.SteerDriverFactor <= 0:
		return fmt.Errorf("%w: driver weighting %d/%d/%d", ErrInvalidParams,
			p.SteerDriverAllowance, p.SteerDriverMultiplier, p.SteerDriverFactor)
	case !(p.AccelMin < 0 && 0 < p.AccelMax):
		return fmt.Errorf("%w: accel range [%.2f, %.2f] must straddle zero", ErrInvalidParams, p.AccelMin, p.AccelMax)
	}
	return nil
}
