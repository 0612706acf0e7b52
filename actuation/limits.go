package actuation

import "math"

// ClampFloat clamps value between min and max
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// BoolToFloat converts bool to float64 (for CAN encoding)
func BoolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// ClampAccel bounds a longitudinal acceleration request.
func ClampAccel(accel float64, p Params) float64 {
	return ClampFloat(accel, p.AccelMin, p.AccelMax)
}

// ApplyDriverSteerTorqueLimits bounds a requested torque given the last sent
// torque and the measured driver torque in Nm.
//
// Torque opposing the driver shrinks by the driver torque times the
// multiplier once it exceeds the allowance; driver torque in the same
// direction never raises the ceiling. Magnitude may grow by at most
// SteerDeltaUp per command and shrink by up to SteerDeltaDown.
func ApplyDriverSteerTorqueLimits(apply, applyLast int, driverTorque float64, p Params) int {
	driver := driverTorque * float64(p.SteerDriverFactor)
	allowance := float64(p.SteerDriverAllowance)
	mult := float64(p.SteerDriverMultiplier)
	steerMax := float64(p.SteerMax)

	driverMax := steerMax + (allowance+driver)*mult
	driverMin := -steerMax + (-allowance+driver)*mult
	maxAllowed := math.Max(math.Min(steerMax, driverMax), 0)
	minAllowed := math.Min(math.Max(-steerMax, driverMin), 0)

	out := ClampFloat(float64(apply), minAllowed, maxAllowed)

	last := float64(applyLast)
	up := float64(p.SteerDeltaUp)
	down := float64(p.SteerDeltaDown)
	if applyLast > 0 {
		out = ClampFloat(out, math.Max(last-down, -up), last+up)
	} else {
		out = ClampFloat(out, last-up, math.Min(last+down, up))
	}
	// Halves go to even.
	return int(math.RoundToEven(out))
}

// ApplySteerTorqueLimits is the variant without driver blending: ceiling and
// ramp limits only.
func ApplySteerTorqueLimits(apply, applyLast int, p Params) int {
	apply = clampInt(apply, -p.SteerMax, p.SteerMax)
	if applyLast > 0 {
		return clampInt(apply, max(applyLast-p.SteerDeltaDown, -p.SteerDeltaUp), applyLast+p.SteerDeltaUp)
	}
	return clampInt(apply, applyLast-p.SteerDeltaUp, min(applyLast+p.SteerDeltaDown, p.SteerDeltaUp))
}
