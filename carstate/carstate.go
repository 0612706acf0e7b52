// Package carstate fuses the latest per-bus signal values into one vehicle
// state snapshot per control cycle.
package carstate

const (
	// StandstillSpeed is compared against filtered speed, in m/s.
	StandstillSpeed = 0.1
	// SteeringPressedThreshold is the torsion bar torque, in Nm, above which
	// the driver is considered to be steering. Driver override logic
	// downstream keys off the same value.
	SteeringPressedThreshold = 1.0
	// CruiseSpeedPlaceholder is reported until a set-speed signal is wired.
	CruiseSpeedPlaceholder = 15.0
)

// Unwired holds a fixed placeholder for a field that no received signal backs
// yet. Value is not a measurement.
type Unwired[T any] struct {
	Value T
}

type CruiseState struct {
	Enabled    bool
	Available  Unwired[bool]
	Speed      Unwired[float64]
	Standstill Unwired[bool]
}

// CarState is the normalized vehicle state for one control cycle. Every field
// is set on every cycle.
type CarState struct {
	VEgoRaw    float64
	VEgo       float64
	AEgo       float64
	Standstill bool

	Gas          float64
	GasPressed   bool
	Brake        float64
	BrakePressed bool

	SteeringAngleDeg    float64
	SteeringRateDeg     float64
	SteeringTorque      float64
	SteeringPressed     bool
	SteerFault          FaultClass
	SteerFaultPermanent bool
	SteerFaultTemporary bool

	CruiseState CruiseState
	GearShifter GearShifter

	LeftBlinker       bool
	RightBlinker      bool
	LeftBlindspot     Unwired[bool]
	RightBlindspot    Unwired[bool]
	DoorOpen          Unwired[bool]
	SeatbeltUnlatched bool
	StockAEB          bool
}
