package carstate

import "math"

// FaultClass is the outcome of decoding an actuator status code. Anything
// that is not explicitly known to be healthy is a fault of some kind.
type FaultClass int

const (
	FaultNone FaultClass = iota
	FaultTemporary
	FaultPermanent
)

func (c FaultClass) String() string {
	switch c {
	case FaultNone:
		return "none"
	case FaultTemporary:
		return "temporary"
	case FaultPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// EPASErrorInvalid is EPAS_Feature_Status_Invalid_Err.
const EPASErrorInvalid = 5

// epasErrorClasses lists every EPAS_EacErrorCode with a decided meaning.
// Unlisted codes, including counter and CRC errors that are not yet decoded
// individually, fall through to FaultTemporary.
var epasErrorClasses = map[int]FaultClass{
	0:                FaultNone,
	EPASErrorInvalid: FaultPermanent,
}

// ClassifyEPASError maps the power steering error code to a fault class.
// A stale or missing status is a temporary fault, never healthy.
func ClassifyEPASError(code float64, stale bool) FaultClass {
	if stale {
		return FaultTemporary
	}
	return classify(epasErrorClasses, code)
}

func classify(table map[int]FaultClass, code float64) FaultClass {
	if math.IsNaN(code) || code != math.Trunc(code) {
		return FaultTemporary
	}
	if c, ok := table[int(code)]; ok {
		return c
	}
	return FaultTemporary
}
