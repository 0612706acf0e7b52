package carstate

import "math"

type GearShifter int

const (
	GearUnknown GearShifter = iota
	GearPark
	GearReverse
	GearNeutral
	GearDrive
)

func (g GearShifter) String() string {
	switch g {
	case GearPark:
		return "park"
	case GearReverse:
		return "reverse"
	case GearNeutral:
		return "neutral"
	case GearDrive:
		return "drive"
	default:
		return "unknown"
	}
}

// gearTable is indexed by VDM_Prndl_Status.
var gearTable = [...]GearShifter{
	0: GearUnknown,
	1: GearPark,
	2: GearReverse,
	3: GearNeutral,
	4: GearDrive,
}

// GearFromCode decodes the selector position. Codes outside the table map to
// GearUnknown, never to a drivable gear.
func GearFromCode(code float64) GearShifter {
	if math.IsNaN(code) || code != math.Trunc(code) || code < 0 || code >= float64(len(gearTable)) {
		return GearUnknown
	}
	return gearTable[int(code)]
}

// Turn light states 1 (on) and 2 (fast flash) count as blinking.
var blinkerOn = map[int]bool{
	1: true,
	2: true,
}

func blinkerFromCode(code float64) bool {
	if code != math.Trunc(code) {
		return false
	}
	return blinkerOn[int(code)]
}
