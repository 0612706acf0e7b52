package carstate

import (
	"math"
	"sort"
)

// Snapshot is a verbatim copy of one received message, kept so the
// controller can echo or extend it in its own frames. Stale is refreshed
// every cycle from the source message; a stale snapshot must not be echoed.
type Snapshot struct {
	Values map[string]float64
	Valid  bool
	Stale  bool
}

func (s Snapshot) clone() Snapshot {
	if s.Values == nil {
		return s
	}
	out := Snapshot{Values: make(map[string]float64, len(s.Values)), Valid: s.Valid, Stale: s.Stale}
	for k, v := range s.Values {
		out.Values[k] = v
	}
	return out
}

// Carryover holds the raw frames the controller needs besides CarState.
// Each entry is replaced in a cycle where its message was received and held
// otherwise. Held values keep their Stale mark current.
type Carryover struct {
	LkaHbaCmd        Snapshot
	EPASSystemStatus Snapshot
}

func (c Carryover) clone() Carryover {
	return Carryover{
		LkaHbaCmd:        c.LkaHbaCmd.clone(),
		EPASSystemStatus: c.EPASSystemStatus.clone(),
	}
}

// Normalizer builds a CarState per cycle. It owns the kinematic filter and
// the carryover frames, so one instance serves one vehicle and Update must
// not be called concurrently.
type Normalizer struct {
	filter    KinematicFilter
	carryover Carryover
}

// NewNormalizer uses the default speed Kalman filter when filter is nil.
func NewNormalizer(filter KinematicFilter) *Normalizer {
	if filter == nil {
		filter = NewSpeedKalman()
	}
	return &Normalizer{filter: filter}
}

// Update consumes this cycle's frames. The returned Carryover is a copy.
func (n *Normalizer) Update(frames Frames) (CarState, Carryover) {
	pt := frames.Bus(BusPowertrain)
	cam := frames.Bus(BusCamera)
	adas := frames.Bus(BusADAS)

	vRaw := pt.Value(MsgESPiB1, SigVehicleSpeed)
	vEgo, aEgo := n.filter.Update(vRaw)

	cs := buildState(pt, cam, adas, vRaw, vEgo, aEgo)
	n.carryover = nextCarryover(n.carryover, pt, cam)
	return cs, n.carryover.clone()
}

// buildState maps raw fields to the snapshot. It has no state of its own.
func buildState(pt, cam, adas Frame, vRaw, vEgo, aEgo float64) CarState {
	var cs CarState

	cs.VEgoRaw = vRaw
	cs.VEgo = vEgo
	cs.AEgo = aEgo
	cs.Standstill = vEgo < StandstillSpeed

	// Unclamped: out-of-range pedal readings pass through scaled.
	pedal := pt.Value(MsgVDMPropStatus, SigAccelPedal)
	cs.Gas = pedal / 100.0
	cs.GasPressed = pedal > 0

	// No brake magnitude signal is decoded.
	cs.Brake = 0
	cs.BrakePressed = pt.Value(MsgIBESP2, SigBrakeApplied) == 1

	cs.SteeringAngleDeg = pt.Value(MsgEPASAdasStatus, SigSteeringAngle)
	cs.SteeringRateDeg = pt.Value(MsgEPASAdasStatus, SigSteeringRate)
	cs.SteeringTorque = pt.Value(MsgEPASSystemStatus, SigTorsionBarTorque)
	cs.SteeringPressed = math.Abs(cs.SteeringTorque) > SteeringPressedThreshold

	code, ok := pt.Lookup(MsgEPASAdasStatus, SigEacErrorCode)
	cs.SteerFault = ClassifyEPASError(code, !ok || pt.Stale(MsgEPASAdasStatus))
	cs.SteerFaultPermanent = cs.SteerFault == FaultPermanent
	cs.SteerFaultTemporary = cs.SteerFault == FaultTemporary

	cs.CruiseState = CruiseState{
		Enabled:    cam.Value(MsgACMStatus, SigACMFeatureStatus) != 0,
		Available:  Unwired[bool]{Value: true},
		Speed:      Unwired[float64]{Value: CruiseSpeedPlaceholder},
		Standstill: Unwired[bool]{Value: false},
	}

	cs.GearShifter = GearFromCode(pt.Value(MsgVDMPropStatus, SigPrndl))

	cs.LeftBlinker = blinkerFromCode(adas.Value(MsgIndicatorLights, SigTurnLightLeft))
	cs.RightBlinker = blinkerFromCode(adas.Value(MsgIndicatorLights, SigTurnLightRight))
	cs.LeftBlindspot = Unwired[bool]{Value: false}
	cs.RightBlindspot = Unwired[bool]{Value: false}
	cs.DoorOpen = Unwired[bool]{Value: false}

	// Never received reads as unlatched.
	belt, ok := pt.Lookup(MsgRCMStatus, SigBeltWarnDriver)
	cs.SeatbeltUnlatched = !ok || belt != 0

	cs.StockAEB = cam.Value(MsgACMAebRequest, SigAebEnableRequest) != 0

	return cs
}

func nextCarryover(prev Carryover, pt, cam Frame) Carryover {
	next := prev
	if m := cam.Messages[MsgACMLkaHbaCmd]; m.Updated {
		next.LkaHbaCmd = Snapshot{Values: m.Values, Valid: true}.clone()
	}
	if m := pt.Messages[MsgEPASSystemStatus]; m.Updated {
		next.EPASSystemStatus = Snapshot{Values: m.Values, Valid: true}.clone()
	}
	next.LkaHbaCmd.Stale = cam.Stale(MsgACMLkaHbaCmd)
	next.EPASSystemStatus.Stale = pt.Stale(MsgEPASSystemStatus)
	return next
}

// StaleMessages lists "bus/message" for every subscribed message that is
// missing or stale this cycle, sorted.
func StaleMessages(frames Frames) []string {
	var out []string
	for bus, specs := range Subscriptions() {
		f := frames.Bus(bus)
		for _, spec := range specs {
			if f.Stale(spec.Name) {
				out = append(out, bus.String()+"/"+spec.Name)
			}
		}
	}
	sort.Strings(out)
	return out
}
