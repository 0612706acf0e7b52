package carstate

import (
	"fmt"
	"time"
)

type Bus int

const (
	BusPowertrain Bus = 0
	BusADAS       Bus = 1
	BusCamera     Bus = 2
)

func (b Bus) String() string {
	switch b {
	case BusPowertrain:
		return "pt"
	case BusADAS:
		return "adas"
	case BusCamera:
		return "cam"
	default:
		return fmt.Sprintf("bus%d", int(b))
	}
}

// Message names and the fields read from them.
const (
	MsgESPiB1           = "ESPiB1"
	MsgVDMPropStatus    = "VDM_PropStatus"
	MsgIBESP2           = "iBESP2"
	MsgEPASAdasStatus   = "EPAS_AdasStatus"
	MsgEPASSystemStatus = "EPAS_SystemStatus"
	MsgRCMStatus        = "RCM_Status"
	MsgVDMAdasSts       = "VDM_AdasSts"
	MsgACMLongitudinal  = "ACM_longitudinalRequest"
	MsgACMAebRequest    = "ACM_AebRequest"
	MsgACMStatus        = "ACM_Status"
	MsgACMLkaHbaCmd     = "ACM_lkaHbaCmd"
	MsgIndicatorLights  = "IndicatorLights"
	SigVehicleSpeed     = "ESPiB1_VehicleSpeed"
	SigAccelPedal       = "VDM_AcceleratorPedalPosition"
	SigPrndl            = "VDM_Prndl_Status"
	SigBrakeApplied     = "iBESP2_BrakePedalApplied"
	SigSteeringAngle    = "EPAS_InternalSas"
	SigSteeringRate     = "EPAS_SteeringAngleSpeed"
	SigEacErrorCode     = "EPAS_EacErrorCode"
	SigTorsionBarTorque = "EPAS_TorsionBarTorque"
	SigBeltWarnDriver   = "RCM_Status_IND_WARN_BELT_DRIVER"
	SigACMFeatureStatus = "ACM_FeatureStatus"
	SigAebEnableRequest = "ACM_EnableRequest"
	SigTurnLightLeft    = "TurnLightLeft"
	SigTurnLightRight   = "TurnLightRight"
	SigLkaSteerTorque   = "ACM_lkaStrToqReq"
)

// MessageSpec registers a message with its expected refresh rate. The rate
// only sets the staleness window; a slow message is never an error.
type MessageSpec struct {
	Name        string
	FrequencyHz float64
}

func (s MessageSpec) Period() time.Duration {
	if s.FrequencyHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / s.FrequencyHz)
}

func PowertrainMessages() []MessageSpec {
	return []MessageSpec{
		{MsgESPiB1, 50},
		{MsgVDMPropStatus, 50},
		{MsgIBESP2, 50},
		{MsgEPASAdasStatus, 100},
		{MsgEPASSystemStatus, 100},
		{MsgRCMStatus, 8},
		{MsgVDMAdasSts, 100},
	}
}

func CameraMessages() []MessageSpec {
	return []MessageSpec{
		{MsgACMLongitudinal, 100},
		{MsgACMAebRequest, 100},
		{MsgACMStatus, 100},
		{MsgACMLkaHbaCmd, 100},
	}
}

func ADASMessages() []MessageSpec {
	return []MessageSpec{
		{MsgIndicatorLights, 10},
	}
}

// Subscriptions lists every message the normalizer reads, per bus.
func Subscriptions() map[Bus][]MessageSpec {
	return map[Bus][]MessageSpec{
		BusPowertrain: PowertrainMessages(),
		BusCamera:     CameraMessages(),
		BusADAS:       ADASMessages(),
	}
}

// StaleAfterPeriods is how many expected periods may pass without a message
// before its last-known-good values stop counting as current.
const StaleAfterPeriods = 10

// Message is the latest decoded state of one subscribed message.
type Message struct {
	Values  map[string]float64
	Updated bool // received since the previous cycle
	Seen    bool // received at least once
	Age     time.Duration
	Period  time.Duration
}

func (m Message) Stale() bool {
	if !m.Seen {
		return true
	}
	if m.Period <= 0 {
		return false
	}
	return m.Age > StaleAfterPeriods*m.Period
}

// Frame is one bus worth of messages for a single control cycle.
type Frame struct {
	Bus      Bus
	Messages map[string]Message
}

// Value returns the last-known-good value of a field, or 0 when the message
// or field was never received.
func (f Frame) Value(msg, sig string) float64 {
	v, _ := f.Lookup(msg, sig)
	return v
}

func (f Frame) Lookup(msg, sig string) (float64, bool) {
	m, ok := f.Messages[msg]
	if !ok || !m.Seen {
		return 0, false
	}
	v, ok := m.Values[sig]
	return v, ok
}

func (f Frame) Updated(msg string) bool {
	return f.Messages[msg].Updated
}

func (f Frame) Stale(msg string) bool {
	return f.Messages[msg].Stale()
}

// Frames is the per-cycle input of the normalizer. A missing bus reads as a
// bus on which nothing has been received.
type Frames map[Bus]Frame

func (fs Frames) Bus(b Bus) Frame {
	f, ok := fs[b]
	if !ok {
		return Frame{Bus: b}
	}
	return f
}
