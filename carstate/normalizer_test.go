package carstate

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_Nominal(t *testing.T) {
	cs := normalize(nominal())

	want := CarState{
		Standstill:  true,
		SteerFault:  FaultNone,
		GearShifter: GearPark,
		CruiseState: CruiseState{
			Available: Unwired[bool]{Value: true},
			Speed:     Unwired[float64]{Value: CruiseSpeedPlaceholder},
		},
	}
	if diff := cmp.Diff(want, cs); diff != "" {
		t.Errorf("nominal state mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_NothingReceived(t *testing.T) {
	cs := normalize(Frames{})

	want := CarState{
		Standstill:          true,
		SteerFault:          FaultTemporary,
		SteerFaultTemporary: true,
		GearShifter:         GearUnknown,
		SeatbeltUnlatched:   true,
		CruiseState: CruiseState{
			Available: Unwired[bool]{Value: true},
			Speed:     Unwired[float64]{Value: CruiseSpeedPlaceholder},
		},
	}
	if diff := cmp.Diff(want, cs); diff != "" {
		t.Errorf("empty-frame state mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_StandstillUsesFilteredSpeed(t *testing.T) {
	tests := []struct {
		speed float64
		want  bool
	}{
		{0, true},
		{0.09, true},
		{0.0999999, true},
		{StandstillSpeed, false},
		{0.1000001, false},
		{0.11, false},
		{25, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.speed), func(t *testing.T) {
			cs := normalize(nominal().with(BusPowertrain, MsgESPiB1, SigVehicleSpeed, tt.speed))
			assert.Equal(t, tt.want, cs.Standstill)
			assert.Equal(t, tt.speed, cs.VEgoRaw)
		})
	}
}

type fixedFilter struct{ v float64 }

func (f fixedFilter) Update(float64) (float64, float64) { return f.v, 0.5 }

func TestUpdate_StandstillIgnoresRawSpeed(t *testing.T) {
	fs := nominal().with(BusPowertrain, MsgESPiB1, SigVehicleSpeed, 0.0)
	cs, _ := NewNormalizer(fixedFilter{v: 3}).Update(fs)
	assert.False(t, cs.Standstill)
	assert.Equal(t, 0.0, cs.VEgoRaw)
	assert.Equal(t, 3.0, cs.VEgo)
	assert.Equal(t, 0.5, cs.AEgo)
}

func TestUpdate_Gas(t *testing.T) {
	// Gas is not clamped: readings outside [0, 100] scale through.
	tests := []struct {
		pos     float64
		gas     float64
		pressed bool
	}{
		{-10, -0.1, false},
		{0, 0, false},
		{0.1, 0.001, true},
		{42, 0.42, true},
		{100, 1.0, true},
		{102.3, 1.023, true},
		{150, 1.5, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.pos), func(t *testing.T) {
			cs := normalize(nominal().with(BusPowertrain, MsgVDMPropStatus, SigAccelPedal, tt.pos))
			assert.Equal(t, tt.pos/100.0, cs.Gas)
			assert.InDelta(t, tt.gas, cs.Gas, 1e-12)
			assert.Equal(t, tt.pressed, cs.GasPressed)
		})
	}
}

func TestUpdate_BrakeApplied(t *testing.T) {
	cs := normalize(nominal().with(BusPowertrain, MsgIBESP2, SigBrakeApplied, 1))
	assert.True(t, cs.BrakePressed)
	assert.Equal(t, 0.0, cs.Brake)
	assert.False(t, cs.GasPressed)
	assert.Equal(t, FaultNone, cs.SteerFault)

	for _, v := range []float64{0, 2, 3} {
		cs := normalize(nominal().with(BusPowertrain, MsgIBESP2, SigBrakeApplied, v))
		assert.False(t, cs.BrakePressed, "value %v", v)
	}
}

func TestUpdate_SteeringPressed(t *testing.T) {
	tests := []struct {
		torque float64
		want   bool
	}{
		{0, false},
		{0.99, false},
		{1.0, false},
		{1.01, true},
		{-0.99, false},
		{-1.0, false},
		{-1.01, true},
		{12, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.torque), func(t *testing.T) {
			cs := normalize(nominal().with(BusPowertrain, MsgEPASSystemStatus, SigTorsionBarTorque, tt.torque))
			assert.Equal(t, tt.want, cs.SteeringPressed)
			assert.Equal(t, tt.torque, cs.SteeringTorque)
		})
	}
}

func TestUpdate_SteeringAngleAndRate(t *testing.T) {
	fs := nominal().
		with(BusPowertrain, MsgEPASAdasStatus, SigSteeringAngle, -45.5).
		with(BusPowertrain, MsgEPASAdasStatus, SigSteeringRate, 120)
	cs := normalize(fs)
	assert.Equal(t, -45.5, cs.SteeringAngleDeg)
	assert.Equal(t, 120.0, cs.SteeringRateDeg)
}

func TestUpdate_SteerFaultFailClosed(t *testing.T) {
	for code := 0; code <= 15; code++ {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			cs := normalize(nominal().with(BusPowertrain, MsgEPASAdasStatus, SigEacErrorCode, float64(code)))
			switch code {
			case 0:
				assert.False(t, cs.SteerFaultPermanent)
				assert.False(t, cs.SteerFaultTemporary)
			case EPASErrorInvalid:
				assert.True(t, cs.SteerFaultPermanent)
				assert.False(t, cs.SteerFaultTemporary)
			default:
				assert.False(t, cs.SteerFaultPermanent)
				assert.True(t, cs.SteerFaultTemporary)
			}
		})
	}
}

func TestUpdate_SteerFaultMissingOrStale(t *testing.T) {
	cs := normalize(nominal().without(BusPowertrain, MsgEPASAdasStatus))
	assert.True(t, cs.SteerFaultTemporary)
	assert.False(t, cs.SteerFaultPermanent)

	fs := nominal()
	m := fs[BusPowertrain].Messages[MsgEPASAdasStatus]
	m.Updated = false
	m.Age = StaleAfterPeriods*m.Period + time.Millisecond
	fs[BusPowertrain].Messages[MsgEPASAdasStatus] = m
	cs = normalize(fs)
	assert.True(t, cs.SteerFaultTemporary)

	// Within the window the last-known-good code still counts.
	m.Age = StaleAfterPeriods * m.Period
	fs[BusPowertrain].Messages[MsgEPASAdasStatus] = m
	cs = normalize(fs)
	assert.False(t, cs.SteerFaultTemporary)
}

func TestUpdate_GearCodes(t *testing.T) {
	known := map[float64]GearShifter{0: GearUnknown, 1: GearPark, 2: GearReverse, 3: GearNeutral, 4: GearDrive}
	for code, want := range known {
		cs := normalize(nominal().with(BusPowertrain, MsgVDMPropStatus, SigPrndl, code))
		assert.Equal(t, want, cs.GearShifter, "code %v", code)
	}
	for _, code := range []float64{5, 6, 7, 15, 255, -1, 1.5, math.Inf(1), math.NaN()} {
		assert.NotPanics(t, func() {
			cs := normalize(nominal().with(BusPowertrain, MsgVDMPropStatus, SigPrndl, code))
			assert.Equal(t, GearUnknown, cs.GearShifter, "code %v", code)
		})
	}
}

func TestUpdate_Blinkers(t *testing.T) {
	tests := []struct {
		code float64
		want bool
	}{{0, false}, {1, true}, {2, true}, {3, false}}
	for _, tt := range tests {
		fs := nominal().
			with(BusADAS, MsgIndicatorLights, SigTurnLightLeft, tt.code).
			with(BusADAS, MsgIndicatorLights, SigTurnLightRight, 0)
		cs := normalize(fs)
		assert.Equal(t, tt.want, cs.LeftBlinker, "left %v", tt.code)
		assert.False(t, cs.RightBlinker)

		fs = nominal().with(BusADAS, MsgIndicatorLights, SigTurnLightRight, tt.code)
		cs = normalize(fs)
		assert.Equal(t, tt.want, cs.RightBlinker, "right %v", tt.code)
		assert.False(t, cs.LeftBlinker)
	}
}

func TestUpdate_CruiseAndAEB(t *testing.T) {
	cs := normalize(nominal().
		with(BusCamera, MsgACMStatus, SigACMFeatureStatus, 2).
		with(BusCamera, MsgACMAebRequest, SigAebEnableRequest, 1))
	assert.True(t, cs.CruiseState.Enabled)
	assert.True(t, cs.StockAEB)
	assert.True(t, cs.CruiseState.Available.Value)
	assert.Equal(t, CruiseSpeedPlaceholder, cs.CruiseState.Speed.Value)
	assert.False(t, cs.CruiseState.Standstill.Value)
}

func TestUpdate_Seatbelt(t *testing.T) {
	assert.False(t, normalize(nominal()).SeatbeltUnlatched)
	assert.True(t, normalize(nominal().with(BusPowertrain, MsgRCMStatus, SigBeltWarnDriver, 1)).SeatbeltUnlatched)
	assert.True(t, normalize(nominal().without(BusPowertrain, MsgRCMStatus)).SeatbeltUnlatched)
}

func TestUpdate_LastKnownGoodWhenNotUpdated(t *testing.T) {
	fs := nominal().with(BusPowertrain, MsgVDMPropStatus, SigPrndl, 4)
	m := fs[BusPowertrain].Messages[MsgVDMPropStatus]
	m.Updated = false
	m.Age = 500 * time.Millisecond
	fs[BusPowertrain].Messages[MsgVDMPropStatus] = m

	cs := normalize(fs)
	assert.Equal(t, GearDrive, cs.GearShifter)
}

func TestUpdate_Carryover(t *testing.T) {
	n := NewNormalizer(passthroughFilter{})

	_, co := n.Update(Frames{})
	assert.False(t, co.LkaHbaCmd.Valid)
	assert.False(t, co.EPASSystemStatus.Valid)

	fs := nominal().with(BusCamera, MsgACMLkaHbaCmd, "ACM_lkaStrToqReq", 42)
	_, co = n.Update(fs)
	require.True(t, co.LkaHbaCmd.Valid)
	require.True(t, co.EPASSystemStatus.Valid)
	assert.Equal(t, 42.0, co.LkaHbaCmd.Values["ACM_lkaStrToqReq"])

	// Callers cannot reach the held copy.
	co.LkaHbaCmd.Values["ACM_lkaStrToqReq"] = -1

	// Not received this cycle: held, even though the stale values differ.
	fs = nominal().with(BusCamera, MsgACMLkaHbaCmd, "ACM_lkaStrToqReq", 7)
	m := fs[BusCamera].Messages[MsgACMLkaHbaCmd]
	m.Updated = false
	fs[BusCamera].Messages[MsgACMLkaHbaCmd] = m
	_, co = n.Update(fs)
	assert.Equal(t, 42.0, co.LkaHbaCmd.Values["ACM_lkaStrToqReq"])

	// Received again: overwritten.
	_, co = n.Update(nominal().with(BusCamera, MsgACMLkaHbaCmd, "ACM_lkaStrToqReq", 9))
	assert.Equal(t, 9.0, co.LkaHbaCmd.Values["ACM_lkaStrToqReq"])
}

func TestUpdate_CarryoverTracksStaleness(t *testing.T) {
	n := NewNormalizer(passthroughFilter{})

	_, co := n.Update(Frames{})
	assert.True(t, co.LkaHbaCmd.Stale)
	assert.True(t, co.EPASSystemStatus.Stale)

	_, co = n.Update(nominal().with(BusCamera, MsgACMLkaHbaCmd, SigLkaSteerTorque, 120))
	assert.False(t, co.LkaHbaCmd.Stale)
	assert.False(t, co.EPASSystemStatus.Stale)

	// Camera silent past the stale window: values held, but marked stale.
	fs := nominal()
	m := fs[BusCamera].Messages[MsgACMLkaHbaCmd]
	m.Updated = false
	m.Age = 30 * time.Second
	fs[BusCamera].Messages[MsgACMLkaHbaCmd] = m
	_, co = n.Update(fs)
	assert.True(t, co.LkaHbaCmd.Valid)
	assert.True(t, co.LkaHbaCmd.Stale)
	assert.Equal(t, 120.0, co.LkaHbaCmd.Values[SigLkaSteerTorque])
	assert.False(t, co.EPASSystemStatus.Stale)

	// Camera disappears from the frame set entirely.
	_, co = n.Update(nominal().without(BusCamera, MsgACMLkaHbaCmd))
	assert.True(t, co.LkaHbaCmd.Stale)

	// Back: fresh again.
	_, co = n.Update(nominal())
	assert.False(t, co.LkaHbaCmd.Stale)
}

func TestUpdate_DefaultFilterIsKalman(t *testing.T) {
	n := NewNormalizer(nil)
	_, ok := n.filter.(*SpeedKalman)
	assert.True(t, ok)

	var cs CarState
	for i := 0; i < 50; i++ {
		cs, _ = n.Update(nominal().with(BusPowertrain, MsgESPiB1, SigVehicleSpeed, 10))
	}
	assert.InDelta(t, 10, cs.VEgo, 1e-6)
	assert.InDelta(t, 0, cs.AEgo, 1e-6)
	assert.False(t, cs.Standstill)
}

func TestStaleMessages(t *testing.T) {
	all := StaleMessages(Frames{})
	assert.Len(t, all, len(PowertrainMessages())+len(CameraMessages())+len(ADASMessages()))
	assert.Contains(t, all, "pt/EPAS_AdasStatus")

	assert.Empty(t, StaleMessages(nominal()))
	assert.Equal(t, []string{"adas/IndicatorLights"}, StaleMessages(nominal().without(BusADAS, MsgIndicatorLights)))
}
