package carstate

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"

	"github.com/Raudi1/opendbc/utils"
)

func loadMap(t *testing.T) *utils.CANMap {
	t.Helper()
	m, err := utils.LoadCANMap("../config/can/rivian_r1.csv")
	require.NoError(t, err)
	return m
}

func encode(t *testing.T, m *utils.CANMap, name string, vals map[string]float64) can.Frame {
	t.Helper()
	f, err := m.EncodeEinrideFrame(name, vals)
	require.NoError(t, err)
	return f
}

func TestNewParser_Validation(t *testing.T) {
	m := loadMap(t)

	_, err := NewParser(m, BusPowertrain, []MessageSpec{{"NOPE", 10}})
	assert.True(t, errors.Is(err, ErrUnknownMessage))

	_, err = NewParser(m, BusPowertrain, CameraMessages())
	assert.Error(t, err)

	for bus, specs := range Subscriptions() {
		p, err := NewParser(m, bus, specs)
		require.NoError(t, err, "bus %s", bus)
		assert.Equal(t, bus, p.Bus())
	}
}

func TestParser_SnapshotLifecycle(t *testing.T) {
	m := loadMap(t)
	p, err := NewParser(m, BusPowertrain, PowertrainMessages())
	require.NoError(t, err)

	t0 := time.Unix(1700000000, 0)

	snap := p.Snapshot(t0)
	assert.Len(t, snap.Messages, len(PowertrainMessages()))
	assert.True(t, snap.Stale(MsgESPiB1))
	assert.False(t, snap.Updated(MsgESPiB1))

	ok := p.Feed(encode(t, m, MsgESPiB1, map[string]float64{SigVehicleSpeed: 12.34}), t0)
	require.True(t, ok)

	snap = p.Snapshot(t0.Add(5 * time.Millisecond))
	assert.True(t, snap.Updated(MsgESPiB1))
	assert.False(t, snap.Stale(MsgESPiB1))
	assert.InDelta(t, 12.34, snap.Value(MsgESPiB1, SigVehicleSpeed), 1e-9)
	assert.Equal(t, 5*time.Millisecond, snap.Messages[MsgESPiB1].Age)
	assert.Equal(t, 20*time.Millisecond, snap.Messages[MsgESPiB1].Period)

	// Held but no longer updated.
	snap = p.Snapshot(t0.Add(100 * time.Millisecond))
	assert.False(t, snap.Updated(MsgESPiB1))
	assert.False(t, snap.Stale(MsgESPiB1))
	assert.InDelta(t, 12.34, snap.Value(MsgESPiB1, SigVehicleSpeed), 1e-9)

	// Ten 50 Hz periods later it is stale, values still held.
	snap = p.Snapshot(t0.Add(201 * time.Millisecond))
	assert.True(t, snap.Stale(MsgESPiB1))
	assert.InDelta(t, 12.34, snap.Value(MsgESPiB1, SigVehicleSpeed), 1e-9)
}

func TestParser_IgnoresForeignFrames(t *testing.T) {
	m := loadMap(t)
	p, err := NewParser(m, BusPowertrain, PowertrainMessages())
	require.NoError(t, err)

	var logged []string
	p.Logf = func(format string, args ...any) { logged = append(logged, fmt.Sprintf(format, args...)) }

	assert.False(t, p.Feed(can.Frame{ID: 0x7FF, Length: 8}, time.Now()))

	short := encode(t, m, MsgESPiB1, nil)
	short.Length = 2
	assert.False(t, p.Feed(short, time.Now()))
	assert.False(t, p.Feed(short, time.Now()))
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], MsgESPiB1)

	remote := encode(t, m, MsgESPiB1, nil)
	remote.IsRemote = true
	assert.False(t, p.Feed(remote, time.Now()))

	assert.False(t, p.Snapshot(time.Now()).Messages[MsgESPiB1].Seen)
}

func TestParser_SnapshotIsACopy(t *testing.T) {
	m := loadMap(t)
	p, err := NewParser(m, BusADAS, ADASMessages())
	require.NoError(t, err)

	now := time.Now()
	p.Feed(encode(t, m, MsgIndicatorLights, map[string]float64{SigTurnLightLeft: 1}), now)
	snap := p.Snapshot(now)
	snap.Messages[MsgIndicatorLights].Values[SigTurnLightLeft] = 3

	again := p.Snapshot(now)
	assert.Equal(t, 1.0, again.Value(MsgIndicatorLights, SigTurnLightLeft))
}

func TestParserToNormalizer(t *testing.T) {
	m := loadMap(t)
	parsers := map[Bus]*Parser{}
	for bus, specs := range Subscriptions() {
		p, err := NewParser(m, bus, specs)
		require.NoError(t, err)
		parsers[bus] = p
	}

	now := time.Now()
	feed := func(bus Bus, name string, vals map[string]float64) {
		require.True(t, parsers[bus].Feed(encode(t, m, name, vals), now), name)
	}
	feed(BusPowertrain, MsgESPiB1, map[string]float64{SigVehicleSpeed: 8})
	feed(BusPowertrain, MsgVDMPropStatus, map[string]float64{SigAccelPedal: 25, SigPrndl: 4})
	feed(BusPowertrain, MsgIBESP2, map[string]float64{SigBrakeApplied: 0})
	feed(BusPowertrain, MsgEPASAdasStatus, map[string]float64{SigSteeringAngle: -3.5, SigEacErrorCode: EPASErrorInvalid})
	feed(BusPowertrain, MsgEPASSystemStatus, map[string]float64{SigTorsionBarTorque: -1.5})
	feed(BusPowertrain, MsgRCMStatus, map[string]float64{SigBeltWarnDriver: 0})
	feed(BusCamera, MsgACMStatus, map[string]float64{SigACMFeatureStatus: 1})
	feed(BusCamera, MsgACMLkaHbaCmd, map[string]float64{"ACM_lkaStrToqReq": -120})
	feed(BusADAS, MsgIndicatorLights, map[string]float64{SigTurnLightRight: 2})

	frames := Frames{}
	for bus, p := range parsers {
		frames[bus] = p.Snapshot(now)
	}
	cs, co := NewNormalizer(nil).Update(frames)

	assert.InDelta(t, 8, cs.VEgo, 1e-9)
	assert.InDelta(t, 0.25, cs.Gas, 1e-9)
	assert.True(t, cs.GasPressed)
	assert.Equal(t, GearDrive, cs.GearShifter)
	assert.InDelta(t, -3.5, cs.SteeringAngleDeg, 1e-9)
	assert.True(t, cs.SteeringPressed)
	assert.True(t, cs.SteerFaultPermanent)
	assert.False(t, cs.SteerFaultTemporary)
	assert.True(t, cs.CruiseState.Enabled)
	assert.True(t, cs.RightBlinker)
	assert.False(t, cs.LeftBlinker)
	assert.False(t, cs.SeatbeltUnlatched)
	assert.False(t, cs.StockAEB)

	require.True(t, co.LkaHbaCmd.Valid)
	assert.Equal(t, -120.0, co.LkaHbaCmd.Values["ACM_lkaStrToqReq"])
	assert.True(t, co.EPASSystemStatus.Valid)

	assert.Equal(t, []string{
		"cam/ACM_AebRequest",
		"cam/ACM_longitudinalRequest",
		"pt/VDM_AdasSts",
	}, StaleMessages(frames))
}
