package carstate

import "time"

type passthroughFilter struct{}

func (passthroughFilter) Update(v float64) (float64, float64) { return v, 0 }

type fields map[string]map[string]float64

// freshFrame marks every message as received this cycle.
func freshFrame(bus Bus, msgs fields) Frame {
	f := Frame{Bus: bus, Messages: map[string]Message{}}
	for name, vals := range msgs {
		f.Messages[name] = Message{
			Values:  vals,
			Updated: true,
			Seen:    true,
			Period:  10 * time.Millisecond,
		}
	}
	return f
}

// nominal is a parked, healthy vehicle on every bus.
func nominal() Frames {
	return Frames{
		BusPowertrain: freshFrame(BusPowertrain, fields{
			MsgESPiB1:           {SigVehicleSpeed: 0},
			MsgVDMPropStatus:    {SigAccelPedal: 0, SigPrndl: 1},
			MsgIBESP2:           {SigBrakeApplied: 0},
			MsgEPASAdasStatus:   {SigSteeringAngle: 0, SigSteeringRate: 0, SigEacErrorCode: 0},
			MsgEPASSystemStatus: {SigTorsionBarTorque: 0},
			MsgRCMStatus:        {SigBeltWarnDriver: 0},
			MsgVDMAdasSts:       {"VDM_AdasInterfaceStatus": 1},
		}),
		BusCamera: freshFrame(BusCamera, fields{
			MsgACMLongitudinal: {"ACM_AccelerationRequest": 0},
			MsgACMAebRequest:   {SigAebEnableRequest: 0},
			MsgACMStatus:       {SigACMFeatureStatus: 0},
			MsgACMLkaHbaCmd:    {"ACM_lkaStrToqReq": 0, "ACM_lkaHbaCmd_Counter": 3},
		}),
		BusADAS: freshFrame(BusADAS, fields{
			MsgIndicatorLights: {SigTurnLightLeft: 0, SigTurnLightRight: 0},
		}),
	}
}

// with overrides a single field of a nominal frame set.
func (fs Frames) with(bus Bus, msg, sig string, v float64) Frames {
	f := fs.Bus(bus)
	if f.Messages == nil {
		f.Messages = map[string]Message{}
	}
	m := f.Messages[msg]
	vals := make(map[string]float64, len(m.Values)+1)
	for k, x := range m.Values {
		vals[k] = x
	}
	vals[sig] = v
	m.Values = vals
	m.Seen = true
	m.Updated = true
	if m.Period == 0 {
		m.Period = 10 * time.Millisecond
	}
	f.Messages[msg] = m
	fs[bus] = f
	return fs
}

func (fs Frames) without(bus Bus, msg string) Frames {
	f := fs.Bus(bus)
	delete(f.Messages, msg)
	fs[bus] = f
	return fs
}

func normalize(fs Frames) CarState {
	cs, _ := NewNormalizer(passthroughFilter{}).Update(fs)
	return cs
}
