package utils

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

// EncodeFrame packs physical values into a payload. Signals missing from
// values take their CSV default.
func (m *CANMap) EncodeFrame(frameName string, values map[string]float64) ([]byte, uint32, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return nil, 0, err
	}
	if fd.DLC <= 0 || fd.DLC > 8 {
		return nil, 0, fmt.Errorf("frame %s has invalid DLC %d", fd.Name, fd.DLC)
	}

	var payload uint64
	out := make([]byte, fd.DLC)
	var motorola []SignalDef

	for _, s := range fd.Signals {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		u := physToRaw(s, v)
		if s.Endianness == BigEndian {
			motorola = append(motorola, s)
			continue
		}
		payload = setBits(payload, s.StartBit, s.BitLength, u)
	}

	for i := 0; i < fd.DLC; i++ {
		out[i] = byte((payload >> (8 * i)) & 0xFF)
	}
	for _, s := range motorola {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		setBitsMotorola(out, s.StartBit, s.BitLength, physToRaw(s, v))
	}
	return out, fd.ID, nil
}

func physToRaw(s SignalDef, v float64) uint64 {
	v = clamp(v, s.Min, s.Max)
	raw := int64(math.Round((v - s.Offset) / s.Factor))
	raw = clampRaw(raw, s.BitLength, s.Signed)
	return rawToUnsigned(raw, s.BitLength)
}

// EncodeEinrideFrame produces a can.Frame ready to transmit.
func (m *CANMap) EncodeEinrideFrame(frameName string, values map[string]float64) (can.Frame, error) {
	payload, id, err := m.EncodeFrame(frameName, values)
	if err != nil {
		return can.Frame{}, err
	}

	var f can.Frame
	f.ID = id
	f.Length = uint8(len(payload))
	copy(f.Data[:], payload)
	return f, nil
}

// DecodeFrame unpacks every signal of the frame into physical values.
func (m *CANMap) DecodeFrame(bus int, frameID uint32, data []byte) (map[string]float64, error) {
	fd, err := m.FrameByID(bus, frameID)
	if err != nil {
		return nil, err
	}
	return fd.Decode(data)
}

func (m *CANMap) DecodeEinrideFrame(bus int, f can.Frame) (map[string]float64, error) {
	return m.DecodeFrame(bus, f.ID, f.Data[:f.Length])
}

func (fd *FrameDef) Decode(data []byte) (map[string]float64, error) {
	if len(data) < fd.DLC {
		return nil, fmt.Errorf("frame %s (0x%X) expects DLC %d, got %d", fd.Name, fd.ID, fd.DLC, len(data))
	}

	var payload uint64
	for i := 0; i < fd.DLC && i < 8; i++ {
		payload |= uint64(data[i]) << (8 * i)
	}

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		var u uint64
		if s.Endianness == BigEndian {
			u = getBitsMotorola(data[:fd.DLC], s.StartBit, s.BitLength)
		} else {
			u = getBits(payload, s.StartBit, s.BitLength)
		}
		raw := unsignedToRawInt64(u, s.BitLength, s.Signed)
		out[s.Name] = float64(raw)*s.Factor + s.Offset
	}
	return out, nil
}
