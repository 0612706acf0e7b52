package utils

import (
	"sort"
	"time"
)

// Byte order of a signal inside the frame payload.
const (
	LittleEndian = "little" // Intel
	BigEndian    = "big"    // Motorola, start bit is the MSB
)

type SignalDef struct {
	Name       string
	StartBit   int
	BitLength  int
	Signed     bool
	Factor     float64
	Offset     float64
	Min        float64
	Max        float64
	Default    float64
	Unit       string
	Comment    string
	Endianness string
}

type FrameDef struct {
	ID        uint32
	Name      string
	Bus       int
	DLC       int
	Direction string
	CycleMS   int
	Signals   []SignalDef
}

// Period is the expected refresh period of the frame, zero when unknown.
func (fd *FrameDef) Period() time.Duration {
	if fd.CycleMS <= 0 {
		return 0
	}
	return time.Duration(fd.CycleMS) * time.Millisecond
}

func (fd *FrameDef) Signal(name string) (SignalDef, bool) {
	for _, s := range fd.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return SignalDef{}, false
}

// CANMap indexes frame definitions by identifier and by name. Identifiers are
// unique per bus, names are unique across the whole map.
type CANMap struct {
	ByID   map[FrameKey]*FrameDef
	ByName map[string]*FrameDef
}

type FrameKey struct {
	Bus int
	ID  uint32
}

func (m *CANMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
