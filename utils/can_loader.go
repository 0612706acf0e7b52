package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var requiredColumns = []string{
	"frame_id", "frame_name", "cycle_ms", "dlc",
	"signal_name", "start_bit", "bit_length", "endianness",
	"signed", "factor", "offset", "min", "max", "default",
}

// LoadCANMap reads a CAN map from a CSV file, one row per signal.
func LoadCANMap(csvPath string) (*CANMap, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ParseCANMap(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", csvPath, err)
	}
	return m, nil
}

// ParseCANMap reads CSV rows from r. The bus, direction, unit and comment
// columns are optional; a missing bus column places every frame on bus 0.
func ParseCANMap(r io.Reader) (*CANMap, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, k := range requiredColumns {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("can map missing required column: %q", k)
		}
	}
	col := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	m := &CANMap{
		ByID:   map[FrameKey]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		frameID, err := parseHexOrDecUint32(col(rec, "frame_id"))
		if err != nil {
			return nil, fmt.Errorf("invalid frame_id %q: %w", col(rec, "frame_id"), err)
		}
		frameName := col(rec, "frame_name")
		bus := mustInt(col(rec, "bus"))
		dlc := mustInt(col(rec, "dlc"))

		sig := SignalDef{
			Name:       col(rec, "signal_name"),
			StartBit:   mustInt(col(rec, "start_bit")),
			BitLength:  mustInt(col(rec, "bit_length")),
			Endianness: strings.ToLower(col(rec, "endianness")),
			Signed:     mustBool(col(rec, "signed")),
			Factor:     mustFloat(col(rec, "factor")),
			Offset:     mustFloat(col(rec, "offset")),
			Min:        mustFloat(col(rec, "min")),
			Max:        mustFloat(col(rec, "max")),
			Default:    mustFloat(col(rec, "default")),
			Unit:       col(rec, "unit"),
			Comment:    col(rec, "comment"),
		}
		if sig.Endianness == "" {
			sig.Endianness = LittleEndian
		}
		if sig.Factor == 0 {
			sig.Factor = 1
		}

		if sig.Endianness != LittleEndian && sig.Endianness != BigEndian {
			return nil, fmt.Errorf("frame %s signal %s: unsupported endianness %q", frameName, sig.Name, sig.Endianness)
		}
		if sig.BitLength <= 0 || sig.BitLength > 64 {
			return nil, fmt.Errorf("frame %s signal %s: invalid bit_length %d", frameName, sig.Name, sig.BitLength)
		}
		if dlc <= 0 || dlc > 8 {
			return nil, fmt.Errorf("frame %s (0x%X): invalid dlc %d", frameName, frameID, dlc)
		}
		if sig.Endianness == LittleEndian && sig.StartBit+sig.BitLength > dlc*8 {
			return nil, fmt.Errorf("frame %s signal %s: bits %d..%d exceed dlc %d",
				frameName, sig.Name, sig.StartBit, sig.StartBit+sig.BitLength-1, dlc)
		}

		key := FrameKey{Bus: bus, ID: frameID}
		fd, ok := m.ByID[key]
		if !ok {
			if other, dup := m.ByName[frameName]; dup {
				return nil, fmt.Errorf("frame name %s used by 0x%X on bus %d and 0x%X on bus %d",
					frameName, other.ID, other.Bus, frameID, bus)
			}
			fd = &FrameDef{
				ID:        frameID,
				Name:      frameName,
				Bus:       bus,
				DLC:       dlc,
				Direction: col(rec, "direction"),
				CycleMS:   mustInt(col(rec, "cycle_ms")),
			}
			m.ByID[key] = fd
			m.ByName[frameName] = fd
		}

		if fd.DLC != dlc {
			return nil, fmt.Errorf("frame %s (0x%X) has inconsistent DLC (%d vs %d)", frameName, frameID, fd.DLC, dlc)
		}
		if fd.Name != frameName {
			return nil, fmt.Errorf("frame 0x%X on bus %d has inconsistent name (%s vs %s)", frameID, bus, fd.Name, frameName)
		}

		fd.Signals = append(fd.Signals, sig)
	}

	for _, fd := range m.ByID {
		sort.SliceStable(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })
	}

	return m, nil
}

func (m *CANMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.ByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q (available: %v)", name, m.FrameNames())
	}
	return fd, nil
}

func (m *CANMap) FrameByID(bus int, id uint32) (*FrameDef, error) {
	fd, ok := m.ByID[FrameKey{Bus: bus, ID: id}]
	if !ok {
		return nil, fmt.Errorf("unknown frame id 0x%X on bus %d", id, bus)
	}
	return fd, nil
}

func parseHexOrDecUint32(s string) (uint32, error) {
	ss := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(ss, "0x") || strings.HasPrefix(ss, "0X") {
		base = 16
		ss = ss[2:]
	}
	u, err := strconv.ParseUint(ss, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}

func mustInt(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func mustBool(s string) bool {
	ss := strings.TrimSpace(strings.ToLower(s))
	return ss == "true" || ss == "1" || ss == "yes"
}
