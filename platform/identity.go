// Package platform identifies the vehicle variant and holds the static
// per-variant data the rest of the stack reads.
package platform

import (
	"errors"
	"fmt"
	"sort"
)

// WMI is the three character world manufacturer identifier, VIN positions 1-3.
type WMI string

const (
	WMIRivianTruck WMI = "7FC"
	WMIRivianMPV   WMI = "7PD"
)

// ModelLine is VIN position 4.
type ModelLine string

const (
	LineR1T ModelLine = "T" // R1T 4-door pickup
	LineR1S ModelLine = "S" // R1S 4-door MPV
)

// ModelYear is VIN position 10.
type ModelYear string

const (
	Year2022 ModelYear = "N"
	Year2023 ModelYear = "P"
	Year2024 ModelYear = "R"
	Year2025 ModelYear = "S"
)

// DBC bus roles.
const (
	DBCPowertrain = "pt"
	DBCRadar      = "radar"
)

type Specs struct {
	MassKg     float64
	WheelbaseM float64
	SteerRatio float64
}

// Identity describes one supported variant. The accepted fragment sets are
// copied on construction and only exposed through read methods.
type Identity struct {
	Name  string
	Docs  []string
	Specs Specs
	DBC   map[string]string

	wmis  map[WMI]struct{}
	lines map[ModelLine]struct{}
	years map[ModelYear]struct{}
}

var ErrInvalidIdentity = errors.New("invalid platform identity")

func NewIdentity(name string, docs []string, specs Specs, dbc map[string]string,
	wmis []WMI, lines []ModelLine, years []ModelYear) (Identity, error) {
	id := Identity{
		Name:  name,
		Docs:  append([]string(nil), docs...),
		Specs: specs,
		DBC:   make(map[string]string, len(dbc)),
		wmis:  toSet(wmis),
		lines: toSet(lines),
		years: toSet(years),
	}
	for k, v := range dbc {
		id.DBC[k] = v
	}

	switch {
	case name == "":
		return Identity{}, fmt.Errorf("%w: empty name", ErrInvalidIdentity)
	case len(id.wmis) == 0 || len(id.lines) == 0 || len(id.years) == 0:
		return Identity{}, fmt.Errorf("%w: %s needs at least one WMI, line and year", ErrInvalidIdentity, name)
	case specs.MassKg <= 0 || specs.WheelbaseM <= 0 || specs.SteerRatio <= 0:
		return Identity{}, fmt.Errorf("%w: %s has non-positive specs %+v", ErrInvalidIdentity, name, specs)
	}
	return id, nil
}

func toSet[T ~string](vals []T) map[T]struct{} {
	out := make(map[T]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out
}

func sortedKeys[T ~string](set map[T]struct{}) []T {
	out := make([]T, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (id Identity) String() string { return id.Name }

func (id Identity) AcceptsWMI(w WMI) bool {
	_, ok := id.wmis[w]
	return ok
}

func (id Identity) AcceptsLine(l ModelLine) bool {
	_, ok := id.lines[l]
	return ok
}

func (id Identity) AcceptsYear(y ModelYear) bool {
	_, ok := id.years[y]
	return ok
}

func (id Identity) WMIs() []WMI        { return sortedKeys(id.wmis) }
func (id Identity) Lines() []ModelLine { return sortedKeys(id.lines) }
func (id Identity) Years() []ModelYear { return sortedKeys(id.years) }

// SafetyFlags are passed to the safety layer alongside the platform.
type SafetyFlags uint32

const (
	SafetyLongControl SafetyFlags = 1 << iota
)

func (f SafetyFlags) Has(flag SafetyFlags) bool { return f&flag != 0 }
