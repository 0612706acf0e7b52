package platform

import (
	"errors"
	"fmt"
	"strings"
)

const VINLength = 17

var ErrInvalidVIN = errors.New("invalid VIN")

// Fragments are the VIN positions used for fuzzy identification.
type Fragments struct {
	WMI  WMI
	Line ModelLine
	Year ModelYear
}

// ParseVIN extracts the manufacturer, line and model-year fragments.
func ParseVIN(vin string) (Fragments, error) {
	v := strings.ToUpper(strings.TrimSpace(vin))
	if len(v) != VINLength {
		return Fragments{}, fmt.Errorf("%w: length %d, want %d", ErrInvalidVIN, len(v), VINLength)
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if !('0' <= c && c <= '9' || 'A' <= c && c <= 'Z') {
			return Fragments{}, fmt.Errorf("%w: character %q at position %d", ErrInvalidVIN, c, i+1)
		}
	}
	return Fragments{
		WMI:  WMI(v[0:3]),
		Line: ModelLine(v[3:4]),
		Year: ModelYear(v[9:10]),
	}, nil
}

// MatchFuzzy returns every variant accepting all three fragments, sorted by
// name. No match yields an empty slice; the caller decides what to do with
// zero or several candidates.
func (r *Registry) MatchFuzzy(fr Fragments) []Identity {
	var out []Identity
	for _, name := range r.names {
		id := r.byName[name]
		if id.AcceptsWMI(fr.WMI) && id.AcceptsLine(fr.Line) && id.AcceptsYear(fr.Year) {
			out = append(out, id)
		}
	}
	return out
}

type Method int

const (
	MethodNone Method = iota
	MethodExact
	MethodFuzzy
)

func (m Method) String() string {
	switch m {
	case MethodExact:
		return "exact"
	case MethodFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Result is the outcome of one identification attempt.
type Result struct {
	Method     Method
	Candidates []Identity
	Fragments  Fragments
	Err        error // VIN could not be parsed
}

// Names are the display strings of the candidates, sorted.
func (res Result) Names() []string {
	out := make([]string, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		out = append(out, c.Name)
	}
	return out
}

// Unique returns the only candidate when identification was unambiguous.
func (res Result) Unique() (Identity, bool) {
	if len(res.Candidates) != 1 {
		return Identity{}, false
	}
	return res.Candidates[0], true
}

// Identify prefers a single exact fingerprint result and otherwise falls back
// to VIN fragments. Exact names unknown to the registry are ignored.
func (r *Registry) Identify(vin string, exact []string) Result {
	known := map[string]struct{}{}
	for _, name := range exact {
		if _, ok := r.byName[name]; ok {
			known[name] = struct{}{}
		}
	}
	if len(known) == 1 {
		for name := range known {
			return Result{Method: MethodExact, Candidates: []Identity{r.byName[name]}}
		}
	}

	fr, err := ParseVIN(vin)
	if err != nil {
		return Result{Method: MethodFuzzy, Err: err}
	}
	return Result{Method: MethodFuzzy, Candidates: r.MatchFuzzy(fr), Fragments: fr}
}
