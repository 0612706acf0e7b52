package platform

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

const RivianR1Gen1 = "RIVIAN_R1_GEN1"

var ErrUnknownPlatform = errors.New("unknown platform")

// Registry is the immutable set of supported variants. Build it once at
// startup; after that it is only read and may be shared across goroutines.
type Registry struct {
	byName map[string]Identity
	names  []string
}

func NewRegistry(ids ...Identity) (*Registry, error) {
	r := &Registry{byName: make(map[string]Identity, len(ids))}
	for _, id := range ids {
		if id.Name == "" || id.wmis == nil {
			return nil, fmt.Errorf("%w: construct identities with NewIdentity", ErrInvalidIdentity)
		}
		if _, dup := r.byName[id.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidIdentity, id.Name)
		}
		r.byName[id.Name] = id
		r.names = append(r.names, id.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *Registry) Len() int { return len(r.names) }

func (r *Registry) Lookup(name string) (Identity, error) {
	id, ok := r.byName[name]
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
	}
	return id, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the shared table of supported variants.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		r1, err := NewIdentity(RivianR1Gen1,
			[]string{"Rivian R1S 2022-24", "Rivian R1T 2022-24"},
			Specs{MassKg: 3206, WheelbaseM: 3.08, SteerRatio: 15.2},
			map[string]string{
				DBCPowertrain: "rivian_primary_actuator",
				DBCRadar:      "rivian_mando_front_radar_generated",
			},
			[]WMI{WMIRivianTruck, WMIRivianMPV},
			[]ModelLine{LineR1T, LineR1S},
			[]ModelYear{Year2022, Year2023, Year2024},
		)
		if err != nil {
			panic(err)
		}
		defaultRegistry, err = NewRegistry(r1)
		if err != nil {
			panic(err)
		}
	})
	return defaultRegistry
}
