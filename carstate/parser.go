package carstate

import (
	"errors"
	"fmt"
	"time"

	"go.einride.tech/can"

	"github.com/Raudi1/opendbc/utils"
)

var ErrUnknownMessage = errors.New("message not in CAN map")

type messageState struct {
	def      *utils.FrameDef
	period   time.Duration
	values   map[string]float64
	seen     bool
	pending  bool
	lastRecv time.Time
	rejected bool // a decode failure has been reported
}

// Parser keeps the latest decoded values of the messages subscribed on one
// bus. It has a single owner; Feed and Snapshot must not race.
type Parser struct {
	bus    Bus
	byID   map[uint32]*messageState
	byName map[string]*messageState

	// Logf, when set, receives the first decode failure of each message.
	Logf func(format string, args ...any)
}

func NewParser(cmap *utils.CANMap, bus Bus, specs []MessageSpec) (*Parser, error) {
	p := &Parser{
		bus:    bus,
		byID:   make(map[uint32]*messageState, len(specs)),
		byName: make(map[string]*messageState, len(specs)),
	}
	for _, spec := range specs {
		fd, err := cmap.FrameByName(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("%s bus: %w: %s", bus, ErrUnknownMessage, spec.Name)
		}
		if Bus(fd.Bus) != bus {
			return nil, fmt.Errorf("%s bus: message %s is mapped on %s", bus, spec.Name, Bus(fd.Bus))
		}
		period := spec.Period()
		if period == 0 {
			period = fd.Period()
		}
		st := &messageState{def: fd, period: period}
		p.byID[fd.ID] = st
		p.byName[spec.Name] = st
	}
	return p, nil
}

func (p *Parser) Bus() Bus { return p.bus }

// Feed decodes f if it belongs to a subscribed message. Frames that are
// unsubscribed, remote or too short are dropped and leave the previous
// values in place.
func (p *Parser) Feed(f can.Frame, at time.Time) bool {
	if f.IsRemote {
		return false
	}
	st, ok := p.byID[f.ID]
	if !ok {
		return false
	}
	vals, err := st.def.Decode(f.Data[:f.Length])
	if err != nil {
		if p.Logf != nil && !st.rejected {
			p.Logf("%s bus: dropping %s: %v", p.bus, st.def.Name, err)
		}
		st.rejected = true
		return false
	}
	st.values = vals
	st.seen = true
	st.pending = true
	st.lastRecv = at
	return true
}

// Snapshot returns this cycle's view of the bus and clears the updated marks.
func (p *Parser) Snapshot(now time.Time) Frame {
	out := Frame{Bus: p.bus, Messages: make(map[string]Message, len(p.byName))}
	for name, st := range p.byName {
		m := Message{
			Updated: st.pending,
			Seen:    st.seen,
			Period:  st.period,
		}
		if st.seen {
			m.Age = now.Sub(st.lastRecv)
			m.Values = make(map[string]float64, len(st.values))
			for k, v := range st.values {
				m.Values[k] = v
			}
		}
		st.pending = false
		out.Messages[name] = m
	}
	return out
}
