package recorder

import "time"

// Sampler thins the cycle stream down to one recording per interval.
// A zero interval records every cycle.
type Sampler struct {
	every time.Duration
	last  time.Time
}

func NewSampler(every time.Duration) *Sampler {
	return &Sampler{every: every}
}

// Due reports whether now should be recorded and, if so, marks it.
func (s *Sampler) Due(now time.Time) bool {
	if !s.last.IsZero() && now.Sub(s.last) < s.every {
		return false
	}
	s.last = now
	return true
}
