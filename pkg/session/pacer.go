package session

import "time"

// Pacer enforces a minimum spacing between consecutive network actions,
// measured from the end of the previous action. State is a single slot;
// it must only be touched by the owning client instance.
type Pacer struct {
	minInterval time.Duration
	last        time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewPacer returns a pacer enforcing minInterval between actions. A zero
// interval disables pacing.
func NewPacer(minInterval time.Duration) *Pacer {
	return &Pacer{
		minInterval: minInterval,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Wait sleeps for whatever remains of the interval since the last stamp.
// The first action is never delayed.
func (p *Pacer) Wait() {
	if p.minInterval <= 0 || p.last.IsZero() {
		return
	}
	if remaining := p.minInterval - p.now().Sub(p.last); remaining > 0 {
		p.sleep(remaining)
	}
}

// Stamp records the end of a network action. Callers defer it so the
// timestamp is refreshed whether the action succeeded or failed.
func (p *Pacer) Stamp() {
	if p.minInterval <= 0 {
		return
	}
	p.last = p.now()
}
