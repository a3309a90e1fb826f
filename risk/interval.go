package risk

import (
	"time"
)

// IntervalPolicy holds the candidate waits between iterations and the
// thresholds that select them.
type IntervalPolicy struct {
	Idle    time.Duration // no open positions
	Profit  time.Duration // an open position in profit
	Default time.Duration
	Urgent  time.Duration // near a stop, near the loss limit, or near square-off

	// LossMargin is the fraction of max daily loss; once DailyPnL is within
	// it of the limit the loop speeds up.
	LossMargin float64
	// StopProximity is the fraction of a stop price treated as "near".
	StopProximity float64
	// SquareOffWindow is how long before square-off the loop speeds up.
	SquareOffWindow time.Duration

	Min time.Duration
	Max time.Duration
}

func DefaultIntervalPolicy() IntervalPolicy {
	return IntervalPolicy{
		Idle:            300 * time.Second,
		Profit:          180 * time.Second,
		Default:         120 * time.Second,
		Urgent:          60 * time.Second,
		LossMargin:      0.2,
		StopProximity:   0.01,
		SquareOffWindow: 30 * time.Minute,
		Min:             30 * time.Second,
		Max:             600 * time.Second,
	}
}

// Clamp bounds d to [Min, Max]. Non-positive d becomes Min.
func (p IntervalPolicy) Clamp(d time.Duration) time.Duration {
	if d < p.Min {
		return p.Min
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// NextInterval picks the wait before the next iteration. Every condition
// that applies contributes a candidate and the shortest wins.
func NextInterval(s Snapshot, g *GuardrailConfig, p IntervalPolicy, now time.Time) time.Duration {
	next := p.Idle
	take := func(d time.Duration) {
		if d < next {
			next = d
		}
	}

	for _, pos := range s.Positions {
		switch {
		case pos.NearStop(p.StopProximity):
			take(p.Urgent)
		case pos.Unrealized() > 0:
			take(p.Profit)
		default:
			take(p.Default)
		}
	}
	if !finite(s.DailyPnL) || s.DailyPnL <= -(1-p.LossMargin)*g.MaxDailyLoss() {
		take(p.Urgent)
	}
	if left := g.UntilSquareOff(now); left <= p.SquareOffWindow {
		take(p.Urgent)
	}
	return p.Clamp(next)
}
