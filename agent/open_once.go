package agent

import (
	"context"
	"sync"

	"github.com/bhavesh0009/options-day-trader-agent/gate"
	"github.com/bhavesh0009/options-day-trader-agent/risk"
)

// OpenOnce proposes a single order on its first call and then goes quiet.
// It's meant as a wiring test. If the order is rejected or fails it stays
// quiet; it does not retry.
type OpenOnce struct {
	Symbol   string
	Side     risk.Side
	Quantity int
	Price    float64
	StopLoss float64

	mu       sync.Mutex
	proposed bool
	last     []gate.Outcome
}

func (o *OpenOnce) Decide(ctx context.Context, snap risk.Snapshot) (Proposal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.proposed {
		return Proposal{}, nil
	}
	o.proposed = true
	return Proposal{Actions: []risk.ActionRequest{{
		Kind:     risk.PlaceOrder,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Quantity: o.Quantity,
		Price:    o.Price,
		StopLoss: o.StopLoss,
		Note:     "open-once",
	}}}, nil
}

func (o *OpenOnce) Observe(ctx context.Context, outcomes []gate.Outcome) {
	o.mu.Lock()
	o.last = append(o.last, outcomes...)
	o.mu.Unlock()
}

// Outcomes returns everything the gate reported back.
func (o *OpenOnce) Outcomes() []gate.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]gate.Outcome(nil), o.last...)
}
