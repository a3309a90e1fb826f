package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bhavesh0009/options-day-trader-agent/gate"
	"github.com/bhavesh0009/options-day-trader-agent/pricing"
	"github.com/bhavesh0009/options-day-trader-agent/risk"
)

// Proposal is what the agent returns for one iteration.
type Proposal struct {
	Actions []risk.ActionRequest `json:"actions,omitempty" yaml:"actions,omitempty"`
	// Marks are last traded prices by symbol.
	Marks map[string]float64 `json:"marks,omitempty" yaml:"marks,omitempty"`
	// Quotes are option quotes to run through the IV solver; results land
	// in the state snapshot keyed by Symbol.
	Quotes []Quote `json:"quotes,omitempty" yaml:"quotes,omitempty"`
	// IntervalHint asks for a different wait before the next iteration.
	// Zero means no preference.
	IntervalHint time.Duration `json:"interval_hint,omitempty" yaml:"interval_hint,omitempty"`
}

// Quote is one option quote to price. A nil Rate takes the controller's
// risk-free rate; an explicit zero is kept.
type Quote struct {
	Symbol       string        `json:"symbol" yaml:"symbol"`
	Spot         float64       `json:"spot" yaml:"spot"`
	Strike       float64       `json:"strike" yaml:"strike"`
	DaysToExpiry float64       `json:"days_to_expiry" yaml:"days_to_expiry"`
	Premium      float64       `json:"premium" yaml:"premium"`
	Class        pricing.Class `json:"class" yaml:"class"`
	Rate         *float64      `json:"rate,omitempty" yaml:"rate,omitempty"`
}

// Input resolves q for the solver, using rate when q carries none.
func (q Quote) Input(rate float64) pricing.Input {
	if q.Rate != nil {
		rate = *q.Rate
	}
	return pricing.Input{
		Symbol:       q.Symbol,
		Spot:         q.Spot,
		Strike:       q.Strike,
		DaysToExpiry: q.DaysToExpiry,
		Premium:      q.Premium,
		Class:        q.Class,
		Rate:         rate,
	}
}

// Agent is the opaque decision maker. It sees a read-only snapshot and
// proposes actions; it never touches the broker.
type Agent interface {
	Decide(ctx context.Context, snap risk.Snapshot) (Proposal, error)
}

// Preparer runs once in the pre-market phase.
type Preparer interface {
	Prepare(ctx context.Context, snap risk.Snapshot) error
}

// Observer receives the gate's outcome for each submitted action.
type Observer interface {
	Observe(ctx context.Context, outcomes []gate.Outcome)
}

// Summarizer writes the end-of-day review.
type Summarizer interface {
	Summarize(ctx context.Context, snap risk.Snapshot) (string, error)
}

// Factory builds an agent from its options.
type Factory func(opts Options) (Agent, error)

// Options carries settings shared by the built-in agents.
type Options struct {
	Script   string
	Symbol   string
	Side     risk.Side
	Quantity int
	Price    float64
	StopLoss float64
}

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

// New builds a registered agent by name.
func New(name string, opts Options) (Agent, error) {
	regMu.RLock()
	f, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent %q (have %v)", name, Names())
	}
	return f(opts)
}

func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("noop", func(Options) (Agent, error) { return Noop{}, nil })
	Register("open_once", func(o Options) (Agent, error) {
		if o.Symbol == "" || o.Quantity <= 0 {
			return nil, fmt.Errorf("open_once: symbol and positive quantity are required")
		}
		return &OpenOnce{Symbol: o.Symbol, Side: o.Side, Quantity: o.Quantity, Price: o.Price, StopLoss: o.StopLoss}, nil
	})
	Register("scripted", func(o Options) (Agent, error) { return LoadScript(o.Script) })
}
