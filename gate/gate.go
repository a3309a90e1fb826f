package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bhavesh0009/options-day-trader-agent/broker"
	"github.com/bhavesh0009/options-day-trader-agent/id"
	"github.com/bhavesh0009/options-day-trader-agent/journal"
	"github.com/bhavesh0009/options-day-trader-agent/metrics"
	"github.com/bhavesh0009/options-day-trader-agent/risk"
	"github.com/rs/zerolog"
)

// Status is the kind of outcome the agent sees for a submitted request.
type Status int

const (
	// Filled: the broker executed the order and state was updated.
	Filled Status = iota
	// Accepted: forwarded and acknowledged without an execution.
	Accepted
	// Rejected: blocked by a guardrail; nothing was forwarded.
	Rejected
	// Failed: allowed, but the broker returned an error.
	Failed
)

func (s Status) String() string {
	switch s {
	case Filled:
		return "filled"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// CodeDuplicateRequest rejects a request id that was already submitted.
const CodeDuplicateRequest = "DUPLICATE_REQUEST"

// Outcome is returned to the agent for every submitted request.
type Outcome struct {
	Action      risk.ActionRequest
	Status      Status
	Decision    risk.Decision
	Result      broker.Result
	Realization risk.Realization
	Err         error
}

// String is the text handed back to the agent.
func (o Outcome) String() string {
	switch o.Status {
	case Rejected:
		return fmt.Sprintf("REJECTED %s: %s", o.Action.Symbol, o.Decision.Reason)
	case Failed:
		return fmt.Sprintf("FAILED %s: %v", o.Action.Symbol, o.Err)
	case Filled:
		s := fmt.Sprintf("FILLED %s %d %s @ %.2f (order %s)",
			o.Result.Side, o.Result.Quantity, o.Result.Symbol, o.Result.Price, o.Result.OrderID)
		if o.Realization.Closed {
			s += fmt.Sprintf(" realized %.2f", o.Realization.Realized)
		}
		return s
	}
	return fmt.Sprintf("ACCEPTED %s %s (order %s)", o.Action.Kind, o.Action.Symbol, o.Result.OrderID)
}

var (
	ErrNilExecutor   = errors.New("gate: executor is required")
	ErrNilStore      = errors.New("gate: risk store is required")
	ErrNilGuardrails = errors.New("gate: guardrail config is required")
)

type Config struct {
	Store      *risk.Store
	Guardrails *risk.GuardrailConfig
	Executor   broker.Executor

	Journal   journal.Journal
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
	Now       func() time.Time
	SessionID string
}

// Gate is the only path from a proposed action to the broker. Evaluation,
// forwarding and the state update for one request happen under the risk
// store's write lock.
type Gate struct {
	store      *risk.Store
	guardrails *risk.GuardrailConfig
	exec       broker.Executor
	journal    journal.Journal
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
	session    string

	mu   sync.Mutex
	seen map[string]struct{}
}

func New(cfg Config) (*Gate, error) {
	switch {
	case cfg.Executor == nil:
		return nil, ErrNilExecutor
	case cfg.Store == nil:
		return nil, ErrNilStore
	case cfg.Guardrails == nil:
		return nil, ErrNilGuardrails
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gate{
		store:      cfg.Store,
		guardrails: cfg.Guardrails,
		exec:       cfg.Executor,
		journal:    cfg.Journal,
		metrics:    cfg.Metrics,
		log:        cfg.Log,
		now:        cfg.Now,
		session:    cfg.SessionID,
		seen:       make(map[string]struct{}),
	}, nil
}

// claim marks a request id as used. It reports false if it already was.
func (g *Gate) claim(reqID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[reqID]; ok {
		return false
	}
	g.seen[reqID] = struct{}{}
	return true
}

// Submit evaluates a and, if allowed, forwards it exactly once.
func (g *Gate) Submit(ctx context.Context, a risk.ActionRequest) Outcome {
	now := g.now()
	a.Symbol = risk.NormalizeSymbol(a.Symbol)
	if a.ID == "" {
		a.ID = id.NewAt(now)
	}
	out := Outcome{Action: a}

	if !g.claim(a.ID) {
		out.Status = Rejected
		out.Decision = risk.Decision{
			Code:   CodeDuplicateRequest,
			Reason: fmt.Sprintf("Request %s was already submitted. Send a new request.", a.ID),
		}
		g.finish(out, g.store.Snapshot(), now)
		return out
	}

	var after risk.Snapshot
	err := g.store.Apply(func(tx *risk.Tx) error {
		defer func() { after = tx.Snapshot() }()
		out.Decision = risk.Evaluate(a, tx.Snapshot(), g.guardrails, now)
		if !out.Decision.Allowed {
			out.Status = Rejected
			return nil
		}

		res, err := g.exec.Execute(ctx, broker.OrderFrom(a))
		if err != nil {
			return err
		}
		out.Result = res

		if res.Status == broker.Filled {
			r, err := tx.ApplyFill(res.Fill())
			if err != nil {
				return fmt.Errorf("order %s: %w", res.OrderID, err)
			}
			out.Status = Filled
			out.Realization = r
		} else {
			out.Status = Accepted
		}
		if a.StopLoss > 0 && (a.Kind == risk.PlaceOrder || a.Kind == risk.ModifyOrder) {
			tx.SetStopLoss(a.Symbol, a.StopLoss)
		}
		return nil
	})
	if err != nil {
		out.Status = Failed
		out.Err = err
	}

	g.finish(out, after, now)
	return out
}

func (g *Gate) finish(out Outcome, snap risk.Snapshot, now time.Time) {
	a := out.Action
	rec := journal.DecisionRecord{
		ID:            a.ID,
		SessionID:     g.session,
		Time:          now,
		Iteration:     snap.Iteration,
		Kind:          a.Kind.String(),
		Symbol:        a.Symbol,
		Side:          a.Side.String(),
		Quantity:      a.Quantity,
		Price:         a.Price,
		Allowed:       out.Status != Rejected,
		Code:          out.Decision.Code,
		Reason:        out.Decision.Reason,
		Status:        out.Status.String(),
		OrderID:       out.Result.OrderID,
		DailyPnL:      snap.DailyPnL,
		OpenPositions: snap.OpenPositions,
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	if out.Status == Rejected && out.Decision.Code == CodeDuplicateRequest {
		// The first submission already owns this id in the decision log.
		rec.ID = id.NewAt(now)
	}
	if err := g.journal.RecordDecision(rec); err != nil {
		g.log.Error().Err(err).Str("request", a.ID).Msg("journal decision")
	}

	if out.Status == Filled {
		tr := journal.TradeRecord{
			TradeID:     out.Result.OrderID,
			SessionID:   g.session,
			Symbol:      out.Result.Symbol,
			Side:        out.Result.Side.String(),
			Quantity:    out.Result.Quantity,
			Price:       out.Result.Price,
			Realized:    out.Realization.Realized,
			PositionQty: out.Realization.Position.Quantity,
			Time:        out.Result.Time,
		}
		if err := g.journal.RecordTrade(tr); err != nil {
			g.log.Error().Err(err).Str("order", tr.TradeID).Msg("journal trade")
		}
	}

	g.metrics.Decision(a.Kind.String(), out.Status.String(), out.Decision.Code)
	g.metrics.Risk(snap.DailyPnL, snap.OpenPositions)

	ev := g.log.Info()
	switch out.Status {
	case Rejected:
		ev = g.log.Warn().Str("code", out.Decision.Code).Str("reason", out.Decision.Reason)
	case Failed:
		ev = g.log.Error().Err(out.Err)
	}
	ev.Str("request", a.ID).
		Str("kind", a.Kind.String()).
		Str("symbol", a.Symbol).
		Str("side", a.Side.String()).
		Int("quantity", a.Quantity).
		Str("status", out.Status.String()).
		Float64("daily_pnl", snap.DailyPnL).
		Int("open_positions", snap.OpenPositions).
		Msg("gate")
}
