package gate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/bhavesh0009/options-day-trader-agent/broker"
	"github.com/bhavesh0009/options-day-trader-agent/broker/paper"
	"github.com/bhavesh0009/options-day-trader-agent/journal"
	"github.com/bhavesh0009/options-day-trader-agent/metrics"
	"github.com/bhavesh0009/options-day-trader-agent/risk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type memJournal struct {
	mu        sync.Mutex
	decisions []journal.DecisionRecord
	trades    []journal.TradeRecord
}

func (j *memJournal) RecordDecision(d journal.DecisionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.decisions = append(j.decisions, d)
	return nil
}

func (j *memJournal) RecordTrade(t journal.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
	return nil
}

func (j *memJournal) RecordSession(journal.SessionRecord) error { return nil }
func (j *memJournal) Close() error                              { return nil }

// failingExecutor fails every call and counts them.
type failingExecutor struct {
	mu    sync.Mutex
	calls int
}

func (f *failingExecutor) Execute(ctx context.Context, o broker.Order) (broker.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return broker.Result{}, errors.New("broker timeout")
}

// fillExecutor reports every order as filled with the given quantity and
// price, whatever was asked for.
type fillExecutor struct {
	qty   int
	price float64
}

func (f fillExecutor) Execute(ctx context.Context, o broker.Order) (broker.Result, error) {
	return broker.Result{
		OrderID:  "ext-1",
		Status:   broker.Filled,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Quantity: f.qty,
		Price:    f.price,
	}, nil
}

type fixture struct {
	gate    *Gate
	store   *risk.Store
	engine  *paper.Engine
	journal *memJournal
	metrics *metrics.Metrics
	reg     *prometheus.Registry
	now     time.Time
}

func newFixture(t *testing.T, now time.Time, exec broker.Executor) *fixture {
	t.Helper()
	g, err := risk.NewGuardrailConfig(risk.GuardrailParams{
		MaxDailyLoss:     5000,
		MaxOpenPositions: 2,
		SquareOff:        risk.TimeOfDay{Hour: 15},
		Location:         ist,
		BannedSymbols:    []string{"IDEA"},
	})
	require.NoError(t, err)

	f := &fixture{
		store:   risk.NewStore(now, 2*time.Minute),
		journal: &memJournal{},
		reg:     prometheus.NewRegistry(),
		now:     now,
	}
	f.metrics = metrics.New(f.reg)
	if exec == nil {
		f.engine = paper.NewEngine(paper.NewBook(), func() time.Time { return now })
		exec = f.engine
	}
	f.gate, err = New(Config{
		Store:      f.store,
		Guardrails: g,
		Executor:   exec,
		Journal:    f.journal,
		Metrics:    f.metrics,
		Log:        zerolog.Nop(),
		Now:        func() time.Time { return now },
		SessionID:  "sess-1",
	})
	require.NoError(t, err)
	return f
}

func tenAM() time.Time { return time.Date(2025, 2, 12, 10, 0, 0, 0, ist) }

func buy(sym string, px float64) risk.ActionRequest {
	return risk.ActionRequest{Kind: risk.PlaceOrder, Symbol: sym, Side: risk.Buy, Quantity: 50, Price: px}
}

func TestSubmit_AllowedFillUpdatesState(t *testing.T) {
	t.Parallel()
	f := newFixture(t, tenAM(), nil)

	a := buy("NIFTY24000CE", 100)
	a.StopLoss = 80
	out := f.gate.Submit(context.Background(), a)

	require.Equal(t, Filled, out.Status, out.String())
	assert.True(t, out.Decision.Allowed)
	assert.NotEmpty(t, out.Action.ID)
	assert.Equal(t, 100.0, out.Result.Price)

	snap := f.store.Snapshot()
	assert.Equal(t, 1, snap.OpenPositions)
	pos, ok := snap.Position("NIFTY24000CE")
	require.True(t, ok)
	assert.Equal(t, 80.0, pos.StopLoss)

	require.Len(t, f.journal.decisions, 1)
	assert.Equal(t, "filled", f.journal.decisions[0].Status)
	assert.Equal(t, "sess-1", f.journal.decisions[0].SessionID)
	assert.Equal(t, 1, f.journal.decisions[0].OpenPositions)
	require.Len(t, f.journal.trades, 1)
	assert.Equal(t, out.Result.OrderID, f.journal.trades[0].TradeID)
	assert.Contains(t, out.String(), "FILLED BUY 50 NIFTY24000CE @ 100.00")
}

func TestSubmit_RejectionNeverReachesBroker(t *testing.T) {
	t.Parallel()
	exec := &failingExecutor{}
	f := newFixture(t, tenAM(), exec)

	// Book a loss of exactly the limit.
	_ = f.store.Apply(func(tx *risk.Tx) error {
		tx.ApplyFill(risk.Fill{Symbol: "X", Side: risk.Buy, Quantity: 100, Price: 60})
		tx.ApplyFill(risk.Fill{Symbol: "X", Side: risk.Sell, Quantity: 100, Price: 10})
		return nil
	})

	out := f.gate.Submit(context.Background(), buy("NIFTY24000CE", 100))
	assert.Equal(t, Rejected, out.Status)
	assert.Equal(t, risk.CodeDailyLossLimit, out.Decision.Code)
	assert.Contains(t, out.String(), out.Decision.Reason)
	assert.Zero(t, exec.calls)

	require.Len(t, f.journal.decisions, 1)
	assert.False(t, f.journal.decisions[0].Allowed)
	n, err := testutil.GatherAndCount(f.reg, "odta_gate_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmit_BrokerFailureIsNotRejection(t *testing.T) {
	t.Parallel()
	exec := &failingExecutor{}
	f := newFixture(t, tenAM(), exec)

	out := f.gate.Submit(context.Background(), buy("NIFTY24000CE", 100))
	assert.Equal(t, Failed, out.Status)
	assert.True(t, out.Decision.Allowed)
	require.Error(t, out.Err)
	assert.Contains(t, out.String(), "FAILED")
	assert.Equal(t, 1, exec.calls)
	assert.Zero(t, f.store.Snapshot().OpenPositions)
	assert.Equal(t, "broker timeout", f.journal.decisions[0].Error)
	assert.Empty(t, f.journal.trades)
}

func TestSubmit_DuplicateRequestIsForwardedOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, tenAM(), nil)

	a := buy("NIFTY24000CE", 100)
	a.ID = "req-1"
	first := f.gate.Submit(context.Background(), a)
	second := f.gate.Submit(context.Background(), a)

	assert.Equal(t, Filled, first.Status)
	assert.Equal(t, Rejected, second.Status)
	assert.Equal(t, CodeDuplicateRequest, second.Decision.Code)
	assert.Len(t, f.engine.Orders(), 1)
	require.Len(t, f.journal.decisions, 2)
	assert.NotEqual(t, f.journal.decisions[0].ID, f.journal.decisions[1].ID)
}

func TestSubmit_ModifyIsAcknowledgedAndMovesStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t, tenAM(), nil)

	require.Equal(t, Filled, f.gate.Submit(context.Background(), buy("NIFTY24000CE", 100)).Status)
	out := f.gate.Submit(context.Background(), risk.ActionRequest{
		Kind: risk.ModifyOrder, Symbol: "NIFTY24000CE", Side: risk.Sell, StopLoss: 95,
	})
	assert.Equal(t, Accepted, out.Status)
	assert.Contains(t, out.String(), "ACCEPTED")

	pos, ok := f.store.Snapshot().Position("NIFTY24000CE")
	require.True(t, ok)
	assert.Equal(t, 95.0, pos.StopLoss)
}

func TestSubmit_ClosingSellAfterSquareOffRealizes(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 2, 12, 15, 5, 0, 0, ist)
	f := newFixture(t, now, nil)

	_ = f.store.Apply(func(tx *risk.Tx) error {
		tx.ApplyFill(risk.Fill{Symbol: "NIFTY24000CE", Side: risk.Buy, Quantity: 50, Price: 100})
		return nil
	})

	rej := f.gate.Submit(context.Background(), buy("BANKNIFTY50000CE", 200))
	assert.Equal(t, Rejected, rej.Status)
	assert.Equal(t, risk.CodePastSquareOff, rej.Decision.Code)

	out := f.gate.Submit(context.Background(), risk.ActionRequest{
		Kind: risk.PlaceOrder, Symbol: "NIFTY24000CE", Side: risk.Sell, Quantity: 50, Price: 120,
	})
	require.Equal(t, Filled, out.Status)
	assert.True(t, out.Realization.Closed)
	assert.InDelta(t, 1000, out.Realization.Realized, 1e-9)

	snap := f.store.Snapshot()
	assert.Zero(t, snap.OpenPositions)
	assert.InDelta(t, 1000, snap.DailyPnL, 1e-9)
	assert.Contains(t, out.String(), "realized 1000.00")
}

func TestSubmit_ConcurrentSubmissionsRespectPositionCap(t *testing.T) {
	t.Parallel()
	f := newFixture(t, tenAM(), nil)

	var wg sync.WaitGroup
	outs := make([]Outcome, 10)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i] = f.gate.Submit(context.Background(), buy(fmt.Sprintf("SYM%d", i), 10))
		}(i)
	}
	wg.Wait()

	filled := 0
	for _, o := range outs {
		if o.Status == Filled {
			filled++
		} else {
			assert.Equal(t, risk.CodeMaxOpenPositions, o.Decision.Code)
		}
	}
	assert.Equal(t, 2, filled)
	assert.Equal(t, 2, f.store.Snapshot().OpenPositions)
	assert.Len(t, f.engine.Orders(), 2)
}

func TestSubmit_NonOrderKindsPassThrough(t *testing.T) {
	t.Parallel()
	f := newFixture(t, tenAM(), nil)

	out := f.gate.Submit(context.Background(), risk.ActionRequest{Kind: risk.CancelOrder, Symbol: "IDEA27FEB10CE"})
	assert.Equal(t, Accepted, out.Status)
	assert.True(t, out.Decision.Allowed)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	g, err := risk.NewGuardrailConfig(risk.GuardrailParams{MaxDailyLoss: 1, MaxOpenPositions: 1})
	require.NoError(t, err)
	s := risk.NewStore(tenAM(), time.Minute)
	e := paper.NewEngine(paper.NewBook(), nil)

	_, err = New(Config{Store: s, Guardrails: g})
	assert.ErrorIs(t, err, ErrNilExecutor)
	_, err = New(Config{Executor: e, Guardrails: g})
	assert.ErrorIs(t, err, ErrNilStore)
	_, err = New(Config{Executor: e, Store: s})
	assert.ErrorIs(t, err, ErrNilGuardrails)
}

func TestSubmit_NonFinitePriceCannotHideLoss(t *testing.T) {
	t.Parallel()
	f := newFixture(t, tenAM(), nil)
	ctx := context.Background()

	for _, px := range []float64{math.NaN(), math.Inf(1)} {
		out := f.gate.Submit(ctx, buy("NIFTY24000CE", px))
		assert.Equal(t, Rejected, out.Status)
		assert.Equal(t, risk.CodeInvalidOrder, out.Decision.Code)
	}
	assert.Empty(t, f.engine.Orders())

	require.Equal(t, Filled, f.gate.Submit(ctx, risk.ActionRequest{
		Kind: risk.PlaceOrder, Symbol: "BANKNIFTY50000CE", Side: risk.Buy, Quantity: 100, Price: 100,
	}).Status)
	require.Equal(t, Filled, f.gate.Submit(ctx, risk.ActionRequest{
		Kind: risk.PlaceOrder, Symbol: "BANKNIFTY50000CE", Side: risk.Sell, Quantity: 100, Price: 30,
	}).Status)
	assert.InDelta(t, -7000, f.store.Snapshot().DailyPnL, 1e-9)

	out := f.gate.Submit(ctx, buy("FINNIFTY22000CE", 50))
	assert.Equal(t, Rejected, out.Status)
	assert.Equal(t, risk.CodeDailyLossLimit, out.Decision.Code)
}

func TestSubmit_UnusableFillIsFailed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		exec fillExecutor
	}{
		{"zero quantity", fillExecutor{qty: 0, price: 100}},
		{"nan price", fillExecutor{qty: 50, price: math.NaN()}},
		{"infinite price", fillExecutor{qty: 50, price: math.Inf(1)}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tenAM(), tt.exec)

			out := f.gate.Submit(context.Background(), buy("NIFTY24000CE", 100))
			assert.Equal(t, Failed, out.Status)
			assert.ErrorIs(t, out.Err, risk.ErrInvalidFill)

			snap := f.store.Snapshot()
			assert.Zero(t, snap.Fills)
			assert.Zero(t, snap.OpenPositions)
			assert.Zero(t, snap.DailyPnL)
			assert.Empty(t, f.journal.trades)
			require.Len(t, f.journal.decisions, 1)
			assert.Equal(t, "failed", f.journal.decisions[0].Status)
		})
	}
}

func TestSubmit_NormalizesSymbol(t *testing.T) {
	t.Parallel()
	f := newFixture(t, tenAM(), nil)

	out := f.gate.Submit(context.Background(), buy(" nifty24000ce", 100))
	require.Equal(t, Filled, out.Status)
	assert.Equal(t, "NIFTY24000CE", out.Action.Symbol)
	assert.Equal(t, "NIFTY24000CE", f.engine.Orders()[0].Order.Symbol)
	assert.Equal(t, "NIFTY24000CE", f.journal.decisions[0].Symbol)

	f.store.Mark(map[string]float64{"nifty24000ce": 110})
	assert.InDelta(t, 500, f.store.Snapshot().DailyPnL, 1e-9)

	// Lower-case ban entries and symbols still match.
	assert.Equal(t, risk.CodeBannedSymbol, f.gate.Submit(context.Background(), buy("idea27feb10ce", 1)).Decision.Code)
}
