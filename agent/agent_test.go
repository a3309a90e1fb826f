package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bhavesh0009/options-day-trader-agent/gate"
	"github.com/bhavesh0009/options-day-trader-agent/pricing"
	"github.com/bhavesh0009/options-day-trader-agent/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const script = `
steps:
  - marks: {NIFTY24000CE: 101.5}
    quotes:
      - symbol: NIFTY24000CE
        spot: 24000
        strike: 24000
        days_to_expiry: 7
        premium: 101.5
        class: CE
        rate: 0.07
    actions:
      - kind: place_order
        symbol: NIFTY24000CE
        side: BUY
        quantity: 75
        price: 101.5
        stop_loss: 90
    interval_hint: 90s
  - actions:
      - kind: modify_order
        symbol: NIFTY24000CE
        side: SELL
        stop_loss: 95
fail_at: [3]
`

func TestParseScript(t *testing.T) {
	t.Parallel()

	s, err := ParseScript([]byte(script))
	require.NoError(t, err)
	ctx := context.Background()

	p, err := s.Decide(ctx, risk.Snapshot{})
	require.NoError(t, err)
	require.Len(t, p.Actions, 1)
	a := p.Actions[0]
	assert.Equal(t, risk.PlaceOrder, a.Kind)
	assert.Equal(t, risk.Buy, a.Side)
	assert.Equal(t, 75, a.Quantity)
	assert.Equal(t, 90.0, a.StopLoss)
	assert.Equal(t, 101.5, p.Marks["NIFTY24000CE"])
	require.Len(t, p.Quotes, 1)
	assert.Equal(t, pricing.Call, p.Quotes[0].Class)
	require.NotNil(t, p.Quotes[0].Rate)
	assert.Equal(t, 0.07, *p.Quotes[0].Rate)
	assert.Equal(t, 90*time.Second, p.IntervalHint)

	p, err = s.Decide(ctx, risk.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, risk.ModifyOrder, p.Actions[0].Kind)
	assert.Equal(t, risk.Sell, p.Actions[0].Side)

	_, err = s.Decide(ctx, risk.Snapshot{})
	assert.ErrorIs(t, err, ErrScriptedFailure)

	p, err = s.Decide(ctx, risk.Snapshot{})
	require.NoError(t, err)
	assert.Empty(t, p.Actions)
}

func TestQuote_Input(t *testing.T) {
	t.Parallel()

	s, err := ParseScript([]byte(`
steps:
  - quotes:
      - {symbol: A, spot: 100, strike: 100, days_to_expiry: 7, premium: 2, class: PE}
      - {symbol: B, spot: 100, strike: 100, days_to_expiry: 7, premium: 2, class: CE, rate: 0}
`))
	require.NoError(t, err)
	p, err := s.Decide(context.Background(), risk.Snapshot{})
	require.NoError(t, err)
	require.Len(t, p.Quotes, 2)

	assert.Nil(t, p.Quotes[0].Rate)
	in := p.Quotes[0].Input(0.065)
	assert.Equal(t, 0.065, in.Rate)
	assert.Equal(t, pricing.Put, in.Class)
	assert.Equal(t, "A", in.Symbol)

	require.NotNil(t, p.Quotes[1].Rate)
	assert.Zero(t, p.Quotes[1].Input(0.065).Rate)
}

func TestParseScript_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseScript([]byte("steps:\n  - actions:\n      - kind: place_order\n"))
	assert.ErrorContains(t, err, "symbol is required")

	_, err = ParseScript([]byte("steps:\n  - actions:\n      - kind: teleport\n        symbol: X\n"))
	assert.Error(t, err)
}

func TestScripted_Repeat(t *testing.T) {
	t.Parallel()

	s := NewScripted(Script{Repeat: true, Steps: []Proposal{{Marks: map[string]float64{"A": 1}}}})
	for i := 0; i < 3; i++ {
		p, err := s.Decide(context.Background(), risk.Snapshot{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, p.Marks["A"])
	}
}

func TestScripted_ObserveAndSummarize(t *testing.T) {
	t.Parallel()

	s := NewScripted(Script{})
	require.NoError(t, s.Prepare(context.Background(), risk.Snapshot{}))
	assert.True(t, s.Prepared())

	s.Observe(context.Background(), []gate.Outcome{
		{Status: gate.Filled, Action: risk.ActionRequest{Symbol: "A"}},
		{Status: gate.Rejected, Action: risk.ActionRequest{Symbol: "B"}, Decision: risk.Decision{Reason: "nope"}},
	})
	assert.Len(t, s.Notes(), 2)
	assert.Contains(t, s.Notes()[1], "REJECTED B: nope")

	sum, err := s.Summarize(context.Background(), risk.Snapshot{Iteration: 7, DailyPnL: -12.5, StopReason: risk.SquareOffTime})
	require.NoError(t, err)
	assert.Contains(t, sum, "iterations=7")
	assert.Contains(t, sum, "filled=1")
	assert.Contains(t, sum, "rejected=1")
	assert.Contains(t, sum, "stop=square_off_time")
}

func TestOpenOnce(t *testing.T) {
	t.Parallel()

	o := &OpenOnce{Symbol: "NIFTY24000CE", Side: risk.Buy, Quantity: 75, Price: 100}
	p, err := o.Decide(context.Background(), risk.Snapshot{})
	require.NoError(t, err)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, "NIFTY24000CE", p.Actions[0].Symbol)

	p, err = o.Decide(context.Background(), risk.Snapshot{})
	require.NoError(t, err)
	assert.Empty(t, p.Actions)

	o.Observe(context.Background(), []gate.Outcome{{Status: gate.Failed}})
	assert.Len(t, o.Outcomes(), 1)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"noop", "open_once", "scripted"}, Names())

	a, err := New("noop", Options{})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, a)

	_, err = New("open_once", Options{})
	assert.Error(t, err)

	_, err = New("llm", Options{})
	assert.ErrorContains(t, err, "unknown agent")

	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))
	a, err = New("scripted", Options{Script: path})
	require.NoError(t, err)
	assert.IsType(t, &Scripted{}, a)

	_, err = New("scripted", Options{})
	assert.Error(t, err)
}
