package risk

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func at(hhmm string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", "2025-02-12 "+hhmm, ist)
	if err != nil {
		panic(err)
	}
	return t
}

func testGuardrails(t *testing.T, mut ...func(*GuardrailParams)) *GuardrailConfig {
	t.Helper()
	p := GuardrailParams{
		MaxDailyLoss:     5000,
		MaxOpenPositions: 2,
		SquareOff:        TimeOfDay{Hour: 15},
		Location:         ist,
		BannedSymbols:    []string{"idea", " MANAPPURAM "},
	}
	for _, m := range mut {
		m(&p)
	}
	g, err := NewGuardrailConfig(p)
	require.NoError(t, err)
	return g
}

func buy(symbol string) ActionRequest {
	return ActionRequest{Kind: PlaceOrder, Symbol: symbol, Side: Buy, Quantity: 50, Price: 100}
}

func TestEvaluate_Scenarios(t *testing.T) {
	t.Parallel()
	g := testGuardrails(t)

	tests := []struct {
		name     string
		action   ActionRequest
		snap     Snapshot
		now      time.Time
		wantCode string
	}{
		{"allow just inside loss limit", buy("RELIANCE27FEB3000CE"), Snapshot{DailyPnL: -4999}, at("10:00"), ""},
		{"reject at loss limit", buy("RELIANCE27FEB3000CE"), Snapshot{DailyPnL: -5000}, at("10:00"), CodeDailyLossLimit},
		{"reject beyond loss limit", buy("RELIANCE27FEB3000CE"), Snapshot{DailyPnL: -7200}, at("10:00"), CodeDailyLossLimit},
		{"modify blocked by loss limit",
			ActionRequest{Kind: ModifyOrder, Symbol: "INFY28FEB1600PE", Side: Sell}, Snapshot{DailyPnL: -5000}, at("10:00"), CodeDailyLossLimit},
		{"reject at position cap", buy("TCS27MAR4500CE"), Snapshot{OpenPositions: 2}, at("10:00"), CodeMaxOpenPositions},
		{"modify ignores position cap",
			ActionRequest{Kind: ModifyOrder, Symbol: "TCS27MAR4500CE", Side: Sell}, Snapshot{OpenPositions: 2}, at("10:00"), ""},
		{"buy at square-off", buy("TCS27MAR4500CE"), Snapshot{}, at("15:00"), CodePastSquareOff},
		{"buy after square-off", buy("TCS27MAR4500CE"), Snapshot{}, at("15:20"), CodePastSquareOff},
		{"sell after square-off",
			ActionRequest{Kind: PlaceOrder, Symbol: "TCS27MAR4500CE", Side: Sell, Quantity: 50}, Snapshot{}, at("15:20"), ""},
		{"buy one minute before square-off", buy("TCS27MAR4500CE"), Snapshot{}, at("14:59"), ""},
		{"banned root symbol", buy("IDEA27FEB10CE"), Snapshot{}, at("10:00"), CodeBannedSymbol},
		{"banned lower case input", buy("manappuram27feb200pe"), Snapshot{}, at("10:00"), CodeBannedSymbol},
		{"cancel always allowed",
			ActionRequest{Kind: CancelOrder, Symbol: "IDEA27FEB10CE"}, Snapshot{DailyPnL: -9000, OpenPositions: 5}, at("15:29"), ""},
		{"other action allowed",
			ActionRequest{Kind: OtherAction, Symbol: "IDEA"}, Snapshot{DailyPnL: -9000}, at("15:29"), ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Evaluate(tt.action, tt.snap, g, tt.now)
			if tt.wantCode == "" {
				assert.True(t, d.Allowed, d.Reason)
				assert.Empty(t, d.Reason)
				return
			}
			assert.False(t, d.Allowed)
			assert.Equal(t, tt.wantCode, d.Code)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestEvaluate_LossLimitReasonNamesValues(t *testing.T) {
	t.Parallel()
	g := testGuardrails(t)

	d := Evaluate(buy("SBIN27FEB800CE"), Snapshot{DailyPnL: -5000}, g, at("10:00"))
	require.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "Daily loss limit")
	assert.Contains(t, d.Reason, "5000.00")
	assert.Contains(t, d.Reason, "-5000.00")
}

func TestEvaluate_RuleOrder(t *testing.T) {
	t.Parallel()
	g := testGuardrails(t)

	// Violates every rule at once; the loss limit is reported.
	snap := Snapshot{DailyPnL: -6000, OpenPositions: 3}
	d := Evaluate(buy("IDEA27FEB10CE"), snap, g, at("15:10"))
	assert.Equal(t, CodeDailyLossLimit, d.Code)

	snap.DailyPnL = 0
	d = Evaluate(buy("IDEA27FEB10CE"), snap, g, at("15:10"))
	assert.Equal(t, CodeMaxOpenPositions, d.Code)

	snap.OpenPositions = 0
	d = Evaluate(buy("IDEA27FEB10CE"), snap, g, at("15:10"))
	assert.Equal(t, CodePastSquareOff, d.Code)

	d = Evaluate(buy("IDEA27FEB10CE"), snap, g, at("11:00"))
	assert.Equal(t, CodeBannedSymbol, d.Code)
}

func TestEvaluate_PropertyLossLimit(t *testing.T) {
	t.Parallel()
	g := testGuardrails(t)

	for pnl := -5000.0; pnl >= -20000; pnl -= 750 {
		for _, kind := range []ActionKind{PlaceOrder, ModifyOrder} {
			for _, side := range []Side{Buy, Sell} {
				a := ActionRequest{Kind: kind, Side: side, Symbol: "NIFTY24000CE", Quantity: 75}
				d := Evaluate(a, Snapshot{DailyPnL: pnl}, g, at("09:30"))
				assert.False(t, d.Allowed, fmt.Sprintf("pnl=%.0f kind=%s side=%s", pnl, kind, side))
			}
		}
	}
}

func TestEvaluate_NonFinitePnLIsABreach(t *testing.T) {
	t.Parallel()
	g := testGuardrails(t)

	for _, pnl := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		d := Evaluate(buy("NIFTY24000CE"), Snapshot{DailyPnL: pnl}, g, at("09:30"))
		assert.Equal(t, CodeDailyLossLimit, d.Code, "pnl=%v", pnl)
		assert.True(t, g.LossLimitBreached(pnl))
	}
	assert.False(t, g.LossLimitBreached(-4999.99))
	assert.True(t, g.LossLimitBreached(-5000))
}

func TestEvaluate_InvalidPrices(t *testing.T) {
	t.Parallel()
	g := testGuardrails(t)

	tests := []struct {
		name  string
		price float64
		stop  float64
	}{
		{"nan price", math.NaN(), 0},
		{"infinite price", math.Inf(1), 0},
		{"negative price", -1, 0},
		{"nan stop", 100, math.NaN()},
		{"negative stop", 100, -5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for _, kind := range []ActionKind{PlaceOrder, ModifyOrder} {
				a := buy("NIFTY24000CE")
				a.Kind, a.Price, a.StopLoss = kind, tt.price, tt.stop
				d := Evaluate(a, Snapshot{}, g, at("10:00"))
				assert.False(t, d.Allowed)
				assert.Equal(t, CodeInvalidOrder, d.Code)
			}
		})
	}

	// Market orders carry no price.
	a := buy("NIFTY24000CE")
	a.Price = 0
	assert.True(t, Evaluate(a, Snapshot{}, g, at("10:00")).Allowed)
}

func TestEvaluate_PropertyBanList(t *testing.T) {
	t.Parallel()
	g := testGuardrails(t)

	for _, sym := range []string{"IDEA", "IDEA-EQ", "IDEA27FEB10CE", "MANAPPURAM27FEB200PE"} {
		for _, side := range []Side{Buy, Sell} {
			a := ActionRequest{Kind: PlaceOrder, Side: side, Symbol: sym, Quantity: 1}
			d := Evaluate(a, Snapshot{}, g, at("09:30"))
			assert.Equal(t, CodeBannedSymbol, d.Code, sym)
		}
	}
}

func TestEvaluate_OptionsOnly(t *testing.T) {
	t.Parallel()
	g := testGuardrails(t, func(p *GuardrailParams) { p.OptionsOnly = true })

	for _, sym := range []string{"RELIANCE-EQ", "INFY-BE", "TCS-BL", "KOTAKBANK-AF", "ITC-IQ", "SBIN-RL"} {
		d := Evaluate(buy(sym), Snapshot{}, g, at("10:00"))
		assert.Equal(t, CodeEquityOrder, d.Code, sym)
		assert.Contains(t, d.Reason, "EQUITY ORDER REJECTED")
	}
	for _, sym := range []string{"RELIANCE27FEB3000CE", "INFY28FEB1600PE", "TCS27MAR4500CE", "KOTAKBANK27FEB1800PE"} {
		d := Evaluate(buy(sym), Snapshot{}, g, at("10:00"))
		assert.True(t, d.Allowed, sym)
	}

	// Off by default.
	d := Evaluate(buy("RELIANCE-EQ"), Snapshot{}, testGuardrails(t), at("10:00"))
	assert.True(t, d.Allowed)
}

func TestEvaluate_SquareOffUsesConfiguredZone(t *testing.T) {
	t.Parallel()
	g := testGuardrails(t)

	// 09:35 UTC is 15:05 IST.
	now := time.Date(2025, 2, 12, 9, 35, 0, 0, time.UTC)
	d := Evaluate(buy("TCS27MAR4500CE"), Snapshot{}, g, now)
	assert.Equal(t, CodePastSquareOff, d.Code)
}

func TestNewGuardrailConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  GuardrailParams
		wantErr bool
	}{
		{"valid", GuardrailParams{MaxDailyLoss: 1, MaxOpenPositions: 1, SquareOff: TimeOfDay{Hour: 15}}, false},
		{"zero loss", GuardrailParams{MaxDailyLoss: 0, MaxOpenPositions: 1}, true},
		{"zero positions", GuardrailParams{MaxDailyLoss: 10, MaxOpenPositions: 0}, true},
		{"bad square-off", GuardrailParams{MaxDailyLoss: 10, MaxOpenPositions: 1, SquareOff: TimeOfDay{Hour: 25}}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, err := NewGuardrailConfig(tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidGuardrails)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, time.UTC, g.Location())
		})
	}
}

func TestGuardrailConfig_BannedSymbolsIsACopy(t *testing.T) {
	t.Parallel()
	g := testGuardrails(t)

	bans := g.BannedSymbols()
	assert.Equal(t, []string{"IDEA", "MANAPPURAM"}, bans)
	bans[0] = "XYZ"
	assert.Equal(t, []string{"IDEA", "MANAPPURAM"}, g.BannedSymbols())
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	tod, err := ParseTimeOfDay("15:00")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 15}, tod)
	assert.Equal(t, "15:00", tod.String())

	_, err = ParseTimeOfDay("3pm")
	assert.Error(t, err)
}

func TestActionRequest_TextFields(t *testing.T) {
	t.Parallel()

	var k ActionKind
	require.NoError(t, k.UnmarshalText([]byte("modify_order")))
	assert.Equal(t, ModifyOrder, k)
	assert.Error(t, k.UnmarshalText([]byte("bogus")))

	var s Side
	require.NoError(t, s.UnmarshalText([]byte("sell")))
	assert.Equal(t, Sell, s)
	assert.Error(t, s.UnmarshalText([]byte("hold")))
}
