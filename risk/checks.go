package risk

import (
	"strings"
	"time"
)

// equitySeries are NSE cash-market series suffixes.
var equitySeries = []string{"-EQ", "-BE", "-BL", "-AF", "-IQ", "-RL"}

// IsEquitySymbol reports whether symbol names a cash-market instrument
// rather than a derivative contract.
func IsEquitySymbol(symbol string) bool {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suf := range equitySeries {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// Evaluate decides whether a request may reach the broker. Rules run in a
// fixed order and the first failure is returned; the caller fixes one thing
// at a time. Only PlaceOrder and ModifyOrder are evaluated. A request with
// unusable prices is rejected before any rule runs.
func Evaluate(a ActionRequest, s Snapshot, g *GuardrailConfig, now time.Time) Decision {
	if !a.Kind.IsOrder() {
		return allow()
	}

	if !finite(a.Price) || a.Price < 0 || !finite(a.StopLoss) || a.StopLoss < 0 {
		return reject(CodeInvalidOrder,
			"Invalid prices for %s: price %v, stop loss %v. Both must be finite and non-negative.",
			a.Symbol, a.Price, a.StopLoss)
	}

	// Loss limit blocks every order kind, modifications included.
	if g.LossLimitBreached(s.DailyPnL) {
		return reject(CodeDailyLossLimit,
			"Daily loss limit (Rs %.2f) breached. Current P&L: Rs %.2f <= limit Rs %.2f. No further trading allowed.",
			g.maxDailyLoss, s.DailyPnL, -g.maxDailyLoss)
	}

	if a.Kind == PlaceOrder && s.OpenPositions >= g.maxOpenPositions {
		return reject(CodeMaxOpenPositions,
			"Max positions (%d) already open: open positions %d >= max %d. Close an existing position first.",
			g.maxOpenPositions, s.OpenPositions, g.maxOpenPositions)
	}

	if a.Side == Buy && g.PastSquareOff(now) {
		return reject(CodePastSquareOff,
			"Past square-off time (%s): now %s. No new BUY orders allowed.",
			g.squareOff, now.In(g.loc).Format("15:04:05"))
	}

	if b, ok := g.BannedMatch(a.Symbol); ok {
		return reject(CodeBannedSymbol,
			"%s is in the F&O ban list (matched %s). Cannot trade banned securities.",
			a.Symbol, b)
	}

	if g.optionsOnly && IsEquitySymbol(a.Symbol) {
		return reject(CodeEquityOrder,
			"EQUITY ORDER REJECTED: %s is a cash-market symbol. Only option contracts (CE/PE) may be traded.",
			a.Symbol)
	}

	return allow()
}
