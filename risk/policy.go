package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ActionKind classifies a proposed action. Only order kinds are gated.
type ActionKind int

const (
	OtherAction ActionKind = iota
	PlaceOrder
	ModifyOrder
	CancelOrder
)

var kindNames = map[ActionKind]string{
	OtherAction: "other",
	PlaceOrder:  "place_order",
	ModifyOrder: "modify_order",
	CancelOrder: "cancel_order",
}

func (k ActionKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k ActionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ActionKind) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for kind, name := range kindNames {
		if s == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown action kind %q", string(b))
}

// IsOrder reports whether the kind is subject to guardrail evaluation.
func (k ActionKind) IsOrder() bool {
	return k == PlaceOrder || k == ModifyOrder
}

// Side is the transaction type of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// Sign is +1 for Buy and -1 for Sell.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(b))) {
	case "BUY", "B":
		*s = Buy
	case "SELL", "S":
		*s = Sell
	default:
		return fmt.Errorf("unknown side %q", string(b))
	}
	return nil
}

// NormalizeSymbol is the form symbols are keyed by across the store,
// the gate and the broker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// validPrice accepts finite prices above zero.
func validPrice(px float64) bool {
	return px > 0 && !math.IsInf(px, 1)
}

// ActionRequest is one risky operation proposed by the reasoning agent.
type ActionRequest struct {
	ID       string     `json:"id,omitempty" yaml:"id,omitempty"`
	Kind     ActionKind `json:"kind" yaml:"kind"`
	Symbol   string     `json:"symbol" yaml:"symbol"`
	Side     Side       `json:"side" yaml:"side"`
	Quantity int        `json:"quantity" yaml:"quantity"`
	Price    float64    `json:"price,omitempty" yaml:"price,omitempty"`
	StopLoss float64    `json:"stop_loss,omitempty" yaml:"stop_loss,omitempty"`
	Note     string     `json:"note,omitempty" yaml:"note,omitempty"`
}

func (a ActionRequest) String() string {
	return fmt.Sprintf("%s %s %d %s @ %.2f", a.Kind, a.Side, a.Quantity, a.Symbol, a.Price)
}

// Rejection codes.
const (
	CodeDailyLossLimit   = "DAILY_LOSS_LIMIT"
	CodeMaxOpenPositions = "MAX_OPEN_POSITIONS"
	CodePastSquareOff    = "PAST_SQUARE_OFF"
	CodeBannedSymbol     = "BANNED_SYMBOL"
	CodeEquityOrder      = "EQUITY_ORDER"
	CodeInvalidOrder     = "INVALID_ORDER"
)

// Decision is the guardrail verdict for one request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func reject(code, format string, args ...any) Decision {
	return Decision{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Seconds since midnight.
func (t TimeOfDay) Seconds() int { return t.Hour*3600 + t.Minute*60 }

// On returns the instant of t on the calendar day of day, in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
}

func secondsOfDay(now time.Time, loc *time.Location) int {
	n := now.In(loc)
	return n.Hour()*3600 + n.Minute()*60 + n.Second()
}

// GuardrailParams are the inputs to NewGuardrailConfig.
type GuardrailParams struct {
	MaxDailyLoss     float64
	MaxOpenPositions int
	SquareOff        TimeOfDay
	Location         *time.Location
	BannedSymbols    []string
	OptionsOnly      bool
}

// GuardrailConfig is frozen at construction and shared by pointer for the
// whole trading day. It has no setters.
type GuardrailConfig struct {
	maxDailyLoss     float64
	maxOpenPositions int
	squareOff        TimeOfDay
	loc              *time.Location
	banned           []string
	optionsOnly      bool
}

var ErrInvalidGuardrails = errors.New("invalid guardrail config")

func NewGuardrailConfig(p GuardrailParams) (*GuardrailConfig, error) {
	if p.MaxDailyLoss <= 0 {
		return nil, fmt.Errorf("%w: max daily loss %.2f must be positive", ErrInvalidGuardrails, p.MaxDailyLoss)
	}
	if p.MaxOpenPositions <= 0 {
		return nil, fmt.Errorf("%w: max open positions %d must be positive", ErrInvalidGuardrails, p.MaxOpenPositions)
	}
	if p.SquareOff.Hour < 0 || p.SquareOff.Hour > 23 || p.SquareOff.Minute < 0 || p.SquareOff.Minute > 59 {
		return nil, fmt.Errorf("%w: square-off time %s", ErrInvalidGuardrails, p.SquareOff)
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	seen := make(map[string]bool, len(p.BannedSymbols))
	banned := make([]string, 0, len(p.BannedSymbols))
	for _, s := range p.BannedSymbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		banned = append(banned, s)
	}
	sort.Strings(banned)

	return &GuardrailConfig{
		maxDailyLoss:     p.MaxDailyLoss,
		maxOpenPositions: p.MaxOpenPositions,
		squareOff:        p.SquareOff,
		loc:              loc,
		banned:           banned,
		optionsOnly:      p.OptionsOnly,
	}, nil
}

func (g *GuardrailConfig) MaxDailyLoss() float64    { return g.maxDailyLoss }
func (g *GuardrailConfig) MaxOpenPositions() int    { return g.maxOpenPositions }
func (g *GuardrailConfig) SquareOff() TimeOfDay     { return g.squareOff }
func (g *GuardrailConfig) Location() *time.Location { return g.loc }
func (g *GuardrailConfig) OptionsOnly() bool        { return g.optionsOnly }

// BannedSymbols returns a copy of the upper-cased ban list.
func (g *GuardrailConfig) BannedSymbols() []string {
	return append([]string(nil), g.banned...)
}

// PastSquareOff reports whether now is at or after the square-off time.
func (g *GuardrailConfig) PastSquareOff(now time.Time) bool {
	return secondsOfDay(now, g.loc) >= g.squareOff.Seconds()
}

// UntilSquareOff is the time left before square-off on now's day.
// It is zero or negative once square-off has passed.
func (g *GuardrailConfig) UntilSquareOff(now time.Time) time.Duration {
	return g.squareOff.On(now, g.loc).Sub(now)
}

// LossLimitBreached reports whether pnl is at or below the daily loss
// limit. A non-finite pnl counts as breached.
func (g *GuardrailConfig) LossLimitBreached(pnl float64) bool {
	return !finite(pnl) || pnl <= -g.maxDailyLoss
}

// BannedMatch returns the ban entry that prefixes symbol, if any.
func (g *GuardrailConfig) BannedMatch(symbol string) (string, bool) {
	s := NormalizeSymbol(symbol)
	if s == "" {
		return "", false
	}
	for _, b := range g.banned {
		if strings.HasPrefix(s, b) {
			return b, true
		}
	}
	return "", false
}
