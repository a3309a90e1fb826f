package risk

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bhavesh0009/options-day-trader-agent/pricing"
)

// Phase is a stage of the trading day.
type Phase int

const (
	PreMarket Phase = iota
	Trading
	Stopping
	EndOfDay
	Done
)

func (p Phase) String() string {
	switch p {
	case PreMarket:
		return "pre_market"
	case Trading:
		return "trading"
	case Stopping:
		return "stopping"
	case EndOfDay:
		return "end_of_day"
	case Done:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

var transitions = map[Phase][]Phase{
	PreMarket: {Trading, Stopping},
	Trading:   {Stopping},
	Stopping:  {EndOfDay},
	EndOfDay:  {Done},
}

// CanAdvance reports whether from -> to is a legal transition.
func CanAdvance(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// StopReason records which condition ended trading.
type StopReason string

const (
	NoStop              StopReason = ""
	SquareOffTime       StopReason = "square_off_time"
	MaxLossBreached     StopReason = "max_loss_breached"
	IterationCapReached StopReason = "iteration_cap_reached"
	Shutdown            StopReason = "shutdown"
	MarketClosed        StopReason = "market_closed"
)

var (
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrInvalidInterval   = errors.New("interval must be positive")
	ErrInvalidFill       = errors.New("invalid fill")
)

// Snapshot is a consistent copy of the store taken under one lock.
type Snapshot struct {
	TradeDate     time.Time                 `json:"trade_date"`
	Phase         Phase                     `json:"phase"`
	Iteration     int                       `json:"iteration"`
	RealizedPnL   float64                   `json:"realized_pnl"`
	UnrealizedPnL float64                   `json:"unrealized_pnl"`
	DailyPnL      float64                   `json:"daily_pnl"`
	OpenPositions int                       `json:"open_positions"`
	Positions     []Position                `json:"positions"`
	Greeks        map[string]pricing.Greeks `json:"greeks,omitempty"`
	Interval      time.Duration             `json:"interval"`
	StopReason    StopReason                `json:"stop_reason,omitempty"`
	Fills         int                       `json:"fills"`
}

// Position returns the open position in symbol.
func (s Snapshot) Position(symbol string) (Position, bool) {
	symbol = NormalizeSymbol(symbol)
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// String renders the snapshot as text for the reasoning agent.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "date=%s phase=%s iteration=%d\n", s.TradeDate.Format("2006-01-02"), s.Phase, s.Iteration)
	fmt.Fprintf(&b, "daily_pnl=%.2f realized=%.2f unrealized=%.2f\n", s.DailyPnL, s.RealizedPnL, s.UnrealizedPnL)
	fmt.Fprintf(&b, "open_positions=%d fills=%d interval=%s", s.OpenPositions, s.Fills, s.Interval)
	if s.StopReason != NoStop {
		fmt.Fprintf(&b, " stop_reason=%s", s.StopReason)
	}
	for _, p := range s.Positions {
		fmt.Fprintf(&b, "\n  %s qty=%d avg=%.2f mark=%.2f upnl=%.2f", p.Symbol, p.Quantity, p.AvgPrice, p.Mark, p.Unrealized())
		if p.StopLoss > 0 {
			fmt.Fprintf(&b, " sl=%.2f", p.StopLoss)
		}
		if g, ok := s.Greeks[p.Symbol]; ok {
			fmt.Fprintf(&b, " iv=%.4f delta=%.4f theta=%.2f", g.IV, g.Delta, g.Theta)
		}
	}
	return b.String()
}

// Store is the single owner of the trading day's mutable risk state. All
// access goes through one RWMutex; Apply runs a caller's sequence under the
// write lock so nothing observes it half done.
type Store struct {
	mu sync.RWMutex

	tradeDate  time.Time
	phase      Phase
	iteration  int
	realized   float64
	positions  map[string]*Position
	greeks     map[string]pricing.Greeks
	interval   time.Duration
	stopReason StopReason
	fills      int
}

func NewStore(tradeDate time.Time, interval time.Duration) *Store {
	return &Store{
		tradeDate: tradeDate,
		phase:     PreMarket,
		positions: make(map[string]*Position),
		greeks:    make(map[string]pricing.Greeks),
		interval:  interval,
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		TradeDate:   s.tradeDate,
		Phase:       s.phase,
		Iteration:   s.iteration,
		RealizedPnL: s.realized,
		Interval:    s.interval,
		StopReason:  s.stopReason,
		Fills:       s.fills,
	}
	for _, p := range s.positions {
		if !p.Open() {
			continue
		}
		snap.Positions = append(snap.Positions, *p)
		snap.UnrealizedPnL += p.Unrealized()
	}
	sort.Slice(snap.Positions, func(i, j int) bool { return snap.Positions[i].Symbol < snap.Positions[j].Symbol })
	snap.OpenPositions = len(snap.Positions)
	snap.DailyPnL = snap.RealizedPnL + snap.UnrealizedPnL
	if len(s.greeks) > 0 {
		snap.Greeks = make(map[string]pricing.Greeks, len(s.greeks))
		for k, v := range s.greeks {
			snap.Greeks[k] = v
		}
	}
	return snap
}

func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Advance moves to the next phase. Illegal transitions are refused.
func (s *Store) Advance(to Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(to)
}

func (s *Store) advanceLocked(to Phase) error {
	if !CanAdvance(s.phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.phase, to)
	}
	s.phase = to
	return nil
}

// Stop moves to Stopping and records why. Only the first reason sticks.
func (s *Store) Stop(reason StopReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.advanceLocked(Stopping); err != nil {
		return err
	}
	if s.stopReason == NoStop {
		s.stopReason = reason
	}
	return nil
}

// NextIteration increments and returns the iteration counter.
func (s *Store) NextIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iteration++
	return s.iteration
}

func (s *Store) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, d)
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	return nil
}

// Mark updates last prices for held symbols. Unknown symbols are ignored.
func (s *Store) Mark(prices map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, px := range prices {
		if p, ok := s.positions[NormalizeSymbol(sym)]; ok && validPrice(px) {
			p.Mark = px
		}
	}
}

// LastPrice returns the last mark or fill price seen for symbol.
func (s *Store) LastPrice(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.positions[NormalizeSymbol(symbol)]; ok && p.Mark > 0 {
		return p.Mark, true
	}
	return 0, false
}

func (s *Store) SetGreeks(symbol string, g pricing.Greeks) {
	s.mu.Lock()
	s.greeks[NormalizeSymbol(symbol)] = g
	s.mu.Unlock()
}

// Apply runs fn with exclusive access to the store.
func (s *Store) Apply(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{s: s})
}

// Tx is the view of the store handed to Apply. It must not escape fn.
type Tx struct {
	s *Store
}

func (tx *Tx) Snapshot() Snapshot { return tx.s.snapshotLocked() }

// ApplyFill updates the position and realized P&L for one execution.
// Fills without a usable quantity or price are refused and leave the
// store untouched.
func (tx *Tx) ApplyFill(f Fill) (Realization, error) {
	f.Symbol = NormalizeSymbol(f.Symbol)
	switch {
	case f.Symbol == "":
		return Realization{}, fmt.Errorf("%w: empty symbol", ErrInvalidFill)
	case f.Quantity <= 0:
		return Realization{}, fmt.Errorf("%w: %s quantity %d", ErrInvalidFill, f.Symbol, f.Quantity)
	case !validPrice(f.Price):
		return Realization{}, fmt.Errorf("%w: %s price %v", ErrInvalidFill, f.Symbol, f.Price)
	}

	s := tx.s
	p, ok := s.positions[f.Symbol]
	if !ok {
		p = &Position{Symbol: f.Symbol}
		s.positions[f.Symbol] = p
	}
	next, r := applyFill(*p, f)
	*p = next
	s.realized += r.Realized
	s.fills++
	return r, nil
}

// SetStopLoss records a protective stop on an open position.
func (tx *Tx) SetStopLoss(symbol string, price float64) bool {
	p, ok := tx.s.positions[NormalizeSymbol(symbol)]
	if !ok || !p.Open() || !validPrice(price) {
		return false
	}
	p.StopLoss = price
	return true
}
