package journal

import (
	"errors"
	"time"
)

// DecisionRecord is one pass through the execution gate.
type DecisionRecord struct {
	ID            string
	SessionID     string
	Time          time.Time
	Iteration     int
	Kind          string
	Symbol        string
	Side          string
	Quantity      int
	Price         float64
	Allowed       bool
	Code          string
	Reason        string
	Status        string
	OrderID       string
	Error         string
	DailyPnL      float64
	OpenPositions int
}

// TradeRecord is one fill.
type TradeRecord struct {
	TradeID     string
	SessionID   string
	Symbol      string
	Side        string
	Quantity    int
	Price       float64
	Realized    float64
	PositionQty int
	Time        time.Time
}

// SessionRecord summarises a trading day once it reaches end of day.
type SessionRecord struct {
	SessionID   string
	TradeDate   string
	Started     time.Time
	Ended       time.Time
	StopReason  string
	Iterations  int
	RealizedPnL float64
	DailyPnL    float64
	Fills       int
	Summary     string
}

type Journal interface {
	RecordDecision(DecisionRecord) error
	RecordTrade(TradeRecord) error
	RecordSession(SessionRecord) error
	Close() error
}

// BanList is the daily F&O ban list.
type BanList interface {
	BannedOn(day time.Time) ([]string, error)
	AddBan(symbol string, day time.Time) error
}

// Backend is a journal that also serves the ban list.
type Backend interface {
	Journal
	BanList
}

var (
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedDriver = errors.New("unsupported journal driver")
)

// BanDate is the key the ban list is stored under.
func BanDate(day time.Time) string {
	return day.Format("2006-01-02")
}

// Nop discards everything. Used when journaling is disabled.
type Nop struct{}

func (Nop) RecordDecision(DecisionRecord) error  { return nil }
func (Nop) RecordTrade(TradeRecord) error        { return nil }
func (Nop) RecordSession(SessionRecord) error    { return nil }
func (Nop) BannedOn(time.Time) ([]string, error) { return nil, nil }
func (Nop) AddBan(string, time.Time) error       { return nil }
func (Nop) Close() error                         { return nil }
