package risk

import (
	"math"
	"time"
)

// Position is the net holding in one contract. Quantity is signed:
// positive is long, negative is short.
type Position struct {
	Symbol   string    `json:"symbol"`
	Quantity int       `json:"quantity"`
	AvgPrice float64   `json:"avg_price"`
	Mark     float64   `json:"mark"`
	StopLoss float64   `json:"stop_loss,omitempty"`
	OpenedAt time.Time `json:"opened_at"`
}

func (p Position) Open() bool { return p.Quantity != 0 }

// Unrealized is (mark - entry) * signed quantity. Zero until marked.
func (p Position) Unrealized() float64 {
	if !p.Open() || p.Mark <= 0 {
		return 0
	}
	return (p.Mark - p.AvgPrice) * float64(p.Quantity)
}

// NearStop reports whether the mark is within pct of the stop loss, or
// already through it.
func (p Position) NearStop(pct float64) bool {
	if !p.Open() || p.StopLoss <= 0 || p.Mark <= 0 {
		return false
	}
	if p.Quantity > 0 && p.Mark <= p.StopLoss {
		return true
	}
	if p.Quantity < 0 && p.Mark >= p.StopLoss {
		return true
	}
	return math.Abs(p.Mark-p.StopLoss) <= pct*p.StopLoss
}

// Fill is an execution reported by the broker.
type Fill struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Quantity int       `json:"quantity"`
	Price    float64   `json:"price"`
	Time     time.Time `json:"time"`
}

// Realization describes what a fill did to a position.
type Realization struct {
	Realized float64  `json:"realized"`
	Opened   bool     `json:"opened"`
	Closed   bool     `json:"closed"`
	EntryAvg float64  `json:"entry_avg"`
	Position Position `json:"position"`
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// applyFill folds f into p. Fills in the position's direction average in;
// opposite fills realize (exit - entry) * qty with the sign of the closed
// side and may flip the position.
func applyFill(p Position, f Fill) (Position, Realization) {
	var r Realization
	r.EntryAvg = p.AvgPrice
	q := f.Quantity * int(f.Side.Sign())
	wasOpen := p.Open()

	switch {
	case !wasOpen || sign(p.Quantity) == sign(q):
		total := absInt(p.Quantity) + f.Quantity
		p.AvgPrice = (p.AvgPrice*float64(absInt(p.Quantity)) + f.Price*float64(f.Quantity)) / float64(total)
		p.Quantity += q
		if !wasOpen {
			p.OpenedAt = f.Time
			r.Opened = true
		}
	default:
		closed := min(f.Quantity, absInt(p.Quantity))
		r.Realized = (f.Price - p.AvgPrice) * float64(closed*sign(p.Quantity))
		p.Quantity += q
		switch {
		case p.Quantity == 0:
			p.AvgPrice = 0
			p.StopLoss = 0
			r.Closed = true
		case sign(p.Quantity) == sign(q):
			// Flipped through flat; the remainder is a fresh position.
			p.AvgPrice = f.Price
			p.StopLoss = 0
			p.OpenedAt = f.Time
			r.Closed = true
			r.Opened = true
		}
	}
	p.Symbol = f.Symbol
	p.Mark = f.Price
	r.Position = p
	return p, r
}
