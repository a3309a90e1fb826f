package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bhavesh0009/options-day-trader-agent/risk"
)

// Executor places, modifies and cancels orders. Only the execution gate
// holds one.
type Executor interface {
	Execute(ctx context.Context, o Order) (Result, error)
}

// Order is what the gate forwards once a request has been allowed.
type Order struct {
	ClientID string          `json:"client_id"`
	Kind     risk.ActionKind `json:"kind"`
	Symbol   string          `json:"symbol"`
	Side     risk.Side       `json:"side"`
	Quantity int             `json:"quantity"`
	Price    float64         `json:"price,omitempty"`
	StopLoss float64         `json:"stop_loss,omitempty"`
}

func OrderFrom(a risk.ActionRequest) Order {
	return Order{
		ClientID: a.ID,
		Kind:     a.Kind,
		Symbol:   risk.NormalizeSymbol(a.Symbol),
		Side:     a.Side,
		Quantity: a.Quantity,
		Price:    a.Price,
		StopLoss: a.StopLoss,
	}
}

type Status int

const (
	// Accepted is an acknowledgement without an execution (modify, cancel).
	Accepted Status = iota
	Filled
)

func (s Status) String() string {
	if s == Filled {
		return "FILLED"
	}
	return "ACCEPTED"
}

// Result is the broker's report for one order.
type Result struct {
	OrderID  string    `json:"order_id"`
	Status   Status    `json:"status"`
	Symbol   string    `json:"symbol"`
	Side     risk.Side `json:"side"`
	Quantity int       `json:"quantity"`
	Price    float64   `json:"price"`
	Time     time.Time `json:"time"`
}

// Fill converts a filled result into the form the risk store consumes.
func (r Result) Fill() risk.Fill {
	return risk.Fill{
		OrderID:  r.OrderID,
		Symbol:   r.Symbol,
		Side:     r.Side,
		Quantity: r.Quantity,
		Price:    r.Price,
		Time:     r.Time,
	}
}

var (
	ErrNoPrice     = errors.New("no price available")
	ErrBadQuantity = errors.New("quantity must be positive")
	ErrBadPrice    = errors.New("price must be finite and non-negative")
	ErrUnsupported = errors.New("unsupported order kind")
)

// Validate catches orders no broker would accept.
func (o Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("order %s: empty symbol", o.ClientID)
	}
	if o.Kind == risk.PlaceOrder && o.Quantity <= 0 {
		return fmt.Errorf("order %s: %w: %d", o.ClientID, ErrBadQuantity, o.Quantity)
	}
	for _, px := range []float64{o.Price, o.StopLoss} {
		if math.IsNaN(px) || math.IsInf(px, 0) || px < 0 {
			return fmt.Errorf("order %s: %w: %v", o.ClientID, ErrBadPrice, px)
		}
	}
	return nil
}
