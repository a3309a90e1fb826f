package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/bhavesh0009/options-day-trader-agent/broker"
	"github.com/bhavesh0009/options-day-trader-agent/id"
	"github.com/bhavesh0009/options-day-trader-agent/risk"
)

// Book holds the last traded price per symbol. The controller writes it
// from the agent's marks; the engine reads it to fill market orders.
type Book struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewBook() *Book {
	return &Book{prices: make(map[string]float64)}
}

func (b *Book) Set(symbol string, price float64) {
	if !(price > 0) || math.IsInf(price, 1) {
		return
	}
	b.mu.Lock()
	b.prices[risk.NormalizeSymbol(symbol)] = price
	b.mu.Unlock()
}

func (b *Book) Get(symbol string) (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	px, ok := b.prices[risk.NormalizeSymbol(symbol)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", broker.ErrNoPrice, symbol)
	}
	return px, nil
}

// Order is an executed or acknowledged paper order.
type Order struct {
	ID     string
	Order  broker.Order
	Result broker.Result
}

var ErrOrderNotFound = errors.New("order not found")

// Engine fills orders immediately against the book. Limit prices fill at
// the limit; market orders fill at the last book price.
type Engine struct {
	mu     sync.Mutex
	book   *Book
	now    func() time.Time
	orders map[string]*Order
	seq    []string
}

func NewEngine(book *Book, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		book:   book,
		now:    now,
		orders: make(map[string]*Order),
	}
}

func (e *Engine) Execute(ctx context.Context, o broker.Order) (broker.Result, error) {
	if err := ctx.Err(); err != nil {
		return broker.Result{}, err
	}
	if err := o.Validate(); err != nil {
		return broker.Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ts := e.now()
	res := broker.Result{
		OrderID:  id.NewAt(ts),
		Symbol:   o.Symbol,
		Side:     o.Side,
		Quantity: o.Quantity,
		Price:    o.Price,
		Time:     ts,
	}

	switch o.Kind {
	case risk.PlaceOrder:
		if res.Price <= 0 {
			px, err := e.book.Get(o.Symbol)
			if err != nil {
				return broker.Result{}, fmt.Errorf("place order: %w", err)
			}
			res.Price = px
		}
		res.Status = broker.Filled
	case risk.ModifyOrder, risk.CancelOrder:
		res.Status = broker.Accepted
	default:
		return broker.Result{}, fmt.Errorf("%w: %s", broker.ErrUnsupported, o.Kind)
	}

	e.orders[res.OrderID] = &Order{ID: res.OrderID, Order: o, Result: res}
	e.seq = append(e.seq, res.OrderID)
	return res, nil
}

// Order looks up an order by broker id.
func (e *Engine) Order(orderID string) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("lookup: %w: %q", ErrOrderNotFound, orderID)
	}
	return *o, nil
}

// Orders returns every order in submission order.
func (e *Engine) Orders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Order, 0, len(e.seq))
	for _, oid := range e.seq {
		out = append(out, *e.orders[oid])
	}
	return out
}

// Positions nets filled orders by symbol.
func (e *Engine) Positions() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	net := make(map[string]int)
	for _, oid := range e.seq {
		r := e.orders[oid].Result
		if r.Status != broker.Filled {
			continue
		}
		net[r.Symbol] += r.Quantity * int(r.Side.Sign())
	}
	for sym, q := range net {
		if q == 0 {
			delete(net, sym)
		}
	}
	return net
}

// Symbols lists symbols with a book price, sorted.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.prices))
	for s := range b.prices {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
