package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bhavesh0009/options-day-trader-agent/agent"
	"github.com/bhavesh0009/options-day-trader-agent/gate"
	"github.com/bhavesh0009/options-day-trader-agent/journal"
	"github.com/bhavesh0009/options-day-trader-agent/metrics"
	"github.com/bhavesh0009/options-day-trader-agent/pricing"
	"github.com/bhavesh0009/options-day-trader-agent/risk"
	"github.com/rs/zerolog"
)

const DefaultMaxIterations = 300

// MarketHours gates the pre-market phase on the exchange session.
type MarketHours struct {
	Enabled bool
	Open    risk.TimeOfDay
	Close   risk.TimeOfDay
}

// MarkSink receives the agent's last traded prices, e.g. a paper book.
type MarkSink interface {
	Set(symbol string, price float64)
}

type Config struct {
	Store      *risk.Store
	Gate       *gate.Gate
	Guardrails *risk.GuardrailConfig
	Agent      agent.Agent
	Clock      Clock

	Policy         risk.IntervalPolicy
	MaxIterations  int
	MarketHours    MarketHours
	PricingWorkers int
	// RiskFreeRate prices quotes without their own rate. Nil means
	// pricing.DefaultRate.
	RiskFreeRate   *float64

	Marks     MarkSink
	Journal   journal.Journal
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
	SessionID string
}

// Summary describes a finished trading day.
type Summary struct {
	SessionID   string
	StopReason  risk.StopReason
	Iterations  int
	DailyPnL    float64
	RealizedPnL float64
	Fills       int
	Text        string
	Started     time.Time
	Ended       time.Time
}

var ErrMissingCollaborator = errors.New("controller: missing collaborator")

// Controller drives one trading day through its phases.
type Controller struct {
	cfg  Config
	rate float64

	shutdown atomic.Bool
	wakeOnce sync.Once
	wake     chan struct{}
}

func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingCollaborator)
	case cfg.Gate == nil:
		return nil, fmt.Errorf("%w: gate", ErrMissingCollaborator)
	case cfg.Guardrails == nil:
		return nil, fmt.Errorf("%w: guardrails", ErrMissingCollaborator)
	case cfg.Agent == nil:
		return nil, fmt.Errorf("%w: agent", ErrMissingCollaborator)
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Policy == (risk.IntervalPolicy{}) {
		cfg.Policy = risk.DefaultIntervalPolicy()
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Nop{}
	}
	rate := pricing.DefaultRate
	if cfg.RiskFreeRate != nil {
		rate = *cfg.RiskFreeRate
	}
	return &Controller{cfg: cfg, rate: rate, wake: make(chan struct{})}, nil
}

// Shutdown asks the loop to stop before its next iteration. A pending
// wait is cut short; an iteration in progress runs to completion.
func (c *Controller) Shutdown() {
	c.shutdown.Store(true)
	c.wakeOnce.Do(func() { close(c.wake) })
}

func (c *Controller) stopping(ctx context.Context) bool {
	return c.shutdown.Load() || ctx.Err() != nil
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.wake:
			cancel()
		case <-sctx.Done():
		}
	}()
	return c.cfg.Clock.Sleep(sctx, d)
}

func (c *Controller) phase(p risk.Phase) {
	c.cfg.Metrics.Phase(p.String())
	c.cfg.Log.Info().Str("phase", p.String()).Msg("phase")
}

func (c *Controller) stop(reason risk.StopReason) error {
	if err := c.cfg.Store.Stop(reason); err != nil {
		return err
	}
	snap := c.cfg.Store.Snapshot()
	c.phase(risk.Stopping)
	c.cfg.Log.Info().
		Str("stop_reason", string(snap.StopReason)).
		Int("iteration", snap.Iteration).
		Float64("daily_pnl", snap.DailyPnL).
		Int("open_positions", snap.OpenPositions).
		Msg("trading stopped")
	return nil
}

// Run walks PreMarket -> Trading -> Stopping -> EndOfDay -> Done. A
// cancelled ctx or Shutdown ends trading with reason Shutdown; end of day
// still runs.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	started := c.cfg.Clock.Now()
	c.phase(risk.PreMarket)

	if err := c.preMarket(ctx); err != nil {
		return Summary{}, err
	}
	if c.cfg.Store.Phase() == risk.Trading {
		if err := c.trade(ctx); err != nil {
			return Summary{}, err
		}
	}
	return c.endOfDay(context.WithoutCancel(ctx), started)
}

func (c *Controller) preMarket(ctx context.Context) error {
	if reason := c.waitForOpen(ctx); reason != risk.NoStop {
		return c.stop(reason)
	}

	if p, ok := c.cfg.Agent.(agent.Preparer); ok {
		if err := p.Prepare(ctx, c.cfg.Store.Snapshot()); err != nil {
			c.cfg.Log.Warn().Err(err).Msg("pre-market preparation")
		}
	}
	if c.stopping(ctx) {
		return c.stop(risk.Shutdown)
	}
	if err := c.cfg.Store.Advance(risk.Trading); err != nil {
		return err
	}
	c.phase(risk.Trading)
	return nil
}

// waitForOpen applies the market-hours gate. It returns a stop reason when
// the day should not trade at all.
func (c *Controller) waitForOpen(ctx context.Context) risk.StopReason {
	mh := c.cfg.MarketHours
	if !mh.Enabled {
		return risk.NoStop
	}
	loc := c.cfg.Guardrails.Location()
	now := c.cfg.Clock.Now().In(loc)

	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		c.cfg.Log.Info().Str("weekday", wd.String()).Msg("market closed")
		return risk.MarketClosed
	}
	if !now.Before(mh.Close.On(now, loc)) {
		c.cfg.Log.Info().Str("close", mh.Close.String()).Msg("market already closed")
		return risk.MarketClosed
	}
	if open := mh.Open.On(now, loc); now.Before(open) {
		wait := open.Sub(now)
		c.cfg.Log.Info().Dur("wait", wait).Str("open", mh.Open.String()).Msg("waiting for market open")
		if err := c.sleep(ctx, wait); err != nil || c.stopping(ctx) {
			return risk.Shutdown
		}
	}
	return risk.NoStop
}

func (c *Controller) trade(ctx context.Context) error {
	store := c.cfg.Store
	for {
		if c.stopping(ctx) {
			return c.stop(risk.Shutdown)
		}

		i := store.NextIteration()
		c.cfg.Metrics.Iteration()
		log := c.cfg.Log.With().Int("iteration", i).Logger()

		prop, err := c.cfg.Agent.Decide(ctx, store.Snapshot())
		if err != nil {
			log.Warn().Err(err).Msg("agent decide")
			prop = agent.Proposal{}
		}

		c.applyMarket(ctx, prop, log)

		outcomes := make([]gate.Outcome, 0, len(prop.Actions))
		for _, a := range prop.Actions {
			outcomes = append(outcomes, c.cfg.Gate.Submit(ctx, a))
		}
		if obs, ok := c.cfg.Agent.(agent.Observer); ok && len(outcomes) > 0 {
			obs.Observe(ctx, outcomes)
		}

		snap := store.Snapshot()
		now := c.cfg.Clock.Now()
		c.cfg.Metrics.Risk(snap.DailyPnL, snap.OpenPositions)

		if reason := c.stopCondition(snap, now); reason != risk.NoStop {
			return c.stop(reason)
		}
		if i >= c.cfg.MaxIterations {
			return c.stop(risk.IterationCapReached)
		}

		wait := c.nextInterval(snap, now, prop.IntervalHint)
		if err := store.SetInterval(wait); err != nil {
			return err
		}
		c.cfg.Metrics.Interval(wait)
		log.Debug().
			Int("actions", len(prop.Actions)).
			Float64("daily_pnl", snap.DailyPnL).
			Int("open_positions", snap.OpenPositions).
			Dur("interval", wait).
			Msg("iteration")

		if err := c.sleep(ctx, wait); err != nil {
			return c.stop(risk.Shutdown)
		}
	}
}

// stopCondition checks square-off first, then the loss limit.
func (c *Controller) stopCondition(s risk.Snapshot, now time.Time) risk.StopReason {
	g := c.cfg.Guardrails
	if g.PastSquareOff(now) {
		return risk.SquareOffTime
	}
	if g.LossLimitBreached(s.DailyPnL) {
		return risk.MaxLossBreached
	}
	return risk.NoStop
}

// nextInterval takes the shorter of the policy's choice and the agent's
// clamped hint.
func (c *Controller) nextInterval(s risk.Snapshot, now time.Time, hint time.Duration) time.Duration {
	p := c.cfg.Policy
	wait := risk.NextInterval(s, c.cfg.Guardrails, p, now)
	if hint > 0 {
		if h := p.Clamp(hint); h < wait {
			wait = h
		}
	}
	return wait
}

// applyMarket records marks and prices quotes into the store.
func (c *Controller) applyMarket(ctx context.Context, prop agent.Proposal, log zerolog.Logger) {
	if len(prop.Marks) > 0 {
		c.cfg.Store.Mark(prop.Marks)
		if c.cfg.Marks != nil {
			for sym, px := range prop.Marks {
				c.cfg.Marks.Set(sym, px)
			}
		}
	}
	if len(prop.Quotes) == 0 {
		return
	}

	valid := make([]pricing.Input, 0, len(prop.Quotes))
	for _, pq := range prop.Quotes {
		q := pq.Input(c.rate)
		if err := q.Validate(); err != nil {
			log.Warn().Err(err).Str("symbol", q.Symbol).Msg("skip quote")
			continue
		}
		valid = append(valid, q)
	}

	greeks, err := pricing.SolveAll(ctx, valid, c.cfg.PricingWorkers)
	if err != nil {
		log.Warn().Err(err).Msg("price quotes")
		return
	}
	for i, g := range greeks {
		c.cfg.Store.SetGreeks(valid[i].Symbol, g)
		c.cfg.Metrics.SolverSteps(g.Iterations)
		if !g.Converged {
			log.Debug().
				Str("symbol", valid[i].Symbol).
				Bool("out_of_bounds", g.OutOfBounds).
				Float64("iv", g.IV).
				Msg("iv did not converge")
		}
	}
}

func (c *Controller) endOfDay(ctx context.Context, started time.Time) (Summary, error) {
	store := c.cfg.Store
	if err := store.Advance(risk.EndOfDay); err != nil {
		return Summary{}, err
	}
	c.phase(risk.EndOfDay)

	snap := store.Snapshot()
	var text string
	if s, ok := c.cfg.Agent.(agent.Summarizer); ok {
		var err error
		if text, err = s.Summarize(ctx, snap); err != nil {
			c.cfg.Log.Warn().Err(err).Msg("end-of-day summary")
		}
	}

	sum := Summary{
		SessionID:   c.cfg.SessionID,
		StopReason:  snap.StopReason,
		Iterations:  snap.Iteration,
		DailyPnL:    snap.DailyPnL,
		RealizedPnL: snap.RealizedPnL,
		Fills:       snap.Fills,
		Text:        text,
		Started:     started,
		Ended:       c.cfg.Clock.Now(),
	}
	err := c.cfg.Journal.RecordSession(journal.SessionRecord{
		SessionID:   sum.SessionID,
		TradeDate:   journal.BanDate(snap.TradeDate),
		Started:     sum.Started,
		Ended:       sum.Ended,
		StopReason:  string(sum.StopReason),
		Iterations:  sum.Iterations,
		RealizedPnL: sum.RealizedPnL,
		DailyPnL:    sum.DailyPnL,
		Fills:       sum.Fills,
		Summary:     sum.Text,
	})
	if err != nil {
		c.cfg.Log.Error().Err(err).Msg("journal session")
	}

	if err := store.Advance(risk.Done); err != nil {
		return sum, err
	}
	c.phase(risk.Done)
	return sum, nil
}
