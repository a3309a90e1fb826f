package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bhavesh0009/options-day-trader-agent/agent"
	"github.com/bhavesh0009/options-day-trader-agent/broker"
	"github.com/bhavesh0009/options-day-trader-agent/broker/paper"
	"github.com/bhavesh0009/options-day-trader-agent/controller"
	"github.com/bhavesh0009/options-day-trader-agent/gate"
	"github.com/bhavesh0009/options-day-trader-agent/id"
	"github.com/bhavesh0009/options-day-trader-agent/metrics"
	"github.com/bhavesh0009/options-day-trader-agent/risk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one paper trading day",
	Long: `Run the trading loop from pre-market to end of day against the paper
broker. The agent proposes actions each iteration; the execution gate
forwards only those that pass the guardrails.

--simulate runs on a simulated clock starting at the given local time, so a
whole day completes in seconds.

Examples:
  odta run --agent scripted --script day.yaml
  odta run --agent scripted --script day.yaml --simulate 2025-02-12T09:15
  odta run --agent open_once --symbol NIFTY24000CE --qty 75 --price 100 --stop 80`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runAgent       string
	runScript      string
	runSimulate    string
	runMaxIter     int
	runMetricsAddr string
	runOpts        agent.Options
	runSide        string
)

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runAgent, "agent", "", "agent name (default from config): "+fmt.Sprint(agent.Names()))
	f.StringVar(&runScript, "script", "", "YAML proposal script for the scripted agent")
	f.StringVar(&runSimulate, "simulate", "", "run on a simulated clock from this time (YYYY-MM-DDTHH:MM)")
	f.IntVar(&runMaxIter, "max-iterations", 0, "iteration cap override")
	f.StringVar(&runMetricsAddr, "metrics-addr", "", "serve /metrics on this address (default from config)")
	f.StringVar(&runOpts.Symbol, "symbol", "", "open_once: option symbol")
	f.StringVar(&runSide, "side", "BUY", "open_once: BUY or SELL")
	f.IntVar(&runOpts.Quantity, "qty", 0, "open_once: quantity")
	f.Float64Var(&runOpts.Price, "price", 0, "open_once: limit price (0 = market)")
	f.Float64Var(&runOpts.StopLoss, "stop", 0, "open_once: stop-loss price")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runAgent != "" {
		cfg.Agent.Name = runAgent
	}
	if runScript != "" {
		cfg.Agent.Script = runScript
	}
	if runMaxIter > 0 {
		cfg.Schedule.MaxIterations = runMaxIter
	}
	if runMetricsAddr != "" {
		cfg.MetricsAddr = runMetricsAddr
	}
	log := newLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	clock, err := newClock(runSimulate, loc)
	if err != nil {
		return err
	}

	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	now := clock.Now().In(loc)
	bans, err := j.BannedOn(now)
	if err != nil {
		return fmt.Errorf("load ban list: %w", err)
	}
	guard, err := cfg.Guardrails(bans)
	if err != nil {
		return err
	}
	policy, err := cfg.IntervalPolicy()
	if err != nil {
		return err
	}
	hours, err := cfg.MarketHours()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, log)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	if err := runOpts.Side.UnmarshalText([]byte(runSide)); err != nil {
		return err
	}
	opts := runOpts
	opts.Script = cfg.Agent.Script
	ag, err := agent.New(cfg.Agent.Name, opts)
	if err != nil {
		return err
	}

	sessionID := id.NewSession()
	log = log.With().Str("session", sessionID).Logger()

	store := risk.NewStore(now, policy.Default)
	book := paper.NewBook()
	exec := broker.NewThrottled(paper.NewEngine(book, clock.Now), cfg.Broker.OrdersPerSecond, cfg.Broker.Burst)

	g, err := gate.New(gate.Config{
		Store:      store,
		Guardrails: guard,
		Executor:   exec,
		Journal:    j,
		Metrics:    m,
		Log:        log,
		Now:        clock.Now,
		SessionID:  sessionID,
	})
	if err != nil {
		return err
	}

	ctrl, err := controller.New(controller.Config{
		Store:          store,
		Gate:           g,
		Guardrails:     guard,
		Agent:          ag,
		Clock:          clock,
		Policy:         policy,
		MaxIterations:  cfg.Schedule.MaxIterations,
		MarketHours:    hours,
		PricingWorkers: cfg.Pricing.Workers,
		RiskFreeRate:   &cfg.Pricing.RiskFreeRate,
		Marks:          book,
		Journal:        j,
		Metrics:        m,
		Log:            log,
		SessionID:      sessionID,
	})
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		if s, ok := <-sig; ok {
			log.Warn().Str("signal", s.String()).Msg("shutting down after current iteration")
			ctrl.Shutdown()
		}
	}()

	log.Info().
		Str("agent", cfg.Agent.Name).
		Float64("max_daily_loss", guard.MaxDailyLoss()).
		Int("max_open_positions", guard.MaxOpenPositions()).
		Str("square_off", guard.SquareOff().String()).
		Strs("banned", guard.BannedSymbols()).
		Msg("starting trading day")

	sum, err := ctrl.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nSession %s\n", sum.SessionID)
	fmt.Fprintf(out, "  Stop reason: %s after %d iterations\n", sum.StopReason, sum.Iterations)
	fmt.Fprintf(out, "  Realized P&L: Rs %.2f\n", sum.RealizedPnL)
	fmt.Fprintf(out, "  Daily P&L:    Rs %.2f\n", sum.DailyPnL)
	fmt.Fprintf(out, "  Fills: %d\n", sum.Fills)
	if sum.Text != "" {
		fmt.Fprintf(out, "\n%s\n", sum.Text)
	}
	return nil
}

func newClock(simulate string, loc *time.Location) (controller.Clock, error) {
	if simulate == "" {
		return controller.SystemClock{}, nil
	}
	start, err := time.ParseInLocation("2006-01-02T15:04", simulate, loc)
	if err != nil {
		return nil, fmt.Errorf("--simulate: %w", err)
	}
	return controller.NewSimClock(start), nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}
