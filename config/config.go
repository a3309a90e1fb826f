package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/bhavesh0009/options-day-trader-agent/controller"
	"github.com/bhavesh0009/options-day-trader-agent/risk"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig is the complete configuration for one trading day.
type AppConfig struct {
	Mode        string `json:"mode" yaml:"mode" validate:"oneof=paper"`
	LogLevel    string `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`

	Guardrails GuardrailsConfig `json:"guardrails" yaml:"guardrails"`
	Schedule   ScheduleConfig   `json:"schedule" yaml:"schedule"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Broker     BrokerConfig     `json:"broker" yaml:"broker"`
	Pricing    PricingConfig    `json:"pricing" yaml:"pricing"`
	Agent      AgentConfig      `json:"agent" yaml:"agent"`
}

// GuardrailsConfig holds the hard risk limits.
type GuardrailsConfig struct {
	MaxDailyLoss     float64  `json:"max_daily_loss" yaml:"max_daily_loss" validate:"gt=0"`
	MaxOpenPositions int      `json:"max_open_positions" yaml:"max_open_positions" validate:"gt=0"`
	SquareOffTime    string   `json:"square_off_time" yaml:"square_off_time" validate:"required,hhmm"`
	Timezone         string   `json:"timezone" yaml:"timezone" validate:"required,timezone"`
	BannedSymbols    []string `json:"banned_symbols,omitempty" yaml:"banned_symbols,omitempty" validate:"dive,required"`
	OptionsOnly      bool     `json:"options_only" yaml:"options_only"`
}

// ScheduleConfig drives the loop cadence. Durations use Go syntax, e.g. "90s".
type ScheduleConfig struct {
	MaxIterations    int     `json:"max_iterations" yaml:"max_iterations" validate:"gt=0"`
	IdleInterval     string  `json:"idle_interval" yaml:"idle_interval" validate:"required,duration"`
	ProfitInterval   string  `json:"profit_interval" yaml:"profit_interval" validate:"required,duration"`
	DefaultInterval  string  `json:"default_interval" yaml:"default_interval" validate:"required,duration"`
	UrgentInterval   string  `json:"urgent_interval" yaml:"urgent_interval" validate:"required,duration"`
	MinInterval      string  `json:"min_interval" yaml:"min_interval" validate:"required,duration"`
	MaxInterval      string  `json:"max_interval" yaml:"max_interval" validate:"required,duration"`
	SquareOffWindow  string  `json:"square_off_window" yaml:"square_off_window" validate:"required,duration"`
	LossMarginPct    float64 `json:"loss_margin_pct" yaml:"loss_margin_pct" validate:"gte=0,lt=1"`
	StopProximityPct float64 `json:"stop_proximity_pct" yaml:"stop_proximity_pct" validate:"gte=0,lt=1"`

	MarketHours MarketHoursConfig `json:"market_hours" yaml:"market_hours"`
}

type MarketHoursConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Open    string `json:"open" yaml:"open" validate:"required,hhmm"`
	Close   string `json:"close" yaml:"close" validate:"required,hhmm"`
}

// JournalConfig selects the decision log backend.
type JournalConfig struct {
	Driver string `json:"driver" yaml:"driver" validate:"oneof=sqlite postgres none"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

type BrokerConfig struct {
	OrdersPerSecond float64 `json:"orders_per_second" yaml:"orders_per_second" validate:"gt=0"`
	Burst           int     `json:"burst" yaml:"burst" validate:"gt=0"`
}

type PricingConfig struct {
	RiskFreeRate float64 `json:"risk_free_rate" yaml:"risk_free_rate" validate:"gte=0,lt=1"`
	Workers      int     `json:"workers" yaml:"workers" validate:"gte=1,lte=64"`
}

// AgentConfig picks a registered agent by name.
type AgentConfig struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Script string `json:"script,omitempty" yaml:"script,omitempty"`
}

var ErrInvalidConfig = errors.New("invalid config")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := risk.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	return v
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path, or the defaults when path is empty, then applies
// environment overrides and validates the result.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and JSON otherwise.
func (c *AppConfig) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks struct tags first, then the rules that span fields.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			_, field, _ := strings.Cut(fe.Namespace(), ".")
			if fe.Param() != "" {
				return fmt.Errorf("%w: %s must satisfy %s=%s", ErrInvalidConfig, field, fe.Tag(), fe.Param())
			}
			return fmt.Errorf("%w: %s must satisfy %s", ErrInvalidConfig, field, fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	pol, err := c.IntervalPolicy()
	if err != nil {
		return err
	}
	if pol.Min > pol.Max {
		return fmt.Errorf("%w: schedule.min_interval %s exceeds max_interval %s", ErrInvalidConfig, pol.Min, pol.Max)
	}

	mh, err := c.MarketHours()
	if err != nil {
		return err
	}
	if mh.Open.Seconds() >= mh.Close.Seconds() {
		return fmt.Errorf("%w: schedule.market_hours open %s must be before close %s", ErrInvalidConfig, mh.Open, mh.Close)
	}

	switch c.Journal.Driver {
	case "sqlite":
		if c.Journal.Path == "" {
			return fmt.Errorf("%w: journal.path required for sqlite driver", ErrInvalidConfig)
		}
	case "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("%w: journal.dsn required for postgres driver", ErrInvalidConfig)
		}
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *AppConfig {
	return &AppConfig{
		Mode:        "paper",
		LogLevel:    "info",
		MetricsAddr: ":9108",
		Guardrails: GuardrailsConfig{
			MaxDailyLoss:     5000,
			MaxOpenPositions: 2,
			SquareOffTime:    "15:00",
			Timezone:         "Asia/Kolkata",
		},
		Schedule: ScheduleConfig{
			MaxIterations:    controller.DefaultMaxIterations,
			IdleInterval:     "5m",
			ProfitInterval:   "3m",
			DefaultInterval:  "2m",
			UrgentInterval:   "1m",
			MinInterval:      "30s",
			MaxInterval:      "10m",
			SquareOffWindow:  "30m",
			LossMarginPct:    0.2,
			StopProximityPct: 0.01,
			MarketHours: MarketHoursConfig{
				Open:  "09:15",
				Close: "15:30",
			},
		},
		Journal: JournalConfig{
			Driver: "sqlite",
			Path:   "./odta.db",
		},
		Broker: BrokerConfig{
			OrdersPerSecond: 5,
			Burst:           1,
		},
		Pricing: PricingConfig{
			RiskFreeRate: 0.07,
			Workers:      4,
		},
		Agent: AgentConfig{
			Name: "noop",
		},
	}
}

// LoadEnv loads .env style files into the process environment. Variables
// already set win. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from ODTA_* environment variables.
func (c *AppConfig) ApplyEnv() {
	if v := os.Getenv("ODTA_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("ODTA_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("ODTA_DB_PATH"); v != "" {
		c.Journal.Driver = "sqlite"
		c.Journal.Path = v
	}
	// A DSN wins over a path.
	if v := os.Getenv("ODTA_PG_DSN"); v != "" {
		c.Journal.Driver = "postgres"
		c.Journal.DSN = v
	}
}

func (c *AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Guardrails.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: guardrails.timezone: %v", ErrInvalidConfig, err)
	}
	return loc, nil
}

// Guardrails freezes the configured limits. bans are added to the
// configured ban list, typically today's entries from the journal.
func (c *AppConfig) Guardrails(bans []string) (*risk.GuardrailConfig, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	sq, err := risk.ParseTimeOfDay(c.Guardrails.SquareOffTime)
	if err != nil {
		return nil, fmt.Errorf("%w: guardrails.square_off_time: %v", ErrInvalidConfig, err)
	}
	all := append(append([]string(nil), c.Guardrails.BannedSymbols...), bans...)
	return risk.NewGuardrailConfig(risk.GuardrailParams{
		MaxDailyLoss:     c.Guardrails.MaxDailyLoss,
		MaxOpenPositions: c.Guardrails.MaxOpenPositions,
		SquareOff:        sq,
		Location:         loc,
		BannedSymbols:    all,
		OptionsOnly:      c.Guardrails.OptionsOnly,
	})
}

// IntervalPolicy converts the schedule section.
func (c *AppConfig) IntervalPolicy() (risk.IntervalPolicy, error) {
	s := c.Schedule
	p := risk.IntervalPolicy{
		LossMargin:    s.LossMarginPct,
		StopProximity: s.StopProximityPct,
	}
	fields := []struct {
		name string
		val  string
		dst  *time.Duration
	}{
		{"idle_interval", s.IdleInterval, &p.Idle},
		{"profit_interval", s.ProfitInterval, &p.Profit},
		{"default_interval", s.DefaultInterval, &p.Default},
		{"urgent_interval", s.UrgentInterval, &p.Urgent},
		{"min_interval", s.MinInterval, &p.Min},
		{"max_interval", s.MaxInterval, &p.Max},
		{"square_off_window", s.SquareOffWindow, &p.SquareOffWindow},
	}
	for _, f := range fields {
		d, err := time.ParseDuration(f.val)
		if err != nil {
			return risk.IntervalPolicy{}, fmt.Errorf("%w: schedule.%s: %v", ErrInvalidConfig, f.name, err)
		}
		*f.dst = d
	}
	return p, nil
}

func (c *AppConfig) MarketHours() (controller.MarketHours, error) {
	mh := c.Schedule.MarketHours
	open, err := risk.ParseTimeOfDay(mh.Open)
	if err != nil {
		return controller.MarketHours{}, fmt.Errorf("%w: schedule.market_hours.open: %v", ErrInvalidConfig, err)
	}
	closing, err := risk.ParseTimeOfDay(mh.Close)
	if err != nil {
		return controller.MarketHours{}, fmt.Errorf("%w: schedule.market_hours.close: %v", ErrInvalidConfig, err)
	}
	return controller.MarketHours{Enabled: mh.Enabled, Open: open, Close: closing}, nil
}
