package cmd

import (
	"fmt"
	"os"

	"github.com/bhavesh0009/options-day-trader-agent/config"
	"github.com/bhavesh0009/options-day-trader-agent/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "odta",
	Short: "Risk-gated options day-trading agent",
	Long: `odta runs an options day-trading agent inside hard risk limits.

Every order the agent proposes passes the execution gate: daily loss limit,
open position cap, square-off time and the F&O ban list. The trading loop
runs from pre-market to end of day with an adaptive wait between iterations.

It provides tools for:
  - Running a paper trading day
  - Pricing options and solving implied volatility
  - Managing the F&O ban list
  - Reviewing the gate's decision log`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	envFile  string
	logLevel string
	pretty   bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults apply when empty")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with ODTA_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-readable console logs")
}

// loadConfig reads the env file, the config file and the ODTA_* overrides.
func loadConfig() (*config.AppConfig, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.AppConfig) zerolog.Logger {
	return logging.New(cfg.LogLevel, os.Stderr, pretty)
}
