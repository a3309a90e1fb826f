package cmd

import (
	"fmt"

	"github.com/bhavesh0009/options-day-trader-agent/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files for trading days.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  odta config init --output odta.yaml
  odta config validate --file odta.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "odta.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	_ = configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  odta run --config %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	g := cfg.Guardrails
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Guardrails: max loss Rs %.2f, max %d positions, square-off %s %s\n",
		g.MaxDailyLoss, g.MaxOpenPositions, g.SquareOffTime, g.Timezone)
	fmt.Fprintf(out, "  Banned: %d symbols, options only: %t\n", len(g.BannedSymbols), g.OptionsOnly)
	fmt.Fprintf(out, "  Schedule: %d iterations max, %s..%s\n",
		cfg.Schedule.MaxIterations, cfg.Schedule.MinInterval, cfg.Schedule.MaxInterval)
	fmt.Fprintf(out, "  Journal: %s\n", cfg.Journal.Driver)
	fmt.Fprintf(out, "  Agent: %s\n", cfg.Agent.Name)
	return nil
}
