package cmd

import (
	"fmt"

	"github.com/bhavesh0009/options-day-trader-agent/pricing"
	"github.com/spf13/cobra"
)

var greeksCmd = &cobra.Command{
	Use:   "greeks",
	Short: "Solve implied volatility and Greeks for one option",
	Long: `Price a European option with Black-Scholes and back out the implied
volatility of its market premium by Newton-Raphson.

Example:
  odta greeks --spot 24000 --strike 24100 --days 7 --premium 85 --type CE`,
	Args: cobra.NoArgs,
	RunE: runGreeks,
}

var greeksIn pricing.Input
var greeksType string

func init() {
	rootCmd.AddCommand(greeksCmd)

	f := greeksCmd.Flags()
	f.Float64Var(&greeksIn.Spot, "spot", 0, "underlying spot price (required)")
	f.Float64Var(&greeksIn.Strike, "strike", 0, "strike price (required)")
	f.Float64Var(&greeksIn.DaysToExpiry, "days", 0, "calendar days to expiry (required)")
	f.Float64Var(&greeksIn.Premium, "premium", 0, "market premium (required)")
	f.Float64Var(&greeksIn.Rate, "rate", pricing.DefaultRate, "annual risk-free rate")
	f.StringVar(&greeksType, "type", "CE", "option type: CE or PE")
	for _, name := range []string{"spot", "strike", "days", "premium"} {
		_ = greeksCmd.MarkFlagRequired(name)
	}
}

func runGreeks(cmd *cobra.Command, args []string) error {
	class, err := pricing.ParseClass(greeksType)
	if err != nil {
		return err
	}
	in := greeksIn
	in.Class = class

	g, err := pricing.Solve(in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s spot=%.2f strike=%.2f days=%.1f premium=%.2f rate=%.4f\n",
		in.Class, in.Spot, in.Strike, in.DaysToExpiry, in.Premium, in.Rate)
	fmt.Fprintf(out, "  IV:    %.4f (%.2f%%)\n", g.IV, g.IV*100)
	fmt.Fprintf(out, "  Delta: %.4f\n", g.Delta)
	fmt.Fprintf(out, "  Gamma: %.6f\n", g.Gamma)
	fmt.Fprintf(out, "  Theta: %.4f per day\n", g.Theta)
	fmt.Fprintf(out, "  Vega:  %.4f per vol point\n", g.Vega)
	fmt.Fprintf(out, "  Model: %.4f\n", g.Model)
	switch {
	case g.OutOfBounds:
		fmt.Fprintln(out, "  premium outside no-arbitrage bounds; IV pinned to floor")
	case !g.Converged:
		fmt.Fprintf(out, "  did not converge after %d iterations\n", g.Iterations)
	default:
		fmt.Fprintf(out, "  converged in %d iterations\n", g.Iterations)
	}
	return nil
}
