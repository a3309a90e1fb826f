package cmd

import (
	"fmt"
	"time"

	"github.com/bhavesh0009/options-day-trader-agent/config"
	"github.com/bhavesh0009/options-day-trader-agent/journal"
	"github.com/spf13/cobra"
)

var banCmd = &cobra.Command{
	Use:   "ban",
	Short: "Manage the F&O ban list",
	Long: `Record and list symbols in the exchange's F&O ban period. Entries are
stored per trade date in the journal database and merged with the
configured banned_symbols when a trading day starts.

Examples:
  odta ban add IDEA RBLBANK
  odta ban list --date 2025-02-12`,
}

var banAddCmd = &cobra.Command{
	Use:   "add <symbol>...",
	Short: "Ban symbols for a trade date",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBanAdd,
}

var banListCmd = &cobra.Command{
	Use:   "list",
	Short: "List banned symbols for a trade date",
	Args:  cobra.NoArgs,
	RunE:  runBanList,
}

var banDate string

func init() {
	rootCmd.AddCommand(banCmd)
	banCmd.AddCommand(banAddCmd)
	banCmd.AddCommand(banListCmd)

	banCmd.PersistentFlags().StringVar(&banDate, "date", "", "trade date YYYY-MM-DD (default today in the configured timezone)")
}

// openJournal opens the configured backend.
func openJournal(cfg *config.AppConfig) (journal.Backend, error) {
	target := cfg.Journal.Path
	if cfg.Journal.Driver == "postgres" {
		target = cfg.Journal.DSN
	}
	j, err := journal.Open(cfg.Journal.Driver, target)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

func tradeDate(cfg *config.AppConfig, day string) (time.Time, error) {
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	if day == "" {
		return time.Now().In(loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date: %w", err)
	}
	return t, nil
}

func runBanAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	day, err := tradeDate(cfg, banDate)
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	for _, sym := range args {
		if err := j.AddBan(sym, day); err != nil {
			return fmt.Errorf("ban %s: %w", sym, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Banned %d symbols for %s\n", len(args), journal.BanDate(day))
	return nil
}

func runBanList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	day, err := tradeDate(cfg, banDate)
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	syms, err := j.BannedOn(day)
	if err != nil {
		return fmt.Errorf("list bans: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "F&O ban list for %s (%d)\n", journal.BanDate(day), len(syms))
	for _, s := range syms {
		fmt.Fprintf(out, "  %s\n", s)
	}
	return nil
}
