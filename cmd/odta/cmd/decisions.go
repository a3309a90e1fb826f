package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/bhavesh0009/options-day-trader-agent/config"
	"github.com/bhavesh0009/options-day-trader-agent/journal"
	"github.com/spf13/cobra"
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Show the execution gate's decision log",
	Long: `List every action the gate evaluated for a session, allowed or not,
with the rejection code and reason. Defaults to the latest session.

Examples:
  odta decisions
  odta decisions --session 6f1c... --limit 20
  odta decisions --csv decisions.csv`,
	Args: cobra.NoArgs,
	RunE: runDecisions,
}

var sessionCmd = &cobra.Command{
	Use:   "session [session-id]",
	Short: "Show a trading session summary",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSession,
}

var (
	decisionsSession string
	decisionsLimit   int
	decisionsCSV     string
)

var errNoStore = errors.New("journal driver none keeps no history")

func init() {
	rootCmd.AddCommand(decisionsCmd)
	rootCmd.AddCommand(sessionCmd)

	decisionsCmd.Flags().StringVarP(&decisionsSession, "session", "s", "", "session id (default latest)")
	decisionsCmd.Flags().IntVarP(&decisionsLimit, "limit", "n", 0, "maximum rows (0 = all)")
	decisionsCmd.Flags().StringVar(&decisionsCSV, "csv", "", "write CSV to this file ('-' for stdout)")
}

func openStore(cfg *config.AppConfig) (*journal.Store, error) {
	j, err := openJournal(cfg)
	if err != nil {
		return nil, err
	}
	s, ok := j.(*journal.Store)
	if !ok {
		_ = j.Close()
		return nil, errNoStore
	}
	return s, nil
}

func resolveSession(s *journal.Store, id string) (journal.SessionRecord, error) {
	if id != "" {
		return s.GetSession(id)
	}
	return s.LatestSession()
}

func runDecisions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	sess, err := resolveSession(s, decisionsSession)
	if err != nil {
		return err
	}
	id := sess.SessionID

	recs, err := s.ListDecisions(id, decisionsLimit)
	if err != nil {
		return err
	}

	switch decisionsCSV {
	case "":
		return printDecisions(cmd.OutOrStdout(), id, recs)
	case "-":
		return journal.WriteDecisionsCSV(cmd.OutOrStdout(), recs)
	default:
		f, err := os.Create(decisionsCSV)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}
		defer f.Close()
		if err := journal.WriteDecisionsCSV(f, recs); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d decisions to %s\n", len(recs), decisionsCSV)
		return nil
	}
}

func printDecisions(w io.Writer, sessionID string, recs []journal.DecisionRecord) error {
	fmt.Fprintf(w, "Session %s: %d decisions\n\n", sessionID, len(recs))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tITER\tKIND\tSIDE\tQTY\tSYMBOL\tPRICE\tSTATUS\tCODE\tDAILY P&L")
	for _, d := range recs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\t%.2f\t%s\t%s\t%.2f\n",
			d.Time.Format("15:04:05"), d.Iteration, d.Kind, d.Side, d.Quantity, d.Symbol,
			d.Price, d.Status, d.Code, d.DailyPnL)
	}
	return tw.Flush()
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var id string
	if len(args) == 1 {
		id = args[0]
	}
	sess, err := resolveSession(s, id)
	if err != nil {
		return err
	}
	trades, err := s.ListTrades(sess.SessionID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s (%s)\n", sess.SessionID, sess.TradeDate)
	fmt.Fprintf(out, "  %s -> %s\n", sess.Started.Format("15:04:05"), sess.Ended.Format("15:04:05"))
	fmt.Fprintf(out, "  Stop reason: %s after %d iterations\n", sess.StopReason, sess.Iterations)
	fmt.Fprintf(out, "  Realized P&L: Rs %.2f  Daily P&L: Rs %.2f  Fills: %d\n", sess.RealizedPnL, sess.DailyPnL, sess.Fills)
	for _, t := range trades {
		fmt.Fprintf(out, "  %s %s %d %s @ %.2f realized %.2f\n",
			t.Time.Format("15:04:05"), t.Side, t.Quantity, t.Symbol, t.Price, t.Realized)
	}
	if sess.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", sess.Summary)
	}
	return nil
}
