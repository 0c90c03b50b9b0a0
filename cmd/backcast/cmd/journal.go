package cmd

import (
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backcast/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite run journal",
	Long: `Query runs and trades recorded with --journal sqlite.

Subcommands:
  runs   - List recorded runs
  show   - Print one run as an org-mode section
  trades - List the closed trades of a run

Examples:
  backcast journal runs --db runs.db
  backcast journal show <run-id>
  backcast journal trades <run-id>`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a run as org-mode",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <run-id>",
	Short: "List the closed trades of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalTradesCmd)

	journalCmd.PersistentFlags().StringVar(&journalDBPath, "db", "./backcast.sqlite", "path to SQLite journal DB")
}

func openJournalDB() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns()
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Run ID\tCreated\tStrategy\tSymbols\tReturn %\tMax DD %\tTrades")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.RunID, r.Created.Format("2006-01-02 15:04"), r.Strategy,
			strings.Join(r.Symbols, ","), num2(r.ReturnPct), num2(r.MaxDDPct), r.Trades)
	}
	return tw.Flush()
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetRun(args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	return journal.WriteOrg(cmd.OutOrStdout(), rec)
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTrades(args[0])
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Trade\tSymbol\tSide\tUnits\tEntry\tExit\tOpened\tClosed\tP/L\tReason")
	for _, t := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%.4f\t%.4f\t%s\t%s\t%.2f\t%s\n",
			t.TradeID, t.Symbol, t.Side, t.Units, t.EntryPrice, t.ExitPrice,
			t.OpenTime.Format("2006-01-02"), t.CloseTime.Format("2006-01-02"),
			t.RealizedPL, t.Reason)
	}
	return tw.Flush()
}

func num2(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", x)
}
