package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/internal/store"
)

const (
	// claimColWidth bounds the claim column so one long claim cannot blow
	// out the table.
	claimColWidth = 40

	// statsScanLimit caps how many recent runs the stats command aggregates.
	statsScanLimit = 10000

	tableTimeFormat = "2006-01-02 15:04"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect check run history",
	Long:  "Commands for listing, viewing, and summarizing stored check runs.",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List check runs",
	RunE: withStore(func(cmd *cobra.Command, _ []string, st store.Store) error {
		fl := cmd.Flags()
		status, _ := fl.GetString("status")
		claim, _ := fl.GetString("claim")
		limit, _ := fl.GetInt("limit")
		offset, _ := fl.GetInt("offset")

		runs, err := st.ListRuns(cmd.Context(), store.RunFilter{
			Status: model.RunStatus(status),
			Claim:  claim,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if asJSON, _ := fl.GetBool("json"); asJSON {
			return writeJSON(os.Stdout, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		writeRunTable(os.Stdout, runs)
		return nil
	}),
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, args []string, st store.Store) error {
		run, err := st.GetRun(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return writeJSON(os.Stdout, run)
	}),
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: withStore(func(cmd *cobra.Command, _ []string, st store.Store) error {
		filter := store.RunFilter{Limit: statsScanLimit}
		if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
			filter.CreatedAfter = time.Now().UTC().Add(-since)
		}

		runs, err := st.ListRuns(cmd.Context(), filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		writeRunSummary(os.Stdout, summarizeRuns(runs))
		return nil
	}),
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, running, complete, failed)")
	runsListCmd.Flags().String("claim", "", "filter by claim substring")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")
	runsListCmd.Flags().Bool("json", false, "emit matching runs as JSON")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runSummary is the aggregate view behind runs stats: outcome tallies, the
// combined stance counts of completed reports, and the mean wall time of a
// completed check.
type runSummary struct {
	Total    int
	Complete int
	Failed   int
	InFlight int
	Stances  model.ReportCounts
	AvgDur   time.Duration
}

func summarizeRuns(runs []model.Run) runSummary {
	var (
		sum      runSummary
		totalDur time.Duration
	)
	sum.Total = len(runs)

	for i := range runs {
		r := &runs[i]
		switch r.Status {
		case model.RunStatusComplete:
			sum.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			if r.Report != nil {
				sum.Stances.Supports += r.Report.Counts.Supports
				sum.Stances.Refutes += r.Report.Counts.Refutes
				sum.Stances.Unrelated += r.Report.Counts.Unrelated
				sum.Stances.Inconclusive += r.Report.Counts.Inconclusive
			}
		case model.RunStatusFailed:
			sum.Failed++
		default:
			sum.InFlight++
		}
	}

	if sum.Complete > 0 {
		sum.AvgDur = totalDur / time.Duration(sum.Complete)
	}
	return sum
}

// writeRunTable prints one row per run, newest first as returned by the
// store.
func writeRunTable(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tDURATION\tSOURCES\tCLAIM")

	for i := range runs {
		r := &runs[i]
		sources := "-"
		if r.Report != nil {
			sources = strconv.Itoa(len(r.Report.Results))
		}
		cells := []any{
			idPrefix(r.ID),
			r.CreatedAt.Format(tableTimeFormat),
			r.Status,
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second),
			sources,
			clip(r.Request.Claim, claimColWidth),
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", cells...)
	}
	_ = w.Flush()
}

func writeRunSummary(out io.Writer, s runSummary) {
	rows := [][2]string{
		{"Total runs", strconv.Itoa(s.Total)},
		{"  complete", strconv.Itoa(s.Complete)},
		{"  failed", strconv.Itoa(s.Failed)},
		{"  in flight", strconv.Itoa(s.InFlight)},
		{"Stances", fmt.Sprintf("%d supports / %d refutes / %d unrelated / %d inconclusive",
			s.Stances.Supports, s.Stances.Refutes, s.Stances.Unrelated, s.Stances.Inconclusive)},
	}
	if s.AvgDur > 0 {
		rows = append(rows, [2]string{"Avg duration", fmt.Sprintf("%.1fs", s.AvgDur.Seconds())})
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s:\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}
