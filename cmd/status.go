package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/monitoring"
	"github.com/claimsift/claimsift/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline health metrics",
	Long: "Summarizes run outcomes, stance tallies, oracle health, and queue " +
		"depth over a recent window, and evaluates the configured alert thresholds.",
	RunE: withStore(func(cmd *cobra.Command, _ []string, st store.Store) error {
		ctx := cmd.Context()

		since, _ := cmd.Flags().GetDuration("since")
		hours := statusWindowHours(since, cfg.Monitoring.LookbackWindowHours)

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			if err := writeJSON(os.Stdout, snap); err != nil {
				return eris.Wrap(err, "status: encode snapshot")
			}
		} else {
			formatStatus(os.Stdout, snap)
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		if len(alerts) == 0 {
			return nil
		}

		if !asJSON {
			fmt.Fprintln(os.Stdout)
			formatAlerts(os.Stdout, alerts)
		}

		if notify, _ := cmd.Flags().GetBool("notify"); notify {
			sent := alerter.SendAlerts(ctx, alerts)
			zap.L().Info("alerts delivered",
				zap.Int("triggered", len(alerts)),
				zap.Int("sent", sent),
			)
		}
		return nil
	}),
}

func init() {
	statusCmd.Flags().Duration("since", 0, "metrics window (e.g. 6h, 24h); defaults to monitoring.lookback_window_hours")
	statusCmd.Flags().Bool("json", false, "emit the snapshot as JSON")
	statusCmd.Flags().Bool("notify", false, "send triggered alerts to the configured webhook")
	rootCmd.AddCommand(statusCmd)
}

// statusWindowHours resolves the metrics window, floored at one hour.
func statusWindowHours(since time.Duration, fallback int) int {
	if since <= 0 {
		if fallback <= 0 {
			return 24
		}
		return fallback
	}
	hours := int(since.Hours())
	if hours < 1 {
		return 1
	}
	return hours
}

// formatStatus writes the snapshot as an aligned summary to w.
func formatStatus(out io.Writer, snap *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d (%d complete, %d failed, %d queued, %d running)\n",
		snap.RunsTotal, snap.RunsComplete, snap.RunsFailed, snap.RunsQueued, snap.RunsRunning)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.RunFailRate*100)
	_, _ = fmt.Fprintf(w, "Sources fetched:\t%d\n", snap.SourcesFetched)
	_, _ = fmt.Fprintf(w, "Sources failed:\t%d\n", snap.SourcesFailed)
	_, _ = fmt.Fprintf(w, "Supports:\t%d\n", snap.Supports)
	_, _ = fmt.Fprintf(w, "Refutes:\t%d\n", snap.Refutes)
	_, _ = fmt.Fprintf(w, "Unrelated:\t%d\n", snap.Unrelated)
	_, _ = fmt.Fprintf(w, "Inconclusive:\t%d\n", snap.Inconclusive)
	_, _ = fmt.Fprintf(w, "Oracle errors:\t%d of %d attempts\n", snap.OracleErrors, snap.OracleAttempts)
	_, _ = fmt.Fprintf(w, "DLQ depth:\t%d\n", snap.DLQDepth)
	_, _ = fmt.Fprintf(w, "Blocked domains:\t%d\n", snap.BlockedDomains)
	_ = w.Flush()
}

// formatAlerts writes triggered alerts as a table to w.
func formatAlerts(out io.Writer, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEVERITY\tTYPE\tMESSAGE")
	_, _ = fmt.Fprintln(w, "--------\t----\t-------")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", a.Severity, a.Type, a.Message)
	}
	_ = w.Flush()
}
