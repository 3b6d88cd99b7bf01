package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/claimsift/claimsift/internal/blocklist"
	"github.com/claimsift/claimsift/internal/dataset"
	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/internal/store"
)

var blocklistCmd = &cobra.Command{
	Use:   "blocklist",
	Short: "Manage the discovery domain blocklist",
	Long:  "Commands for syncing the shared domain blocklist into the store and inspecting it.",
}

// -- blocklist sync --

var blocklistSyncCmd = &cobra.Command{
	Use:   "sync [url|path]",
	Short: "Sync the domain blocklist from a URL or local file",
	Long:  "Downloads a CSV, JSON, or XLSX blocklist over HTTP(S) or FTP, or reads a local file, and upserts its domains into the store. Without an argument the configured blocklist.url is used.",
	Args:  cobra.MaximumNArgs(1),
	RunE: withStore(func(cmd *cobra.Command, args []string, st store.Store) error {
		source := ""
		if len(args) == 1 {
			source = args[0]
		} else {
			if err := cfg.Validate("blocklist"); err != nil {
				return err
			}
			source = cfg.Blocklist.URL
		}

		timeout := time.Duration(cfg.Blocklist.TimeoutSecs) * time.Second
		syncer := blocklist.NewSyncer(st, blocklist.Options{
			HTTP: dataset.NewHTTPFetcher(dataset.HTTPOptions{Timeout: timeout}),
			FTP:  dataset.NewFTPFetcher(dataset.FTPOptions{Timeout: timeout}),
		})

		result, err := syncer.Sync(cmd.Context(), source)
		if err != nil {
			return eris.Wrap(err, "blocklist sync")
		}
		return writeJSON(os.Stdout, result)
	}),
}

// -- blocklist list --

var blocklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocked domains",
	RunE: withStore(func(cmd *cobra.Command, _ []string, st store.Store) error {
		domains, err := st.ListBlockedDomains(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "blocklist list")
		}

		if len(domains) == 0 {
			fmt.Fprintln(os.Stderr, "No blocked domains.")
			return nil
		}

		writeBlocklistTable(os.Stdout, domains)
		return nil
	}),
}

func init() {
	blocklistCmd.AddCommand(blocklistSyncCmd, blocklistListCmd)
	rootCmd.AddCommand(blocklistCmd)
}

func writeBlocklistTable(out io.Writer, domains []model.BlockedDomain) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOMAIN\tREASON\tSOURCE\tADDED")

	for _, d := range domains {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			d.Domain,
			clip(d.Reason, claimColWidth),
			d.Source,
			d.AddedAt.Format("2006-01-02"),
		)
	}
	_ = w.Flush()
}
