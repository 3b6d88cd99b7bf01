package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/claimsift/claimsift/internal/store"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a stored run's report to a file",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, args []string, st store.Store) error {
		run, err := st.GetRun(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "export run")
		}
		if run.Report == nil {
			return eris.Errorf("run %s has no report yet (status %s)", idPrefix(run.ID), run.Status)
		}
		return exportReport(run.Report, exportFormat, exportOutput)
	}),
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "export format: csv, json, or xlsx")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output file path (default report.<format>)")
	rootCmd.AddCommand(exportCmd)
}
