package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/export"
	"github.com/claimsift/claimsift/internal/model"
)

var (
	checkClaim   string
	checkSources int
	checkVerify  bool
	checkExport  string
	checkOutput  string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a single claim against discovered sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.CheckRequest{
			Claim:  checkClaim,
			Count:  checkSources,
			Verify: checkVerify,
		}

		report, err := env.Pipeline.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "check claim")
		}

		zap.L().Info("check complete",
			zap.String("claim", report.Claim),
			zap.Int("sources", len(report.Results)),
			zap.Int("fetched", report.Counts.Fetched),
			zap.Int("supports", report.Counts.Supports),
			zap.Int("refutes", report.Counts.Refutes),
		)

		if checkExport != "" {
			if err := exportReport(report, checkExport, checkOutput); err != nil {
				return err
			}
		}
		return writeJSON(os.Stdout, report)
	},
}

// exportReport writes the report to path in the named format. An empty path
// derives one from the format ("report.csv" and so on).
func exportReport(report *model.CheckReport, format, path string) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	if path == "" {
		path = "report." + string(f)
	}

	out, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create export file")
	}
	defer out.Close()

	if err := export.Write(out, f, report); err != nil {
		return err
	}

	zap.L().Info("report exported",
		zap.String("path", path),
		zap.String("format", string(f)),
	)
	return nil
}

func init() {
	checkCmd.Flags().StringVar(&checkClaim, "claim", "", "claim text to check (required)")
	checkCmd.Flags().IntVar(&checkSources, "sources", 0, "number of sources to gather (default 5, max 20)")
	checkCmd.Flags().BoolVar(&checkVerify, "verify", true, "verify each source's stance against the claim")
	checkCmd.Flags().StringVar(&checkExport, "export", "", "also export the report: csv, json, or xlsx")
	checkCmd.Flags().StringVar(&checkOutput, "output", "", "export file path (default report.<format>)")
	_ = checkCmd.MarkFlagRequired("claim")
	rootCmd.AddCommand(checkCmd)
}
