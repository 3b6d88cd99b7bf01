package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/export"
	"github.com/claimsift/claimsift/internal/store"
	"github.com/claimsift/claimsift/pkg/notion"
)

var publishCmd = &cobra.Command{
	Use:   "publish <run-id>",
	Short: "Publish a stored run's report to the Notion report database",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(*cobra.Command, []string) error {
		return cfg.Validate("publish")
	},
	RunE: withStore(func(cmd *cobra.Command, args []string, st store.Store) error {
		ctx := cmd.Context()

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "publish run")
		}

		publisher := export.NewPublisher(notion.NewClient(cfg.Notion.Token), cfg.Notion.ReportDB)
		pageID, err := publisher.PublishRun(ctx, run)
		if err != nil {
			return eris.Wrap(err, "publish run")
		}

		zap.L().Info("run published",
			zap.String("run_id", run.ID),
			zap.String("page_id", pageID),
		)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
