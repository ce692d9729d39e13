package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"svfe-monitor/internal/app"
	"svfe-monitor/internal/model"
)

var (
	evaluateSource string
	evaluateDryRun bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate alert rules once against a transaction table",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, ok := model.ParseSource(evaluateSource)
		if !ok {
			return fmt.Errorf("invalid --source %q (want current or historical)", evaluateSource)
		}

		opts := app.EvaluateOptions{
			Source: source,
			DryRun: evaluateDryRun,
		}
		return getApp().Evaluate(cmd.Context(), opts)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateSource, "source", "current", "Table to evaluate: current or historical")
	evaluateCmd.Flags().BoolVar(&evaluateDryRun, "dry-run", false, "Print alerts without storing or sending them")
}
