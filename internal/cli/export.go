package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"svfe-monitor/internal/app"
	"svfe-monitor/internal/model"
)

var (
	exportSource    string
	exportPNGPath   string
	exportCSVPath   string
	exportDistPath  string
	exportBucket    time.Duration
	exportLatestDay bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export transaction trends and terminal distribution as CSV/PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, ok := model.ParseSource(exportSource)
		if !ok {
			return fmt.Errorf("invalid --source %q (want current or historical)", exportSource)
		}
		if exportBucket != 0 && (exportBucket < time.Minute || exportBucket > 24*time.Hour) {
			return fmt.Errorf("--bucket must be between 1m and 24h")
		}

		opts := app.ExportOptions{
			Source:              source,
			PNGPath:             exportPNGPath,
			CSVPath:             exportCSVPath,
			DistributionPNGPath: exportDistPath,
			Bucket:              exportBucket,
			LatestDayOnly:       exportLatestDay,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSource, "source", "current", "Table to export: current or historical")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportDistPath, "distribution-png", "", "Path to write the terminal distribution donut chart")
	exportCmd.Flags().DurationVar(&exportBucket, "bucket", 0, "Trend bucket width (defaults to the table's configured bucket)")
	exportCmd.Flags().BoolVar(&exportLatestDay, "latest-day", false, "Only include the most recent day")
}
