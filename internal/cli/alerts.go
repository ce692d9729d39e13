package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"svfe-monitor/internal/app"
)

var alertsLimit int

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Display recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsLimit <= 0 || alertsLimit > 500 {
			return fmt.Errorf("--limit must be between 1 and 500")
		}
		return getApp().ShowAlerts(cmd.Context(), app.AlertsOptions{Limit: alertsLimit})
	},
}

func init() {
	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 10, "Number of alerts to display")
}
