package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"svfe-monitor/internal/app"
)

var (
	simulateCount    int
	simulateRatio    float64
	simulateDispatch bool
	simulateSeed     int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Evaluate the alert rules against a synthetic transaction feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateCount <= 0 {
			return errors.New("--count must be greater than zero")
		}
		if simulateRatio < 0 || simulateRatio > 1 {
			return errors.New("--success-ratio must be within [0, 1]")
		}

		opts := app.SimulateOptions{
			Count:        simulateCount,
			SuccessRatio: simulateRatio,
			Dispatch:     simulateDispatch,
			Seed:         simulateSeed,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateCount, "count", 100, "Number of synthetic transactions")
	simulateCmd.Flags().Float64Var(&simulateRatio, "success-ratio", 0.5, "Share of approved transactions (0 to 1)")
	simulateCmd.Flags().BoolVar(&simulateDispatch, "dispatch", false, "Store and send the resulting alerts")
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "Random seed (0 picks one)")
}
