package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"svfe-monitor/internal/app"
	"svfe-monitor/internal/config"
	"svfe-monitor/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "svfemon",
	Short:         "Monitor SVFE switch transaction health and raise alerts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if appHandle != nil {
			return nil
		}
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		appHandle = a
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "svfemon: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "configuration file (defaults to ./config.yaml or $SVFEMON_CONFIG)")
	flags.StringVar(&logLevel, "log-level", "", "override logging.level")
	flags.StringVar(&logFormat, "log-format", "", "override logging.format (json or console)")

	rootCmd.AddCommand(
		runCmd,
		migrateCmd,
		evaluateCmd,
		simulateCmd,
		alertsCmd,
		exportCmd,
		versionCmd,
	)
}

func loadApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	a := app.NewApp(cfg, logging.NewLogger(cfg.Logging, cfg.App.Name))
	a.Out = cmd.OutOrStdout()
	return a, nil
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
