// Package cli implements the iotanomaly command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	iotanomaly "github.com/kandarlubis31/iot-anomaly-detector"
)

// globals are the settings shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	cfg        iotanomaly.Config
	logger     *slog.Logger
}

// NewCommand returns the root command. Output is written to out and logs to errOut.
func NewCommand(out, errOut io.Writer) *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "iotanomaly",
		Short:         "IoT sensor anomaly detection dashboard",
		Long:          `iotanomaly detects anomalies in IoT sensor readings and serves an interactive dashboard for the results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := iotanomaly.LoadConfig(g.configPath)
			if err != nil {
				return err
			}
			if g.logLevel != "" {
				cfg.Log.Level = g.logLevel
			}
			logger, err := iotanomaly.NewLogger(errOut, cfg.Log)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			g.cfg, g.logger = cfg, logger
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCommand(g),
		newAnalyzeCommand(g),
		newSampleCommand(g),
	)
	return cmd
}

// Execute runs the root command with the process arguments and returns the exit code.
func Execute() int {
	if err := NewCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
