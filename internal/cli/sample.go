package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	iotanomaly "github.com/kandarlubis31/iot-anomaly-detector"
)

func newSampleCommand(g *globals) *cobra.Command {
	var (
		points        int
		contamination float64
		out           string
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate labelled sample sensor data as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if points <= 0 {
				points = g.cfg.Detection.SamplePoints
			}
			if contamination == 0 {
				contamination = g.cfg.Detection.Contamination
			}
			frame := iotanomaly.SampleFrame(points, time.Now())
			ds, _, err := iotanomaly.DetectFrame(cmd.Context(), frame, g.cfg.Detection, contamination)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			if err := iotanomaly.WriteCSV(w, ds); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
			g.logger.Info("sample data written", "rows", ds.Len(), "anomalies", ds.AnomalyCount(), "out", out)
			return nil
		},
	}
	cmd.Flags().IntVar(&points, "points", 0, "number of rows (default: detection.sample_points)")
	cmd.Flags().Float64Var(&contamination, "contamination", 0, "expected share of anomalies used to label rows")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	return cmd
}
