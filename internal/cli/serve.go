package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	iotanomaly "github.com/kandarlubis31/iot-anomaly-detector"
)

func newServeCommand(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := iotanomaly.OpenServer(ctx, cfg, g.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := srv.Close(); err != nil {
					g.logger.Error("close server", "err", err)
				}
			}()
			g.logger.Info("starting server",
				"addr", cfg.HTTP.Addr,
				"storage", cfg.Storage.Backend,
				"model", cfg.Detection.Model)
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}
