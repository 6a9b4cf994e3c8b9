package cli

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"stockpilot/internal/alert"
	"stockpilot/internal/server"
	"stockpilot/internal/store"
	"stockpilot/internal/stream"
)

// newServeCmd builds the composition root: config -> store -> hub -> emitter
// -> HTTP server. The hub is created here and injected; nothing else owns
// process-wide broadcast state.
func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the inventory server with the alert feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config

			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
				return err
			}
			dataStore, err := store.NewSQLiteStore(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer dataStore.Close()

			hub := stream.NewHubWithConfig(stream.HubConfig{
				SubscriberBufferSize: cfg.Server.SubscriberBuffer,
			}, app.Logger)
			defer hub.Close()

			emitter := alert.NewEmitter(hub, alert.Thresholds{
				DefaultReorderLevel:     cfg.Alerts.DefaultReorderLevel,
				DefaultDailyConsumption: cfg.Alerts.DefaultDailyConsumption,
				CriticalDays:            cfg.Alerts.CriticalDays,
			}, app.Logger)

			srv := server.New(server.Config{
				Addr:         cfg.Server.Addr,
				PingInterval: cfg.Server.PingInterval,
				WriteTimeout: cfg.Server.WriteTimeout,
			}, hub, emitter, dataStore, app.Logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	return cmd
}
