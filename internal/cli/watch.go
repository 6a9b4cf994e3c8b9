package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stockpilot/internal/client"
	"stockpilot/internal/models"
	"stockpilot/internal/notify"
)

// newWatchCmd follows the live alert feed: one persistent connection, one
// bounded notification store, rendered to the terminal as events arrive.
func newWatchCmd(app *App) *cobra.Command {
	var noColor, noBell bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live stock-alert feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config.Client

			renderer := notify.NewTerminal(!noColor, !noBell)

			notifications := client.NewNotificationStore(client.StoreConfig{
				MaxNotifications: cfg.MaxNotifications,
				TTL:              cfg.NotificationTTL,
			}, app.Logger)

			conn := client.NewConn(client.ConnConfig{
				URL:        cfg.ServerURL,
				MaxRetries: cfg.MaxRetries,
				BaseDelay:  cfg.BaseDelay,
				MaxDelay:   cfg.MaxDelay,
			}, app.Logger)

			conn.OnEvent(func(ev models.AlertEvent) {
				notifications.OnEvent(ev)
				if ns := notifications.Notifications(); len(ns) > 0 {
					renderer.RenderNotification(ns[0])
				}
			})
			conn.OnStateChange(func(s client.State) {
				renderer.RenderStatus(s == client.StateConnected)
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn.Start(ctx)
			defer conn.Close()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.Flags().BoolVar(&noBell, "no-bell", false, "disable the terminal bell on critical alerts")

	return cmd
}
