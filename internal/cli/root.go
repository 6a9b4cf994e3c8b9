// Package cli provides the command-line interface for the inventory application.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stockpilot/internal/config"
	"stockpilot/internal/logging"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "stockpilot",
		Short: "stockpilot - inventory admin with real-time stock alerts",
		Long: `stockpilot is an inventory administration tool with a real-time
stock-alert pipeline.

The server classifies stock levels after every inventory mutation and fans
alert events out to every connected client over a websocket feed. Clients
keep a bounded, self-expiring notification list and reconnect automatically.

Use 'stockpilot serve' to run the server and 'stockpilot watch' to follow
the live alert feed.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/stockpilot)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newProductCmd(app))

	return rootCmd
}
