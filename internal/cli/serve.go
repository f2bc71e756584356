package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"markyt-agent/internal/server"
)

const shutdownTimeout = 15 * time.Second

// addServerCommands adds the HTTP API command.
func addServerCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API used by the web frontend.

Endpoints:
  GET  /                    - Status
  GET  /api/health          - Dependency health
  POST /api/chat            - Ask the advisor
  GET  /api/chart/{symbol}  - Chart data (?period=3mo&interval=1d)
  GET  /api/quote/{symbol}  - Latest quote

Without an LLM API key the market endpoints still work and /api/chat
answers 503.`,
		Example: `  markyt serve
  markyt serve --port 9000
  PORT=9000 ALLOWED_ORIGINS=https://markyt.app markyt serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			cfg := app.Config.Server
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("host") {
				cfg.Host, _ = cmd.Flags().GetString("host")
			}

			var chat server.ChatService
			if app.Advisor != nil {
				chat = app.Advisor
			} else {
				output.Warning("No LLM API key configured; /api/chat is disabled")
			}

			srv := server.NewServer(chat, app.Market, cfg, app.Logger, server.WithHealth(app.Health))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			if !output.IsJSON() {
				output.Info("Markyt API listening on http://%s", cfg.Addr())
				output.Dim("Press Ctrl+C to stop the server")
			}

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}

	cmd.Flags().Int("port", 0, "Server port (default from config or PORT)")
	cmd.Flags().String("host", "", "Listen host (default from config)")

	return cmd
}
