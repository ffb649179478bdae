package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/georetry/internal/control"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run endpoint discovery and the health server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client, err := control.NewClient(ctx, appCfg)
	if err != nil {
		slog.Error("Failed to initialize client", "error", err)
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := client.Start(ctx, true); err != nil {
		slog.Error("Failed to start client", "error", err)
		_ = client.Close()
		return err
	}

	slog.Info("Client started", "config", cfgPath, "endpoint", appCfg.Account.Endpoint)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), appCfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := client.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		return err
	}
	slog.Info("Client stopped gracefully")
	return nil
}
