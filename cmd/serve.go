package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceid/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the faceid HTTP API.
The gallery is loaded once at startup; every registration and deletion is
written through to storage before the request returns.`,
	RunE: runServe,
}

const shutdownTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if port := mustFlag(cmd.Flags().GetInt, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustFlag(cmd.Flags().GetString, "host"); host != "" {
		cfg.Web.Host = host
	}

	a, err := openAppWith(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer a.Close()

	health := a.engine.Health()
	logger.Info("gallery ready",
		zap.Int("identities", health.GallerySize),
		zap.Int("embeddings", health.EmbeddingCount),
		zap.String("backend", cfg.Storage.Backend))

	server := web.NewServer(cfg.Web, a.engine, cfg.Model.Timeout, logger.Named("web"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting faceid on http://%s\n", cfg.Web.Addr())
	fmt.Println("Press Ctrl+C to stop")

	// Run returns once in-flight requests have drained, so the gallery is
	// closed only after the last write.
	if err := server.Run(ctx, shutdownTimeout); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}
