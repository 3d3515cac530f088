package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the Face Attendance HTTP API.
The server runs attendance sessions, recognizes uploaded captures, builds
galleries in the background and exposes Prometheus metrics on /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().StringSlice("allowed-origin", nil, "Extra CORS origin allowed to call the API (repeatable)")
}

// applyServeFlags lets flags override the environment configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	cfg.Web.AllowedOrigins = append(cfg.Web.AllowedOrigins, mustGetStringSlice(cmd, "allowed-origin")...)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	a, err := openApp(cmd.Context(), cfg, m)
	if err != nil {
		return err
	}
	defer a.Close()

	healthCtx, healthCancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	if err := a.detector.Health(healthCtx); err != nil {
		fmt.Printf("Warning: face detection service at %s is not reachable: %v\n", cfg.FaceAPI.URL, err)
	}
	healthCancel()

	server := web.NewServer(cfg, web.Deps{
		Sessions:   a.sessions,
		Marking:    a.marking,
		Recognizer: a.recognizer,
		Trainer:    a.trainer,
		Galleries:  a.loader,
		Registrar:  a.registrar,
		Aggregator: a.aggregator,
		Metrics:    m,
		DB:         a.pool,
	}, a.logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	if cfg.Web.APIToken == "" {
		fmt.Println("Warning: WEB_API_TOKEN is not set, the API is unauthenticated")
	}
	fmt.Printf("Starting Face Attendance API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
