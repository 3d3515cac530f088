package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/blob"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/stats"
)

// app holds the services shared by all commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *postgres.Pool
	store      *postgres.Store
	blobs      blob.Store
	detector   *faceapi.Client
	loader     *gallery.Loader
	metrics    *metrics.Metrics
	sessions   *attendance.SessionManager
	marking    *attendance.MarkingEngine
	recognizer *attendance.Recognizer
	trainer    *gallery.Trainer
	aggregator *stats.Aggregator
	registrar  *enrollment.Registrar
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openBlobStore(cfg *config.Config, pool *postgres.Pool) (blob.Store, error) {
	switch cfg.Storage.Backend {
	case "", "postgres":
		return postgres.NewBlobRepository(pool), nil
	case "fs":
		return blob.NewFSStore(cfg.Storage.Dir)
	case "memory":
		return blob.NewMemStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// openApp connects to PostgreSQL, applies migrations and wires the services.
// m may be nil when the command does not export metrics.
func openApp(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*app, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	logger := newLogger()

	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, pool: pool, store: postgres.NewStore(pool), metrics: m}

	a.blobs, err = openBlobStore(cfg, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	metric, err := database.ParseMetric(cfg.Matching.Distance)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("invalid MATCH_DISTANCE: %w", err)
	}
	strategy, err := facematch.NewStrategy(cfg.Matching.Strategy, metric, a.store, cfg.Matching.CacheTTL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("invalid MATCH_STRATEGY: %w", err)
	}

	a.detector = faceapi.NewClient(cfg.FaceAPI.URL, cfg.FaceAPI.Timeout)
	a.loader = gallery.NewLoader(a.store, a.blobs, cfg.Matching.CacheTTL)
	matcher := facematch.NewMatcher(a.loader, strategy, cfg.Matching)

	a.sessions = attendance.NewSessionManager(a.store, m, logger)
	a.marking = attendance.NewMarkingEngine(a.store, cfg.Attendance, m, logger)
	a.recognizer = attendance.NewRecognizer(a.sessions, a.marking, a.detector, matcher, cfg, m, logger)
	a.aggregator = stats.NewAggregator(a.store, logger)
	a.registrar = enrollment.NewRegistrar(a.store, a.blobs, cfg.Gallery.MinEnrollmentImages, logger)

	builder := gallery.NewBuilder(a.detector, a.blobs, cfg.Gallery, logger)
	publisher := gallery.NewPublisher(a.blobs, a.store, cfg.Gallery.Bucket)
	a.trainer = gallery.NewTrainer(a.store, builder, publisher, logger)

	logger.Debug("services ready", "strategy", strategy.Name(), "metric", metric,
		"storage", cfg.Storage.Backend, "face_api", cfg.FaceAPI.URL)
	return a, nil
}

func (a *app) Close() {
	if err := a.pool.Close(); err != nil {
		a.logger.Warn("closing database pool", "error", err)
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("15:04:05")
}
