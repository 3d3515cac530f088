package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// MarkingEngine applies the present/late policy to session records.
type MarkingEngine struct {
	store         database.Store
	lateThreshold time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewMarkingEngine creates an engine with the late threshold from cfg.
func NewMarkingEngine(store database.Store, cfg config.AttendanceConfig, m *metrics.Metrics, logger *slog.Logger) *MarkingEngine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	threshold := cfg.LateThreshold
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	return &MarkingEngine{
		store:         store,
		lateThreshold: threshold,
		metrics:       m,
		logger:        logger.With("component", "marking"),
		now:           time.Now,
	}
}

// Classify returns late when elapsed exceeds threshold, present otherwise.
func Classify(elapsed, threshold time.Duration) database.RecordStatus {
	if elapsed > threshold {
		return database.StatusLate
	}
	return database.StatusPresent
}

// MarkPresent marks an identity present or late depending on how long after
// the session start it arrived. Repeated calls overwrite the same record.
func (e *MarkingEngine) MarkPresent(ctx context.Context, sessionID, identity string, confidence float64, markedBy database.MarkedBy) (*database.Record, error) {
	if markedBy == "" {
		markedBy = database.MarkedBySystem
	}
	if !markedBy.Valid() {
		return nil, apperr.Validation("invalid marked_by %q", markedBy)
	}

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return nil, apperr.NotFound("session", sessionID)
	}

	now := e.now().UTC()
	elapsed := now.Sub(session.StartTime)
	minutes := int(elapsed / time.Minute)
	status := Classify(elapsed, e.lateThreshold)

	record, err := e.store.UpdateRecord(ctx, database.RecordUpdate{
		SessionID:             sessionID,
		Identity:              identity,
		Status:                status,
		MarkedBy:              markedBy,
		ArrivalTime:           &now,
		TimeDifferenceMinutes: &minutes,
		Confidence:            &confidence,
		MarkedAt:              now,
	})
	if err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	if record == nil {
		return nil, apperr.NotFound("attendance record", sessionID+"/"+identity)
	}

	e.metrics.RecordMark(string(status), string(markedBy))
	e.logger.Info("marked",
		"session", sessionID, "identity", identity, "status", status,
		"minutes", minutes, "confidence", confidence, "marked_by", markedBy)
	return record, nil
}

// MarkAbsent overrides a record back to absent and clears its arrival data.
func (e *MarkingEngine) MarkAbsent(ctx context.Context, sessionID, identity string) (*database.Record, error) {
	record, err := e.store.UpdateRecord(ctx, database.RecordUpdate{
		SessionID: sessionID,
		Identity:  identity,
		Status:    database.StatusAbsent,
		MarkedBy:  database.MarkedByOverride,
		MarkedAt:  e.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	if record == nil {
		return nil, apperr.NotFound("attendance record", sessionID+"/"+identity)
	}

	e.metrics.RecordMark(string(database.StatusAbsent), string(database.MarkedByOverride))
	e.logger.Info("marked absent", "session", sessionID, "identity", identity)
	return record, nil
}
