package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// SummaryRepository provides PostgreSQL-backed attendance summaries
type SummaryRepository struct {
	pool *Pool
}

// NewSummaryRepository creates a new PostgreSQL summary repository
func NewSummaryRepository(pool *Pool) *SummaryRepository {
	return &SummaryRepository{pool: pool}
}

// UpsertSummary inserts or replaces the summary for its key
func (r *SummaryRepository) UpsertSummary(ctx context.Context, s database.Summary) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_summary (identity, subject_id, semester, total_classes,
		                                present_count, absent_count, late_count, percentage, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (identity, subject_id, semester) DO UPDATE SET
			total_classes = EXCLUDED.total_classes,
			present_count = EXCLUDED.present_count,
			absent_count = EXCLUDED.absent_count,
			late_count = EXCLUDED.late_count,
			percentage = EXCLUDED.percentage,
			updated_at = NOW()
	`, s.Identity, s.SubjectID, s.Semester, s.TotalClasses, s.PresentCount, s.AbsentCount, s.LateCount, s.Percentage)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// GetSummary returns the summary for the key, nil if not found
func (r *SummaryRepository) GetSummary(ctx context.Context, identity string, subjectID int64, semester int) (*database.Summary, error) {
	var s database.Summary
	err := r.pool.QueryRow(ctx, `
		SELECT identity, subject_id, semester, total_classes, present_count, absent_count,
		       late_count, percentage, updated_at
		FROM attendance_summary
		WHERE identity = $1 AND subject_id = $2 AND semester = $3
	`, identity, subjectID, semester).Scan(
		&s.Identity, &s.SubjectID, &s.Semester, &s.TotalClasses, &s.PresentCount,
		&s.AbsentCount, &s.LateCount, &s.Percentage, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &s, nil
}
