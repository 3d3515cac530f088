package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/lib/pq"
)

const recordColumns = `session_id, identity, name, status, marked_by, arrival_time,
	time_difference_minutes, confidence, marked_at, version`

// RecordRepository provides PostgreSQL-backed attendance record storage
type RecordRepository struct {
	pool *Pool
}

// NewRecordRepository creates a new PostgreSQL record repository
func NewRecordRepository(pool *Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

func scanRecord(row rowScanner) (*database.Record, error) {
	var r database.Record
	var status, markedBy string
	var arrival sql.NullTime
	var diff sql.NullInt64
	var confidence sql.NullFloat64
	err := row.Scan(&r.SessionID, &r.Identity, &r.Name, &status, &markedBy, &arrival,
		&diff, &confidence, &r.MarkedAt, &r.Version)
	if err != nil {
		return nil, err
	}
	r.Status = database.RecordStatus(status)
	r.MarkedBy = database.MarkedBy(markedBy)
	if arrival.Valid {
		t := arrival.Time
		r.ArrivalTime = &t
	}
	if diff.Valid {
		d := int(diff.Int64)
		r.TimeDifferenceMinutes = &d
	}
	if confidence.Valid {
		c := confidence.Float64
		r.Confidence = &c
	}
	return &r, nil
}

// GetRecord retrieves a single record, returns nil if not found
func (r *RecordRepository) GetRecord(ctx context.Context, sessionID, identity string) (*database.Record, error) {
	if !validUUID(sessionID) {
		return nil, nil
	}
	rec, err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE session_id = $1 AND identity = $2`,
		sessionID, identity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// UpdateRecord rewrites a record in one statement; the row lock serializes
// concurrent marks of the same identity.
func (r *RecordRepository) UpdateRecord(ctx context.Context, u database.RecordUpdate) (*database.Record, error) {
	if !validUUID(u.SessionID) {
		return nil, nil
	}
	rec, err := scanRecord(r.pool.QueryRow(ctx, `
		UPDATE attendance_records
		SET status = $3,
		    marked_by = $4,
		    arrival_time = $5,
		    time_difference_minutes = $6,
		    confidence = $7,
		    marked_at = $8,
		    version = version + 1
		WHERE session_id = $1 AND identity = $2
		RETURNING `+recordColumns,
		u.SessionID, u.Identity, string(u.Status), string(u.MarkedBy),
		u.ArrivalTime, u.TimeDifferenceMinutes, u.Confidence, u.MarkedAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	return rec, nil
}

// ListRecords returns the records of the given sessions
func (r *RecordRepository) ListRecords(ctx context.Context, sessionIDs []string) ([]database.Record, error) {
	valid := make([]string, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		if validUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	return r.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE session_id = ANY($1::uuid[])
		ORDER BY session_id, identity
	`, pq.Array(valid))
}

// ListRecordsByIdentity returns every record of one identity
func (r *RecordRepository) ListRecordsByIdentity(ctx context.Context, identity string) ([]database.Record, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE identity = $1
		ORDER BY session_id
	`, identity)
}

func (r *RecordRepository) queryRecords(ctx context.Context, query string, args ...any) ([]database.Record, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []database.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
