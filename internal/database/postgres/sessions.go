package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/lib/pq"
)

const sessionColumns = `id, teacher_id, subject_id, section, semester, class_name, status,
	session_date, start_time, end_time, duration_minutes, created_at`

// SessionRepository provides PostgreSQL-backed attendance session storage
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*database.Session, error) {
	var s database.Session
	var status string
	var endTime sql.NullTime
	err := row.Scan(
		&s.ID, &s.TeacherID, &s.SubjectID, &s.Section, &s.Semester, &s.ClassName, &status,
		&s.SessionDate, &s.StartTime, &endTime, &s.DurationMinutes, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = database.SessionStatus(status)
	if endTime.Valid {
		t := endTime.Time
		s.EndTime = &t
	}
	return &s, nil
}

// validUUID guards uuid columns against malformed ids, which postgres rejects with an error.
func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// sessionTx implements database.SessionTx on top of a sql.Tx.
type sessionTx struct {
	tx *sql.Tx
}

// InsertActiveSession relies on the partial unique index over active sessions:
// a concurrent start either wins the insert or waits for the winner and then
// reads its row.
func (t *sessionTx) InsertActiveSession(ctx context.Context, s *database.Session) (*database.Session, bool, error) {
	row := t.tx.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions (id, teacher_id, subject_id, section, semester, class_name,
		                                 status, session_date, start_time, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (section, semester, subject_id) WHERE status = 'active' DO NOTHING
		RETURNING `+sessionColumns,
		s.ID, s.TeacherID, s.SubjectID, s.Section, s.Semester, s.ClassName,
		string(database.SessionActive), s.SessionDate, s.StartTime, s.DurationMinutes,
	)
	created, err := scanSession(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert session: %w", err)
	}

	existing, err := scanSession(t.tx.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE section = $1 AND semester = $2 AND subject_id = $3 AND status = 'active'
	`, s.Section, s.Semester, s.SubjectID))
	if err != nil {
		return nil, false, fmt.Errorf("select active session: %w", err)
	}
	return existing, false, nil
}

// InsertRecords bulk-inserts the initial records with COPY.
func (t *sessionTx) InsertRecords(ctx context.Context, records []database.Record) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, pq.CopyIn("attendance_records",
		"session_id", "identity", "name", "status", "marked_by", "marked_at", "version"))
	if err != nil {
		return fmt.Errorf("prepare record copy: %w", err)
	}

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.SessionID, r.Identity, r.Name,
			string(r.Status), string(r.MarkedBy), r.MarkedAt, max(r.Version, 1)); err != nil {
			stmt.Close()
			return fmt.Errorf("copy record %s: %w", r.Identity, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush record copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close record copy: %w", err)
	}
	return nil
}

// InSessionTx runs fn in a single transaction
func (r *SessionRepository) InSessionTx(ctx context.Context, fn func(tx database.SessionTx) error) error {
	return r.pool.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&sessionTx{tx: tx})
	})
}

// GetSession retrieves a session by ID, returns nil if not found
func (r *SessionRepository) GetSession(ctx context.Context, id string) (*database.Session, error) {
	if !validUUID(id) {
		return nil, nil
	}
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// GetSessions retrieves sessions by IDs
func (r *SessionRepository) GetSessions(ctx context.Context, ids []string) ([]database.Session, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	return r.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = ANY($1::uuid[]) ORDER BY start_time`,
		pq.Array(valid))
}

// FindActiveSession returns the most recently started active session, nil if none
func (r *SessionRepository) FindActiveSession(ctx context.Context, section string, semester int, subjectID *int64) (*database.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM attendance_sessions
		WHERE status = 'active' AND section = $1 AND semester = $2`
	args := []any{section, semester}
	if subjectID != nil {
		query += ` AND subject_id = $3`
		args = append(args, *subjectID)
	}
	query += ` ORDER BY start_time DESC LIMIT 1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return s, nil
}

// CompleteSession marks an active session completed
func (r *SessionRepository) CompleteSession(ctx context.Context, id string, end time.Time) error {
	if !validUUID(id) {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE attendance_sessions
		SET status = 'completed', end_time = $2
		WHERE id = $1 AND status = 'active'
	`, id, end)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

// ListSessions returns sessions matching the filter ordered by start time
func (r *SessionRepository) ListSessions(ctx context.Context, f database.SessionFilter) ([]database.Session, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Section != "" {
		add("section = $%d", f.Section)
	}
	if f.Semester != 0 {
		add("semester = $%d", f.Semester)
	}
	if f.SubjectID != nil {
		add("subject_id = $%d", *f.SubjectID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.From != nil {
		add("session_date >= $%d::date", f.From.UTC().Format(time.DateOnly))
	}
	if f.To != nil {
		add("session_date <= $%d::date", f.To.UTC().Format(time.DateOnly))
	}

	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_time, id`

	return r.querySessions(ctx, query, args...)
}

func (r *SessionRepository) querySessions(ctx context.Context, query string, args ...any) ([]database.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
