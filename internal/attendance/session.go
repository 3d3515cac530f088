// Package attendance runs attendance sessions and marks their records.
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// StartRequest opens a session for one class and subject.
type StartRequest struct {
	TeacherID       string
	SubjectID       int64
	Section         string
	Semester        int
	ClassName       string
	DurationMinutes int
}

// StartResult reports the session a start request resolved to.
type StartResult struct {
	Session    *database.Session `json:"session"`
	Created    bool              `json:"created"`
	RosterSize int               `json:"roster_size"`
}

// SessionManager drives the session lifecycle: no session, active, completed.
type SessionManager struct {
	store   database.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessionManager creates a manager. metrics and logger may be nil.
func NewSessionManager(store database.Store, m *metrics.Metrics, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SessionManager{
		store:   store,
		metrics: m,
		logger:  logger.With("component", "sessions"),
		now:     time.Now,
	}
}

func (r *StartRequest) normalize() error {
	r.Section = strings.ToUpper(strings.TrimSpace(r.Section))
	r.ClassName = strings.ToUpper(strings.TrimSpace(r.ClassName))
	r.TeacherID = strings.TrimSpace(r.TeacherID)
	switch {
	case r.Section == "":
		return apperr.Validation("section is required")
	case r.Semester < 1 || r.Semester > 8:
		return apperr.Validation("semester %d out of range 1-8", r.Semester)
	case r.SubjectID <= 0:
		return apperr.Validation("subject id must be positive")
	case r.DurationMinutes < 0:
		return apperr.Validation("duration must not be negative")
	}
	if r.DurationMinutes == 0 {
		r.DurationMinutes = 60
	}
	return nil
}

// Start opens a session unless one is already active for the same section,
// semester and subject, in which case that session is returned unchanged.
// A new session gets one absent record per student of the class.
func (m *SessionManager) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	roster, err := m.store.ListPeople(ctx, database.PersonFilter{
		Roles:    []database.Role{database.RoleStudent},
		Section:  req.Section,
		Semester: req.Semester,
	})
	if err != nil {
		return nil, fmt.Errorf("loading roster: %w", err)
	}

	now := m.now().UTC()
	candidate := &database.Session{
		ID:              uuid.NewString(),
		TeacherID:       req.TeacherID,
		SubjectID:       req.SubjectID,
		Section:         req.Section,
		Semester:        req.Semester,
		ClassName:       req.ClassName,
		Status:          database.SessionActive,
		SessionDate:     time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		StartTime:       now,
		DurationMinutes: req.DurationMinutes,
		CreatedAt:       now,
	}

	result := &StartResult{}
	err = m.store.InSessionTx(ctx, func(tx database.SessionTx) error {
		stored, created, err := tx.InsertActiveSession(ctx, candidate)
		if err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}
		result.Session = stored
		result.Created = created
		if !created {
			return nil
		}

		records := make([]database.Record, len(roster))
		for i, p := range roster {
			records[i] = database.Record{
				SessionID: stored.ID,
				Identity:  p.Identity,
				Name:      p.Name,
				Status:    database.StatusAbsent,
				MarkedBy:  database.MarkedBySystem,
				MarkedAt:  now,
				Version:   1,
			}
		}
		if err := tx.InsertRecords(ctx, records); err != nil {
			return fmt.Errorf("inserting roster records: %w", err)
		}
		result.RosterSize = len(records)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Created {
		recs, err := m.store.ListRecords(ctx, []string{result.Session.ID})
		if err != nil {
			return nil, fmt.Errorf("counting records: %w", err)
		}
		result.RosterSize = len(recs)
		m.logger.Info("reusing active session", "session", result.Session.ID, "section", req.Section, "semester", req.Semester)
	} else {
		m.logger.Info("session started",
			"session", result.Session.ID, "section", req.Section, "semester", req.Semester,
			"subject", req.SubjectID, "roster", result.RosterSize)
	}
	m.metrics.RecordSessionStart(result.Created)
	return result, nil
}

// End completes a session. Ending a completed session is a no-op.
func (m *SessionManager) End(ctx context.Context, sessionID string) (*database.Session, error) {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == database.SessionCompleted {
		return s, nil
	}

	if err := m.store.CompleteSession(ctx, sessionID, m.now().UTC()); err != nil {
		return nil, fmt.Errorf("completing session: %w", err)
	}
	m.logger.Info("session ended", "session", sessionID)
	return m.Get(ctx, sessionID)
}

// GetActive returns the most recently started active session of a class, or nil.
func (m *SessionManager) GetActive(ctx context.Context, section string, semester int, subjectID *int64) (*database.Session, error) {
	s, err := m.store.FindActiveSession(ctx, strings.ToUpper(strings.TrimSpace(section)), semester, subjectID)
	if err != nil {
		return nil, fmt.Errorf("finding active session: %w", err)
	}
	return s, nil
}

// Get returns a session or ErrNotFound.
func (m *SessionManager) Get(ctx context.Context, sessionID string) (*database.Session, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if s == nil {
		return nil, apperr.NotFound("session", sessionID)
	}
	return s, nil
}

// Records returns the records of a session ordered by display name.
func (m *SessionManager) Records(ctx context.Context, sessionID string) ([]database.Record, error) {
	if _, err := m.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	records, err := m.store.ListRecords(ctx, []string{sessionID})
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	SortByName(records)
	return records, nil
}

// SortByName orders records by display name using locale-aware collation,
// falling back to the identity key for equal names.
func SortByName(records []database.Record) {
	c := collate.New(language.Und, collate.IgnoreCase)
	slices.SortStableFunc(records, func(a, b database.Record) int {
		if n := c.CompareString(a.Name, b.Name); n != 0 {
			return n
		}
		return strings.Compare(a.Identity, b.Identity)
	})
}
