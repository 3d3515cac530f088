// Package stats aggregates attendance records into per-student statistics.
package stats

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// DateRange bounds session dates, inclusive. Nil ends are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// StudentStats is the attendance of one identity over a set of sessions.
type StudentStats struct {
	Identity     string  `json:"enrollment_number"`
	Name         string  `json:"student_name"`
	TotalClasses int     `json:"total_classes"`
	Present      int     `json:"present"`
	Absent       int     `json:"absent"`
	Late         int     `json:"late"`
	Percentage   float64 `json:"percentage"`
}

// SubjectStats is the attendance of a class in one subject.
type SubjectStats struct {
	TotalClasses int            `json:"total_classes"`
	Students     []StudentStats `json:"students"`
}

// Percentage returns attended/total as a percentage rounded to two decimals.
func Percentage(attended, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(attended)/float64(total)*100*100) / 100
}

func (s *StudentStats) add(status database.RecordStatus) {
	s.TotalClasses++
	switch status {
	case database.StatusPresent:
		s.Present++
	case database.StatusAbsent:
		s.Absent++
	case database.StatusLate:
		s.Late++
	}
}

// Aggregator computes statistics on demand from sessions and records.
type Aggregator struct {
	store  database.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewAggregator creates an aggregator. A nil logger discards output.
func NewAggregator(store database.Store, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{store: store, logger: logger.With("component", "stats"), now: time.Now}
}

// SubjectStats counts the records of every session of a class and subject.
// Students appear in the order they are first encountered, walking sessions
// by start time.
func (a *Aggregator) SubjectStats(ctx context.Context, section string, semester int, subjectID int64, dr DateRange) (*SubjectStats, error) {
	sessions, err := a.store.ListSessions(ctx, database.SessionFilter{
		Section:   strings.ToUpper(strings.TrimSpace(section)),
		Semester:  semester,
		SubjectID: &subjectID,
		From:      dr.From,
		To:        dr.To,
	})
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	result := &SubjectStats{TotalClasses: len(sessions), Students: []StudentStats{}}
	if len(sessions) == 0 {
		return result, nil
	}

	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	records, err := a.store.ListRecords(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	bySession := make(map[string][]database.Record, len(sessions))
	for _, r := range records {
		bySession[r.SessionID] = append(bySession[r.SessionID], r)
	}

	index := make(map[string]int)
	for _, s := range sessions {
		for _, r := range bySession[s.ID] {
			i, ok := index[r.Identity]
			if !ok {
				i = len(result.Students)
				index[r.Identity] = i
				result.Students = append(result.Students, StudentStats{Identity: r.Identity, Name: r.Name})
			}
			result.Students[i].add(r.Status)
		}
	}
	for i := range result.Students {
		st := &result.Students[i]
		st.Percentage = Percentage(st.Present+st.Late, st.TotalClasses)
	}
	return result, nil
}

// LowAttendance returns the students below threshold percent, lowest first.
// Students with equal percentages keep their encounter order.
func (a *Aggregator) LowAttendance(ctx context.Context, section string, semester int, subjectID int64, threshold float64) ([]StudentStats, error) {
	st, err := a.SubjectStats(ctx, section, semester, subjectID, DateRange{})
	if err != nil {
		return nil, err
	}
	return FilterLow(st.Students, threshold), nil
}

// FilterLow keeps the entries strictly below threshold, sorted ascending.
func FilterLow(students []StudentStats, threshold float64) []StudentStats {
	low := []StudentStats{}
	for _, s := range students {
		if s.Percentage < threshold {
			low = append(low, s)
		}
	}
	slices.SortStableFunc(low, func(x, y StudentStats) int {
		return cmp.Compare(x.Percentage, y.Percentage)
	})
	return low
}

// HistoryEntry is one record joined with its session.
type HistoryEntry struct {
	SessionID             string                `json:"session_id"`
	SubjectID             int64                 `json:"subject_id"`
	ClassName             string                `json:"class_name"`
	Section               string                `json:"section"`
	Semester              int                   `json:"semester"`
	SessionDate           time.Time             `json:"session_date"`
	StartTime             time.Time             `json:"start_time"`
	Status                database.RecordStatus `json:"status"`
	MarkedBy              database.MarkedBy     `json:"marked_by"`
	ArrivalTime           *time.Time            `json:"arrival_time,omitempty"`
	TimeDifferenceMinutes *int                  `json:"time_difference_minutes,omitempty"`
	Confidence            *float64              `json:"recognition_confidence,omitempty"`
}

// HistoryStatistics summarises a history.
type HistoryStatistics struct {
	TotalClasses int     `json:"total_classes"`
	Attended     int     `json:"attended"`
	Absent       int     `json:"absent"`
	Late         int     `json:"late"`
	Percentage   float64 `json:"percentage"`
}

// History is the attendance of one identity, newest session first.
type History struct {
	Identity   string            `json:"enrollment_number"`
	Records    []HistoryEntry    `json:"records"`
	Statistics HistoryStatistics `json:"statistics"`
}

func inRange(d time.Time, dr DateRange) bool {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	if dr.From != nil && day.Before(truncateDay(*dr.From)) {
		return false
	}
	if dr.To != nil && day.After(truncateDay(*dr.To)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StudentHistory returns the records of identity joined with session data.
func (a *Aggregator) StudentHistory(ctx context.Context, identity string, subjectID *int64, dr DateRange) (*History, error) {
	records, err := a.store.ListRecordsByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	h := &History{Identity: identity, Records: []HistoryEntry{}}
	if len(records) == 0 {
		return h, nil
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.SessionID
	}
	sessions, err := a.store.GetSessions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}
	byID := make(map[string]database.Session, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
	}

	for _, r := range records {
		s, ok := byID[r.SessionID]
		if !ok {
			continue
		}
		if subjectID != nil && s.SubjectID != *subjectID {
			continue
		}
		if !inRange(s.SessionDate, dr) {
			continue
		}
		h.Records = append(h.Records, HistoryEntry{
			SessionID:             s.ID,
			SubjectID:             s.SubjectID,
			ClassName:             s.ClassName,
			Section:               s.Section,
			Semester:              s.Semester,
			SessionDate:           s.SessionDate,
			StartTime:             s.StartTime,
			Status:                r.Status,
			MarkedBy:              r.MarkedBy,
			ArrivalTime:           r.ArrivalTime,
			TimeDifferenceMinutes: r.TimeDifferenceMinutes,
			Confidence:            r.Confidence,
		})
	}

	slices.SortStableFunc(h.Records, func(x, y HistoryEntry) int {
		return cmp.Or(y.SessionDate.Compare(x.SessionDate), y.StartTime.Compare(x.StartTime))
	})

	st := &h.Statistics
	for _, e := range h.Records {
		st.TotalClasses++
		switch e.Status {
		case database.StatusAbsent:
			st.Absent++
		case database.StatusLate:
			st.Late++
			st.Attended++
		case database.StatusPresent:
			st.Attended++
		}
	}
	st.Percentage = Percentage(st.Attended, st.TotalClasses)
	return h, nil
}

// RefreshSummary recomputes the cached summary of identity for a subject and
// semester and stores it. Running it twice yields the same summary.
func (a *Aggregator) RefreshSummary(ctx context.Context, identity string, subjectID int64, semester int) (*database.Summary, error) {
	sessions, err := a.store.ListSessions(ctx, database.SessionFilter{SubjectID: &subjectID, Semester: semester})
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	inScope := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		inScope[s.ID] = true
	}

	records, err := a.store.ListRecordsByIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	st := StudentStats{Identity: identity}
	for _, r := range records {
		if inScope[r.SessionID] {
			st.add(r.Status)
		}
	}

	summary := database.Summary{
		Identity:     identity,
		SubjectID:    subjectID,
		Semester:     semester,
		TotalClasses: st.TotalClasses,
		PresentCount: st.Present,
		AbsentCount:  st.Absent,
		LateCount:    st.Late,
		Percentage:   Percentage(st.Present+st.Late, st.TotalClasses),
		UpdatedAt:    a.now().UTC(),
	}
	if err := a.store.UpsertSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("storing summary: %w", err)
	}
	a.logger.Debug("summary refreshed", "identity", identity, "subject", subjectID,
		"semester", semester, "percentage", summary.Percentage)
	return &summary, nil
}

// DailySession is one session of a day with its record counts.
type DailySession struct {
	Session database.Session `json:"session"`
	Total   int              `json:"total"`
	Present int              `json:"present"`
	Late    int              `json:"late"`
	Absent  int              `json:"absent"`
}

// DailyReport lists the sessions of a date, optionally for one section,
// ordered by start time.
func (a *Aggregator) DailyReport(ctx context.Context, date time.Time, section string) ([]DailySession, error) {
	day := truncateDay(date)
	sessions, err := a.store.ListSessions(ctx, database.SessionFilter{
		Section: strings.ToUpper(strings.TrimSpace(section)),
		From:    &day,
		To:      &day,
	})
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	report := make([]DailySession, len(sessions))
	if len(sessions) == 0 {
		return report, nil
	}
	ids := make([]string, len(sessions))
	index := make(map[string]int, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
		index[s.ID] = i
		report[i].Session = s
	}

	records, err := a.store.ListRecords(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	for _, r := range records {
		d := &report[index[r.SessionID]]
		d.Total++
		switch r.Status {
		case database.StatusPresent:
			d.Present++
		case database.StatusLate:
			d.Late++
		case database.StatusAbsent:
			d.Absent++
		}
	}
	return report, nil
}
