package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/stats"
)

const defaultLowAttendanceThreshold = 75.0

// StatsHandler handles attendance reporting endpoints.
type StatsHandler struct {
	aggregator *stats.Aggregator
	logger     *slog.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(aggregator *stats.Aggregator, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StatsHandler{
		aggregator: aggregator,
		logger:     logger.With("component", "stats-api"),
	}
}

func dateRange(r *http.Request) (stats.DateRange, error) {
	from, err := optionalDate(r.URL.Query().Get("start_date"), "start_date")
	if err != nil {
		return stats.DateRange{}, err
	}
	to, err := optionalDate(r.URL.Query().Get("end_date"), "end_date")
	if err != nil {
		return stats.DateRange{}, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return stats.DateRange{}, apperr.Validation("end_date is before start_date")
	}
	return stats.DateRange{From: from, To: to}, nil
}

// StudentHistory returns the attendance history of one identity.
func (h *StatsHandler) StudentHistory(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if identity == "" {
		respondError(w, http.StatusBadRequest, "missing enrollment number")
		return
	}
	subjectID, err := optionalInt64(r.URL.Query().Get("subject_id"), "subject_id")
	if err != nil {
		respondAppError(w, h.logger, "invalid subject", err)
		return
	}
	dr, err := dateRange(r)
	if err != nil {
		respondAppError(w, h.logger, "invalid date range", err)
		return
	}

	history, err := h.aggregator.StudentHistory(r.Context(), identity, subjectID, dr)
	if err != nil {
		respondAppError(w, h.logger, "failed to load attendance history", err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// SubjectStats returns per-student statistics of a class in one subject.
func (h *StatsHandler) SubjectStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	section, semester, err := classParams(q.Get("section"), q.Get("semester"))
	if err != nil {
		respondAppError(w, h.logger, "invalid class", err)
		return
	}
	subjectID, err := requiredInt64(q.Get("subject_id"), "subject_id")
	if err != nil {
		respondAppError(w, h.logger, "invalid subject", err)
		return
	}
	dr, err := dateRange(r)
	if err != nil {
		respondAppError(w, h.logger, "invalid date range", err)
		return
	}

	result, err := h.aggregator.SubjectStats(r.Context(), section, semester, subjectID, dr)
	if err != nil {
		respondAppError(w, h.logger, "failed to compute statistics", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"section":    section,
		"semester":   semester,
		"subject_id": subjectID,
		"statistics": result,
	})
}

// LowAttendance lists students below a percentage threshold.
func (h *StatsHandler) LowAttendance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	section, semester, err := classParams(q.Get("section"), q.Get("semester"))
	if err != nil {
		respondAppError(w, h.logger, "invalid class", err)
		return
	}
	subjectID, err := requiredInt64(q.Get("subject_id"), "subject_id")
	if err != nil {
		respondAppError(w, h.logger, "invalid subject", err)
		return
	}
	threshold := defaultLowAttendanceThreshold
	if v := q.Get("threshold"); v != "" {
		threshold, err = strconv.ParseFloat(v, 64)
		if err != nil || threshold < 0 || threshold > 100 {
			respondError(w, http.StatusBadRequest, "threshold must be between 0 and 100")
			return
		}
	}

	students, err := h.aggregator.LowAttendance(r.Context(), section, semester, subjectID, threshold)
	if err != nil {
		respondAppError(w, h.logger, "failed to compute statistics", err)
		return
	}
	if students == nil {
		students = []stats.StudentStats{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"threshold": threshold,
		"count":     len(students),
		"students":  students,
	})
}

// DailySessionResponse is one session of a daily report.
type DailySessionResponse struct {
	Session *SessionResponse `json:"session"`
	Total   int              `json:"total_students"`
	Present int              `json:"present"`
	Late    int              `json:"late"`
	Absent  int              `json:"absent"`
}

// DailyReport summarises every session held on a date.
func (h *StatsHandler) DailyReport(w http.ResponseWriter, r *http.Request) {
	date, err := optionalDate(r.URL.Query().Get("date"), "date")
	if err != nil {
		respondAppError(w, h.logger, "invalid date", err)
		return
	}
	day := time.Now().UTC()
	if date != nil {
		day = *date
	}
	section := gallery.NormalizeSection(r.URL.Query().Get("section"))

	report, err := h.aggregator.DailyReport(r.Context(), day, section)
	if err != nil {
		respondAppError(w, h.logger, "failed to build daily report", err)
		return
	}
	sessions := make([]DailySessionResponse, len(report))
	for i := range report {
		sessions[i] = DailySessionResponse{
			Session: sessionToResponse(&report[i].Session),
			Total:   report[i].Total,
			Present: report[i].Present,
			Late:    report[i].Late,
			Absent:  report[i].Absent,
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":     day.Format(dateLayout),
		"section":  section,
		"sessions": sessions,
	})
}

// UpdateSummaryRequest selects the summary to recompute.
type UpdateSummaryRequest struct {
	EnrollmentNumber string `json:"enrollment_number" validate:"required"`
	SubjectID        int64  `json:"subject_id" validate:"required,gt=0"`
	Semester         int    `json:"semester" validate:"required,min=1,max=8"`
}

// UpdateSummary recomputes the cached summary of one student in one subject.
func (h *StatsHandler) UpdateSummary(w http.ResponseWriter, r *http.Request) {
	var req UpdateSummaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	summary, err := h.aggregator.RefreshSummary(r.Context(), strings.TrimSpace(req.EnrollmentNumber), req.SubjectID, req.Semester)
	if err != nil {
		respondAppError(w, h.logger, "failed to update summary", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Attendance summary updated",
		"summary": map[string]any{
			"enrollment_number": summary.Identity,
			"subject_id":        summary.SubjectID,
			"semester":          summary.Semester,
			"total_classes":     summary.TotalClasses,
			"present":           summary.PresentCount,
			"absent":            summary.AbsentCount,
			"late":              summary.LateCount,
			"percentage":        summary.Percentage,
		},
	})
}
