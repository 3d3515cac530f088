package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceHandler handles session lifecycle and marking endpoints.
type AttendanceHandler struct {
	sessions   *attendance.SessionManager
	marking    *attendance.MarkingEngine
	recognizer *attendance.Recognizer
	logger     *slog.Logger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(sessions *attendance.SessionManager, marking *attendance.MarkingEngine,
	recognizer *attendance.Recognizer, logger *slog.Logger) *AttendanceHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AttendanceHandler{
		sessions:   sessions,
		marking:    marking,
		recognizer: recognizer,
		logger:     logger.With("component", "attendance-api"),
	}
}

// StartSessionRequest opens a session for a class and subject.
type StartSessionRequest struct {
	TeacherID       string `json:"teacher_id" validate:"required"`
	SubjectID       int64  `json:"subject_id" validate:"required,gt=0"`
	Section         string `json:"section" validate:"required"`
	Semester        int    `json:"semester" validate:"required,min=1,max=8"`
	ClassName       string `json:"class_name" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,min=1,max=600"`
}

// StartSession opens a session or returns the one already active.
func (h *AttendanceHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.sessions.Start(r.Context(), attendance.StartRequest{
		TeacherID:       req.TeacherID,
		SubjectID:       req.SubjectID,
		Section:         req.Section,
		Semester:        req.Semester,
		ClassName:       req.ClassName,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		respondAppError(w, h.logger, "failed to start session", err)
		return
	}

	message := "Attendance session started"
	status := http.StatusCreated
	if !res.Created {
		message = "Session already active"
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]any{
		"success":        true,
		"message":        message,
		"created":        res.Created,
		"session":        sessionToResponse(res.Session),
		"total_students": res.RosterSize,
	})
}

// SessionIDRequest identifies a session.
type SessionIDRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// EndSession completes a session.
func (h *AttendanceHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	var req SessionIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.sessions.End(r.Context(), req.SessionID)
	if err != nil {
		respondAppError(w, h.logger, "failed to end session", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Attendance session ended",
		"session": sessionToResponse(session),
	})
}

// ActiveSession returns the active session of a class with its records.
func (h *AttendanceHandler) ActiveSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	section, semester, err := classParams(q.Get("section"), q.Get("semester"))
	if err != nil {
		respondAppError(w, h.logger, "invalid class", err)
		return
	}
	subjectID, err := optionalInt64(q.Get("subject_id"), "subject_id")
	if err != nil {
		respondAppError(w, h.logger, "invalid subject", err)
		return
	}

	session, err := h.sessions.GetActive(r.Context(), section, semester, subjectID)
	if err != nil {
		respondAppError(w, h.logger, "failed to find active session", err)
		return
	}
	if session == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "No active session found",
		})
		return
	}

	records, err := h.sessions.Records(r.Context(), session.ID)
	if err != nil {
		respondAppError(w, h.logger, "failed to load records", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"session":            sessionToResponse(session),
		"attendance_records": recordsToResponse(records),
	})
}

// SessionRecords returns every record of a session ordered by name.
func (h *AttendanceHandler) SessionRecords(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing session ID")
		return
	}

	records, err := h.sessions.Records(r.Context(), sessionID)
	if err != nil {
		respondAppError(w, h.logger, "failed to load records", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(records),
		"records": recordsToResponse(records),
	})
}

// MarkPresentRequest marks one identity present in a session.
type MarkPresentRequest struct {
	SessionID        string  `json:"session_id" validate:"required"`
	EnrollmentNumber string  `json:"enrollment_number" validate:"required"`
	Confidence       float64 `json:"confidence" validate:"min=0,max=1"`
	MarkedBy         string  `json:"marked_by" validate:"omitempty,oneof=system manual teacher_override"`
}

// MarkPresent records an arrival; the status is classified from the session start.
func (h *AttendanceHandler) MarkPresent(w http.ResponseWriter, r *http.Request) {
	var req MarkPresentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	markedBy := database.MarkedBy(req.MarkedBy)
	if markedBy == "" {
		markedBy = database.MarkedByManual
	}
	record, err := h.marking.MarkPresent(r.Context(), req.SessionID, req.EnrollmentNumber, req.Confidence, markedBy)
	if err != nil {
		respondAppError(w, h.logger, "failed to mark attendance", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Attendance marked as " + string(record.Status),
		"attendance": recordToResponse(record),
	})
}

// MarkAbsentRequest resets one identity to absent.
type MarkAbsentRequest struct {
	SessionID        string `json:"session_id" validate:"required"`
	EnrollmentNumber string `json:"enrollment_number" validate:"required"`
}

// MarkAbsent overrides a record back to absent.
func (h *AttendanceHandler) MarkAbsent(w http.ResponseWriter, r *http.Request) {
	var req MarkAbsentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	record, err := h.marking.MarkAbsent(r.Context(), req.SessionID, req.EnrollmentNumber)
	if err != nil {
		respondAppError(w, h.logger, "failed to mark attendance", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Attendance marked as absent",
		"attendance": recordToResponse(record),
	})
}

// RecognizeAndMark identifies the face in an uploaded capture and marks it
// in the active session of the class. Without an active session it answers
// 409 instead of a 200 with success false; every recognition failure after
// that is a 200 outcome.
func (h *AttendanceHandler) RecognizeAndMark(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	section, semester, err := classParams(r.FormValue("section"), r.FormValue("semester"))
	if err != nil {
		respondAppError(w, h.logger, "invalid class", err)
		return
	}
	image, ok := readImage(w, r)
	if !ok {
		return
	}

	outcome, err := h.recognizer.RecognizeAndMark(r.Context(), section, semester, image)
	if err != nil {
		respondAppError(w, h.logger, "recognition failed", err)
		return
	}
	h.logger.Debug("capture recognized", "section", sanitizeForLog(section), "identity", outcome.Recognition.Identity,
		"marked", outcome.Marked)
	respondJSON(w, http.StatusOK, outcomeToResponse(outcome))
}

// RecognizeMultipleAndMark marks every recognized face of a group capture.
// Like RecognizeAndMark it answers 409 when the class has no active session.
func (h *AttendanceHandler) RecognizeMultipleAndMark(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	section, semester, err := classParams(r.FormValue("section"), r.FormValue("semester"))
	if err != nil {
		respondAppError(w, h.logger, "invalid class", err)
		return
	}
	image, ok := readImage(w, r)
	if !ok {
		return
	}

	outcome, err := h.recognizer.RecognizeMultipleAndMark(r.Context(), section, semester, image)
	if err != nil {
		respondAppError(w, h.logger, "recognition failed", err)
		return
	}
	respondJSON(w, http.StatusOK, multiOutcomeToResponse(outcome))
}
