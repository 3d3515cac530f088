package handlers

import (
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// SessionResponse represents an attendance session in API responses
type SessionResponse struct {
	SessionID       string     `json:"session_id"`
	TeacherID       string     `json:"teacher_id"`
	SubjectID       int64      `json:"subject_id"`
	Section         string     `json:"section"`
	Semester        int        `json:"semester"`
	ClassName       string     `json:"class_name"`
	Status          string     `json:"status"`
	SessionDate     string     `json:"session_date"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
}

func sessionToResponse(s *database.Session) *SessionResponse {
	if s == nil {
		return nil
	}
	return &SessionResponse{
		SessionID:       s.ID,
		TeacherID:       s.TeacherID,
		SubjectID:       s.SubjectID,
		Section:         s.Section,
		Semester:        s.Semester,
		ClassName:       s.ClassName,
		Status:          string(s.Status),
		SessionDate:     s.SessionDate.Format(dateLayout),
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		DurationMinutes: s.DurationMinutes,
	}
}

// RecordResponse represents one attendance record in API responses
type RecordResponse struct {
	SessionID             string     `json:"session_id"`
	EnrollmentNumber      string     `json:"enrollment_number"`
	StudentName           string     `json:"student_name"`
	Status                string     `json:"status"`
	MarkedBy              string     `json:"marked_by"`
	ArrivalTime           *time.Time `json:"arrival_time,omitempty"`
	TimeDifferenceMinutes *int       `json:"time_difference_minutes,omitempty"`
	Confidence            *float64   `json:"recognition_confidence,omitempty"`
	MarkedAt              time.Time  `json:"marked_at"`
}

func recordToResponse(r *database.Record) *RecordResponse {
	if r == nil {
		return nil
	}
	return &RecordResponse{
		SessionID:             r.SessionID,
		EnrollmentNumber:      r.Identity,
		StudentName:           r.Name,
		Status:                string(r.Status),
		MarkedBy:              string(r.MarkedBy),
		ArrivalTime:           r.ArrivalTime,
		TimeDifferenceMinutes: r.TimeDifferenceMinutes,
		Confidence:            r.Confidence,
		MarkedAt:              r.MarkedAt,
	}
}

func recordsToResponse(records []database.Record) []RecordResponse {
	out := make([]RecordResponse, len(records))
	for i := range records {
		out[i] = *recordToResponse(&records[i])
	}
	return out
}

// RecognitionResponse is the result of a recognize-and-mark call.
type RecognitionResponse struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message"`
	Session     *SessionResponse `json:"session"`
	Recognition facematch.Result `json:"recognition"`
	Attendance  *RecordResponse  `json:"attendance,omitempty"`
}

func outcomeToResponse(o *attendance.Outcome) RecognitionResponse {
	return RecognitionResponse{
		Success:     o.Marked,
		Message:     o.Message,
		Session:     sessionToResponse(o.Session),
		Recognition: o.Recognition,
		Attendance:  recordToResponse(o.Record),
	}
}

// MultiRecognitionResponse is the result of a recognize-multiple-and-mark call.
type MultiRecognitionResponse struct {
	Success        bool                    `json:"success"`
	Message        string                  `json:"message,omitempty"`
	Session        *SessionResponse        `json:"session"`
	FacesDetected  int                     `json:"faces_detected"`
	Results        []facematch.Result      `json:"results"`
	MarkedStudents []attendance.MarkedFace `json:"marked_students"`
}

func multiOutcomeToResponse(o *attendance.MultiOutcome) MultiRecognitionResponse {
	results := o.Results
	if results == nil {
		results = []facematch.Result{}
	}
	marked := o.Marked
	if marked == nil {
		marked = []attendance.MarkedFace{}
	}
	return MultiRecognitionResponse{
		Success:        len(marked) > 0,
		Message:        o.Message,
		Session:        sessionToResponse(o.Session),
		FacesDetected:  o.FacesDetected,
		Results:        results,
		MarkedStudents: marked,
	}
}

// PersonResponse represents an enrolled person in API responses
type PersonResponse struct {
	Identity     string `json:"identity"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Section      string `json:"section,omitempty"`
	Semester     int    `json:"semester,omitempty"`
	Email        string `json:"email,omitempty"`
	Department   string `json:"department,omitempty"`
	DurationDays int    `json:"duration_days,omitempty"`
}

func personToResponse(p database.Person) PersonResponse {
	return PersonResponse{
		Identity:     p.Identity,
		Name:         p.Name,
		Role:         string(p.Role),
		Section:      p.Section,
		Semester:     p.Semester,
		Email:        p.Email,
		Department:   p.Department,
		DurationDays: p.DurationDays,
	}
}

// GalleryResponse describes a published gallery version
type GalleryResponse struct {
	Scope            string    `json:"scope"`
	Version          string    `json:"version"`
	EntityType       string    `json:"entity_type"`
	Path             string    `json:"path"`
	ParticipantCount int       `json:"participant_count"`
	EncodingCount    int       `json:"encoding_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func galleryToResponse(m database.GalleryMeta) GalleryResponse {
	return GalleryResponse{
		Scope:            m.Scope,
		Version:          m.Version,
		EntityType:       string(m.EntityType),
		Path:             m.Path,
		ParticipantCount: m.ParticipantCount,
		EncodingCount:    m.EncodingCount,
		UpdatedAt:        m.UpdatedAt,
	}
}
