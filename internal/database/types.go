package database

import (
	"strings"
	"time"
)

// Role identifies what kind of person an identity key belongs to.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleGuest   Role = "guest"
)

// GuestPrefix marks guest identity keys inside student galleries.
const GuestPrefix = "guest_"

// IsGuestIdentity reports whether the identity key belongs to a guest.
func IsGuestIdentity(identity string) bool {
	return strings.HasPrefix(identity, GuestPrefix)
}

// Person is an enrolled student, teacher or guest.
type Person struct {
	Identity     string // enrollment number, teacher id or guest token
	Name         string
	Role         Role
	Section      string // students, optional for guests
	Semester     int    // students, optional for guests
	Email        string
	Department   string // teachers
	DurationDays int    // guests
	CreatedAt    time.Time
}

// PersonFilter selects people by role and class. Zero values are not filtered.
type PersonFilter struct {
	Roles    []Role
	Section  string
	Semester int
}

// EnrollmentImage references one stored enrollment photo.
type EnrollmentImage struct {
	Identity  string
	Position  int
	Bucket    string
	Path      string
	CreatedAt time.Time
}

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// Session is one attendance session for a (section, semester, subject).
type Session struct {
	ID              string
	TeacherID       string
	SubjectID       int64
	Section         string
	Semester        int
	ClassName       string
	Status          SessionStatus
	SessionDate     time.Time // date part of StartTime, UTC
	StartTime       time.Time
	EndTime         *time.Time
	DurationMinutes int // informational only
	CreatedAt       time.Time
}

// SessionFilter selects sessions. Zero values are not filtered; From and To are inclusive dates.
type SessionFilter struct {
	Section   string
	Semester  int
	SubjectID *int64
	Status    SessionStatus
	From      *time.Time
	To        *time.Time
}

type RecordStatus string

const (
	StatusAbsent  RecordStatus = "absent"
	StatusPresent RecordStatus = "present"
	StatusLate    RecordStatus = "late"
)

// Attended reports whether the status counts towards attendance.
func (s RecordStatus) Attended() bool {
	return s == StatusPresent || s == StatusLate
}

type MarkedBy string

const (
	MarkedBySystem   MarkedBy = "system"
	MarkedByManual   MarkedBy = "manual"
	MarkedByOverride MarkedBy = "teacher_override"
)

// Valid reports whether m is a known marker.
func (m MarkedBy) Valid() bool {
	switch m {
	case MarkedBySystem, MarkedByManual, MarkedByOverride:
		return true
	}
	return false
}

// Record is the attendance of one identity in one session.
type Record struct {
	SessionID             string
	Identity              string
	Name                  string // display name snapshot at session start
	Status                RecordStatus
	MarkedBy              MarkedBy
	ArrivalTime           *time.Time
	TimeDifferenceMinutes *int
	Confidence            *float64
	MarkedAt              time.Time
	Version               int
}

// RecordUpdate carries the fields rewritten by a mark operation.
type RecordUpdate struct {
	SessionID             string
	Identity              string
	Status                RecordStatus
	MarkedBy              MarkedBy
	ArrivalTime           *time.Time
	TimeDifferenceMinutes *int
	Confidence            *float64
	MarkedAt              time.Time
}

// Summary is the cached attendance aggregate per (identity, subject, semester).
type Summary struct {
	Identity     string
	SubjectID    int64
	Semester     int
	TotalClasses int
	PresentCount int
	AbsentCount  int
	LateCount    int
	Percentage   float64
	UpdatedAt    time.Time
}

// GalleryMeta points a scope at its currently published gallery version.
type GalleryMeta struct {
	Scope            string
	Version          string
	EntityType       Role
	Bucket           string
	Path             string
	ParticipantCount int
	EncodingCount    int
	UpdatedAt        time.Time
}

// GalleryEntry is one labelled embedding of a published gallery version.
type GalleryEntry struct {
	Position  int
	Identity  string
	Name      string
	Embedding []float32
}

// NearestEntry is a gallery entry with its distance to a probe.
type NearestEntry struct {
	GalleryEntry
	Distance float64
}
