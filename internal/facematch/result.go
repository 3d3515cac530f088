// Package facematch identifies probe embeddings against a published gallery.
package facematch

import (
	"math"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Role is the kind of person a match result refers to.
type Role string

const (
	RoleTeacher Role = "Teacher"
	RoleStudent Role = "Student"
	RoleGuest   Role = "Guest"
	RoleUnknown Role = "Unknown"
)

// UnknownName is reported for probes that matched nobody.
const UnknownName = "Unknown"

// Result is the outcome of matching one probe. Distance is nil when no
// gallery entry was comparable with the probe.
type Result struct {
	Identity   string    `json:"identity,omitempty"`
	Name       string    `json:"name"`
	Role       Role      `json:"role"`
	Confidence float64   `json:"confidence"`
	Distance   *float64  `json:"distance,omitempty"`
	Matched    bool      `json:"matched"`
	Location   *Location `json:"location,omitempty"`
}

// InferRole derives the role of a gallery identity. Teacher galleries only
// hold teachers; student galleries mark guests by the identity prefix.
func InferRole(entityType database.Role, identity string) Role {
	switch {
	case entityType == database.RoleTeacher:
		return RoleTeacher
	case database.IsGuestIdentity(identity):
		return RoleGuest
	default:
		return RoleStudent
	}
}

// ToDatabaseRole maps a result role back to the stored role.
func (r Role) ToDatabaseRole() (database.Role, bool) {
	switch r {
	case RoleTeacher:
		return database.RoleTeacher, true
	case RoleStudent:
		return database.RoleStudent, true
	case RoleGuest:
		return database.RoleGuest, true
	}
	return "", false
}

// finite returns nil for distances JSON cannot carry.
func finite(d float64) *float64 {
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return nil
	}
	return &d
}

func unknown(distance float64) Result {
	return Result{Name: UnknownName, Role: RoleUnknown, Distance: finite(distance)}
}

func matched(entityType database.Role, e *database.NearestEntry) Result {
	return Result{
		Identity:   e.Identity,
		Name:       e.Name,
		Role:       InferRole(entityType, e.Identity),
		Confidence: 1 - e.Distance,
		Distance:   finite(e.Distance),
		Matched:    true,
	}
}
