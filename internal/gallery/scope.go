package gallery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// TeachersScope is the key of the gallery holding every teacher.
const TeachersScope = "teachers"

var romanSemesters = map[string]int{
	"I": 1, "II": 2, "III": 3, "IV": 4,
	"V": 5, "VI": 6, "VII": 7, "VIII": 8,
}

// ParseSemester accepts 1-8 or the roman numerals I-VIII in any case.
func ParseSemester(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 8 {
			return 0, apperr.Validation("semester %d out of range 1-8", n)
		}
		return n, nil
	}
	if n, ok := romanSemesters[strings.ToUpper(s)]; ok {
		return n, nil
	}
	return 0, apperr.Validation("invalid semester value %q, must be 1-8 or I-VIII", s)
}

// NormalizeSection trims and upper-cases a section name.
func NormalizeSection(section string) string {
	return strings.ToUpper(strings.TrimSpace(section))
}

// Scope identifies which population a gallery covers.
type Scope struct {
	Section  string
	Semester int
}

// Teachers reports whether the scope is the teachers gallery.
func (s Scope) Teachers() bool {
	return s.Section == "" || s.Semester == 0
}

// Key returns "teachers" or "{SECTION}_{semester}".
func (s Scope) Key() string {
	if s.Teachers() {
		return TeachersScope
	}
	return fmt.Sprintf("%s_%d", s.Section, s.Semester)
}

// EntityType is the role every gallery entry of the scope is built from.
func (s Scope) EntityType() database.Role {
	if s.Teachers() {
		return database.RoleTeacher
	}
	return database.RoleStudent
}

func (s Scope) String() string {
	return s.Key()
}

// NewScope builds a scope from raw request values. An empty section or
// semester selects the teachers gallery.
func NewScope(section, semester string) (Scope, error) {
	section = NormalizeSection(section)
	semester = strings.TrimSpace(semester)
	if section == "" || semester == "" {
		return Scope{}, nil
	}
	n, err := ParseSemester(semester)
	if err != nil {
		return Scope{}, err
	}
	return Scope{Section: section, Semester: n}, nil
}

// ParseScopeKey reverses Scope.Key. An empty key selects teachers.
func ParseScopeKey(key string) (Scope, error) {
	if key == "" || strings.EqualFold(key, TeachersScope) {
		return Scope{}, nil
	}
	i := strings.LastIndex(key, "_")
	if i <= 0 || i == len(key)-1 {
		return Scope{}, apperr.Validation("invalid gallery scope %q", key)
	}
	return NewScope(key[:i], key[i+1:])
}
