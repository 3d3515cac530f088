package database

import "testing"

func TestIsGuestIdentity(t *testing.T) {
	tests := []struct {
		identity string
		want     bool
	}{
		{"guest_20250101_123", true},
		{"guest_", true},
		{"GUEST_20250101_123", false},
		{"0801CS211001", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.identity, func(t *testing.T) {
			if got := IsGuestIdentity(tc.identity); got != tc.want {
				t.Errorf("IsGuestIdentity(%q) = %v, want %v", tc.identity, got, tc.want)
			}
		})
	}
}

func TestRecordStatusAttended(t *testing.T) {
	if StatusAbsent.Attended() {
		t.Error("absent should not count as attended")
	}
	if !StatusPresent.Attended() || !StatusLate.Attended() {
		t.Error("present and late should count as attended")
	}
}

func TestMarkedByValid(t *testing.T) {
	for _, m := range []MarkedBy{MarkedBySystem, MarkedByManual, MarkedByOverride} {
		if !m.Valid() {
			t.Errorf("%q should be valid", m)
		}
	}
	if MarkedBy("robot").Valid() {
		t.Error("unknown marker should be invalid")
	}
}
