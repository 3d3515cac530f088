package database

import (
	"context"
	"time"
)

// SessionTx is the unit of work used to open a session together with its roster snapshot.
type SessionTx interface {
	// InsertActiveSession inserts s unless an active session already exists for
	// the same (section, semester, subject). It returns the stored session and
	// whether this call created it.
	InsertActiveSession(ctx context.Context, s *Session) (*Session, bool, error)
	// InsertRecords inserts the initial records of a freshly created session
	InsertRecords(ctx context.Context, records []Record) error
}

// SessionStore provides access to attendance sessions
type SessionStore interface {
	// InSessionTx runs fn atomically; any error rolls back every write made through tx
	InSessionTx(ctx context.Context, fn func(tx SessionTx) error) error
	// GetSession retrieves a session by ID, returns nil if not found
	GetSession(ctx context.Context, id string) (*Session, error)
	// GetSessions retrieves the sessions with the given IDs in no particular order
	GetSessions(ctx context.Context, ids []string) ([]Session, error)
	// FindActiveSession returns the most recently started active session, nil if none
	FindActiveSession(ctx context.Context, section string, semester int, subjectID *int64) (*Session, error)
	// CompleteSession moves an active session to completed; no-op for completed sessions
	CompleteSession(ctx context.Context, id string, end time.Time) error
	// ListSessions returns sessions matching the filter ordered by start time
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)
}

// RecordStore provides access to attendance records
type RecordStore interface {
	// GetRecord retrieves a single record, returns nil if not found
	GetRecord(ctx context.Context, sessionID, identity string) (*Record, error)
	// UpdateRecord rewrites the status fields of an existing record in a single
	// statement and bumps its version. Returns nil if the record does not exist.
	UpdateRecord(ctx context.Context, u RecordUpdate) (*Record, error)
	// ListRecords returns the records of the given sessions
	ListRecords(ctx context.Context, sessionIDs []string) ([]Record, error)
	// ListRecordsByIdentity returns every record of one identity
	ListRecordsByIdentity(ctx context.Context, identity string) ([]Record, error)
}

// RosterStore provides access to enrolled people and their enrollment images
type RosterStore interface {
	// ListPeople returns people matching the filter ordered by identity
	ListPeople(ctx context.Context, filter PersonFilter) ([]Person, error)
	// GetPerson retrieves a person by identity key, returns nil if not found
	GetPerson(ctx context.Context, identity string) (*Person, error)
	// SavePerson inserts or updates a person
	SavePerson(ctx context.Context, p Person) error
	// AddEnrollmentImages appends image references for an identity
	AddEnrollmentImages(ctx context.Context, images []EnrollmentImage) error
	// ListEnrollmentImages returns the image references of the identities ordered by identity and position
	ListEnrollmentImages(ctx context.Context, identities []string) ([]EnrollmentImage, error)
}

// SummaryStore persists attendance summaries
type SummaryStore interface {
	// UpsertSummary inserts or replaces the summary for its key
	UpsertSummary(ctx context.Context, s Summary) error
	// GetSummary returns the summary for the key, nil if not found
	GetSummary(ctx context.Context, identity string, subjectID int64, semester int) (*Summary, error)
}

// GalleryStore tracks which gallery version is published for a scope
type GalleryStore interface {
	// PublishGallery stores the entries of a new version and swaps the scope to it atomically
	PublishGallery(ctx context.Context, meta GalleryMeta, entries []GalleryEntry) error
	// GetGalleryMeta returns the published version of a scope, nil if none
	GetGalleryMeta(ctx context.Context, scope string) (*GalleryMeta, error)
	// ListGalleryMeta returns all published scopes
	ListGalleryMeta(ctx context.Context) ([]GalleryMeta, error)
}

// GalleryEntryReader exposes the entries of published versions
type GalleryEntryReader interface {
	// GalleryEntries returns the entries of a version in gallery order
	GalleryEntries(ctx context.Context, version string) ([]GalleryEntry, error)
	// NearestEntry returns the closest entry of a version, nil if the version has no entries
	NearestEntry(ctx context.Context, version string, probe []float32, metric Metric) (*NearestEntry, error)
}

// Store groups everything the attendance services need.
type Store interface {
	SessionStore
	RecordStore
	RosterStore
	SummaryStore
	GalleryStore
	GalleryEntryReader
}
