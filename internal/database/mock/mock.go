// Package mock provides an in-memory implementation of the database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

type recordKey struct {
	sessionID string
	identity  string
}

type summaryKey struct {
	identity  string
	subjectID int64
	semester  int
}

// MockStore is an in-memory implementation of database.Store
type MockStore struct {
	mu         sync.Mutex
	people     map[string]database.Person
	images     map[string][]database.EnrollmentImage
	sessions   map[string]database.Session
	records    map[recordKey]database.Record
	summaries  map[summaryKey]database.Summary
	galleries  map[string]database.GalleryMeta
	entries    map[string][]database.GalleryEntry
	publishSeq int

	// Error injection
	InsertSessionError error
	InsertRecordsError error
	GetSessionError    error
	UpdateRecordError  error
	ListSessionsError  error
	ListRecordsError   error
	ListPeopleError    error
	PublishError       error
	GetGalleryError    error
	UpsertSummaryError error
}

var _ database.Store = (*MockStore)(nil)

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		people:    make(map[string]database.Person),
		images:    make(map[string][]database.EnrollmentImage),
		sessions:  make(map[string]database.Session),
		records:   make(map[recordKey]database.Record),
		summaries: make(map[summaryKey]database.Summary),
		galleries: make(map[string]database.GalleryMeta),
		entries:   make(map[string][]database.GalleryEntry),
	}
}

// AddPerson adds a person to the roster
func (m *MockStore) AddPerson(p database.Person) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people[p.Identity] = p
}

// AddSession stores a session as-is, bypassing the single-active check
func (m *MockStore) AddSession(s database.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// AddRecord stores a record as-is
func (m *MockStore) AddRecord(r database.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{r.SessionID, r.Identity}] = r
}

// SessionCount returns the number of stored sessions
func (m *MockStore) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RecordCount returns the number of records of a session
func (m *MockStore) RecordCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.records {
		if k.sessionID == sessionID {
			n++
		}
	}
	return n
}

// PublishCount returns how many galleries were published
func (m *MockStore) PublishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishSeq
}

// sessionTx stages writes until the transaction callback returns.
type sessionTx struct {
	m        *MockStore
	sessions map[string]database.Session
	records  []database.Record
}

func (tx *sessionTx) InsertActiveSession(_ context.Context, s *database.Session) (*database.Session, bool, error) {
	if tx.m.InsertSessionError != nil {
		return nil, false, tx.m.InsertSessionError
	}
	for _, existing := range tx.allSessions() {
		if existing.Status == database.SessionActive &&
			existing.Section == s.Section &&
			existing.Semester == s.Semester &&
			existing.SubjectID == s.SubjectID {
			return &existing, false, nil
		}
	}
	stored := *s
	tx.sessions[stored.ID] = stored
	return &stored, true, nil
}

func (tx *sessionTx) InsertRecords(_ context.Context, records []database.Record) error {
	if tx.m.InsertRecordsError != nil {
		return tx.m.InsertRecordsError
	}
	for _, r := range records {
		if _, ok := tx.m.records[recordKey{r.SessionID, r.Identity}]; ok {
			return fmt.Errorf("duplicate record %s/%s", r.SessionID, r.Identity)
		}
	}
	tx.records = append(tx.records, records...)
	return nil
}

func (tx *sessionTx) allSessions() []database.Session {
	all := make([]database.Session, 0, len(tx.m.sessions)+len(tx.sessions))
	for _, s := range tx.m.sessions {
		all = append(all, s)
	}
	for _, s := range tx.sessions {
		all = append(all, s)
	}
	return all
}

// InSessionTx runs fn while holding the store lock and applies its writes only on success
func (m *MockStore) InSessionTx(ctx context.Context, fn func(tx database.SessionTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &sessionTx{m: m, sessions: make(map[string]database.Session)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, s := range tx.sessions {
		m.sessions[id] = s
	}
	for _, r := range tx.records {
		m.records[recordKey{r.SessionID, r.Identity}] = r
	}
	return nil
}

// GetSession retrieves a session by ID
func (m *MockStore) GetSession(_ context.Context, id string) (*database.Session, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// GetSessions retrieves sessions by IDs
func (m *MockStore) GetSessions(_ context.Context, ids []string) ([]database.Session, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Session
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// FindActiveSession returns the most recently started matching active session
func (m *MockStore) FindActiveSession(_ context.Context, section string, semester int, subjectID *int64) (*database.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *database.Session
	for _, s := range m.sessions {
		if s.Status != database.SessionActive || s.Section != section || s.Semester != semester {
			continue
		}
		if subjectID != nil && s.SubjectID != *subjectID {
			continue
		}
		if best == nil || s.StartTime.After(best.StartTime) {
			best = &s
		}
	}
	return best, nil
}

// CompleteSession marks an active session completed
func (m *MockStore) CompleteSession(_ context.Context, id string, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status == database.SessionCompleted {
		return nil
	}
	s.Status = database.SessionCompleted
	s.EndTime = &end
	m.sessions[id] = s
	return nil
}

// ListSessions returns sessions matching the filter ordered by start time
func (m *MockStore) ListSessions(_ context.Context, f database.SessionFilter) ([]database.Session, error) {
	if m.ListSessionsError != nil {
		return nil, m.ListSessionsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Session
	for _, s := range m.sessions {
		if matchSession(s, f) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b database.Session) int {
		return cmp.Or(a.StartTime.Compare(b.StartTime), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func matchSession(s database.Session, f database.SessionFilter) bool {
	if f.Section != "" && s.Section != f.Section {
		return false
	}
	if f.Semester != 0 && s.Semester != f.Semester {
		return false
	}
	if f.SubjectID != nil && s.SubjectID != *f.SubjectID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.From != nil && s.SessionDate.Before(dateOnly(*f.From)) {
		return false
	}
	if f.To != nil && s.SessionDate.After(dateOnly(*f.To)) {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// GetRecord retrieves a single record
func (m *MockStore) GetRecord(_ context.Context, sessionID, identity string) (*database.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey{sessionID, identity}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// UpdateRecord rewrites the status fields of an existing record
func (m *MockStore) UpdateRecord(_ context.Context, u database.RecordUpdate) (*database.Record, error) {
	if m.UpdateRecordError != nil {
		return nil, m.UpdateRecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey{u.SessionID, u.Identity}
	r, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	r.Status = u.Status
	r.MarkedBy = u.MarkedBy
	r.ArrivalTime = u.ArrivalTime
	r.TimeDifferenceMinutes = u.TimeDifferenceMinutes
	r.Confidence = u.Confidence
	r.MarkedAt = u.MarkedAt
	r.Version++
	m.records[key] = r
	return &r, nil
}

// ListRecords returns records of the given sessions ordered by session and identity
func (m *MockStore) ListRecords(_ context.Context, sessionIDs []string) ([]database.Record, error) {
	if m.ListRecordsError != nil {
		return nil, m.ListRecordsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Record
	for k, r := range m.records {
		if slices.Contains(sessionIDs, k.sessionID) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, compareRecords)
	return out, nil
}

// ListRecordsByIdentity returns all records of one identity
func (m *MockStore) ListRecordsByIdentity(_ context.Context, identity string) ([]database.Record, error) {
	if m.ListRecordsError != nil {
		return nil, m.ListRecordsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Record
	for k, r := range m.records {
		if k.identity == identity {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, compareRecords)
	return out, nil
}

func compareRecords(a, b database.Record) int {
	return cmp.Or(cmp.Compare(a.SessionID, b.SessionID), cmp.Compare(a.Identity, b.Identity))
}

// ListPeople returns people matching the filter ordered by identity
func (m *MockStore) ListPeople(_ context.Context, f database.PersonFilter) ([]database.Person, error) {
	if m.ListPeopleError != nil {
		return nil, m.ListPeopleError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Person
	for _, p := range m.people {
		if len(f.Roles) > 0 && !slices.Contains(f.Roles, p.Role) {
			continue
		}
		if f.Section != "" && p.Section != f.Section {
			continue
		}
		if f.Semester != 0 && p.Semester != f.Semester {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b database.Person) int { return cmp.Compare(a.Identity, b.Identity) })
	return out, nil
}

// GetPerson retrieves a person by identity key
func (m *MockStore) GetPerson(_ context.Context, identity string) (*database.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.people[identity]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SavePerson inserts or replaces a person
func (m *MockStore) SavePerson(_ context.Context, p database.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people[p.Identity] = p
	return nil
}

// AddEnrollmentImages appends image references
func (m *MockStore) AddEnrollmentImages(_ context.Context, images []database.EnrollmentImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, img := range images {
		existing := m.images[img.Identity]
		i := slices.IndexFunc(existing, func(e database.EnrollmentImage) bool { return e.Position == img.Position })
		if i >= 0 {
			existing[i] = img
			continue
		}
		m.images[img.Identity] = append(existing, img)
	}
	return nil
}

// ListEnrollmentImages returns image references ordered by identity and position
func (m *MockStore) ListEnrollmentImages(_ context.Context, identities []string) ([]database.EnrollmentImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.EnrollmentImage
	for _, id := range identities {
		out = append(out, m.images[id]...)
	}
	slices.SortStableFunc(out, func(a, b database.EnrollmentImage) int {
		return cmp.Or(cmp.Compare(a.Identity, b.Identity), cmp.Compare(a.Position, b.Position))
	})
	return out, nil
}

// UpsertSummary inserts or replaces a summary
func (m *MockStore) UpsertSummary(_ context.Context, s database.Summary) error {
	if m.UpsertSummaryError != nil {
		return m.UpsertSummaryError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[summaryKey{s.Identity, s.SubjectID, s.Semester}] = s
	return nil
}

// GetSummary returns a stored summary
func (m *MockStore) GetSummary(_ context.Context, identity string, subjectID int64, semester int) (*database.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[summaryKey{identity, subjectID, semester}]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// PublishGallery stores the entries and swaps the scope to the new version
func (m *MockStore) PublishGallery(_ context.Context, meta database.GalleryMeta, entries []database.GalleryEntry) error {
	if m.PublishError != nil {
		return m.PublishError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[meta.Version] = slices.Clone(entries)
	m.galleries[meta.Scope] = meta
	m.publishSeq++
	return nil
}

// GetGalleryMeta returns the published version of a scope
func (m *MockStore) GetGalleryMeta(_ context.Context, scope string) (*database.GalleryMeta, error) {
	if m.GetGalleryError != nil {
		return nil, m.GetGalleryError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.galleries[scope]
	if !ok {
		return nil, nil
	}
	return &meta, nil
}

// ListGalleryMeta returns all published scopes ordered by scope
func (m *MockStore) ListGalleryMeta(_ context.Context) ([]database.GalleryMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.GalleryMeta, 0, len(m.galleries))
	for _, g := range m.galleries {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b database.GalleryMeta) int { return cmp.Compare(a.Scope, b.Scope) })
	return out, nil
}

// GalleryEntries returns the entries of a version
func (m *MockStore) GalleryEntries(_ context.Context, version string) ([]database.GalleryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries[version]), nil
}

// NearestEntry scans the entries of a version for the closest one
func (m *MockStore) NearestEntry(_ context.Context, version string, probe []float32, metric database.Metric) (*database.NearestEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *database.NearestEntry
	for _, e := range m.entries[version] {
		d := metric.Distance(probe, e.Embedding)
		if best == nil || d < best.Distance {
			best = &database.NearestEntry{GalleryEntry: e, Distance: d}
		}
	}
	return best, nil
}
