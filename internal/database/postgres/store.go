package postgres

import "github.com/kozaktomas/face-attendance/internal/database"

// Store bundles the repositories into a database.Store.
type Store struct {
	*SessionRepository
	*RecordRepository
	*RosterRepository
	*SummaryRepository
	*GalleryRepository
}

var _ database.Store = (*Store)(nil)

// NewStore creates every repository on top of one pool.
func NewStore(pool *Pool) *Store {
	return &Store{
		SessionRepository: NewSessionRepository(pool),
		RecordRepository:  NewRecordRepository(pool),
		RosterRepository:  NewRosterRepository(pool),
		SummaryRepository: NewSummaryRepository(pool),
		GalleryRepository: NewGalleryRepository(pool),
	}
}
