package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

// GalleryRepository stores published gallery versions and their entries
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a new PostgreSQL gallery repository
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

// PublishGallery inserts the entries of the new version and points the scope
// at it in one transaction. The replaced version keeps its entries until the
// next publish so matches already running against it still find candidates.
func (r *GalleryRepository) PublishGallery(ctx context.Context, meta database.GalleryMeta, entries []database.GalleryEntry) error {
	return r.pool.withTx(ctx, func(tx *sql.Tx) error {
		var previous sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM models WHERE scope = $1 FOR UPDATE`, meta.Scope).Scan(&previous)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock gallery scope: %w", err)
		}

		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO gallery_entries (scope, version, position, identity, name, embedding)
				VALUES ($1, $2, $3, $4, $5, $6::vector)
			`, meta.Scope, meta.Version, e.Position, e.Identity, e.Name, pgvector.NewVector(e.Embedding)); err != nil {
				return fmt.Errorf("insert gallery entry %d: %w", e.Position, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO models (scope, version, entity_type, bucket, path, participant_count, encoding_count, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (scope) DO UPDATE SET
				version = EXCLUDED.version,
				entity_type = EXCLUDED.entity_type,
				bucket = EXCLUDED.bucket,
				path = EXCLUDED.path,
				participant_count = EXCLUDED.participant_count,
				encoding_count = EXCLUDED.encoding_count,
				updated_at = NOW()
		`, meta.Scope, meta.Version, string(meta.EntityType), meta.Bucket, meta.Path,
			meta.ParticipantCount, meta.EncodingCount); err != nil {
			return fmt.Errorf("upsert gallery metadata: %w", err)
		}

		keep := meta.Version
		if previous.Valid {
			keep = previous.String
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM gallery_entries
			WHERE scope = $1 AND version <> $2 AND version <> $3
		`, meta.Scope, meta.Version, keep); err != nil {
			return fmt.Errorf("prune old gallery entries: %w", err)
		}
		return nil
	})
}

const galleryMetaColumns = `scope, version, entity_type, bucket, path, participant_count, encoding_count, updated_at`

func scanGalleryMeta(row rowScanner) (*database.GalleryMeta, error) {
	var m database.GalleryMeta
	var entityType string
	if err := row.Scan(&m.Scope, &m.Version, &entityType, &m.Bucket, &m.Path,
		&m.ParticipantCount, &m.EncodingCount, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.EntityType = database.Role(entityType)
	return &m, nil
}

// GetGalleryMeta returns the published version of a scope, nil if none
func (r *GalleryRepository) GetGalleryMeta(ctx context.Context, scope string) (*database.GalleryMeta, error) {
	m, err := scanGalleryMeta(r.pool.QueryRow(ctx,
		`SELECT `+galleryMetaColumns+` FROM models WHERE scope = $1`, scope))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gallery metadata: %w", err)
	}
	return m, nil
}

// ListGalleryMeta returns all published scopes
func (r *GalleryRepository) ListGalleryMeta(ctx context.Context) ([]database.GalleryMeta, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+galleryMetaColumns+` FROM models ORDER BY scope`)
	if err != nil {
		return nil, fmt.Errorf("list gallery metadata: %w", err)
	}
	defer rows.Close()

	var metas []database.GalleryMeta
	for rows.Next() {
		m, err := scanGalleryMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gallery metadata: %w", err)
		}
		metas = append(metas, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery metadata: %w", err)
	}
	return metas, nil
}

// GalleryEntries returns the entries of a version in gallery order
func (r *GalleryRepository) GalleryEntries(ctx context.Context, version string) ([]database.GalleryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT position, identity, name, embedding
		FROM gallery_entries
		WHERE version = $1
		ORDER BY position
	`, version)
	if err != nil {
		return nil, fmt.Errorf("list gallery entries: %w", err)
	}
	defer rows.Close()

	var entries []database.GalleryEntry
	for rows.Next() {
		var e database.GalleryEntry
		var vec pgvector.Vector
		if err := rows.Scan(&e.Position, &e.Identity, &e.Name, &vec); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		e.Embedding = vec.Slice()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery entries: %w", err)
	}
	return entries, nil
}

// NearestEntry lets postgres compute the closest entry of a version. Ties on
// distance resolve to the lowest position, matching a linear scan.
func (r *GalleryRepository) NearestEntry(ctx context.Context, version string, probe []float32, metric database.Metric) (*database.NearestEntry, error) {
	op := "<->"
	if metric == database.MetricCosine {
		op = "<=>"
	}

	var n database.NearestEntry
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, `
		SELECT position, identity, name, embedding, embedding `+op+` $2::vector AS distance
		FROM gallery_entries
		WHERE version = $1
		ORDER BY distance, position
		LIMIT 1
	`, version, pgvector.NewVector(probe)).Scan(&n.Position, &n.Identity, &n.Name, &vec, &n.Distance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nearest gallery entry: %w", err)
	}
	n.Embedding = vec.Slice()
	return &n, nil
}
