package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/apperr"
)

// BlobRepository keeps binary objects (gallery artifacts, enrollment images) in a bytea table
type BlobRepository struct {
	pool *Pool
}

// NewBlobRepository creates a new PostgreSQL blob repository
func NewBlobRepository(pool *Pool) *BlobRepository {
	return &BlobRepository{pool: pool}
}

// Upload stores data under bucket/path, replacing any previous object, and returns its URL
func (r *BlobRepository) Upload(ctx context.Context, bucket, path string, data []byte) (string, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO blobs (bucket, path, data, content_type, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (bucket, path) DO UPDATE SET
			data = EXCLUDED.data,
			content_type = EXCLUDED.content_type,
			updated_at = NOW()
	`, bucket, path, data, http.DetectContentType(data))
	if err != nil {
		return "", apperr.Storage("upload "+bucket+"/"+path, err)
	}
	return fmt.Sprintf("postgres://%s/%s", bucket, path), nil
}

// Download returns the object stored under bucket/path
func (r *BlobRepository) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM blobs WHERE bucket = $1 AND path = $2`, bucket, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("blob", bucket+"/"+path)
	}
	if err != nil {
		return nil, apperr.Storage("download "+bucket+"/"+path, err)
	}
	return data, nil
}
