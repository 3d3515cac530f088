package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/lib/pq"
)

const personColumns = `identity, name, role, section, semester, email, department, duration_days, created_at`

// RosterRepository provides PostgreSQL-backed storage for enrolled people
type RosterRepository struct {
	pool *Pool
}

// NewRosterRepository creates a new PostgreSQL roster repository
func NewRosterRepository(pool *Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

func scanPerson(row rowScanner) (*database.Person, error) {
	var p database.Person
	var role string
	if err := row.Scan(&p.Identity, &p.Name, &role, &p.Section, &p.Semester,
		&p.Email, &p.Department, &p.DurationDays, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Role = database.Role(role)
	return &p, nil
}

// ListPeople returns people matching the filter ordered by identity
func (r *RosterRepository) ListPeople(ctx context.Context, f database.PersonFilter) ([]database.Person, error) {
	var where []string
	var args []any
	if len(f.Roles) > 0 {
		roles := make([]string, len(f.Roles))
		for i, role := range f.Roles {
			roles[i] = string(role)
		}
		args = append(args, pq.Array(roles))
		where = append(where, fmt.Sprintf("role = ANY($%d)", len(args)))
	}
	if f.Section != "" {
		args = append(args, f.Section)
		where = append(where, fmt.Sprintf("section = $%d", len(args)))
	}
	if f.Semester != 0 {
		args = append(args, f.Semester)
		where = append(where, fmt.Sprintf("semester = $%d", len(args)))
	}

	query := `SELECT ` + personColumns + ` FROM people`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY identity`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var people []database.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return people, nil
}

// GetPerson retrieves a person by identity key, returns nil if not found
func (r *RosterRepository) GetPerson(ctx context.Context, identity string) (*database.Person, error) {
	p, err := scanPerson(r.pool.QueryRow(ctx,
		`SELECT `+personColumns+` FROM people WHERE identity = $1`, identity))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

// SavePerson inserts or updates a person
func (r *RosterRepository) SavePerson(ctx context.Context, p database.Person) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO people (identity, name, role, section, semester, email, department, duration_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (identity) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			section = EXCLUDED.section,
			semester = EXCLUDED.semester,
			email = EXCLUDED.email,
			department = EXCLUDED.department,
			duration_days = EXCLUDED.duration_days
	`, p.Identity, p.Name, string(p.Role), p.Section, p.Semester, p.Email, p.Department, p.DurationDays)
	if err != nil {
		return fmt.Errorf("save person: %w", err)
	}
	return nil
}

// AddEnrollmentImages appends image references for an identity
func (r *RosterRepository) AddEnrollmentImages(ctx context.Context, images []database.EnrollmentImage) error {
	return r.pool.withTx(ctx, func(tx *sql.Tx) error {
		for _, img := range images {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO enrollment_images (identity, position, bucket, path)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (identity, position) DO UPDATE SET
					bucket = EXCLUDED.bucket,
					path = EXCLUDED.path
			`, img.Identity, img.Position, img.Bucket, img.Path); err != nil {
				return fmt.Errorf("insert enrollment image %s/%d: %w", img.Identity, img.Position, err)
			}
		}
		return nil
	})
}

// ListEnrollmentImages returns the image references of the identities
func (r *RosterRepository) ListEnrollmentImages(ctx context.Context, identities []string) ([]database.EnrollmentImage, error) {
	if len(identities) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT identity, position, bucket, path, created_at
		FROM enrollment_images
		WHERE identity = ANY($1)
		ORDER BY identity, position
	`, pq.Array(identities))
	if err != nil {
		return nil, fmt.Errorf("list enrollment images: %w", err)
	}
	defer rows.Close()

	var images []database.EnrollmentImage
	for rows.Next() {
		var img database.EnrollmentImage
		if err := rows.Scan(&img.Identity, &img.Position, &img.Bucket, &img.Path, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrollment image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollment images: %w", err)
	}
	return images, nil
}
