//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	}

	pool, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func newSession(section string, semester int, subject int64, start time.Time) *database.Session {
	return &database.Session{
		ID:          uuid.NewString(),
		TeacherID:   "T001",
		SubjectID:   subject,
		Section:     section,
		Semester:    semester,
		Status:      database.SessionActive,
		SessionDate: start.UTC().Truncate(24 * time.Hour),
		StartTime:   start,
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	applied, err := pool.Migrate(ctx)
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected no pending migrations, got %v", applied)
	}

	versions, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("MigrationsApplied() error = %v", err)
	}
	if len(versions) == 0 {
		t.Error("expected at least one applied migration")
	}
}

func TestSessionsAndRecords(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	t.Run("SingleActiveSession", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make(chan string, 8)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.InSessionTx(ctx, func(tx database.SessionTx) error {
					s, _, err := tx.InsertActiveSession(ctx, newSession("A", 3, 101, start))
					if err != nil {
						return err
					}
					ids <- s.ID
					return nil
				})
				if err != nil {
					t.Errorf("InSessionTx() error = %v", err)
				}
			}()
		}
		wg.Wait()
		close(ids)

		seen := map[string]bool{}
		for id := range ids {
			seen[id] = true
		}
		if len(seen) != 1 {
			t.Errorf("expected one session id, got %d", len(seen))
		}
	})

	t.Run("RecordLifecycle", func(t *testing.T) {
		var sessionID string
		err := store.InSessionTx(ctx, func(tx database.SessionTx) error {
			s, created, err := tx.InsertActiveSession(ctx, newSession("B", 5, 202, start))
			if err != nil {
				return err
			}
			if !created {
				return errors.New("expected new session")
			}
			sessionID = s.ID
			return tx.InsertRecords(ctx, []database.Record{
				{SessionID: s.ID, Identity: "S001", Name: "Asha", Status: database.StatusAbsent, MarkedBy: database.MarkedBySystem, MarkedAt: start},
				{SessionID: s.ID, Identity: "S002", Name: "Ravi", Status: database.StatusAbsent, MarkedBy: database.MarkedBySystem, MarkedAt: start},
			})
		})
		if err != nil {
			t.Fatalf("create session: %v", err)
		}

		arrival := start.Add(12 * time.Minute)
		diff := 12
		conf := 0.8
		rec, err := store.UpdateRecord(ctx, database.RecordUpdate{
			SessionID: sessionID, Identity: "S001", Status: database.StatusLate, MarkedBy: database.MarkedBySystem,
			ArrivalTime: &arrival, TimeDifferenceMinutes: &diff, Confidence: &conf, MarkedAt: arrival,
		})
		if err != nil {
			t.Fatalf("UpdateRecord() error = %v", err)
		}
		if rec.Status != database.StatusLate || rec.Version != 2 || *rec.TimeDifferenceMinutes != 12 {
			t.Errorf("unexpected record after update: %+v", rec)
		}

		missing, err := store.UpdateRecord(ctx, database.RecordUpdate{SessionID: sessionID, Identity: "NOPE",
			Status: database.StatusPresent, MarkedBy: database.MarkedByManual, MarkedAt: arrival})
		if err != nil || missing != nil {
			t.Errorf("expected nil record for unknown identity, got %+v, %v", missing, err)
		}

		records, err := store.ListRecords(ctx, []string{sessionID, "not-a-uuid"})
		if err != nil {
			t.Fatalf("ListRecords() error = %v", err)
		}
		if len(records) != 2 {
			t.Errorf("expected 2 records, got %d", len(records))
		}

		if err := store.CompleteSession(ctx, sessionID, start.Add(time.Hour)); err != nil {
			t.Fatalf("CompleteSession() error = %v", err)
		}
		s, err := store.GetSession(ctx, sessionID)
		if err != nil || s == nil {
			t.Fatalf("GetSession() = %v, %v", s, err)
		}
		if s.Status != database.SessionCompleted || s.EndTime == nil {
			t.Errorf("expected completed session with end time, got %+v", s)
		}

		subject := int64(202)
		sessions, err := store.ListSessions(ctx, database.SessionFilter{Section: "B", Semester: 5, SubjectID: &subject})
		if err != nil {
			t.Fatalf("ListSessions() error = %v", err)
		}
		if len(sessions) != 1 {
			t.Errorf("expected 1 session, got %d", len(sessions))
		}
	})

	t.Run("UnknownSession", func(t *testing.T) {
		s, err := store.GetSession(ctx, "garbage")
		if err != nil || s != nil {
			t.Errorf("expected nil, nil for malformed id, got %v, %v", s, err)
		}
	})
}

func TestGalleryPublishAndNearest(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)

	entries := []database.GalleryEntry{
		{Position: 0, Identity: "S001", Name: "Asha", Embedding: []float32{0, 0, 0}},
		{Position: 1, Identity: "S002", Name: "Ravi", Embedding: []float32{1, 0, 0}},
	}
	meta := database.GalleryMeta{Scope: "A_3", Version: "v1", EntityType: database.RoleStudent,
		Bucket: "face-recognition-models", Path: "models/A_3/v1/model.gob", ParticipantCount: 2, EncodingCount: 2}
	if err := store.PublishGallery(ctx, meta, entries); err != nil {
		t.Fatalf("PublishGallery() error = %v", err)
	}

	nearest, err := store.NearestEntry(ctx, "v1", []float32{0.9, 0, 0}, database.MetricEuclidean)
	if err != nil {
		t.Fatalf("NearestEntry() error = %v", err)
	}
	if nearest.Identity != "S002" {
		t.Errorf("expected S002, got %s", nearest.Identity)
	}

	meta.Version = "v2"
	if err := store.PublishGallery(ctx, meta, entries[:1]); err != nil {
		t.Fatalf("republish error = %v", err)
	}
	got, err := store.GetGalleryMeta(ctx, "A_3")
	if err != nil || got.Version != "v2" {
		t.Fatalf("expected v2 published, got %+v, %v", got, err)
	}
	old, err := store.GalleryEntries(ctx, "v1")
	if err != nil {
		t.Fatalf("GalleryEntries() error = %v", err)
	}
	if len(old) != 2 {
		t.Errorf("expected replaced version to stay matchable until the next publish, got %d entries", len(old))
	}
	if nearest, err := store.NearestEntry(ctx, "v1", []float32{0.9, 0, 0}, database.MetricEuclidean); err != nil || nearest == nil {
		t.Errorf("expected in-flight match on v1 to find a candidate, got %v, %v", nearest, err)
	}

	other := database.GalleryMeta{Scope: "B_3", Version: "b1", EntityType: database.RoleStudent}
	if err := store.PublishGallery(ctx, other, entries); err != nil {
		t.Fatalf("publish other scope error = %v", err)
	}

	meta.Version = "v3"
	if err := store.PublishGallery(ctx, meta, entries); err != nil {
		t.Fatalf("third publish error = %v", err)
	}
	for version, want := range map[string]int{"v1": 0, "v2": 1, "v3": 2, "b1": 2} {
		got, err := store.GalleryEntries(ctx, version)
		if err != nil {
			t.Fatalf("GalleryEntries(%s) error = %v", version, err)
		}
		if len(got) != want {
			t.Errorf("version %s: expected %d entries, got %d", version, want, len(got))
		}
	}
}

func TestBlobRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	blobs := NewBlobRepository(pool)

	if _, err := blobs.Upload(ctx, "bucket", "a/b.bin", []byte("hello")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	data, err := blobs.Download(ctx, "bucket", "a/b.bin")
	if err != nil || string(data) != "hello" {
		t.Errorf("Download() = %q, %v", data, err)
	}

	if _, err := blobs.Download(ctx, "bucket", "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
