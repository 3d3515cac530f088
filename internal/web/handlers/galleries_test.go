package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

type fakeTrainer struct {
	train func(ctx context.Context, scope gallery.Scope, progress gallery.ProgressFunc) (*gallery.TrainResult, error)
}

func (f fakeTrainer) Train(ctx context.Context, scope gallery.Scope, progress gallery.ProgressFunc) (*gallery.TrainResult, error) {
	return f.train(ctx, scope, progress)
}

// blockingTrainer runs until its context is cancelled
func blockingTrainer() fakeTrainer {
	return fakeTrainer{train: func(ctx context.Context, _ gallery.Scope, progress gallery.ProgressFunc) (*gallery.TrainResult, error) {
		progress(1, 4)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

func succeedingTrainer() fakeTrainer {
	return fakeTrainer{train: func(_ context.Context, scope gallery.Scope, progress gallery.ProgressFunc) (*gallery.TrainResult, error) {
		progress(2, 2)
		return &gallery.TrainResult{
			Meta: database.GalleryMeta{
				Scope: scope.Key(), Version: "v2", EntityType: scope.EntityType(),
				ParticipantCount: 2, EncodingCount: 2,
			},
			ImagesTotal: 2,
		}, nil
	}}
}

type fakeMeta map[string]database.GalleryMeta

func (f fakeMeta) Meta(_ context.Context, scope string) (*database.GalleryMeta, error) {
	if m, ok := f[scope]; ok {
		return &m, nil
	}
	return nil, fmt.Errorf("%w for scope %s", apperr.ErrNoGallery, scope)
}

func startBuild(t *testing.T, h *GalleryHandler, body string) string {
	t.Helper()
	recorder := httptest.NewRecorder()
	h.Build(recorder, jsonRequest("POST", "/api/v1/galleries/build", body))
	assertStatusCode(t, recorder, http.StatusAccepted)
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	return result["job_id"]
}

// waitForStatus polls the job until it reaches want or the deadline passes
func waitForStatus(t *testing.T, h *GalleryHandler, jobID string, want JobStatus) JobView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		recorder := httptest.NewRecorder()
		h.JobStatus(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"jobId": jobID}))
		assertStatusCode(t, recorder, http.StatusOK)
		var view JobView
		parseJSONResponse(t, recorder, &view)
		if view.Status == want {
			return view
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s, wanted %s", jobID, view.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGalleryHandler_Build_Completes(t *testing.T) {
	h := NewGalleryHandler(succeedingTrainer(), fakeMeta{}, NewJobManager(), nil, nil)

	jobID := startBuild(t, h, `{"section": "a", "semester": "III"}`)
	view := waitForStatus(t, h, jobID, JobStatusCompleted)

	if view.Scope != "A_3" {
		t.Errorf("expected scope A_3, got %s", view.Scope)
	}
	if view.Progress != 100 || view.CompletedAt == nil {
		t.Errorf("expected finished job, got %+v", view)
	}
	if view.Result == nil || view.Result.Meta.Version != "v2" {
		t.Errorf("expected result with version v2, got %+v", view.Result)
	}
}

func TestGalleryHandler_Build_Failure(t *testing.T) {
	trainer := fakeTrainer{train: func(context.Context, gallery.Scope, gallery.ProgressFunc) (*gallery.TrainResult, error) {
		return nil, fmt.Errorf("training teachers: %w", apperr.ErrNoFacesExtracted)
	}}
	h := NewGalleryHandler(trainer, fakeMeta{}, NewJobManager(), nil, nil)

	jobID := startBuild(t, h, `{}`)
	view := waitForStatus(t, h, jobID, JobStatusFailed)

	if view.Scope != "teachers" {
		t.Errorf("expected teachers scope, got %s", view.Scope)
	}
	if !strings.Contains(view.Error, apperr.ErrNoFacesExtracted.Error()) {
		t.Errorf("unexpected error %q", view.Error)
	}
}

func TestGalleryHandler_Build_ConflictAndCancel(t *testing.T) {
	h := NewGalleryHandler(blockingTrainer(), fakeMeta{}, NewJobManager(), nil, nil)

	jobID := startBuild(t, h, `{"section": "A", "semester": "3"}`)

	recorder := httptest.NewRecorder()
	h.Build(recorder, jsonRequest("POST", "/api/v1/galleries/build", `{"section": "A", "semester": "3"}`))
	assertStatusCode(t, recorder, http.StatusConflict)
	var conflict map[string]string
	parseJSONResponse(t, recorder, &conflict)
	if conflict["job_id"] != jobID {
		t.Errorf("expected running job %s, got %s", jobID, conflict["job_id"])
	}

	// a different scope is independent
	other := startBuild(t, h, `{"section": "B", "semester": "3"}`)

	for _, id := range []string{jobID, other} {
		recorder = httptest.NewRecorder()
		h.Cancel(recorder, requestWithChiParams(httptest.NewRequest("DELETE", "/", nil), map[string]string{"jobId": id}))
		assertStatusCode(t, recorder, http.StatusOK)
		waitForStatus(t, h, id, JobStatusCancelled)
	}

	// the scope can be rebuilt once the previous job is gone
	startBuild(t, h, `{"section": "A", "semester": "3"}`)
	for _, job := range h.jobs.ListJobs() {
		job.Cancel()
	}
}

func TestGalleryHandler_Build_InvalidScope(t *testing.T) {
	h := NewGalleryHandler(succeedingTrainer(), fakeMeta{}, NewJobManager(), nil, nil)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad semester", `{"section": "A", "semester": "12"}`},
		{"roman out of range", `{"section": "A", "semester": "IX"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Build(recorder, jsonRequest("POST", "/api/v1/galleries/build", tt.body))
			assertStatusCode(t, recorder, http.StatusBadRequest)
		})
	}
	if n := len(h.jobs.ListJobs()); n != 0 {
		t.Errorf("expected no jobs, got %d", n)
	}
}

func TestGalleryHandler_UnknownJob(t *testing.T) {
	h := NewGalleryHandler(succeedingTrainer(), fakeMeta{}, NewJobManager(), nil, nil)

	for name, fn := range map[string]http.HandlerFunc{"status": h.JobStatus, "cancel": h.Cancel, "events": h.Events} {
		t.Run(name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			fn(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"jobId": "missing"}))
			assertStatusCode(t, recorder, http.StatusNotFound)
			assertJSONError(t, recorder, "job not found")
		})
	}
}

func TestGalleryHandler_Events_FinishedJob(t *testing.T) {
	h := NewGalleryHandler(succeedingTrainer(), fakeMeta{}, NewJobManager(), nil, nil)
	jobID := startBuild(t, h, `{}`)
	waitForStatus(t, h, jobID, JobStatusCompleted)

	recorder := httptest.NewRecorder()
	h.Events(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"jobId": jobID}))

	assertContentType(t, recorder, "text/event-stream")
	body := recorder.Body.String()
	if !strings.HasPrefix(body, "event: status\ndata: ") {
		t.Fatalf("expected status event, got %q", body)
	}
	if !strings.Contains(body, `"status":"completed"`) {
		t.Errorf("expected completed status in %q", body)
	}
}

func TestGalleryHandler_Get(t *testing.T) {
	updated := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	meta := fakeMeta{"A_3": {
		Scope: "A_3", Version: "20250301T080000", EntityType: database.RoleStudent,
		Path: "galleries/A_3/20250301T080000.gob", ParticipantCount: 2, EncodingCount: 10, UpdatedAt: updated,
	}}
	h := NewGalleryHandler(succeedingTrainer(), meta, NewJobManager(), nil, nil)

	recorder := httptest.NewRecorder()
	h.Get(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"scope": "A_3"}))
	assertStatusCode(t, recorder, http.StatusOK)
	var got GalleryResponse
	parseJSONResponse(t, recorder, &got)
	if got.Version != "20250301T080000" || got.EncodingCount != 10 || !got.UpdatedAt.Equal(updated) {
		t.Errorf("unexpected gallery %+v", got)
	}

	recorder = httptest.NewRecorder()
	h.Get(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"scope": "teachers"}))
	assertStatusCode(t, recorder, http.StatusNotFound)

	recorder = httptest.NewRecorder()
	h.Get(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"scope": "A_9"}))
	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	first, created := jm.CreateJob("j1", "A_3")
	if !created || first.GetStatus() != JobStatusPending {
		t.Fatalf("expected new pending job")
	}
	again, created := jm.CreateJob("j2", "A_3")
	if created || again.ID != "j1" {
		t.Errorf("expected existing job j1, got %s created=%v", again.ID, created)
	}

	first.Cancel()
	if _, created := jm.CreateJob("j3", "A_3"); !created {
		t.Error("expected a new job after cancellation")
	}
	if len(jm.ListJobs()) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(jm.ListJobs()))
	}
	jm.DeleteJob("j1")
	if jm.GetJob("j1") != nil {
		t.Error("expected j1 to be deleted")
	}
}

func TestBuildJob_FinishKeepsCancellation(t *testing.T) {
	jm := NewJobManager()
	job, _ := jm.CreateJob("j1", "teachers")
	if !job.setRunning() {
		t.Fatal("expected pending job to start")
	}

	ch := job.AddListener()
	job.Cancel()
	event := <-ch
	if event.Type != "cancelled" {
		t.Errorf("expected cancelled event, got %s", event.Type)
	}
	job.RemoveListener(ch)

	if status := job.finish(nil, errors.New("late failure")); status != JobStatusCancelled {
		t.Errorf("expected cancelled, got %s", status)
	}
	if job.Snapshot().Error != "" {
		t.Error("cancelled job should not record an error")
	}
	if job.setRunning() {
		t.Error("cancelled job must not restart")
	}
}
