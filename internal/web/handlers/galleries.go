package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// GalleryTrainer rebuilds and publishes the gallery of a scope.
type GalleryTrainer interface {
	Train(ctx context.Context, scope gallery.Scope, progress gallery.ProgressFunc) (*gallery.TrainResult, error)
}

// GalleryMetaReader returns the published version of a scope.
type GalleryMetaReader interface {
	Meta(ctx context.Context, scope string) (*database.GalleryMeta, error)
}

// GalleryHandler handles gallery build jobs and metadata.
type GalleryHandler struct {
	trainer GalleryTrainer
	meta    GalleryMetaReader
	jobs    *JobManager
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(trainer GalleryTrainer, meta GalleryMetaReader, jm *JobManager, m *metrics.Metrics,
	logger *slog.Logger) *GalleryHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GalleryHandler{
		trainer: trainer,
		meta:    meta,
		jobs:    jm,
		metrics: m,
		logger:  logger.With("component", "gallery-api"),
	}
}

// BuildRequest selects the scope to rebuild. Empty fields select the teachers gallery.
type BuildRequest struct {
	Section  string `json:"section"`
	Semester string `json:"semester"`
}

// Build starts an async gallery build. A scope builds at most once at a time;
// a second request returns the running job.
func (h *GalleryHandler) Build(w http.ResponseWriter, r *http.Request) {
	var req BuildRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	scope, err := gallery.NewScope(req.Section, req.Semester)
	if err != nil {
		respondAppError(w, h.logger, "invalid scope", err)
		return
	}

	job, created := h.jobs.CreateJob(uuid.New().String(), scope.Key())
	if !created {
		respondJSON(w, http.StatusConflict, map[string]any{
			"error":  "a build for this scope is already running",
			"job_id": job.ID,
		})
		return
	}

	go h.runBuildJob(job, scope)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"scope":  job.Scope,
		"status": string(JobStatusPending),
	})
}

func (h *GalleryHandler) runBuildJob(job *BuildJob, scope gallery.Scope) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job.setCancel(cancel)

	if !job.setRunning() {
		return
	}
	job.SendEvent(JobEvent{Type: "started", Message: "Building gallery for " + scope.Key()})

	started := time.Now()
	result, err := h.trainer.Train(ctx, scope, func(done, total int) {
		job.setProgress(done, total)
		job.SendEvent(JobEvent{
			Type: "progress",
			Data: map[string]int{"processed": done, "total": total},
		})
	})
	if ctx.Err() != nil && err == nil {
		err = ctx.Err()
	}
	h.metrics.RecordBuild(string(scope.EntityType()), err, time.Since(started))

	switch job.finish(result, err) {
	case JobStatusCancelled:
		h.logger.Info("gallery build cancelled", "scope", scope.Key(), "job", job.ID)
	case JobStatusFailed:
		h.logger.Warn("gallery build failed", "scope", scope.Key(), "job", job.ID, "error", err)
		job.SendEvent(JobEvent{Type: "job_failed", Message: err.Error()})
	default:
		h.logger.Info("gallery build completed", "scope", scope.Key(), "job", job.ID,
			"version", result.Meta.Version, "encodings", result.Meta.EncodingCount)
		job.SendEvent(JobEvent{Type: "completed", Data: result})
	}
}

func (h *GalleryHandler) lookupJob(w http.ResponseWriter, r *http.Request) *BuildJob {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return nil
	}
	job := h.jobs.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return job
}

// JobStatus returns the state of a build job.
func (h *GalleryHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	job := h.lookupJob(w, r)
	if job == nil {
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// Events streams build progress via SSE.
func (h *GalleryHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			if job := h.jobs.GetJob(id); job != nil {
				return job
			}
			return nil
		},
		func(job SSEJob) any {
			return job.(*BuildJob).Snapshot()
		},
	)
}

// Cancel stops a running build; nothing gets published.
func (h *GalleryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.lookupJob(w, r)
	if job == nil {
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]string{
		"job_id": job.ID,
		"status": string(job.GetStatus()),
	})
}

// Get returns the published version of a gallery scope.
func (h *GalleryHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, err := gallery.ParseScopeKey(chi.URLParam(r, "scope"))
	if err != nil {
		respondAppError(w, h.logger, "invalid scope", err)
		return
	}

	meta, err := h.meta.Meta(r.Context(), scope.Key())
	if err != nil {
		respondAppError(w, h.logger, "failed to load gallery", err)
		return
	}
	respondJSON(w, http.StatusOK, galleryToResponse(*meta))
}
