package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/gallery"
)

const eventChannelBuffer = 100

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// BuildJob is an async gallery build for one scope.
type BuildJob struct {
	EventBroadcaster

	ID              string
	Scope           string
	Status          JobStatus
	Progress        int
	TotalImages     int
	ProcessedImages int
	Error           string
	StartedAt       time.Time
	CompletedAt     *time.Time
	Result          *gallery.TrainResult
}

// JobView is the encoded state of a build job.
type JobView struct {
	ID              string               `json:"id"`
	Scope           string               `json:"scope"`
	Status          JobStatus            `json:"status"`
	Progress        int                  `json:"progress"`
	TotalImages     int                  `json:"total_images"`
	ProcessedImages int                  `json:"processed_images"`
	Error           string               `json:"error,omitempty"`
	StartedAt       time.Time            `json:"started_at"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	Result          *gallery.TrainResult `json:"result,omitempty"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *BuildJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Snapshot returns the current job state.
func (j *BuildJob) Snapshot() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:              j.ID,
		Scope:           j.Scope,
		Status:          j.Status,
		Progress:        j.Progress,
		TotalImages:     j.TotalImages,
		ProcessedImages: j.ProcessedImages,
		Error:           j.Error,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		Result:          j.Result,
	}
}

// Cancel cancels the build. A finished job keeps its status.
func (j *BuildJob) Cancel() {
	j.mu.Lock()
	if j.Status != JobStatusPending && j.Status != JobStatusRunning {
		j.mu.Unlock()
		return
	}
	j.Status = JobStatusCancelled
	now := time.Now()
	j.CompletedAt = &now
	j.mu.Unlock()
	j.EventBroadcaster.Cancel()
}

func (j *BuildJob) setRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != JobStatusPending {
		return false
	}
	j.Status = JobStatusRunning
	return true
}

func (j *BuildJob) setProgress(done, total int) {
	j.mu.Lock()
	j.ProcessedImages = done
	j.TotalImages = total
	if total > 0 {
		j.Progress = done * 100 / total
	}
	j.mu.Unlock()
}

// finish records the outcome unless the job was cancelled meanwhile.
func (j *BuildJob) finish(result *gallery.TrainResult, err error) JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == JobStatusCancelled {
		return j.Status
	}
	now := time.Now()
	j.CompletedAt = &now
	if err != nil {
		j.Status = JobStatusFailed
		j.Error = err.Error()
		return j.Status
	}
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.Result = result
	return j.Status
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, eventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*BuildJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*BuildJob),
	}
}

// CreateJob registers a pending build job for scope. If the scope already
// has a pending or running job, that job is returned with false.
func (m *JobManager) CreateJob(id, scope string) (*BuildJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.Scope != scope {
			continue
		}
		if s := job.GetStatus(); s == JobStatusPending || s == JobStatusRunning {
			return job, false
		}
	}

	job := &BuildJob{
		ID:        id,
		Scope:     scope,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}
	m.jobs[id] = job
	return job, true
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *BuildJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*BuildJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*BuildJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}
