package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// Outcome is the result of recognizing one capture and marking its face.
type Outcome struct {
	Session     *database.Session `json:"session"`
	Recognition facematch.Result  `json:"recognition"`
	Record      *database.Record  `json:"attendance,omitempty"`
	Marked      bool              `json:"success"`
	Message     string            `json:"message"`
}

// MarkedFace is one identity marked from a group capture.
type MarkedFace struct {
	Identity   string                `json:"enrollment_number"`
	Name       string                `json:"name"`
	Status     database.RecordStatus `json:"status"`
	Confidence float64               `json:"confidence"`
}

// MultiOutcome is the result of recognizing every face of a capture.
type MultiOutcome struct {
	Session       *database.Session  `json:"session"`
	FacesDetected int                `json:"faces_detected"`
	Results       []facematch.Result `json:"results"`
	Marked        []MarkedFace       `json:"marked_students"`
	Message       string             `json:"message,omitempty"`
}

// Recognizer runs the live path: detect, match, mark.
type Recognizer struct {
	sessions *SessionManager
	marking  *MarkingEngine
	detector faceapi.Detector
	matcher  *facematch.Matcher
	timeout  time.Duration
	maxSize  int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewRecognizer wires the live recognition path.
func NewRecognizer(sessions *SessionManager, marking *MarkingEngine, detector faceapi.Detector, matcher *facematch.Matcher,
	cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.Attendance.RecognitionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Recognizer{
		sessions: sessions,
		marking:  marking,
		detector: detector,
		matcher:  matcher,
		timeout:  timeout,
		maxSize:  cfg.Gallery.MaxImageSize,
		metrics:  m,
		logger:   logger.With("component", "recognizer"),
	}
}

// detect downscales the capture and runs detection.
func (r *Recognizer) detect(ctx context.Context, image []byte) ([]faceapi.Detection, error) {
	data, err := faceapi.Downscale(image, r.maxSize)
	if err != nil {
		return nil, apperr.Validation("unreadable image: %v", err)
	}
	start := time.Now()
	detections, err := r.detector.DetectFaces(ctx, data)
	r.metrics.ObserveDetect(time.Since(start))
	return detections, err
}

type matchResult[T any] struct {
	value T
	err   error
}

// bounded runs a side-effect free lookup and gives up when ctx is done,
// even if the lookup itself ignores ctx.
func bounded[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	ch := make(chan matchResult[T], 1)
	go func() {
		v, err := fn()
		ch <- matchResult[T]{v, err}
	}()
	select {
	case res := <-ch:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// degradedMessage reports whether a match or mark failure on the live path
// becomes an Unknown outcome instead of an error.
func degradedMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, apperr.ErrNoGallery):
		return "Model not trained for this class", true
	case errors.Is(err, context.DeadlineExceeded):
		return "Recognition timed out, please retry", true
	}
	return "", false
}

func (r *Recognizer) activeSession(ctx context.Context, section string, semester int) (*database.Session, error) {
	session, err := r.sessions.GetActive(ctx, section, semester, nil)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w for section %s semester %d", apperr.ErrNoActiveSession, section, semester)
	}
	return session, nil
}

func unknownResult() facematch.Result {
	return facematch.Result{Name: facematch.UnknownName, Role: facematch.RoleUnknown}
}

// RecognizeAndMark identifies the first face in a capture and marks it in
// the active session of the class. Detection, matching and marking share one
// recognition timeout. Detection failures, missing galleries, timeouts and
// non-matches are reported in the outcome, not as errors.
func (r *Recognizer) RecognizeAndMark(ctx context.Context, section string, semester int, image []byte) (*Outcome, error) {
	session, err := r.activeSession(ctx, section, semester)
	if err != nil {
		return nil, err
	}
	scope := gallery.Scope{Section: session.Section, Semester: session.Semester}.Key()
	out := &Outcome{Session: session, Recognition: unknownResult()}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	detections, err := r.detect(ctx, image)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return nil, err
		}
		r.logger.Warn("face detection failed", "session", session.ID, "error", err)
		r.metrics.RecordRecognition(scope, metrics.OutcomeError)
		out.Message = "Face detection unavailable, please retry"
		return out, nil
	}
	if len(detections) == 0 {
		r.metrics.RecordRecognition(scope, metrics.OutcomeNoFace)
		out.Message = "No face detected"
		return out, nil
	}

	result, err := bounded(ctx, func() (facematch.Result, error) {
		return r.matcher.Match(ctx, scope, detections[0].Embedding)
	})
	if err != nil {
		msg, ok := degradedMessage(err)
		if !ok {
			return nil, err
		}
		r.logger.Warn("face matching failed", "session", session.ID, "scope", scope, "error", err)
		r.metrics.RecordRecognition(scope, metrics.OutcomeError)
		out.Message = msg
		return out, nil
	}
	result.Location = facematch.LocationFromBBox(detections[0].BBox)
	out.Recognition = result
	if !result.Matched {
		r.metrics.RecordRecognition(scope, metrics.OutcomeUnknown)
		out.Message = "Face not recognized or not in database"
		return out, nil
	}
	r.metrics.RecordRecognition(scope, metrics.OutcomeMatched)

	record, err := r.marking.MarkPresent(ctx, session.ID, result.Identity, result.Confidence, database.MarkedBySystem)
	if errors.Is(err, apperr.ErrNotFound) {
		out.Message = fmt.Sprintf("%s is not on the roster of this session", result.Name)
		return out, nil
	}
	if err != nil {
		msg, ok := degradedMessage(err)
		if !ok {
			return nil, err
		}
		r.logger.Warn("marking timed out", "session", session.ID, "identity", result.Identity)
		out.Message = msg
		return out, nil
	}
	out.Record = record
	out.Marked = true
	out.Message = fmt.Sprintf("Attendance marked for %s", result.Name)
	return out, nil
}

// RecognizeMultipleAndMark matches every face of a capture and marks each
// recognized identity. Faces are processed independently under one shared
// recognition timeout.
func (r *Recognizer) RecognizeMultipleAndMark(ctx context.Context, section string, semester int, image []byte) (*MultiOutcome, error) {
	session, err := r.activeSession(ctx, section, semester)
	if err != nil {
		return nil, err
	}
	scope := gallery.Scope{Section: session.Section, Semester: session.Semester}.Key()
	out := &MultiOutcome{Session: session, Results: []facematch.Result{}, Marked: []MarkedFace{}}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	detections, err := r.detect(ctx, image)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return nil, err
		}
		r.logger.Warn("face detection failed", "session", session.ID, "error", err)
		r.metrics.RecordRecognition(scope, metrics.OutcomeError)
		out.Message = "Face detection unavailable, please retry"
		return out, nil
	}
	out.FacesDetected = len(detections)
	if len(detections) == 0 {
		r.metrics.RecordRecognition(scope, metrics.OutcomeNoFace)
		out.Message = "No face detected"
		return out, nil
	}

	results, err := bounded(ctx, func() ([]facematch.Result, error) {
		return r.matcher.MatchMultiple(ctx, scope, detections)
	})
	if err != nil {
		msg, ok := degradedMessage(err)
		if !ok {
			return nil, err
		}
		r.logger.Warn("face matching failed", "session", session.ID, "scope", scope, "error", err)
		r.metrics.RecordRecognition(scope, metrics.OutcomeError)
		for range detections {
			out.Results = append(out.Results, unknownResult())
		}
		out.Message = msg
		return out, nil
	}
	out.Results = results

	for _, res := range results {
		if !res.Matched {
			r.metrics.RecordRecognition(scope, metrics.OutcomeUnknown)
			continue
		}
		r.metrics.RecordRecognition(scope, metrics.OutcomeMatched)
		record, err := r.marking.MarkPresent(ctx, session.ID, res.Identity, res.Confidence, database.MarkedBySystem)
		if errors.Is(err, apperr.ErrNotFound) {
			r.logger.Info("recognized identity not on roster", "session", session.ID, "identity", res.Identity)
			continue
		}
		if err != nil {
			msg, ok := degradedMessage(err)
			if !ok {
				return nil, err
			}
			r.logger.Warn("marking timed out", "session", session.ID, "marked", len(out.Marked))
			out.Message = msg
			return out, nil
		}
		out.Marked = append(out.Marked, MarkedFace{
			Identity:   res.Identity,
			Name:       res.Name,
			Status:     record.Status,
			Confidence: res.Confidence,
		})
	}
	return out, nil
}

// Identify matches the first face of a capture without marking anything.
func (r *Recognizer) Identify(ctx context.Context, scope string, image []byte) (facematch.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	detections, err := r.detect(ctx, image)
	if err != nil {
		return facematch.Result{}, fmt.Errorf("detecting faces: %w", err)
	}
	if len(detections) == 0 {
		return facematch.Result{}, apperr.ErrNoFaceDetected
	}
	result, err := r.matcher.Match(ctx, scope, detections[0].Embedding)
	if err != nil {
		return facematch.Result{}, err
	}
	result.Location = facematch.LocationFromBBox(detections[0].BBox)
	return result, nil
}

// IdentifyAll matches every face of a capture without marking anything.
func (r *Recognizer) IdentifyAll(ctx context.Context, scope string, image []byte) ([]facematch.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	detections, err := r.detect(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	return r.matcher.MatchMultiple(ctx, scope, detections)
}

// Verify checks whether the first face of a capture belongs to identity.
func (r *Recognizer) Verify(ctx context.Context, scope, identity string, image []byte) (*facematch.Verification, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	detections, err := r.detect(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	if len(detections) == 0 {
		return nil, apperr.ErrNoFaceDetected
	}
	return r.matcher.Verify(ctx, scope, identity, detections[0].Embedding)
}
