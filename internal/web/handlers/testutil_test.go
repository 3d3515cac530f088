package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/blob"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	dbmock "github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/faceapi/mock"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/stats"
)

var (
	ashaFace = []float32{0, 0, 1}
	raviFace = []float32{1, 0, 0}
	stranger = []float32{5, 5, 5}
)

// testConfig creates a config whose images pass through without decoding
func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Gallery.MaxImageSize = 0
	return cfg
}

type staticLoader map[string]*gallery.Gallery

func (l staticLoader) Load(_ context.Context, scope string) (*gallery.Gallery, error) {
	if g, ok := l[scope]; ok {
		return g, nil
	}
	return nil, fmt.Errorf("%w for scope %s", apperr.ErrNoGallery, scope)
}

// testServices wires the attendance services on top of the in-memory store.
type testServices struct {
	store      *dbmock.MockStore
	loader     staticLoader
	blobs      *blob.MemStore
	detector   *mock.MockDetector
	sessions   *attendance.SessionManager
	marking    *attendance.MarkingEngine
	recognizer *attendance.Recognizer
	aggregator *stats.Aggregator
	registrar  *enrollment.Registrar
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	cfg := testConfig()
	s := &testServices{
		store:    dbmock.NewMockStore(),
		blobs:    blob.NewMemStore(),
		detector: mock.NewMockDetector(),
	}
	s.store.AddPerson(database.Person{Identity: "S001", Name: "Asha Rao", Role: database.RoleStudent, Section: "A", Semester: 3})
	s.store.AddPerson(database.Person{Identity: "S002", Name: "Ravi Kumar", Role: database.RoleStudent, Section: "A", Semester: 3})

	s.loader = staticLoader{"A_3": {
		Scope:      "A_3",
		Version:    "v1",
		EntityType: database.RoleStudent,
		Entries: []database.GalleryEntry{
			{Position: 0, Identity: "S001", Name: "Asha Rao", Embedding: ashaFace},
			{Position: 1, Identity: "S002", Name: "Ravi Kumar", Embedding: raviFace},
		},
	}}
	matcher := facematch.NewMatcher(s.loader, facematch.NewLinearStrategy(database.MetricEuclidean), cfg.Matching)

	s.sessions = attendance.NewSessionManager(s.store, nil, nil)
	s.marking = attendance.NewMarkingEngine(s.store, cfg.Attendance, nil, nil)
	s.recognizer = attendance.NewRecognizer(s.sessions, s.marking, s.detector, matcher, cfg, nil, nil)
	s.aggregator = stats.NewAggregator(s.store, nil)
	s.registrar = enrollment.NewRegistrar(s.store, s.blobs, cfg.Gallery.MinEnrollmentImages, nil)
	return s
}

// startSession opens the A/3 session for subject 7
func (s *testServices) startSession(t *testing.T) *database.Session {
	t.Helper()
	res, err := s.sessions.Start(context.Background(), attendance.StartRequest{
		TeacherID: "T001", SubjectID: 7, Section: "A", Semester: 3, ClassName: "CSE-A",
	})
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	return res.Session
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a multipart form with text fields and files per field name
func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string][]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for field, contents := range files {
		for i, content := range contents {
			fw, err := mw.CreateFormFile(field, fmt.Sprintf("%s_%d.jpg", field, i))
			if err != nil {
				t.Fatalf("failed to create form file: %v", err)
			}
			fw.Write([]byte(content))
		}
	}
	mw.Close()

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%v'", expectedMessage, result["error"])
	}
}
