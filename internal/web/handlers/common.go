package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

const (
	// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
	errInvalidRequestBody = "invalid request body"

	maxUploadSize = 32 << 20
	maxImageBytes = 10 << 20
	dateLayout    = time.DateOnly
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response. The body is encoded before the status
// is written so an unencodable value becomes a 500 instead of an empty body.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if data == nil {
		w.WriteHeader(status)
		return
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "{\"error\":%q}\n", "failed to encode response")
		return
	}
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondAppError maps a service error to its status code. Server-side
// failures are logged and reported without internal detail.
func respondAppError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "error", err)
		respondError(w, status, msg)
		return
	}
	respondError(w, status, err.Error())
}

// validationMessage flattens validator errors into "field: tag" pairs.
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

// decodeJSON reads a JSON body into dst and validates its struct tags.
// On failure the error response is already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return validateRequest(w, dst)
}

func validateRequest(w http.ResponseWriter, req any) bool {
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxImageBytes {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fh.Filename, maxImageBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %s", fh.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %s", fh.Filename)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("file %s is empty", fh.Filename)
	}
	return data, nil
}

// parseMultipart parses the form once; callers then read fields and files.
func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return false
	}
	return true
}

// readImage returns the single uploaded image of the "file" field.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no image provided")
		return nil, false
	}
	data, err := readPart(files[0])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return data, true
}

// readImages returns every uploaded image of the "images" field.
func readImages(w http.ResponseWriter, r *http.Request) ([][]byte, bool) {
	files := r.MultipartForm.File["images"]
	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		images = append(images, data)
	}
	return images, true
}

// classParams reads the section and semester of a request.
func classParams(section, semester string) (string, int, error) {
	section = gallery.NormalizeSection(section)
	if section == "" {
		return "", 0, apperr.Validation("section is required")
	}
	n, err := gallery.ParseSemester(semester)
	if err != nil {
		return "", 0, err
	}
	return section, n, nil
}

// optionalInt64 parses an optional numeric query parameter.
func optionalInt64(value, name string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, apperr.Validation("invalid %s %q", name, value)
	}
	return &n, nil
}

func requiredInt64(value, name string) (int64, error) {
	n, err := optionalInt64(value, name)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, apperr.Validation("%s is required", name)
	}
	return *n, nil
}

func optionalDate(value, name string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, apperr.Validation("invalid %s %q, expected YYYY-MM-DD", name, value)
	}
	return &t, nil
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service health.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a health handler; db may be nil for in-memory deployments.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check handles the health check endpoint.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			resp["status"] = "unhealthy"
			resp["database"] = "disconnected"
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["database"] = "connected"
	}
	respondJSON(w, http.StatusOK, resp)
}
