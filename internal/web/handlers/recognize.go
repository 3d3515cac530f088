package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// RecognitionHandler identifies faces without touching attendance.
type RecognitionHandler struct {
	recognizer *attendance.Recognizer
	logger     *slog.Logger
}

// NewRecognitionHandler creates a new recognition handler.
func NewRecognitionHandler(recognizer *attendance.Recognizer, logger *slog.Logger) *RecognitionHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RecognitionHandler{
		recognizer: recognizer,
		logger:     logger.With("component", "recognition-api"),
	}
}

// scopeFromForm reads the gallery scope of a multipart request. Without
// section and semester the teachers gallery is used.
func (h *RecognitionHandler) scopeFromForm(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if !parseMultipart(w, r) {
		return "", nil, false
	}
	scope, err := gallery.NewScope(r.FormValue("section"), r.FormValue("semester"))
	if err != nil {
		respondAppError(w, h.logger, "invalid scope", err)
		return "", nil, false
	}
	image, ok := readImage(w, r)
	if !ok {
		return "", nil, false
	}
	return scope.Key(), image, true
}

// Recognize identifies the first face of an uploaded image.
func (h *RecognitionHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	scope, image, ok := h.scopeFromForm(w, r)
	if !ok {
		return
	}

	result, err := h.recognizer.Identify(r.Context(), scope, image)
	if err != nil {
		respondAppError(w, h.logger, "recognition failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"scope":  scope,
		"result": result,
	})
}

// RecognizeMultiple identifies every face of an uploaded image.
func (h *RecognitionHandler) RecognizeMultiple(w http.ResponseWriter, r *http.Request) {
	scope, image, ok := h.scopeFromForm(w, r)
	if !ok {
		return
	}

	results, err := h.recognizer.IdentifyAll(r.Context(), scope, image)
	if err != nil {
		respondAppError(w, h.logger, "recognition failed", err)
		return
	}
	if results == nil {
		results = []facematch.Result{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"scope":          scope,
		"faces_detected": len(results),
		"results":        results,
	})
}

// Verify checks an uploaded face against one claimed identity.
func (h *RecognitionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	scope, image, ok := h.scopeFromForm(w, r)
	if !ok {
		return
	}
	identity := strings.TrimSpace(r.FormValue("identity"))
	if identity == "" {
		respondError(w, http.StatusBadRequest, "identity is required")
		return
	}

	v, err := h.recognizer.Verify(r.Context(), scope, identity, image)
	if err != nil {
		respondAppError(w, h.logger, "verification failed", err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}
