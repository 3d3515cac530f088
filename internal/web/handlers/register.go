package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-attendance/internal/enrollment"
)

// RegisterHandler handles enrollment endpoints.
type RegisterHandler struct {
	registrar *enrollment.Registrar
	logger    *slog.Logger
}

// NewRegisterHandler creates a new register handler.
func NewRegisterHandler(registrar *enrollment.Registrar, logger *slog.Logger) *RegisterHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RegisterHandler{
		registrar: registrar,
		logger:    logger.With("component", "register-api"),
	}
}

type studentForm struct {
	Name             string `validate:"required"`
	EnrollmentNumber string `validate:"required"`
	Section          string `validate:"required"`
	Semester         string `validate:"required"`
	Email            string `validate:"omitempty,email"`
}

type teacherForm struct {
	Name       string `validate:"required"`
	TeacherID  string `validate:"required"`
	Email      string `validate:"omitempty,email"`
	Department string
}

type guestForm struct {
	Name         string `validate:"required"`
	DurationDays int    `validate:"required,min=1,max=365"`
	Section      string `validate:"required_with=Semester"`
	Semester     string `validate:"required_with=Section"`
}

func (h *RegisterHandler) respondRegistration(w http.ResponseWriter, reg *enrollment.Registration) {
	h.logger.Info("person registered", "identity", sanitizeForLog(reg.Person.Identity),
		"role", reg.Person.Role, "images", reg.ImagesUploaded)
	respondJSON(w, http.StatusCreated, map[string]any{
		"success":         true,
		"message":         "Registration successful",
		"person":          personToResponse(reg.Person),
		"images_uploaded": reg.ImagesUploaded,
		"folder":          reg.Folder,
	})
}

// Student registers a student with enrollment images.
func (h *RegisterHandler) Student(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	form := studentForm{
		Name:             r.FormValue("name"),
		EnrollmentNumber: r.FormValue("enrollment_number"),
		Section:          r.FormValue("section"),
		Semester:         r.FormValue("semester"),
		Email:            r.FormValue("email"),
	}
	if !validateRequest(w, form) {
		return
	}
	images, ok := readImages(w, r)
	if !ok {
		return
	}

	reg, err := h.registrar.RegisterStudent(r.Context(), enrollment.StudentRequest{
		Name:       form.Name,
		Enrollment: form.EnrollmentNumber,
		Section:    form.Section,
		Semester:   form.Semester,
		Email:      form.Email,
		Images:     images,
	})
	if err != nil {
		respondAppError(w, h.logger, "failed to register student", err)
		return
	}
	h.respondRegistration(w, reg)
}

// Teacher registers a teacher with enrollment images.
func (h *RegisterHandler) Teacher(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	form := teacherForm{
		Name:       r.FormValue("name"),
		TeacherID:  r.FormValue("teacher_id"),
		Email:      r.FormValue("email"),
		Department: r.FormValue("department"),
	}
	if !validateRequest(w, form) {
		return
	}
	images, ok := readImages(w, r)
	if !ok {
		return
	}

	reg, err := h.registrar.RegisterTeacher(r.Context(), enrollment.TeacherRequest{
		Name:       form.Name,
		TeacherID:  form.TeacherID,
		Email:      form.Email,
		Department: form.Department,
		Images:     images,
	})
	if err != nil {
		respondAppError(w, h.logger, "failed to register teacher", err)
		return
	}
	h.respondRegistration(w, reg)
}

// Guest registers a guest under a generated token.
func (h *RegisterHandler) Guest(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	days, err := strconv.Atoi(r.FormValue("duration"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "duration must be a number of days")
		return
	}
	form := guestForm{
		Name:         r.FormValue("name"),
		DurationDays: days,
		Section:      r.FormValue("section"),
		Semester:     r.FormValue("semester"),
	}
	if !validateRequest(w, form) {
		return
	}
	images, ok := readImages(w, r)
	if !ok {
		return
	}

	reg, err := h.registrar.RegisterGuest(r.Context(), enrollment.GuestRequest{
		Name:         form.Name,
		DurationDays: form.DurationDays,
		Section:      form.Section,
		Semester:     form.Semester,
		Images:       images,
	})
	if err != nil {
		respondAppError(w, h.logger, "failed to register guest", err)
		return
	}
	h.respondRegistration(w, reg)
}
