// Package enrollment registers people together with their face images.
package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/blob"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// ImageBucket holds enrollment photos.
const ImageBucket = "enrollment"

const guestTokenAttempts = 10

// StudentRequest registers or updates a student.
type StudentRequest struct {
	Name       string
	Enrollment string
	Section    string
	Semester   string // 1-8 or I-VIII
	Email      string
	Images     [][]byte
}

// TeacherRequest registers or updates a teacher.
type TeacherRequest struct {
	Name       string
	TeacherID  string
	Email      string
	Department string
	Images     [][]byte
}

// GuestRequest registers a guest. Section and semester attach the guest to
// a class gallery; without them the guest is only stored.
type GuestRequest struct {
	Name         string
	DurationDays int
	Section      string
	Semester     string
	Images       [][]byte
}

// Registration is the stored person and where the images went.
type Registration struct {
	Person         database.Person `json:"person"`
	ImagesUploaded int             `json:"images_uploaded"`
	Folder         string          `json:"folder"`
}

// Registrar validates registrations and stores people and images.
type Registrar struct {
	roster    database.RosterStore
	blobs     blob.Store
	minImages int
	logger    *slog.Logger
	now       func() time.Time
	token     func() int
}

// NewRegistrar creates a registrar requiring at least minImages photos.
func NewRegistrar(roster database.RosterStore, blobs blob.Store, minImages int, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if minImages <= 0 {
		minImages = 5
	}
	return &Registrar{
		roster:    roster,
		blobs:     blobs,
		minImages: minImages,
		logger:    logger.With("component", "enrollment"),
		now:       time.Now,
		token:     func() int { return 100 + rand.IntN(900) },
	}
}

func (r *Registrar) checkImages(images [][]byte) error {
	if len(images) < r.minImages {
		return apperr.Validation("minimum %d images required, got %d", r.minImages, len(images))
	}
	for i, img := range images {
		if len(img) == 0 {
			return apperr.Validation("image %d is empty", i)
		}
	}
	return nil
}

// RegisterStudent stores a student and its enrollment images.
func (r *Registrar) RegisterStudent(ctx context.Context, req StudentRequest) (*Registration, error) {
	if err := r.checkImages(req.Images); err != nil {
		return nil, err
	}
	identity, ok := CleanIdentity(req.Enrollment)
	if !ok {
		return nil, apperr.Validation("invalid enrollment number %q", req.Enrollment)
	}
	name := CleanName(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	section := gallery.NormalizeSection(req.Section)
	if section == "" {
		return nil, apperr.Validation("section is required")
	}
	semester, err := gallery.ParseSemester(req.Semester)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = identity + "@student.edu"
	}

	p := database.Person{
		Identity: identity,
		Name:     name,
		Role:     database.RoleStudent,
		Section:  section,
		Semester: semester,
		Email:    email,
	}
	return r.register(ctx, p, req.Images)
}

// RegisterTeacher stores a teacher and its enrollment images.
func (r *Registrar) RegisterTeacher(ctx context.Context, req TeacherRequest) (*Registration, error) {
	if err := r.checkImages(req.Images); err != nil {
		return nil, err
	}
	identity, ok := CleanIdentity(req.TeacherID)
	if !ok {
		return nil, apperr.Validation("invalid teacher id %q", req.TeacherID)
	}
	name := CleanName(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}

	p := database.Person{
		Identity:   identity,
		Name:       name,
		Role:       database.RoleTeacher,
		Email:      strings.TrimSpace(req.Email),
		Department: strings.TrimSpace(req.Department),
	}
	return r.register(ctx, p, req.Images)
}

// RegisterGuest stores a guest under a freshly generated guest_YYYYMMDD_NNN token.
func (r *Registrar) RegisterGuest(ctx context.Context, req GuestRequest) (*Registration, error) {
	if err := r.checkImages(req.Images); err != nil {
		return nil, err
	}
	name := CleanName(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if req.DurationDays <= 0 {
		return nil, apperr.Validation("guest duration must be positive")
	}

	p := database.Person{
		Name:         name,
		Role:         database.RoleGuest,
		DurationDays: req.DurationDays,
	}
	if strings.TrimSpace(req.Section) != "" || strings.TrimSpace(req.Semester) != "" {
		scope, err := gallery.NewScope(req.Section, req.Semester)
		if err != nil {
			return nil, err
		}
		if scope.Teachers() {
			return nil, apperr.Validation("guests need both section and semester to join a class")
		}
		p.Section, p.Semester = scope.Section, scope.Semester
	}

	token, err := r.guestToken(ctx)
	if err != nil {
		return nil, err
	}
	p.Identity = token
	return r.register(ctx, p, req.Images)
}

// guestToken returns an unused guest token for today.
func (r *Registrar) guestToken(ctx context.Context) (string, error) {
	date := r.now().Format("20060102")
	for range guestTokenAttempts {
		token := fmt.Sprintf("%s%s_%03d", database.GuestPrefix, date, r.token())
		existing, err := r.roster.GetPerson(ctx, token)
		if err != nil {
			return "", fmt.Errorf("checking guest token: %w", err)
		}
		if existing == nil {
			return token, nil
		}
	}
	return "", fmt.Errorf("no free guest token for %s after %d attempts", date, guestTokenAttempts)
}

// ImagePath is where the n-th enrollment image of identity is stored.
func ImagePath(identity string, n int) string {
	return fmt.Sprintf("enrollment/%s/image_%d", identity, n)
}

func (r *Registrar) register(ctx context.Context, p database.Person, images [][]byte) (*Registration, error) {
	refs := make([]database.EnrollmentImage, len(images))
	for i, img := range images {
		path := ImagePath(p.Identity, i)
		if _, err := r.blobs.Upload(ctx, ImageBucket, path, img); err != nil {
			return nil, fmt.Errorf("uploading image %d of %s: %w", i, p.Identity, err)
		}
		refs[i] = database.EnrollmentImage{Identity: p.Identity, Position: i, Bucket: ImageBucket, Path: path}
	}

	if err := r.roster.SavePerson(ctx, p); err != nil {
		return nil, fmt.Errorf("saving %s %s: %w", p.Role, p.Identity, err)
	}
	if err := r.roster.AddEnrollmentImages(ctx, refs); err != nil {
		return nil, fmt.Errorf("saving image references of %s: %w", p.Identity, err)
	}

	r.logger.Info("registered", "role", p.Role, "identity", p.Identity, "images", len(refs))
	return &Registration{
		Person:         p,
		ImagesUploaded: len(refs),
		Folder:         "enrollment/" + p.Identity,
	}, nil
}
