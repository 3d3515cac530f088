package gallery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// TrainResult describes a published gallery.
type TrainResult struct {
	Meta          database.GalleryMeta `json:"meta"`
	Warnings      []Warning            `json:"warnings"`
	ImagesTotal   int                  `json:"images_total"`
	ImagesSkipped int                  `json:"images_skipped"`
}

// Trainer loads a scope's population, builds its gallery and publishes it.
type Trainer struct {
	roster    database.RosterStore
	builder   *Builder
	publisher *Publisher
	logger    *slog.Logger
}

// NewTrainer wires the build pipeline together.
func NewTrainer(roster database.RosterStore, builder *Builder, publisher *Publisher, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Trainer{
		roster:    roster,
		builder:   builder,
		publisher: publisher,
		logger:    logger.With("component", "gallery-trainer"),
	}
}

// Subjects returns the people of a scope with their enrollment images.
// Student scopes include guests attached to the same section and semester.
func (t *Trainer) Subjects(ctx context.Context, scope Scope) ([]Subject, error) {
	filter := database.PersonFilter{Roles: []database.Role{database.RoleTeacher}}
	if !scope.Teachers() {
		filter = database.PersonFilter{
			Roles:    []database.Role{database.RoleStudent, database.RoleGuest},
			Section:  scope.Section,
			Semester: scope.Semester,
		}
	}

	people, err := t.roster.ListPeople(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing people for %s: %w", scope.Key(), err)
	}
	if len(people) == 0 {
		return nil, apperr.NotFound("people in scope", scope.Key())
	}

	identities := make([]string, len(people))
	for i, p := range people {
		identities[i] = p.Identity
	}
	images, err := t.roster.ListEnrollmentImages(ctx, identities)
	if err != nil {
		return nil, fmt.Errorf("listing enrollment images for %s: %w", scope.Key(), err)
	}
	if len(images) == 0 {
		return nil, apperr.NotFound("enrollment images in scope", scope.Key())
	}

	byIdentity := make(map[string][]database.EnrollmentImage, len(people))
	for _, img := range images {
		byIdentity[img.Identity] = append(byIdentity[img.Identity], img)
	}

	subjects := make([]Subject, len(people))
	for i, p := range people {
		subjects[i] = Subject{Identity: p.Identity, Name: p.Name, Images: byIdentity[p.Identity]}
	}
	return subjects, nil
}

// Train rebuilds and publishes the gallery of scope.
func (t *Trainer) Train(ctx context.Context, scope Scope, progress ProgressFunc) (*TrainResult, error) {
	subjects, err := t.Subjects(ctx, scope)
	if err != nil {
		return nil, err
	}

	t.logger.Info("building gallery", "scope", scope.Key(), "identities", len(subjects))
	built, err := t.builder.Build(ctx, scope, subjects, progress)
	if err != nil {
		return nil, err
	}

	meta, err := t.publisher.Publish(ctx, built.Gallery)
	if err != nil {
		return nil, err
	}
	t.logger.Info("gallery published", "scope", meta.Scope, "version", meta.Version, "path", meta.Path)

	return &TrainResult{
		Meta:          *meta,
		Warnings:      built.Warnings,
		ImagesTotal:   built.ImagesTotal,
		ImagesSkipped: built.ImagesSkipped,
	}, nil
}
