package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/blob"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
)

// Subject is one identity with its enrollment images.
type Subject struct {
	Identity string
	Name     string
	Images   []database.EnrollmentImage
}

// ProgressFunc receives the number of processed images out of total.
type ProgressFunc func(done, total int)

// Warning flags an identity with too few encodings for reliable matching.
type Warning struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

// BuildResult is a built, not yet published gallery.
type BuildResult struct {
	Gallery       *Gallery
	Warnings      []Warning
	ImagesTotal   int
	ImagesSkipped int
}

// Builder extracts embeddings from enrollment images.
type Builder struct {
	detector     faceapi.Detector
	images       blob.Store
	logger       *slog.Logger
	concurrency  int
	maxImageSize int
	qualityFloor int
	params       map[string]string
	now          func() time.Time
}

// NewBuilder creates a builder. A nil logger discards output.
func NewBuilder(detector faceapi.Detector, images blob.Store, cfg config.GalleryConfig, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{
		detector:     detector,
		images:       images,
		logger:       logger.With("component", "gallery-builder"),
		concurrency:  max(1, cfg.Concurrency),
		maxImageSize: cfg.MaxImageSize,
		qualityFloor: cfg.QualityFloor,
		params:       maps.Clone(cfg.TrainingParams),
		now:          time.Now,
	}
}

type imageJob struct {
	subject int
	ref     database.EnrollmentImage
}

// Build turns the subjects' images into a gallery for scope. Images without
// a face or failing to load are skipped with a warning. Every face found in
// an image is attributed to the image's identity. Entries keep subject,
// image and face order regardless of worker scheduling.
func (b *Builder) Build(ctx context.Context, scope Scope, subjects []Subject, progress ProgressFunc) (*BuildResult, error) {
	var jobs []imageJob
	for i, s := range subjects {
		for _, img := range s.Images {
			jobs = append(jobs, imageJob{subject: i, ref: img})
		}
	}

	faces := make([][]faceapi.Detection, len(jobs))
	var (
		mu      sync.Mutex
		done    int
		skipped int
	)
	finish := func(skip bool) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if skip {
			skipped++
		}
		if progress != nil {
			progress(done, len(jobs))
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)
	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			detections, err := b.extract(ctx, job.ref)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				b.logger.Warn("skipping enrollment image",
					"identity", job.ref.Identity, "path", job.ref.Path, "error", err)
				finish(true)
				return nil
			}
			if len(detections) == 0 {
				b.logger.Warn("no face detected in enrollment image",
					"identity", job.ref.Identity, "path", job.ref.Path)
				finish(true)
				return nil
			}
			faces[i] = detections
			finish(false)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gallery := &Gallery{
		Scope:            scope.Key(),
		Version:          uuid.NewString(),
		EntityType:       scope.EntityType(),
		EncodingCounts:   make(map[string]int, len(subjects)),
		ParticipantCount: len(subjects),
		TrainingParams:   b.params,
		BuiltAt:          b.now().UTC(),
	}
	for i, job := range jobs {
		subject := subjects[job.subject]
		for _, f := range faces[i] {
			gallery.Entries = append(gallery.Entries, database.GalleryEntry{
				Position:  len(gallery.Entries),
				Identity:  subject.Identity,
				Name:      subject.Name,
				Embedding: f.Embedding,
			})
			gallery.EncodingCounts[subject.Identity]++
		}
	}

	if len(gallery.Entries) == 0 {
		return nil, fmt.Errorf("%w for scope %s from %d images", apperr.ErrNoFacesExtracted, scope.Key(), len(jobs))
	}

	result := &BuildResult{Gallery: gallery, ImagesTotal: len(jobs), ImagesSkipped: skipped}
	for _, s := range subjects {
		if n := gallery.EncodingCounts[s.Identity]; n < b.qualityFloor {
			result.Warnings = append(result.Warnings, Warning{Identity: s.Identity, Name: s.Name, Count: n})
			b.logger.Warn("identity below encoding floor",
				"identity", s.Identity, "encodings", n, "floor", b.qualityFloor)
		}
	}

	b.logger.Info("gallery built",
		"scope", gallery.Scope, "version", gallery.Version,
		"encodings", len(gallery.Entries), "identities", len(subjects), "skipped_images", skipped)
	return result, nil
}

// extract loads one image, downscales it and runs detection.
func (b *Builder) extract(ctx context.Context, ref database.EnrollmentImage) ([]faceapi.Detection, error) {
	data, err := b.images.Download(ctx, ref.Bucket, ref.Path)
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}
	data, err = faceapi.Downscale(data, b.maxImageSize)
	if err != nil {
		return nil, fmt.Errorf("resizing image: %w", err)
	}
	detections, err := b.detector.DetectFaces(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	return detections, nil
}

// Publisher uploads built galleries and swaps the scope's current version.
type Publisher struct {
	blobs  blob.Store
	store  database.GalleryStore
	bucket string
}

// NewPublisher creates a publisher writing artifacts into bucket.
func NewPublisher(blobs blob.Store, store database.GalleryStore, bucket string) *Publisher {
	return &Publisher{blobs: blobs, store: store, bucket: bucket}
}

// Publish uploads the artifact first and only then points the scope at the
// new version, so a failed upload leaves the previous version current.
func (p *Publisher) Publish(ctx context.Context, g *Gallery) (*database.GalleryMeta, error) {
	data, err := EncodeArtifact(g)
	if err != nil {
		return nil, err
	}

	path := ArtifactPath(g.Scope, g.Version)
	if _, err := p.blobs.Upload(ctx, p.bucket, path, data); err != nil {
		if errors.Is(err, apperr.ErrStorage) {
			return nil, err
		}
		return nil, apperr.Storage("upload gallery artifact", err)
	}

	meta := database.GalleryMeta{
		Scope:            g.Scope,
		Version:          g.Version,
		EntityType:       g.EntityType,
		Bucket:           p.bucket,
		Path:             path,
		ParticipantCount: g.ParticipantCount,
		EncodingCount:    len(g.Entries),
		UpdatedAt:        g.BuiltAt,
	}
	if err := p.store.PublishGallery(ctx, meta, g.Entries); err != nil {
		return nil, apperr.Storage("record gallery metadata", err)
	}
	return &meta, nil
}
