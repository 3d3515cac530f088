package facematch

import (
	"context"
	"fmt"
	"math"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// GalleryLoader returns the published gallery of a scope key.
type GalleryLoader interface {
	Load(ctx context.Context, scope string) (*gallery.Gallery, error)
}

// Matcher identifies probes against the published galleries.
type Matcher struct {
	loader          GalleryLoader
	strategy        Strategy
	tolerance       float64
	verifyTolerance float64
	verifySamples   int
}

// NewMatcher creates a matcher with the tolerances from cfg.
func NewMatcher(loader GalleryLoader, strategy Strategy, cfg config.MatchingConfig) *Matcher {
	m := &Matcher{
		loader:          loader,
		strategy:        strategy,
		tolerance:       cfg.Tolerance,
		verifyTolerance: cfg.VerifyTolerance,
		verifySamples:   cfg.VerifySamples,
	}
	if m.tolerance <= 0 {
		m.tolerance = 0.5
	}
	if m.verifyTolerance <= 0 {
		m.verifyTolerance = 0.6
	}
	if m.verifySamples <= 0 {
		m.verifySamples = 5
	}
	return m
}

// Tolerance returns the live matching tolerance.
func (m *Matcher) Tolerance() float64 {
	return m.tolerance
}

func (m *Matcher) load(ctx context.Context, scope string) (*gallery.Gallery, error) {
	if scope == "" {
		scope = gallery.TeachersScope
	}
	return m.loader.Load(ctx, scope)
}

func (m *Matcher) nearest(ctx context.Context, g *gallery.Gallery, probe []float32) (Result, error) {
	if len(probe) == 0 {
		return Result{}, apperr.Validation("empty probe embedding")
	}
	best, err := m.strategy.Nearest(ctx, g, probe)
	if err != nil {
		return Result{}, err
	}
	if best == nil {
		return unknown(math.Inf(1)), nil
	}
	if best.Distance <= m.tolerance {
		return matched(g.EntityType, best), nil
	}
	return unknown(best.Distance), nil
}

// Match identifies a single probe in the gallery of scope. An empty scope
// selects the teachers gallery. A probe farther than the tolerance from
// every entry yields an Unknown result, not an error.
func (m *Matcher) Match(ctx context.Context, scope string, probe []float32) (Result, error) {
	g, err := m.load(ctx, scope)
	if err != nil {
		return Result{}, err
	}
	return m.nearest(ctx, g, probe)
}

// MatchMultiple matches every detection independently and returns one
// result per detection in detection order. Two detections matching the
// same identity both keep their result.
func (m *Matcher) MatchMultiple(ctx context.Context, scope string, detections []faceapi.Detection) ([]Result, error) {
	g, err := m.load(ctx, scope)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(detections))
	for i, d := range detections {
		r, err := m.nearest(ctx, g, d.Embedding)
		if err != nil {
			return nil, fmt.Errorf("matching face %d: %w", i, err)
		}
		r.Location = LocationFromBBox(d.BBox)
		results[i] = r
	}
	return results, nil
}

// Verification is the outcome of a one-to-one check.
type Verification struct {
	Identity   string  `json:"identity"`
	Name       string  `json:"name"`
	Role       Role    `json:"role"`
	Verified   bool    `json:"verified"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
	Samples    int     `json:"samples"`
}

// Verify checks whether probe belongs to identity by averaging its distance
// to the first stored entries of that identity.
func (m *Matcher) Verify(ctx context.Context, scope, identity string, probe []float32) (*Verification, error) {
	if len(probe) == 0 {
		return nil, apperr.Validation("empty probe embedding")
	}
	g, err := m.load(ctx, scope)
	if err != nil {
		return nil, err
	}

	var (
		total   float64
		samples int
		name    string
	)
	for _, e := range g.Entries {
		if e.Identity != identity {
			continue
		}
		total += m.strategy.Metric().Distance(probe, e.Embedding)
		name = e.Name
		samples++
		if samples == m.verifySamples {
			break
		}
	}
	if samples == 0 {
		return nil, apperr.NotFound("identity in gallery "+g.Scope, identity)
	}

	avg := total / float64(samples)
	if math.IsInf(avg, 0) || math.IsNaN(avg) {
		return nil, apperr.Validation("probe embedding does not match the dimension of gallery %s", g.Scope)
	}
	v := &Verification{
		Identity: identity,
		Name:     name,
		Role:     InferRole(g.EntityType, identity),
		Verified: avg <= m.verifyTolerance,
		Distance: avg,
		Samples:  samples,
	}
	if v.Verified {
		v.Confidence = 1 - avg
	}
	return v, nil
}
