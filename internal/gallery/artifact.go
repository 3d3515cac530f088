package gallery

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Gallery is an immutable, published set of labelled embeddings for one scope.
type Gallery struct {
	Scope            string
	Version          string
	EntityType       database.Role
	Entries          []database.GalleryEntry
	EncodingCounts   map[string]int
	ParticipantCount int
	TrainingParams   map[string]string
	BuiltAt          time.Time
}

// Artifact is the serialized form of a gallery. Encodings, Names and IDs are
// parallel slices in gallery order.
type Artifact struct {
	Encodings        [][]float32
	Names            []string
	IDs              []string
	EntityType       string
	Scope            string
	Version          string
	TrainingParams   map[string]string
	EncodingCounts   map[string]int
	ParticipantCount int
	BuiltAt          time.Time
}

// EncodeArtifact serializes a gallery with gob.
func EncodeArtifact(g *Gallery) ([]byte, error) {
	a := Artifact{
		Encodings:        make([][]float32, len(g.Entries)),
		Names:            make([]string, len(g.Entries)),
		IDs:              make([]string, len(g.Entries)),
		EntityType:       string(g.EntityType),
		Scope:            g.Scope,
		Version:          g.Version,
		TrainingParams:   g.TrainingParams,
		EncodingCounts:   g.EncodingCounts,
		ParticipantCount: g.ParticipantCount,
		BuiltAt:          g.BuiltAt,
	}
	for i, e := range g.Entries {
		a.Encodings[i] = e.Embedding
		a.Names[i] = e.Name
		a.IDs[i] = e.Identity
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&a); err != nil {
		return nil, fmt.Errorf("failed to encode gallery artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeArtifact restores a gallery from its serialized form.
func DecodeArtifact(data []byte) (*Gallery, error) {
	var a Artifact
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode gallery artifact: %w", err)
	}
	if len(a.Names) != len(a.Encodings) || len(a.IDs) != len(a.Encodings) {
		return nil, fmt.Errorf("corrupt gallery artifact: %d encodings, %d names, %d ids",
			len(a.Encodings), len(a.Names), len(a.IDs))
	}

	g := &Gallery{
		Scope:            a.Scope,
		Version:          a.Version,
		EntityType:       database.Role(a.EntityType),
		Entries:          make([]database.GalleryEntry, len(a.Encodings)),
		EncodingCounts:   a.EncodingCounts,
		ParticipantCount: a.ParticipantCount,
		TrainingParams:   a.TrainingParams,
		BuiltAt:          a.BuiltAt,
	}
	for i := range a.Encodings {
		g.Entries[i] = database.GalleryEntry{
			Position:  i,
			Identity:  a.IDs[i],
			Name:      a.Names[i],
			Embedding: a.Encodings[i],
		}
	}
	return g, nil
}

// ArtifactPath is where a gallery version is stored inside the bucket.
func ArtifactPath(scope, version string) string {
	return fmt.Sprintf("models/%s/%s/model.gob", scope, version)
}
