// Package mock provides a scripted face detector for testing.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/face-attendance/internal/faceapi"
)

// MockDetector returns detections registered per image payload
type MockDetector struct {
	mu    sync.RWMutex
	faces map[string][]faceapi.Detection
	fail  map[string]error
	calls atomic.Int64

	// Delay blocks each call until it elapses or the context is done
	Delay time.Duration
	// Error injection for every call
	DetectError error
}

// NewMockDetector creates a detector that finds no faces by default
func NewMockDetector() *MockDetector {
	return &MockDetector{
		faces: make(map[string][]faceapi.Detection),
		fail:  make(map[string]error),
	}
}

// AddImage registers the embeddings returned for an image payload
func (m *MockDetector) AddImage(image string, embeddings ...[]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dets := make([]faceapi.Detection, len(embeddings))
	for i, e := range embeddings {
		x := float64(i * 100)
		dets[i] = faceapi.Detection{
			Index:     i,
			Dim:       len(e),
			Embedding: e,
			BBox:      []float64{x, 10, x + 80, 110},
			Score:     0.99,
		}
	}
	m.faces[image] = dets
}

// FailImage makes detection of one payload fail
func (m *MockDetector) FailImage(image string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[image] = err
}

// Calls returns how many detections were requested
func (m *MockDetector) Calls() int {
	return int(m.calls.Load())
}

// DetectFaces implements faceapi.Detector
func (m *MockDetector) DetectFaces(ctx context.Context, image []byte) ([]faceapi.Detection, error) {
	m.calls.Add(1)
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.DetectError != nil {
		return nil, m.DetectError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail[string(image)]; err != nil {
		return nil, err
	}
	return m.faces[string(image)], nil
}
