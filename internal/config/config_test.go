package config

import (
	"testing"
	"time"
)

func TestDefaults_Policy(t *testing.T) {
	cfg := Defaults()

	if cfg.Attendance.LateThreshold != 10*time.Minute {
		t.Errorf("expected late threshold 10m, got %v", cfg.Attendance.LateThreshold)
	}
	if cfg.Matching.Tolerance != 0.5 {
		t.Errorf("expected tolerance 0.5, got %f", cfg.Matching.Tolerance)
	}
	if cfg.Matching.VerifyTolerance != 0.6 {
		t.Errorf("expected verify tolerance 0.6, got %f", cfg.Matching.VerifyTolerance)
	}
	if cfg.Gallery.QualityFloor != 5 {
		t.Errorf("expected quality floor 5, got %d", cfg.Gallery.QualityFloor)
	}
	if cfg.Gallery.Bucket != "face-recognition-models" {
		t.Errorf("unexpected bucket %q", cfg.Gallery.Bucket)
	}
	if cfg.Gallery.TrainingParams["num_jitters"] != "5" {
		t.Errorf("expected num_jitters 5, got %q", cfg.Gallery.TrainingParams["num_jitters"])
	}
	if cfg.Matching.Strategy != "linear" {
		t.Errorf("expected linear strategy, got %q", cfg.Matching.Strategy)
	}
}

func TestLoad_DatabaseConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/att")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "7")

	cfg := Load()

	if cfg.Database.URL != "postgres://u:p@localhost/att" {
		t.Errorf("unexpected database URL %q", cfg.Database.URL)
	}
	if cfg.Database.MaxOpenConns != 7 {
		t.Errorf("expected 7 open conns, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("expected default 5 idle conns, got %d", cfg.Database.MaxIdleConns)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(*Config) bool
	}{
		{"negative int", "DATABASE_MAX_OPEN_CONNS", "-1", func(c *Config) bool { return c.Database.MaxOpenConns == 25 }},
		{"zero int", "GALLERY_CONCURRENCY", "0", func(c *Config) bool { return c.Gallery.Concurrency == 4 }},
		{"bad float", "MATCH_TOLERANCE", "abc", func(c *Config) bool { return c.Matching.Tolerance == 0.5 }},
		{"negative float", "VERIFY_TOLERANCE", "-0.2", func(c *Config) bool { return c.Matching.VerifyTolerance == 0.6 }},
		{"bad duration", "LATE_THRESHOLD", "ten", func(c *Config) bool { return c.Attendance.LateThreshold == 10*time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if !tt.check(Load()) {
				t.Errorf("%s=%q should fall back to default", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LATE_THRESHOLD", "15m")
	t.Setenv("MATCH_STRATEGY", "HNSW")
	t.Setenv("MATCH_TOLERANCE", "0.45")
	t.Setenv("STORAGE_BACKEND", "fs")
	t.Setenv("FACE_API_URL", "http://faces:9000")

	cfg := Load()

	if cfg.Attendance.LateThreshold != 15*time.Minute {
		t.Errorf("expected 15m, got %v", cfg.Attendance.LateThreshold)
	}
	if cfg.Matching.Strategy != "hnsw" {
		t.Errorf("expected strategy to be lower-cased, got %q", cfg.Matching.Strategy)
	}
	if cfg.Matching.Tolerance != 0.45 {
		t.Errorf("expected tolerance 0.45, got %f", cfg.Matching.Tolerance)
	}
	if cfg.Storage.Backend != "fs" {
		t.Errorf("expected fs backend, got %q", cfg.Storage.Backend)
	}
	if cfg.FaceAPI.URL != "http://faces:9000" {
		t.Errorf("unexpected face api url %q", cfg.FaceAPI.URL)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg := Load()

	if len(cfg.Web.AllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.Web.AllowedOrigins)
	}
	if cfg.Web.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("unexpected origin %q", cfg.Web.AllowedOrigins[1])
	}
}

func TestLoad_Web(t *testing.T) {
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("WEB_API_TOKEN", "secret")

	cfg := Load()

	if cfg.Web.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Web.Port)
	}
	if cfg.Web.Host != "0.0.0.0" {
		t.Errorf("expected default host, got %q", cfg.Web.Host)
	}
	if cfg.Web.APIToken != "secret" {
		t.Errorf("unexpected api token %q", cfg.Web.APIToken)
	}
}
