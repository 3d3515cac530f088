package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Database   DatabaseConfig
	FaceAPI    FaceAPIConfig
	Storage    StorageConfig
	Attendance AttendanceConfig
	Matching   MatchingConfig
	Gallery    GalleryConfig
	Web        WebConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type FaceAPIConfig struct {
	URL     string        // defaults to http://localhost:8000
	Timeout time.Duration // per-request timeout for detection calls
}

type StorageConfig struct {
	Backend string // "postgres" (default) or "fs"
	Dir     string // root directory for the fs backend
}

// AttendanceConfig holds the marking policy.
type AttendanceConfig struct {
	LateThreshold      time.Duration `yaml:"late_threshold"`
	RecognitionTimeout time.Duration `yaml:"recognition_timeout"`
}

type MatchingConfig struct {
	Strategy        string        `yaml:"strategy"` // linear, hnsw or pgvector
	Distance        string        `yaml:"distance"` // euclidean or cosine
	Tolerance       float64       `yaml:"tolerance"`
	VerifyTolerance float64       `yaml:"verify_tolerance"`
	VerifySamples   int           `yaml:"verify_samples"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

type GalleryConfig struct {
	Bucket              string            `yaml:"bucket"`
	QualityFloor        int               `yaml:"quality_floor"`
	Concurrency         int               `yaml:"concurrency"`
	MaxImageSize        int               `yaml:"max_image_size"`
	MinEnrollmentImages int               `yaml:"min_enrollment_images"`
	TrainingParams      map[string]string `yaml:"training_params"`
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	APIToken       string // empty disables token auth
}

type policy struct {
	Attendance AttendanceConfig `yaml:"attendance"`
	Matching   MatchingConfig   `yaml:"matching"`
	Gallery    GalleryConfig    `yaml:"gallery"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a positive Go duration ("90s", "10m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Defaults returns the embedded policy without any environment overrides.
func Defaults() *Config {
	var p policy
	if err := yaml.Unmarshal(policyYAML, &p); err != nil {
		// embedded file, cannot fail outside of development
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}
	return &Config{
		Database: DatabaseConfig{MaxOpenConns: 25, MaxIdleConns: 5},
		FaceAPI: FaceAPIConfig{
			URL:     "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Storage:    StorageConfig{Backend: "postgres", Dir: "data/blobs"},
		Attendance: p.Attendance,
		Matching:   p.Matching,
		Gallery:    p.Gallery,
		Web:        WebConfig{Host: "0.0.0.0", Port: 8080},
	}
}

func Load() *Config {
	cfg := Defaults()

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.FaceAPI.URL = envString("FACE_API_URL", cfg.FaceAPI.URL)
	cfg.FaceAPI.Timeout = envDuration("FACE_API_TIMEOUT", cfg.FaceAPI.Timeout)

	cfg.Storage.Backend = strings.ToLower(envString("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.Dir = envString("STORAGE_DIR", cfg.Storage.Dir)

	cfg.Attendance.LateThreshold = envDuration("LATE_THRESHOLD", cfg.Attendance.LateThreshold)
	cfg.Attendance.RecognitionTimeout = envDuration("RECOGNITION_TIMEOUT", cfg.Attendance.RecognitionTimeout)

	cfg.Matching.Strategy = strings.ToLower(envString("MATCH_STRATEGY", cfg.Matching.Strategy))
	cfg.Matching.Distance = strings.ToLower(envString("MATCH_DISTANCE", cfg.Matching.Distance))
	cfg.Matching.Tolerance = envFloat("MATCH_TOLERANCE", cfg.Matching.Tolerance)
	cfg.Matching.VerifyTolerance = envFloat("VERIFY_TOLERANCE", cfg.Matching.VerifyTolerance)
	cfg.Matching.CacheTTL = envDuration("GALLERY_CACHE_TTL", cfg.Matching.CacheTTL)

	cfg.Gallery.Bucket = envString("GALLERY_BUCKET", cfg.Gallery.Bucket)
	cfg.Gallery.Concurrency = envInt("GALLERY_CONCURRENCY", cfg.Gallery.Concurrency)
	cfg.Gallery.MaxImageSize = envInt("GALLERY_MAX_IMAGE_SIZE", cfg.Gallery.MaxImageSize)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.APIToken = os.Getenv("WEB_API_TOKEN")
	if origins := os.Getenv("WEB_ALLOWED_ORIGINS"); origins != "" {
		for o := range strings.SplitSeq(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Web.AllowedOrigins = append(cfg.Web.AllowedOrigins, o)
			}
		}
	}

	return cfg
}
