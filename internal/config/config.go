package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// PipelineConfig holds the tunables shared by every binary that runs or
// serves attendance sessions. Binaries embed it in their own env config.
type PipelineConfig struct {
	MediaBucket   string `env:"MEDIA_BUCKET" envDefault:"classroom-media"`
	CollectionId  string `env:"FACE_COLLECTION_ID" envDefault:"students"`
	PhotoPrefix   string `env:"PHOTO_PREFIX" envDefault:"photos/"`
	ResultsPrefix string `env:"RESULTS_PREFIX" envDefault:"rekognition-results/"`

	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"10s"`
	PollTimeout     time.Duration `env:"POLL_TIMEOUT" envDefault:"600s"`
	StatusLogStride int           `env:"STATUS_LOG_STRIDE" envDefault:"3"`

	MatchThreshold float64 `env:"MATCH_THRESHOLD" envDefault:"80"`
	AdmissionGate  string  `env:"ADMISSION_GATE" envDefault:"similarity"`
	MaxResultPages int     `env:"MAX_RESULT_PAGES" envDefault:"0"`

	MaxSessionSec float64 `env:"MAX_SESSION_SEC" envDefault:"3000"`
	MinBBoxArea   float64 `env:"MIN_BBOX_AREA" envDefault:"0.005"`
	MaxBBoxArea   float64 `env:"MAX_BBOX_AREA" envDefault:"0.03"`

	WriteConcurrency int `env:"WRITE_CONCURRENCY" envDefault:"4"`

	ClassCatalogPath string `env:"CLASS_CATALOG_PATH"`
	EmailDomain      string `env:"EMAIL_DOMAIN" envDefault:"university.edu"`
}

func LoadPipelineConfig() (PipelineConfig, error) {
	var cfg PipelineConfig
	if err := env.Parse(&cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("error parsing pipeline config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return PipelineConfig{}, err
	}
	return cfg, nil
}

func (c PipelineConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.PollTimeout < c.PollInterval {
		return fmt.Errorf("POLL_TIMEOUT (%s) must not be shorter than POLL_INTERVAL (%s)", c.PollTimeout, c.PollInterval)
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 100 {
		return fmt.Errorf("MATCH_THRESHOLD must be within [0, 100], got %v", c.MatchThreshold)
	}
	if c.AdmissionGate != "similarity" && c.AdmissionGate != "confidence" {
		return fmt.Errorf("ADMISSION_GATE must be 'similarity' or 'confidence', got '%s'", c.AdmissionGate)
	}
	if c.MinBBoxArea >= c.MaxBBoxArea {
		return fmt.Errorf("MIN_BBOX_AREA (%v) must be less than MAX_BBOX_AREA (%v)", c.MinBBoxArea, c.MaxBBoxArea)
	}
	if c.MaxSessionSec <= 0 {
		return fmt.Errorf("MAX_SESSION_SEC must be positive, got %v", c.MaxSessionSec)
	}
	if c.WriteConcurrency <= 0 {
		slog.Warn("invalid WRITE_CONCURRENCY, using 1", "value", c.WriteConcurrency)
	}
	return nil
}
