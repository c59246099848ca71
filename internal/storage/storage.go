package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/speech-async/internal/config"
)

// ResultStore persists finished operation payloads.
type ResultStore interface {
	// Save stores data under key. key format: {operation_name}.json
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Type returns "local", "s3", or "tiered".
	Type() string
}

// New picks a ResultStore from config. It returns nil when neither an output
// directory nor an S3 bucket is configured, and an error if S3 is configured
// but unreachable.
func New(cfg config.S3Config, outputDir string, log zerolog.Logger) (ResultStore, error) {
	if !cfg.Enabled() {
		if outputDir == "" {
			return nil, nil
		}
		return NewLocalStore(outputDir), nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access before the
	// recognition is submitted, so a bad bucket doesn't waste a job.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	if outputDir == "" {
		return s3store, nil
	}
	return NewTieredStore(s3store, NewLocalStore(outputDir), log), nil
}
