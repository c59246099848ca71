package storage

import (
	"context"

	"github.com/rs/zerolog"
)

// TieredStore writes to local disk first, then to S3.
type TieredStore struct {
	s3    *S3Store
	local *LocalStore
	log   zerolog.Logger
}

func NewTieredStore(s3 *S3Store, local *LocalStore, log zerolog.Logger) *TieredStore {
	return &TieredStore{
		s3:    s3,
		local: local,
		log:   log.With().Str("component", "tiered-store").Logger(),
	}
}

// Save writes locally, then uploads. Both must succeed; a run has no
// background reconciler to retry a missed upload later.
func (s *TieredStore) Save(ctx context.Context, key string, data []byte, ct string) error {
	if err := s.local.Save(ctx, key, data, ct); err != nil {
		return err
	}
	if err := s.s3.Save(ctx, key, data, ct); err != nil {
		s.log.Warn().Err(err).Str("key", key).Str("local_path", s.local.Path(key)).Msg("S3 upload failed, result kept locally")
		return err
	}
	return nil
}

func (s *TieredStore) Type() string { return "tiered" }
