package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"github.com/snarg/freescanner-live/internal/metrics"
)

// backup is the S3 side of a tiered archive.
type backup interface {
	Store(ctx context.Context, key string, audio []byte, contentType string) error
	Has(ctx context.Context, key string) bool
	fetch(ctx context.Context, key string) ([]byte, error)
}

// TieredStore archives calls on local disk and copies them to S3. The
// pruner only removes local files already in S3, and Locate restores pruned
// calls into the local cache.
type TieredStore struct {
	local  *LocalStore
	backup backup
	log    zerolog.Logger
}

func NewTieredStore(s3 *S3Store, local *LocalStore, log zerolog.Logger) *TieredStore {
	return &TieredStore{
		local:  local,
		backup: s3,
		log:    log.With().Str("component", "tiered-archive").Logger(),
	}
}

// Store fails only when the local write fails. A call missing from S3 stays
// on disk until a later Store or the pruner finds it.
func (s *TieredStore) Store(ctx context.Context, key string, audio []byte, contentType string) error {
	if err := s.local.Store(ctx, key, audio, contentType); err != nil {
		return err
	}
	if err := s.backup.Store(ctx, key, audio, contentType); err != nil {
		metrics.CallsArchivedTotal.WithLabelValues("backup_error").Inc()
		s.log.Warn().Err(err).Str("key", key).Msg("S3 copy failed, call kept on disk")
	}
	return nil
}

func (s *TieredStore) Has(ctx context.Context, key string) bool {
	return s.local.Has(ctx, key) || s.backup.Has(ctx, key)
}

func (s *TieredStore) Locate(ctx context.Context, key string) (Location, error) {
	loc, err := s.local.Locate(ctx, key)
	if !errors.Is(err, ErrNotArchived) {
		return loc, err
	}
	audio, err := s.backup.fetch(ctx, key)
	if err != nil {
		return Location{}, err
	}
	if err := s.local.Store(ctx, key, audio, ""); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("restoring call to disk failed, streaming from S3")
		return Location{Body: io.NopCloser(bytes.NewReader(audio))}, nil
	}
	s.log.Debug().Str("key", key).Int("bytes", len(audio)).Msg("call restored from S3")
	return s.local.Locate(ctx, key)
}

func (s *TieredStore) Kind() string { return "tiered" }
