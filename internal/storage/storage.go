package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/freescanner-live/internal/config"
)

// ErrNotArchived is returned by Locate for calls whose audio is not in the
// archive.
var ErrNotArchived = errors.New("call audio not archived")

// Location says where archived call audio can be served from. Exactly one
// field is set.
type Location struct {
	Path string        // file on this host
	URL  string        // presigned object URL
	Body io.ReadCloser // audio streamed from the archive
}

// CallArchive keeps the audio of played and downloaded calls, keyed by
// ArchiveKey.
type CallArchive interface {
	Store(ctx context.Context, key string, audio []byte, contentType string) error
	Has(ctx context.Context, key string) bool
	Locate(ctx context.Context, key string) (Location, error)

	// Kind is "local", "s3" or "tiered".
	Kind() string
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}

// New creates the call archive from config. The pruner is nil unless local
// files have a retention or size limit; the caller starts and stops it.
// An unreachable S3 bucket is an error.
func New(cfg *config.Config, log zerolog.Logger) (CallArchive, BackgroundService, error) {
	if !cfg.S3.Enabled() {
		local := NewLocalStore(cfg.AudioDir)
		return local, newPruner(cfg, nil, log), nil
	}

	s3store, err := NewS3Store(cfg.S3)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.S3.Bucket, cfg.S3.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.S3.Bucket).Str("endpoint", cfg.S3.Endpoint).Msg("S3 connection verified")

	if !cfg.S3.LocalCache || cfg.AudioDir == "" {
		return s3store, nil, nil
	}

	local := NewLocalStore(cfg.AudioDir)
	return NewTieredStore(s3store, local, log), newPruner(cfg, s3store, log), nil
}

func newPruner(cfg *config.Config, s3 *S3Store, log zerolog.Logger) BackgroundService {
	if cfg.AudioDir == "" || (cfg.AudioRetention == 0 && cfg.AudioMaxGB == 0) {
		return nil
	}
	return NewArchivePruner(cfg.AudioDir, cfg.AudioRetention, cfg.AudioMaxGB, s3, log)
}
