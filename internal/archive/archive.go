// Package archive retains uploaded recordings after their evaluation has
// been committed. Recordings are keyed {employee_id}/{YYYY-MM-DD}/{file_id}
// so retention can be enforced per day and audit questions ("what audio
// produced this report?") stay answerable.
package archive

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pelagos-labs/speakgrade/internal/config"
)

// Store abstracts a recording storage backend.
type Store interface {
	// Save stores a recording under its archive key.
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Open returns a reader for a stored recording.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if a recording exists in any backend.
	Exists(ctx context.Context, key string) bool

	// URL returns a presigned download URL, or "" for local-only backends.
	URL(ctx context.Context, key string) (string, error)

	// Type returns "local", "s3", or "tiered".
	Type() string
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}

// New creates a Store from config, plus background services the caller must
// Start/Stop. Returns an error if S3 is configured but unreachable, so a
// misconfigured archive fails at startup rather than on the first upload.
func New(cfg config.ArchiveConfig, log zerolog.Logger) (Store, []BackgroundService, error) {
	if !cfg.S3Enabled() {
		local := NewLocalStore(cfg.Dir)
		var services []BackgroundService
		if cfg.Retention > 0 || cfg.MaxGB > 0 {
			services = append(services, NewPruner(cfg.Dir, cfg.Retention, cfg.MaxGB, nil, log))
		}
		return local, services, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("s3 init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("s3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.S3Bucket, cfg.S3Endpoint, err)
	}
	log.Info().Str("bucket", cfg.S3Bucket).Str("endpoint", cfg.S3Endpoint).Msg("s3 connection verified")

	if cfg.Dir == "" {
		return s3store, nil, nil
	}

	local := NewLocalStore(cfg.Dir)
	tiered := NewTieredStore(s3store, local, log)

	// The pruner doubles as the upload reconciler in tiered mode: before
	// evicting a local file it checks S3 and re-uploads anything missing.
	services := []BackgroundService{
		NewPruner(cfg.Dir, cfg.Retention, cfg.MaxGB, s3store, log),
	}
	return tiered, services, nil
}

// Key builds the archive key for a new recording. The file id is random, so
// repeated uploads for the same employee never collide.
func Key(employeeID int64, filename string, now time.Time) string {
	return fmt.Sprintf("%d/%s/%s%s",
		employeeID, now.UTC().Format("2006-01-02"), uuid.NewString(), safeExt(filename))
}

// safeExt returns a sanitized lowercase file extension, or "" when the
// filename has none worth keeping.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// ContentTypeForExt returns the MIME type for a recording file extension.
func ContentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
