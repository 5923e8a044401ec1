package archive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pruner evicts old recordings from local disk by age and/or total size.
// When an S3 backend is present it also acts as the upload reconciler: a
// local file missing from S3 is re-uploaded before it becomes eligible for
// eviction, so a dropped backup write never loses the recording.
type Pruner struct {
	dir       string
	retention time.Duration
	maxBytes  int64
	interval  time.Duration
	s3        backupStore
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// backupStore is the slice of the S3 store the pruner needs to secure a
// recording before evicting the local copy.
type backupStore interface {
	Exists(ctx context.Context, key string) bool
	Save(ctx context.Context, key string, data []byte, contentType string) error
}

// NewPruner creates a pruner over the local recording directory. s3 may be
// nil for local-only archives.
func NewPruner(dir string, retention time.Duration, maxGB int, s3 backupStore, log zerolog.Logger) *Pruner {
	return &Pruner{
		dir:       dir,
		retention: retention,
		maxBytes:  int64(maxGB) * 1024 * 1024 * 1024,
		interval:  1 * time.Hour,
		s3:        s3,
		log:       log.With().Str("component", "archive-pruner").Logger(),
		stop:      make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	go p.loop()
}

func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Pruner) loop() {
	// Run once on startup to clear any backlog from downtime
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

func (p *Pruner) prune() {
	if p.retention == 0 && p.maxBytes == 0 {
		return
	}

	cutoff := time.Now().Add(-p.retention)
	var totalSize int64
	var prunedCount, reuploaded, failed int
	var prunedBytes int64

	type fileEntry struct {
		path    string
		key     string
		modTime time.Time
		size    int64
	}
	var files []fileEntry

	filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(p.dir, path)
		if relErr != nil {
			return nil
		}
		files = append(files, fileEntry{
			path:    path,
			key:     filepath.ToSlash(rel),
			modTime: info.ModTime(),
			size:    info.Size(),
		})
		totalSize += info.Size()
		return nil
	})

	// Oldest first, so size-based eviction removes the least useful files.
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	for _, f := range files {
		shouldPrune := false
		if p.retention > 0 && f.modTime.Before(cutoff) {
			shouldPrune = true
		}
		if p.maxBytes > 0 && totalSize > p.maxBytes {
			shouldPrune = true
		}
		if !shouldPrune {
			continue
		}

		if p.s3 != nil {
			ok, uploaded := p.ensureInS3(f.key, f.path)
			if !ok {
				failed++
				continue
			}
			if uploaded {
				reuploaded++
			}
		}

		if err := os.Remove(f.path); err == nil {
			prunedCount++
			prunedBytes += f.size
			totalSize -= f.size
		}
	}

	p.removeEmptyDirs()

	if prunedCount > 0 || reuploaded > 0 || failed > 0 {
		p.log.Info().
			Int("pruned", prunedCount).
			Str("freed", humanizeBytes(prunedBytes)).
			Str("remaining", humanizeBytes(totalSize)).
			Int("reuploaded", reuploaded).
			Int("upload_failures", failed).
			Msg("archive prune complete")
	}
}

// ensureInS3 verifies the recording exists in S3, uploading it if missing.
// ok reports whether the recording is secured; when false the local copy
// must be kept. uploaded reports whether this call actually uploaded it.
func (p *Pruner) ensureInS3(key, path string) (ok, uploaded bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	exists := p.s3.Exists(ctx, key)
	cancel()
	if exists {
		return true, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("cannot read recording for re-upload")
		return false, false
	}

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.s3.Save(ctx, key, data, ContentTypeForExt(filepath.Ext(key))); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("re-upload before eviction failed, keeping local copy")
		return false, false
	}
	return true, true
}

// removeEmptyDirs cleans out empty {employee}/{date} directories left behind
// by eviction.
func (p *Pruner) removeEmptyDirs() {
	entries, _ := os.ReadDir(p.dir)
	for _, empDir := range entries {
		if !empDir.IsDir() {
			continue
		}
		empPath := filepath.Join(p.dir, empDir.Name())
		dateDirs, _ := os.ReadDir(empPath)
		for _, dateDir := range dateDirs {
			if !dateDir.IsDir() {
				continue
			}
			datePath := filepath.Join(empPath, dateDir.Name())
			remaining, _ := os.ReadDir(datePath)
			if len(remaining) == 0 {
				os.Remove(datePath)
			}
		}
		remaining, _ := os.ReadDir(empPath)
		if len(remaining) == 0 {
			os.Remove(empPath)
		}
	}
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
