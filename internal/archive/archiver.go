package archive

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pelagos-labs/speakgrade/internal/metrics"
)

// Archiver saves recordings in the background so the evaluation request
// never waits on archive storage. The evaluation itself is already
// committed when a recording is enqueued; a dropped save loses only the
// audio copy, never the report.
type Archiver struct {
	store Store
	ch    chan job
	log   zerolog.Logger
	wg    sync.WaitGroup

	// mu orders Enqueue sends against the close in Stop so a late
	// Enqueue can never hit a closed channel.
	mu      sync.RWMutex
	stopped bool
}

type job struct {
	key         string
	contentType string
	data        []byte
}

// NewArchiver creates an archiver with the given queue size.
func NewArchiver(store Store, bufferSize int, log zerolog.Logger) *Archiver {
	return &Archiver{
		store: store,
		ch:    make(chan job, bufferSize),
		log:   log.With().Str("component", "archiver").Logger(),
	}
}

// Key builds the archive key for a recording uploaded now.
func (a *Archiver) Key(employeeID int64, filename string) string {
	return Key(employeeID, filename, time.Now())
}

// Enqueue queues a recording for archival. Non-blocking: if the queue is
// full or the archiver is stopped the recording is dropped with a warning.
func (a *Archiver) Enqueue(key, contentType string, data []byte) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		return
	}
	select {
	case a.ch <- job{key: key, contentType: contentType, data: data}:
	default:
		metrics.RecordingsArchivedTotal.WithLabelValues("dropped").Inc()
		a.log.Warn().Str("key", key).Msg("archive queue full, dropping recording")
	}
}

// Start launches worker goroutines.
func (a *Archiver) Start(workers int) {
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	a.log.Info().Int("workers", workers).Int("buffer", cap(a.ch)).Msg("archiver started")
}

// Stop drains the queue and waits for in-flight saves to finish. Safe to
// call more than once.
func (a *Archiver) Stop() {
	a.mu.Lock()
	already := a.stopped
	a.stopped = true
	if !already {
		close(a.ch)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Archiver) worker() {
	defer a.wg.Done()
	for j := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.store.Save(ctx, j.key, j.data, j.contentType); err != nil {
			metrics.RecordingsArchivedTotal.WithLabelValues("error").Inc()
			a.log.Error().Err(err).Str("key", j.key).Msg("recording archive failed")
		} else {
			metrics.RecordingsArchivedTotal.WithLabelValues("ok").Inc()
		}
		cancel()
	}
}
