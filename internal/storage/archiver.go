package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/freescanner-live/internal/metrics"
	"github.com/snarg/freescanner-live/internal/scanner"
)

// Archiver saves the audio of played and downloaded calls in the background
// so the run loop never waits on disk or S3.
type Archiver struct {
	store    CallArchive
	ch       chan archiveJob
	log      zerolog.Logger
	stopped  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type archiveJob struct {
	key         string
	data        []byte
	contentType string
}

// NewArchiver creates an archiver with the given queue size.
func NewArchiver(store CallArchive, bufferSize int, log zerolog.Logger) *Archiver {
	return &Archiver{
		store: store,
		ch:    make(chan archiveJob, bufferSize),
		log:   log.With().Str("component", "archiver").Logger(),
	}
}

// ArchiveKey is the storage key for a call: {system}/{YYYY-MM-DD}/{id}-{name}.
func ArchiveKey(call *scanner.Call) string {
	name := path.Base(strings.ReplaceAll(call.AudioName, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "call" + extension(call.AudioType)
	}
	return fmt.Sprintf("%d/%s/%d-%s", call.System, call.DateTime.UTC().Format("2006-01-02"), call.ID, name)
}

func extension(contentType string) string {
	switch contentType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/aac", "audio/x-m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	}
	return ""
}

func (a *Archiver) CallPlayed(call *scanner.Call)     { a.enqueue(call) }
func (a *Archiver) CallDownloaded(call *scanner.Call) { a.enqueue(call) }

// enqueue is non-blocking; calls are dropped with a warning when the queue
// is full or the archiver stopped.
func (a *Archiver) enqueue(call *scanner.Call) {
	if call == nil || len(call.Audio) == 0 || a.stopped.Load() {
		return
	}
	ct := call.AudioType
	if ct == "" {
		ct = "application/octet-stream"
	}
	job := archiveJob{key: ArchiveKey(call), data: call.Audio, contentType: ct}
	select {
	case a.ch <- job:
	default:
		metrics.CallsArchivedTotal.WithLabelValues("dropped").Inc()
		a.log.Warn().Str("key", job.key).Msg("archive queue full, skipping call")
	}
}

// Start launches worker goroutines.
func (a *Archiver) Start(workers int) {
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	a.log.Info().Int("workers", workers).Int("buffer", cap(a.ch)).Str("store", a.store.Kind()).Msg("archiver started")
}

// Stop drains the queue and waits for the workers.
func (a *Archiver) Stop() {
	a.stopped.Store(true)
	a.stopOnce.Do(func() { close(a.ch) })
	a.wg.Wait()
}

func (a *Archiver) worker() {
	defer a.wg.Done()
	for job := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		switch {
		case a.store.Has(ctx, job.key):
			metrics.CallsArchivedTotal.WithLabelValues("exists").Inc()
		default:
			if err := a.store.Store(ctx, job.key, job.data, job.contentType); err != nil {
				metrics.CallsArchivedTotal.WithLabelValues("error").Inc()
				a.log.Error().Err(err).Str("key", job.key).Msg("archive write failed")
			} else {
				metrics.CallsArchivedTotal.WithLabelValues("saved").Inc()
				a.log.Debug().Str("key", job.key).Int("bytes", len(job.data)).Msg("call archived")
			}
		}
		cancel()
	}
}
