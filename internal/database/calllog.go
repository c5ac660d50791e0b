package database

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/freescanner-live/internal/metrics"
	"github.com/snarg/freescanner-live/internal/scanner"
)

const (
	callLogBatchSize     = 50
	callLogFlushInterval = 2 * time.Second
	callLogWriteTimeout  = 10 * time.Second

	// Rows from failed inserts are retried with the next batch while fewer
	// than this many rows are waiting.
	callLogMaxPending = 4 * callLogBatchSize
)

// PlayedCallWriter persists log rows. *DB implements it.
type PlayedCallWriter interface {
	InsertPlayedCalls(ctx context.Context, rows []PlayedCallRow) (int64, error)
}

// CallLog records played and downloaded calls. Rows are written when
// batchSize of them are waiting or interval after the first one arrived,
// whichever comes first.
type CallLog struct {
	writer    PlayedCallWriter
	keyFn     func(*scanner.Call) string
	now       func() time.Time
	log       zerolog.Logger
	batchSize int
	interval  time.Duration

	mu      sync.Mutex
	pending []PlayedCallRow
	timer   *time.Timer
	stopped bool
	writes  sync.WaitGroup
}

// NewCallLog creates a call log. keyFn names the archived audio of a call;
// nil means calls are not archived.
func NewCallLog(w PlayedCallWriter, keyFn func(*scanner.Call) string, log zerolog.Logger) *CallLog {
	return &CallLog{
		writer:    w,
		keyFn:     keyFn,
		now:       time.Now,
		log:       log.With().Str("component", "call-log").Logger(),
		batchSize: callLogBatchSize,
		interval:  callLogFlushInterval,
	}
}

func (l *CallLog) CallPlayed(call *scanner.Call)     { l.add(call, "played") }
func (l *CallLog) CallDownloaded(call *scanner.Call) { l.add(call, "downloaded") }

// Pending reports rows not yet handed to the writer.
func (l *CallLog) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Stop writes pending rows and waits for in-flight inserts. Calls logged
// after Stop are dropped.
func (l *CallLog) Stop() {
	l.mu.Lock()
	l.stopped = true
	if len(l.pending) > 0 {
		l.writeLocked()
	} else if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()
	l.writes.Wait()
}

func (l *CallLog) add(call *scanner.Call, action string) {
	if call == nil {
		return
	}
	r := l.row(call, action)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.pending = append(l.pending, r)
	if len(l.pending) >= l.batchSize {
		l.writeLocked()
		return
	}
	l.armLocked()
}

func (l *CallLog) armLocked() {
	if l.timer == nil {
		l.timer = time.AfterFunc(l.interval, l.due)
	}
}

func (l *CallLog) due() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timer = nil
	if len(l.pending) > 0 {
		l.writeLocked()
	}
}

// writeLocked hands the pending rows to a background insert.
func (l *CallLog) writeLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	rows := l.pending
	l.pending = nil
	l.writes.Add(1)
	go func() {
		defer l.writes.Done()
		l.insert(rows)
	}()
}

func (l *CallLog) insert(rows []PlayedCallRow) {
	ctx, cancel := context.WithTimeout(context.Background(), callLogWriteTimeout)
	defer cancel()
	n, err := l.writer.InsertPlayedCalls(ctx, rows)
	if err == nil {
		metrics.CallLogWritesTotal.WithLabelValues("ok").Add(float64(n))
		l.log.Debug().Int64("rows", n).Msg("call log flushed")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || len(l.pending)+len(rows) > callLogMaxPending {
		metrics.CallLogWritesTotal.WithLabelValues("error").Add(float64(len(rows)))
		l.log.Error().Err(err).Int("rows", len(rows)).Msg("call log insert failed, rows dropped")
		return
	}
	l.log.Warn().Err(err).Int("rows", len(rows)).Msg("call log insert failed, retrying with next batch")
	l.pending = append(rows, l.pending...)
	l.armLocked()
}

func (l *CallLog) row(call *scanner.Call, action string) PlayedCallRow {
	r := PlayedCallRow{
		CallID:      call.ID,
		SystemID:    call.System,
		TalkgroupID: call.Talkgroup,
		CallTime:    call.DateTime,
		Source:      call.Source,
		Action:      action,
		LoggedAt:    l.now(),
	}
	if call.SystemData != nil {
		r.SystemLabel = call.SystemData.Label
	}
	if call.TalkgroupData != nil {
		r.TalkgroupLabel = call.TalkgroupData.Label
		r.TalkgroupName = call.TalkgroupData.Name
	}
	if call.Frequency != nil {
		f := int64(*call.Frequency)
		r.Frequency = &f
	}
	if d := call.Duration(); d > 0 {
		secs := float32(d.Seconds())
		r.Duration = &secs
	}
	for _, p := range call.Patches {
		r.Patches = append(r.Patches, int32(p))
	}
	if l.keyFn != nil && len(call.Audio) > 0 {
		key := l.keyFn(call)
		r.AudioKey = &key
	}
	return r
}
