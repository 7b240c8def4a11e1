// Package joblog records the lifecycle of sync jobs: one row per execution of
// a source adapter, moving from started through running to completed or
// failed. The logger never returns store errors to its callers; it logs them
// and keeps its in-memory state authoritative for the running process.
package joblog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/logger"
)

// ErrSourceBusy is returned by Start when a job for the same source is active.
var ErrSourceBusy = errors.New("a job for this source is already running")

// MaxErrors bounds the error messages kept per job.
const MaxErrors = 50

// storeTimeout bounds each store write. Writes use their own context so a
// cancelled run is still recorded.
const storeTimeout = 5 * time.Second

// Store is the persistence the job logger needs.
type Store interface {
	InsertJob(ctx context.Context, id, source string, startedAt time.Time) error
	UpdateJobStatus(ctx context.Context, id string, status database.JobStatus) error
	UpdateJobProgress(ctx context.Context, id string, counts database.JobCounts, metadata map[string]any) error
	FinishJob(ctx context.Context, id string, status database.JobStatus, counts database.JobCounts,
		metadata map[string]any, errMsg *string, completedAt time.Time) error
	ActiveJob(ctx context.Context, source string, since time.Time) (*database.SyncJob, error)
	AbandonStaleJobs(ctx context.Context, source string, cutoff, now time.Time) (int64, error)
}

// Options configure a Logger.
type Options struct {
	// StaleAfter is the age after which an active job row is considered
	// abandoned by a crashed process.
	StaleAfter time.Duration
	Registerer prometheus.Registerer
	Now        func() time.Time
	NewID      func() string
}

// Summary is the outcome of one job.
type Summary struct {
	JobID           string             `json:"job_id"`
	Source          string             `json:"source"`
	Status          database.JobStatus `json:"status"`
	Processed       int                `json:"processed"`
	Updated         int                `json:"updated"`
	Created         int                `json:"created"`
	Skipped         int                `json:"skipped"`
	Errors          []string           `json:"errors"`
	ErrorCount      int                `json:"error_count"`
	Metadata        map[string]any     `json:"metadata,omitempty"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     time.Time          `json:"completed_at"`
	DurationSeconds float64            `json:"duration_seconds"`
}

// Duration is the wall time of the job.
func (s *Summary) Duration() time.Duration {
	return s.CompletedAt.Sub(s.StartedAt)
}

type jobState struct {
	id         string
	source     string
	status     database.JobStatus
	counts     database.JobCounts
	metadata   map[string]any
	errors     []string
	errorCount int
	startedAt  time.Time
	summary    *Summary
}

// Logger tracks sync jobs in memory and mirrors them to the store.
type Logger struct {
	store      Store
	log        logger.Logger
	metrics    *Metrics
	staleAfter time.Duration
	now        func() time.Time
	newID      func() string

	mu     sync.Mutex
	jobs   map[string]*jobState
	active map[string]string
}

// New creates a job logger.
func New(store Store, log logger.Logger, opts Options) *Logger {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 2 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Logger{
		store:      store,
		log:        log,
		metrics:    NewMetrics(opts.Registerer),
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
		newID:      opts.NewID,
		jobs:       make(map[string]*jobState),
		active:     make(map[string]string),
	}
}

// Start opens a job for source. It fails only with ErrSourceBusy.
func (l *Logger) Start(ctx context.Context, source string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := l.active[source]; ok {
		return "", fmt.Errorf("%w: %s (job %s)", ErrSourceBusy, source, id)
	}

	now := l.now().UTC()
	cutoff := now.Add(-l.staleAfter)
	if n, err := l.store.AbandonStaleJobs(ctx, source, cutoff, now); err != nil {
		l.log.Error("Failed to close stale jobs", logger.String("source", source), logger.Error(err))
	} else if n > 0 {
		l.log.Warn("Closed abandoned jobs", logger.String("source", source), logger.Int64("count", n))
	}

	running, err := l.store.ActiveJob(ctx, source, cutoff)
	if err != nil {
		l.log.Error("Failed to check for active jobs", logger.String("source", source), logger.Error(err))
	} else if running != nil {
		return "", fmt.Errorf("%w: %s (job %s)", ErrSourceBusy, source, running.ID)
	}

	id := l.newID()
	if err := l.store.InsertJob(ctx, id, source, now); err != nil {
		l.log.Error("Failed to record job start", logger.String("job_id", id), logger.Error(err))
	}
	l.jobs[id] = &jobState{
		id:        id,
		source:    source,
		status:    database.JobStarted,
		metadata:  make(map[string]any),
		startedAt: now,
	}
	l.active[source] = id

	l.log.Info("Job started", logger.String("job_id", id), logger.String("source", source))
	return id, nil
}

// MarkRunning moves a started job to running.
func (l *Logger) MarkRunning(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.live(id)
	if st == nil || st.status != database.JobStarted {
		return
	}
	st.status = database.JobRunning
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := l.store.UpdateJobStatus(ctx, id, database.JobRunning); err != nil {
		l.log.Error("Failed to mark job running", logger.String("job_id", id), logger.Error(err))
	}
}

func (l *Logger) IncrementProcessed(id string, n int) { l.increment(id, "processed", n) }
func (l *Logger) IncrementUpdated(id string, n int)   { l.increment(id, "updated", n) }
func (l *Logger) IncrementCreated(id string, n int)   { l.increment(id, "created", n) }
func (l *Logger) IncrementSkipped(id string, n int)   { l.increment(id, "skipped", n) }

func (l *Logger) increment(id, kind string, n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.live(id)
	if st == nil {
		return
	}
	switch kind {
	case "processed":
		st.counts.Processed += n
	case "updated":
		st.counts.Updated += n
	case "created":
		st.counts.Created += n
	case "skipped":
		st.counts.Skipped += n
	}
	l.metrics.ItemsTotal.WithLabelValues(st.source, kind).Add(float64(n))
	l.persist(st)
}

// SetMetadata attaches a key to the job's metadata.
func (l *Logger) SetMetadata(id, key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.live(id)
	if st == nil {
		return
	}
	st.metadata[key] = value
	l.persist(st)
}

// AddError records a per-item error. Only the first MaxErrors messages are
// kept; the total is always counted.
func (l *Logger) AddError(id, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.live(id)
	if st == nil {
		return
	}
	st.errorCount++
	if len(st.errors) < MaxErrors {
		st.errors = append(st.errors, msg)
	}
	l.persist(st)
}

// Complete closes the job as completed.
func (l *Logger) Complete(id string) *Summary {
	return l.finish(id, database.JobCompleted, nil)
}

// Fail closes the job as failed, keeping the counts accumulated so far.
func (l *Logger) Fail(id string, err error) *Summary {
	if err == nil {
		err = errors.New("unknown error")
	}
	return l.finish(id, database.JobFailed, err)
}

// Summary returns the current or final state of a job known to this process.
func (l *Logger) Summary(id string) *Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.jobs[id]
	if !ok {
		return nil
	}
	if st.summary != nil {
		return st.summary
	}
	return st.snapshot(l.now().UTC())
}

func (l *Logger) finish(id string, status database.JobStatus, cause error) *Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.jobs[id]
	if !ok {
		l.log.Warn("Finishing unknown job", logger.String("job_id", id))
		return nil
	}
	if st.summary != nil {
		return st.summary
	}

	completedAt := l.now().UTC()
	st.status = status
	var errMsg *string
	if cause != nil {
		msg := cause.Error()
		errMsg = &msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := l.store.FinishJob(ctx, id, status, st.counts, st.persistedMetadata(), errMsg, completedAt); err != nil {
		l.log.Error("Failed to record job end", logger.String("job_id", id), logger.Error(err))
	}

	st.summary = st.snapshot(completedAt)
	delete(l.active, st.source)

	l.metrics.JobsTotal.WithLabelValues(st.source, string(status)).Inc()
	l.metrics.JobDuration.WithLabelValues(st.source).Observe(st.summary.DurationSeconds)

	fields := []logger.Field{
		logger.String("job_id", id),
		logger.String("source", st.source),
		logger.String("status", string(status)),
		logger.Int("processed", st.counts.Processed),
		logger.Int("created", st.counts.Created),
		logger.Int("updated", st.counts.Updated),
		logger.Int("skipped", st.counts.Skipped),
		logger.Int("errors", st.errorCount),
		logger.Duration("duration", st.summary.Duration()),
	}
	if cause != nil {
		l.log.Error("Job failed", append(fields, logger.Error(cause))...)
	} else {
		l.log.Info("Job completed", fields...)
	}
	return st.summary
}

// live returns the state of a non-terminal job, or nil.
func (l *Logger) live(id string) *jobState {
	st, ok := l.jobs[id]
	if !ok || st.summary != nil {
		return nil
	}
	return st
}

func (l *Logger) persist(st *jobState) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := l.store.UpdateJobProgress(ctx, st.id, st.counts, st.persistedMetadata()); err != nil {
		l.log.Error("Failed to record job progress", logger.String("job_id", st.id), logger.Error(err))
	}
}

func (st *jobState) persistedMetadata() map[string]any {
	out := make(map[string]any, len(st.metadata)+2)
	for k, v := range st.metadata {
		out[k] = v
	}
	if len(st.errors) > 0 {
		out["errors"] = append([]string(nil), st.errors...)
		out["error_count"] = st.errorCount
	}
	return out
}

func (st *jobState) snapshot(at time.Time) *Summary {
	metadata := make(map[string]any, len(st.metadata))
	for k, v := range st.metadata {
		metadata[k] = v
	}
	return &Summary{
		JobID:           st.id,
		Source:          st.source,
		Status:          st.status,
		Processed:       st.counts.Processed,
		Updated:         st.counts.Updated,
		Created:         st.counts.Created,
		Skipped:         st.counts.Skipped,
		Errors:          append([]string{}, st.errors...),
		ErrorCount:      st.errorCount,
		Metadata:        metadata,
		StartedAt:       st.startedAt,
		CompletedAt:     at,
		DurationSeconds: at.Sub(st.startedAt).Seconds(),
	}
}
