// Package scheduler triggers sync and enrichment jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TobiSchelling/electwatch/internal/joblog"
	"github.com/TobiSchelling/electwatch/internal/logger"
)

// ErrUnknownJob is returned when a schedule names a job the runner does not know.
var ErrUnknownJob = errors.New("unknown job")

// Runner runs a job by name.
type Runner interface {
	Run(ctx context.Context, name string) (*joblog.Summary, error)
}

// Entry is one scheduled job.
type Entry struct {
	Name string
	Spec string
	Next time.Time
	id   cron.EntryID
}

// Scheduler runs jobs on standard five-field cron expressions. A job whose
// previous run is still going is skipped rather than queued.
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	runner Runner
	log    logger.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a stopped scheduler.
func New(runner Runner, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	cl := cronLogger{log: log}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		parser:  parser,
		runner:  runner,
		log:     log,
		entries: make(map[string]*Entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Load schedules every job in schedule. Names not in known and invalid
// expressions are reported together; valid entries are still scheduled.
func (s *Scheduler) Load(schedule map[string]string, known []string) error {
	names := make([]string, 0, len(schedule))
	for name := range schedule {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if !slices.Contains(known, name) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownJob, name))
			continue
		}
		if err := s.Schedule(name, schedule[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Schedule adds or replaces the schedule of one job.
func (s *Scheduler) Schedule(name, spec string) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule for %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old.id)
	}
	id, err := s.cron.AddFunc(spec, func() { s.trigger(name) })
	if err != nil {
		return fmt.Errorf("schedule for %s: %w", name, err)
	}
	s.entries[name] = &Entry{Name: name, Spec: spec, id: id}
	s.log.Info("Job scheduled", logger.String("job", name), logger.String("schedule", spec))
	return nil
}

func (s *Scheduler) trigger(name string) {
	s.log.Info("Cron triggered", logger.String("job", name))
	summary, err := s.runner.Run(s.ctx, name)
	switch {
	case errors.Is(err, joblog.ErrSourceBusy):
		s.log.Warn("Job still active, skipping", logger.String("job", name))
	case err != nil:
		s.log.Error("Scheduled job failed", logger.String("job", name), logger.Error(err))
	case summary != nil:
		s.log.Info("Scheduled job completed",
			logger.String("job", name),
			logger.Int("processed", summary.Processed),
			logger.Int("created", summary.Created),
			logger.Int("updated", summary.Updated),
			logger.Int("skipped", summary.Skipped),
		)
	}
}

// Entries lists scheduled jobs by name with their next run time.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entry := *e
		entry.Next = s.cron.Entry(e.id).Next
		if entry.Next.IsZero() {
			if sched, err := s.parser.Parse(e.Spec); err == nil {
				entry.Next = sched.Next(time.Now())
			}
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins running schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's own logging through the structured logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(kv []any) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, logger.Any(key, kv[i+1]))
	}
	return out
}
