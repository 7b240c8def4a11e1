// Package pipeline runs source syncs: fetch, normalize and persist, one job
// per source, each recorded by the job logger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/enrich"
	"github.com/TobiSchelling/electwatch/internal/fetch"
	"github.com/TobiSchelling/electwatch/internal/joblog"
	"github.com/TobiSchelling/electwatch/internal/llm"
	"github.com/TobiSchelling/electwatch/internal/logger"
	"github.com/TobiSchelling/electwatch/internal/match"
	"github.com/TobiSchelling/electwatch/internal/reconcile"
	"github.com/TobiSchelling/electwatch/internal/sources"
)

// JobEnrichment is the job source name of analysis queue runs.
const JobEnrichment = enrich.FlagSource

// Outcome is the result of one job started by SyncAll.
type Outcome struct {
	Source  string
	Summary *joblog.Summary
	Err     error
}

// Runner wires adapters, reconciliation, matching and the analysis queue to
// the job logger.
type Runner struct {
	cfg        *config.Config
	db         *database.DB
	jobs       *joblog.Logger
	dispatcher *sources.Dispatcher
	reconciler *reconcile.Reconciler
	matcher    *match.Matcher
	queue      *enrich.Queue
	worker     *enrich.Worker
	log        logger.Logger
}

// New creates a runner. provider may be nil, in which case enrichment jobs fail.
func New(cfg *config.Config, db *database.DB, jobs *joblog.Logger, dispatcher *sources.Dispatcher,
	provider llm.Provider, log logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	queue := enrich.NewQueue(db, cfg.Enrichment.MaxAttempts)
	return &Runner{
		cfg:        cfg,
		db:         db,
		jobs:       jobs,
		dispatcher: dispatcher,
		reconciler: reconcile.New(db, log.With(logger.String("component", "reconcile"))),
		matcher:    match.New(match.NewCache(match.StoreLoader(db), cfg.Matcher.CacheTTL)),
		queue:      queue,
		worker: enrich.NewWorker(db, queue, provider, log.With(logger.String("component", "enrich")),
			enrich.OptionsFromConfig(cfg.Enrichment, cfg.Analysis)),
		log: log,
	}
}

// Queue returns the analysis queue used by the runner.
func (r *Runner) Queue() *enrich.Queue { return r.queue }

// Jobs lists the job names the runner accepts: every enabled source followed
// by the enrichment job.
func (r *Runner) Jobs() []string {
	var names []string
	for _, s := range r.dispatcher.Sources() {
		names = append(names, string(s))
	}
	return append(names, JobEnrichment)
}

// Run starts the job called name: a source sync or the enrichment job.
func (r *Runner) Run(ctx context.Context, name string) (*joblog.Summary, error) {
	if name == JobEnrichment {
		return r.Enrich(ctx)
	}
	source, err := sources.ParseSource(name)
	if err != nil {
		return nil, err
	}
	return r.Sync(ctx, source)
}

// Sync runs one source adapter end to end. Records are persisted only after
// every entry was fetched, so a run aborted by a block persists nothing.
func (r *Runner) Sync(ctx context.Context, source sources.Source) (*joblog.Summary, error) {
	adapter, err := r.dispatcher.Get(source)
	if err != nil {
		return nil, err
	}
	return r.jobs.Run(ctx, string(source), func(ctx context.Context, job *joblog.Job) error {
		records, err := r.collect(ctx, job, adapter)
		if err != nil {
			return err
		}
		return r.persist(ctx, job, records)
	})
}

// SyncAll runs every enabled source concurrently, one goroutine per source.
// Outcomes are returned in sync order.
func (r *Runner) SyncAll(ctx context.Context) []Outcome {
	srcs := r.dispatcher.Sources()
	outcomes := make([]Outcome, len(srcs))
	var wg sync.WaitGroup
	for i, s := range srcs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := r.Sync(ctx, s)
			outcomes[i] = Outcome{Source: string(s), Summary: summary, Err: err}
		}()
	}
	wg.Wait()
	return outcomes
}

// collect lists and fetches every entry of adapter. Per-entry failures are
// skipped; a blocked response aborts the run.
func (r *Runner) collect(ctx context.Context, job *joblog.Job, adapter sources.Adapter) ([]sources.Record, error) {
	log := r.log.With(logger.String("source", string(adapter.Name())), logger.String("job_id", job.ID))

	entries, err := adapter.FetchList(ctx)
	if err != nil {
		return nil, abort(job, "listing", err)
	}
	job.SetMetadata("entries", len(entries))
	log.Info("Listed entries", logger.Int("count", len(entries)))

	stored, err := r.storedEntries(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("checking stored items: %w", err)
	}

	var records []sources.Record
	for i, e := range entries {
		job.Processed(1)
		if e.Err != nil {
			job.Skipped(1)
			job.Errorf("%s: %v", entryRef(e), e.Err)
			continue
		}

		detail := e
		if !stored[i] {
			var err error
			if detail, err = adapter.FetchDetail(ctx, e); err != nil {
				if fetch.IsBlocked(err) || ctx.Err() != nil {
					return nil, abort(job, "fetching "+entryRef(e), err)
				}
				job.Skipped(1)
				job.Errorf("%s: %v", entryRef(e), err)
				log.Warn("Skipping entry", logger.String("entry", entryRef(e)), logger.Error(err))
				continue
			}
		}

		recs, err := adapter.Normalize(detail)
		if err != nil {
			job.Skipped(1)
			job.Errorf("%s: %v", entryRef(e), err)
			continue
		}
		records = append(records, recs...)
	}
	return records, nil
}

func abort(job *joblog.Job, step string, err error) error {
	if fetch.IsBlocked(err) {
		job.SetMetadata("blocked", true)
	}
	return fmt.Errorf("%s: %w", step, err)
}

func entryRef(e sources.Entry) string {
	if e.ID != "" {
		return e.ID
	}
	return e.URL
}

func (r *Runner) persist(ctx context.Context, job *joblog.Job, records []sources.Record) error {
	var (
		registry  []*sources.RegistryRecord
		sentences []*sources.SentenceRecord
		finance   []*sources.FinanceRecord
		content   []*sources.ContentItem
	)
	for _, rec := range records {
		switch v := rec.(type) {
		case *sources.RegistryRecord:
			registry = append(registry, v)
		case *sources.SentenceRecord:
			sentences = append(sentences, v)
		case *sources.FinanceRecord:
			finance = append(finance, v)
		case *sources.ContentItem:
			content = append(content, v)
		}
	}

	if len(registry) > 0 {
		res, err := r.reconciler.Reconcile(ctx, registry)
		if err != nil {
			return err
		}
		applyResult(job, res)
		r.matcher.Invalidate()
	}
	if len(sentences) > 0 {
		res, err := r.reconciler.ReconcileSentences(ctx, sentences, r.cfg.Sources.Judiciary.ReplaceFlags)
		if err != nil {
			return err
		}
		applyResult(job, res)
	}
	if len(finance) > 0 {
		res, err := r.reconciler.ReconcileFinance(ctx, finance)
		if err != nil {
			return err
		}
		applyResult(job, res)
	}
	if len(content) > 0 {
		return r.persistContent(ctx, job, content)
	}
	return nil
}

func applyResult(job *joblog.Job, res *reconcile.Result) {
	job.Created(res.Created)
	job.Updated(res.Updated)
	job.Skipped(res.Skipped + len(res.Errors))
	for _, err := range res.Errors {
		job.AddError(err.Error())
	}
}

// Enrich recovers abandoned queue items and runs the analysis worker as a job.
func (r *Runner) Enrich(ctx context.Context) (*joblog.Summary, error) {
	return r.jobs.Run(ctx, JobEnrichment, func(ctx context.Context, job *joblog.Job) error {
		recovered, err := r.queue.RecoverStale(ctx, r.cfg.Enrichment.StaleAfter)
		if err != nil {
			return err
		}
		if recovered > 0 {
			job.SetMetadata("recovered", recovered)
		}

		res, err := r.worker.Run(ctx)
		if res != nil {
			job.Processed(res.Attempted)
			job.Updated(res.Completed)
			job.Created(res.FlagsCreated)
			job.Skipped(res.Skipped)
			job.SetMetadata("retried", res.Retried)
			job.SetMetadata("failed", res.Failed)
			job.SetMetadata("unparsed", res.Unparsed)
			for _, msg := range res.Errors {
				job.AddError(msg)
			}
		}
		if errors.Is(err, enrich.ErrNoProvider) {
			return fmt.Errorf("enrichment: %w", err)
		}
		return err
	})
}
