// Package enrich runs queued mentions through an LLM provider and writes the
// analysis and any integrity flags back to the store.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/electwatch/internal/config"
	"github.com/TobiSchelling/electwatch/internal/database"
	"github.com/TobiSchelling/electwatch/internal/llm"
	"github.com/TobiSchelling/electwatch/internal/logger"
	"github.com/TobiSchelling/electwatch/internal/retry"
)

// FlagSource is the source recorded on flags raised by analysis.
const FlagSource = "ai-enrichment"

// ErrNoProvider is returned by Run when no analysis provider is configured.
var ErrNoProvider = errors.New("no analysis provider configured")

var errMentionMissing = errors.New("mention not found")

// Options bounds one worker run.
type Options struct {
	BatchSize  int
	MaxItems   int
	MaxChars   int
	MaxTokens  int
	BatchDelay time.Duration
	// Sleep waits between batches. Defaults to retry.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// OptionsFromConfig reads worker bounds from the enrichment and analysis settings.
func OptionsFromConfig(e config.Enrichment, a config.Analysis) Options {
	return Options{
		BatchSize:  e.BatchSize,
		MaxItems:   e.MaxItems,
		MaxChars:   e.MaxChars,
		MaxTokens:  a.MaxTokens,
		BatchDelay: e.BatchDelay,
	}
}

// RunResult holds the results of a worker run.
type RunResult struct {
	Attempted    int
	Completed    int
	Retried      int
	Failed       int
	Skipped      int
	Unparsed     int
	FlagsCreated int
	Errors       []string
}

// Worker drains the analysis queue.
type Worker struct {
	db       *database.DB
	queue    *Queue
	provider llm.Provider
	log      logger.Logger
	opts     Options
}

// NewWorker creates a worker. A nil provider makes Run fail with ErrNoProvider.
func NewWorker(db *database.DB, queue *Queue, provider llm.Provider, log logger.Logger, opts Options) *Worker {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 10
	}
	if opts.MaxItems < 1 {
		opts.MaxItems = 100
	}
	if opts.MaxTokens < 1 {
		opts.MaxTokens = 800
	}
	if opts.MaxChars < 1 {
		opts.MaxChars = 3000
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	return &Worker{db: db, queue: queue, provider: provider, log: log, opts: opts}
}

// Run processes pending items batch by batch until the queue is empty or
// MaxItems items were attempted. Items are handled one at a time; an item
// released back to pending is not pulled again in the same run.
func (w *Worker) Run(ctx context.Context) (*RunResult, error) {
	if w.provider == nil {
		return nil, ErrNoProvider
	}

	res := &RunResult{}
	var cursor int64
	for res.Attempted < w.opts.MaxItems {
		n := min(w.opts.BatchSize, w.opts.MaxItems-res.Attempted)
		items, err := w.queue.DrainBatch(ctx, cursor, n)
		if err != nil {
			return res, err
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			cursor = item.ID
			w.process(ctx, item, res)
		}

		if len(items) < n || res.Attempted >= w.opts.MaxItems {
			break
		}
		if err := w.opts.Sleep(ctx, w.opts.BatchDelay); err != nil {
			return res, err
		}
	}

	w.log.Info("Enrichment run complete",
		logger.Int("attempted", res.Attempted),
		logger.Int("completed", res.Completed),
		logger.Int("retried", res.Retried),
		logger.Int("failed", res.Failed),
		logger.Int("flags_created", res.FlagsCreated),
	)
	return res, nil
}

type mentionInfo struct {
	input       Input
	candidateID *int64
	url         string
}

func (w *Worker) process(ctx context.Context, item database.QueueItem, res *RunResult) {
	log := w.log.With(logger.Int64("queue_id", item.ID), logger.String("type", string(item.SourceType)),
		logger.Int64("mention_id", item.SourceID))

	claimed, err := w.db.ClaimQueueItem(ctx, item.ID)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		log.Error("Claiming queue item failed", logger.Error(err))
		return
	}
	if !claimed {
		res.Skipped++
		return
	}
	res.Attempted++
	attempts := item.Attempts + 1

	info, err := w.loadMention(ctx, item)
	if err != nil {
		w.release(ctx, item.ID, err, errors.Is(err, errMentionMissing) || attempts >= w.queue.MaxAttempts(), res, log)
		return
	}

	raw, err := w.provider.Generate(ctx, BuildPrompt(info.input, w.opts.MaxChars), w.opts.MaxTokens)
	if err != nil {
		w.release(ctx, item.ID, err, attempts >= w.queue.MaxAttempts(), res, log)
		return
	}

	a, ok := ParseAnalysis(raw)
	if ok {
		err = w.db.UpdateMentionAnalysis(ctx, item.SourceType, item.SourceID, database.AnalysisUpdate{
			Sentiment:         a.Sentiment,
			Relevance:         a.Relevance,
			Summary:           a.Summary,
			Topics:            a.Entities.Topics,
			Keywords:          a.KeyPhrases,
			Entities:          a.Entities,
			IsElectionRelated: a.IsElectionRelated,
		})
	} else {
		// Matcher sentiment and relevance stay in place.
		res.Unparsed++
		log.Warn("Analysis reply was not JSON, keeping stored values")
		err = w.db.MarkMentionAnalyzed(ctx, item.SourceType, item.SourceID)
	}
	if err != nil {
		w.release(ctx, item.ID, err, attempts >= w.queue.MaxAttempts(), res, log)
		return
	}
	if err := w.db.CompleteQueueItem(ctx, item.ID); err != nil {
		res.Errors = append(res.Errors, err.Error())
		log.Error("Completing queue item failed", logger.Error(err))
		return
	}
	res.Completed++

	if info.candidateID == nil {
		return
	}
	for _, f := range a.Flags {
		created, err := w.db.InsertFlag(ctx, database.FlagInput{
			CandidateID: *info.candidateID,
			Type:        f.Type,
			Severity:    f.Severity,
			Title:       flagTitles[f.Type],
			Description: f.Reason,
			Source:      FlagSource,
			EvidenceURL: info.url,
			IsVerified:  false,
		})
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			log.Error("Inserting flag failed", logger.Error(err))
			continue
		}
		if created {
			res.FlagsCreated++
			log.Info("Flag raised", logger.String("flag", f.Type), logger.String("severity", string(f.Severity)))
		}
	}
}

// release records a failed attempt. It runs detached from ctx so a
// cancelled run still hands its claimed item back.
func (w *Worker) release(ctx context.Context, id int64, cause error, final bool, res *RunResult, log logger.Logger) {
	if final {
		res.Failed++
	} else {
		res.Retried++
	}
	res.Errors = append(res.Errors, fmt.Sprintf("queue item %d: %v", id, cause))
	log.Warn("Analysis attempt failed", logger.Error(cause), logger.Bool("final", final))

	if err := w.db.ReleaseQueueItem(context.WithoutCancel(ctx), id, cause.Error(), final); err != nil {
		log.Error("Releasing queue item failed", logger.Error(err))
	}
}

func (w *Worker) loadMention(ctx context.Context, item database.QueueItem) (*mentionInfo, error) {
	switch item.SourceType {
	case database.MentionNews:
		m, err := w.db.GetNewsMention(ctx, item.SourceID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("news %d: %w", item.SourceID, errMentionMissing)
		}
		body := m.Title
		if m.Body != nil && *m.Body != "" {
			body = *m.Body
		}
		return &mentionInfo{
			input:       Input{Title: m.Title, Body: body, Source: m.Source, Date: timePtr(m.PublishedAt)},
			candidateID: m.CandidateID,
			url:         m.URL,
		}, nil
	case database.MentionSocial:
		m, err := w.db.GetSocialMention(ctx, item.SourceID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("social %d: %w", item.SourceID, errMentionMissing)
		}
		return &mentionInfo{
			input:       Input{Body: m.Text, Source: m.Platform, Date: timePtr(m.PublishedAt)},
			candidateID: m.CandidateID,
			url:         m.URL,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", errMentionMissing, item.SourceType)
}

func timePtr(ts *database.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}
