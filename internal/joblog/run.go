package joblog

import (
	"context"
	"fmt"
)

// Job is the handle passed to the function run by Logger.Run.
type Job struct {
	ID     string
	Source string
	l      *Logger
}

func (j *Job) Processed(n int)                { j.l.IncrementProcessed(j.ID, n) }
func (j *Job) Updated(n int)                  { j.l.IncrementUpdated(j.ID, n) }
func (j *Job) Created(n int)                  { j.l.IncrementCreated(j.ID, n) }
func (j *Job) Skipped(n int)                  { j.l.IncrementSkipped(j.ID, n) }
func (j *Job) SetMetadata(key string, v any)  { j.l.SetMetadata(j.ID, key, v) }
func (j *Job) AddError(msg string)            { j.l.AddError(j.ID, msg) }
func (j *Job) Errorf(format string, a ...any) { j.l.AddError(j.ID, fmt.Sprintf(format, a...)) }

// Run starts a job for source, marks it running and calls fn. The job ends
// exactly once: completed when fn returns nil, failed when fn returns an
// error or panics. The returned error is fn's error, a recovered panic, or
// ErrSourceBusy.
func (l *Logger) Run(ctx context.Context, source string, fn func(ctx context.Context, job *Job) error) (summary *Summary, err error) {
	id, err := l.Start(ctx, source)
	if err != nil {
		return nil, err
	}
	l.MarkRunning(id)
	job := &Job{ID: id, Source: source, l: l}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", id, r)
			summary = l.Fail(id, err)
		}
	}()

	if err := fn(ctx, job); err != nil {
		return l.Fail(id, err), err
	}
	return l.Complete(id), nil
}
