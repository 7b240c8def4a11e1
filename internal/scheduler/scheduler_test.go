package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/electwatch/internal/joblog"
)

type runnerFunc func(ctx context.Context, name string) (*joblog.Summary, error)

func (f runnerFunc) Run(ctx context.Context, name string) (*joblog.Summary, error) {
	return f(ctx, name)
}

func noopRunner() Runner {
	return runnerFunc(func(context.Context, string) (*joblog.Summary, error) {
		return &joblog.Summary{}, nil
	})
}

func TestLoadReportsUnknownAndInvalid(t *testing.T) {
	s := New(noopRunner(), nil)
	err := s.Load(map[string]string{
		"registry": "0 3 * * *",
		"bogus":    "* * * * *",
		"news-rss": "every now and then",
	}, []string{"registry", "news-rss"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownJob)
	assert.Contains(t, err.Error(), "news-rss")

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "registry", entries[0].Name)
	assert.True(t, entries[0].Next.After(time.Now()))
	assert.Equal(t, 3, entries[0].Next.Hour())
}

func TestScheduleReplacesExisting(t *testing.T) {
	s := New(noopRunner(), nil)
	require.NoError(t, s.Schedule("registry", "0 3 * * *"))
	require.NoError(t, s.Schedule("registry", "@hourly"))

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "@hourly", entries[0].Spec)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	s := New(runnerFunc(func(_ context.Context, name string) (*joblog.Summary, error) {
		assert.Equal(t, "news-rss", name)
		calls.Add(1)
		close(started)
		<-release
		return &joblog.Summary{}, nil
	}), nil)
	require.NoError(t, s.Schedule("news-rss", "*/30 * * * *"))
	job := s.cron.Entry(s.entries["news-rss"].id).WrappedJob

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		job.Run()
	}()
	<-started

	job.Run()
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	wg.Wait()
}

func TestPanickingJobIsRecovered(t *testing.T) {
	s := New(runnerFunc(func(context.Context, string) (*joblog.Summary, error) {
		panic("boom")
	}), nil)
	require.NoError(t, s.Schedule("registry", "@daily"))
	job := s.cron.Entry(s.entries["registry"].id).WrappedJob

	assert.NotPanics(t, job.Run)
}

func TestStopCancelsRunningJobs(t *testing.T) {
	cancelled := make(chan struct{})
	s := New(runnerFunc(func(ctx context.Context, _ string) (*joblog.Summary, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}), nil)
	s.Start()
	go s.trigger("registry")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	select {
	case <-cancelled:
	case <-ctx.Done():
		t.Fatal("job was not cancelled")
	}
}
