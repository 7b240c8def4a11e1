package joblog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/electwatch/internal/database"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestLogger(store Store, c *clock) *Logger {
	n := 0
	return New(store, nil, Options{
		StaleAfter: 2 * time.Hour,
		Registerer: prometheus.NewRegistry(),
		Now:        c.Now,
		NewID: func() string {
			n++
			return fmt.Sprintf("job-%d", n)
		},
	})
}

func TestLifecycle(t *testing.T) {
	db := openTestDB(t)
	c := &clock{now: t0}
	l := newTestLogger(db, c)
	ctx := context.Background()

	id, err := l.Start(ctx, "registry")
	require.NoError(t, err)

	job, err := db.GetJob(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, database.JobStarted, job.Status)

	l.MarkRunning(id)
	l.IncrementProcessed(id, 3)
	l.IncrementCreated(id, 2)
	l.IncrementUpdated(id, 1)
	l.SetMetadata(id, "pages", 2)

	job, _ = db.GetJob(ctx, id)
	assert.Equal(t, database.JobRunning, job.Status)
	assert.Equal(t, 3, job.Processed)

	c.now = t0.Add(90 * time.Second)
	s := l.Complete(id)
	require.NotNil(t, s)
	assert.Equal(t, database.JobCompleted, s.Status)
	assert.Equal(t, 3, s.Processed)
	assert.Equal(t, 2, s.Created)
	assert.Equal(t, 1, s.Updated)
	assert.Equal(t, 90*time.Second, s.Duration())

	job, _ = db.GetJob(ctx, id)
	assert.Equal(t, database.JobCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, float64(2), job.Metadata.V["pages"])

	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.JobsTotal.WithLabelValues("registry", "completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(l.metrics.ItemsTotal.WithLabelValues("registry", "created")))
}

func TestTerminalJobIsFinishedOnce(t *testing.T) {
	db := openTestDB(t)
	l := newTestLogger(db, &clock{now: t0})

	id, err := l.Start(context.Background(), "x")
	require.NoError(t, err)
	l.IncrementProcessed(id, 4)
	l.IncrementSkipped(id, 1)

	failed := l.Fail(id, errors.New("rate limited"))
	assert.Equal(t, database.JobFailed, failed.Status)
	assert.Equal(t, 4, failed.Processed)
	assert.Equal(t, 1, failed.Skipped)

	again := l.Complete(id)
	assert.Same(t, failed, again)

	l.IncrementProcessed(id, 10)
	assert.Equal(t, 4, l.Summary(id).Processed)

	job, _ := db.GetJob(context.Background(), id)
	assert.Equal(t, database.JobFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "rate limited", *job.ErrorMessage)
	assert.Equal(t, 4, job.Processed)
}

func TestStartRejectsBusySource(t *testing.T) {
	db := openTestDB(t)
	l := newTestLogger(db, &clock{now: t0})
	ctx := context.Background()

	id, err := l.Start(ctx, "news-rss")
	require.NoError(t, err)

	_, err = l.Start(ctx, "news-rss")
	assert.ErrorIs(t, err, ErrSourceBusy)

	_, err = l.Start(ctx, "youtube")
	assert.NoError(t, err)

	l.Complete(id)
	_, err = l.Start(ctx, "news-rss")
	assert.NoError(t, err)
}

func TestStartRejectsJobActiveInAnotherProcess(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.InsertJob(ctx, "other", "judiciary", t0.Add(-10*time.Minute)))

	l := newTestLogger(db, &clock{now: t0})
	_, err := l.Start(ctx, "judiciary")
	assert.ErrorIs(t, err, ErrSourceBusy)
}

func TestStartClosesStaleJobs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.InsertJob(ctx, "crashed", "judiciary", t0.Add(-3*time.Hour)))

	l := newTestLogger(db, &clock{now: t0})
	_, err := l.Start(ctx, "judiciary")
	require.NoError(t, err)

	old, err := db.GetJob(ctx, "crashed")
	require.NoError(t, err)
	assert.Equal(t, database.JobFailed, old.Status)
	require.NotNil(t, old.ErrorMessage)
	assert.Equal(t, "abandoned", *old.ErrorMessage)
}

func TestErrorsAreCapped(t *testing.T) {
	db := openTestDB(t)
	l := newTestLogger(db, &clock{now: t0})

	id, err := l.Start(context.Background(), "finance")
	require.NoError(t, err)
	for i := range MaxErrors + 10 {
		l.AddError(id, fmt.Sprintf("line %d: bad amount", i))
	}
	s := l.Complete(id)
	assert.Len(t, s.Errors, MaxErrors)
	assert.Equal(t, MaxErrors+10, s.ErrorCount)
	assert.Equal(t, "line 0: bad amount", s.Errors[0])

	job, _ := db.GetJob(context.Background(), id)
	assert.Equal(t, float64(MaxErrors+10), job.Metadata.V["error_count"])
	assert.Len(t, job.Metadata.V["errors"], MaxErrors)
}

func TestRunCompletes(t *testing.T) {
	db := openTestDB(t)
	l := newTestLogger(db, &clock{now: t0})

	s, err := l.Run(context.Background(), "tiktok", func(ctx context.Context, job *Job) error {
		job.Processed(2)
		job.Created(2)
		job.Errorf("post %s: no text", "77")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, s.Status)
	assert.Equal(t, []string{"post 77: no text"}, s.Errors)
}

func TestRunFailsOnError(t *testing.T) {
	db := openTestDB(t)
	l := newTestLogger(db, &clock{now: t0})
	boom := errors.New("list fetch failed")

	s, err := l.Run(context.Background(), "finance", func(ctx context.Context, job *Job) error {
		job.Processed(1)
		job.SetMetadata("blocked", true)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, database.JobFailed, s.Status)
	assert.Equal(t, 1, s.Processed)
	assert.Equal(t, true, s.Metadata["blocked"])
}

func TestRunRecoversPanic(t *testing.T) {
	db := openTestDB(t)
	l := newTestLogger(db, &clock{now: t0})

	s, err := l.Run(context.Background(), "youtube", func(ctx context.Context, job *Job) error {
		panic("nil map")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	require.NotNil(t, s)
	assert.Equal(t, database.JobFailed, s.Status)

	_, err = l.Start(context.Background(), "youtube")
	assert.NoError(t, err, "source must be free after a panic")
}

func TestStoreFailuresAreNotReturned(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	store := database.Wrap(sqlx.NewDb(mockDB, "sqlmock"))

	diskErr := errors.New("disk I/O error")
	mock.ExpectExec("UPDATE sync_jobs SET status = 'failed'").WillReturnError(diskErr)
	mock.ExpectQuery("SELECT .+ FROM sync_jobs").WillReturnError(diskErr)
	mock.ExpectExec("INSERT INTO sync_jobs").WillReturnError(diskErr)
	mock.ExpectExec("UPDATE sync_jobs SET status = \\? WHERE").WillReturnError(diskErr)
	mock.ExpectExec("UPDATE sync_jobs SET processed").WillReturnError(diskErr)
	mock.ExpectExec("UPDATE sync_jobs SET status = \\?, processed").WillReturnError(diskErr)

	l := newTestLogger(store, &clock{now: t0})
	s, err := l.Run(context.Background(), "registry", func(ctx context.Context, job *Job) error {
		job.Processed(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, s.Status)
	assert.Equal(t, 1, s.Processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
