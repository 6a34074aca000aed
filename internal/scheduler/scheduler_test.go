package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stock_sentiment/internal/domain"
)

type fakeCollector struct {
	collects int32
	cleanups int32
}

func (f *fakeCollector) CollectAll(context.Context) (*domain.CollectStats, error) {
	atomic.AddInt32(&f.collects, 1)
	return domain.NewCollectStats(), nil
}

func (f *fakeCollector) CleanupOld(context.Context) (int64, error) {
	atomic.AddInt32(&f.cleanups, 1)
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_RunsImmediatelyThenOnTicks(t *testing.T) {
	fake := &fakeCollector{}
	sched := NewScheduler(fake, 20*time.Millisecond, time.Second, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	err := sched.Start(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// One immediate run plus at least one ticked run.
	collects := atomic.LoadInt32(&fake.collects)
	assert.GreaterOrEqual(t, collects, int32(2))
	assert.Equal(t, collects, atomic.LoadInt32(&fake.cleanups))
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	fake := &fakeCollector{}
	sched := NewScheduler(fake, time.Hour, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := sched.Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.collects))
}
