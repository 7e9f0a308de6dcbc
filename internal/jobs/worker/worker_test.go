package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lineflow-backend/internal/data/repos"
	"github.com/yungbote/lineflow-backend/internal/data/repos/testutil"
	"github.com/yungbote/lineflow-backend/internal/services"
)

type countingScheduler struct {
	mu       sync.Mutex
	runs     int
	triggers []string
	err      error
	panics   bool
}

func (s *countingScheduler) RunDueSweep(ctx context.Context, now time.Time, trigger string) (services.SweepResult, error) {
	s.mu.Lock()
	s.runs++
	s.triggers = append(s.triggers, trigger)
	s.mu.Unlock()
	if s.panics {
		panic("boom")
	}
	return services.SweepResult{}, s.err
}

func (s *countingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func TestTickSweepsAndPurges(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	events := repos.NewProcessedEventRepo(db, log)
	now := time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)

	_, err := events.MarkProcessed(testutil.Ctx(), "old", "follow", now.Add(-48*time.Hour))
	require.NoError(t, err)
	_, err = events.MarkProcessed(testutil.Ctx(), "fresh", "follow", now.Add(-time.Hour))
	require.NoError(t, err)

	sched := &countingScheduler{}
	w := NewWorker(log, sched, events, Options{EventRetention: 24 * time.Hour, Now: func() time.Time { return now }})
	w.Tick(context.Background())

	assert.Equal(t, 1, sched.count())
	assert.Equal(t, []string{services.TriggerTicker}, sched.triggers)

	again, err := events.MarkProcessed(testutil.Ctx(), "old", "follow", now)
	require.NoError(t, err)
	assert.True(t, again, "purged id can be claimed again")
	dup, err := events.MarkProcessed(testutil.Ctx(), "fresh", "follow", now)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestTickSurvivesFailures(t *testing.T) {
	log := testutil.Logger(t)
	for _, sched := range []*countingScheduler{{err: errors.New("db down")}, {panics: true}} {
		w := NewWorker(log, sched, nil, Options{})
		assert.NotPanics(t, func() { w.Tick(context.Background()) })
		assert.Equal(t, 1, sched.count())
	}
}

func TestLoopStopsWithContext(t *testing.T) {
	sched := &countingScheduler{}
	w := NewWorker(testutil.Logger(t), sched, nil, Options{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	require.Eventually(t, func() bool { return sched.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	w.Wait()
}
