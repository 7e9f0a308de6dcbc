// Package worker runs the due sweep in-process on a fixed interval. It is the
// scheduler used when Temporal is not configured.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/lineflow-backend/internal/data/repos"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/services"
)

type Options struct {
	Interval time.Duration
	// EventRetention bounds how long processed webhook ids are kept; zero disables purging.
	EventRetention time.Duration
	Now            func() time.Time
}

type Worker struct {
	log       *logger.Logger
	scheduler services.Scheduler
	events    repos.ProcessedEventRepo
	opts      Options
	wg        sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, scheduler services.Scheduler, events repos.ProcessedEventRepo, opts Options) *Worker {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Worker{
		log:       baseLog.With("component", "SweepWorker"),
		scheduler: scheduler,
		events:    events,
		opts:      opts,
	}
}

// Start launches the loop; it exits when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting sweep worker", "interval", w.opts.Interval.String())
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Wait blocks until the loop has returned.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Sweep worker stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one sweep and one purge, surviving panics in either.
func (w *Worker) Tick(ctx context.Context) {
	now := w.opts.Now().UTC()
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Sweep panic", "panic", r)
			}
		}()
		if _, err := w.scheduler.RunDueSweep(ctx, now, services.TriggerTicker); err != nil {
			w.log.Warn("Due sweep failed", "error", err)
		}
	}()

	if w.events == nil || w.opts.EventRetention <= 0 {
		return
	}
	n, err := w.events.PurgeBefore(dbctx.New(ctx), now.Add(-w.opts.EventRetention))
	if err != nil {
		w.log.Warn("Processed event purge failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Debug("Purged processed events", "count", n)
	}
}
