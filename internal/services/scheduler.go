package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/lineflow-backend/internal/data/repos"
	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/observability"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

const (
	TriggerTicker   = "ticker"
	TriggerTemporal = "temporal"
	TriggerManual   = "manual"

	defaultSweepBatch = 500
	customerLockTTL   = 30 * time.Second
)

// SweepResult summarizes one due sweep.
type SweepResult struct {
	Due       int `json:"due"`
	Sent      int `json:"sent"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type Scheduler interface {
	// RunDueSweep advances every due flow once. Failures are counted and
	// logged rather than returned; a failed due query gives an empty summary.
	RunDueSweep(ctx context.Context, now time.Time, trigger string) (SweepResult, error)
}

type scheduler struct {
	log     *logger.Logger
	repos   repos.Set
	story   StoryEngine
	locker  Locker
	metrics *observability.Metrics
	batch   int
}

func NewScheduler(log *logger.Logger, rs repos.Set, story StoryEngine, locker Locker, metrics *observability.Metrics) Scheduler {
	return &scheduler{
		log:     log.With("service", "Scheduler"),
		repos:   rs,
		story:   story,
		locker:  locker,
		metrics: metrics,
		batch:   defaultSweepBatch,
	}
}

func (s *scheduler) RunDueSweep(ctx context.Context, now time.Time, trigger string) (SweepResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "scheduler.due_sweep")
	defer span.End()
	start := time.Now()

	var res SweepResult
	flows, err := s.repos.UserFlow.FindDue(dbctx.New(ctx), now, s.batch)
	if err != nil {
		// A failed query yields an empty summary; the next run picks the flows up.
		span.RecordError(err)
		s.log.Error("due flow query failed", "trigger", trigger, "error", err)
		return res, nil
	}
	res.Due = len(flows)

	for _, flow := range flows {
		if ctx.Err() != nil {
			s.log.Warn("due sweep cancelled", "processed", res.Sent+res.Completed+res.Failed, "due", res.Due)
			break
		}
		out, err := s.advanceOne(ctx, flow)
		if err != nil {
			res.Failed++
			s.log.Warn("due flow failed", "flow_id", flow.ID, "customer_id", flow.CustomerID, "error", err)
			continue
		}
		switch out {
		case StepSent:
			res.Sent++
		case StepCompleted:
			res.Completed++
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.due", res.Due),
		attribute.Int("sweep.sent", res.Sent),
		attribute.Int("sweep.completed", res.Completed),
		attribute.Int("sweep.failed", res.Failed),
	)
	s.metrics.ObserveSweep(trigger, res.Due, res.Sent, res.Completed, res.Failed, time.Since(start))
	s.log.Info("due sweep finished",
		"trigger", trigger,
		"due", res.Due,
		"sent", res.Sent,
		"completed", res.Completed,
		"failed", res.Failed,
	)
	return res, nil
}

// advanceOne runs one flow under the customer lock. A panic is converted to
// an error so the remaining flows still run.
func (s *scheduler) advanceOne(ctx context.Context, flow *types.UserFlow) (out StepOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = StepSkipped, fmt.Errorf("panic advancing flow %s: %v", flow.ID, r)
		}
	}()

	customer, err := s.repos.Customer.GetByID(dbctx.New(ctx), flow.CustomerID)
	if err != nil {
		return StepSkipped, err
	}
	if customer == nil {
		return StepSkipped, fmt.Errorf("customer %s missing", flow.CustomerID)
	}
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, customerLockKey(customer.LineUserID), customerLockTTL)
		if err != nil {
			return StepSkipped, fmt.Errorf("lock customer: %w", err)
		}
		defer unlock()
	}
	return s.story.AdvanceFlow(ctx, flow, customer)
}

// customerLockKey is shared by webhook events and the sweep so both serialize
// on the same LINE user.
func customerLockKey(lineUserID string) string {
	return "customer:" + lineUserID
}
