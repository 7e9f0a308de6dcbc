package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/lineflow-backend/internal/data/repos"
	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/observability"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lineflow-backend/internal/pkg/errors"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type EventType string

const (
	EventFollow   EventType = "follow"
	EventUnfollow EventType = "unfollow"
	EventMessage  EventType = "message"
	EventPostback EventType = "postback"
)

// Event is one inbound webhook event reduced to what the engines read.
type Event struct {
	ID         string
	Type       EventType
	SourceID   string
	ReplyToken string
	Text       string
	Postback   string
	Timestamp  time.Time
}

const (
	outcomeHandled   = "handled"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

type RouterConfig struct {
	// DedupeTTL bounds how long an event id is remembered.
	DedupeTTL time.Duration
	// Concurrency caps customers handled in parallel within one batch.
	Concurrency int64
	LockTTL     time.Duration
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.DedupeTTL <= 0 {
		c.DedupeTTL = 24 * time.Hour
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.LockTTL <= 0 {
		c.LockTTL = customerLockTTL
	}
	return c
}

type EventRouter interface {
	Dispatch(ctx context.Context, ev Event) error
	// DispatchBatch handles events of one webhook delivery. Events of the same
	// source keep their order; different sources run in parallel.
	DispatchBatch(ctx context.Context, events []Event) error
}

type eventRouter struct {
	log      *logger.Logger
	cfg      RouterConfig
	repos    repos.Set
	story    StoryEngine
	survey   SurveyEngine
	out      *Outbound
	deduper  Deduper
	locker   Locker
	metrics  *observability.Metrics
	validate *validator.Validate
	now      func() time.Time
}

// NewEventRouter builds the router. A nil deduper falls back to the
// processed_event table; a nil locker disables per-customer serialization.
func NewEventRouter(
	log *logger.Logger,
	cfg RouterConfig,
	rs repos.Set,
	story StoryEngine,
	survey SurveyEngine,
	out *Outbound,
	deduper Deduper,
	locker Locker,
	metrics *observability.Metrics,
) EventRouter {
	return &eventRouter{
		log:      log.With("service", "EventRouter"),
		cfg:      cfg.withDefaults(),
		repos:    rs,
		story:    story,
		survey:   survey,
		out:      out,
		deduper:  deduper,
		locker:   locker,
		metrics:  metrics,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (r *eventRouter) DispatchBatch(ctx context.Context, events []Event) error {
	var order []string
	bySource := map[string][]Event{}
	for _, ev := range events {
		if _, ok := bySource[ev.SourceID]; !ok {
			order = append(order, ev.SourceID)
		}
		bySource[ev.SourceID] = append(bySource[ev.SourceID], ev)
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	sem := semaphore.NewWeighted(r.cfg.Concurrency)
	for _, source := range order {
		group := bySource[source]
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			for _, ev := range group {
				if err := r.Dispatch(ctx, ev); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (r *eventRouter) Dispatch(ctx context.Context, ev Event) (err error) {
	ctx, span := observability.Tracer().Start(ctx, "router.dispatch", trace.WithAttributes(
		attribute.String("event.type", string(ev.Type)),
		attribute.String("event.id", ev.ID),
	))
	defer span.End()

	outcome := outcomeHandled
	defer func() {
		if err != nil {
			outcome = outcomeFailed
			span.RecordError(err)
			r.log.Warn("event dispatch failed", "event_id", ev.ID, "type", ev.Type, "line_user_id", ev.SourceID, "error", err)
		}
		r.metrics.IncWebhookEvent(string(ev.Type), outcome)
	}()

	if strings.TrimSpace(ev.SourceID) == "" {
		r.log.Info("event without source user ignored", "event_id", ev.ID, "type", ev.Type)
		outcome = outcomeIgnored
		return nil
	}
	first, err := r.claim(ctx, ev)
	if err != nil {
		return err
	}
	if !first {
		r.log.Info("duplicate event skipped", "event_id", ev.ID, "type", ev.Type)
		outcome = outcomeDuplicate
		return nil
	}

	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, customerLockKey(ev.SourceID), r.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("lock customer: %w", err)
		}
		defer unlock()
	}

	handled, err := r.route(ctx, ev)
	if err != nil {
		return err
	}
	if !handled {
		outcome = outcomeIgnored
	}
	return nil
}

// claim records the event id. Events without an id are always handled.
func (r *eventRouter) claim(ctx context.Context, ev Event) (bool, error) {
	if ev.ID == "" {
		return true, nil
	}
	if r.deduper != nil {
		ok, err := r.deduper.MarkOnce(ctx, "event:"+ev.ID, r.cfg.DedupeTTL)
		if err != nil {
			return false, fmt.Errorf("dedupe event: %w", err)
		}
		return ok, nil
	}
	ok, err := r.repos.ProcessedEvent.MarkProcessed(dbctx.New(ctx), ev.ID, string(ev.Type), r.now())
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	return ok, nil
}

func (r *eventRouter) route(ctx context.Context, ev Event) (bool, error) {
	switch ev.Type {
	case EventFollow:
		return true, r.story.Enroll(ctx, ev.SourceID)
	case EventUnfollow:
		return true, r.story.Unfollow(ctx, ev.SourceID)
	case EventMessage:
		return r.handleText(ctx, ev)
	case EventPostback:
		return r.handlePostback(ctx, ev)
	default:
		r.log.Debug("unsupported event type", "type", ev.Type)
		return false, nil
	}
}

func (r *eventRouter) customer(ctx context.Context, lineUserID string) (*types.Customer, error) {
	c, err := r.repos.Customer.GetByLineUserID(dbctx.New(ctx), lineUserID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		r.log.Info("event from unknown customer ignored", "line_user_id", lineUserID)
	}
	return c, nil
}

func (r *eventRouter) handleText(ctx context.Context, ev Event) (bool, error) {
	if strings.TrimSpace(ev.Text) == "" {
		return false, nil
	}
	c, err := r.customer(ctx, ev.SourceID)
	if err != nil || c == nil {
		return false, err
	}
	msg, err := r.survey.HandleText(ctx, c.ID, ev.Text)
	if err != nil {
		return false, r.engineError(err)
	}
	if msg == nil {
		return false, nil
	}
	return true, r.out.Send(ctx, ev.SourceID, ev.ReplyToken, msg)
}

func (r *eventRouter) handlePostback(ctx context.Context, ev Event) (bool, error) {
	data, err := linemsg.DecodePostback(ev.Postback)
	if err != nil {
		r.log.Warn("malformed postback dropped", "event_id", ev.ID, "error", err)
		return false, nil
	}
	if err := r.validate.Struct(data); err != nil {
		r.log.Warn("invalid postback dropped", "event_id", ev.ID, "action", data.Action, "error", err)
		return false, nil
	}
	c, err := r.customer(ctx, ev.SourceID)
	if err != nil || c == nil {
		return false, err
	}

	var msg linemsg.Message
	switch data.Action {
	case linemsg.ActionStartSurvey:
		msg, err = r.survey.StartSurvey(ctx, StartSurveyInput{
			SurveyID:   uuid.MustParse(data.SurveyID),
			CustomerID: c.ID,
			OrderIndex: data.OrderIndex,
		})
	case linemsg.ActionAnswer:
		msg, err = r.survey.Answer(ctx, AnswerInput{
			SurveyID:   uuid.MustParse(data.SurveyID),
			CustomerID: c.ID,
			QuestionID: uuid.MustParse(data.QuestionID),
			OptionID:   data.OptionID,
			Value:      data.OptionValue,
		})
	case linemsg.ActionStartFreeText:
		msg, err = r.survey.StartFreeText(ctx, uuid.MustParse(data.SurveyID), c.ID)
	case linemsg.ActionCompleteFlow:
		if data.StoryID == "" {
			r.log.Info("complete_flow without story ignored", "event_id", ev.ID)
			return false, nil
		}
		msg = linemsg.Text(MsgFlowAcknowledge)
	}
	if err != nil {
		return false, r.engineError(err)
	}
	if msg == nil {
		return false, nil
	}
	return true, r.out.Send(ctx, ev.SourceID, ev.ReplyToken, msg)
}

// engineError drops the conditions the engines report for stale or missing
// state; they end the event without a reply.
func (r *eventRouter) engineError(err error) error {
	switch {
	case errors.Is(err, pkgerrors.ErrSessionCompleted):
		r.log.Info("event targets a completed survey", "error", err)
		return nil
	case errors.Is(err, pkgerrors.ErrNotFound):
		r.log.Warn("event references missing data", "error", err)
		return nil
	default:
		return err
	}
}
