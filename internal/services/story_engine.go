package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/lineflow-backend/internal/data/repos"
	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/observability"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lineflow-backend/internal/pkg/errors"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/render"
)

const (
	startSurveyLabel  = "回答を始める"
	completeFlowLabel = "確認"
)

type StoryEngine interface {
	// Enroll handles a follow event: it upserts the customer, starts or
	// resumes the profile story and pushes the current node.
	Enroll(ctx context.Context, lineUserID string) error
	Unfollow(ctx context.Context, lineUserID string) error
	AdvanceAfterSurvey(ctx context.Context, surveyID, customerID uuid.UUID) error
	// AdvanceFlow sends the node after the flow's current one, or completes
	// the flow at the end of the chain.
	AdvanceFlow(ctx context.Context, flow *types.UserFlow, customer *types.Customer) (StepOutcome, error)
	// BuildNodeMessage renders a node. With a survey the primary button starts
	// it at startOrder (or the next question after it); otherwise the button
	// acknowledges the node.
	BuildNodeMessage(ctx context.Context, node *types.MessageNode, survey *types.Survey, startOrder int) (linemsg.Message, error)
}

type storyEngine struct {
	log      *logger.Logger
	cfg      EngineConfig
	repos    repos.Set
	renderer *render.Renderer
	out      *Outbound
	profiles ProfileSource
}

func NewStoryEngine(log *logger.Logger, cfg EngineConfig, rs repos.Set, renderer *render.Renderer, out *Outbound, profiles ProfileSource) StoryEngine {
	return &storyEngine{
		log:      log.With("service", "StoryEngine"),
		cfg:      cfg.withDefaults(),
		repos:    rs,
		renderer: renderer,
		out:      out,
		profiles: profiles,
	}
}

func (e *storyEngine) Enroll(ctx context.Context, lineUserID string) error {
	ctx, span := observability.Tracer().Start(ctx, "story.enroll")
	defer span.End()
	dbc := dbctx.New(ctx)

	displayName, pictureURL := e.fetchProfile(ctx, lineUserID)
	customer, err := e.repos.Customer.UpsertFollower(dbc, lineUserID, displayName, pictureURL)
	if err != nil {
		return fmt.Errorf("upsert follower: %w", err)
	}
	if customer == nil {
		return fmt.Errorf("upsert follower %s: %w", lineUserID, pkgerrors.ErrNotFound)
	}
	span.SetAttributes(attribute.String("customer.id", customer.ID.String()))

	story, err := e.repos.Story.FindStoryByTitle(dbc, e.cfg.ProfileStoryTitle)
	if err != nil {
		return err
	}
	if story == nil {
		e.log.Warn("profile story not configured", "title", e.cfg.ProfileStoryTitle)
		return fmt.Errorf("story %q: %w", e.cfg.ProfileStoryTitle, pkgerrors.ErrNotFound)
	}

	flow, err := e.repos.UserFlow.Get(dbc, customer.ID, story.ID)
	if err != nil {
		return err
	}
	if flow != nil {
		return e.resume(ctx, customer, flow)
	}

	entry, err := e.repos.Story.FindEntryNode(dbc, story.ID)
	if err != nil {
		return err
	}
	if entry == nil {
		e.log.Warn("story has no entry node", "story_id", story.ID)
		return fmt.Errorf("entry node of story %s: %w", story.ID, pkgerrors.ErrNotFound)
	}

	due := e.cfg.nextDue(e.cfg.Now())
	if _, err := e.repos.UserFlow.Upsert(dbc, customer.ID, story.ID, entry.ID, types.FlowInProgress, &due); err != nil {
		return fmt.Errorf("upsert flow: %w", err)
	}
	survey, err := e.repos.Survey.FindByNodeID(dbc, entry.ID)
	if err != nil {
		return err
	}
	if survey != nil {
		if _, err := e.repos.Session.Upsert(dbc, survey.ID, customer.ID, types.SessionInProgress, 0); err != nil {
			return fmt.Errorf("init session: %w", err)
		}
	}

	msg, err := e.BuildNodeMessage(ctx, entry, survey, 1)
	if err != nil {
		return err
	}
	if err := e.out.DeliverNode(ctx, entry, customer, "", msg); err != nil {
		e.log.Warn("entry node delivery failed", "customer_id", customer.ID, "node_id", entry.ID, "error", err)
	}
	e.log.Info("customer enrolled", "customer_id", customer.ID, "story_id", story.ID, "node_id", entry.ID)
	return nil
}

// resume re-sends the current node of an in-progress flow after a re-follow.
func (e *storyEngine) resume(ctx context.Context, customer *types.Customer, flow *types.UserFlow) error {
	dbc := dbctx.New(ctx)
	if flow.Status == types.FlowCompleted {
		e.log.Info("re-follow on completed flow", "customer_id", customer.ID, "flow_id", flow.ID)
		return nil
	}
	node, err := e.repos.Story.GetNodeByID(dbc, flow.CurrentNodeID)
	if err != nil {
		return err
	}
	if node == nil {
		e.log.Warn("flow points at missing node", "flow_id", flow.ID, "node_id", flow.CurrentNodeID)
		return fmt.Errorf("node %s: %w", flow.CurrentNodeID, pkgerrors.ErrNotFound)
	}

	survey, err := e.repos.Survey.FindByNodeID(dbc, node.ID)
	if err != nil {
		return err
	}
	startOrder := 1
	if survey != nil {
		sess, err := e.repos.Session.Get(dbc, survey.ID, customer.ID)
		if err != nil {
			return err
		}
		switch {
		case sess == nil:
			if _, err := e.repos.Session.Ensure(dbc, survey.ID, customer.ID); err != nil {
				return err
			}
		case sess.Completed():
			survey = nil
		default:
			startOrder = sess.CurrentOrderIndex + 1
		}
	}

	msg, err := e.BuildNodeMessage(ctx, node, survey, startOrder)
	if err != nil {
		return err
	}
	if err := e.out.DeliverNode(ctx, node, customer, "", msg); err != nil {
		e.log.Warn("resume delivery failed", "customer_id", customer.ID, "node_id", node.ID, "error", err)
	}
	if err := e.repos.UserFlow.Reschedule(dbc, flow.ID, e.cfg.nextDue(e.cfg.Now())); err != nil {
		return fmt.Errorf("reschedule flow: %w", err)
	}
	e.log.Info("flow resumed", "customer_id", customer.ID, "flow_id", flow.ID, "node_id", node.ID, "start_order", startOrder)
	return nil
}

func (e *storyEngine) fetchProfile(ctx context.Context, lineUserID string) (string, string) {
	if e.profiles == nil {
		return "", ""
	}
	p, err := e.profiles.GetProfile(ctx, lineUserID)
	if err != nil || p == nil {
		e.log.Warn("profile fetch failed", "line_user_id", lineUserID, "error", err)
		return "", ""
	}
	return strings.TrimSpace(p.DisplayName), strings.TrimSpace(p.PictureURL)
}

func (e *storyEngine) Unfollow(ctx context.Context, lineUserID string) error {
	if err := e.repos.Customer.SetBlocked(dbctx.New(ctx), lineUserID, e.cfg.Now()); err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	e.log.Info("customer unfollowed", "line_user_id", lineUserID)
	return nil
}

// AdvanceAfterSurvey moves the flow off the survey's node. It is a no-op when
// the flow is missing, completed, or already past that node.
func (e *storyEngine) AdvanceAfterSurvey(ctx context.Context, surveyID, customerID uuid.UUID) error {
	ctx, span := observability.Tracer().Start(ctx, "story.advance_after_survey",
		trace.WithAttributes(attribute.String("survey.id", surveyID.String())))
	defer span.End()
	dbc := dbctx.New(ctx)

	survey, err := e.repos.Survey.GetByID(dbc, surveyID)
	if err != nil {
		return err
	}
	if survey == nil {
		return fmt.Errorf("survey %s: %w", surveyID, pkgerrors.ErrNotFound)
	}
	node, err := e.repos.Story.GetNodeByID(dbc, survey.NodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("survey node %s: %w", survey.NodeID, pkgerrors.ErrNotFound)
	}
	flow, err := e.repos.UserFlow.Get(dbc, customerID, node.StoryID)
	if err != nil {
		return err
	}
	if flow == nil || flow.Status != types.FlowInProgress || flow.CurrentNodeID != node.ID {
		e.log.Info("flow not at survey node; nothing to advance", "customer_id", customerID, "node_id", node.ID)
		return nil
	}
	customer, err := e.repos.Customer.GetByID(dbc, customerID)
	if err != nil {
		return err
	}
	if customer == nil {
		return fmt.Errorf("customer %s: %w", customerID, pkgerrors.ErrNotFound)
	}
	_, err = e.step(ctx, flow, node, customer)
	return err
}

// StepOutcome is what one flow advance did.
type StepOutcome int

const (
	StepSkipped StepOutcome = iota
	StepSent
	StepCompleted
)

func (e *storyEngine) AdvanceFlow(ctx context.Context, flow *types.UserFlow, customer *types.Customer) (StepOutcome, error) {
	current, err := e.repos.Story.GetNodeByID(dbctx.New(ctx), flow.CurrentNodeID)
	if err != nil {
		return StepSkipped, err
	}
	if current == nil {
		return StepSkipped, fmt.Errorf("current node %s: %w", flow.CurrentNodeID, pkgerrors.ErrNotFound)
	}
	return e.step(ctx, flow, current, customer)
}

// step sends the node after current and moves the flow onto it, or completes
// the flow at the end of the chain. The flow is left untouched when delivery
// fails so a later sweep retries it.
func (e *storyEngine) step(ctx context.Context, flow *types.UserFlow, current *types.MessageNode, customer *types.Customer) (StepOutcome, error) {
	dbc := dbctx.New(ctx)
	if current.NextNodeID == nil {
		ok, err := e.repos.UserFlow.Complete(dbc, flow.ID, current.ID)
		if err != nil {
			return StepSkipped, fmt.Errorf("complete flow: %w", err)
		}
		if !ok {
			return StepSkipped, nil
		}
		e.log.Info("flow completed", "flow_id", flow.ID, "customer_id", customer.ID)
		return StepCompleted, nil
	}

	next, err := e.repos.Story.GetNodeByID(dbc, *current.NextNodeID)
	if err != nil {
		return StepSkipped, err
	}
	if next == nil {
		return StepSkipped, fmt.Errorf("next node %s: %w", *current.NextNodeID, pkgerrors.ErrNotFound)
	}
	survey, err := e.repos.Survey.FindByNodeID(dbc, next.ID)
	if err != nil {
		return StepSkipped, err
	}
	msg, err := e.BuildNodeMessage(ctx, next, survey, 1)
	if err != nil {
		return StepSkipped, err
	}
	if err := e.out.DeliverNode(ctx, next, customer, "", msg); err != nil {
		return StepSkipped, err
	}

	due := e.cfg.nextDue(e.cfg.Now())
	ok, err := e.repos.UserFlow.Advance(dbc, flow.ID, current.ID, next.ID, &due)
	if err != nil {
		return StepSent, fmt.Errorf("advance flow: %w", err)
	}
	if !ok {
		e.log.Warn("flow moved concurrently; advance skipped", "flow_id", flow.ID, "expected_node_id", current.ID)
		return StepSent, nil
	}
	if survey != nil {
		if _, err := e.repos.Session.Ensure(dbc, survey.ID, customer.ID); err != nil {
			e.log.Warn("session init failed", "survey_id", survey.ID, "customer_id", customer.ID, "error", err)
		}
	}
	e.log.Info("flow advanced", "flow_id", flow.ID, "customer_id", customer.ID, "node_id", next.ID)
	return StepSent, nil
}

func (e *storyEngine) BuildNodeMessage(ctx context.Context, node *types.MessageNode, survey *types.Survey, startOrder int) (linemsg.Message, error) {
	dbc := dbctx.New(ctx)

	tpl, err := e.nodeTemplate(dbc, node)
	if err != nil {
		return nil, err
	}
	cards, err := e.repos.Story.ListCards(dbc, node.ID)
	if err != nil {
		return nil, err
	}

	content := render.Content{
		Title:        node.Title,
		Body:         node.Body,
		ImageURL:     node.ImageURL,
		PrimaryLabel: node.PrimaryLabel,
	}
	if survey != nil {
		q, err := firstQuestionFrom(dbc, e.repos.Survey, survey.ID, startOrder)
		if err != nil {
			return nil, err
		}
		if q != nil {
			content.PrimaryData = linemsg.PostbackData{
				Action:     linemsg.ActionStartSurvey,
				SurveyID:   survey.ID.String(),
				QuestionID: q.ID.String(),
				OrderIndex: q.OrderIndex,
			}
			if content.PrimaryLabel == "" {
				content.PrimaryLabel = startSurveyLabel
			}
		}
	}
	if content.PrimaryData.Action == "" {
		content.PrimaryData = linemsg.PostbackData{
			Action:  linemsg.ActionCompleteFlow,
			StoryID: node.StoryID.String(),
			NodeID:  node.ID.String(),
		}
		if content.PrimaryLabel == "" {
			content.PrimaryLabel = completeFlowLabel
		}
	}

	out := make([]render.Card, 0, len(cards))
	for _, c := range cards {
		out = append(out, render.Card{Title: c.Title, Body: c.Body, ImageURL: c.ImageURL})
	}
	return e.renderer.Cards(tpl, out, content)
}

func (e *storyEngine) nodeTemplate(dbc dbctx.Context, node *types.MessageNode) (*types.FlexTemplate, error) {
	if node.TemplateID != nil {
		tpl, err := e.repos.Story.GetTemplateByID(dbc, *node.TemplateID)
		if err != nil {
			return nil, err
		}
		if tpl != nil {
			return tpl, nil
		}
		e.log.Warn("node template missing; using stored default", "node_id", node.ID, "template_id", *node.TemplateID)
	}
	return e.repos.Story.GetTemplateByName(dbc, render.TemplateContent)
}

// firstQuestionFrom returns the question at order, or the first one after it
// when order is a gap.
func firstQuestionFrom(dbc dbctx.Context, surveys repos.SurveyRepo, surveyID uuid.UUID, order int) (*types.SurveyQuestion, error) {
	if order <= 0 {
		order = 1
	}
	q, err := surveys.GetQuestionByOrder(dbc, surveyID, order)
	if err != nil || q != nil {
		return q, err
	}
	return surveys.GetNextQuestion(dbc, surveyID, order-1)
}
