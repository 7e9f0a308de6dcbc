package services

import (
	"context"
	"errors"
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
	"github.com/yungbote/lineflow-backend/internal/pkg/pointers"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/render"
)

const (
	MsgThanks          = "回答ありがとうございました！"
	MsgNoOptions       = "選択肢を取得できませんでした。少し待ってからもう一度お試しください。"
	MsgFreeTextPrompt  = "テキストで回答を入力してください。"
	MsgFlowAcknowledge = "ご確認ありがとうございました。"

	freeTextStartLabel = "入力を開始する"
	yesLabel           = "はい"
	noLabel            = "いいえ"

	freeTextUniversityText = "大学名を入力してください"
)

type StartSurveyInput struct {
	SurveyID   uuid.UUID
	CustomerID uuid.UUID
	// OrderIndex is the question to open; zero means the first.
	OrderIndex int
}

type AnswerInput struct {
	SurveyID   uuid.UUID
	CustomerID uuid.UUID
	QuestionID uuid.UUID
	OptionID   string
	Value      string
}

type SurveyEngine interface {
	StartSurvey(ctx context.Context, in StartSurveyInput) (linemsg.Message, error)
	Answer(ctx context.Context, in AnswerInput) (linemsg.Message, error)
	StartFreeText(ctx context.Context, surveyID, customerID uuid.UUID) (linemsg.Message, error)
	// HandleText treats a plain text message as the answer to the free-text
	// question after the active session's cursor. A nil message means the
	// text was not an answer.
	HandleText(ctx context.Context, customerID uuid.UUID, text string) (linemsg.Message, error)
}

type surveyEngine struct {
	log      *logger.Logger
	repos    repos.Set
	renderer *render.Renderer
	options  OptionSource
	resolver NextOrderResolver
	profile  ProfileSync
	story    StoryAdvancer
	metrics  *observability.Metrics
	cfg      EngineConfig
}

func NewSurveyEngine(
	log *logger.Logger,
	cfg EngineConfig,
	rs repos.Set,
	renderer *render.Renderer,
	options OptionSource,
	resolver NextOrderResolver,
	profile ProfileSync,
	story StoryAdvancer,
	metrics *observability.Metrics,
) SurveyEngine {
	return &surveyEngine{
		log:      log.With("service", "SurveyEngine"),
		repos:    rs,
		renderer: renderer,
		options:  options,
		resolver: resolver,
		profile:  profile,
		story:    story,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
	}
}

// StartSurvey opens the survey at the requested question. It creates the
// session when missing and never rewinds an existing one.
func (e *surveyEngine) StartSurvey(ctx context.Context, in StartSurveyInput) (linemsg.Message, error) {
	dbc := dbctx.New(ctx)

	survey, err := e.repos.Survey.GetByID(dbc, in.SurveyID)
	if err != nil {
		return nil, err
	}
	if survey == nil {
		return nil, fmt.Errorf("survey %s: %w", in.SurveyID, pkgerrors.ErrNotFound)
	}
	sess, err := e.repos.Session.Ensure(dbc, survey.ID, in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}
	if sess.Completed() {
		return nil, pkgerrors.ErrSessionCompleted
	}

	q, err := firstQuestionFrom(dbc, e.repos.Survey, survey.ID, in.OrderIndex)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("first question of survey %s: %w", survey.ID, pkgerrors.ErrNotFound)
	}
	return e.renderQuestion(ctx, q, in.CustomerID, Carry{})
}

func (e *surveyEngine) Answer(ctx context.Context, in AnswerInput) (linemsg.Message, error) {
	ctx, span := observability.Tracer().Start(ctx, "survey.answer",
		trace.WithAttributes(attribute.String("survey.id", in.SurveyID.String())))
	defer span.End()
	dbc := dbctx.New(ctx)

	q, err := e.repos.Survey.GetQuestionByID(dbc, in.QuestionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("question %s: %w", in.QuestionID, pkgerrors.ErrNotFound)
	}
	if q.SurveyID != in.SurveyID {
		return nil, fmt.Errorf("question %s is not in survey %s: %w", q.ID, in.SurveyID, pkgerrors.ErrInvalidArgument)
	}
	span.SetAttributes(attribute.Int("question.order", q.OrderIndex))

	sess, err := e.repos.Session.Ensure(dbc, in.SurveyID, in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}
	if sess.Completed() {
		e.log.Info("answer on completed session ignored", "survey_id", in.SurveyID, "customer_id", in.CustomerID, "order", q.OrderIndex)
		return nil, pkgerrors.ErrSessionCompleted
	}

	resp, err := e.repos.Response.Upsert(dbc, in.SurveyID, in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("upsert response: %w", err)
	}

	value := strings.TrimSpace(in.Value)
	other := linemsg.IsOther(value)
	e.applyUniversity(dbc, q, in.CustomerID, value, other)

	var optionID *uuid.UUID
	if id, err := uuid.Parse(strings.TrimSpace(in.OptionID)); err == nil {
		optionID = &id
	}
	if err := e.repos.Response.SaveOrUpdateAnswer(dbc, resp.ID, q.ID, types.AnswerValue{
		OptionID: optionID,
		Text:     pointers.String(value),
	}); err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}
	e.metrics.IncSurveyAnswer(q.OrderIndex)

	step := e.resolver.Resolve(q, value)
	next, err := e.repos.Survey.GetQuestionByOrder(dbc, in.SurveyID, step.NextOrder)
	if err != nil {
		return nil, err
	}
	if next == nil && q.OrderIndex == 3 && other {
		next, err = e.ensureFreeTextQuestion(dbc, in.SurveyID, step.NextOrder)
		if err != nil {
			return nil, err
		}
	}

	if next == nil {
		return e.complete(ctx, sess, resp, step.Cursor)
	}

	moved, err := e.repos.Session.UpdateProgress(dbc, sess.ID, step.Cursor, types.SessionInProgress)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if !moved {
		return nil, pkgerrors.ErrSessionCompleted
	}
	return e.renderQuestion(ctx, next, in.CustomerID, Carry{Order: q.OrderIndex, Value: value})
}

// applyUniversity writes the university as soon as it is known. Failures are
// logged; the profile sync at completion writes it again.
func (e *surveyEngine) applyUniversity(dbc dbctx.Context, q *types.SurveyQuestion, customerID uuid.UUID, value string, other bool) {
	switch {
	case q.OrderIndex == 3 && value != "" && !other:
		id, err := uuid.Parse(value)
		if err != nil {
			e.log.Warn("university answer is not a catalog id", "value", value)
			return
		}
		if err := e.repos.Customer.UpdateProfile(dbc, customerID, types.ProfileUpdate{UniversityID: &id}); err != nil {
			e.log.Warn("university update failed", "customer_id", customerID, "error", err)
		}
	case q.OrderIndex == 4 && value != "":
		id, err := e.repos.Catalog.UpsertFreeTextUniversity(dbc, value)
		if err != nil {
			e.log.Warn("free-text university resolve failed", "customer_id", customerID, "error", err)
			return
		}
		if err := e.repos.Customer.UpdateProfile(dbc, customerID, types.ProfileUpdate{UniversityID: &id}); err != nil {
			e.log.Warn("university update failed", "customer_id", customerID, "error", err)
		}
	}
}

func (e *surveyEngine) ensureFreeTextQuestion(dbc dbctx.Context, surveyID uuid.UUID, order int) (*types.SurveyQuestion, error) {
	q, err := e.repos.Survey.EnsureQuestion(dbc, &types.SurveyQuestion{
		SurveyID:   surveyID,
		OrderIndex: order,
		Title:      fmt.Sprintf("Q%d", order),
		Text:       freeTextUniversityText,
		Kind:       types.KindFreeText,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure free-text question: %w", err)
	}
	e.log.Info("free-text question injected", "survey_id", surveyID, "order", order)
	return q, nil
}

// complete finishes the session. Only the caller that flips the status runs
// the side effects.
func (e *surveyEngine) complete(ctx context.Context, sess *types.SurveySession, resp *types.SurveyResponse, cursor int) (linemsg.Message, error) {
	dbc := dbctx.New(ctx)
	done, err := e.repos.Session.Complete(dbc, sess.ID, cursor)
	if err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	if !done {
		return nil, pkgerrors.ErrSessionCompleted
	}
	if err := e.repos.Response.MarkSubmitted(dbc, resp.ID, e.cfg.Now()); err != nil {
		e.log.Warn("mark response submitted failed", "response_id", resp.ID, "error", err)
	}
	e.metrics.IncSurveyCompleted()

	if e.profile != nil {
		if err := e.profile.Sync(ctx, sess.SurveyID, sess.CustomerID); err != nil {
			e.log.Warn("profile sync failed", "customer_id", sess.CustomerID, "error", err)
		}
	}
	if e.story != nil {
		if err := e.story.AdvanceAfterSurvey(ctx, sess.SurveyID, sess.CustomerID); err != nil {
			e.log.Warn("story advance after survey failed", "customer_id", sess.CustomerID, "error", err)
		}
	}
	e.log.Info("survey completed", "survey_id", sess.SurveyID, "customer_id", sess.CustomerID)
	return linemsg.Text(MsgThanks), nil
}

func (e *surveyEngine) StartFreeText(ctx context.Context, surveyID, customerID uuid.UUID) (linemsg.Message, error) {
	dbc := dbctx.New(ctx)
	sess, err := e.repos.Session.Get(dbc, surveyID, customerID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session for survey %s: %w", surveyID, pkgerrors.ErrNotFound)
	}
	if sess.Completed() {
		return nil, pkgerrors.ErrSessionCompleted
	}
	ok, err := e.repos.Session.SetStatus(dbc, sess.ID, types.SessionAwaitingText)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.ErrSessionCompleted
	}
	return linemsg.Text(MsgFreeTextPrompt), nil
}

func (e *surveyEngine) HandleText(ctx context.Context, customerID uuid.UUID, text string) (linemsg.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	dbc := dbctx.New(ctx)
	sess, err := e.repos.Session.FindActive(dbc, customerID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	q, err := e.repos.Survey.GetQuestionByOrder(dbc, sess.SurveyID, sess.CurrentOrderIndex+1)
	if err != nil {
		return nil, err
	}
	if q == nil || q.Kind != types.KindFreeText {
		return nil, nil
	}
	msg, err := e.Answer(ctx, AnswerInput{
		SurveyID:   sess.SurveyID,
		CustomerID: customerID,
		QuestionID: q.ID,
		Value:      text,
	})
	if errors.Is(err, pkgerrors.ErrSessionCompleted) {
		return nil, nil
	}
	return msg, err
}

func (e *surveyEngine) renderQuestion(ctx context.Context, q *types.SurveyQuestion, customerID uuid.UUID, carry Carry) (linemsg.Message, error) {
	dbc := dbctx.New(ctx)
	tpl, err := e.questionTemplate(dbc, q)
	if err != nil {
		return nil, err
	}

	base := linemsg.PostbackData{
		SurveyID:   q.SurveyID.String(),
		QuestionID: q.ID.String(),
		OrderIndex: q.OrderIndex,
	}

	switch q.Kind {
	case types.KindFreeText:
		data := base
		data.Action = linemsg.ActionStartFreeText
		return e.renderer.FreeText(q, tpl, render.Choice{Label: freeTextStartLabel, Data: data})
	case types.KindYesNo:
		yes, no := base, base
		yes.Action, yes.OptionValue = linemsg.ActionAnswer, "yes"
		no.Action, no.OptionValue = linemsg.ActionAnswer, "no"
		return e.renderer.YesNo(q, tpl,
			render.Choice{Label: yesLabel, Data: yes},
			render.Choice{Label: noLabel, Data: no},
		)
	default:
		items, err := e.options.Options(ctx, q, customerID, carry)
		if err != nil {
			return nil, fmt.Errorf("options for question %d: %w", q.OrderIndex, err)
		}
		if len(items) == 0 {
			e.log.Warn("question has no options", "survey_id", q.SurveyID, "order", q.OrderIndex, "error", pkgerrors.ErrNoOptions)
			return linemsg.Text(MsgNoOptions), nil
		}
		choices := make([]render.Choice, 0, len(items))
		for _, it := range items {
			data := base
			data.Action = linemsg.ActionAnswer
			data.OptionID = it.ID
			data.OptionValue = it.Value
			choices = append(choices, render.Choice{Label: it.Label, Data: data})
		}
		return e.renderer.MultiChoice(q, tpl, choices)
	}
}

func (e *surveyEngine) questionTemplate(dbc dbctx.Context, q *types.SurveyQuestion) (*types.FlexTemplate, error) {
	if q.TemplateID != nil {
		tpl, err := e.repos.Story.GetTemplateByID(dbc, *q.TemplateID)
		if err != nil || tpl != nil {
			return tpl, err
		}
	}
	name := render.TemplateMultiChoice
	switch q.Kind {
	case types.KindYesNo:
		name = render.TemplateYesNo
	case types.KindFreeText:
		name = render.TemplateFreeText
	}
	return e.repos.Story.GetTemplateByName(dbc, name)
}
