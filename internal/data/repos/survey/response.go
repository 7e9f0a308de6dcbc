package survey

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type ResponseRepo interface {
	Upsert(dbc dbctx.Context, surveyID, customerID uuid.UUID) (*types.SurveyResponse, error)
	Get(dbc dbctx.Context, surveyID, customerID uuid.UUID) (*types.SurveyResponse, error)
	MarkSubmitted(dbc dbctx.Context, responseID uuid.UUID, at time.Time) error
	SaveOrUpdateAnswer(dbc dbctx.Context, responseID, questionID uuid.UUID, val types.AnswerValue) error
	ListAnswers(dbc dbctx.Context, surveyID, customerID uuid.UUID) ([]types.AnswerRecord, error)
}

type responseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResponseRepo(db *gorm.DB, baseLog *logger.Logger) ResponseRepo {
	return &responseRepo{db: db, log: baseLog.With("repo", "ResponseRepo")}
}

func (r *responseRepo) Get(dbc dbctx.Context, surveyID, customerID uuid.UUID) (*types.SurveyResponse, error) {
	var resp types.SurveyResponse
	if err := dbc.Use(r.db).
		Where("survey_id = ? AND customer_id = ?", surveyID, customerID).
		Limit(1).
		Find(&resp).Error; err != nil {
		return nil, err
	}
	if resp.ID == uuid.Nil {
		return nil, nil
	}
	return &resp, nil
}

func (r *responseRepo) Upsert(dbc dbctx.Context, surveyID, customerID uuid.UUID) (*types.SurveyResponse, error) {
	row := &types.SurveyResponse{SurveyID: surveyID, CustomerID: customerID}
	if err := dbc.Use(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "survey_id"}, {Name: "customer_id"}},
		DoNothing: true,
	}).Create(row).Error; err != nil {
		return nil, err
	}
	return r.Get(dbc, surveyID, customerID)
}

func (r *responseRepo) MarkSubmitted(dbc dbctx.Context, responseID uuid.UUID, at time.Time) error {
	return dbc.Use(r.db).
		Model(&types.SurveyResponse{}).
		Where("id = ?", responseID).
		Update("submitted_at", at.UTC()).Error
}

// SaveOrUpdateAnswer keeps one answer row per (response, question); the
// latest write replaces both option and text.
func (r *responseRepo) SaveOrUpdateAnswer(dbc dbctx.Context, responseID, questionID uuid.UUID, val types.AnswerValue) error {
	row := &types.SurveyAnswer{
		ResponseID: responseID,
		QuestionID: questionID,
		OptionID:   val.OptionID,
		TextAnswer: val.Text,
	}
	return dbc.Use(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "response_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"option_id", "text_answer", "updated_at"}),
	}).Create(row).Error
}

type answerRow struct {
	QuestionID  uuid.UUID
	OrderIndex  int
	OptionID    *uuid.UUID
	TextAnswer  *string
	OptionValue *string
}

func (r *responseRepo) ListAnswers(dbc dbctx.Context, surveyID, customerID uuid.UUID) ([]types.AnswerRecord, error) {
	var rows []answerRow
	if err := dbc.Use(r.db).
		Table("survey_answer").
		Select(`survey_answer.question_id AS question_id,
			survey_question.order_index AS order_index,
			survey_answer.option_id AS option_id,
			survey_answer.text_answer AS text_answer,
			survey_option.value AS option_value`).
		Joins("JOIN survey_response ON survey_response.id = survey_answer.response_id").
		Joins("JOIN survey_question ON survey_question.id = survey_answer.question_id").
		Joins("LEFT JOIN survey_option ON survey_option.id = survey_answer.option_id").
		Where("survey_response.survey_id = ? AND survey_response.customer_id = ?", surveyID, customerID).
		Order("survey_question.order_index ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.AnswerRecord, 0, len(rows))
	for _, row := range rows {
		rec := types.AnswerRecord{
			QuestionID: row.QuestionID,
			OrderIndex: row.OrderIndex,
			OptionID:   row.OptionID,
		}
		switch {
		case row.TextAnswer != nil && *row.TextAnswer != "":
			rec.Value = *row.TextAnswer
		case row.OptionValue != nil:
			rec.Value = *row.OptionValue
		}
		out = append(out, rec)
	}
	return out, nil
}
