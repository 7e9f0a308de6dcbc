package survey

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

// SurveyRepo covers surveys, their questions and static options.
type SurveyRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Survey, error)
	FindByNodeID(dbc dbctx.Context, nodeID uuid.UUID) (*types.Survey, error)
	GetQuestionByID(dbc dbctx.Context, id uuid.UUID) (*types.SurveyQuestion, error)
	GetQuestionByOrder(dbc dbctx.Context, surveyID uuid.UUID, order int) (*types.SurveyQuestion, error)
	GetNextQuestion(dbc dbctx.Context, surveyID uuid.UUID, afterOrder int) (*types.SurveyQuestion, error)
	EnsureQuestion(dbc dbctx.Context, q *types.SurveyQuestion) (*types.SurveyQuestion, error)
	ListOptions(dbc dbctx.Context, questionID uuid.UUID) ([]*types.SurveyOption, error)
}

type surveyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSurveyRepo(db *gorm.DB, baseLog *logger.Logger) SurveyRepo {
	return &surveyRepo{db: db, log: baseLog.With("repo", "SurveyRepo")}
}

func (r *surveyRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Survey, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var s types.Survey
	if err := dbc.Use(r.db).Where("id = ?", id).Limit(1).Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *surveyRepo) FindByNodeID(dbc dbctx.Context, nodeID uuid.UUID) (*types.Survey, error) {
	if nodeID == uuid.Nil {
		return nil, nil
	}
	var s types.Survey
	if err := dbc.Use(r.db).Where("node_id = ?", nodeID).Limit(1).Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *surveyRepo) GetQuestionByID(dbc dbctx.Context, id uuid.UUID) (*types.SurveyQuestion, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var q types.SurveyQuestion
	if err := dbc.Use(r.db).Where("id = ?", id).Limit(1).Find(&q).Error; err != nil {
		return nil, err
	}
	if q.ID == uuid.Nil {
		return nil, nil
	}
	return &q, nil
}

func (r *surveyRepo) GetQuestionByOrder(dbc dbctx.Context, surveyID uuid.UUID, order int) (*types.SurveyQuestion, error) {
	if surveyID == uuid.Nil || order <= 0 {
		return nil, nil
	}
	var q types.SurveyQuestion
	if err := dbc.Use(r.db).
		Where("survey_id = ? AND order_index = ?", surveyID, order).
		Limit(1).
		Find(&q).Error; err != nil {
		return nil, err
	}
	if q.ID == uuid.Nil {
		return nil, nil
	}
	return &q, nil
}

func (r *surveyRepo) GetNextQuestion(dbc dbctx.Context, surveyID uuid.UUID, afterOrder int) (*types.SurveyQuestion, error) {
	if surveyID == uuid.Nil {
		return nil, nil
	}
	var q types.SurveyQuestion
	if err := dbc.Use(r.db).
		Where("survey_id = ? AND order_index > ?", surveyID, afterOrder).
		Order("order_index ASC").
		Limit(1).
		Find(&q).Error; err != nil {
		return nil, err
	}
	if q.ID == uuid.Nil {
		return nil, nil
	}
	return &q, nil
}

// EnsureQuestion inserts q unless a question already occupies its
// (survey, order_index) slot, and returns whichever row owns the slot.
func (r *surveyRepo) EnsureQuestion(dbc dbctx.Context, q *types.SurveyQuestion) (*types.SurveyQuestion, error) {
	if q == nil {
		return nil, nil
	}
	if err := dbc.Use(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "survey_id"}, {Name: "order_index"}},
		DoNothing: true,
	}).Create(q).Error; err != nil {
		return nil, err
	}
	return r.GetQuestionByOrder(dbc, q.SurveyID, q.OrderIndex)
}

func (r *surveyRepo) ListOptions(dbc dbctx.Context, questionID uuid.UUID) ([]*types.SurveyOption, error) {
	var out []*types.SurveyOption
	if questionID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Use(r.db).
		Where("question_id = ?", questionID).
		Order("order_index ASC").
		Order("label ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
