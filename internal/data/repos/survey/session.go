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

// SessionRepo owns the per (survey, customer) cursor. Every mutating method
// except Upsert refuses to touch a completed session.
type SessionRepo interface {
	Get(dbc dbctx.Context, surveyID, customerID uuid.UUID) (*types.SurveySession, error)
	Upsert(dbc dbctx.Context, surveyID, customerID uuid.UUID, status string, order int) (*types.SurveySession, error)
	Ensure(dbc dbctx.Context, surveyID, customerID uuid.UUID) (*types.SurveySession, error)
	UpdateProgress(dbc dbctx.Context, sessionID uuid.UUID, order int, status string) (bool, error)
	SetStatus(dbc dbctx.Context, sessionID uuid.UUID, status string) (bool, error)
	Complete(dbc dbctx.Context, sessionID uuid.UUID, order int) (bool, error)
	FindActive(dbc dbctx.Context, customerID uuid.UUID) (*types.SurveySession, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Get(dbc dbctx.Context, surveyID, customerID uuid.UUID) (*types.SurveySession, error) {
	if surveyID == uuid.Nil || customerID == uuid.Nil {
		return nil, nil
	}
	var s types.SurveySession
	if err := dbc.Use(r.db).
		Where("survey_id = ? AND customer_id = ?", surveyID, customerID).
		Limit(1).
		Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

// Upsert overwrites status and cursor, including on a completed session.
func (r *sessionRepo) Upsert(dbc dbctx.Context, surveyID, customerID uuid.UUID, status string, order int) (*types.SurveySession, error) {
	row := &types.SurveySession{
		SurveyID:          surveyID,
		CustomerID:        customerID,
		Status:            status,
		CurrentOrderIndex: order,
		LastInteractionAt: time.Now().UTC(),
	}
	if err := dbc.Use(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "survey_id"}, {Name: "customer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "current_order_index", "last_interaction_at", "updated_at",
		}),
	}).Create(row).Error; err != nil {
		return nil, err
	}
	return r.Get(dbc, surveyID, customerID)
}

// Ensure creates an in-progress session at index 0 when none exists and
// otherwise returns the stored one unchanged.
func (r *sessionRepo) Ensure(dbc dbctx.Context, surveyID, customerID uuid.UUID) (*types.SurveySession, error) {
	row := &types.SurveySession{
		SurveyID:          surveyID,
		CustomerID:        customerID,
		Status:            types.SessionInProgress,
		CurrentOrderIndex: 0,
		LastInteractionAt: time.Now().UTC(),
	}
	if err := dbc.Use(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "survey_id"}, {Name: "customer_id"}},
		DoNothing: true,
	}).Create(row).Error; err != nil {
		return nil, err
	}
	return r.Get(dbc, surveyID, customerID)
}

func (r *sessionRepo) UpdateProgress(dbc dbctx.Context, sessionID uuid.UUID, order int, status string) (bool, error) {
	res := dbc.Use(r.db).
		Model(&types.SurveySession{}).
		Where("id = ? AND status <> ?", sessionID, types.SessionCompleted).
		Updates(map[string]interface{}{
			"current_order_index": order,
			"status":              status,
			"last_interaction_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionRepo) SetStatus(dbc dbctx.Context, sessionID uuid.UUID, status string) (bool, error) {
	res := dbc.Use(r.db).
		Model(&types.SurveySession{}).
		Where("id = ? AND status <> ?", sessionID, types.SessionCompleted).
		Updates(map[string]interface{}{
			"status":              status,
			"last_interaction_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Complete finishes the session at order. Only the call that flips the status
// gets true, so completion side effects run once.
func (r *sessionRepo) Complete(dbc dbctx.Context, sessionID uuid.UUID, order int) (bool, error) {
	return r.UpdateProgress(dbc, sessionID, order, types.SessionCompleted)
}

func (r *sessionRepo) FindActive(dbc dbctx.Context, customerID uuid.UUID) (*types.SurveySession, error) {
	if customerID == uuid.Nil {
		return nil, nil
	}
	var s types.SurveySession
	if err := dbc.Use(r.db).
		Where("customer_id = ? AND status IN ?", customerID, []string{types.SessionInProgress, types.SessionAwaitingText}).
		Order("last_interaction_at DESC").
		Limit(1).
		Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}
