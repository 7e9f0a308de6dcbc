package story

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type UserFlowRepo interface {
	Get(dbc dbctx.Context, customerID, storyID uuid.UUID) (*types.UserFlow, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.UserFlow, error)
	Upsert(dbc dbctx.Context, customerID, storyID, nodeID uuid.UUID, status string, nextAt *time.Time) (*types.UserFlow, error)
	UpdateCursor(dbc dbctx.Context, flowID, nodeID uuid.UUID, nextAt *time.Time, status string) error
	Advance(dbc dbctx.Context, flowID, expectedNodeID, nodeID uuid.UUID, nextAt *time.Time) (bool, error)
	Complete(dbc dbctx.Context, flowID, expectedNodeID uuid.UUID) (bool, error)
	Reschedule(dbc dbctx.Context, flowID uuid.UUID, nextAt time.Time) error
	FindDue(dbc dbctx.Context, now time.Time, limit int) ([]*types.UserFlow, error)
	FindByCurrentNode(dbc dbctx.Context, customerID, nodeID uuid.UUID) (*types.UserFlow, error)
	LogDelivery(dbc dbctx.Context, target *types.StoryTarget) error
}

type userFlowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserFlowRepo(db *gorm.DB, baseLog *logger.Logger) UserFlowRepo {
	return &userFlowRepo{db: db, log: baseLog.With("repo", "UserFlowRepo")}
}

func (r *userFlowRepo) Get(dbc dbctx.Context, customerID, storyID uuid.UUID) (*types.UserFlow, error) {
	if customerID == uuid.Nil || storyID == uuid.Nil {
		return nil, nil
	}
	var f types.UserFlow
	if err := dbc.Use(r.db).
		Where("customer_id = ? AND story_id = ?", customerID, storyID).
		Limit(1).
		Find(&f).Error; err != nil {
		return nil, err
	}
	if f.ID == uuid.Nil {
		return nil, nil
	}
	return &f, nil
}

func (r *userFlowRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.UserFlow, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var f types.UserFlow
	if err := dbc.Use(r.db).Where("id = ?", id).Limit(1).Find(&f).Error; err != nil {
		return nil, err
	}
	if f.ID == uuid.Nil {
		return nil, nil
	}
	return &f, nil
}

// Upsert writes the flow keyed on (customer, story), overwriting the cursor.
func (r *userFlowRepo) Upsert(dbc dbctx.Context, customerID, storyID, nodeID uuid.UUID, status string, nextAt *time.Time) (*types.UserFlow, error) {
	row := &types.UserFlow{
		CustomerID:      customerID,
		StoryID:         storyID,
		CurrentNodeID:   nodeID,
		Status:          status,
		NextScheduledAt: utcPtr(nextAt),
	}
	if err := dbc.Use(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}, {Name: "story_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_node_id", "status", "next_scheduled_at", "updated_at",
		}),
	}).Create(row).Error; err != nil {
		return nil, err
	}
	return r.Get(dbc, customerID, storyID)
}

func (r *userFlowRepo) UpdateCursor(dbc dbctx.Context, flowID, nodeID uuid.UUID, nextAt *time.Time, status string) error {
	return dbc.Use(r.db).
		Model(&types.UserFlow{}).
		Where("id = ?", flowID).
		Updates(map[string]interface{}{
			"current_node_id":   nodeID,
			"next_scheduled_at": utcPtr(nextAt),
			"status":            status,
		}).Error
}

// Advance moves an in-progress flow from expectedNodeID to nodeID. It reports
// false when the flow was no longer at expectedNodeID.
func (r *userFlowRepo) Advance(dbc dbctx.Context, flowID, expectedNodeID, nodeID uuid.UUID, nextAt *time.Time) (bool, error) {
	res := dbc.Use(r.db).
		Model(&types.UserFlow{}).
		Where("id = ? AND current_node_id = ? AND status = ?", flowID, expectedNodeID, types.FlowInProgress).
		Updates(map[string]interface{}{
			"current_node_id":   nodeID,
			"next_scheduled_at": utcPtr(nextAt),
			"status":            types.FlowInProgress,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *userFlowRepo) Complete(dbc dbctx.Context, flowID, expectedNodeID uuid.UUID) (bool, error) {
	res := dbc.Use(r.db).
		Model(&types.UserFlow{}).
		Where("id = ? AND current_node_id = ? AND status = ?", flowID, expectedNodeID, types.FlowInProgress).
		Updates(map[string]interface{}{
			"status":            types.FlowCompleted,
			"next_scheduled_at": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *userFlowRepo) Reschedule(dbc dbctx.Context, flowID uuid.UUID, nextAt time.Time) error {
	return dbc.Use(r.db).
		Model(&types.UserFlow{}).
		Where("id = ? AND status = ?", flowID, types.FlowInProgress).
		Update("next_scheduled_at", nextAt.UTC()).Error
}

// FindDue returns in-progress flows whose due time has passed and whose
// customer still accepts pushes, oldest first.
func (r *userFlowRepo) FindDue(dbc dbctx.Context, now time.Time, limit int) ([]*types.UserFlow, error) {
	var out []*types.UserFlow
	q := dbc.Use(r.db).
		Model(&types.UserFlow{}).
		Joins("JOIN customer ON customer.id = user_flow.customer_id").
		Where("user_flow.status = ?", types.FlowInProgress).
		Where("user_flow.next_scheduled_at IS NOT NULL AND user_flow.next_scheduled_at <= ?", now.UTC()).
		Where("customer.opt_in = ? AND customer.is_blocked = ?", true, false).
		Order("user_flow.next_scheduled_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Select("user_flow.*").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *userFlowRepo) FindByCurrentNode(dbc dbctx.Context, customerID, nodeID uuid.UUID) (*types.UserFlow, error) {
	if customerID == uuid.Nil || nodeID == uuid.Nil {
		return nil, nil
	}
	var f types.UserFlow
	if err := dbc.Use(r.db).
		Where("customer_id = ? AND current_node_id = ?", customerID, nodeID).
		Limit(1).
		Find(&f).Error; err != nil {
		return nil, err
	}
	if f.ID == uuid.Nil {
		return nil, nil
	}
	return &f, nil
}

func (r *userFlowRepo) LogDelivery(dbc dbctx.Context, target *types.StoryTarget) error {
	if target == nil {
		return nil
	}
	if target.DeliveredAt.IsZero() {
		target.DeliveredAt = time.Now().UTC()
	}
	return dbc.Use(r.db).Create(target).Error
}
