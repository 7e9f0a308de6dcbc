package customer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type CustomerRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Customer, error)
	GetByLineUserID(dbc dbctx.Context, lineUserID string) (*types.Customer, error)
	ListByLineUserIDs(dbc dbctx.Context, lineUserIDs []string) ([]*types.Customer, error)
	UpsertFollower(dbc dbctx.Context, lineUserID, displayName, pictureURL string) (*types.Customer, error)
	CreateMany(dbc dbctx.Context, customers []*types.Customer) ([]*types.Customer, error)
	SetBlocked(dbc dbctx.Context, lineUserID string, at time.Time) error
	Reactivate(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
	MarkBlockedExcept(dbc dbctx.Context, keepLineUserIDs []string, at time.Time) (int64, error)
	UpdateProfile(dbc dbctx.Context, id uuid.UUID, upd types.ProfileUpdate) error
}

type customerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCustomerRepo(db *gorm.DB, baseLog *logger.Logger) CustomerRepo {
	return &customerRepo{db: db, log: baseLog.With("repo", "CustomerRepo")}
}

func (r *customerRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Customer, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Customer
	if err := dbc.Use(r.db).Where("id = ?", id).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *customerRepo) GetByLineUserID(dbc dbctx.Context, lineUserID string) (*types.Customer, error) {
	if lineUserID == "" {
		return nil, nil
	}
	var c types.Customer
	if err := dbc.Use(r.db).Where("line_user_id = ?", lineUserID).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *customerRepo) ListByLineUserIDs(dbc dbctx.Context, lineUserIDs []string) ([]*types.Customer, error) {
	var out []*types.Customer
	if len(lineUserIDs) == 0 {
		return out, nil
	}
	if err := dbc.Use(r.db).Where("line_user_id IN ?", lineUserIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertFollower creates or re-activates the customer behind a follow event.
// An empty displayName keeps the stored one.
func (r *customerRepo) UpsertFollower(dbc dbctx.Context, lineUserID, displayName, pictureURL string) (*types.Customer, error) {
	row := &types.Customer{
		LineUserID:  lineUserID,
		DisplayName: displayName,
		PictureURL:  pictureURL,
		OptIn:       true,
		IsBlocked:   false,
	}
	updates := []string{"opt_in", "is_blocked", "blocked_at", "updated_at"}
	if displayName != "" {
		updates = append(updates, "display_name")
	}
	if pictureURL != "" {
		updates = append(updates, "picture_url")
	}
	if err := dbc.Use(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "line_user_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(row).Error; err != nil {
		return nil, err
	}
	return r.GetByLineUserID(dbc, lineUserID)
}

func (r *customerRepo) CreateMany(dbc dbctx.Context, customers []*types.Customer) ([]*types.Customer, error) {
	if len(customers) == 0 {
		return []*types.Customer{}, nil
	}
	if err := dbc.Use(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *customerRepo) SetBlocked(dbc dbctx.Context, lineUserID string, at time.Time) error {
	return dbc.Use(r.db).
		Model(&types.Customer{}).
		Where("line_user_id = ?", lineUserID).
		Updates(map[string]interface{}{
			"is_blocked": true,
			"opt_in":     false,
			"blocked_at": at.UTC(),
		}).Error
}

func (r *customerRepo) Reactivate(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.Use(r.db).
		Model(&types.Customer{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"is_blocked": false,
			"opt_in":     true,
			"blocked_at": nil,
		})
	return res.RowsAffected, res.Error
}

// MarkBlockedExcept blocks every unblocked customer whose LINE id is not in
// keepLineUserIDs.
func (r *customerRepo) MarkBlockedExcept(dbc dbctx.Context, keepLineUserIDs []string, at time.Time) (int64, error) {
	q := dbc.Use(r.db).Model(&types.Customer{}).Where("is_blocked = ?", false)
	if len(keepLineUserIDs) > 0 {
		q = q.Where("line_user_id NOT IN ?", keepLineUserIDs)
	}
	res := q.Updates(map[string]interface{}{
		"is_blocked": true,
		"opt_in":     false,
		"blocked_at": at.UTC(),
	})
	return res.RowsAffected, res.Error
}

func (r *customerRepo) UpdateProfile(dbc dbctx.Context, id uuid.UUID, upd types.ProfileUpdate) error {
	if id == uuid.Nil || upd.Empty() {
		return nil
	}
	return dbc.Use(r.db).
		Model(&types.Customer{}).
		Where("id = ?", id).
		Updates(upd.Columns()).Error
}
