package catalog

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/lineflow-backend/internal/pkg/errors"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

// CatalogRepo reads the master lists used to build survey choices.
type CatalogRepo interface {
	Grades(dbc dbctx.Context, limit int) ([]*types.Grade, error)
	Majors(dbc dbctx.Context, limit int) ([]*types.Major, error)
	Universities(dbc dbctx.Context, limit int) ([]*types.University, error)
	PrefecturesByGroup(dbc dbctx.Context, group string, limit int) ([]*types.Prefecture, error)
	UpsertFreeTextUniversity(dbc dbctx.Context, name string) (uuid.UUID, error)
}

type catalogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCatalogRepo(db *gorm.DB, baseLog *logger.Logger) CatalogRepo {
	return &catalogRepo{db: db, log: baseLog.With("repo", "CatalogRepo")}
}

func ordered(q *gorm.DB, limit int) *gorm.DB {
	q = q.Order("order_index ASC").Order("name ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

func (r *catalogRepo) Grades(dbc dbctx.Context, limit int) ([]*types.Grade, error) {
	var out []*types.Grade
	if err := ordered(dbc.Use(r.db), limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *catalogRepo) Majors(dbc dbctx.Context, limit int) ([]*types.Major, error) {
	var out []*types.Major
	if err := ordered(dbc.Use(r.db), limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *catalogRepo) Universities(dbc dbctx.Context, limit int) ([]*types.University, error) {
	var out []*types.University
	q := dbc.Use(r.db).Where("free_text = ?", false)
	if err := ordered(q, limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *catalogRepo) PrefecturesByGroup(dbc dbctx.Context, group string, limit int) ([]*types.Prefecture, error) {
	var out []*types.Prefecture
	group = strings.TrimSpace(group)
	if group == "" {
		return out, nil
	}
	q := dbc.Use(r.db).Where("kana_group = ?", group)
	if err := ordered(q, limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertFreeTextUniversity resolves name by exact match or appends a new
// university after the current highest order_index.
func (r *catalogRepo) UpsertFreeTextUniversity(dbc dbctx.Context, name string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, pkgerrors.ErrInvalidArgument
	}
	var id uuid.UUID
	err := dbc.Use(r.db).Transaction(func(tx *gorm.DB) error {
		var existing types.University
		if err := tx.Where("name = ?", name).Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		if existing.ID != uuid.Nil {
			id = existing.ID
			return nil
		}
		var maxOrder int
		if err := tx.Model(&types.University{}).
			Select("COALESCE(MAX(order_index), 0)").
			Scan(&maxOrder).Error; err != nil {
			return err
		}
		row := &types.University{Name: name, OrderIndex: maxOrder + 1, FreeText: true}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			id = row.ID
			return nil
		}
		// lost a race with a concurrent insert of the same name
		var winner types.University
		if err := tx.Where("name = ?", name).Limit(1).Find(&winner).Error; err != nil {
			return err
		}
		if winner.ID == uuid.Nil {
			return errors.New("university upsert: row vanished")
		}
		id = winner.ID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
