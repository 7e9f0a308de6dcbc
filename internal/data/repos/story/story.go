package story

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type StoryRepo interface {
	FindStoryByTitle(dbc dbctx.Context, title string) (*types.Story, error)
	FindEntryNode(dbc dbctx.Context, storyID uuid.UUID) (*types.MessageNode, error)
	GetNodeByID(dbc dbctx.Context, id uuid.UUID) (*types.MessageNode, error)
	ListCards(dbc dbctx.Context, nodeID uuid.UUID) ([]*types.NodeCard, error)
	GetTemplateByID(dbc dbctx.Context, id uuid.UUID) (*types.FlexTemplate, error)
	GetTemplateByName(dbc dbctx.Context, name string) (*types.FlexTemplate, error)
}

type storyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStoryRepo(db *gorm.DB, baseLog *logger.Logger) StoryRepo {
	return &storyRepo{db: db, log: baseLog.With("repo", "StoryRepo")}
}

func (r *storyRepo) FindStoryByTitle(dbc dbctx.Context, title string) (*types.Story, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	var s types.Story
	if err := dbc.Use(r.db).Where("title = ?", title).Limit(1).Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *storyRepo) FindEntryNode(dbc dbctx.Context, storyID uuid.UUID) (*types.MessageNode, error) {
	if storyID == uuid.Nil {
		return nil, nil
	}
	var n types.MessageNode
	if err := dbc.Use(r.db).
		Where("story_id = ? AND prev_node_id IS NULL", storyID).
		Order("created_at ASC").
		Limit(1).
		Find(&n).Error; err != nil {
		return nil, err
	}
	if n.ID == uuid.Nil {
		return nil, nil
	}
	return &n, nil
}

func (r *storyRepo) GetNodeByID(dbc dbctx.Context, id uuid.UUID) (*types.MessageNode, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var n types.MessageNode
	if err := dbc.Use(r.db).Where("id = ?", id).Limit(1).Find(&n).Error; err != nil {
		return nil, err
	}
	if n.ID == uuid.Nil {
		return nil, nil
	}
	return &n, nil
}

func (r *storyRepo) ListCards(dbc dbctx.Context, nodeID uuid.UUID) ([]*types.NodeCard, error) {
	var out []*types.NodeCard
	if nodeID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Use(r.db).
		Where("node_id = ?", nodeID).
		Order("order_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *storyRepo) GetTemplateByID(dbc dbctx.Context, id uuid.UUID) (*types.FlexTemplate, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var t types.FlexTemplate
	if err := dbc.Use(r.db).Where("id = ?", id).Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}

func (r *storyRepo) GetTemplateByName(dbc dbctx.Context, name string) (*types.FlexTemplate, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	var t types.FlexTemplate
	if err := dbc.Use(r.db).Where("name = ?", name).Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
