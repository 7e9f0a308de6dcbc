package webhook

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type ProcessedEventRepo interface {
	// MarkProcessed records eventID and reports whether this call was the first.
	MarkProcessed(dbc dbctx.Context, eventID, eventType string, at time.Time) (bool, error)
	PurgeBefore(dbc dbctx.Context, cutoff time.Time) (int64, error)
}

type processedEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessedEventRepo(db *gorm.DB, baseLog *logger.Logger) ProcessedEventRepo {
	return &processedEventRepo{db: db, log: baseLog.With("repo", "ProcessedEventRepo")}
}

func (r *processedEventRepo) MarkProcessed(dbc dbctx.Context, eventID, eventType string, at time.Time) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	res := dbc.Use(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&types.ProcessedEvent{
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: at.UTC(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *processedEventRepo) PurgeBefore(dbc dbctx.Context, cutoff time.Time) (int64, error) {
	res := dbc.Use(r.db).
		Where("processed_at < ?", cutoff.UTC()).
		Delete(&types.ProcessedEvent{})
	return res.RowsAffected, res.Error
}
