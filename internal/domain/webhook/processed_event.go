package webhook

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProcessedEvent records a webhook event id once it has been accepted so
// platform redeliveries are not dispatched twice.
type ProcessedEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EventID     string    `gorm:"column:event_id;not null;uniqueIndex" json:"event_id"`
	EventType   string    `gorm:"column:event_type;not null" json:"event_type"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null;index" json:"processed_at"`
}

func (ProcessedEvent) TableName() string { return "processed_event" }

func (e *ProcessedEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
