package customer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is one LINE account that has followed the channel at least once.
// Rows are never deleted; unfollow flips the blocked/opt-in flags.
type Customer struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	LineUserID   string     `gorm:"column:line_user_id;not null;uniqueIndex" json:"line_user_id"`
	DisplayName  string     `gorm:"column:display_name" json:"display_name"`
	PictureURL   string     `gorm:"column:picture_url" json:"picture_url,omitempty"`
	OptIn        bool       `gorm:"column:opt_in;not null;default:false;index" json:"opt_in"`
	IsBlocked    bool       `gorm:"column:is_blocked;not null;default:false;index" json:"is_blocked"`
	BlockedAt    *time.Time `gorm:"column:blocked_at" json:"blocked_at,omitempty"`
	GradeID      *uuid.UUID `gorm:"type:uuid;column:grade_id" json:"grade_id,omitempty"`
	MajorID      *uuid.UUID `gorm:"type:uuid;column:major_id" json:"major_id,omitempty"`
	UniversityID *uuid.UUID `gorm:"type:uuid;column:university_id" json:"university_id,omitempty"`
	PrefectureID *uuid.UUID `gorm:"type:uuid;column:prefecture_id" json:"prefecture_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Customer) TableName() string { return "customer" }

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ProfileUpdate carries the profile columns a survey completion may write.
// Nil fields are left untouched.
type ProfileUpdate struct {
	GradeID      *uuid.UUID
	MajorID      *uuid.UUID
	UniversityID *uuid.UUID
	PrefectureID *uuid.UUID
	OptIn        *bool
	IsBlocked    *bool
}

func (p ProfileUpdate) Empty() bool {
	return p.GradeID == nil && p.MajorID == nil && p.UniversityID == nil &&
		p.PrefectureID == nil && p.OptIn == nil && p.IsBlocked == nil
}

func (p ProfileUpdate) Columns() map[string]interface{} {
	out := map[string]interface{}{}
	if p.GradeID != nil {
		out["grade_id"] = *p.GradeID
	}
	if p.MajorID != nil {
		out["major_id"] = *p.MajorID
	}
	if p.UniversityID != nil {
		out["university_id"] = *p.UniversityID
	}
	if p.PrefectureID != nil {
		out["prefecture_id"] = *p.PrefectureID
	}
	if p.OptIn != nil {
		out["opt_in"] = *p.OptIn
	}
	if p.IsBlocked != nil {
		out["is_blocked"] = *p.IsBlocked
		if !*p.IsBlocked {
			out["blocked_at"] = nil
		}
	}
	return out
}
