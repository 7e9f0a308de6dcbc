package customer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Master catalogs referenced from the customer profile. Lists are always
// read in (order_index, name) order.

type Grade struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	OrderIndex int       `gorm:"column:order_index;not null;default:0;index" json:"order_index"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (Grade) TableName() string { return "grade" }

func (g *Grade) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

type Major struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	OrderIndex int       `gorm:"column:order_index;not null;default:0;index" json:"order_index"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (Major) TableName() string { return "major" }

func (m *Major) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

type University struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	OrderIndex int       `gorm:"column:order_index;not null;default:0;index" json:"order_index"`
	FreeText   bool      `gorm:"column:free_text;not null;default:false" json:"free_text"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (University) TableName() string { return "university" }

func (u *University) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type Prefecture struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	KanaGroup  string    `gorm:"column:kana_group;not null;index" json:"kana_group"`
	OrderIndex int       `gorm:"column:order_index;not null;default:0;index" json:"order_index"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (Prefecture) TableName() string { return "prefecture" }

func (p *Prefecture) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
