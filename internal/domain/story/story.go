package story

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	FlowInProgress = "in_progress"
	FlowCompleted  = "completed"

	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

type Story struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"column:title;not null;uniqueIndex" json:"title"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Story) TableName() string { return "story" }

func (s *Story) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// MessageNode is one step of a story. The entry node has no PrevNodeID; the
// engine only ever follows NextNodeID.
type MessageNode struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StoryID      uuid.UUID  `gorm:"type:uuid;column:story_id;not null;index" json:"story_id"`
	PrevNodeID   *uuid.UUID `gorm:"type:uuid;column:prev_node_id;index" json:"prev_node_id,omitempty"`
	NextNodeID   *uuid.UUID `gorm:"type:uuid;column:next_node_id" json:"next_node_id,omitempty"`
	Title        string     `gorm:"column:title" json:"title"`
	Body         string     `gorm:"column:body" json:"body"`
	ImageURL     string     `gorm:"column:image_url" json:"image_url,omitempty"`
	PrimaryLabel string     `gorm:"column:primary_label" json:"primary_label,omitempty"`
	TemplateID   *uuid.UUID `gorm:"type:uuid;column:template_id" json:"template_id,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (MessageNode) TableName() string { return "message_node" }

func (n *MessageNode) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// NodeCard is an optional extra bubble of a node; more than one card turns the
// node into a carousel.
type NodeCard struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NodeID     uuid.UUID `gorm:"type:uuid;column:node_id;not null;index" json:"node_id"`
	OrderIndex int       `gorm:"column:order_index;not null;default:0" json:"order_index"`
	Title      string    `gorm:"column:title" json:"title"`
	Body       string    `gorm:"column:body" json:"body"`
	ImageURL   string    `gorm:"column:image_url" json:"image_url,omitempty"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (NodeCard) TableName() string { return "message_node_card" }

func (c *NodeCard) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// FlexTemplate holds a Flex bubble layout with {PLACEHOLDER} markers.
type FlexTemplate struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string         `gorm:"column:name;not null;uniqueIndex" json:"name"`
	LayoutJSON datatypes.JSON `gorm:"column:layout_json;type:jsonb" json:"layout_json"`
	CreatedAt  time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (FlexTemplate) TableName() string { return "flex_template" }

func (t *FlexTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// UserFlow is a customer's cursor through one story.
type UserFlow struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID      uuid.UUID  `gorm:"type:uuid;column:customer_id;not null;uniqueIndex:ux_user_flow_customer_story,priority:1" json:"customer_id"`
	StoryID         uuid.UUID  `gorm:"type:uuid;column:story_id;not null;uniqueIndex:ux_user_flow_customer_story,priority:2" json:"story_id"`
	CurrentNodeID   uuid.UUID  `gorm:"type:uuid;column:current_node_id;not null" json:"current_node_id"`
	Status          string     `gorm:"column:status;not null;index" json:"status"`
	NextScheduledAt *time.Time `gorm:"column:next_scheduled_at;index" json:"next_scheduled_at,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (UserFlow) TableName() string { return "user_flow" }

func (f *UserFlow) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// StoryTarget is the append-only delivery log.
type StoryTarget struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	NodeID      uuid.UUID      `gorm:"type:uuid;column:node_id;not null;index" json:"node_id"`
	CustomerID  uuid.UUID      `gorm:"type:uuid;column:customer_id;not null;index" json:"customer_id"`
	Status      string         `gorm:"column:status;not null" json:"status"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
	DeliveredAt time.Time      `gorm:"column:delivered_at;not null;index" json:"delivered_at"`
}

func (StoryTarget) TableName() string { return "story_target" }

func (t *StoryTarget) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
