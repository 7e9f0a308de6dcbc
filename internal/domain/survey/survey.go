package survey

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SessionInProgress   = "in_progress"
	SessionAwaitingText = "awaiting_text"
	SessionCompleted    = "completed"
)

// Kind is the closed set of question presentations.
type Kind string

const (
	KindMultiChoice   Kind = "multi_choice"
	KindYesNo         Kind = "yes_no"
	KindFreeText      Kind = "free_text"
	KindStaticOptions Kind = "static_options"
)

func (k Kind) Valid() bool {
	switch k {
	case KindMultiChoice, KindYesNo, KindFreeText, KindStaticOptions:
		return true
	default:
		return false
	}
}

// Survey is owned by exactly one message node.
type Survey struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NodeID    uuid.UUID `gorm:"type:uuid;column:node_id;not null;uniqueIndex" json:"node_id"`
	Title     string    `gorm:"column:title" json:"title"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Survey) TableName() string { return "survey" }

func (s *Survey) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Question order indexes are 1-based and may have gaps.
type Question struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SurveyID   uuid.UUID  `gorm:"type:uuid;column:survey_id;not null;uniqueIndex:ux_survey_question_order,priority:1" json:"survey_id"`
	OrderIndex int        `gorm:"column:order_index;not null;uniqueIndex:ux_survey_question_order,priority:2" json:"order_index"`
	Title      string     `gorm:"column:title" json:"title"`
	Text       string     `gorm:"column:text" json:"text"`
	Kind       Kind       `gorm:"column:kind;not null" json:"kind"`
	TemplateID *uuid.UUID `gorm:"type:uuid;column:template_id" json:"template_id,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Question) TableName() string { return "survey_question" }

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

type Option struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionID uuid.UUID `gorm:"type:uuid;column:question_id;not null;index" json:"question_id"`
	Label      string    `gorm:"column:label;not null" json:"label"`
	Value      string    `gorm:"column:value;not null" json:"value"`
	OrderIndex int       `gorm:"column:order_index;not null;default:0" json:"order_index"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (Option) TableName() string { return "survey_option" }

func (o *Option) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Session is the per (survey, customer) cursor. CurrentOrderIndex is the last
// fully answered question.
type Session struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SurveyID          uuid.UUID `gorm:"type:uuid;column:survey_id;not null;uniqueIndex:ux_survey_session,priority:1" json:"survey_id"`
	CustomerID        uuid.UUID `gorm:"type:uuid;column:customer_id;not null;uniqueIndex:ux_survey_session,priority:2;index" json:"customer_id"`
	CurrentOrderIndex int       `gorm:"column:current_order_index;not null;default:0" json:"current_order_index"`
	Status            string    `gorm:"column:status;not null;index" json:"status"`
	LastInteractionAt time.Time `gorm:"column:last_interaction_at;not null;index" json:"last_interaction_at"`
	CreatedAt         time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Session) TableName() string { return "survey_session" }

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *Session) Completed() bool { return s != nil && s.Status == SessionCompleted }

type Response struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SurveyID    uuid.UUID  `gorm:"type:uuid;column:survey_id;not null;uniqueIndex:ux_survey_response,priority:1" json:"survey_id"`
	CustomerID  uuid.UUID  `gorm:"type:uuid;column:customer_id;not null;uniqueIndex:ux_survey_response,priority:2" json:"customer_id"`
	SubmittedAt *time.Time `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Response) TableName() string { return "survey_response" }

func (r *Response) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Answer holds the latest answer of one question within a response.
type Answer struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ResponseID uuid.UUID  `gorm:"type:uuid;column:response_id;not null;uniqueIndex:ux_survey_answer,priority:1" json:"response_id"`
	QuestionID uuid.UUID  `gorm:"type:uuid;column:question_id;not null;uniqueIndex:ux_survey_answer,priority:2" json:"question_id"`
	OptionID   *uuid.UUID `gorm:"type:uuid;column:option_id" json:"option_id,omitempty"`
	TextAnswer *string    `gorm:"column:text_answer" json:"text_answer,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Answer) TableName() string { return "survey_answer" }

func (a *Answer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// AnswerValue is the write side of Answer.
type AnswerValue struct {
	OptionID *uuid.UUID
	Text     *string
}

// AnswerRecord is an answer joined with its question order. Value is the text
// answer when present, otherwise the chosen option's value.
type AnswerRecord struct {
	QuestionID uuid.UUID
	OrderIndex int
	OptionID   *uuid.UUID
	Value      string
}
