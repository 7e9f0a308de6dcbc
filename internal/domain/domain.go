package domain

import (
	"github.com/yungbote/lineflow-backend/internal/domain/customer"
	"github.com/yungbote/lineflow-backend/internal/domain/story"
	"github.com/yungbote/lineflow-backend/internal/domain/survey"
	"github.com/yungbote/lineflow-backend/internal/domain/webhook"
)

const (
	FlowInProgress = story.FlowInProgress
	FlowCompleted  = story.FlowCompleted

	DeliverySent   = story.DeliverySent
	DeliveryFailed = story.DeliveryFailed

	SessionInProgress   = survey.SessionInProgress
	SessionAwaitingText = survey.SessionAwaitingText
	SessionCompleted    = survey.SessionCompleted

	KindMultiChoice   = survey.KindMultiChoice
	KindYesNo         = survey.KindYesNo
	KindFreeText      = survey.KindFreeText
	KindStaticOptions = survey.KindStaticOptions
)

type Customer = customer.Customer
type ProfileUpdate = customer.ProfileUpdate
type Grade = customer.Grade
type Major = customer.Major
type University = customer.University
type Prefecture = customer.Prefecture

type Story = story.Story
type MessageNode = story.MessageNode
type NodeCard = story.NodeCard
type FlexTemplate = story.FlexTemplate
type UserFlow = story.UserFlow
type StoryTarget = story.StoryTarget

type Survey = survey.Survey
type QuestionKind = survey.Kind
type SurveyQuestion = survey.Question
type SurveyOption = survey.Option
type SurveySession = survey.Session
type SurveyResponse = survey.Response
type SurveyAnswer = survey.Answer
type AnswerValue = survey.AnswerValue
type AnswerRecord = survey.AnswerRecord

type ProcessedEvent = webhook.ProcessedEvent

// Models lists every persisted type in migration order.
func Models() []interface{} {
	return []interface{}{
		&Customer{},
		&Grade{},
		&Major{},
		&University{},
		&Prefecture{},

		&Story{},
		&FlexTemplate{},
		&MessageNode{},
		&NodeCard{},
		&UserFlow{},
		&StoryTarget{},

		&Survey{},
		&SurveyQuestion{},
		&SurveyOption{},
		&SurveySession{},
		&SurveyResponse{},
		&SurveyAnswer{},

		&ProcessedEvent{},
	}
}
