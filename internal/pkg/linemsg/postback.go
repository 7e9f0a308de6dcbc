package linemsg

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Action string

const (
	ActionStartSurvey   Action = "start_survey"
	ActionAnswer        Action = "answer"
	ActionStartFreeText Action = "start_free_text"
	ActionCompleteFlow  Action = "complete_flow"
)

// OtherValue is the option value of the synthetic "other" university choice.
const OtherValue = "OTHER"

// PostbackData is the JSON carried in a button's postback data field.
type PostbackData struct {
	Action      Action `json:"action" validate:"required,oneof=start_survey answer start_free_text complete_flow"`
	SurveyID    string `json:"surveyId,omitempty" validate:"required_unless=Action complete_flow,omitempty,uuid"`
	QuestionID  string `json:"questionId,omitempty" validate:"required_if=Action answer,omitempty,uuid"`
	OptionID    string `json:"optionId,omitempty" validate:"omitempty,uuid"`
	OptionValue string `json:"optionValue,omitempty"`
	OrderIndex  int    `json:"orderIndex,omitempty" validate:"gte=0"`
	StoryID     string `json:"storyId,omitempty" validate:"omitempty,uuid"`
	NodeID      string `json:"nodeId,omitempty" validate:"omitempty,uuid"`
}

func (p PostbackData) Encode() string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func DecodePostback(raw string) (PostbackData, error) {
	var p PostbackData
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return p, fmt.Errorf("empty postback data")
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("decode postback: %w", err)
	}
	return p, nil
}

// IsOther reports whether an answer value selects the "other" choice.
func IsOther(v string) bool {
	v = strings.TrimSpace(v)
	return v == OtherValue || v == "その他"
}
