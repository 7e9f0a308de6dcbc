package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
)

func storedTemplate(t *testing.T, name string, layout map[string]any) *types.FlexTemplate {
	t.Helper()
	b, err := json.Marshal(layout)
	require.NoError(t, err)
	return &types.FlexTemplate{Name: name, LayoutJSON: datatypes.JSON(b)}
}

func TestContentFillsPlaceholders(t *testing.T) {
	r := New()
	tpl := storedTemplate(t, TemplateContent, ContentLayout())

	msg, err := r.Content(tpl, Content{
		Title:        "ようこそ",
		Body:         "本文",
		ImageURL:     "https://example.com/a.png",
		PrimaryLabel: "回答を始める",
		PrimaryData:  linemsg.PostbackData{Action: linemsg.ActionStartSurvey, SurveyID: "s1", OrderIndex: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "flex", msg.Type())
	assert.Equal(t, "ようこそ", msg["altText"])

	raw := string(msg.JSON())
	assert.NotContains(t, raw, "{TITLE}")
	assert.Contains(t, raw, "https://example.com/a.png")

	action := msg.Contents()["footer"].(map[string]any)["contents"].([]any)[0].(map[string]any)["action"].(map[string]any)
	assert.Equal(t, "回答を始める", action["label"])
	assert.Equal(t, "回答を始める", action["displayText"])
	data, err := linemsg.DecodePostback(action["data"].(string))
	require.NoError(t, err)
	assert.Equal(t, linemsg.ActionStartSurvey, data.Action)
	assert.Equal(t, 1, data.OrderIndex)
}

func TestContentDropsHeroWithoutHTTPImage(t *testing.T) {
	cases := []struct {
		name     string
		image    string
		wantHero bool
	}{
		{name: "empty", image: "", wantHero: false},
		{name: "relative", image: "/img/a.png", wantHero: false},
		{name: "https", image: "https://cdn.example.com/a.png", wantHero: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := New().Content(nil, Content{Title: "t", ImageURL: tc.image})
			require.NoError(t, err)
			_, ok := msg.Contents()["hero"]
			assert.Equal(t, tc.wantHero, ok)
		})
	}
}

func TestCardsBuildsCarousel(t *testing.T) {
	r := New()
	msg, err := r.Cards(nil, []Card{{Title: "A"}, {Title: "B", ImageURL: "https://x/y.png"}}, Content{
		PrimaryData: linemsg.PostbackData{Action: linemsg.ActionCompleteFlow},
	})
	require.NoError(t, err)
	contents := msg.Contents()
	assert.Equal(t, "carousel", contents["type"])
	assert.Len(t, contents["contents"], 2)
	assert.Equal(t, "A", msg["altText"])

	single, err := r.Cards(nil, []Card{{Title: "Only"}}, Content{})
	require.NoError(t, err)
	assert.Equal(t, "bubble", single.Contents()["type"])
}

func TestMultiChoiceCapsAtTwelve(t *testing.T) {
	q := &types.SurveyQuestion{Title: "Q1", Text: "学年を教えてください", OrderIndex: 1}
	choices := make([]Choice, 0, 15)
	for i := 0; i < 15; i++ {
		choices = append(choices, Choice{
			Label: strings.Repeat("x", i+1),
			Data:  linemsg.PostbackData{Action: linemsg.ActionAnswer, OptionValue: "v"},
		})
	}
	tpl := storedTemplate(t, TemplateMultiChoice, MultiChoiceLayout())

	msg, err := New().MultiChoice(q, tpl, choices)
	require.NoError(t, err)
	body := msg.Contents()["body"].(map[string]any)
	buttons := body["contents"].([]any)[3].(map[string]any)["contents"].([]any)
	assert.Len(t, buttons, MaxChoices)
	assert.Equal(t, "学年を教えてください", msg["altText"])
	assert.NotContains(t, string(msg.JSON()), "{OPTION")
}

func TestMultiChoiceTrimsUnusedButtons(t *testing.T) {
	q := &types.SurveyQuestion{Title: "Q", Text: "T"}
	msg, err := New().MultiChoice(q, nil, []Choice{{Label: "one"}, {Label: "two"}})
	require.NoError(t, err)
	body := msg.Contents()["body"].(map[string]any)
	buttons := body["contents"].([]any)[3].(map[string]any)["contents"].([]any)
	assert.Len(t, buttons, 2)
}

func TestMultiChoiceRejectsEmpty(t *testing.T) {
	_, err := New().MultiChoice(&types.SurveyQuestion{}, nil, nil)
	assert.Error(t, err)
}

func TestYesNoAndFreeText(t *testing.T) {
	q := &types.SurveyQuestion{Title: "Q7", Text: "配信を受け取りますか？", OrderIndex: 7}
	yes := Choice{Label: "はい", Data: linemsg.PostbackData{Action: linemsg.ActionAnswer, OptionValue: "yes"}}
	no := Choice{Label: "いいえ", Data: linemsg.PostbackData{Action: linemsg.ActionAnswer, OptionValue: "no"}}

	msg, err := New().YesNo(q, nil, yes, no)
	require.NoError(t, err)
	raw := string(msg.JSON())
	assert.Contains(t, raw, "はい")
	assert.Contains(t, raw, `\"optionValue\":\"no\"`)
	assert.NotContains(t, raw, "{YES_")

	ft, err := New().FreeText(q, nil, Choice{Label: "入力を開始する", Data: linemsg.PostbackData{Action: linemsg.ActionStartFreeText}})
	require.NoError(t, err)
	assert.Contains(t, string(ft.JSON()), "start_free_text")
}

func TestStoredTemplateIsNotMutated(t *testing.T) {
	tpl := storedTemplate(t, TemplateContent, ContentLayout())
	before := string(tpl.LayoutJSON)
	_, err := New().Content(tpl, Content{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, before, string(tpl.LayoutJSON))
}

func TestReplacePlaceholdersIsSinglePass(t *testing.T) {
	node := map[string]any{
		"title": "{TITLE}",
		"body":  []any{"{BODY_TEXT}", 3},
	}
	repl := map[string]string{
		"{TITLE}":     "見出し",
		"{BODY_TEXT}": "literal {TITLE} stays",
		"{IMAGE_URL}": "{BODY_TEXT}",
	}
	for i := 0; i < 50; i++ {
		out := replacePlaceholders(node, repl).(map[string]any)
		assert.Equal(t, "見出し", out["title"])
		assert.Equal(t, []any{"literal {TITLE} stays", 3}, out["body"])
	}
	assert.Equal(t, "{TITLE}", node["title"], "input is not mutated")
}
