// Package render fills Flex bubble layouts with node content and survey
// question data.
package render

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	types "github.com/yungbote/lineflow-backend/internal/domain"
	"github.com/yungbote/lineflow-backend/internal/pkg/linemsg"
)

// MaxChoices is the platform limit on buttons in one choice bubble.
const MaxChoices = 12

const (
	defaultContentLabel = "確認"
	defaultCardTitle    = "お知らせ"
	defaultAltText      = "メッセージ"
	defaultQuestionAlt  = "アンケート"
)

// Content is what a node bubble shows plus its single primary action.
type Content struct {
	Title          string
	Body           string
	ImageURL       string
	PrimaryLabel   string
	PrimaryDisplay string
	PrimaryData    linemsg.PostbackData
	AltText        string
}

type Card struct {
	Title    string
	Body     string
	ImageURL string
}

// Choice is one postback button.
type Choice struct {
	Label   string
	Display string
	Data    linemsg.PostbackData
}

func (c Choice) display() string {
	if c.Display != "" {
		return c.Display
	}
	return c.Label
}

type Renderer struct{}

func New() *Renderer { return &Renderer{} }

// Content renders a single node bubble.
func (r *Renderer) Content(tpl *types.FlexTemplate, c Content) (linemsg.Message, error) {
	bubble, err := r.contentBubble(tpl, c)
	if err != nil {
		return nil, err
	}
	alt := firstNonEmpty(c.AltText, c.Title, defaultAltText)
	return linemsg.Flex(alt, bubble), nil
}

// Cards renders one bubble per card sharing tpl; more than one card becomes a
// carousel. With no cards it falls back to Content.
func (r *Renderer) Cards(tpl *types.FlexTemplate, cards []Card, c Content) (linemsg.Message, error) {
	if len(cards) == 0 {
		return r.Content(tpl, c)
	}
	bubbles := make([]any, 0, len(cards))
	for _, card := range cards {
		cc := c
		cc.Title = firstNonEmpty(card.Title, defaultCardTitle)
		cc.Body = card.Body
		cc.ImageURL = card.ImageURL
		b, err := r.contentBubble(tpl, cc)
		if err != nil {
			return nil, err
		}
		bubbles = append(bubbles, b)
	}
	alt := firstNonEmpty(c.AltText, cards[0].Title, defaultAltText)
	if len(bubbles) == 1 {
		return linemsg.Flex(alt, bubbles[0].(map[string]any)), nil
	}
	return linemsg.Flex(alt, map[string]any{
		"type":     "carousel",
		"contents": bubbles,
	}), nil
}

func (r *Renderer) contentBubble(tpl *types.FlexTemplate, c Content) (map[string]any, error) {
	bubble, err := layoutOf(tpl, ContentLayout)
	if err != nil {
		return nil, err
	}
	image := safeImageURL(c.ImageURL)
	if image == "" {
		delete(bubble, "hero")
	}
	label := firstNonEmpty(c.PrimaryLabel, defaultContentLabel)
	filled := replacePlaceholders(bubble, map[string]string{
		"{TITLE}":           c.Title,
		"{BODY_TEXT}":       c.Body,
		"{PRIMARY_LABEL}":   label,
		"{PRIMARY_DATA}":    c.PrimaryData.Encode(),
		"{PRIMARY_DISPLAY}": firstNonEmpty(c.PrimaryDisplay, label),
		"{IMAGE_URL}":       image,
	})
	return filled.(map[string]any), nil
}

// MultiChoice renders at most MaxChoices buttons. Template buttons beyond the
// number of choices are dropped.
func (r *Renderer) MultiChoice(q *types.SurveyQuestion, tpl *types.FlexTemplate, choices []Choice) (linemsg.Message, error) {
	if q == nil {
		return nil, fmt.Errorf("render multi choice: nil question")
	}
	if len(choices) == 0 {
		return nil, fmt.Errorf("render multi choice: no choices")
	}
	layout, err := layoutOf(tpl, MultiChoiceLayout)
	if err != nil {
		return nil, err
	}
	bubble := replacePlaceholders(layout, questionReplacements(q)).(map[string]any)

	box := findChoiceBox(bubble)
	if box == nil {
		return nil, fmt.Errorf("render multi choice: template %s has no option buttons", templateName(tpl))
	}
	buttons, _ := box["contents"].([]any)
	if len(choices) > MaxChoices {
		choices = choices[:MaxChoices]
	}
	filled := make([]any, 0, len(choices))
	for i, ch := range choices {
		var tmpl any
		if i < len(buttons) {
			tmpl = buttons[i]
		} else {
			tmpl = postbackButton(
				fmt.Sprintf("{OPTION%d_LABEL}", i+1),
				fmt.Sprintf("{OPTION%d_DATA}", i+1),
				fmt.Sprintf("{OPTION%d_DISPLAY}", i+1),
				"secondary",
			)
		}
		n := i + 1
		filled = append(filled, replacePlaceholders(tmpl, map[string]string{
			fmt.Sprintf("{OPTION%d_LABEL}", n):   ch.Label,
			fmt.Sprintf("{OPTION%d_DISPLAY}", n): ch.display(),
			fmt.Sprintf("{OPTION%d_DATA}", n):    ch.Data.Encode(),
		}))
	}
	box["contents"] = filled
	return linemsg.Flex(firstNonEmpty(q.Text, defaultQuestionAlt), bubble), nil
}

func (r *Renderer) YesNo(q *types.SurveyQuestion, tpl *types.FlexTemplate, yes, no Choice) (linemsg.Message, error) {
	if q == nil {
		return nil, fmt.Errorf("render yes/no: nil question")
	}
	layout, err := layoutOf(tpl, YesNoLayout)
	if err != nil {
		return nil, err
	}
	repl := questionReplacements(q)
	repl["{YES_LABEL}"] = yes.Label
	repl["{YES_DISPLAY}"] = yes.display()
	repl["{YES_DATA}"] = yes.Data.Encode()
	repl["{NO_LABEL}"] = no.Label
	repl["{NO_DISPLAY}"] = no.display()
	repl["{NO_DATA}"] = no.Data.Encode()
	bubble := replacePlaceholders(layout, repl).(map[string]any)
	return linemsg.Flex(firstNonEmpty(q.Text, defaultQuestionAlt), bubble), nil
}

func (r *Renderer) FreeText(q *types.SurveyQuestion, tpl *types.FlexTemplate, start Choice) (linemsg.Message, error) {
	if q == nil {
		return nil, fmt.Errorf("render free text: nil question")
	}
	layout, err := layoutOf(tpl, FreeTextLayout)
	if err != nil {
		return nil, err
	}
	repl := questionReplacements(q)
	repl["{START_LABEL}"] = start.Label
	repl["{START_DISPLAY}"] = start.display()
	repl["{START_DATA}"] = start.Data.Encode()
	bubble := replacePlaceholders(layout, repl).(map[string]any)
	return linemsg.Flex(firstNonEmpty(q.Text, defaultQuestionAlt), bubble), nil
}

func questionReplacements(q *types.SurveyQuestion) map[string]string {
	return map[string]string{
		"{QUESTION_TITLE}": q.Title,
		"{QUESTION_TEXT}":  q.Text,
	}
}

// layoutOf decodes a fresh copy of the template layout so the stored template
// is never mutated.
func layoutOf(tpl *types.FlexTemplate, fallback func() map[string]any) (map[string]any, error) {
	if tpl == nil || len(tpl.LayoutJSON) == 0 {
		return fallback(), nil
	}
	var out map[string]any
	if err := json.Unmarshal(tpl.LayoutJSON, &out); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", tpl.Name, err)
	}
	if out == nil {
		return fallback(), nil
	}
	return out, nil
}

// replacePlaceholders substitutes every token in a single pass, so a value
// that itself contains a token is left as written.
func replacePlaceholders(node any, repl map[string]string) any {
	keys := make([]string, 0, len(repl))
	for k := range repl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, repl[k])
	}
	return fillNode(node, strings.NewReplacer(pairs...))
}

func fillNode(node any, r *strings.Replacer) any {
	switch v := node.(type) {
	case string:
		if !strings.Contains(v, "{") {
			return v
		}
		return r.Replace(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = fillNode(item, r)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = fillNode(item, r)
		}
		return out
	default:
		return v
	}
}

// findChoiceBox locates the box holding the option buttons. Stored templates
// keep it at body.contents[3]; otherwise the first box whose contents mention
// {OPTION1_ is used.
func findChoiceBox(bubble map[string]any) map[string]any {
	if body, ok := bubble["body"].(map[string]any); ok {
		if contents, ok := body["contents"].([]any); ok && len(contents) > 3 {
			if box, ok := contents[3].(map[string]any); ok {
				if _, ok := box["contents"].([]any); ok {
					return box
				}
			}
		}
	}
	return searchChoiceBox(bubble)
}

func searchChoiceBox(node any) map[string]any {
	switch v := node.(type) {
	case map[string]any:
		if contents, ok := v["contents"].([]any); ok && len(contents) > 0 {
			if b, err := json.Marshal(contents[0]); err == nil && strings.Contains(string(b), "OPTION1_") {
				return v
			}
		}
		for _, child := range v {
			if found := searchChoiceBox(child); found != nil {
				return found
			}
		}
	case []any:
		for _, child := range v {
			if found := searchChoiceBox(child); found != nil {
				return found
			}
		}
	}
	return nil
}

func safeImageURL(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return ""
}

func templateName(tpl *types.FlexTemplate) string {
	if tpl == nil {
		return "(built-in)"
	}
	return tpl.Name
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
