package render

import "fmt"

// Built-in layouts used when a node or question has no stored template. They
// use the same placeholders as stored templates.

const (
	TemplateContent     = "content_basic"
	TemplateMultiChoice = "survey_multi_choice_12"
	TemplateYesNo       = "survey_yes_no"
	TemplateFreeText    = "survey_free_text_with_postback"
)

func text(s string, extra map[string]any) map[string]any {
	m := map[string]any{"type": "text", "text": s, "wrap": true}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func postbackButton(label, data, display string, style string) map[string]any {
	return map[string]any{
		"type":   "button",
		"style":  style,
		"height": "sm",
		"action": map[string]any{
			"type":        "postback",
			"label":       label,
			"data":        data,
			"displayText": display,
		},
	}
}

func ContentLayout() map[string]any {
	return map[string]any{
		"type": "bubble",
		"hero": map[string]any{
			"type":        "image",
			"url":         "{IMAGE_URL}",
			"size":        "full",
			"aspectRatio": "20:13",
			"aspectMode":  "cover",
		},
		"body": map[string]any{
			"type":   "box",
			"layout": "vertical",
			"contents": []any{
				text("{TITLE}", map[string]any{"weight": "bold", "size": "lg"}),
				text("{BODY_TEXT}", map[string]any{"size": "sm", "margin": "md"}),
			},
		},
		"footer": map[string]any{
			"type":   "box",
			"layout": "vertical",
			"contents": []any{
				postbackButton("{PRIMARY_LABEL}", "{PRIMARY_DATA}", "{PRIMARY_DISPLAY}", "primary"),
			},
		},
	}
}

func questionHeader() []any {
	return []any{
		text("{QUESTION_TITLE}", map[string]any{"weight": "bold", "size": "md"}),
		map[string]any{"type": "separator", "margin": "md"},
		text("{QUESTION_TEXT}", map[string]any{"size": "sm", "margin": "md"}),
	}
}

// MultiChoiceLayout keeps the twelve option buttons at body.contents[3].
func MultiChoiceLayout() map[string]any {
	buttons := make([]any, 0, MaxChoices)
	for i := 1; i <= MaxChoices; i++ {
		buttons = append(buttons, postbackButton(
			fmt.Sprintf("{OPTION%d_LABEL}", i),
			fmt.Sprintf("{OPTION%d_DATA}", i),
			fmt.Sprintf("{OPTION%d_DISPLAY}", i),
			"secondary",
		))
	}
	contents := append(questionHeader(), map[string]any{
		"type":     "box",
		"layout":   "vertical",
		"spacing":  "sm",
		"margin":   "lg",
		"contents": buttons,
	})
	return map[string]any{
		"type": "bubble",
		"body": map[string]any{"type": "box", "layout": "vertical", "contents": contents},
	}
}

func YesNoLayout() map[string]any {
	contents := append(questionHeader(), map[string]any{
		"type":    "box",
		"layout":  "horizontal",
		"spacing": "sm",
		"margin":  "lg",
		"contents": []any{
			postbackButton("{YES_LABEL}", "{YES_DATA}", "{YES_DISPLAY}", "primary"),
			postbackButton("{NO_LABEL}", "{NO_DATA}", "{NO_DISPLAY}", "secondary"),
		},
	})
	return map[string]any{
		"type": "bubble",
		"body": map[string]any{"type": "box", "layout": "vertical", "contents": contents},
	}
}

func FreeTextLayout() map[string]any {
	contents := append(questionHeader(), map[string]any{
		"type":   "box",
		"layout": "vertical",
		"margin": "lg",
		"contents": []any{
			postbackButton("{START_LABEL}", "{START_DATA}", "{START_DISPLAY}", "primary"),
		},
	})
	return map[string]any{
		"type": "bubble",
		"body": map[string]any{"type": "box", "layout": "vertical", "contents": contents},
	}
}
