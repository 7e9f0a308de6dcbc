package linemsg

import "encoding/json"

// Message is one LINE Messaging API message object. It is kept as a generic
// map because Flex contents come from stored template JSON.
type Message map[string]any

func Text(text string) Message {
	return Message{"type": "text", "text": text}
}

func Flex(altText string, contents map[string]any) Message {
	if altText == "" {
		altText = "メッセージ"
	}
	return Message{"type": "flex", "altText": altText, "contents": contents}
}

func (m Message) Type() string {
	t, _ := m["type"].(string)
	return t
}

// Contents returns the flex container, or nil for non-flex messages.
func (m Message) Contents() map[string]any {
	c, _ := m["contents"].(map[string]any)
	return c
}

func (m Message) JSON() []byte {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}
