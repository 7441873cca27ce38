package llm

import (
	"encoding/json"
	"strings"
)

// extractor pulls assistant text out of one known response shape.
type extractor struct {
	name string
	fn   func(body []byte) (string, bool)
}

// Providers behind the gateway do not agree on a response shape; these are
// tried in order and the first match wins.
var extractors = []extractor{
	{name: "choices.message.content", fn: fromChoices},
	{name: "message.content", fn: fromMessage},
	{name: "response", fn: fromStringField("response")},
	{name: "text", fn: fromStringField("text")},
}

// ExtractText returns the assistant text and whether any known shape
// matched. A matched shape with empty content returns ("", true).
func ExtractText(body []byte) (string, bool) {
	for _, e := range extractors {
		if text, ok := e.fn(body); ok {
			return strings.TrimSpace(text), true
		}
	}
	return "", false
}

func fromChoices(body []byte) (string, bool) {
	var resp struct {
		Choices []struct {
			Message *struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Choices) == 0 {
		return "", false
	}
	msg := resp.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return "", false
	}
	return *msg.Content, true
}

func fromMessage(body []byte) (string, bool) {
	var resp struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Message == nil || resp.Message.Content == nil {
		return "", false
	}
	return *resp.Message.Content, true
}

func fromStringField(field string) func([]byte) (string, bool) {
	return func(body []byte) (string, bool) {
		var resp map[string]json.RawMessage
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", false
		}
		raw, ok := resp[field]
		if !ok {
			return "", false
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", false
		}
		return text, true
	}
}
