package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		text    string
		matched bool
	}{
		{"openai shape", `{"choices":[{"message":{"role":"assistant","content":"  Hello  "}}]}`, "Hello", true},
		{"openai shape empty content", `{"choices":[{"message":{"content":""}}]}`, "", true},
		{"message shape", `{"message":{"content":"From message"}}`, "From message", true},
		{"response shape", `{"response":"From response"}`, "From response", true},
		{"text shape", `{"text":"From text"}`, "From text", true},
		{"choices wins over text", `{"choices":[{"message":{"content":"first"}}],"text":"second"}`, "first", true},
		{"empty choices falls through", `{"choices":[],"response":"fallback"}`, "fallback", true},
		{"null content", `{"choices":[{"message":{"content":null}}]}`, "", false},
		{"unknown shape", `{"output":"nope"}`, "", false},
		{"not json", `<html></html>`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, ok := ExtractText([]byte(tt.body))
			assert.Equal(t, tt.matched, ok)
			assert.Equal(t, tt.text, text)
		})
	}
}
