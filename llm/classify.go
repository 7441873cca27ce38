package llm

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

type Decision uint8

const (
	DecisionRetry Decision = iota
	DecisionTerminal
)

func (d Decision) String() string {
	if d == DecisionRetry {
		return "retry"
	}
	return "terminal"
}

// Provider-side failures that another model can plausibly avoid.
var retryableMessages = []string{
	"rate-limited",
	"no instances available",
	"provider returned error",
}

type providerError struct {
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Classify decides whether a failed provider call should move on to the
// next candidate (retry) or stop the whole chain (terminal). The rules are
// checked in order; the second return value is a short reason for logs.
func Classify(status int, body []byte) (Decision, string) {
	switch {
	case status == http.StatusTooManyRequests:
		return DecisionRetry, "rate limited"
	case status == http.StatusServiceUnavailable:
		return DecisionRetry, "service unavailable"
	case status >= 500:
		return DecisionRetry, "server error"
	}

	message, ok := parseErrorMessage(body)
	if !ok {
		return DecisionRetry, "unparseable error body"
	}

	lower := strings.ToLower(message)
	for _, m := range retryableMessages {
		if strings.Contains(lower, m) {
			return DecisionRetry, m
		}
	}

	if message == "" {
		return DecisionTerminal, "client error"
	}
	return DecisionTerminal, message
}

// parseErrorMessage reports false when the body is not a structured
// provider error. An empty body is a valid error without a message.
func parseErrorMessage(body []byte) (string, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", true
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", false
	}

	errField, present := raw["error"]
	if !present || string(errField) == "null" {
		return "", true
	}

	var parsed providerError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false
	}
	return parsed.Error.Message, true
}
