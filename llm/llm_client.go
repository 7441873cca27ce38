package llm

import (
	"context"
	"time"
)

// ChatClient sends one chat completion to a single model. Implementations
// never return an error: every failure is folded into the Outcome.
type ChatClient interface {
	Complete(ctx context.Context, model string, messages []Message, opts ...LLMOption) Outcome
}

// OutcomeKind tells the fallback loop whether to stop, move on or give up.
type OutcomeKind uint8

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetry
	OutcomeTerminal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome is the result of one candidate attempt. Text is set on success,
// Reason on retry/terminal.
type Outcome struct {
	Kind   OutcomeKind
	Text   string
	Reason string
	Status int
}

// Success wraps the extracted reply text.
func Success(text string) Outcome { return Outcome{Kind: OutcomeSuccess, Text: text, Status: 200} }

// Retry marks a failure the next candidate model may not share.
func Retry(status int, reason string) Outcome {
	return Outcome{Kind: OutcomeRetry, Reason: reason, Status: status}
}

// Terminal marks a failure that ends the chain.
func Terminal(status int, reason string) Outcome {
	return Outcome{Kind: OutcomeTerminal, Reason: reason, Status: status}
}

// GenerationParams are shared by every candidate model.
type GenerationParams struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// DefaultGenerationParams keeps answers short and close to the prompt.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		Temperature:      0.1,
		MaxTokens:        500,
		TopP:             0.9,
		FrequencyPenalty: 0.1,
		PresencePenalty:  0.1,
	}
}

type LLMSettings struct {
	params  GenerationParams
	timeout time.Duration
}

type LLMOption func(*LLMSettings)

// WithParams replaces the client's default generation parameters.
func WithParams(p GenerationParams) LLMOption {
	return func(s *LLMSettings) { s.params = p }
}

// WithMaxTokens caps the length of the reply.
func WithMaxTokens(tokens int) LLMOption {
	return func(s *LLMSettings) { s.params.MaxTokens = tokens }
}

// WithTimeout bounds a single attempt. Defaults to 30s.
func WithTimeout(d time.Duration) LLMOption {
	return func(s *LLMSettings) { s.timeout = d }
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role" bson:"role"`       // "user", "assistant", "system"
	Content string `json:"content" bson:"content"` // the message content
}
