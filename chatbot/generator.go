package chatbot

import (
	"context"
	"math/rand/v2"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/piakoller/theranosticsChatbot/llm"
	"github.com/piakoller/theranosticsChatbot/memory"
	"github.com/piakoller/theranosticsChatbot/prompts"
	"github.com/piakoller/theranosticsChatbot/rag"
	"go.uber.org/zap"
)

type Variant string

const (
	VariantBasic  Variant = prompts.VariantBasic
	VariantExpert Variant = prompts.VariantExpert
)

// ModelUsed value recorded for canned responses.
const ModelFallback = "fallback"

type Status string

const (
	StatusOK        Status = "ok"
	StatusSwitched  Status = "switched"
	StatusTerminal  Status = "terminal"
	StatusExhausted Status = "exhausted"
	StatusCanned    Status = "canned"
	StatusExpert    Status = "expert"
)

type Request struct {
	ParticipantID string
	Message       string
	History       []llm.Message
	Language      string
	Variant       Variant
	ContextTag    string
	SectionTag    string
	Metadata      map[string]any
}

type Reply struct {
	Text      string `json:"response"`
	ModelUsed string `json:"modelUsed"`
	Status    Status `json:"status"`
}

// ExchangeLogger persists one exchange; *memory.ConversationStore satisfies it.
type ExchangeLogger interface {
	Append(ctx context.Context, participantID string, exchange memory.Exchange) bool
}

// ExpertAnswerer is the retrieval-backed variant; *rag.ExpertBot satisfies it.
type ExpertAnswerer interface {
	RetrieveAndAnswer(ctx context.Context, question, language string, history []llm.Message) (rag.Answer, error)
}

type ResponseGenerator struct {
	client          llm.ChatClient
	registry        *llm.ModelRegistry
	store           ExchangeLogger
	expert          ExpertAnswerer
	expandShort     bool
	windowSize      int
	defaultLanguage string
	pick            func(n int) int
}

type Option func(*ResponseGenerator)

func WithExpert(expert ExpertAnswerer) Option {
	return func(g *ResponseGenerator) { g.expert = expert }
}

func WithShortQuestionExpansion(enabled bool) Option {
	return func(g *ResponseGenerator) { g.expandShort = enabled }
}

// WithWindowSize sets how many prior messages are sent with each request.
func WithWindowSize(n int) Option {
	return func(g *ResponseGenerator) { g.windowSize = n }
}

func WithDefaultLanguage(lang string) Option {
	return func(g *ResponseGenerator) { g.defaultLanguage = lang }
}

// NewResponseGenerator runs in canned mode when client is nil.
func NewResponseGenerator(client llm.ChatClient, registry *llm.ModelRegistry, store ExchangeLogger, opts ...Option) *ResponseGenerator {
	g := &ResponseGenerator{
		client:          client,
		registry:        registry,
		store:           store,
		expandShort:     true,
		windowSize:      memory.DefaultWindowSize,
		defaultLanguage: prompts.LanguageGerman,
		pick:            rand.IntN,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *ResponseGenerator) CannedMode() bool {
	return g.client == nil
}

func (g *ResponseGenerator) ExpertAvailable() bool {
	return g.expert != nil
}

// Generate always returns text for the participant. Failures are reported
// in-band and every reply is logged to the conversation store.
func (g *ResponseGenerator) Generate(ctx context.Context, req Request) string {
	return g.Respond(ctx, req).Text
}

func (g *ResponseGenerator) Respond(ctx context.Context, req Request) Reply {
	if req.Language == "" {
		req.Language = g.defaultLanguage
	}
	if req.Variant == "" {
		req.Variant = VariantBasic
	}

	reply := g.respond(ctx, req)
	g.record(ctx, req, reply)
	return reply
}

func (g *ResponseGenerator) respond(ctx context.Context, req Request) Reply {
	if req.Variant == VariantExpert && g.expert != nil {
		answer, err := g.expert.RetrieveAndAnswer(ctx, req.Message, req.Language, req.History)
		if err == nil {
			return Reply{Text: answer.Text, ModelUsed: answer.Model, Status: StatusExpert}
		}
		logger.Error("Expert chatbot failed, using basic pipeline",
			zap.String("participantId", req.ParticipantID),
			zap.Error(err))
	}

	if g.CannedMode() {
		return g.canned(req.Language)
	}

	return g.complete(ctx, req)
}

func (g *ResponseGenerator) complete(ctx context.Context, req Request) Reply {
	messages, err := g.buildMessages(req)
	if err != nil {
		logger.Error("Failed to build prompt", zap.Error(err))
		return Reply{Text: TerminalMessage, Status: StatusTerminal}
	}

	candidates := g.registry.Candidates()
	params := g.registry.Params()
	firstFailed := false
	lastModel := ""

	for i, model := range candidates {
		lastModel = model
		outcome := g.client.Complete(ctx, model, messages, llm.WithParams(params))

		switch outcome.Kind {
		case llm.OutcomeSuccess:
			text := outcome.Text
			if text == "" {
				text = EmptyResponseMessage
			}
			if i == 0 {
				return Reply{Text: text, ModelUsed: model, Status: StatusOK}
			}

			g.registry.SetActive(model)
			logger.Info("Switched to backup model",
				zap.String("model", model),
				zap.String("previous", candidates[0]))
			return Reply{Text: switchNotice(model) + text, ModelUsed: model, Status: StatusSwitched}

		case llm.OutcomeTerminal:
			logger.Error("Model returned non-retryable error",
				zap.String("model", model),
				zap.Int("status", outcome.Status),
				zap.String("reason", outcome.Reason))
			return Reply{Text: TerminalMessage, ModelUsed: model, Status: StatusTerminal}

		default:
			logger.Error("Model failed, trying next candidate",
				zap.String("model", model),
				zap.Int("status", outcome.Status),
				zap.String("reason", outcome.Reason))
			if i == 0 && len(candidates) > 1 {
				firstFailed = true
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	logger.Error("All models failed",
		zap.Strings("candidates", candidates),
		zap.Bool("firstModelFailed", firstFailed))

	if firstFailed {
		return Reply{Text: DegradedMessage, ModelUsed: lastModel, Status: StatusExhausted}
	}
	return Reply{Text: ExhaustedMessage, ModelUsed: lastModel, Status: StatusExhausted}
}

// buildMessages assembles system prompt, bounded history and the
// (possibly expanded) user message.
func (g *ResponseGenerator) buildMessages(req Request) ([]llm.Message, error) {
	system, err := prompts.RenderSystemPrompt(req.Language, string(req.Variant))
	if err != nil {
		return nil, err
	}

	history := memory.TrimWindow(req.History, g.windowSize)

	userMessage := req.Message
	if g.expandShort {
		userMessage = expandShortQuestion(userMessage)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return messages, nil
}

func (g *ResponseGenerator) canned(lang string) Reply {
	if lang == prompts.LanguageEnglish {
		return Reply{Text: cannedEnglish[g.pick(len(cannedEnglish))], ModelUsed: ModelFallback, Status: StatusCanned}
	}
	return Reply{Text: cannedGerman, ModelUsed: ModelFallback, Status: StatusCanned}
}

func (g *ResponseGenerator) record(ctx context.Context, req Request, reply Reply) {
	if g.store == nil {
		return
	}

	metadata := map[string]any{"lang": req.Language, "status": string(reply.Status)}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	ok := g.store.Append(ctx, req.ParticipantID, memory.Exchange{
		UserMessage: req.Message,
		BotResponse: reply.Text,
		ModelUsed:   reply.ModelUsed,
		Context:     req.ContextTag,
		Section:     req.SectionTag,
		ChatbotType: string(req.Variant),
		Metadata:    metadata,
	})
	if !ok {
		logger.Info("Exchange not persisted", zap.String("participantId", req.ParticipantID))
	}
}
