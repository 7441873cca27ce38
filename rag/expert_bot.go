package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SaiNageswarS/go-collection-boot/linq"
	"github.com/ollama/ollama/api"
	"github.com/piakoller/theranosticsChatbot/llm"
	"github.com/piakoller/theranosticsChatbot/prompts"
)

// Answer is the expert reply together with the passages it was grounded on.
type Answer struct {
	Text    string     `json:"text"`
	Sources []Document `json:"sources"`
	Model   string     `json:"model"`
}

type ExpertConfig struct {
	Model           string
	Temperature     float64
	TopP            float64
	MaxTokens       int
	TopK            int
	MaxMemoryLength int
	Language        string
}

// DefaultExpertConfig mirrors the settings the expert chatbot was evaluated with.
func DefaultExpertConfig() ExpertConfig {
	return ExpertConfig{
		Model:           "gemma3",
		Temperature:     0.7,
		TopP:            0.9,
		MaxTokens:       512,
		TopK:            DefaultTopK,
		MaxMemoryLength: 20,
		Language:        prompts.LanguageGerman,
	}
}

// ExpertBot answers from the retrieved corpus through a local Ollama model.
// It keeps no state between calls; the caller supplies the conversation.
type ExpertBot struct {
	client    OllamaClient
	retriever DocumentRetriever
	cfg       ExpertConfig
}

func NewExpertBot(client OllamaClient, retriever DocumentRetriever, cfg ExpertConfig) *ExpertBot {
	return &ExpertBot{client: client, retriever: retriever, cfg: cfg}
}

// Model is the Ollama model answers are generated with.
func (b *ExpertBot) Model() string {
	return b.cfg.Model
}

func (b *ExpertBot) RetrieveAndAnswer(ctx context.Context, question, language string, history []llm.Message) (Answer, error) {
	docs, err := b.retriever.Retrieve(ctx, question, b.cfg.TopK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieval failed: %w", err)
	}

	if language == "" {
		language = b.cfg.Language
	}
	history = lastN(history, b.cfg.MaxMemoryLength)

	contextDocs, err := linq.Pipe2(
		linq.FromSlice(ctx, docs),
		linq.Select(func(d Document) prompts.ContextDocument {
			return prompts.ContextDocument{Source: d.Source, Content: d.Content}
		}),
		linq.ToSlice[prompts.ContextDocument](),
	)
	if err != nil {
		return Answer{}, err
	}

	historyLines, err := linq.Pipe2(
		linq.FromSlice(ctx, history),
		linq.Select(func(m llm.Message) prompts.HistoryLine {
			return prompts.HistoryLine{Role: m.Role, Content: m.Content}
		}),
		linq.ToSlice[prompts.HistoryLine](),
	)
	if err != nil {
		return Answer{}, err
	}

	prompt, err := prompts.RenderExpertPrompt(language, question, contextDocs, historyLines)
	if err != nil {
		return Answer{}, err
	}

	stream := false
	req := &api.ChatRequest{
		Model:    b.cfg.Model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Stream:   &stream,
		Options: map[string]any{
			"temperature": b.cfg.Temperature,
			"top_p":       b.cfg.TopP,
			"num_predict": b.cfg.MaxTokens,
		},
	}

	var sb strings.Builder
	err = b.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return Answer{}, fmt.Errorf("expert model call failed: %w", err)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Answer{}, errors.New("expert model returned an empty answer")
	}

	return Answer{Text: text, Sources: docs, Model: b.cfg.Model}, nil
}

func lastN(msgs []llm.Message, n int) []llm.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
