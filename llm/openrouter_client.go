package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	DefaultTimeout       = 30 * time.Second
)

// OpenRouterClient talks to an OpenAI-compatible chat completions gateway.
type OpenRouterClient struct {
	apiKey     string
	httpClient *http.Client
	url        string
	referer    string
	title      string
	params     GenerationParams
}

type ClientOption func(*OpenRouterClient)

// WithURL points the client at another chat completions endpoint.
func WithURL(url string) ClientOption {
	return func(c *OpenRouterClient) { c.url = url }
}

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter
// uses to attribute traffic.
func WithAttribution(referer, title string) ClientOption {
	return func(c *OpenRouterClient) {
		c.referer = referer
		c.title = title
	}
}

// WithHTTPClient replaces the default http.Client, e.g. to share a transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *OpenRouterClient) { c.httpClient = hc }
}

// WithDefaultParams sets the parameters used when a call passes none.
func WithDefaultParams(p GenerationParams) ClientOption {
	return func(c *OpenRouterClient) { c.params = p }
}

// NewOpenRouterClient returns nil when apiKey is empty so callers can switch
// to canned responses instead of failing at startup.
func NewOpenRouterClient(apiKey string, opts ...ClientOption) *OpenRouterClient {
	if apiKey == "" {
		return nil
	}

	c := &OpenRouterClient{
		apiKey:     apiKey,
		httpClient: &http.Client{},
		url:        DefaultOpenRouterURL,
		referer:    "https://openrouter.ai/",
		title:      "Theranostics Chatbot",
		params:     DefaultGenerationParams(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete posts one chat completion and classifies the response.
func (c *OpenRouterClient) Complete(ctx context.Context, model string, messages []Message, opts ...LLMOption) Outcome {
	settings := LLMSettings{
		params:  c.params,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	request := chatRequest{
		Model:            model,
		Messages:         messages,
		Temperature:      settings.params.Temperature,
		MaxTokens:        settings.params.MaxTokens,
		TopP:             settings.params.TopP,
		FrequencyPenalty: settings.params.FrequencyPenalty,
		PresencePenalty:  settings.params.PresencePenalty,
	}

	ctx, cancel := context.WithTimeout(ctx, settings.timeout)
	defer cancel()

	status, body, err := c.makeRequest(ctx, request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Retry(0, "timeout")
		}
		return Retry(0, err.Error())
	}

	if status != http.StatusOK {
		decision, reason := Classify(status, body)
		if decision == DecisionRetry {
			return Retry(status, reason)
		}
		return Terminal(status, reason)
	}

	text, ok := ExtractText(body)
	if !ok {
		return Retry(status, "unrecognized response format")
	}
	return Success(text)
}

func (c *OpenRouterClient) makeRequest(ctx context.Context, request chatRequest) (int, []byte, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return 0, nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("error reading response: %w", err)
	}

	return resp.StatusCode, body, nil
}

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	TopP             float64   `json:"top_p,omitempty"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
}
