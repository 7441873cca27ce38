package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/piakoller/theranosticsChatbot/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOllama struct {
	embedding []float64
	embedErr  error
	reply     []string
	chatErr   error
	lastChat  *api.ChatRequest
}

func (f *fakeOllama) Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	f.lastChat = req
	if f.chatErr != nil {
		return f.chatErr
	}
	for _, part := range f.reply {
		if err := fn(api.ChatResponse{Message: api.Message{Role: "assistant", Content: part}}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeOllama) Embeddings(ctx context.Context, req *api.EmbeddingRequest) (*api.EmbeddingResponse, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return &api.EmbeddingResponse{Embedding: f.embedding}, nil
}

var corpus = []Document{
	{ID: "a", Source: "psma.pdf", Content: "PSMA therapy", Embedding: []float32{1, 0, 0}},
	{ID: "b", Source: "dotatate.pdf", Content: "DOTATATE therapy", Embedding: []float32{0, 1, 0}},
	{ID: "c", Source: "mixed.pdf", Content: "Both", Embedding: []float32{0.7, 0.7, 0}},
	{ID: "d", Source: "broken.pdf", Content: "No vector"},
}

func TestEmbeddingRetriever_Retrieve(t *testing.T) {
	client := &fakeOllama{embedding: []float64{1, 0.1, 0}}
	retriever := NewEmbeddingRetriever(client, "embeddinggemma", corpus)

	docs, err := retriever.Retrieve(context.Background(), "psma", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)
	assert.Greater(t, docs[0].Score, docs[1].Score)
}

func TestEmbeddingRetriever_NonPositiveK(t *testing.T) {
	client := &fakeOllama{embedding: []float64{1, 0.1, 0}}
	retriever := NewEmbeddingRetriever(client, "embeddinggemma", corpus)
	assert.Equal(t, len(corpus), retriever.Size())

	for _, k := range []int{0, -3} {
		docs, err := retriever.Retrieve(context.Background(), "psma", k)
		require.NoError(t, err)
		assert.Len(t, docs, min(DefaultTopK, len(corpus)))
		assert.Equal(t, "a", docs[0].ID)
	}
}

func TestEmbeddingRetriever_Errors(t *testing.T) {
	t.Run("empty corpus", func(t *testing.T) {
		retriever := NewEmbeddingRetriever(&fakeOllama{}, "m", nil)
		_, err := retriever.Retrieve(context.Background(), "q", 3)
		assert.ErrorIs(t, err, ErrEmptyCorpus)
	})

	t.Run("embedding failure", func(t *testing.T) {
		retriever := NewEmbeddingRetriever(&fakeOllama{embedErr: errors.New("ollama down")}, "m", corpus)
		_, err := retriever.Retrieve(context.Background(), "q", 3)
		assert.Error(t, err)
	})
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 2}))
}

func TestExpertBot_RetrieveAndAnswer(t *testing.T) {
	client := &fakeOllama{embedding: []float64{1, 0, 0}, reply: []string{"Die PSMA-Therapie ", "dauert etwa 6 Wochen."}}
	bot := NewExpertBot(client, NewEmbeddingRetriever(client, "embeddinggemma", corpus), DefaultExpertConfig())

	history := make([]llm.Message, 0, 30)
	for i := 0; i < 30; i++ {
		history = append(history, llm.Message{Role: "user", Content: "old question"})
	}
	history[29].Content = "most recent question"

	answer, err := bot.RetrieveAndAnswer(context.Background(), "Wie lange dauert die Therapie?", "", history)
	require.NoError(t, err)

	assert.Equal(t, "Die PSMA-Therapie dauert etwa 6 Wochen.", answer.Text)
	assert.Equal(t, "gemma3", answer.Model)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "a", answer.Sources[0].ID)

	require.NotNil(t, client.lastChat)
	prompt := client.lastChat.Messages[0].Content
	assert.Contains(t, prompt, "PSMA therapy")
	assert.Contains(t, prompt, "most recent question")
	assert.Less(t, strings.Index(prompt, "PSMA therapy"), strings.Index(prompt, "Both"))
	assert.Equal(t, "gemma3", bot.Model())
	assert.Equal(t, 20, strings.Count(prompt, "user: "))
	assert.Equal(t, 0.7, client.lastChat.Options["temperature"])
	assert.False(t, *client.lastChat.Stream)
}

func TestExpertBot_Failures(t *testing.T) {
	t.Run("chat error", func(t *testing.T) {
		client := &fakeOllama{embedding: []float64{1, 0, 0}, chatErr: errors.New("model not found")}
		bot := NewExpertBot(client, NewEmbeddingRetriever(client, "e", corpus), DefaultExpertConfig())
		_, err := bot.RetrieveAndAnswer(context.Background(), "q", "en", nil)
		assert.Error(t, err)
	})

	t.Run("empty answer", func(t *testing.T) {
		client := &fakeOllama{embedding: []float64{1, 0, 0}, reply: []string{"  "}}
		bot := NewExpertBot(client, NewEmbeddingRetriever(client, "e", corpus), DefaultExpertConfig())
		_, err := bot.RetrieveAndAnswer(context.Background(), "q", "en", nil)
		assert.Error(t, err)
	})
}
