package rag

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"github.com/SaiNageswarS/go-collection-boot/ds"
	"github.com/ollama/ollama/api"
)

type Document struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	Score     float64   `json:"score"`
}

// DocumentRetriever returns the k passages most relevant to query, best
// first.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Document, error)
}

// OllamaClient is the subset of *api.Client used here.
type OllamaClient interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
	Embeddings(ctx context.Context, req *api.EmbeddingRequest) (*api.EmbeddingResponse, error)
}

// DefaultTopK is the number of passages returned when the caller asks for
// none.
const DefaultTopK = 4

var ErrEmptyCorpus = errors.New("expert corpus is empty")

// EmbeddingRetriever ranks an in-memory corpus by cosine similarity to the
// query embedding.
type EmbeddingRetriever struct {
	client     OllamaClient
	embedModel string
	corpus     []Document
}

func NewEmbeddingRetriever(client OllamaClient, embedModel string, corpus []Document) *EmbeddingRetriever {
	return &EmbeddingRetriever{client: client, embedModel: embedModel, corpus: corpus}
}

// Size reports the number of passages held in memory.
func (r *EmbeddingRetriever) Size() int {
	return len(r.corpus)
}

func (r *EmbeddingRetriever) Retrieve(ctx context.Context, query string, k int) ([]Document, error) {
	if len(r.corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	if k <= 0 {
		k = DefaultTopK
	}

	queryEmb, err := r.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	type scored struct {
		idx   int
		score float64
	}

	h := ds.NewMinHeap(func(a, b scored) bool { return a.score < b.score })
	for i, doc := range r.corpus {
		h.Push(scored{i, cosine(queryEmb, doc.Embedding)})
		if h.Len() > k {
			h.Pop()
		}
	}

	ranked := h.ToSortedSlice()
	slices.Reverse(ranked) // highest score first

	docs := make([]Document, 0, len(ranked))
	for _, s := range ranked {
		doc := r.corpus[s.idx]
		doc.Score = s.score
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *EmbeddingRetriever) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := r.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:     r.embedModel,
		Prompt:    text,
		KeepAlive: &api.Duration{Duration: 60 * time.Minute},
	})
	if err != nil {
		return nil, err
	}

	emb32 := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		emb32[i] = float32(v)
	}
	return emb32, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
