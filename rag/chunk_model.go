package rag

import (
	"context"
	"fmt"

	"github.com/SaiNageswarS/go-api-boot/odm"
	"github.com/SaiNageswarS/go-collection-boot/async"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ChunkModel is one pre-embedded passage of the expert corpus. The chunking
// and embedding job writes these; this service only reads them.
type ChunkModel struct {
	ChunkID   string    `bson:"_id"`
	Source    string    `bson:"source"`
	Title     string    `bson:"title,omitempty"`
	Body      string    `bson:"body"`
	Embedding []float32 `bson:"embedding"`
}

func (m ChunkModel) Id() string {
	return m.ChunkID
}

func (m ChunkModel) CollectionName() string {
	return "rag_chunks"
}

// LoadCorpus reads every embedded chunk into memory.
func LoadCorpus(ctx context.Context, mongo *mongo.Client, database string) ([]Document, error) {
	filter := bson.M{"embedding": bson.M{"$exists": true}}

	chunkModels, err := async.Await(odm.CollectionOf[ChunkModel](mongo, database).Find(ctx, filter, nil, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to load expert corpus: %w", err)
	}

	docs := make([]Document, 0, len(chunkModels))
	for _, chunk := range chunkModels {
		docs = append(docs, Document{
			ID:        chunk.ChunkID,
			Source:    chunk.Source,
			Content:   chunk.Body,
			Embedding: chunk.Embedding,
		})
	}
	return docs, nil
}
