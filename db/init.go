package db

import (
	"context"

	"github.com/SaiNageswarS/go-collection-boot/async"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const (
	ConversationsCollection = "conversations"
	FormsCollection         = "forms"
)

// InitStudyDB prepares the indexes of both participant collections in
// parallel.
func InitStudyDB(ctx context.Context, database *mongo.Database) error {
	conversations := async.Go(func() (struct{}, error) {
		if err := EnsureParticipantIndex(ctx, database, ConversationsCollection); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, EnsureSecondaryIndexes(ctx, database, ConversationsCollection, "last_updated", "created_at")
	})

	forms := async.Go(func() (struct{}, error) {
		if err := EnsureParticipantIndex(ctx, database, FormsCollection); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, EnsureSecondaryIndexes(ctx, database, FormsCollection, "last_updated")
	})

	_, err := async.AwaitAll(conversations, forms)
	return err
}
