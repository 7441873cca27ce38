package memory

import (
	"context"
	"errors"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/go-collection-boot/async"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// Updater is the single write primitive the stores need. *mongo.Collection
// satisfies it.
type Updater interface {
	UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
}

// RecordFinder is satisfied by odm.OdmCollectionInterface[ConversationRecord].
type RecordFinder interface {
	FindOne(ctx context.Context, filters bson.M) <-chan async.Result[*ConversationRecord]
}

// ConversationStore appends exchanges to one record per participant.
type ConversationStore struct {
	writer Updater
	reader RecordFinder
	now    func() time.Time
}

// NewConversationStore accepts nil collections; the store then runs with
// persistence disabled.
func NewConversationStore(writer Updater, reader RecordFinder) *ConversationStore {
	return &ConversationStore{
		writer: writer,
		reader: reader,
		now:    time.Now,
	}
}

// Append adds one exchange to the participant's record, creating the record
// on first use. Push, counter and timestamps land in one atomic update.
func (s *ConversationStore) Append(ctx context.Context, participantID string, exchange Exchange) bool {
	if s.writer == nil {
		return false
	}

	if participantID == "" {
		participantID = uuid.NewString()
		logger.Error("Exchange logged without participant id, generated one", zap.String("participantId", participantID))
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	if exchange.Timestamp.IsZero() {
		exchange.Timestamp = now
	} else {
		exchange.Timestamp = exchange.Timestamp.UTC().Truncate(time.Millisecond)
	}
	if exchange.Context == "" {
		exchange.Context = DefaultContextTag
	}

	filter := bson.M{"participant_id": participantID}
	update := bson.M{
		"$push":        bson.M{"conversation_history": exchange},
		"$inc":         bson.M{"total_exchanges": 1},
		"$set":         bson.M{"last_updated": now},
		"$setOnInsert": bson.M{"_id": participantID, "created_at": now},
	}
	opts := options.UpdateOne().SetUpsert(true)

	_, err := s.writer.UpdateOne(ctx, filter, update, opts)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// Lost the insert race against a concurrent first write; the record
		// exists now so the retry is a plain update.
		_, err = s.writer.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		logger.Error("Failed to append exchange",
			zap.String("participantId", participantID),
			zap.Error(err))
		return false
	}

	return true
}

// GetHistory returns the participant's exchanges, oldest first. A missing
// record is an empty history.
func (s *ConversationStore) GetHistory(ctx context.Context, participantID string) ([]Exchange, error) {
	record, err := s.GetRecord(ctx, participantID)
	if err != nil || record == nil {
		return []Exchange{}, err
	}
	if record.History == nil {
		return []Exchange{}, nil
	}
	return record.History, nil
}

// GetRecord returns nil without error when the participant has no record.
func (s *ConversationStore) GetRecord(ctx context.Context, participantID string) (*ConversationRecord, error) {
	if s.reader == nil {
		return nil, nil
	}

	record, err := async.Await(s.reader.FindOne(ctx, bson.M{"participant_id": participantID}))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		logger.Error("Failed to load conversation",
			zap.String("participantId", participantID),
			zap.Error(err))
		return nil, err
	}
	return record, nil
}

// Enabled reports whether exchanges are persisted.
func (s *ConversationStore) Enabled() bool {
	return s.writer != nil
}
