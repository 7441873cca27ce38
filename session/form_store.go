package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/go-collection-boot/async"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// Updater is the write side of the forms collection.
type Updater interface {
	UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
}

// RecordFinder is satisfied by odm.OdmCollectionInterface[FormRecord].
type RecordFinder interface {
	FindOne(ctx context.Context, filters bson.M) <-chan async.Result[*FormRecord]
}

// Keys owned by the store; callers cannot overwrite them.
var reservedKeys = map[string]struct{}{
	"_id":                  {},
	"participant_id":       {},
	"user_id":              {},
	"session_id":           {},
	"created_at":           {},
	"last_updated":         {},
	"submission_timestamp": {},
}

// FormStore keeps one merged questionnaire record per participant.
type FormStore struct {
	writer Updater
	reader RecordFinder
	now    func() time.Time
}

// NewFormStore accepts nil collections to run with persistence disabled.
func NewFormStore(writer Updater, reader RecordFinder) *FormStore {
	return &FormStore{writer: writer, reader: reader, now: time.Now}
}

func (s *FormStore) Enabled() bool {
	return s.writer != nil
}

// Upsert merges fields into the participant's form record. Keys that are
// not part of fields keep their stored values.
func (s *FormStore) Upsert(ctx context.Context, participantID string, fields map[string]any) bool {
	if s.writer == nil {
		return false
	}
	if participantID == "" {
		logger.Error("Form fields submitted without participant id")
		return false
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	set := sanitizeFields(fields)
	set["last_updated"] = now
	set["submission_timestamp"] = now

	filter := bson.M{"participant_id": participantID}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"_id": participantID, "created_at": now},
	}
	opts := options.UpdateOne().SetUpsert(true)

	_, err := s.writer.UpdateOne(ctx, filter, update, opts)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		_, err = s.writer.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		logger.Error("Failed to save form fields",
			zap.String("participantId", participantID),
			zap.Error(err))
		return false
	}

	return true
}

// Get returns the participant's form, or nil when none was submitted.
func (s *FormStore) Get(ctx context.Context, participantID string) (*FormRecord, error) {
	if s.reader == nil {
		return nil, nil
	}

	record, err := async.Await(s.reader.FindOne(ctx, bson.M{"participant_id": participantID}))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	delete(record.Fields, "_id")
	return record, nil
}

// sanitizeFields copies fields without reserved or operator-like keys.
func sanitizeFields(fields map[string]any) bson.M {
	out := bson.M{}
	for k, v := range fields {
		if k == "" || strings.HasPrefix(k, "$") {
			continue
		}
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		out[k] = v
	}
	return out
}
