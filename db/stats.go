package db

import (
	"context"
	"fmt"
	"time"

	"github.com/SaiNageswarS/go-collection-boot/async"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UnknownModel labels exchanges stored without a model name.
const UnknownModel = "unknown"

const dailyWindow = 7 * 24 * time.Hour

// Aggregator is the read side of a collection used for statistics.
// *mongo.Collection satisfies it.
type Aggregator interface {
	Aggregate(ctx context.Context, pipeline any, opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter any, opts ...options.Lister[options.CountOptions]) (int64, error)
}

type DuplicateParticipant struct {
	ParticipantID string `bson:"_id" json:"participantId"`
	Count         int64  `bson:"count" json:"count"`
}

// CollectionStats checks the one-record-per-participant invariant of a
// collection.
type CollectionStats struct {
	TotalDocuments        int64                  `json:"totalDocuments"`
	UniqueParticipants    int64                  `json:"uniqueParticipants"`
	DuplicateParticipants []DuplicateParticipant `json:"duplicateParticipants"`
}

type ConversationStats struct {
	CollectionStats
	TotalExchanges int64            `json:"totalExchanges"`
	ModelUsage     map[string]int64 `json:"modelUsage"`
	ContextUsage   map[string]int64 `json:"contextUsage"`
	DailyExchanges map[string]int64 `json:"dailyExchanges"`
}

type FormStats struct {
	CollectionStats
	SectionsCompleted map[string]int64 `json:"sectionsCompleted"`
}

type StudyStats struct {
	Conversations ConversationStats `json:"conversations"`
	Forms         FormStats         `json:"forms"`
	IntegrityOK   bool              `json:"integrityOk"`
}

type bucket struct {
	Key   string `bson:"_id"`
	Count int64  `bson:"count"`
}

// StatsReader summarises the study collections for operators.
type StatsReader struct {
	conversations Aggregator
	forms         Aggregator
	sections      []string
	now           func() time.Time
}

// NewStatsReader counts section completion through the <section>_completed
// flags of the given sections.
func NewStatsReader(conversations, forms Aggregator, sections []string) *StatsReader {
	return &StatsReader{
		conversations: conversations,
		forms:         forms,
		sections:      sections,
		now:           time.Now,
	}
}

// Collect reads both collections concurrently.
func (r *StatsReader) Collect(ctx context.Context) (*StudyStats, error) {
	convCh := async.Go(func() (ConversationStats, error) { return r.conversationStats(ctx) })
	formCh := async.Go(func() (FormStats, error) { return r.formStats(ctx) })

	conv, convErr := async.Await(convCh)
	forms, formErr := async.Await(formCh)
	if convErr != nil {
		return nil, fmt.Errorf("conversation stats: %w", convErr)
	}
	if formErr != nil {
		return nil, fmt.Errorf("form stats: %w", formErr)
	}

	return &StudyStats{
		Conversations: conv,
		Forms:         forms,
		IntegrityOK:   len(conv.DuplicateParticipants) == 0 && len(forms.DuplicateParticipants) == 0,
	}, nil
}

func (r *StatsReader) conversationStats(ctx context.Context) (ConversationStats, error) {
	base, err := collectionStats(ctx, r.conversations)
	if err != nil {
		return ConversationStats{}, err
	}
	stats := ConversationStats{CollectionStats: base}

	models, err := aggregateBuckets(ctx, r.conversations, exchangeGroupPipeline("$conversation_history.model_used"))
	if err != nil {
		return stats, err
	}
	stats.ModelUsage = toCounts(models, UnknownModel)
	for _, b := range models {
		stats.TotalExchanges += b.Count
	}

	contexts, err := aggregateBuckets(ctx, r.conversations, exchangeGroupPipeline("$conversation_history.context"))
	if err != nil {
		return stats, err
	}
	stats.ContextUsage = toCounts(contexts, "")

	since := r.now().UTC().Add(-dailyWindow)
	daily, err := aggregateBuckets(ctx, r.conversations, mongo.Pipeline{
		{{Key: "$unwind", Value: "$conversation_history"}},
		{{Key: "$match", Value: bson.D{{Key: "conversation_history.timestamp", Value: bson.D{{Key: "$gte", Value: since}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: "%Y-%m-%d"},
				{Key: "date", Value: "$conversation_history.timestamp"},
			}}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return stats, err
	}
	stats.DailyExchanges = toCounts(daily, "")

	return stats, nil
}

func (r *StatsReader) formStats(ctx context.Context) (FormStats, error) {
	base, err := collectionStats(ctx, r.forms)
	if err != nil {
		return FormStats{}, err
	}
	stats := FormStats{CollectionStats: base, SectionsCompleted: map[string]int64{}}

	for _, section := range r.sections {
		n, err := r.forms.CountDocuments(ctx, bson.M{section + "_completed": true})
		if err != nil {
			return stats, err
		}
		stats.SectionsCompleted[section] = n
	}
	return stats, nil
}

func collectionStats(ctx context.Context, coll Aggregator) (CollectionStats, error) {
	total, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return CollectionStats{}, err
	}

	participants, err := aggregateBuckets(ctx, coll, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$participant_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return CollectionStats{}, err
	}

	stats := CollectionStats{TotalDocuments: total, DuplicateParticipants: []DuplicateParticipant{}}
	for _, b := range participants {
		// records without an id yet are not participants
		if b.Key == "" {
			continue
		}
		stats.UniqueParticipants++
		if b.Count > 1 {
			stats.DuplicateParticipants = append(stats.DuplicateParticipants, DuplicateParticipant{ParticipantID: b.Key, Count: b.Count})
		}
	}
	return stats, nil
}

func exchangeGroupPipeline(field string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$unwind", Value: "$conversation_history"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
}

func aggregateBuckets(ctx context.Context, coll Aggregator, pipeline mongo.Pipeline) ([]bucket, error) {
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var out []bucket
	err = cursor.All(ctx, &out)
	return out, err
}

func toCounts(buckets []bucket, emptyKey string) map[string]int64 {
	counts := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		key := b.Key
		if key == "" {
			if emptyKey == "" {
				continue
			}
			key = emptyKey
		}
		counts[key] += b.Count
	}
	return counts
}
