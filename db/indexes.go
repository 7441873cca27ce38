package db

import (
	"context"
	"fmt"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const ParticipantIndexName = "participant_id_unique_idx"

// Keys used by earlier versions of the study before participant ids existed.
// Records keyed by user_id carry the participant id under that name.
var legacyKeys = map[string]struct{}{
	"user_id":    {},
	"session_id": {},
}

// IndexSpec is the part of a listed index the migration cares about.
type IndexSpec struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique"`
}

// indexPlan lists the steps of one collection's migration. Conflicting
// participant indexes go before the create, legacy guards only after it.
type indexPlan struct {
	dropBefore []string
	create     bool
	dropAfter  []string
}

// planIndexMigration decides which existing indexes to drop so that a single
// unique index on participant_id remains.
func planIndexMigration(existing []IndexSpec) indexPlan {
	plan := indexPlan{create: true}
	for _, idx := range existing {
		if idx.Name == "_id_" || len(idx.Key) == 0 {
			continue
		}

		first := idx.Key[0].Key
		if _, legacy := legacyKeys[first]; legacy {
			plan.dropAfter = append(plan.dropAfter, idx.Name)
			continue
		}

		if first == "participant_id" && len(idx.Key) == 1 {
			if idx.Unique {
				plan.create = false
				continue
			}
			// Same key pattern as ours; the server rejects the create while it exists.
			plan.dropBefore = append(plan.dropBefore, idx.Name)
		}
	}
	return plan
}

// indexOps is what the migration needs from one collection.
type indexOps interface {
	list(ctx context.Context) ([]IndexSpec, error)
	backfill(ctx context.Context) (int64, error)
	create(ctx context.Context) error
	drop(ctx context.Context, name string) error
}

type collectionIndexOps struct {
	coll *mongo.Collection
}

func (c collectionIndexOps) list(ctx context.Context) ([]IndexSpec, error) {
	cursor, err := c.coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	var existing []IndexSpec
	err = cursor.All(ctx, &existing)
	return existing, err
}

// backfill copies user_id into participant_id on records written before the
// rename, so the unique index covers them.
func (c collectionIndexOps) backfill(ctx context.Context) (int64, error) {
	filter := bson.M{
		"participant_id": bson.M{"$exists": false},
		"user_id":        bson.M{"$exists": true},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "participant_id", Value: "$user_id"}}}},
	}

	res, err := c.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (c collectionIndexOps) create(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "participant_id", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetName(ParticipantIndexName).
			SetPartialFilterExpression(bson.M{"participant_id": bson.M{"$exists": true}}),
	})
	return err
}

func (c collectionIndexOps) drop(ctx context.Context, name string) error {
	return c.coll.Indexes().DropOne(ctx, name)
}

// EnsureParticipantIndex migrates collection to a unique participant_id
// index. Legacy user/session indexes are only dropped once the new index
// exists, so a failed create leaves the old uniqueness guard in place.
func EnsureParticipantIndex(ctx context.Context, database *mongo.Database, collection string) error {
	return migrateParticipantIndex(ctx, collection, collectionIndexOps{coll: database.Collection(collection)})
}

func migrateParticipantIndex(ctx context.Context, collection string, ops indexOps) error {
	existing, err := ops.list(ctx)
	if err != nil {
		return fmt.Errorf("listing indexes of %s: %w", collection, err)
	}
	plan := planIndexMigration(existing)

	backfilled, err := ops.backfill(ctx)
	if err != nil {
		return fmt.Errorf("backfilling participant ids of %s: %w", collection, err)
	}
	if backfilled > 0 {
		logger.Info("Backfilled participant ids from user_id",
			zap.String("collection", collection), zap.Int64("records", backfilled))
	}

	for _, name := range plan.dropBefore {
		if err := ops.drop(ctx, name); err != nil {
			return fmt.Errorf("dropping index %s on %s: %w", name, collection, err)
		}
		logger.Info("Dropped non-unique participant index", zap.String("collection", collection), zap.String("index", name))
	}

	if plan.create {
		if err := ops.create(ctx); err != nil {
			return fmt.Errorf("creating %s on %s: %w", ParticipantIndexName, collection, err)
		}
		logger.Info("Created participant index", zap.String("collection", collection))
	}

	for _, name := range plan.dropAfter {
		if err := ops.drop(ctx, name); err != nil {
			return fmt.Errorf("dropping index %s on %s: %w", name, collection, err)
		}
		logger.Info("Dropped legacy index", zap.String("collection", collection), zap.String("index", name))
	}

	return nil
}

// EnsureSecondaryIndexes adds the non-unique indexes used by exports.
func EnsureSecondaryIndexes(ctx context.Context, database *mongo.Database, collection string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}

	models := make([]mongo.IndexModel, 0, len(fields))
	for _, f := range fields {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: f, Value: 1}},
			Options: options.Index().SetName(f + "_idx"),
		})
	}

	if _, err := database.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating secondary indexes on %s: %w", collection, err)
	}
	return nil
}
