package mongo

import (
	"context"
	"fmt"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// FlagStore persists moderation flags.
type FlagStore struct {
	coll *mongo.Collection
}

// Insert stores one flag.
func (s *FlagStore) Insert(ctx context.Context, flag domain.Flag) (domain.Flag, error) {
	if flag.ID.IsZero() {
		flag.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, flag); err != nil {
		return domain.Flag{}, fmt.Errorf("insert flag: %w", err)
	}
	return flag, nil
}

// DistinctReporterCount counts distinct users who flagged the entity. A
// repeat flag from the same reporter does not raise the count.
func (s *FlagStore) DistinctReporterCount(ctx context.Context, entityID primitive.ObjectID) (int, error) {
	reporters, err := s.coll.Distinct(ctx, "reporter", bson.M{"reported_entity": entityID})
	if err != nil {
		return 0, fmt.Errorf("count reporters for entity %s: %w", entityID.Hex(), err)
	}
	return len(reporters), nil
}
