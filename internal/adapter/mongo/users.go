package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserStore reads the fields of the user collection the engine cares about.
type UserStore struct {
	coll *mongo.Collection
}

// FindByID fetches one user.
func (s *UserStore) FindByID(ctx context.Context, id primitive.ObjectID) (domain.User, error) {
	var user domain.User
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, domain.NewNotFoundError("user", id.Hex())
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user %s: %w", id.Hex(), err)
	}
	return user, nil
}

// FindNotifiable lists fan-out candidates: users with a saved location who
// have not switched notifications off.
func (s *UserStore) FindNotifiable(ctx context.Context) ([]domain.User, error) {
	filter := bson.M{
		"location":             bson.M{"$ne": nil},
		"notificationsEnabled": bson.M{"$ne": false},
	}
	cursor, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find notifiable users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []domain.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

// SetLocation updates a user's saved location and notification radius.
func (s *UserStore) SetLocation(ctx context.Context, id primitive.ObjectID, loc domain.Geo, radiusMiles float64) error {
	set := bson.M{"location": loc}
	if radiusMiles > 0 {
		set["notificationRadius"] = radiusMiles
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("set location for user %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("user", id.Hex())
	}
	return nil
}
