package mongo

import (
	"context"
	"fmt"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// recentNotificationLimit caps the per-user listing; older entries age out of
// view rather than being deleted.
const recentNotificationLimit = 50

// NotificationStore persists proximity notifications.
type NotificationStore struct {
	coll *mongo.Collection
}

// Create stores one notification record.
func (s *NotificationStore) Create(ctx context.Context, n domain.Notification) error {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ByUser returns the user's most recent notifications, newest first.
func (s *NotificationStore) ByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(recentNotificationLimit)
	cursor, err := s.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find notifications for user %s: %w", userID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var notifications []domain.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return notifications, nil
}

// UnreadCount counts the user's unread notifications.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{"userId": userID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("count unread for user %s: %w", userID.Hex(), err)
	}
	return count, nil
}

// MarkRead flags one notification as read, scoped to its owner.
func (s *NotificationStore) MarkRead(ctx context.Context, userID, notificationID primitive.ObjectID) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": notificationID, "userId": userID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", notificationID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("notification", notificationID.Hex())
	}
	return nil
}

// MarkAllRead flags every unread notification of the user as read.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"userId": userID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read for user %s: %w", userID.Hex(), err)
	}
	return res.ModifiedCount, nil
}

// Delete removes one notification, scoped to its owner.
func (s *NotificationStore) Delete(ctx context.Context, userID, notificationID primitive.ObjectID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": notificationID, "userId": userID})
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", notificationID.Hex(), err)
	}
	if res.DeletedCount == 0 {
		return domain.NewNotFoundError("notification", notificationID.Hex())
	}
	return nil
}
