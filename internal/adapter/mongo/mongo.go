// Package mongo is the document-store adapter. Collection shapes follow the
// original map deployment: posts embed their ratings array and comment ID
// refs; comments, users, notifications, and flags are flat collections.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	postsCollection         = "posts"
	commentsCollection      = "comments"
	usersCollection         = "users"
	notificationsCollection = "notifications"
	flagsCollection         = "reports"
)

// Store owns the client connection and hands out per-collection stores.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	logger.Info("mongodb connected", "database", database)
	return &Store{
		client: client,
		db:     client.Database(database),
		logger: logger,
	}, nil
}

// CheckReadiness pings the primary; used by the ops server's /readyz.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Posts returns the post collection store.
func (s *Store) Posts() *PostStore {
	return &PostStore{coll: s.db.Collection(postsCollection)}
}

// Comments returns the comment collection store.
func (s *Store) Comments() *CommentStore {
	return &CommentStore{
		coll:  s.db.Collection(commentsCollection),
		posts: s.db.Collection(postsCollection),
	}
}

// Users returns the user collection store.
func (s *Store) Users() *UserStore {
	return &UserStore{coll: s.db.Collection(usersCollection)}
}

// Notifications returns the notification collection store.
func (s *Store) Notifications() *NotificationStore {
	return &NotificationStore{coll: s.db.Collection(notificationsCollection)}
}

// Flags returns the moderation flag collection store.
func (s *Store) Flags() *FlagStore {
	return &FlagStore{coll: s.db.Collection(flagsCollection)}
}
