//go:build integration

package mongo_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	adapter "github.com/nycdangermap/incident-engine/internal/adapter/mongo"
	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/nycdangermap/incident-engine/internal/proximity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func setupStore(t *testing.T) *adapter.Store {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := adapter.Connect(ctx, uri, "incident_engine_test", logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close(ctx))
	})
	return store
}

func TestPostStore_InsertAndBoxQuery(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	posts := store.Posts()

	inside, err := posts.Insert(ctx, domain.Post{
		Title:     "Loud bangs on Fulton St",
		Location:  domain.Geo{Lat: 40.6790, Lon: -73.9440},
		AuthorID:  primitive.NewObjectID(),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = posts.Insert(ctx, domain.Post{
		Title:     "Uptown pothole",
		Location:  domain.Geo{Lat: 40.85, Lon: -73.93},
		AuthorID:  primitive.NewObjectID(),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	hidden, err := posts.Insert(ctx, domain.Post{
		Title:     "Hidden nearby",
		Location:  domain.Geo{Lat: 40.6791, Lon: -73.9441},
		AuthorID:  primitive.NewObjectID(),
		CreatedAt: time.Now().UTC(),
		Hidden:    true,
	})
	require.NoError(t, err)

	box := proximity.BoxAround(domain.Geo{Lat: 40.6790, Lon: -73.9440}, 0.01)
	found, err := posts.FindInBox(ctx, box)
	require.NoError(t, err)

	require.Len(t, found, 1)
	assert.Equal(t, inside.ID, found[0].ID)
	assert.NotEqual(t, hidden.ID, found[0].ID)
}

func TestPostStore_RatingUpsertReplacesInPlace(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	posts := store.Posts()

	post, err := posts.Insert(ctx, domain.Post{
		Title:     "Broken streetlight",
		Location:  domain.Geo{Lat: 40.70, Lon: -73.99},
		AuthorID:  primitive.NewObjectID(),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	rater := primitive.NewObjectID()
	require.NoError(t, posts.UpsertRating(ctx, post.ID, domain.Rating{UserID: rater, Value: 4}))
	require.NoError(t, posts.UpsertRating(ctx, post.ID, domain.Rating{UserID: rater, Value: 5}))

	scores, err := posts.RatingScores(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, scores)
}

func TestCommentStore_InsertAndDeleteKeepRefsInStep(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	posts := store.Posts()
	comments := store.Comments()

	post, err := posts.Insert(ctx, domain.Post{
		Title:     "Car break-in",
		Location:  domain.Geo{Lat: 40.70, Lon: -73.99},
		AuthorID:  primitive.NewObjectID(),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	comment, err := comments.Insert(ctx, domain.Comment{
		PostID:   post.ID,
		AuthorID: primitive.NewObjectID(),
		Text:     "Saw it too",
		Score:    3,
	})
	require.NoError(t, err)

	reloaded, err := posts.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Contains(t, reloaded.Comments, comment.ID)

	_, err = comments.Delete(ctx, comment.ID)
	require.NoError(t, err)

	reloaded, err = posts.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.NotContains(t, reloaded.Comments, comment.ID)
}

func TestFlagStore_DistinctReporters(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	flags := store.Flags()

	entity := primitive.NewObjectID()
	repeat := primitive.NewObjectID()
	for _, reporter := range []primitive.ObjectID{repeat, repeat, primitive.NewObjectID()} {
		_, err := flags.Insert(ctx, domain.Flag{
			Types:      []string{"spam"},
			EntityID:   entity,
			ReporterID: reporter,
		})
		require.NoError(t, err)
	}

	count, err := flags.DistinctReporterCount(ctx, entity)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNotificationStore_Lifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	notifications := store.Notifications()

	user := primitive.NewObjectID()
	for i := 0; i < 3; i++ {
		require.NoError(t, notifications.Create(ctx, domain.Notification{
			UserID:    user,
			PostID:    primitive.NewObjectID(),
			PostTitle: "Nearby report",
			Distance:  0.42,
			Location:  domain.Geo{Lat: 40.70, Lon: -73.99},
			CreatedAt: time.Now().UTC(),
		}))
	}

	unread, err := notifications.UnreadCount(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 3, unread)

	listed, err := notifications.ByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, listed, 3)

	require.NoError(t, notifications.MarkRead(ctx, user, listed[0].ID))
	unread, err = notifications.UnreadCount(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	marked, err := notifications.MarkAllRead(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marked)

	require.NoError(t, notifications.Delete(ctx, user, listed[1].ID))
	listed, err = notifications.ByUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}
