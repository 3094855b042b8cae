package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/nycdangermap/incident-engine/internal/notify"
	"github.com/nycdangermap/incident-engine/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- mocks ---

type mockUsers struct {
	users []domain.User
	err   error
}

func (m *mockUsers) FindNotifiable(context.Context) ([]domain.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users, nil
}

type mockNotifications struct {
	mu      sync.Mutex
	created []domain.Notification
	failFor primitive.ObjectID
}

func (m *mockNotifications) Create(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.UserID == m.failFor {
		return errors.New("write concern error")
	}
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotifications) all() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notification(nil), m.created...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatcher(users *mockUsers, store *mockNotifications) *notify.Dispatcher {
	return notify.NewDispatcher(users, store, quietLogger(), observability.NewMetricsForTesting(), time.Second)
}

func userAt(lat, lon, radius float64) domain.User {
	return domain.User{
		ID:                   primitive.NewObjectID(),
		Location:             &domain.Geo{Lat: lat, Lon: lon},
		NotificationRadius:   radius,
		NotificationsEnabled: true,
	}
}

// --- tests ---

func TestNotifyNearbyUsers_CreatesOneNotificationInRadius(t *testing.T) {
	// User at (40.70, -73.99) with a 1 mi radius; report 0.5 mi north.
	u := userAt(40.70, -73.99, 1)
	users := &mockUsers{users: []domain.User{u}}
	store := &mockNotifications{}

	trigger := notify.Trigger{
		PostID:    primitive.NewObjectID(),
		PostTitle: "Suspicious activity",
		Location:  domain.Geo{Lat: 40.70 + 0.5/69.0, Lon: -73.99},
		AuthorID:  primitive.NewObjectID(),
	}

	notified, err := newDispatcher(users, store).NotifyNearbyUsers(context.Background(), trigger)
	require.NoError(t, err)

	require.Len(t, notified, 1)
	assert.Equal(t, u.ID, notified[0].UserID)
	assert.InDelta(t, 0.5, notified[0].Distance, 0.01)

	created := store.all()
	require.Len(t, created, 1)
	assert.Equal(t, u.ID, created[0].UserID)
	assert.Equal(t, trigger.PostID, created[0].PostID)
	assert.Equal(t, "Suspicious activity", created[0].PostTitle)
	assert.InDelta(t, 0.5, created[0].Distance, 0.01)
	assert.False(t, created[0].Read)
}

func TestNotifyNearbyUsers_OutsideRadiusGetsNothing(t *testing.T) {
	u := userAt(40.70, -73.99, 1)
	users := &mockUsers{users: []domain.User{u}}
	store := &mockNotifications{}

	trigger := notify.Trigger{
		PostID:   primitive.NewObjectID(),
		Location: domain.Geo{Lat: 40.70 + 5.0/69.0, Lon: -73.99}, // ~5 mi away
		AuthorID: primitive.NewObjectID(),
	}

	notified, err := newDispatcher(users, store).NotifyNearbyUsers(context.Background(), trigger)
	require.NoError(t, err)
	assert.Empty(t, notified)
	assert.Empty(t, store.all())
}

func TestNotifyNearbyUsers_ExcludesAuthor(t *testing.T) {
	author := userAt(40.70, -73.99, 5)
	users := &mockUsers{users: []domain.User{author}}
	store := &mockNotifications{}

	trigger := notify.Trigger{
		PostID:   primitive.NewObjectID(),
		Location: domain.Geo{Lat: 40.70, Lon: -73.99},
		AuthorID: author.ID,
	}

	notified, err := newDispatcher(users, store).NotifyNearbyUsers(context.Background(), trigger)
	require.NoError(t, err)
	assert.Empty(t, notified)
	assert.Empty(t, store.all())
}

func TestNotifyNearbyUsers_SkipsUsersWhoBlockedAuthor(t *testing.T) {
	author := primitive.NewObjectID()
	blocker := userAt(40.70, -73.99, 5)
	blocker.BlockedUsers = []primitive.ObjectID{author}
	bystander := userAt(40.70, -73.99, 5)

	users := &mockUsers{users: []domain.User{blocker, bystander}}
	store := &mockNotifications{}

	trigger := notify.Trigger{
		PostID:   primitive.NewObjectID(),
		Location: domain.Geo{Lat: 40.70, Lon: -73.99},
		AuthorID: author,
	}

	notified, err := newDispatcher(users, store).NotifyNearbyUsers(context.Background(), trigger)
	require.NoError(t, err)
	require.Len(t, notified, 1)
	assert.Equal(t, bystander.ID, notified[0].UserID)
}

func TestNotifyNearbyUsers_DefaultRadiusIsOneMile(t *testing.T) {
	u := userAt(40.70, -73.99, 0) // no radius configured
	users := &mockUsers{users: []domain.User{u}}
	store := &mockNotifications{}

	// 0.9 mi away: inside the 1 mi default.
	trigger := notify.Trigger{
		PostID:   primitive.NewObjectID(),
		Location: domain.Geo{Lat: 40.70 + 0.9/69.0, Lon: -73.99},
		AuthorID: primitive.NewObjectID(),
	}

	notified, err := newDispatcher(users, store).NotifyNearbyUsers(context.Background(), trigger)
	require.NoError(t, err)
	assert.Len(t, notified, 1)
}

func TestNotifyNearbyUsers_PerUserFailureIsIsolated(t *testing.T) {
	failing := userAt(40.70, -73.99, 5)
	healthy := userAt(40.70, -73.98, 5)

	users := &mockUsers{users: []domain.User{failing, healthy}}
	store := &mockNotifications{failFor: failing.ID}

	trigger := notify.Trigger{
		PostID:   primitive.NewObjectID(),
		Location: domain.Geo{Lat: 40.70, Lon: -73.99},
		AuthorID: primitive.NewObjectID(),
	}

	notified, err := newDispatcher(users, store).NotifyNearbyUsers(context.Background(), trigger)
	require.NoError(t, err) // one bad candidate never fails the dispatch
	require.Len(t, notified, 1)
	assert.Equal(t, healthy.ID, notified[0].UserID)
}

func TestNotifyNearbyUsers_ScanFailurePropagates(t *testing.T) {
	users := &mockUsers{err: errors.New("cursor timeout")}
	store := &mockNotifications{}

	_, err := newDispatcher(users, store).NotifyNearbyUsers(context.Background(), notify.Trigger{})
	assert.Error(t, err)
}

func TestNotifyNearbyUsers_NilLocationSkipped(t *testing.T) {
	u := domain.User{ID: primitive.NewObjectID(), NotificationsEnabled: true}
	users := &mockUsers{users: []domain.User{u}}
	store := &mockNotifications{}

	notified, err := newDispatcher(users, store).NotifyNearbyUsers(context.Background(), notify.Trigger{
		PostID:   primitive.NewObjectID(),
		Location: domain.Geo{Lat: 40.70, Lon: -73.99},
	})
	require.NoError(t, err)
	assert.Empty(t, notified)
}

func TestDispatchAsync_CompletesWithoutBlockingCaller(t *testing.T) {
	u := userAt(40.70, -73.99, 5)
	users := &mockUsers{users: []domain.User{u}}
	store := &mockNotifications{}

	d := newDispatcher(users, store)
	d.DispatchAsync(notify.Trigger{
		PostID:    primitive.NewObjectID(),
		PostTitle: "Road closure",
		Location:  domain.Geo{Lat: 40.70, Lon: -73.99},
		AuthorID:  primitive.NewObjectID(),
	})

	require.Eventually(t, func() bool {
		return len(store.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
