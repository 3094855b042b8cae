// Package notify fans a new report out to users whose saved location is
// within their preferred radius of it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/nycdangermap/incident-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserSource lists candidate users: non-null saved location and
// notifications enabled.
type UserSource interface {
	FindNotifiable(ctx context.Context) ([]domain.User, error)
}

// NotificationCreator stores one notification record.
type NotificationCreator interface {
	Create(ctx context.Context, n domain.Notification) error
}

// Trigger describes the report that caused a fan-out.
type Trigger struct {
	PostID    primitive.ObjectID
	PostTitle string
	Location  domain.Geo
	AuthorID  primitive.ObjectID
}

// Notified reports one successful notification.
type Notified struct {
	UserID   primitive.ObjectID `json:"userId"`
	Distance float64            `json:"distance"`
}

// Dispatcher scans registered users and stores proximity notifications.
// Best-effort and store-only: a failure for one user never aborts the rest,
// and nothing here can fail the triggering report submission.
type Dispatcher struct {
	users   UserSource
	store   NotificationCreator
	logger  *slog.Logger
	metrics *observability.Metrics
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher. timeout bounds one detached dispatch.
func NewDispatcher(users UserSource, store NotificationCreator, logger *slog.Logger, metrics *observability.Metrics, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		users:   users,
		store:   store,
		logger:  logger,
		metrics: metrics,
		timeout: timeout,
	}
}

// NotifyNearbyUsers creates exactly one notification for every candidate
// whose preferred radius contains the trigger location. The author is always
// excluded, as is any candidate who has blocked the author. Per-candidate
// failures are logged, counted, and skipped.
func (d *Dispatcher) NotifyNearbyUsers(ctx context.Context, trigger Trigger) ([]Notified, error) {
	start := time.Now()

	candidates, err := d.users.FindNotifiable(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan notifiable users: %w", err)
	}
	d.metrics.FanoutCandidates.Observe(float64(len(candidates)))

	var notified []Notified
	for _, user := range candidates {
		if user.ID == trigger.AuthorID {
			continue
		}
		if user.Location == nil {
			continue
		}
		if hasBlocked(user, trigger.AuthorID) {
			continue
		}

		distance := domain.Distance(*user.Location, trigger.Location)
		if distance > user.Radius() {
			continue
		}

		n := domain.Notification{
			UserID:    user.ID,
			PostID:    trigger.PostID,
			PostTitle: trigger.PostTitle,
			Distance:  math.Round(distance*100) / 100,
			Location:  trigger.Location,
			Read:      false,
			CreatedAt: domain.Now(),
		}
		if err := d.store.Create(ctx, n); err != nil {
			d.logger.Warn("notification create failed, skipping user",
				"user_id", user.ID.Hex(),
				"post_id", trigger.PostID.Hex(),
				"error", err,
			)
			d.metrics.FanoutFailures.Inc()
			continue
		}

		d.metrics.NotificationsCreated.Inc()
		notified = append(notified, Notified{UserID: user.ID, Distance: distance})
	}

	d.metrics.FanoutDuration.Observe(time.Since(start).Seconds())
	return notified, nil
}

// DispatchAsync runs NotifyNearbyUsers on a detached goroutine with its own
// bounded-deadline context, so the triggering request neither waits for nor
// observes fan-out failures. Only logging sees the outcome.
func (d *Dispatcher) DispatchAsync(trigger Trigger) {
	dispatchID := uuid.NewString()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		notified, err := d.NotifyNearbyUsers(ctx, trigger)
		if err != nil {
			d.logger.Error("notification dispatch failed",
				"dispatch_id", dispatchID,
				"post_id", trigger.PostID.Hex(),
				"error", err,
			)
			return
		}
		d.logger.Info("notification dispatch complete",
			"dispatch_id", dispatchID,
			"post_id", trigger.PostID.Hex(),
			"notified", len(notified),
		)
	}()
}

func hasBlocked(user domain.User, authorID primitive.ObjectID) bool {
	for _, blocked := range user.BlockedUsers {
		if blocked == authorID {
			return true
		}
	}
	return false
}
