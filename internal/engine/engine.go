// Package engine orchestrates report intake, commenting, rating, moderation,
// and queries over the stores, the score aggregator, and the notification
// dispatcher.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nycdangermap/incident-engine/internal/adapter/mapbox"
	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/nycdangermap/incident-engine/internal/notify"
	"github.com/nycdangermap/incident-engine/internal/observability"
	"github.com/nycdangermap/incident-engine/internal/proximity"
	"github.com/nycdangermap/incident-engine/internal/score"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AutoHideReporterThreshold is the number of distinct reporters at which a
// flagged post is hidden without moderator action.
const AutoHideReporterThreshold = 20

// PostStore is the post persistence surface the engine drives.
type PostStore interface {
	Insert(ctx context.Context, post domain.Post) (domain.Post, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (domain.Post, error)
	FindVisible(ctx context.Context) ([]domain.Post, error)
	FindByAuthor(ctx context.Context, authorID primitive.ObjectID) ([]domain.Post, error)
	FindPopular(ctx context.Context, limit int64) ([]domain.Post, error)
	Update(ctx context.Context, id primitive.ObjectID, fields map[string]any) error
	SetHidden(ctx context.Context, id primitive.ObjectID, hidden bool) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	UpsertRating(ctx context.Context, postID primitive.ObjectID, rating domain.Rating) error
}

// CommentStore is the comment persistence surface the engine drives.
type CommentStore interface {
	Insert(ctx context.Context, comment domain.Comment) (domain.Comment, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (domain.Comment, error)
	Delete(ctx context.Context, id primitive.ObjectID) (domain.Comment, error)
	DeleteAllForPost(ctx context.Context, postID primitive.ObjectID) (int64, error)
}

// FlagStore is the moderation flag surface the engine drives.
type FlagStore interface {
	Insert(ctx context.Context, flag domain.Flag) (domain.Flag, error)
	DistinctReporterCount(ctx context.Context, entityID primitive.ObjectID) (int, error)
}

// NotificationStore is the notification read-lifecycle surface. Creation goes
// through the dispatcher, never through here.
type NotificationStore interface {
	ByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID primitive.ObjectID) error
	MarkAllRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
	Delete(ctx context.Context, userID, notificationID primitive.ObjectID) error
}

// Engine is the public facade over the engine's operations.
type Engine struct {
	posts         PostStore
	comments      CommentStore
	flags         FlagStore
	notifications NotificationStore
	index         *proximity.Index
	aggregator    *score.Aggregator
	dispatcher    *notify.Dispatcher
	geocoder      mapbox.Geocoder // nil when address geocoding is disabled
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// New wires an Engine. geocoder may be nil; address-only reports are then
// rejected as invalid input.
func New(
	posts PostStore,
	comments CommentStore,
	flags FlagStore,
	notifications NotificationStore,
	index *proximity.Index,
	aggregator *score.Aggregator,
	dispatcher *notify.Dispatcher,
	geocoder mapbox.Geocoder,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		posts:         posts,
		comments:      comments,
		flags:         flags,
		notifications: notifications,
		index:         index,
		aggregator:    aggregator,
		dispatcher:    dispatcher,
		geocoder:      geocoder,
		logger:        logger,
		metrics:       metrics,
	}
}

// ReportInput is a community report submission. Exactly one of Location and
// Address must be usable; Location wins when both are present.
type ReportInput struct {
	AuthorID  primitive.ObjectID
	Title     string
	Body      string
	Photo     string
	Location  *domain.Geo
	Address   string
	Sensitive bool
	Anonymous bool
}

// SubmitReport validates and stores a report, then fans out notifications on
// a detached goroutine. The returned post is complete; notification delivery
// is never part of the submission outcome.
func (e *Engine) SubmitReport(ctx context.Context, input ReportInput) (domain.Post, error) {
	if err := domain.ValidateTitle(input.Title); err != nil {
		return domain.Post{}, err
	}
	if err := domain.ValidateBody(input.Body); err != nil {
		return domain.Post{}, err
	}

	location, err := e.resolveLocation(ctx, input)
	if err != nil {
		return domain.Post{}, err
	}
	if err := domain.ValidateLocation(location); err != nil {
		return domain.Post{}, err
	}

	post, err := e.posts.Insert(ctx, domain.Post{
		Title:     input.Title,
		Body:      input.Body,
		Photo:     input.Photo,
		Location:  location,
		AuthorID:  input.AuthorID,
		CreatedAt: domain.Now(),
		Sensitive: input.Sensitive,
		Anonymous: input.Anonymous,
		Score:     0,
		Ratings:   []domain.Rating{},
		Comments:  []primitive.ObjectID{},
	})
	if err != nil {
		return domain.Post{}, fmt.Errorf("submit report: %w", err)
	}
	e.metrics.ReportsSubmitted.Inc()

	e.dispatcher.DispatchAsync(notify.Trigger{
		PostID:    post.ID,
		PostTitle: post.Title,
		Location:  post.Location,
		AuthorID:  post.AuthorID,
	})
	return post, nil
}

func (e *Engine) resolveLocation(ctx context.Context, input ReportInput) (domain.Geo, error) {
	if input.Location != nil {
		return *input.Location, nil
	}
	if input.Address == "" {
		return domain.Geo{}, domain.NewValidationError("location", "a location or address is required")
	}
	if e.geocoder == nil {
		return domain.Geo{}, domain.NewValidationError("address", "address geocoding is not enabled")
	}
	return e.geocoder.Geocode(ctx, input.Address)
}

// AddComment validates and stores a comment on an existing post, recomputing
// the post's score under its lock.
func (e *Engine) AddComment(ctx context.Context, postID, authorID primitive.ObjectID, text string, commentScore float64) (domain.Comment, error) {
	if err := domain.ValidateCommentScore(commentScore); err != nil {
		return domain.Comment{}, err
	}
	if _, err := e.posts.FindByID(ctx, postID); err != nil {
		return domain.Comment{}, err
	}

	var comment domain.Comment
	err := e.aggregator.Apply(ctx, postID, func(ctx context.Context) error {
		var err error
		comment, err = e.comments.Insert(ctx, domain.Comment{
			PostID:   postID,
			AuthorID: authorID,
			Text:     text,
			Score:    commentScore,
		})
		return err
	})
	if err != nil {
		return domain.Comment{}, fmt.Errorf("add comment: %w", err)
	}
	e.metrics.CommentsCreated.Inc()
	return comment, nil
}

// DeleteComment removes the requester's own comment and recomputes the post
// score. Deleting someone else's comment is rejected.
func (e *Engine) DeleteComment(ctx context.Context, commentID, requesterID primitive.ObjectID) error {
	comment, err := e.comments.FindByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != requesterID {
		return domain.NewValidationError("comment", "only the author can delete a comment")
	}

	err = e.aggregator.Apply(ctx, comment.PostID, func(ctx context.Context) error {
		_, err := e.comments.Delete(ctx, commentID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	e.metrics.CommentsDeleted.Inc()
	return nil
}

// RatePost records the user's rating of a post, replacing any prior rating by
// the same user, and recomputes the post score.
func (e *Engine) RatePost(ctx context.Context, postID, userID primitive.ObjectID, value float64) error {
	if err := domain.ValidateRating(value); err != nil {
		return err
	}

	err := e.aggregator.Apply(ctx, postID, func(ctx context.Context) error {
		return e.posts.UpsertRating(ctx, postID, domain.Rating{UserID: userID, Value: value})
	})
	if err != nil {
		return fmt.Errorf("rate post: %w", err)
	}
	e.metrics.RatingsUpserted.Inc()
	return nil
}

// PostUpdate carries the client-editable post fields; nil means unchanged.
type PostUpdate struct {
	Title     *string
	Body      *string
	Photo     *string
	Sensitive *bool
	Anonymous *bool
}

// UpdatePost applies a partial edit to the requester's own post.
func (e *Engine) UpdatePost(ctx context.Context, postID, requesterID primitive.ObjectID, update PostUpdate) error {
	post, err := e.posts.FindByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != requesterID {
		return domain.NewValidationError("post", "only the author can edit a post")
	}

	fields := map[string]any{}
	if update.Title != nil {
		if err := domain.ValidateTitle(*update.Title); err != nil {
			return err
		}
		fields["title"] = *update.Title
	}
	if update.Body != nil {
		if err := domain.ValidateBody(*update.Body); err != nil {
			return err
		}
		fields["body"] = *update.Body
	}
	if update.Photo != nil {
		fields["photo"] = *update.Photo
	}
	if update.Sensitive != nil {
		fields["sensitive"] = *update.Sensitive
	}
	if update.Anonymous != nil {
		fields["anonymous"] = *update.Anonymous
	}
	return e.posts.Update(ctx, postID, fields)
}

// DeletePost removes the requester's own post and all its comments.
func (e *Engine) DeletePost(ctx context.Context, postID, requesterID primitive.ObjectID) error {
	post, err := e.posts.FindByID(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != requesterID {
		return domain.NewValidationError("post", "only the author can delete a post")
	}

	deleted, err := e.comments.DeleteAllForPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("delete post comments: %w", err)
	}
	if err := e.posts.Delete(ctx, postID); err != nil {
		return err
	}
	e.logger.Info("post deleted",
		"post_id", postID.Hex(),
		"comments_deleted", deleted,
	)
	return nil
}

// HidePost sets the moderation visibility flag directly.
func (e *Engine) HidePost(ctx context.Context, postID primitive.ObjectID, hidden bool) error {
	return e.posts.SetHidden(ctx, postID, hidden)
}

// FlagPost records a moderation flag against a post. When the count of
// distinct reporters reaches AutoHideReporterThreshold the post is hidden
// without moderator action.
func (e *Engine) FlagPost(ctx context.Context, postID, reporterID primitive.ObjectID, flagTypes []string, text string) error {
	if _, err := e.posts.FindByID(ctx, postID); err != nil {
		return err
	}

	if _, err := e.flags.Insert(ctx, domain.Flag{
		Types:      flagTypes,
		Text:       text,
		EntityID:   postID,
		ReporterID: reporterID,
	}); err != nil {
		return fmt.Errorf("flag post: %w", err)
	}

	reporters, err := e.flags.DistinctReporterCount(ctx, postID)
	if err != nil {
		return fmt.Errorf("count reporters: %w", err)
	}
	if reporters >= AutoHideReporterThreshold {
		if err := e.posts.SetHidden(ctx, postID, true); err != nil {
			return fmt.Errorf("auto-hide post: %w", err)
		}
		e.logger.Warn("post auto-hidden by reporter threshold",
			"post_id", postID.Hex(),
			"reporters", reporters,
		)
	}
	return nil
}

// NearbyPosts returns visible posts within radiusMiles of origin, closest
// first.
func (e *Engine) NearbyPosts(ctx context.Context, origin domain.Geo, radiusMiles float64) ([]proximity.Match, error) {
	return e.index.FindNearby(ctx, origin, radiusMiles, true)
}

// VisiblePosts returns all non-hidden posts, newest first.
func (e *Engine) VisiblePosts(ctx context.Context) ([]domain.Post, error) {
	return e.posts.FindVisible(ctx)
}

// PostsByAuthor returns one author's posts including hidden ones.
func (e *Engine) PostsByAuthor(ctx context.Context, authorID primitive.ObjectID) ([]domain.Post, error) {
	return e.posts.FindByAuthor(ctx, authorID)
}

// PopularPosts returns the top visible posts by aggregate score.
func (e *Engine) PopularPosts(ctx context.Context, limit int64) ([]domain.Post, error) {
	return e.posts.FindPopular(ctx, limit)
}

// Notifications returns the user's most recent notifications, newest first.
func (e *Engine) Notifications(ctx context.Context, userID primitive.ObjectID) ([]domain.Notification, error) {
	return e.notifications.ByUser(ctx, userID)
}

// UnreadNotificationCount counts the user's unread notifications.
func (e *Engine) UnreadNotificationCount(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return e.notifications.UnreadCount(ctx, userID)
}

// MarkNotificationRead flags one of the user's notifications as read.
func (e *Engine) MarkNotificationRead(ctx context.Context, userID, notificationID primitive.ObjectID) error {
	return e.notifications.MarkRead(ctx, userID, notificationID)
}

// MarkAllNotificationsRead flags all the user's notifications as read and
// returns how many changed.
func (e *Engine) MarkAllNotificationsRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return e.notifications.MarkAllRead(ctx, userID)
}

// DeleteNotification removes one of the user's notifications.
func (e *Engine) DeleteNotification(ctx context.Context, userID, notificationID primitive.ObjectID) error {
	return e.notifications.Delete(ctx, userID, notificationID)
}
