// Package correlate matches external feed incidents to community discussion
// posts, creating one on demand when a user starts a discussion.
package correlate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/nycdangermap/incident-engine/internal/observability"
	"github.com/nycdangermap/incident-engine/internal/proximity"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostCreator inserts a synthetic discussion post and returns it with its ID.
type PostCreator interface {
	Insert(ctx context.Context, post domain.Post) (domain.Post, error)
}

// CommentCreator inserts a comment and wires its post/user references.
type CommentCreator interface {
	Insert(ctx context.Context, comment domain.Comment) (domain.Comment, error)
}

// ScoreApplier serializes a score-affecting mutation for one post and
// recomputes the post's score afterwards.
type ScoreApplier interface {
	Apply(ctx context.Context, postID primitive.ObjectID, mutate func(ctx context.Context) error) error
}

// Resolution is the correlation outcome for one incident: Linked carries the
// discussion post, Unlinked means none exists yet.
type Resolution struct {
	Linked bool
	Post   domain.Post
}

// Correlator resolves incidents to discussion posts.
type Correlator struct {
	index    *proximity.Index
	posts    PostCreator
	comments CommentCreator
	scores   ScoreApplier
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewCorrelator creates a Correlator over the proximity index and stores.
func NewCorrelator(index *proximity.Index, posts PostCreator, comments CommentCreator, scores ScoreApplier, logger *slog.Logger, metrics *observability.Metrics) *Correlator {
	return &Correlator{
		index:    index,
		posts:    posts,
		comments: comments,
		scores:   scores,
		logger:   logger,
		metrics:  metrics,
	}
}

// Resolve looks for an existing discussion post for inc: a tight degree-box
// query around the incident, then the marker-and-tolerance match.
func (c *Correlator) Resolve(ctx context.Context, inc domain.ExternalIncident) (Resolution, error) {
	nearby, err := c.index.FindWithinDegrees(ctx, inc.Geo, domain.CorrelationDegreeRadius)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve incident %s: %w", inc.Key, err)
	}

	for _, post := range nearby {
		if domain.MatchesIncident(post, inc) {
			c.metrics.CorrelationLookups.WithLabelValues("linked").Inc()
			return Resolution{Linked: true, Post: post}, nil
		}
	}

	c.metrics.CorrelationLookups.WithLabelValues("unlinked").Inc()
	return Resolution{}, nil
}

// StartDiscussion returns the incident's discussion post, creating it — and
// the caller's initial comment — when absent.
//
// The lookup is re-run immediately before creation so a discussion created
// since the caller's last resolve is reused rather than duplicated. Two
// near-simultaneous calls can still both see Unlinked and race to create two
// posts; the window is accepted, duplicates are independently valid posts and
// are left to moderation.
//
// If the comment insert fails after the post insert succeeds, the post
// remains as a valid zero-comment discussion; the error is returned annotated
// with the surviving post ID.
func (c *Correlator) StartDiscussion(ctx context.Context, inc domain.ExternalIncident, authorID primitive.ObjectID, commentText string, commentScore float64) (domain.Post, error) {
	// The incident comes from the caller, not the feed; it gets the same
	// location check as a community report.
	if err := domain.ValidateLocation(inc.Geo); err != nil {
		return domain.Post{}, err
	}

	res, err := c.Resolve(ctx, inc)
	if err != nil {
		return domain.Post{}, err
	}

	post := res.Post
	if !res.Linked {
		created, err := c.posts.Insert(ctx, domain.Post{
			Title:     domain.DiscussionTitle(inc),
			Body:      domain.DiscussionBody(inc),
			Location:  inc.Geo,
			AuthorID:  authorID,
			CreatedAt: domain.Now(),
			Sensitive: false,
			Anonymous: false,
			Score:     0,
			Ratings:   []domain.Rating{},
			Comments:  []primitive.ObjectID{},
		})
		if err != nil {
			return domain.Post{}, fmt.Errorf("create discussion for incident %s: %w", inc.Key, err)
		}
		c.metrics.DiscussionsCreated.Inc()
		c.logger.Info("discussion created for incident",
			"incident_key", inc.Key,
			"post_id", created.ID.Hex(),
		)
		post = created
	}

	if commentText != "" {
		// Through the aggregator, like any other comment insert: under
		// comment-derived scoring the new discussion's score must reflect the
		// initial comment immediately.
		err := c.scores.Apply(ctx, post.ID, func(ctx context.Context) error {
			_, err := c.comments.Insert(ctx, domain.Comment{
				PostID:   post.ID,
				AuthorID: authorID,
				Text:     commentText,
				Score:    commentScore,
			})
			return err
		})
		if err != nil {
			// The post stands on its own; report the orphan instead of hiding it.
			return post, fmt.Errorf("initial comment for discussion %s failed: %w", post.ID.Hex(), err)
		}
	}

	return post, nil
}
