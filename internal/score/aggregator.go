// Package score keeps each post's aggregate score consistent with its
// rating or comment set.
package score

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nycdangermap/incident-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Source yields the current valid score set for a post. A deployment uses
// exactly one Source; rating-derived and comment-derived scores are never
// mixed for the same post.
type Source interface {
	Scores(ctx context.Context, postID primitive.ObjectID) ([]float64, error)
}

// SourceFunc adapts a function to Source. Used to select the rating-backed
// or comment-backed store query at wiring time.
type SourceFunc func(ctx context.Context, postID primitive.ObjectID) ([]float64, error)

func (f SourceFunc) Scores(ctx context.Context, postID primitive.ObjectID) ([]float64, error) {
	return f(ctx, postID)
}

// Writer persists a recomputed post score.
type Writer interface {
	SetScore(ctx context.Context, postID primitive.ObjectID, score float64) error
}

// Aggregator serializes mutations per post and recomputes the post's score
// after each one. Mutations to different posts proceed independently.
type Aggregator struct {
	source  Source
	writer  Writer
	metrics *observability.Metrics

	mu    sync.Mutex
	locks map[primitive.ObjectID]*postLock
}

// postLock is a per-post mutex with a waiter count so the entry can be
// dropped from the map once nothing holds or wants it.
type postLock struct {
	mu   sync.Mutex
	refs int
}

// NewAggregator creates an Aggregator over the given score source and writer.
func NewAggregator(source Source, writer Writer, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		source:  source,
		writer:  writer,
		metrics: metrics,
		locks:   make(map[primitive.ObjectID]*postLock),
	}
}

// Apply runs mutate under the post's lock, then recomputes and persists the
// post's score before releasing it. This is the at-most-one-writer-per-post
// rule: the mutation and the recompute are not atomic with each other, but no
// other writer can interleave between them.
func (a *Aggregator) Apply(ctx context.Context, postID primitive.ObjectID, mutate func(ctx context.Context) error) error {
	lock := a.acquire(postID)
	defer a.release(postID, lock)

	start := time.Now()

	if err := mutate(ctx); err != nil {
		return err
	}

	if err := a.recompute(ctx, postID); err != nil {
		return err
	}

	a.metrics.ScoreRecomputes.Inc()
	a.metrics.ScoreRecomputeSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// Recompute recalculates a post's score without an accompanying mutation,
// still under the post's lock.
func (a *Aggregator) Recompute(ctx context.Context, postID primitive.ObjectID) error {
	return a.Apply(ctx, postID, func(context.Context) error { return nil })
}

func (a *Aggregator) recompute(ctx context.Context, postID primitive.ObjectID) error {
	scores, err := a.source.Scores(ctx, postID)
	if err != nil {
		return fmt.Errorf("read score set: %w", err)
	}

	if err := a.writer.SetScore(ctx, postID, Mean(scores)); err != nil {
		return fmt.Errorf("write score: %w", err)
	}
	return nil
}

func (a *Aggregator) acquire(postID primitive.ObjectID) *postLock {
	a.mu.Lock()
	lock, ok := a.locks[postID]
	if !ok {
		lock = &postLock{}
		a.locks[postID] = lock
	}
	lock.refs++
	a.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (a *Aggregator) release(postID primitive.ObjectID, lock *postLock) {
	lock.mu.Unlock()

	a.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(a.locks, postID)
	}
	a.mu.Unlock()
}

// Mean returns the arithmetic mean of scores rounded to one decimal, or 0
// when the set is empty. Zero, not null: downstream sort and filter
// operations stay total.
func Mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return math.Round(sum/float64(len(scores))*10) / 10
}
