package score

import (
	"context"
	"sync"
	"testing"

	"github.com/nycdangermap/incident-engine/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type nopWriter struct{}

func (nopWriter) SetScore(context.Context, primitive.ObjectID, float64) error { return nil }

func emptySource(context.Context, primitive.ObjectID) ([]float64, error) { return nil, nil }

func (a *Aggregator) lockCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}

func TestApply_ReleasesIdleLocks(t *testing.T) {
	agg := NewAggregator(SourceFunc(emptySource), nopWriter{}, observability.NewMetricsForTesting())

	for i := 0; i < 10; i++ {
		require.NoError(t, agg.Apply(context.Background(), primitive.NewObjectID(), func(context.Context) error {
			return nil
		}))
	}

	// Every entry is reclaimed once its last holder finishes; the map does
	// not grow with the set of posts ever touched.
	assert.Zero(t, agg.lockCount())
}

func TestApply_ReleasesLocksUnderContention(t *testing.T) {
	agg := NewAggregator(SourceFunc(emptySource), nopWriter{}, observability.NewMetricsForTesting())
	postID := primitive.NewObjectID()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = agg.Apply(context.Background(), postID, func(context.Context) error { return nil })
		}()
	}
	wg.Wait()

	assert.Zero(t, agg.lockCount())
}
