package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nycdangermap/incident-engine/internal/domain"
)

// IncidentFeed yields the most recent external incidents.
type IncidentFeed interface {
	FetchRecent(ctx context.Context) ([]domain.ExternalIncident, error)
}

// SyncReport summarizes one correlation pass over the feed.
type SyncReport struct {
	Incidents int
	Linked    int
	Unlinked  int
}

// Syncer periodically resolves the current feed against stored discussions.
// Resolution here is read-only: discussions are only ever created by a user
// via StartDiscussion, so the sync exists for the linked/unlinked metrics and
// logs that moderation watches.
type Syncer struct {
	feed       IncidentFeed
	correlator *Correlator
	interval   time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewSyncer creates a Syncer that runs a pass every interval.
func NewSyncer(feed IncidentFeed, correlator *Correlator, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Syncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Syncer{
		feed:       feed,
		correlator: correlator,
		interval:   interval,
		clock:      clock,
		logger:     logger,
	}
}

// Run performs a pass immediately and then on every interval tick until ctx
// is cancelled. A failed pass is logged and retried at the next tick.
func (s *Syncer) Run(ctx context.Context) error {
	s.runPass(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.runPass(ctx)
		}
	}
}

func (s *Syncer) runPass(ctx context.Context) {
	report, err := s.SyncOnce(ctx)
	if err != nil {
		s.logger.Error("feed correlation pass failed", "error", err)
		return
	}
	s.logger.Info("feed correlation pass complete",
		"incidents", report.Incidents,
		"linked", report.Linked,
		"unlinked", report.Unlinked,
	)
}

// SyncOnce fetches the feed and resolves every incident once.
func (s *Syncer) SyncOnce(ctx context.Context) (SyncReport, error) {
	incidents, err := s.feed.FetchRecent(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("fetch feed: %w", err)
	}

	report := SyncReport{Incidents: len(incidents)}
	for _, inc := range incidents {
		res, err := s.correlator.Resolve(ctx, inc)
		if err != nil {
			return report, fmt.Errorf("resolve incident %s: %w", inc.Key, err)
		}
		if res.Linked {
			report.Linked++
		} else {
			report.Unlinked++
		}
	}
	return report, nil
}
