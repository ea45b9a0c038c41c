// Package jobs holds the worker process's scheduled background jobs.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/event"
	"github.com/botforge/telegram-bot-factory/pkg/logger"
)

// funnelEventRetention is the TTL emulated on funnel_events.occurred_at
// (§4.1: "TTL on timestamp = 90 days").
const funnelEventRetention = 90 * 24 * time.Hour

// CleanupFunnelEvents deletes funnel_events rows older than the retention
// window, the Postgres stand-in for a document store's TTL index (O2).
type CleanupFunnelEvents struct {
	events event.Repository
	log    *logger.Logger
}

// NewCleanupFunnelEvents builds the job.
func NewCleanupFunnelEvents(events event.Repository, log *logger.Logger) *CleanupFunnelEvents {
	if log == nil {
		log = logger.Default()
	}
	return &CleanupFunnelEvents{events: events, log: log}
}

func (j *CleanupFunnelEvents) Name() string { return "cleanup_funnel_events" }

func (j *CleanupFunnelEvents) Description() string {
	return fmt.Sprintf("deletes funnel_events older than %s", funnelEventRetention)
}

func (j *CleanupFunnelEvents) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-funnelEventRetention)
	n, err := j.events.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	j.log.Info("deleted stale funnel events", logger.Int64("deleted", n), logger.Time("cutoff", cutoff))
	return nil
}
