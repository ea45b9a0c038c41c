// Package analytics implements C8, the three admin-authenticated read-only
// funnel queries over the creation flow's bot_flows/funnel_events tables.
// Grounded on the teacher's application/query package: one query-parameter
// struct with a Validate method per read operation, executed against the
// domain repositories and cached for the window §4.8 specifies.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/botforge/telegram-bot-factory/internal/domain/event"
	"github.com/botforge/telegram-bot-factory/internal/domain/flow"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
	"github.com/botforge/telegram-bot-factory/pkg/logger"
)

// Cache is the query-result cache port, implemented by
// internal/infrastructure/persistence/redis.AnalyticsCache.
type Cache interface {
	Get(ctx context.Context, queryName string, dest interface{}) (bool, error)
	Set(ctx context.Context, queryName string, value interface{}) error
}

// Service executes the three funnel analytics queries.
type Service struct {
	flows  flow.Repository
	events event.Repository
	cache  Cache
	log    *logger.Logger
}

// New builds a Service.
func New(flows flow.Repository, events event.Repository, cache Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{flows: flows, events: events, cache: cache, log: log}
}

// ══════════════════════════════════════════════════════════════════════════════
// /funnel
// ══════════════════════════════════════════════════════════════════════════════

// FunnelQuery carries the /funnel?days=N&window={start|activity} parameters.
type FunnelQuery struct {
	Days   int
	Window string // "start" (created_at) or "activity" (updated_at)
}

// Validate applies the defaults and bounds the query accepts.
func (q *FunnelQuery) Validate() error {
	if q.Days <= 0 {
		q.Days = 7
	}
	if q.Window != "start" && q.Window != "activity" {
		q.Window = "start"
	}
	return nil
}

// FunnelSummary is the /funnel response shape.
type FunnelSummary struct {
	Days              int             `json:"days"`
	Window            string          `json:"window"`
	ReachedStage      map[int]int     `json:"reached_stage"`     // 1..5
	Cancelled         int             `json:"cancelled"`
	Failed            int             `json:"failed"`
	UniqueUsers       int             `json:"unique_users"`
	StepConversion    map[int]float64 `json:"step_conversion"`    // k -> ratio of stage k+1 reached among stage k
	OverallConversion float64         `json:"overall_conversion"` // stage 5 / stage 1
	DropOff           map[int]int     `json:"drop_off"`           // k -> count that reached k but never k+1
}

// Funnel answers /funnel, caching the result for 60s keyed by (days, window).
func (s *Service) Funnel(ctx context.Context, q FunnelQuery) (*FunnelSummary, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	cacheKey := fmt.Sprintf("funnel:%d:%s", q.Days, q.Window)

	var cached FunnelSummary
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
		return nil, err
	} else if hit {
		return &cached, nil
	}

	window := "created"
	if q.Window == "activity" {
		window = "updated"
	}
	since := time.Now().UTC().AddDate(0, 0, -q.Days)
	flows, err := s.flows.ForAnalytics(ctx, since, window)
	if err != nil {
		return nil, err
	}

	summary := buildFunnelSummary(q, flows)

	if err := s.cache.Set(ctx, cacheKey, summary); err != nil {
		s.log.Warn("failed to cache funnel summary", logger.String("key", cacheKey), logger.Err(err))
	}
	return summary, nil
}

func buildFunnelSummary(q FunnelQuery, flows []*flow.Flow) *FunnelSummary {
	summary := &FunnelSummary{
		Days:           q.Days,
		Window:         q.Window,
		ReachedStage:   make(map[int]int, flow.StageActivated),
		StepConversion: make(map[int]float64, flow.StageActivated-1),
		DropOff:        make(map[int]int, flow.StageActivated-1),
	}

	uniqueUsers := make(map[shared.TelegramUserID]struct{})
	for _, f := range flows {
		uniqueUsers[f.UserID] = struct{}{}
		for stage := 1; stage <= f.CurrentStage && stage <= flow.StageActivated; stage++ {
			summary.ReachedStage[stage]++
		}
		switch f.Status {
		case flow.StatusCancelled:
			summary.Cancelled++
		case flow.StatusFailed:
			summary.Failed++
		}
	}
	summary.UniqueUsers = len(uniqueUsers)

	for stage := 1; stage < flow.StageActivated; stage++ {
		reached := summary.ReachedStage[stage]
		next := summary.ReachedStage[stage+1]
		summary.DropOff[stage] = reached - next
		if reached > 0 {
			summary.StepConversion[stage] = float64(next) / float64(reached)
		}
	}
	if started := summary.ReachedStage[flow.StageStarted]; started > 0 {
		summary.OverallConversion = float64(summary.ReachedStage[flow.StageActivated]) / float64(started)
	}

	return summary
}

// ══════════════════════════════════════════════════════════════════════════════
// /funnel/users
// ══════════════════════════════════════════════════════════════════════════════

// UsersQuery carries the /funnel/users?days=N&stage=S?&limit=L parameters.
type UsersQuery struct {
	Days  int
	Stage int // 0 means "no filter"
	Limit int
}

// Validate applies defaults and bounds.
func (q *UsersQuery) Validate() error {
	if q.Days <= 0 {
		q.Days = 7
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	return nil
}

// UserFunnelRow is one row of the /funnel/users response.
type UserFunnelRow struct {
	UserID       int64       `json:"user_id"`
	MaxStage     int         `json:"max_stage"`
	AttemptCount int         `json:"attempt_count"`
	LatestStatus flow.Status `json:"latest_status"`
}

// Users answers /funnel/users: not cached (it is parameterised by stage and
// limit beyond what a 60s cache key would usefully capture), and groups raw
// flow rows by user. Results are sorted by user ID for determinism.
func (s *Service) Users(ctx context.Context, q UsersQuery) ([]UserFunnelRow, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	since := time.Now().UTC().AddDate(0, 0, -q.Days)
	flows, err := s.flows.ForAnalytics(ctx, since, "created")
	if err != nil {
		return nil, err
	}

	type accumulator struct {
		maxStage     int
		attempts     int
		latestStatus flow.Status
		latestAt     time.Time
	}
	byUser := make(map[int64]*accumulator)
	var order []int64

	for _, f := range flows {
		userID := f.UserID.Int64()
		acc, ok := byUser[userID]
		if !ok {
			acc = &accumulator{}
			byUser[userID] = acc
			order = append(order, userID)
		}
		acc.attempts++
		if f.CurrentStage > acc.maxStage {
			acc.maxStage = f.CurrentStage
		}
		if f.UpdatedAt.After(acc.latestAt) {
			acc.latestAt = f.UpdatedAt
			acc.latestStatus = f.Status
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	rows := make([]UserFunnelRow, 0, len(order))
	for _, userID := range order {
		acc := byUser[userID]
		if q.Stage != 0 && acc.maxStage != q.Stage {
			continue
		}
		rows = append(rows, UserFunnelRow{
			UserID:       userID,
			MaxStage:     acc.maxStage,
			AttemptCount: acc.attempts,
			LatestStatus: acc.latestStatus,
		})
		if len(rows) >= q.Limit {
			break
		}
	}

	return rows, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// /funnel/errors
// ══════════════════════════════════════════════════════════════════════════════

const topErrorsLimit = 10

// Errors answers /funnel/errors?days=N: the top 10 distinct metadata.error
// values over creation_failed events in the window, cached 60s keyed by days.
func (s *Service) Errors(ctx context.Context, days int) ([]event.ErrorCount, error) {
	if days <= 0 {
		days = 7
	}
	cacheKey := fmt.Sprintf("funnel_errors:%d", days)

	var cached []event.ErrorCount
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
		return nil, err
	} else if hit {
		return cached, nil
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	errs, err := s.events.TopErrorsSince(ctx, since, topErrorsLimit)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, errs); err != nil {
		s.log.Warn("failed to cache funnel errors", logger.String("key", cacheKey), logger.Err(err))
	}
	return errs, nil
}
