package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/telegram-bot-factory/internal/domain/event"
	"github.com/botforge/telegram-bot-factory/internal/domain/flow"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
)

type fakeFlowRepo struct {
	analytics []*flow.Flow
}

func (f *fakeFlowRepo) Create(ctx context.Context, fl *flow.Flow) error { return nil }
func (f *fakeFlowRepo) GetByFlowID(ctx context.Context, flowID string) (*flow.Flow, error) {
	return nil, shared.ErrFlowNotFound
}
func (f *fakeFlowRepo) GetOpenByUser(ctx context.Context, userID shared.TelegramUserID) (*flow.Flow, error) {
	return nil, shared.ErrFlowNotFound
}
func (f *fakeFlowRepo) GetByBotTokenID(ctx context.Context, botTokenID string) (*flow.Flow, error) {
	return nil, shared.ErrFlowNotFound
}
func (f *fakeFlowRepo) Update(ctx context.Context, fl *flow.Flow) error { return nil }
func (f *fakeFlowRepo) ForAnalytics(ctx context.Context, since time.Time, window string) ([]*flow.Flow, error) {
	return f.analytics, nil
}

type fakeEventRepo struct {
	errors []event.ErrorCount
}

func (e *fakeEventRepo) LogIfAbsent(ctx context.Context, ev *event.FunnelEvent) error { return nil }
func (e *fakeEventRepo) CountByTypeSince(ctx context.Context, kind event.Kind, since time.Time) (int, error) {
	return 0, nil
}
func (e *fakeEventRepo) TopErrorsSince(ctx context.Context, since time.Time, limit int) ([]event.ErrorCount, error) {
	return e.errors, nil
}
func (e *fakeEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeCache struct {
	store map[string]interface{}
}

func newFakeCache() *fakeCache { return &fakeCache{store: make(map[string]interface{})} }

func (c *fakeCache) Get(ctx context.Context, queryName string, dest interface{}) (bool, error) {
	v, ok := c.store[queryName]
	if !ok {
		return false, nil
	}
	switch d := dest.(type) {
	case *FunnelSummary:
		*d = *v.(*FunnelSummary)
	case *[]event.ErrorCount:
		*d = v.([]event.ErrorCount)
	default:
		return false, nil
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, queryName string, value interface{}) error {
	c.store[queryName] = value
	return nil
}

func flowAtStage(userID int64, stage int, status flow.Status) *flow.Flow {
	f := flow.New("", shared.TelegramUserID(userID))
	f.AdvanceStage(status, stage)
	return f
}

func TestFunnel_StageCountsAndConversion(t *testing.T) {
	flows := []*flow.Flow{
		flowAtStage(1, flow.StageActivated, flow.StatusActivated),
		flowAtStage(2, flow.StageCreated, flow.StatusCreated),
		flowAtStage(3, flow.StageTokenAccepted, flow.StatusFailed),
		flowAtStage(4, flow.StageStarted, flow.StatusCancelled),
	}
	svc := New(&fakeFlowRepo{analytics: flows}, &fakeEventRepo{}, newFakeCache(), nil)

	summary, err := svc.Funnel(context.Background(), FunnelQuery{Days: 7, Window: "start"})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.ReachedStage[flow.StageStarted])
	assert.Equal(t, 3, summary.ReachedStage[flow.StageTokenAccepted])
	assert.Equal(t, 1, summary.ReachedStage[flow.StageActivated])
	assert.Equal(t, 1, summary.Cancelled)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.UniqueUsers)
	assert.InDelta(t, 0.25, summary.OverallConversion, 0.001)
}

func TestFunnel_DefaultsInvalidWindowToStart(t *testing.T) {
	svc := New(&fakeFlowRepo{}, &fakeEventRepo{}, newFakeCache(), nil)
	summary, err := svc.Funnel(context.Background(), FunnelQuery{Days: -5, Window: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, 7, summary.Days)
	assert.Equal(t, "start", summary.Window)
}

func TestFunnel_CachesResult(t *testing.T) {
	repo := &fakeFlowRepo{analytics: []*flow.Flow{flowAtStage(1, flow.StageActivated, flow.StatusActivated)}}
	cache := newFakeCache()
	svc := New(repo, &fakeEventRepo{}, cache, nil)

	first, err := svc.Funnel(context.Background(), FunnelQuery{Days: 7, Window: "start"})
	require.NoError(t, err)

	repo.analytics = nil // mutate the backing data; a cache hit must not see this
	second, err := svc.Funnel(context.Background(), FunnelQuery{Days: 7, Window: "start"})
	require.NoError(t, err)

	assert.Equal(t, first.UniqueUsers, second.UniqueUsers)
	assert.Equal(t, 1, second.UniqueUsers)
}

func TestUsers_GroupsByUserAndBucketsByStage(t *testing.T) {
	flows := []*flow.Flow{
		flowAtStage(10, flow.StageTokenAccepted, flow.StatusWaitingDescription),
		flowAtStage(10, flow.StageDescriptionSubmitted, flow.StatusCreating),
		flowAtStage(20, flow.StageActivated, flow.StatusActivated),
	}
	svc := New(&fakeFlowRepo{analytics: flows}, &fakeEventRepo{}, newFakeCache(), nil)

	rows, err := svc.Users(context.Background(), UsersQuery{Days: 7})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byUser := map[int64]UserFunnelRow{}
	for _, r := range rows {
		byUser[r.UserID] = r
	}
	assert.Equal(t, flow.StageDescriptionSubmitted, byUser[10].MaxStage)
	assert.Equal(t, 2, byUser[10].AttemptCount)
	assert.Equal(t, flow.StageActivated, byUser[20].MaxStage)
}

func TestUsers_FiltersByStage(t *testing.T) {
	flows := []*flow.Flow{
		flowAtStage(10, flow.StageTokenAccepted, flow.StatusWaitingDescription),
		flowAtStage(20, flow.StageActivated, flow.StatusActivated),
	}
	svc := New(&fakeFlowRepo{analytics: flows}, &fakeEventRepo{}, newFakeCache(), nil)

	rows, err := svc.Users(context.Background(), UsersQuery{Days: 7, Stage: flow.StageActivated})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(20), rows[0].UserID)
}

func TestUsers_ClampsLimit(t *testing.T) {
	q := UsersQuery{Days: 7, Limit: 10000}
	require.NoError(t, q.Validate())
	assert.Equal(t, 500, q.Limit)
}

func TestErrors_ReturnsTopErrorsAndCaches(t *testing.T) {
	repo := &fakeEventRepo{errors: []event.ErrorCount{{Error: "quota_exceeded", Count: 5}}}
	svc := New(&fakeFlowRepo{}, repo, newFakeCache(), nil)

	errs, err := svc.Errors(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "quota_exceeded", errs[0].Error)

	repo.errors = nil
	cached, err := svc.Errors(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, cached, 1)
}
