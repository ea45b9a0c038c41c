package handlercache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/telegram-bot-factory/internal/domain/handler"
	"github.com/botforge/telegram-bot-factory/internal/domain/registry"
	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
	"github.com/botforge/telegram-bot-factory/internal/infrastructure/artifactstore"
)

type fakeRemoteStore struct {
	artifacts map[string]*handler.Artifact
	err       error
}

func (s *fakeRemoteStore) Exists(ctx context.Context, handlerName string) (bool, error) {
	_, ok := s.artifacts[handlerName]
	return ok, nil
}
func (s *fakeRemoteStore) Get(ctx context.Context, handlerName string) (*handler.Artifact, error) {
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.artifacts[handlerName]
	if !ok {
		return nil, shared.ErrArtifactNotFound
	}
	return a, nil
}
func (s *fakeRemoteStore) Create(ctx context.Context, handlerName, source string) (*handler.Artifact, error) {
	a := &handler.Artifact{HandlerName: handlerName, Source: source}
	if s.artifacts == nil {
		s.artifacts = map[string]*handler.Artifact{}
	}
	s.artifacts[handlerName] = a
	return a, nil
}
func (s *fakeRemoteStore) Update(ctx context.Context, handlerName, source, expectedVersion string) (*handler.Artifact, error) {
	return s.Create(ctx, handlerName, source)
}

type alwaysValidGate struct{}

func (alwaysValidGate) Validate(source string) (bool, string) { return true, "" }

type alwaysInvalidGate struct{}

func (alwaysInvalidGate) Validate(source string) (bool, string) { return false, "forbidden_token: os/exec" }

type fakeStateStore struct{ values map[string]string }

func (s *fakeStateStore) Load(ctx context.Context, botTokenID, key string) (string, bool, error) {
	v, ok := s.values[botTokenID+":"+key]
	return v, ok, nil
}
func (s *fakeStateStore) Save(ctx context.Context, botTokenID, key, value string) error {
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[botTokenID+":"+key] = value
	return nil
}

type fakeRegistryRepo struct {
	byHandlerName map[shared.HandlerName]*registry.Entry
	updated       []*registry.Entry
}

func (r *fakeRegistryRepo) Create(ctx context.Context, entry *registry.Entry) error { return nil }
func (r *fakeRegistryRepo) GetByToken(ctx context.Context, token shared.BotToken) (*registry.Entry, error) {
	return nil, shared.ErrNotFound
}
func (r *fakeRegistryRepo) GetByHandlerName(ctx context.Context, name shared.HandlerName) (*registry.Entry, error) {
	e, ok := r.byHandlerName[name]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return e, nil
}
func (r *fakeRegistryRepo) GetByBotTokenID(ctx context.Context, botTokenID string) (*registry.Entry, error) {
	return nil, shared.ErrNotFound
}
func (r *fakeRegistryRepo) Update(ctx context.Context, entry *registry.Entry) error {
	r.updated = append(r.updated, entry)
	return nil
}
func (r *fakeRegistryRepo) ListActive(ctx context.Context) ([]*registry.Entry, error) { return nil, nil }
func (r *fakeRegistryRepo) Count(ctx context.Context) (int, error)                     { return 0, nil }

func descriptorSource(t *testing.T, d *handler.HandlerDescriptor) string {
	t.Helper()
	block, err := handler.RenderDescriptorBlock(d)
	require.NoError(t, err)
	return "package generated\n\n" + block + "\n"
}

func newTestMirror(t *testing.T) *artifactstore.LocalMirror {
	t.Helper()
	m, err := artifactstore.NewLocalMirror(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestCache_Load_MissesMirrorAndRemote_ThenMemoises(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{
		Commands: []handler.CommandRule{{Match: "/start", Reply: handler.ReplyTemplate{Text: "hi"}}},
	}
	remote := &fakeRemoteStore{artifacts: map[string]*handler.Artifact{
		"h_abc": {HandlerName: "h_abc", Source: descriptorSource(t, descriptor)},
	}}

	c := New(&fakeRegistryRepo{}, newTestMirror(t), remote, alwaysValidGate{}, &fakeStateStore{}, NewInMemoryCache(), nil)

	h, err := c.Load(context.Background(), "h_abc")
	require.NoError(t, err)
	require.NotNil(t, h)

	reply, err := h.HandleMessage(context.Background(), "/start", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", reply.Text)

	// second load hits the in-memory cache, not the remote store.
	remote.artifacts = map[string]*handler.Artifact{}
	h2, err := c.Load(context.Background(), "h_abc")
	require.NoError(t, err)
	assert.Same(t, h, h2)
}

func TestCache_Load_RejectedByGate_Quarantines(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{
		Commands: []handler.CommandRule{{Match: "/start", Reply: handler.ReplyTemplate{Text: "hi"}}},
	}
	remote := &fakeRemoteStore{artifacts: map[string]*handler.Artifact{
		"h_bad": {HandlerName: "h_bad", Source: descriptorSource(t, descriptor)},
	}}
	reg := &fakeRegistryRepo{byHandlerName: map[shared.HandlerName]*registry.Entry{
		"h_bad": {HandlerName: "h_bad"},
	}}

	c := New(reg, newTestMirror(t), remote, alwaysInvalidGate{}, &fakeStateStore{}, NewInMemoryCache(), nil)

	_, err := c.Load(context.Background(), "h_bad")
	require.ErrorIs(t, err, shared.ErrHandlerQuarantined)
	require.Len(t, reg.updated, 1)
	assert.True(t, reg.updated[0].IsQuarantined())
}

func TestCache_Register_MakesHandlerImmediatelyLoadable(t *testing.T) {
	c := New(&fakeRegistryRepo{}, newTestMirror(t), &fakeRemoteStore{}, alwaysValidGate{}, &fakeStateStore{}, NewInMemoryCache(), nil)

	builtin := handlerDouble{}
	c.Register("creation", builtin)

	h, err := c.Load(context.Background(), "creation")
	require.NoError(t, err)
	assert.Equal(t, builtin, h)
	assert.Contains(t, c.Names(), "creation")
}

func TestCache_Invalidate_ForcesReload(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{
		Commands: []handler.CommandRule{{Match: "/start", Reply: handler.ReplyTemplate{Text: "hi"}}},
	}
	mirror := newTestMirror(t)
	remote := &fakeRemoteStore{artifacts: map[string]*handler.Artifact{
		"h_abc": {HandlerName: "h_abc", Source: descriptorSource(t, descriptor)},
	}}

	c := New(&fakeRegistryRepo{}, mirror, remote, alwaysValidGate{}, &fakeStateStore{}, NewInMemoryCache(), nil)

	h1, err := c.Load(context.Background(), "h_abc")
	require.NoError(t, err)

	c.Invalidate("h_abc")

	h2, err := c.Load(context.Background(), "h_abc")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
}

func TestCache_SyncDirectory_EvictsEntriesMissingFromDisk(t *testing.T) {
	mirror := newTestMirror(t)
	local := NewInMemoryCache()
	local.Put("ghost", handlerDouble{})

	c := New(&fakeRegistryRepo{}, mirror, &fakeRemoteStore{}, alwaysValidGate{}, &fakeStateStore{}, local, nil)

	require.NoError(t, c.SyncDirectory(context.Background()))

	_, ok := local.Get("ghost")
	assert.False(t, ok)
}

func TestCache_SyncDirectory_EagerlyLoadsNewMirroredFiles(t *testing.T) {
	descriptor := &handler.HandlerDescriptor{
		Commands: []handler.CommandRule{{Match: "/start", Reply: handler.ReplyTemplate{Text: "hi"}}},
	}
	mirror := newTestMirror(t)
	require.NoError(t, mirror.Write("h_new", descriptorSource(t, descriptor)))

	c := New(&fakeRegistryRepo{}, mirror, &fakeRemoteStore{}, alwaysValidGate{}, &fakeStateStore{}, NewInMemoryCache(), nil)

	require.NoError(t, c.SyncDirectory(context.Background()))
	assert.Contains(t, c.Names(), "h_new")
}

type handlerDouble struct{}

func (handlerDouble) GetWidget(ctx context.Context) (*handler.Widget, error) { return nil, nil }
func (handlerDouble) HandleMessage(ctx context.Context, text string, msgCtx *handler.MessageContext) (*handler.Reply, error) {
	return nil, nil
}
func (handlerDouble) HandleCallback(ctx context.Context, data string, msgCtx *handler.MessageContext) (*handler.Reply, error) {
	return nil, nil
}
