package artifact

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/telegram-bot-factory/internal/domain/shared"
)

func newTestGithubClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{Token: "test-token", Owner: "acme", Repo: "handlers", Branch: "main"})
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	c.gh.BaseURL = base
	return c
}

func TestGithubClient_Get_DecodesBase64Content(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("package generated"))
	client := newTestGithubClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/handlers/contents/handlers/h_abc.go.txt", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"file","encoding":"base64","content":"` + encoded + `","sha":"abc123"}`))
	})

	artifact, err := client.Get(context.Background(), "h_abc")
	require.NoError(t, err)
	assert.Equal(t, "package generated", artifact.Source)
	assert.Equal(t, "abc123", artifact.Version)
}

func TestGithubClient_Get_404_ReturnsArtifactNotFound(t *testing.T) {
	client := newTestGithubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})

	_, err := client.Get(context.Background(), "h_missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrArtifactNotFound)
}

func TestGithubClient_Exists_TrueWhenFound(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("x"))
	client := newTestGithubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"file","encoding":"base64","content":"` + encoded + `","sha":"s1"}`))
	})

	ok, err := client.Exists(context.Background(), "h_abc")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGithubClient_Exists_FalseWhenNotFound(t *testing.T) {
	client := newTestGithubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})

	ok, err := client.Exists(context.Background(), "h_missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGithubClient_Create_Conflict_ReturnsArtifactConflict(t *testing.T) {
	client := newTestGithubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Invalid request"}`))
	})

	_, err := client.Create(context.Background(), "h_new", "package generated")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrArtifactConflict)
}

func TestGithubClient_Create_Success(t *testing.T) {
	client := newTestGithubClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":{"sha":"newsha","name":"h_new.go.txt"},"commit":{"sha":"commitsha"}}`))
	})

	artifact, err := client.Create(context.Background(), "h_new", "package generated")
	require.NoError(t, err)
	assert.Equal(t, "newsha", artifact.Version)
	assert.Equal(t, "package generated", artifact.Source)
}
