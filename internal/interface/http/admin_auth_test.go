package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashToken(t *testing.T, token string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(h)
}

func newTestServer(deps Dependencies) *Server {
	return NewServer(DefaultConfig(), deps)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestAdminAuthMiddleware_NoTokenConfigured_DeniesByDefault(t *testing.T) {
	s := newTestServer(Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/funnel", nil)
	rec := httptest.NewRecorder()

	s.adminAuthMiddleware(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminAuthMiddleware_DevOpenAdmin_BypassesCheck(t *testing.T) {
	s := newTestServer(Dependencies{DevOpenAdmin: true})

	req := httptest.NewRequest(http.MethodGet, "/funnel", nil)
	rec := httptest.NewRecorder()

	s.adminAuthMiddleware(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminAuthMiddleware_WrongToken_Rejected(t *testing.T) {
	s := newTestServer(Dependencies{AdminTokenHash: hashToken(t, "correct-token")})

	req := httptest.NewRequest(http.MethodGet, "/funnel", nil)
	req.Header.Set("X-Admin-Token", "wrong-token")
	rec := httptest.NewRecorder()

	s.adminAuthMiddleware(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuthMiddleware_MissingToken_Rejected(t *testing.T) {
	s := newTestServer(Dependencies{AdminTokenHash: hashToken(t, "correct-token")})

	req := httptest.NewRequest(http.MethodGet, "/funnel", nil)
	rec := httptest.NewRecorder()

	s.adminAuthMiddleware(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminAuthMiddleware_CorrectToken_Allowed(t *testing.T) {
	s := newTestServer(Dependencies{AdminTokenHash: hashToken(t, "correct-token")})

	req := httptest.NewRequest(http.MethodGet, "/funnel", nil)
	req.Header.Set("X-Admin-Token", "correct-token")
	rec := httptest.NewRecorder()

	s.adminAuthMiddleware(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
