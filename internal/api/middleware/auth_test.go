package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_RejectsMissingHeader(t *testing.T) {
	cfg := AuthConfig{Enabled: true, APIKeys: map[string]*User{}}
	handler := AuthMiddleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_AcceptsValidKey(t *testing.T) {
	cfg := AuthConfig{Enabled: true, APIKeys: map[string]*User{
		"secret-key": {APIKey: "secret-key", Role: RoleAdmin},
	}}
	var sawUser *User
	handler := AuthMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUser, _ = GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AuthorizationHeader, "ApiKey secret-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	if assert.NotNil(t, sawUser) {
		assert.Equal(t, RoleAdmin, sawUser.Role)
	}
}

func TestAuthMiddleware_DisabledPassesThrough(t *testing.T) {
	cfg := AuthConfig{Enabled: false}
	handler := AuthMiddleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminMiddleware_RejectsLowerRole(t *testing.T) {
	handler := AdminMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserContextKey, &User{Role: RoleOperator}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminMiddleware_AllowsAdmin(t *testing.T) {
	handler := AdminMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserContextKey, &User{Role: RoleAdmin}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
