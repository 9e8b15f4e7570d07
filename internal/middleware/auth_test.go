package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fuel-logistics/internal/auth"
	"github.com/ukydev/fuel-logistics/internal/cache"
	"github.com/ukydev/fuel-logistics/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newAuthService(t *testing.T) *auth.Service {
	t.Helper()
	service, err := auth.NewService("middleware-test-secret", time.Hour, nil)
	require.NoError(t, err)
	return service
}

func tokenFor(t *testing.T, service *auth.Service, role models.Role) (string, *models.User) {
	t.Helper()
	user := &models.User{ID: primitive.NewObjectID(), Email: "ops@example.com", Role: role}
	token, err := service.GenerateToken(user)
	require.NoError(t, err)
	return token, user
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	authService := newAuthService(t)
	middleware := NewAuthMiddleware(authService)

	t.Run("valid token", func(t *testing.T) {
		token, user := tokenFor(t, authService, models.RoleDispatcher)

		req := httptest.NewRequest("GET", "/api/trucks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			claims, ok := GetUserFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, user.Email, claims.Email)
			assert.Equal(t, user.Role, claims.Role)
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing authorization header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/trucks", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"kind":"auth"`)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/trucks", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("revoked token", func(t *testing.T) {
		token, _ := tokenFor(t, authService, models.RoleDispatcher)
		claims, err := authService.ValidateToken(context.Background(), token)
		require.NoError(t, err)
		require.NoError(t, authService.Revoke(context.Background(), claims))

		req := httptest.NewRequest("GET", "/api/trucks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		middleware.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("revocation store down", func(t *testing.T) {
		mr := miniredis.RunT(t)
		redisCache, err := cache.NewRedisAdapter("redis://" + mr.Addr())
		require.NoError(t, err)
		t.Cleanup(func() { _ = redisCache.Close() })
		service, err := auth.NewService("middleware-test-secret", time.Hour, redisCache)
		require.NoError(t, err)
		token, _ := tokenFor(t, service, models.RoleDispatcher)
		mr.Close()

		req := httptest.NewRequest("GET", "/api/trucks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		NewAuthMiddleware(service).Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"kind":"external"`)
	})

	t.Run("stream accepts query token", func(t *testing.T) {
		token, _ := tokenFor(t, authService, models.RoleViewer)
		req := httptest.NewRequest("GET", "/api/tracking/stream?token="+token, nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
	})

	t.Run("query token ignored elsewhere", func(t *testing.T) {
		token, _ := tokenFor(t, authService, models.RoleViewer)
		req := httptest.NewRequest("GET", "/api/trucks?token="+token, nil)
		w := httptest.NewRecorder()

		middleware.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("skip auth path", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/auth/signin", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthMiddleware_RequirePermission(t *testing.T) {
	authService := newAuthService(t)
	middleware := NewAuthMiddleware(authService)

	tests := []struct {
		name     string
		role     models.Role
		action   string
		expected int
	}{
		{"admin manages fleet", models.RoleAdmin, models.PermManageFleet, http.StatusOK},
		{"dispatcher tracks", models.RoleDispatcher, models.PermTrack, http.StatusOK},
		{"viewer cannot manage fleet", models.RoleViewer, models.PermManageFleet, http.StatusForbidden},
		{"viewer cannot track", models.RoleViewer, models.PermTrack, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _ := tokenFor(t, authService, tt.role)
			req := httptest.NewRequest("POST", "/api/trucks", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()

			ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			middleware.Authenticate(middleware.RequirePermission(tt.action)(ok)).ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
		})
	}

	t.Run("no user context", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/trucks", nil)
		w := httptest.NewRecorder()
		middleware.RequirePermission(models.PermViewFleet)(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimitMiddleware()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	handler := limiter.RateLimit(2, 60)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(ip string) int {
		req := httptest.NewRequest("POST", "/api/auth/signin", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"))

	now = now.Add(61 * time.Second)
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", getClientIP(req))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", getClientIP(req))

	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", getClientIP(req))
}
