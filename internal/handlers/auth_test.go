package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fuel-logistics/internal/auth"
	"github.com/ukydev/fuel-logistics/internal/db"
	"github.com/ukydev/fuel-logistics/internal/middleware"
	"github.com/ukydev/fuel-logistics/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockUserCollection is a mock implementation of UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) InsertUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil {
		user.ID = primitive.NewObjectID()
		user.IsActive = true
	}
	return args.Error(0)
}

func (m *MockUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type stopRecorder struct {
	stopped []string
}

func (s *stopRecorder) Stop(userID string) bool {
	s.stopped = append(s.stopped, userID)
	return true
}

func newTestAuthService(t *testing.T) *auth.Service {
	t.Helper()
	authService, err := auth.NewService("handlers-test-secret", time.Hour, nil)
	require.NoError(t, err)
	return authService
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(method, target, bytes.NewBuffer(data))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestAuthHandler_SignIn(t *testing.T) {
	authService := newTestAuthService(t)
	passwordHash, err := authService.HashPassword("password123")
	require.NoError(t, err)

	t.Run("successful sign in", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, nil)
		user := &models.User{
			ID:           primitive.NewObjectID(),
			Email:        "ops@example.com",
			PasswordHash: passwordHash,
			Role:         models.RoleDispatcher,
			IsActive:     true,
		}
		users.On("FindUserByEmail", mock.Anything, "ops@example.com").Return(user, nil)
		users.On("UpdateLastLogin", mock.Anything, user.ID.Hex()).Return(nil)

		req := jsonRequest(t, "POST", "/api/auth/signin", models.SignInRequest{Email: " OPS@example.com", Password: "password123"})
		w := httptest.NewRecorder()
		handler.SignIn(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response models.AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, user.Email, response.User.Email)
		assert.NotContains(t, w.Body.String(), "password_hash")
		users.AssertExpectations(t)
	})

	t.Run("unknown email", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, nil)
		users.On("FindUserByEmail", mock.Anything, "nobody@example.com").Return(nil, db.ErrNotFound)

		req := jsonRequest(t, "POST", "/api/auth/signin", models.SignInRequest{Email: "nobody@example.com", Password: "password123"})
		w := httptest.NewRecorder()
		handler.SignIn(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, KindAuth, decodeError(t, w).Kind)
	})

	t.Run("wrong password", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, nil)
		user := &models.User{ID: primitive.NewObjectID(), Email: "ops@example.com", PasswordHash: passwordHash, IsActive: true}
		users.On("FindUserByEmail", mock.Anything, "ops@example.com").Return(user, nil)

		req := jsonRequest(t, "POST", "/api/auth/signin", models.SignInRequest{Email: "ops@example.com", Password: "wrongpassword"})
		w := httptest.NewRecorder()
		handler.SignIn(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		users.AssertNotCalled(t, "UpdateLastLogin", mock.Anything, mock.Anything)
	})

	t.Run("inactive user", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, nil)
		user := &models.User{ID: primitive.NewObjectID(), Email: "ops@example.com", PasswordHash: passwordHash, IsActive: false}
		users.On("FindUserByEmail", mock.Anything, "ops@example.com").Return(user, nil)

		req := jsonRequest(t, "POST", "/api/auth/signin", models.SignInRequest{Email: "ops@example.com", Password: "password123"})
		w := httptest.NewRecorder()
		handler.SignIn(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockUserCollection), nil)
		req := jsonRequest(t, "POST", "/api/auth/signin", models.SignInRequest{Email: "ops@example.com"})
		w := httptest.NewRecorder()
		handler.SignIn(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, KindValidation, decodeError(t, w).Kind)
	})

	t.Run("invalid json", func(t *testing.T) {
		handler := NewAuthHandler(authService, new(MockUserCollection), nil)
		req := httptest.NewRequest("POST", "/api/auth/signin", bytes.NewBufferString("{bad json"))
		w := httptest.NewRecorder()
		handler.SignIn(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_SignUp(t *testing.T) {
	authService := newTestAuthService(t)

	t.Run("successful sign up", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, nil)
		users.On("FindUserByEmail", mock.Anything, "new@example.com").Return(nil, db.ErrNotFound)
		users.On("InsertUser", mock.Anything, mock.AnythingOfType("*models.User")).Return(nil)

		req := jsonRequest(t, "POST", "/api/auth/signup", models.SignUpRequest{Email: "new@example.com", Password: "password123", DisplayName: "New Dispatcher"})
		w := httptest.NewRecorder()
		handler.SignUp(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response models.AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, models.RoleDispatcher, response.User.Role)

		claims, err := authService.ValidateToken(context.Background(), response.Token)
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", claims.Email)
		users.AssertExpectations(t)
	})

	t.Run("email already exists", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, nil)
		users.On("FindUserByEmail", mock.Anything, "taken@example.com").Return(&models.User{Email: "taken@example.com"}, nil)

		req := jsonRequest(t, "POST", "/api/auth/signup", models.SignUpRequest{Email: "taken@example.com", Password: "password123", DisplayName: "Taken"})
		w := httptest.NewRecorder()
		handler.SignUp(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, KindConflict, decodeError(t, w).Kind)
		users.AssertNotCalled(t, "InsertUser", mock.Anything, mock.Anything)
	})

	t.Run("unique index race", func(t *testing.T) {
		users := new(MockUserCollection)
		handler := NewAuthHandler(authService, users, nil)
		users.On("FindUserByEmail", mock.Anything, "race@example.com").Return(nil, db.ErrNotFound)
		users.On("InsertUser", mock.Anything, mock.Anything).Return(db.ErrDuplicate)

		req := jsonRequest(t, "POST", "/api/auth/signup", models.SignUpRequest{Email: "race@example.com", Password: "password123", DisplayName: "Race"})
		w := httptest.NewRecorder()
		handler.SignUp(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	tests := []struct {
		name string
		req  models.SignUpRequest
	}{
		{"invalid email", models.SignUpRequest{Email: "not-an-email", Password: "password123"}},
		{"short password", models.SignUpRequest{Email: "new@example.com", Password: "short", DisplayName: "New"}},
		{"missing display name", models.SignUpRequest{Email: "new@example.com", Password: "password123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserCollection)
			handler := NewAuthHandler(authService, users, nil)

			w := httptest.NewRecorder()
			handler.SignUp(w, jsonRequest(t, "POST", "/api/auth/signup", tt.req))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, KindValidation, decodeError(t, w).Kind)
			users.AssertNotCalled(t, "FindUserByEmail", mock.Anything, mock.Anything)
		})
	}
}

func TestAuthHandler_SignOut(t *testing.T) {
	authService := newTestAuthService(t)
	sessions := &stopRecorder{}
	handler := NewAuthHandler(authService, new(MockUserCollection), sessions)

	user := &models.User{ID: primitive.NewObjectID(), Email: "ops@example.com", Role: models.RoleDispatcher}
	token, err := authService.GenerateToken(user)
	require.NoError(t, err)
	claims, err := authService.ValidateToken(context.Background(), token)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/auth/signout", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, claims))
	w := httptest.NewRecorder()
	handler.SignOut(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{user.ID.Hex()}, sessions.stopped)

	_, err = authService.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrRevokedToken)
}

func TestAuthHandler_Me(t *testing.T) {
	authService := newTestAuthService(t)
	users := new(MockUserCollection)
	handler := NewAuthHandler(authService, users, nil)

	user := &models.User{ID: primitive.NewObjectID(), Email: "ops@example.com", DisplayName: "Ops", Role: models.RoleViewer, IsActive: true}
	users.On("FindUserByID", mock.Anything, user.ID.Hex()).Return(user, nil)

	t.Run("returns current user", func(t *testing.T) {
		claims := &models.Claims{UserID: user.ID.Hex(), Email: user.Email, Role: user.Role}
		req := httptest.NewRequest("GET", "/api/auth/me", nil)
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, claims))
		w := httptest.NewRecorder()
		handler.Me(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var got models.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "Ops", got.DisplayName)
	})

	t.Run("no user context", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Me(w, httptest.NewRequest("GET", "/api/auth/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
