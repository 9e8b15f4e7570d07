package handlers

import (
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/auth"
	"github.com/ukydev/fuel-logistics/internal/db"
	"github.com/ukydev/fuel-logistics/internal/middleware"
	"github.com/ukydev/fuel-logistics/internal/models"
)

// SessionStopper ends a user's tracking session.
type SessionStopper interface {
	Stop(userID string) bool
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
	sessions       SessionStopper
}

// NewAuthHandler creates a new authentication handler. sessions may be nil.
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection, sessions SessionStopper) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
		sessions:       sessions,
	}
}

// SignUp creates an account and returns it with a token
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req models.SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	for _, err := range []error{
		h.authService.ValidateEmail(req.Email),
		h.authService.ValidatePassword(req.Password),
		h.authService.ValidateDisplayName(req.DisplayName),
	} {
		if err != nil {
			writeError(w, http.StatusBadRequest, KindValidation, err.Error())
			return
		}
	}

	if _, err := h.userCollection.FindUserByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, KindConflict, "Email already exists")
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		respondError(w, r, err)
		return
	}

	passwordHash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: passwordHash,
		DisplayName:  req.DisplayName,
		Role:         models.RoleDispatcher,
	}
	if err := h.userCollection.InsertUser(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			writeError(w, http.StatusConflict, KindConflict, "Email already exists")
			return
		}
		respondError(w, r, err)
		return
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		respondError(w, r, err)
		return
	}

	log.WithFields(log.Fields{"user_id": user.ID.Hex(), "email": user.Email}).Info("User signed up")
	writeJSON(w, http.StatusCreated, models.AuthResponse{Token: token, User: *user})
}

// SignIn checks credentials and returns a token
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req models.SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, KindValidation, "Email and password are required")
		return
	}

	user, err := h.userCollection.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, r, auth.ErrInvalidCredentials)
			return
		}
		respondError(w, r, err)
		return
	}

	if !user.IsActive {
		respondError(w, r, auth.ErrUserInactive)
		return
	}
	if !h.authService.CheckPassword(req.Password, user.PasswordHash) {
		respondError(w, r, auth.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		log.WithError(err).WithField("user_id", user.ID.Hex()).Warn("Failed to update last login")
	}

	writeJSON(w, http.StatusOK, models.AuthResponse{Token: token, User: *user})
}

// SignOut revokes the presented token and ends the user's tracking session
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, KindAuth, "User context not found")
		return
	}

	if err := h.authService.Revoke(r.Context(), claims); err != nil {
		respondError(w, r, err)
		return
	}
	if h.sessions != nil {
		h.sessions.Stop(claims.UserID)
	}

	log.WithField("user_id", claims.UserID).Info("User signed out")
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the signed-in user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, KindAuth, "User context not found")
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidID) {
			writeError(w, http.StatusNotFound, KindNotFound, "User not found")
			return
		}
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
