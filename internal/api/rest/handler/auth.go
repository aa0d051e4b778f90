package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/imatveev/passvault/internal/api/rest/request"
	"github.com/imatveev/passvault/internal/logger"
	"github.com/imatveev/passvault/internal/model"
)

// AuthService defines account operations used by the auth handler.
type AuthService interface {
	Register(ctx context.Context, email, password string) (model.User, error)
	Login(ctx context.Context, email, password string) (access string, refresh string, err error)
	Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error
}

// TokenRefresher rotates a refresh token into a new pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (access string, refresh string, err error)
}

// Auth handles registration, login and token lifecycle requests.
type Auth struct {
	service AuthService
	tokens  TokenRefresher
	logger  *logger.Logger
}

func NewAuth(service AuthService, tokens TokenRefresher, logger *logger.Logger) *Auth {
	return &Auth{service: service, tokens: tokens, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "", "email and password are required")
		return
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":    user.ID.String(),
		"email": user.Email,
	})
}

func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	access, refresh, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{AccessToken: access, RefreshToken: refresh})
}

func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "", "refresh token is required")
		return
	}

	access, refresh, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{AccessToken: access, RefreshToken: refresh})
}

func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	if err := h.service.Logout(r.Context(), userID, req.RefreshToken); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
