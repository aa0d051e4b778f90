package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/imatveev/passvault/internal/api/rest/request"
	"github.com/imatveev/passvault/internal/logger"
)

// TwoFactorService defines 2FA operations used by the handler.
type TwoFactorService interface {
	Enable(ctx context.Context, userID uuid.UUID, password, totpSecret string, backupCodes []string) error
	Disable(ctx context.Context, userID uuid.UUID, password string) error
	TOTPSecret(ctx context.Context, userID uuid.UUID, password string) (string, error)
	ConsumeBackupCode(ctx context.Context, userID uuid.UUID, code string) (bool, error)
	SetPhone(ctx context.Context, userID uuid.UUID, password, phone string) error
	Phone(ctx context.Context, userID uuid.UUID, password string) (string, error)
}

// TwoFactor handles TOTP, backup code and recovery phone requests.
type TwoFactor struct {
	service TwoFactorService
	logger  *logger.Logger
}

func NewTwoFactor(service TwoFactorService, logger *logger.Logger) *TwoFactor {
	return &TwoFactor{service: service, logger: logger}
}

type enableTwoFactorRequest struct {
	Password    string   `json:"password"`
	TOTPSecret  string   `json:"totp_secret"`
	BackupCodes []string `json:"backup_codes"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type backupCodeRequest struct {
	Code string `json:"code"`
}

type phoneRequest struct {
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

func (h *TwoFactor) Enable(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	var req enableTwoFactorRequest
	if err := decodeJSON(r, &req); err != nil || req.Password == "" || req.TOTPSecret == "" {
		writeError(w, http.StatusBadRequest, "", "password and totp secret are required")
		return
	}

	if err := h.service.Enable(r.Context(), userID, req.Password, req.TOTPSecret, req.BackupCodes); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TwoFactor) Disable(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "", "password is required")
		return
	}

	if err := h.service.Disable(r.Context(), userID, req.Password); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TwoFactor) TOTPSecret(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "", "password is required")
		return
	}

	secret, err := h.service.TOTPSecret(r.Context(), userID, req.Password)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"totp_secret": secret})
}

func (h *TwoFactor) ConsumeBackupCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	var req backupCodeRequest
	if err := decodeJSON(r, &req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "", "code is required")
		return
	}

	accepted, err := h.service.ConsumeBackupCode(r.Context(), userID, req.Code)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

func (h *TwoFactor) SetPhone(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	var req phoneRequest
	if err := decodeJSON(r, &req); err != nil || req.Password == "" || req.Phone == "" {
		writeError(w, http.StatusBadRequest, "", "password and phone are required")
		return
	}

	if err := h.service.SetPhone(r.Context(), userID, req.Password, req.Phone); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TwoFactor) Phone(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "", "password is required")
		return
	}

	phone, err := h.service.Phone(r.Context(), userID, req.Password)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"phone": phone})
}
