package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/imatveev/passvault/internal/api/rest/request"
	"github.com/imatveev/passvault/internal/logger"
	"github.com/imatveev/passvault/internal/model"
	"github.com/imatveev/passvault/internal/session"
)

// VaultService defines vault operations used by the vault handler.
type VaultService interface {
	Unlock(ctx context.Context, userID uuid.UUID, masterPassword string) (session.Session, error)
	Lock(userID uuid.UUID) bool
	Status(userID uuid.UUID) (session.Session, bool)
	CreateEntry(ctx context.Context, userID uuid.UUID, params model.CreateEntryParams) (model.Entry, error)
	GetEntry(ctx context.Context, userID, entryID uuid.UUID) (model.DecryptedEntry, error)
	UpdateEntry(ctx context.Context, userID, entryID uuid.UUID, patch model.UpdateEntryParams) (model.Entry, error)
	DeleteEntry(ctx context.Context, userID, entryID uuid.UUID) error
	ListEntries(ctx context.Context, userID uuid.UUID, params model.SearchParams) ([]model.Entry, error)
	ChangeMasterPassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) (int, error)
	PutAttachment(ctx context.Context, userID, entryID uuid.UUID, fileName string, reader io.Reader) (model.Attachment, error)
	GetAttachment(ctx context.Context, userID, attachmentID uuid.UUID) (model.Attachment, []byte, error)
	DeleteAttachment(ctx context.Context, userID, attachmentID uuid.UUID) error
}

// Vault handles unlock/lock and entry requests.
type Vault struct {
	service VaultService
	logger  *logger.Logger
}

func NewVault(service VaultService, logger *logger.Logger) *Vault {
	return &Vault{service: service, logger: logger}
}

type unlockRequest struct {
	MasterPassword string `json:"master_password"`
}

type sessionResponse struct {
	Unlocked  bool       `json:"unlocked"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type entryRequest struct {
	Name     string          `json:"name"`
	URL      string          `json:"url"`
	Category string          `json:"category"`
	Favorite bool            `json:"favorite"`
	Data     model.EntryData `json:"data"`
}

type entryPatchRequest struct {
	Name     *string          `json:"name"`
	URL      *string          `json:"url"`
	Category *string          `json:"category"`
	Favorite *bool            `json:"favorite"`
	Data     *model.EntryData `json:"data"`
}

type entryResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url,omitempty"`
	Category  string    `json:"category"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type decryptedEntryResponse struct {
	entryResponse
	Data model.EntryData `json:"data"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type attachmentResponse struct {
	ID        uuid.UUID `json:"id"`
	EntryID   uuid.UUID `json:"entry_id"`
	FileName  string    `json:"file_name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func toEntryResponse(e model.Entry) entryResponse {
	return entryResponse{
		ID:        e.ID,
		Name:      e.Name,
		URL:       e.URL,
		Category:  string(e.Category),
		Favorite:  e.Favorite,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func toAttachmentResponse(a model.Attachment) attachmentResponse {
	return attachmentResponse{
		ID:        a.ID,
		EntryID:   a.EntryID,
		FileName:  a.FileName,
		Size:      a.Size,
		CreatedAt: a.CreatedAt,
	}
}

func (h *Vault) Unlock(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	var req unlockRequest
	if err := decodeJSON(r, &req); err != nil || req.MasterPassword == "" {
		writeError(w, http.StatusBadRequest, "", "master password is required")
		return
	}

	sess, err := h.service.Unlock(r.Context(), userID, req.MasterPassword)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Unlocked: true, ExpiresAt: &sess.ExpiresAt})
}

func (h *Vault) Lock(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	h.service.Lock(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Vault) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	sess, unlocked := h.service.Status(userID)
	resp := sessionResponse{Unlocked: unlocked}
	if unlocked {
		resp.ExpiresAt = &sess.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Vault) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "", "current and new passwords are required")
		return
	}

	count, err := h.service.ChangeMasterPassword(r.Context(), userID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"reencrypted_entries": count})
}

func (h *Vault) CreateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "", "name is required")
		return
	}

	entry, err := h.service.CreateEntry(r.Context(), userID, model.CreateEntryParams{
		Name:     req.Name,
		URL:      req.URL,
		Category: model.EntryCategory(req.Category),
		Favorite: req.Favorite,
		Data:     req.Data,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Vault) GetEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid entry id")
		return
	}

	entry, err := h.service.GetEntry(r.Context(), userID, entryID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, decryptedEntryResponse{
		entryResponse: toEntryResponse(entry.Entry),
		Data:          entry.Data,
	})
}

func (h *Vault) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid entry id")
		return
	}

	var req entryPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	patch := model.UpdateEntryParams{
		Name:     req.Name,
		URL:      req.URL,
		Favorite: req.Favorite,
		Data:     req.Data,
	}
	if req.Category != nil {
		category := model.EntryCategory(*req.Category)
		patch.Category = &category
	}

	entry, err := h.service.UpdateEntry(r.Context(), userID, entryID, patch)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Vault) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid entry id")
		return
	}

	if err := h.service.DeleteEntry(r.Context(), userID, entryID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Vault) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	params := model.SearchParams{
		Query:    r.URL.Query().Get("query"),
		Category: model.EntryCategory(r.URL.Query().Get("category")),
		Page:     queryInt(r, "page", 1),
		Limit:    queryInt(r, "limit", 50),
	}

	entries, err := h.service.ListEntries(r.Context(), userID, params)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Vault) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid entry id")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "file is required")
		return
	}
	defer file.Close()

	att, err := h.service.PutAttachment(r.Context(), userID, entryID, header.Filename, file)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAttachmentResponse(att))
}

func (h *Vault) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	attachmentID, err := uuid.Parse(chi.URLParam(r, "attachmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid attachment id")
		return
	}

	att, data, err := h.service.GetAttachment(r.Context(), userID, attachmentID)
	if err != nil {
		handleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write attachment response", "attachment_id", att.ID, "error", err)
	}
}

func (h *Vault) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return
	}

	attachmentID, err := uuid.Parse(chi.URLParam(r, "attachmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid attachment id")
		return
	}

	if err := h.service.DeleteAttachment(r.Context(), userID, attachmentID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
