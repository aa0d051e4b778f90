package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/imatveev/passvault/internal/api/rest/request"
	"github.com/imatveev/passvault/internal/logger"
	"github.com/imatveev/passvault/internal/model"
)

// MigrationService defines the plaintext-to-encrypted migration
// operations exposed over the API.
type MigrationService interface {
	MigrateUserSecret(ctx context.Context, userID uuid.UUID, kind model.SecretKind, password string) (model.MigrationOutcome, error)
	PurgePlaintext(ctx context.Context, userID uuid.UUID, kind model.SecretKind, password string) (model.MigrationOutcome, error)
	RunBatch(ctx context.Context, kind model.SecretKind, passwords map[uuid.UUID]string) (model.BatchReport, error)
	Status(ctx context.Context) (model.MigrationStatus, error)
}

// Migration handles migration requests. A user migrates their own
// secrets; the password in the request is needed to derive the
// encryption key.
type Migration struct {
	service MigrationService
	logger  *logger.Logger
}

func NewMigration(service MigrationService, logger *logger.Logger) *Migration {
	return &Migration{service: service, logger: logger}
}

type migrateRequest struct {
	Kind     string `json:"kind"`
	Password string `json:"password"`
}

type batchRequest struct {
	Kind      string            `json:"kind"`
	Passwords map[string]string `json:"passwords"`
}

type batchResultResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Outcome string    `json:"outcome"`
	Error   string    `json:"error,omitempty"`
}

type batchReportResponse struct {
	Results []batchResultResponse `json:"results"`
	Failed  int                   `json:"failed"`
}

type migrationCountsResponse struct {
	PlaintextOnly int `json:"plaintext_only"`
	Both          int `json:"both"`
	EncryptedOnly int `json:"encrypted_only"`
}

type migrationStatusResponse struct {
	TOTP  migrationCountsResponse `json:"totp"`
	Phone migrationCountsResponse `json:"phone"`
}

func (h *Migration) Migrate(w http.ResponseWriter, r *http.Request) {
	userID, kind, password, ok := h.decodeMigrate(w, r)
	if !ok {
		return
	}

	outcome, err := h.service.MigrateUserSecret(r.Context(), userID, kind, password)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

func (h *Migration) Purge(w http.ResponseWriter, r *http.Request) {
	userID, kind, password, ok := h.decodeMigrate(w, r)
	if !ok {
		return
	}

	outcome, err := h.service.PurgePlaintext(r.Context(), userID, kind, password)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

// Batch migrates every listed user in one pass. Per-user failures are
// reported in the body, not as an HTTP error.
func (h *Migration) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil || len(req.Passwords) == 0 {
		writeError(w, http.StatusBadRequest, "", "kind and passwords are required")
		return
	}

	kind := model.SecretKind(req.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "", "unknown secret kind")
		return
	}

	passwords := make(map[uuid.UUID]string, len(req.Passwords))
	for raw, password := range req.Passwords {
		userID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "", "invalid user id")
			return
		}
		passwords[userID] = password
	}

	report, err := h.service.RunBatch(r.Context(), kind, passwords)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := batchReportResponse{Results: make([]batchResultResponse, 0, len(report.Results))}
	for _, res := range report.Results {
		item := batchResultResponse{UserID: res.UserID, Outcome: string(res.Outcome)}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		resp.Results = append(resp.Results, item)
	}
	resp.Failed = len(report.Failed())

	writeJSON(w, http.StatusOK, resp)
}

func (h *Migration) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, migrationStatusResponse{
		TOTP:  toCountsResponse(status.TOTP),
		Phone: toCountsResponse(status.Phone),
	})
}

func (h *Migration) decodeMigrate(w http.ResponseWriter, r *http.Request) (uuid.UUID, model.SecretKind, string, bool) {
	userID, ok := request.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "missing authorization")
		return uuid.Nil, "", "", false
	}

	var req migrateRequest
	if err := decodeJSON(r, &req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "", "kind and password are required")
		return uuid.Nil, "", "", false
	}

	kind := model.SecretKind(req.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "", "unknown secret kind")
		return uuid.Nil, "", "", false
	}

	return userID, kind, req.Password, true
}

func toCountsResponse(c model.MigrationCounts) migrationCountsResponse {
	return migrationCountsResponse{
		PlaintextOnly: c.PlaintextOnly,
		Both:          c.Both,
		EncryptedOnly: c.EncryptedOnly,
	}
}
