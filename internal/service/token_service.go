package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/imatveev/passvault/internal/logger"
	"github.com/imatveev/passvault/internal/model"
)

// Tokens issues, refreshes, and revokes the access/refresh token pair.
// Refresh tokens are stored hashed and rotated on every use; a presented
// refresh token is valid only while its stored record is live and its
// hash matches.
type Tokens struct {
	manager model.TokenManager
	store   model.RefreshTokenStore
	logger  *logger.Logger
}

func NewTokens(manager model.TokenManager, store model.RefreshTokenStore, logger *logger.Logger) *Tokens {
	return &Tokens{manager: manager, store: store, logger: logger}
}

// refreshTTL mirrors the token manager's refresh validity. It is used
// only for the persisted record; cryptographic validity is enforced by
// the manager at parse time.
const refreshTTL = 30 * 24 * time.Hour

func (s *Tokens) Issue(ctx context.Context, userID uuid.UUID) (access string, refresh string, err error) {
	return s.mintPair(ctx, userID, nil)
}

// Refresh rotates the pair: the presented refresh token is revoked and a
// new pair is issued, linked to the old one for audit.
func (s *Tokens) Refresh(ctx context.Context, presented string) (access string, refresh string, err error) {
	userID, jti, err := s.manager.ParseRefreshToken(presented)
	if err != nil {
		return "", "", err
	}

	record, err := s.store.GetByJTI(ctx, jti)
	if err != nil {
		return "", "", err
	}

	if err := checkRefreshRecord(record, hashRefresh(presented), time.Now()); err != nil {
		return "", "", err
	}

	if err := s.store.RevokeByJTI(ctx, jti); err != nil {
		return "", "", fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return s.mintPair(ctx, userID, &record.JTI)
}

func (s *Tokens) RevokeByToken(ctx context.Context, presented string) error {
	_, jti, err := s.manager.ParseRefreshToken(presented)
	if err != nil {
		return err
	}
	return s.store.RevokeByJTI(ctx, jti)
}

// RevokeAllForUser invalidates every live refresh token of the user.
// Called after a master password change so old devices must log in again.
func (s *Tokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return s.store.RevokeAllByUser(ctx, userID)
}

func (s *Tokens) GetUserID(ctx context.Context, accessToken string) (uuid.UUID, error) {
	return s.manager.ParseAccessToken(accessToken)
}

func (s *Tokens) mintPair(ctx context.Context, userID uuid.UUID, rotatedFrom *string) (string, string, error) {
	access, err := s.manager.GenerateAccessToken(userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access token: %w", err)
	}

	refresh, jti, err := s.manager.GenerateRefreshToken(userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := time.Now()
	record := model.RefreshToken{
		ID:             uuid.New(),
		JTI:            jti,
		UserID:         userID,
		TokenHash:      hashRefresh(refresh),
		IssuedAt:       now,
		ExpiresAt:      now.Add(refreshTTL),
		RotatedFromJTI: rotatedFrom,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return "", "", fmt.Errorf("failed to persist refresh token: %w", err)
	}

	return access, refresh, nil
}

func hashRefresh(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

func checkRefreshRecord(rt model.RefreshToken, presentedHash []byte, now time.Time) error {
	if rt.RevokedAt != nil {
		return model.ErrTokenRevoked
	}
	if now.After(rt.ExpiresAt) {
		return model.ErrTokenExpired
	}
	if subtle.ConstantTimeCompare(rt.TokenHash, presentedHash) != 1 {
		return model.ErrTokenMismatch
	}
	return nil
}
