package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/imatveev/passvault/internal/crypto"
	"github.com/imatveev/passvault/internal/logger"
	"github.com/imatveev/passvault/internal/model"
)

// TwoFactor manages the 2FA TOTP seed, its backup codes, and the recovery
// phone number. Both secrets go through the Secrets service, so the
// account password is required on every operation that touches them.
type TwoFactor struct {
	users   model.UserStore
	store   model.SecretStore
	secrets *Secrets
	deriver *crypto.Deriver
	logger  *logger.Logger
}

func NewTwoFactor(
	users model.UserStore,
	store model.SecretStore,
	secrets *Secrets,
	deriver *crypto.Deriver,
	logger *logger.Logger,
) *TwoFactor {
	return &TwoFactor{
		users:   users,
		store:   store,
		secrets: secrets,
		deriver: deriver,
		logger:  logger,
	}
}

// Enable encrypts the TOTP seed under the account password and stores it
// together with hashed backup codes. An existing 2FA configuration is
// replaced.
func (t *TwoFactor) Enable(ctx context.Context, userID uuid.UUID, password, totpSecret string, backupCodes []string) error {
	if err := t.verifyPassword(ctx, userID, password); err != nil {
		return err
	}
	if totpSecret == "" {
		return fmt.Errorf("totp secret is empty")
	}

	box, err := t.secrets.EncryptSecret(ctx, totpSecret, password)
	if err != nil {
		return err
	}

	hashes := make([]string, 0, len(backupCodes))
	for _, code := range backupCodes {
		h, err := crypto.HashPassword(code, t.deriver.Params())
		if err != nil {
			return fmt.Errorf("failed to hash backup code: %w", err)
		}
		hashes = append(hashes, h)
	}

	secret := model.UserSecret{
		UserID:           userID,
		Kind:             model.SecretKindTOTP,
		Ciphertext:       box.Ciphertext,
		Nonce:            box.Nonce,
		Salt:             box.Salt,
		BackupCodeHashes: hashes,
	}
	if err := t.store.Upsert(ctx, secret); err != nil {
		return err
	}

	t.logger.Info("2fa enabled", "user_id", userID, "backup_codes", len(hashes))
	return nil
}

// Disable removes the 2FA configuration after verifying the password.
func (t *TwoFactor) Disable(ctx context.Context, userID uuid.UUID, password string) error {
	if err := t.verifyPassword(ctx, userID, password); err != nil {
		return err
	}

	err := t.store.Delete(ctx, userID, model.SecretKindTOTP)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}

	t.logger.Info("2fa disabled", "user_id", userID)
	return nil
}

// TOTPSecret decrypts and returns the stored TOTP seed. Absence of a
// stored secret means 2FA is not enabled and surfaces as ErrNotFound.
func (t *TwoFactor) TOTPSecret(ctx context.Context, userID uuid.UUID, password string) (string, error) {
	secret, err := t.store.Get(ctx, userID, model.SecretKindTOTP)
	if err != nil {
		return "", err
	}
	if !secret.HasEncrypted() {
		return "", model.ErrNotFound
	}
	return t.secrets.DecryptSecret(ctx, SecretBox{
		Ciphertext: secret.Ciphertext,
		Nonce:      secret.Nonce,
		Salt:       secret.Salt,
	}, password)
}

// ConsumeBackupCode checks a one-time backup code and removes it from the
// set on a match. Returns false when no code matches.
func (t *TwoFactor) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	secret, err := t.store.Get(ctx, userID, model.SecretKindTOTP)
	if err != nil {
		return false, err
	}

	matched := -1
	for i, h := range secret.BackupCodeHashes {
		ok, err := crypto.VerifyPassword(code, h)
		if err != nil {
			continue
		}
		if ok && matched < 0 {
			matched = i
		}
	}
	if matched < 0 {
		return false, nil
	}

	remaining := make([]string, 0, len(secret.BackupCodeHashes)-1)
	remaining = append(remaining, secret.BackupCodeHashes[:matched]...)
	remaining = append(remaining, secret.BackupCodeHashes[matched+1:]...)

	if err := t.store.UpdateBackupCodes(ctx, userID, remaining); err != nil {
		return false, err
	}

	t.logger.Info("backup code consumed", "user_id", userID, "remaining", len(remaining))
	return true, nil
}

// SetPhone encrypts and stores the recovery phone number.
func (t *TwoFactor) SetPhone(ctx context.Context, userID uuid.UUID, password, phone string) error {
	if err := t.verifyPassword(ctx, userID, password); err != nil {
		return err
	}
	if phone == "" {
		return fmt.Errorf("phone number is empty")
	}

	box, err := t.secrets.EncryptSecret(ctx, phone, password)
	if err != nil {
		return err
	}

	return t.store.Upsert(ctx, model.UserSecret{
		UserID:     userID,
		Kind:       model.SecretKindPhone,
		Ciphertext: box.Ciphertext,
		Nonce:      box.Nonce,
		Salt:       box.Salt,
	})
}

// Phone decrypts and returns the recovery phone number. During the
// migration window a legacy plaintext value may still be the only copy;
// it is returned as-is in that case.
func (t *TwoFactor) Phone(ctx context.Context, userID uuid.UUID, password string) (string, error) {
	secret, err := t.store.Get(ctx, userID, model.SecretKindPhone)
	if err != nil {
		return "", err
	}
	if secret.HasEncrypted() {
		return t.secrets.DecryptSecret(ctx, SecretBox{
			Ciphertext: secret.Ciphertext,
			Nonce:      secret.Nonce,
			Salt:       secret.Salt,
		}, password)
	}
	if secret.HasPlaintext() {
		return *secret.PlaintextLegacy, nil
	}
	return "", model.ErrNotFound
}

func (t *TwoFactor) verifyPassword(ctx context.Context, userID uuid.UUID, password string) error {
	user, err := t.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	ok, err := crypto.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return model.ErrInvalidCredentials
	}
	return nil
}
