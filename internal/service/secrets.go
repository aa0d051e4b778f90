package service

import (
	"context"
	"fmt"

	"github.com/imatveev/passvault/internal/crypto"
	"github.com/imatveev/passvault/internal/logger"
)

// SecretBox is the encrypted form of one auxiliary secret: AEAD output
// plus the per-secret random salt its key was derived from.
type SecretBox struct {
	Ciphertext []byte
	Nonce      []byte
	Salt       []byte
}

// Secrets encrypts and decrypts single auxiliary secrets (TOTP seed,
// phone number) under keys derived per call from the account password and
// a per-secret salt. Unlike the vault session, nothing is cached: the
// password is required on every call and the derived key is zeroed before
// returning. The narrower unlock window is the point; compromise of a
// vault session key exposes nothing stored through this service.
type Secrets struct {
	deriver *crypto.Deriver
	logger  *logger.Logger
}

func NewSecrets(deriver *crypto.Deriver, logger *logger.Logger) *Secrets {
	return &Secrets{deriver: deriver, logger: logger}
}

// EncryptSecret seals plaintext under a key derived from password and a
// fresh random salt.
func (s *Secrets) EncryptSecret(ctx context.Context, plaintext, password string) (SecretBox, error) {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return SecretBox{}, fmt.Errorf("failed to generate secret salt: %w", err)
	}

	key, err := s.deriver.Derive(ctx, password, salt)
	if err != nil {
		return SecretBox{}, fmt.Errorf("failed to derive secret key: %w", err)
	}
	defer key.Zero()

	ciphertext, nonce, err := crypto.Encrypt([]byte(plaintext), key)
	if err != nil {
		return SecretBox{}, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	return SecretBox{Ciphertext: ciphertext, Nonce: nonce, Salt: salt}, nil
}

// DecryptSecret re-derives the key from the stored salt and opens the
// box. A wrong password surfaces as model.ErrAuthenticationFailed from
// the tag check.
func (s *Secrets) DecryptSecret(ctx context.Context, box SecretBox, password string) (string, error) {
	key, err := s.deriver.Derive(ctx, password, box.Salt)
	if err != nil {
		return "", fmt.Errorf("failed to derive secret key: %w", err)
	}
	defer key.Zero()

	plaintext, err := crypto.Decrypt(box.Ciphertext, box.Nonce, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// MigrateToEncrypted is EncryptSecret under a name that makes migration
// call sites auditable. Only the migration coordinator calls it.
func (s *Secrets) MigrateToEncrypted(ctx context.Context, plaintext, password string) (SecretBox, error) {
	s.logger.Info("migrating legacy plaintext secret to encrypted form")
	return s.EncryptSecret(ctx, plaintext, password)
}
