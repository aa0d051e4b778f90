package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SecretStore defines persistence operations for per-user auxiliary
// secrets (TOTP seed, phone number) and their 2FA backup codes.
type SecretStore interface {
	Get(ctx context.Context, userID uuid.UUID, kind SecretKind) (UserSecret, error)
	Upsert(ctx context.Context, secret UserSecret) error
	Delete(ctx context.Context, userID uuid.UUID, kind SecretKind) error
	ClearPlaintext(ctx context.Context, userID uuid.UUID, kind SecretKind) error
	ListWithPlaintext(ctx context.Context, kind SecretKind) ([]uuid.UUID, error)
	CountByMigrationState(ctx context.Context, kind SecretKind) (MigrationCounts, error)
	UpdateBackupCodes(ctx context.Context, userID uuid.UUID, hashes []string) error
}

// SecretKind names an auxiliary secret slot. Each user has at most one
// secret per kind.
type SecretKind string

const (
	// SecretKindTOTP is the 2FA TOTP seed.
	SecretKindTOTP SecretKind = "totp"
	// SecretKindPhone is the recovery phone number.
	SecretKindPhone SecretKind = "phone"
)

// Valid reports whether the kind is known.
func (k SecretKind) Valid() bool {
	return k == SecretKindTOTP || k == SecretKindPhone
}

// UserSecret is one auxiliary secret. During the plaintext-to-encrypted
// migration window a legacy plaintext value may coexist with the encrypted
// copy; PlaintextLegacy is nil once the plaintext has been purged.
//
// BackupCodeHashes is populated only for the totp kind: argon2id-hashed
// one-time codes, removed from the slice as they are consumed.
type UserSecret struct {
	UserID           uuid.UUID
	Kind             SecretKind
	Ciphertext       []byte
	Nonce            []byte
	Salt             []byte
	PlaintextLegacy  *string
	BackupCodeHashes []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasEncrypted reports whether an encrypted copy is present.
func (s UserSecret) HasEncrypted() bool {
	return len(s.Ciphertext) > 0 && len(s.Salt) > 0
}

// HasPlaintext reports whether the legacy plaintext is still present.
func (s UserSecret) HasPlaintext() bool {
	return s.PlaintextLegacy != nil && *s.PlaintextLegacy != ""
}

// MigrationComplete reports whether this secret has fully left the legacy
// representation: encrypted copy present, plaintext gone.
func (s UserSecret) MigrationComplete() bool {
	return !s.HasPlaintext() && s.HasEncrypted()
}

// MigrationCounts is the operator-facing snapshot of migration progress
// for one secret kind.
type MigrationCounts struct {
	PlaintextOnly int
	Both          int
	EncryptedOnly int
}
