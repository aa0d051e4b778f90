package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users. Credential
// rewrites on a master password change go through EntryStore.RekeyAll so
// they commit in the same transaction as the re-encrypted entries.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, user User) (User, error)
}

// VaultCredentials bundles the user-row fields rewritten on a master
// password change. They travel with the rekeyed entries: persisting new
// ciphertexts without the salt that derives their key would strand the
// data, so the two must commit together.
type VaultCredentials struct {
	PasswordHash  string
	VaultSalt     []byte
	KeyCheck      []byte
	KeyCheckNonce []byte
}

// User represents a stored account. PasswordHash is an argon2id encoded
// string; VaultSalt is the per-user KDF salt for the vault master key.
// KeyCheck is a small AEAD ciphertext written at registration and rewritten
// on rekey: decrypting it proves a derived key is correct without touching
// any entries.
type User struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  string
	VaultSalt     []byte
	KeyCheck      []byte
	KeyCheckNonce []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
