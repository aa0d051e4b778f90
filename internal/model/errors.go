package model

import "errors"

var (
	// ErrNotFound is returned for entities that do not exist or are not
	// owned by the requesting user. The two cases are deliberately
	// indistinguishable to callers.
	ErrNotFound = errors.New("not found")

	// ErrAuthenticationFailed is returned when an AEAD tag does not
	// verify: tampered data, wrong key, or a wrong password behind the
	// derived key. Decrypted output is never returned alongside it.
	ErrAuthenticationFailed = errors.New("decryption authentication failed")

	// ErrVaultLocked is returned when an operation needs a master key
	// and the user has no unlock session.
	ErrVaultLocked = errors.New("vault is locked")

	// ErrSessionExpired is returned when an unlock session existed but
	// its TTL has passed. Kept distinct from ErrAuthenticationFailed so
	// clients can re-prompt silently instead of reporting a wrong password.
	ErrSessionExpired = errors.New("vault session expired")

	// ErrMigrationSafety is returned when a plaintext purge is attempted
	// without a verified encrypted twin. Never bypassable.
	ErrMigrationSafety = errors.New("migration safety violation: no verified encrypted copy")

	// ErrEmailTaken is returned on registration with an existing email.
	ErrEmailTaken = errors.New("email is already taken")

	// ErrInvalidCredentials is returned on account password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
