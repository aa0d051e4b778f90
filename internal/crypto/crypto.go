// Package crypto provides the primitives the vault is built on: argon2id
// password hashing and key derivation, and AES-256-GCM authenticated
// encryption. Nothing here persists state; callers own key lifecycle.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/imatveev/passvault/internal/model"
)

const (
	// SaltLength is the length of salts for both password hashing and
	// key derivation. Secrets with shorter stored salts are rejected.
	SaltLength = 16

	keyLength   = 32
	nonceLength = 12
)

// KDFParams are argon2id cost parameters. They are configuration, not
// constants, so operators can tune them to the host.
type KDFParams struct {
	Time   uint32
	MemKiB uint32
	Par    uint8
}

// DefaultKDFParams match the interactive-login profile used across the
// codebase tests.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 1, MemKiB: 64 * 1024, Par: 4}
}

func (p KDFParams) orDefaults() KDFParams {
	if p.Time == 0 || p.MemKiB == 0 || p.Par == 0 {
		return DefaultKDFParams()
	}
	return p
}

// GenerateSalt returns a fresh random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a fixed-length symmetric key from a password and salt.
// Same (password, salt, params) always yields the same key, which is what
// lets the server re-derive the key on each unlock without storing it.
func DeriveKey(password string, salt []byte, params KDFParams) *MasterKey {
	p := params.orDefaults()
	return NewMasterKey(argon2.IDKey([]byte(password), salt, p.Time, p.MemKiB, p.Par, keyLength))
}

// Encrypt seals plaintext under key with AES-256-GCM. A fresh random
// 12-byte nonce is generated per call; the GCM tag is appended to the
// returned ciphertext.
func Encrypt(plaintext []byte, key *MasterKey) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	nonce = make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aesgcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens ciphertext produced by Encrypt. A tag mismatch (tampered
// data, wrong key, corruption) returns model.ErrAuthenticationFailed and
// never partial plaintext.
func Decrypt(ciphertext, nonce []byte, key *MasterKey) ([]byte, error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, model.ErrAuthenticationFailed
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, model.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// HashPassword produces a one-way argon2id hash of a password in the PHC
// string format. Used for account authentication only; vault keys come
// from DeriveKey.
func HashPassword(password string, params KDFParams) (string, error) {
	p := params.orDefaults()
	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, p.Time, p.MemKiB, p.Par, keyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.MemKiB, p.Time, p.Par,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks a password against an encoded argon2id hash using
// a constant-time comparison.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("malformed password hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("malformed password hash version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var p KDFParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemKiB, &p.Time, &p.Par); err != nil {
		return false, fmt.Errorf("malformed password hash params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("malformed password hash salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("malformed password hash digest: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, p.Time, p.MemKiB, p.Par, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
