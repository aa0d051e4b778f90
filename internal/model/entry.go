package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntryStore defines persistence operations for vault entries.
// Ciphertext columns are opaque to the store; encryption happens in the
// vault service before data reaches this interface.
type EntryStore interface {
	Create(ctx context.Context, entry Entry) (Entry, error)
	GetByID(ctx context.Context, id uuid.UUID) (Entry, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]Entry, error)
	Search(ctx context.Context, userID uuid.UUID, params SearchParams) ([]Entry, error)
	Update(ctx context.Context, entry Entry) (Entry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// RekeyAll rewrites ciphertexts for all of a user's entries, upserts
	// the re-encrypted auxiliary secrets and rewrites the user's vault
	// credentials in a single transaction. Entries sealed under the new
	// key must never become visible without the salt that derives it, so
	// either everything commits or nothing does.
	RekeyAll(ctx context.Context, userID uuid.UUID, entries []Entry, secrets []UserSecret, creds VaultCredentials) (int, error)
}

// Entry represents a stored vault entry. Name, URL and Category stay
// plaintext so the server can search and filter; everything secret lives
// in Ciphertext (AES-GCM output, tag appended) with its Nonce.
type Entry struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Name       string
	URL        string
	Category   EntryCategory
	Ciphertext []byte
	Nonce      []byte
	Favorite   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EntryData is the sensitive payload of an entry. It is JSON-marshaled and
// AEAD-encrypted as a unit; it never appears in a database column in clear.
type EntryData struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Notes    string `json:"notes,omitempty"`
	TOTPURI  string `json:"totp_uri,omitempty"`
}

// EntryCategory enumerates entry kinds.
type EntryCategory string

const (
	// CategoryLogin is a site login/password pair.
	CategoryLogin EntryCategory = "login"
	// CategoryCard is a payment card.
	CategoryCard EntryCategory = "card"
	// CategoryNote is a secure note.
	CategoryNote EntryCategory = "note"
	// CategoryIdentity is an identity document.
	CategoryIdentity EntryCategory = "identity"
	// CategoryOther is everything else.
	CategoryOther EntryCategory = "other"
)

// Valid reports whether the category is one of the closed set.
func (c EntryCategory) Valid() bool {
	switch c {
	case CategoryLogin, CategoryCard, CategoryNote, CategoryIdentity, CategoryOther:
		return true
	}
	return false
}

// SearchParams filters entry listings. Query is a case-insensitive
// substring match against the plaintext name and URL; Query and Category
// combine as an AND filter. Page is 1-based.
type SearchParams struct {
	Query    string
	Category EntryCategory
	Page     int
	Limit    int
}

// CreateEntryParams contains parameters to create an entry.
type CreateEntryParams struct {
	Name     string
	URL      string
	Category EntryCategory
	Favorite bool
	Data     EntryData
}

// UpdateEntryParams is a partial update; nil fields stay untouched.
// Data, when set, replaces the whole encrypted payload.
type UpdateEntryParams struct {
	Name     *string
	URL      *string
	Category *EntryCategory
	Favorite *bool
	Data     *EntryData
}

// DecryptedEntry pairs an entry's indexable fields with its decrypted
// payload for returning to the API layer.
type DecryptedEntry struct {
	Entry
	Data EntryData
}
