package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AttachmentStore defines persistence for attachment metadata. The blob
// itself lives in BlobStorage under StorageKey.
type AttachmentStore interface {
	Create(ctx context.Context, att Attachment) (Attachment, error)
	GetByID(ctx context.Context, id uuid.UUID) (Attachment, error)
	GetByEntryID(ctx context.Context, entryID uuid.UUID) ([]Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Attachment is an encrypted file attached to a vault entry. Nonce is the
// AEAD nonce used to encrypt the blob stored under StorageKey; Size is the
// plaintext size in bytes.
type Attachment struct {
	ID         uuid.UUID
	EntryID    uuid.UUID
	UserID     uuid.UUID
	FileName   string
	Size       int64
	StorageKey string
	Nonce      []byte
	CreatedAt  time.Time
}
