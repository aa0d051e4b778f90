package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/imatveev/passvault/internal/crypto"
	"github.com/imatveev/passvault/internal/logger"
	"github.com/imatveev/passvault/internal/model"
	"github.com/imatveev/passvault/internal/session"
)

// keyCheckValue is the known plaintext sealed under the master key at
// registration and rekey. Decrypting it proves a freshly derived key is
// correct without touching any entries.
const keyCheckValue = "passvault/key-check/v1"

// maxAttachmentSize bounds attachment payloads; they are encrypted in
// memory as one AEAD message.
const maxAttachmentSize = 16 << 20

// Vault implements vault entry operations on top of the session manager
// and the entry store. Master keys are borrowed from the session for the
// duration of one call and never cached here.
type Vault struct {
	entries     model.EntryStore
	users       model.UserStore
	attachments model.AttachmentStore
	blobs       model.BlobStorage
	secretStore model.SecretStore
	secrets     *Secrets
	sessions    *session.Manager
	deriver     *crypto.Deriver
	logger      *logger.Logger
}

func NewVault(
	entries model.EntryStore,
	users model.UserStore,
	attachments model.AttachmentStore,
	blobs model.BlobStorage,
	secretStore model.SecretStore,
	secrets *Secrets,
	sessions *session.Manager,
	deriver *crypto.Deriver,
	logger *logger.Logger,
) *Vault {
	return &Vault{
		entries:     entries,
		users:       users,
		attachments: attachments,
		blobs:       blobs,
		secretStore: secretStore,
		secrets:     secrets,
		sessions:    sessions,
		deriver:     deriver,
		logger:      logger,
	}
}

// Unlock derives the master key for the user and verifies it against the
// stored key check before reporting success. A failed check tears the
// session back down and returns model.ErrAuthenticationFailed, so an
// unlock with a wrong password leaves the vault locked.
func (v *Vault) Unlock(ctx context.Context, userID uuid.UUID, masterPassword string) (session.Session, error) {
	user, err := v.users.GetByID(ctx, userID)
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to get user: %w", err)
	}

	sess, err := v.sessions.Unlock(ctx, userID, masterPassword, user.VaultSalt)
	if err != nil {
		return session.Session{}, err
	}

	key, err := v.sessions.Key(userID)
	if err != nil {
		return session.Session{}, err
	}
	defer key.Zero()

	probe, err := crypto.Decrypt(user.KeyCheck, user.KeyCheckNonce, key)
	if err != nil || string(probe) != keyCheckValue {
		v.sessions.Lock(userID)
		v.logger.Info("vault unlock rejected by key check", "user_id", userID)
		return session.Session{}, model.ErrAuthenticationFailed
	}

	return sess, nil
}

// Lock tears down the user's session. Reports whether one existed.
func (v *Vault) Lock(userID uuid.UUID) bool {
	return v.sessions.Lock(userID)
}

// Status returns the current unlock session, if any.
func (v *Vault) Status(userID uuid.UUID) (session.Session, bool) {
	return v.sessions.Status(userID)
}

// CreateEntry encrypts the sensitive payload under the active master key
// and persists the entry. Name, URL and category stay plaintext so they
// remain searchable.
func (v *Vault) CreateEntry(ctx context.Context, userID uuid.UUID, params model.CreateEntryParams) (model.Entry, error) {
	if !params.Category.Valid() {
		return model.Entry{}, fmt.Errorf("invalid category %q", params.Category)
	}

	lock := v.sessions.UserLock(userID)
	lock.RLock()
	defer lock.RUnlock()

	key, err := v.sessions.Key(userID)
	if err != nil {
		return model.Entry{}, err
	}
	defer key.Zero()

	ciphertext, nonce, err := v.sealEntryData(params.Data, key)
	if err != nil {
		return model.Entry{}, err
	}

	entry := model.Entry{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       params.Name,
		URL:        params.URL,
		Category:   params.Category,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		Favorite:   params.Favorite,
	}

	saved, err := v.entries.Create(ctx, entry)
	if err != nil {
		return model.Entry{}, fmt.Errorf("failed to create entry: %w", err)
	}
	return saved, nil
}

// GetEntry returns an entry with its decrypted payload. Not-found and
// not-owned collapse into model.ErrNotFound.
func (v *Vault) GetEntry(ctx context.Context, userID, entryID uuid.UUID) (model.DecryptedEntry, error) {
	entry, err := v.ownedEntry(ctx, userID, entryID)
	if err != nil {
		return model.DecryptedEntry{}, err
	}

	key, err := v.sessions.Key(userID)
	if err != nil {
		return model.DecryptedEntry{}, err
	}
	defer key.Zero()

	data, err := v.openEntryData(entry, key)
	if err != nil {
		return model.DecryptedEntry{}, err
	}

	return model.DecryptedEntry{Entry: entry, Data: data}, nil
}

// UpdateEntry applies a partial update. The encrypted payload is
// rewritten only when the patch carries new payload data; metadata-only
// patches leave the ciphertext untouched.
func (v *Vault) UpdateEntry(ctx context.Context, userID, entryID uuid.UUID, patch model.UpdateEntryParams) (model.Entry, error) {
	lock := v.sessions.UserLock(userID)
	lock.RLock()
	defer lock.RUnlock()

	entry, err := v.ownedEntry(ctx, userID, entryID)
	if err != nil {
		return model.Entry{}, err
	}

	if patch.Name != nil {
		entry.Name = *patch.Name
	}
	if patch.URL != nil {
		entry.URL = *patch.URL
	}
	if patch.Category != nil {
		if !patch.Category.Valid() {
			return model.Entry{}, fmt.Errorf("invalid category %q", *patch.Category)
		}
		entry.Category = *patch.Category
	}
	if patch.Favorite != nil {
		entry.Favorite = *patch.Favorite
	}
	if patch.Data != nil {
		key, err := v.sessions.Key(userID)
		if err != nil {
			return model.Entry{}, err
		}
		defer key.Zero()
		ciphertext, nonce, err := v.sealEntryData(*patch.Data, key)
		if err != nil {
			return model.Entry{}, err
		}
		entry.Ciphertext = ciphertext
		entry.Nonce = nonce
	}

	saved, err := v.entries.Update(ctx, entry)
	if err != nil {
		return model.Entry{}, fmt.Errorf("failed to update entry: %w", err)
	}
	return saved, nil
}

// DeleteEntry removes an owned entry and its attachments.
func (v *Vault) DeleteEntry(ctx context.Context, userID, entryID uuid.UUID) error {
	entry, err := v.ownedEntry(ctx, userID, entryID)
	if err != nil {
		return err
	}

	atts, err := v.attachments.GetByEntryID(ctx, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to list attachments: %w", err)
	}
	for _, att := range atts {
		if err := v.blobs.Delete(ctx, att.StorageKey); err != nil {
			v.logger.Error("failed to delete attachment blob", "attachment_id", att.ID, "error", err)
		}
	}

	if err := v.entries.Delete(ctx, entry.ID); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// ListEntries returns entry metadata matching the search filter. Matching
// runs against the plaintext name and URL only; ciphertext contents are
// not searchable by design.
func (v *Vault) ListEntries(ctx context.Context, userID uuid.UUID, params model.SearchParams) ([]model.Entry, error) {
	if params.Category != "" && !params.Category.Valid() {
		return nil, fmt.Errorf("invalid category %q", params.Category)
	}
	entries, err := v.entries.Search(ctx, userID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	return entries, nil
}

// ChangeMasterPassword verifies the current password, then re-encrypts
// every entry under a key derived from the new password and a fresh salt.
// The whole batch commits in one transaction and the per-user rekey gate
// is held exclusively throughout, so no concurrent write can produce an
// entry sealed under the old key after the switch.
func (v *Vault) ChangeMasterPassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) (int, error) {
	user, err := v.users.GetByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get user: %w", err)
	}

	ok, err := crypto.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil {
		return 0, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return 0, model.ErrInvalidCredentials
	}

	lock := v.sessions.UserLock(userID)
	lock.Lock()
	defer lock.Unlock()

	oldKey, err := v.deriver.Derive(ctx, currentPassword, user.VaultSalt)
	if err != nil {
		return 0, fmt.Errorf("failed to derive old key: %w", err)
	}
	defer oldKey.Zero()

	newSalt, err := crypto.GenerateSalt()
	if err != nil {
		return 0, fmt.Errorf("failed to generate new salt: %w", err)
	}
	newKey, err := v.deriver.Derive(ctx, newPassword, newSalt)
	if err != nil {
		return 0, fmt.Errorf("failed to derive new key: %w", err)
	}
	defer newKey.Zero()

	entries, err := v.entries.GetByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load entries: %w", err)
	}

	rekeyed := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		plaintext, err := crypto.Decrypt(e.Ciphertext, e.Nonce, oldKey)
		if err != nil {
			return 0, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		ciphertext, nonce, err := crypto.Encrypt(plaintext, newKey)
		if err != nil {
			return 0, fmt.Errorf("failed to re-encrypt entry %s: %w", e.ID, err)
		}
		e.Ciphertext = ciphertext
		e.Nonce = nonce
		rekeyed = append(rekeyed, e)
	}

	// Auxiliary secrets derive their keys from the account password, so
	// they have to follow it to the new one.
	secrets, err := v.rekeyedSecrets(ctx, userID, currentPassword, newPassword)
	if err != nil {
		return 0, err
	}

	newHash, err := crypto.HashPassword(newPassword, v.deriver.Params())
	if err != nil {
		return 0, fmt.Errorf("failed to hash new password: %w", err)
	}
	keyCheck, keyCheckNonce, err := crypto.Encrypt([]byte(keyCheckValue), newKey)
	if err != nil {
		return 0, fmt.Errorf("failed to seal key check: %w", err)
	}

	// Ciphertexts, secrets and credentials commit in one transaction. If
	// the credentials write landed separately, a crash between the two
	// would leave entries sealed under a salt that no longer exists
	// anywhere.
	count, err := v.entries.RekeyAll(ctx, userID, rekeyed, secrets, model.VaultCredentials{
		PasswordHash:  newHash,
		VaultSalt:     newSalt,
		KeyCheck:      keyCheck,
		KeyCheckNonce: keyCheckNonce,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to rekey vault: %w", err)
	}

	// The old session key is now useless; drop it. The caller re-unlocks
	// with the new password.
	v.sessions.Lock(userID)

	v.logger.Info("vault rekeyed", "user_id", userID, "entries", count)
	return count, nil
}

// PutAttachment encrypts reader's contents under the active master key
// and stores the blob plus its metadata.
func (v *Vault) PutAttachment(ctx context.Context, userID, entryID uuid.UUID, fileName string, reader io.Reader) (model.Attachment, error) {
	entry, err := v.ownedEntry(ctx, userID, entryID)
	if err != nil {
		return model.Attachment{}, err
	}

	lock := v.sessions.UserLock(userID)
	lock.RLock()
	defer lock.RUnlock()

	key, err := v.sessions.Key(userID)
	if err != nil {
		return model.Attachment{}, err
	}
	defer key.Zero()

	plaintext, err := io.ReadAll(io.LimitReader(reader, maxAttachmentSize+1))
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	if len(plaintext) > maxAttachmentSize {
		return model.Attachment{}, fmt.Errorf("attachment exceeds %d bytes", maxAttachmentSize)
	}

	ciphertext, nonce, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to encrypt attachment: %w", err)
	}

	att := model.Attachment{
		ID:         uuid.New(),
		EntryID:    entry.ID,
		UserID:     userID,
		FileName:   fileName,
		Size:       int64(len(plaintext)),
		StorageKey: fmt.Sprintf("user-%s/entry-%s/%s", userID, entry.ID, uuid.New()),
		Nonce:      nonce,
	}

	if err := v.blobs.Upload(ctx, att.StorageKey, bytes.NewReader(ciphertext)); err != nil {
		return model.Attachment{}, fmt.Errorf("failed to upload attachment: %w", err)
	}

	saved, err := v.attachments.Create(ctx, att)
	if err != nil {
		if delErr := v.blobs.Delete(ctx, att.StorageKey); delErr != nil {
			v.logger.Error("failed to delete orphaned blob", "key", att.StorageKey, "error", delErr)
		}
		return model.Attachment{}, fmt.Errorf("failed to save attachment metadata: %w", err)
	}
	return saved, nil
}

// GetAttachment downloads and decrypts an attachment.
func (v *Vault) GetAttachment(ctx context.Context, userID, attachmentID uuid.UUID) (model.Attachment, []byte, error) {
	att, err := v.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return model.Attachment{}, nil, err
	}
	if att.UserID != userID {
		return model.Attachment{}, nil, model.ErrNotFound
	}

	key, err := v.sessions.Key(userID)
	if err != nil {
		return model.Attachment{}, nil, err
	}
	defer key.Zero()

	rc, err := v.blobs.Download(ctx, att.StorageKey)
	if err != nil {
		return model.Attachment{}, nil, fmt.Errorf("failed to download attachment: %w", err)
	}
	defer rc.Close()

	ciphertext, err := io.ReadAll(rc)
	if err != nil {
		return model.Attachment{}, nil, fmt.Errorf("failed to read attachment blob: %w", err)
	}

	plaintext, err := crypto.Decrypt(ciphertext, att.Nonce, key)
	if err != nil {
		return model.Attachment{}, nil, err
	}
	return att, plaintext, nil
}

// DeleteAttachment removes an owned attachment and its blob.
func (v *Vault) DeleteAttachment(ctx context.Context, userID, attachmentID uuid.UUID) error {
	att, err := v.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return err
	}
	if att.UserID != userID {
		return model.ErrNotFound
	}

	if err := v.blobs.Delete(ctx, att.StorageKey); err != nil {
		v.logger.Error("failed to delete attachment blob", "attachment_id", att.ID, "error", err)
	}
	return v.attachments.Delete(ctx, att.ID)
}

// rekeyedSecrets re-encrypts the user's auxiliary secrets under the new
// account password and returns them unwritten; they are persisted by
// RekeyAll in the same transaction as the entries.
func (v *Vault) rekeyedSecrets(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) ([]model.UserSecret, error) {
	var out []model.UserSecret
	for _, kind := range []model.SecretKind{model.SecretKindTOTP, model.SecretKindPhone} {
		secret, err := v.secretStore.Get(ctx, userID, kind)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get %s secret: %w", kind, err)
		}
		if !secret.HasEncrypted() {
			continue
		}

		plaintext, err := v.secrets.DecryptSecret(ctx, SecretBox{
			Ciphertext: secret.Ciphertext,
			Nonce:      secret.Nonce,
			Salt:       secret.Salt,
		}, oldPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s secret for rekey: %w", kind, err)
		}

		box, err := v.secrets.EncryptSecret(ctx, plaintext, newPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encrypt %s secret: %w", kind, err)
		}

		secret.Ciphertext = box.Ciphertext
		secret.Nonce = box.Nonce
		secret.Salt = box.Salt
		out = append(out, secret)
	}
	return out, nil
}

func (v *Vault) ownedEntry(ctx context.Context, userID, entryID uuid.UUID) (model.Entry, error) {
	entry, err := v.entries.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Entry{}, model.ErrNotFound
		}
		return model.Entry{}, fmt.Errorf("failed to get entry: %w", err)
	}
	if entry.UserID != userID {
		return model.Entry{}, model.ErrNotFound
	}
	return entry, nil
}

func (v *Vault) sealEntryData(data model.EntryData, key *crypto.MasterKey) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal entry data: %w", err)
	}
	ciphertext, nonce, err = crypto.Encrypt(plaintext, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encrypt entry data: %w", err)
	}
	return ciphertext, nonce, nil
}

func (v *Vault) openEntryData(entry model.Entry, key *crypto.MasterKey) (model.EntryData, error) {
	plaintext, err := crypto.Decrypt(entry.Ciphertext, entry.Nonce, key)
	if err != nil {
		return model.EntryData{}, err
	}
	var data model.EntryData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return model.EntryData{}, fmt.Errorf("failed to unmarshal entry data: %w", err)
	}
	return data, nil
}
