package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/imatveev/passvault/internal/crypto"
	"github.com/imatveev/passvault/internal/model"
	"github.com/imatveev/passvault/internal/session"
	"github.com/imatveev/passvault/internal/testutil"
)

type vaultFixture struct {
	vault       *Vault
	sessions    *session.Manager
	deriver     *crypto.Deriver
	entries     *MockEntryStore
	users       *MockUserStore
	attachments *MockAttachmentStore
	blobs       *MockBlobStorage
	secretStore *MockSecretStore
	secrets     *Secrets
}

func newVaultFixture(t *testing.T) *vaultFixture {
	t.Helper()

	deriver := crypto.NewDeriver(crypto.DefaultKDFParams(), 0)
	sessions := session.NewManager(deriver, session.DefaultTTL, testutil.MakeNoopLogger())
	t.Cleanup(sessions.Close)

	f := &vaultFixture{
		sessions:    sessions,
		deriver:     deriver,
		entries:     &MockEntryStore{},
		users:       &MockUserStore{},
		attachments: &MockAttachmentStore{},
		blobs:       &MockBlobStorage{},
		secretStore: &MockSecretStore{},
	}
	f.secrets = NewSecrets(deriver, testutil.MakeNoopLogger())
	f.vault = NewVault(f.entries, f.users, f.attachments, f.blobs, f.secretStore, f.secrets, sessions, deriver, testutil.MakeNoopLogger())
	return f
}

// makeUser builds a user whose vault credentials were produced the same
// way registration produces them.
func makeUser(t *testing.T, deriver *crypto.Deriver, password string) model.User {
	t.Helper()

	salt, err := crypto.GenerateSalt()
	require.NoError(t, err)
	hash, err := crypto.HashPassword(password, deriver.Params())
	require.NoError(t, err)

	key, err := deriver.Derive(context.Background(), password, salt)
	require.NoError(t, err)
	defer key.Zero()
	keyCheck, keyCheckNonce, err := crypto.Encrypt([]byte(keyCheckValue), key)
	require.NoError(t, err)

	return model.User{
		ID:            uuid.New(),
		Email:         "test@example.com",
		PasswordHash:  hash,
		VaultSalt:     salt,
		KeyCheck:      keyCheck,
		KeyCheckNonce: keyCheckNonce,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func (f *vaultFixture) unlock(t *testing.T, user model.User, password string) {
	t.Helper()
	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil).Once()
	_, err := f.vault.Unlock(context.Background(), user.ID, password)
	require.NoError(t, err)
}

func TestVault_Unlock(t *testing.T) {
	f := newVaultFixture(t)
	user := makeUser(t, f.deriver, "master password")

	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	sess, err := f.vault.Unlock(context.Background(), user.ID, "master password")
	require.NoError(t, err)
	assert.Equal(t, user.ID, sess.UserID)
	assert.True(t, f.sessions.IsUnlocked(user.ID))
}

func TestVault_Unlock_WrongPassword(t *testing.T) {
	f := newVaultFixture(t)
	user := makeUser(t, f.deriver, "master password")

	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	_, err := f.vault.Unlock(context.Background(), user.ID, "wrong password")
	assert.ErrorIs(t, err, model.ErrAuthenticationFailed)

	// A failed unlock must not leave a usable session behind.
	assert.False(t, f.sessions.IsUnlocked(user.ID))
}

func TestVault_CreateEntry_Locked(t *testing.T) {
	f := newVaultFixture(t)

	_, err := f.vault.CreateEntry(context.Background(), uuid.New(), model.CreateEntryParams{
		Name:     "GitHub",
		Category: model.CategoryLogin,
	})
	assert.ErrorIs(t, err, model.ErrVaultLocked)
}

func TestVault_CreateEntry_InvalidCategory(t *testing.T) {
	f := newVaultFixture(t)

	_, err := f.vault.CreateEntry(context.Background(), uuid.New(), model.CreateEntryParams{
		Name:     "GitHub",
		Category: "bookmark",
	})
	assert.Error(t, err)
}

func TestVault_CreateAndGetEntry(t *testing.T) {
	f := newVaultFixture(t)
	user := makeUser(t, f.deriver, "master password")
	f.unlock(t, user, "master password")

	data := model.EntryData{
		Username: "alice",
		Password: "gh-p4ss",
		Notes:    "work account",
	}

	var stored model.Entry
	f.entries.On("Create", mock.Anything, mock.MatchedBy(func(e model.Entry) bool {
		return e.UserID == user.ID && e.Name == "GitHub" && len(e.Ciphertext) > 0
	})).Run(func(args mock.Arguments) {
		stored = args.Get(1).(model.Entry)
	}).Return(model.Entry{}, nil).Once()

	_, err := f.vault.CreateEntry(context.Background(), user.ID, model.CreateEntryParams{
		Name:     "GitHub",
		URL:      "https://github.com",
		Category: model.CategoryLogin,
		Data:     data,
	})
	require.NoError(t, err)

	// The persisted ciphertext must not leak the payload.
	assert.NotContains(t, string(stored.Ciphertext), "gh-p4ss")

	f.entries.On("GetByID", mock.Anything, stored.ID).Return(stored, nil).Once()

	got, err := f.vault.GetEntry(context.Background(), user.ID, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
	assert.Equal(t, "GitHub", got.Name)
}

func TestVault_GetEntry_NotOwned(t *testing.T) {
	f := newVaultFixture(t)
	owner := uuid.New()
	intruder := uuid.New()
	entry := model.Entry{ID: uuid.New(), UserID: owner, Name: "GitHub"}

	f.entries.On("GetByID", mock.Anything, entry.ID).Return(entry, nil)

	_, err := f.vault.GetEntry(context.Background(), intruder, entry.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestVault_GetEntry_NotFound(t *testing.T) {
	f := newVaultFixture(t)
	entryID := uuid.New()

	f.entries.On("GetByID", mock.Anything, entryID).Return(model.Entry{}, model.ErrNotFound)

	_, err := f.vault.GetEntry(context.Background(), uuid.New(), entryID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestVault_UpdateEntry_MetadataOnly(t *testing.T) {
	f := newVaultFixture(t)
	user := makeUser(t, f.deriver, "master password")
	f.unlock(t, user, "master password")

	entry := model.Entry{
		ID:         uuid.New(),
		UserID:     user.ID,
		Name:       "GitHub",
		Category:   model.CategoryLogin,
		Ciphertext: []byte("sealed"),
		Nonce:      []byte("nonce"),
	}
	f.entries.On("GetByID", mock.Anything, entry.ID).Return(entry, nil)

	newName := "GitLab"
	f.entries.On("Update", mock.Anything, mock.MatchedBy(func(e model.Entry) bool {
		// A metadata-only patch must leave the ciphertext untouched.
		return e.Name == "GitLab" && string(e.Ciphertext) == "sealed"
	})).Return(entry, nil).Once()

	_, err := f.vault.UpdateEntry(context.Background(), user.ID, entry.ID, model.UpdateEntryParams{Name: &newName})
	require.NoError(t, err)
	f.entries.AssertExpectations(t)
}

func TestVault_ListEntries(t *testing.T) {
	f := newVaultFixture(t)
	userID := uuid.New()
	params := model.SearchParams{Query: "git", Category: model.CategoryLogin, Page: 1, Limit: 50}

	f.entries.On("Search", mock.Anything, userID, params).Return([]model.Entry{
		{ID: uuid.New(), Name: "GitHub"},
		{ID: uuid.New(), Name: "GitLab"},
	}, nil)

	entries, err := f.vault.ListEntries(context.Background(), userID, params)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestVault_ChangeMasterPassword(t *testing.T) {
	f := newVaultFixture(t)
	user := makeUser(t, f.deriver, "old password")

	oldKey, err := f.deriver.Derive(context.Background(), "old password", user.VaultSalt)
	require.NoError(t, err)
	defer oldKey.Zero()

	plaintext := []byte(`{"username":"alice","password":"s3cret"}`)
	ciphertext, nonce, err := crypto.Encrypt(plaintext, oldKey)
	require.NoError(t, err)

	entry := model.Entry{ID: uuid.New(), UserID: user.ID, Name: "GitHub", Ciphertext: ciphertext, Nonce: nonce}

	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	f.entries.On("GetByUserID", mock.Anything, user.ID).Return([]model.Entry{entry}, nil)

	var rekeyed []model.Entry
	var creds model.VaultCredentials
	f.entries.On("RekeyAll", mock.Anything, user.ID, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			rekeyed = args.Get(2).([]model.Entry)
			creds = args.Get(4).(model.VaultCredentials)
		}).Return(1, nil)

	f.secretStore.On("Get", mock.Anything, user.ID, mock.Anything).Return(model.UserSecret{}, model.ErrNotFound)

	count, err := f.vault.ChangeMasterPassword(context.Background(), user.ID, "old password", "new password")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, rekeyed, 1)

	// Entry count and IDs unchanged; ciphertext rewritten.
	assert.Equal(t, entry.ID, rekeyed[0].ID)
	assert.NotEqual(t, entry.Ciphertext, rekeyed[0].Ciphertext)

	// The old key no longer opens the rekeyed entry.
	_, err = crypto.Decrypt(rekeyed[0].Ciphertext, rekeyed[0].Nonce, oldKey)
	assert.ErrorIs(t, err, model.ErrAuthenticationFailed)

	// A key derived from the new password and the salt delivered in the
	// same store call opens it.
	newKey, err := f.deriver.Derive(context.Background(), "new password", creds.VaultSalt)
	require.NoError(t, err)
	defer newKey.Zero()
	got, err := crypto.Decrypt(rekeyed[0].Ciphertext, rekeyed[0].Nonce, newKey)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	// New credentials verify end to end.
	ok, err := crypto.VerifyPassword("new password", creds.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
	probe, err := crypto.Decrypt(creds.KeyCheck, creds.KeyCheckNonce, newKey)
	require.NoError(t, err)
	assert.Equal(t, keyCheckValue, string(probe))
}

// A failed rekey commit must leave the stored credentials untouched: the
// salt deriving the new ciphertexts' key exists only inside the call, so
// credentials written outside the rekey transaction could strand every
// entry if the process died between the two writes. The store interface
// takes both in one call; this pins the service never updating
// credentials through any other path.
func TestVault_ChangeMasterPassword_AtomicWithCredentials(t *testing.T) {
	f := newVaultFixture(t)
	user := makeUser(t, f.deriver, "old password")

	oldKey, err := f.deriver.Derive(context.Background(), "old password", user.VaultSalt)
	require.NoError(t, err)
	defer oldKey.Zero()

	plaintext := []byte(`{"username":"alice","password":"s3cret"}`)
	ciphertext, nonce, err := crypto.Encrypt(plaintext, oldKey)
	require.NoError(t, err)
	entry := model.Entry{ID: uuid.New(), UserID: user.ID, Name: "GitHub", Ciphertext: ciphertext, Nonce: nonce}

	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	f.entries.On("GetByUserID", mock.Anything, user.ID).Return([]model.Entry{entry}, nil)
	f.secretStore.On("Get", mock.Anything, user.ID, mock.Anything).Return(model.UserSecret{}, model.ErrNotFound)

	f.entries.On("RekeyAll", mock.Anything, user.ID, mock.Anything, mock.Anything, mock.Anything).
		Return(0, errors.New("connection reset"))

	_, err = f.vault.ChangeMasterPassword(context.Background(), user.ID, "old password", "new password")
	require.Error(t, err)

	// Nothing outside RekeyAll touched the stores, so the old password
	// still opens the stored entry.
	got, err := crypto.Decrypt(entry.Ciphertext, entry.Nonce, oldKey)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
	f.secretStore.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

// Auxiliary secrets ride in the same rekey call so they switch passwords
// atomically with the credentials.
func TestVault_ChangeMasterPassword_RekeysSecrets(t *testing.T) {
	f := newVaultFixture(t)
	user := makeUser(t, f.deriver, "old password")

	box, err := f.secrets.EncryptSecret(context.Background(), "JBSWY3DPEHPK3PXP", "old password")
	require.NoError(t, err)
	totp := model.UserSecret{
		UserID:     user.ID,
		Kind:       model.SecretKindTOTP,
		Ciphertext: box.Ciphertext,
		Nonce:      box.Nonce,
		Salt:       box.Salt,
	}

	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	f.entries.On("GetByUserID", mock.Anything, user.ID).Return([]model.Entry{}, nil)
	f.secretStore.On("Get", mock.Anything, user.ID, model.SecretKindTOTP).Return(totp, nil)
	f.secretStore.On("Get", mock.Anything, user.ID, model.SecretKindPhone).Return(model.UserSecret{}, model.ErrNotFound)

	var rekeyedSecrets []model.UserSecret
	f.entries.On("RekeyAll", mock.Anything, user.ID, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			rekeyedSecrets = args.Get(3).([]model.UserSecret)
		}).Return(0, nil)

	_, err = f.vault.ChangeMasterPassword(context.Background(), user.ID, "old password", "new password")
	require.NoError(t, err)

	require.Len(t, rekeyedSecrets, 1)
	assert.Equal(t, model.SecretKindTOTP, rekeyedSecrets[0].Kind)

	// The rekeyed box opens under the new password only.
	rekeyedBox := SecretBox{
		Ciphertext: rekeyedSecrets[0].Ciphertext,
		Nonce:      rekeyedSecrets[0].Nonce,
		Salt:       rekeyedSecrets[0].Salt,
	}
	seed, err := f.secrets.DecryptSecret(context.Background(), rekeyedBox, "new password")
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", seed)
	_, err = f.secrets.DecryptSecret(context.Background(), rekeyedBox, "old password")
	assert.ErrorIs(t, err, model.ErrAuthenticationFailed)
}

func TestVault_ChangeMasterPassword_WrongCurrent(t *testing.T) {
	f := newVaultFixture(t)
	user := makeUser(t, f.deriver, "old password")

	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	_, err := f.vault.ChangeMasterPassword(context.Background(), user.ID, "not the password", "new password")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
	f.entries.AssertNotCalled(t, "RekeyAll", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVault_ChangeMasterPassword_DropsSession(t *testing.T) {
	f := newVaultFixture(t)
	user := makeUser(t, f.deriver, "old password")
	f.unlock(t, user, "old password")

	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	f.entries.On("GetByUserID", mock.Anything, user.ID).Return([]model.Entry{}, nil)
	f.entries.On("RekeyAll", mock.Anything, user.ID, mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	f.secretStore.On("Get", mock.Anything, user.ID, mock.Anything).Return(model.UserSecret{}, model.ErrNotFound)

	_, err := f.vault.ChangeMasterPassword(context.Background(), user.ID, "old password", "new password")
	require.NoError(t, err)

	// The session keyed by the old password is gone.
	assert.False(t, f.sessions.IsUnlocked(user.ID))
}
