package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imatveev/passvault/internal/model"
)

func TestNewUserRepository(t *testing.T) {
	db := &Connection{}
	repo := NewUserRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestNewEntryRepository(t *testing.T) {
	db := &Connection{}
	repo := NewEntryRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestNewSecretRepository(t *testing.T) {
	db := &Connection{}
	repo := NewSecretRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestNewAttachmentRepository(t *testing.T) {
	db := &Connection{}
	repo := NewAttachmentRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestNewRefreshTokenRepository(t *testing.T) {
	db := &Connection{}
	repo := NewRefreshTokenRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestRepositories_ImplementStores(t *testing.T) {
	var _ model.UserStore = (*UserRepository)(nil)
	var _ model.EntryStore = (*EntryRepository)(nil)
	var _ model.SecretStore = (*SecretRepository)(nil)
	var _ model.AttachmentStore = (*AttachmentRepository)(nil)
	var _ model.RefreshTokenStore = (*RefreshTokenRepository)(nil)
}
