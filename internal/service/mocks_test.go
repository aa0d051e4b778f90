package service

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/imatveev/passvault/internal/model"
)

// MockUserStore mocks the UserStore interface
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockUserStore) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockUserStore) Create(ctx context.Context, user model.User) (model.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(model.User), args.Error(1)
}

// MockEntryStore mocks the EntryStore interface
type MockEntryStore struct {
	mock.Mock
}

func (m *MockEntryStore) Create(ctx context.Context, entry model.Entry) (model.Entry, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(model.Entry), args.Error(1)
}

func (m *MockEntryStore) GetByID(ctx context.Context, id uuid.UUID) (model.Entry, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Entry), args.Error(1)
}

func (m *MockEntryStore) GetByUserID(ctx context.Context, userID uuid.UUID) ([]model.Entry, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Entry), args.Error(1)
}

func (m *MockEntryStore) Search(ctx context.Context, userID uuid.UUID, params model.SearchParams) ([]model.Entry, error) {
	args := m.Called(ctx, userID, params)
	return args.Get(0).([]model.Entry), args.Error(1)
}

func (m *MockEntryStore) Update(ctx context.Context, entry model.Entry) (model.Entry, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(model.Entry), args.Error(1)
}

func (m *MockEntryStore) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEntryStore) RekeyAll(ctx context.Context, userID uuid.UUID, entries []model.Entry, secrets []model.UserSecret, creds model.VaultCredentials) (int, error) {
	args := m.Called(ctx, userID, entries, secrets, creds)
	return args.Int(0), args.Error(1)
}

// MockSecretStore mocks the SecretStore interface
type MockSecretStore struct {
	mock.Mock
}

func (m *MockSecretStore) Get(ctx context.Context, userID uuid.UUID, kind model.SecretKind) (model.UserSecret, error) {
	args := m.Called(ctx, userID, kind)
	return args.Get(0).(model.UserSecret), args.Error(1)
}

func (m *MockSecretStore) Upsert(ctx context.Context, secret model.UserSecret) error {
	args := m.Called(ctx, secret)
	return args.Error(0)
}

func (m *MockSecretStore) Delete(ctx context.Context, userID uuid.UUID, kind model.SecretKind) error {
	args := m.Called(ctx, userID, kind)
	return args.Error(0)
}

func (m *MockSecretStore) ClearPlaintext(ctx context.Context, userID uuid.UUID, kind model.SecretKind) error {
	args := m.Called(ctx, userID, kind)
	return args.Error(0)
}

func (m *MockSecretStore) ListWithPlaintext(ctx context.Context, kind model.SecretKind) ([]uuid.UUID, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockSecretStore) CountByMigrationState(ctx context.Context, kind model.SecretKind) (model.MigrationCounts, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(model.MigrationCounts), args.Error(1)
}

func (m *MockSecretStore) UpdateBackupCodes(ctx context.Context, userID uuid.UUID, hashes []string) error {
	args := m.Called(ctx, userID, hashes)
	return args.Error(0)
}

// MockAttachmentStore mocks the AttachmentStore interface
type MockAttachmentStore struct {
	mock.Mock
}

func (m *MockAttachmentStore) Create(ctx context.Context, attachment model.Attachment) (model.Attachment, error) {
	args := m.Called(ctx, attachment)
	return args.Get(0).(model.Attachment), args.Error(1)
}

func (m *MockAttachmentStore) GetByID(ctx context.Context, id uuid.UUID) (model.Attachment, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Attachment), args.Error(1)
}

func (m *MockAttachmentStore) GetByEntryID(ctx context.Context, entryID uuid.UUID) ([]model.Attachment, error) {
	args := m.Called(ctx, entryID)
	return args.Get(0).([]model.Attachment), args.Error(1)
}

func (m *MockAttachmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockBlobStorage mocks the BlobStorage interface
type MockBlobStorage struct {
	mock.Mock
}

func (m *MockBlobStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	args := m.Called(ctx, key, reader)
	return args.Error(0)
}

func (m *MockBlobStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockBlobStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockBlobStorage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// MockRefreshTokenStore mocks the RefreshTokenStore interface
type MockRefreshTokenStore struct {
	mock.Mock
}

func (m *MockRefreshTokenStore) Create(ctx context.Context, token model.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockRefreshTokenStore) GetByJTI(ctx context.Context, jti string) (model.RefreshToken, error) {
	args := m.Called(ctx, jti)
	return args.Get(0).(model.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokenStore) RevokeByJTI(ctx context.Context, jti string) error {
	args := m.Called(ctx, jti)
	return args.Error(0)
}

func (m *MockRefreshTokenStore) RevokeAllByUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockTokenManager mocks the TokenManager interface
type MockTokenManager struct {
	mock.Mock
}

func (m *MockTokenManager) GenerateAccessToken(userID uuid.UUID) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

func (m *MockTokenManager) GenerateRefreshToken(userID uuid.UUID) (string, string, error) {
	args := m.Called(userID)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockTokenManager) ParseAccessToken(token string) (uuid.UUID, error) {
	args := m.Called(token)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockTokenManager) ParseRefreshToken(token string) (uuid.UUID, string, error) {
	args := m.Called(token)
	return args.Get(0).(uuid.UUID), args.String(1), args.Error(2)
}
