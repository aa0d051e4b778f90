package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/imatveev/passvault/internal/crypto"
	"github.com/imatveev/passvault/internal/model"
	"github.com/imatveev/passvault/internal/session"
	"github.com/imatveev/passvault/internal/testutil"
)

// memoryEntryStore is an in-memory EntryStore with the same search
// semantics as the SQL store: case-insensitive substring match on name
// or URL, ANDed with an exact category filter, ordered favorites first
// then by name, paginated. It lets the search scenarios run against real
// matching instead of canned mock returns.
type memoryEntryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]model.Entry
}

func newMemoryEntryStore() *memoryEntryStore {
	return &memoryEntryStore{entries: make(map[uuid.UUID]model.Entry)}
}

var _ model.EntryStore = (*memoryEntryStore)(nil)

func (s *memoryEntryStore) Create(ctx context.Context, entry model.Entry) (model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return entry, nil
}

func (s *memoryEntryStore) GetByID(ctx context.Context, id uuid.UUID) (model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return model.Entry{}, model.ErrNotFound
	}
	return e, nil
}

func (s *memoryEntryStore) GetByUserID(ctx context.Context, userID uuid.UUID) ([]model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memoryEntryStore) Search(ctx context.Context, userID uuid.UUID, params model.SearchParams) ([]model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := strings.ToLower(params.Query)
	var out []model.Entry
	for _, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(e.Name), query) &&
			!strings.Contains(strings.ToLower(e.URL), query) {
			continue
		}
		if params.Category != "" && e.Category != params.Category {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Favorite != out[j].Favorite {
			return out[i].Favorite
		}
		return out[i].Name < out[j].Name
	})

	if params.Limit > 0 {
		offset := 0
		if params.Page > 1 {
			offset = (params.Page - 1) * params.Limit
		}
		if offset > len(out) {
			offset = len(out)
		}
		end := offset + params.Limit
		if end > len(out) {
			end = len(out)
		}
		out = out[offset:end]
	}
	return out, nil
}

func (s *memoryEntryStore) Update(ctx context.Context, entry model.Entry) (model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; !ok {
		return model.Entry{}, model.ErrNotFound
	}
	s.entries[entry.ID] = entry
	return entry, nil
}

func (s *memoryEntryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return model.ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *memoryEntryStore) RekeyAll(ctx context.Context, userID uuid.UUID, entries []model.Entry, secrets []model.UserSecret, creds model.VaultCredentials) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if _, ok := s.entries[e.ID]; !ok {
			return 0, model.ErrNotFound
		}
		s.entries[e.ID] = e
	}
	return len(entries), nil
}

type searchFixture struct {
	vault  *Vault
	userID uuid.UUID
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()

	deriver := crypto.NewDeriver(crypto.DefaultKDFParams(), 0)
	sessions := session.NewManager(deriver, session.DefaultTTL, testutil.MakeNoopLogger())
	t.Cleanup(sessions.Close)

	user := makeUser(t, deriver, "master password")
	users := &MockUserStore{}
	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	secrets := NewSecrets(deriver, testutil.MakeNoopLogger())
	vault := NewVault(newMemoryEntryStore(), users, &MockAttachmentStore{}, &MockBlobStorage{},
		&MockSecretStore{}, secrets, sessions, deriver, testutil.MakeNoopLogger())

	_, err := vault.Unlock(context.Background(), user.ID, "master password")
	require.NoError(t, err)

	f := &searchFixture{vault: vault, userID: user.ID}

	seed := []struct {
		name     string
		url      string
		category model.EntryCategory
		favorite bool
	}{
		{"GitHub", "https://github.com", model.CategoryLogin, false},
		{"GitLab", "https://gitlab.com", model.CategoryLogin, true},
		{"Personal email", "https://mail.example.com", model.CategoryLogin, false},
		{"Deploy keys", "https://git.example.com/keys", model.CategoryNote, false},
	}
	for _, e := range seed {
		_, err := vault.CreateEntry(context.Background(), user.ID, model.CreateEntryParams{
			Name:     e.name,
			URL:      e.url,
			Category: e.category,
			Favorite: e.favorite,
			Data:     model.EntryData{Username: "user", Password: "pw"},
		})
		require.NoError(t, err)
	}

	return f
}

func entryNames(entries []model.Entry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func TestVault_ListEntries_Matching(t *testing.T) {
	f := newSearchFixture(t)

	t.Run("substring match is case-insensitive over name and url", func(t *testing.T) {
		entries, err := f.vault.ListEntries(context.Background(), f.userID, model.SearchParams{Query: "GIT"})
		require.NoError(t, err)

		// GitLab first: favorites sort ahead, then by name. Deploy keys
		// matches on its URL only.
		assert.Equal(t, []string{"GitLab", "Deploy keys", "GitHub"}, entryNames(entries))
	})

	t.Run("query and category combine with AND", func(t *testing.T) {
		entries, err := f.vault.ListEntries(context.Background(), f.userID, model.SearchParams{
			Query:    "git",
			Category: model.CategoryLogin,
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"GitLab", "GitHub"}, entryNames(entries))
	})

	t.Run("category alone filters", func(t *testing.T) {
		entries, err := f.vault.ListEntries(context.Background(), f.userID, model.SearchParams{
			Category: model.CategoryNote,
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"Deploy keys"}, entryNames(entries))
	})

	t.Run("no match", func(t *testing.T) {
		entries, err := f.vault.ListEntries(context.Background(), f.userID, model.SearchParams{Query: "bitbucket"})
		require.NoError(t, err)

		assert.Empty(t, entries)
	})

	t.Run("pagination", func(t *testing.T) {
		first, err := f.vault.ListEntries(context.Background(), f.userID, model.SearchParams{Page: 1, Limit: 3})
		require.NoError(t, err)
		second, err := f.vault.ListEntries(context.Background(), f.userID, model.SearchParams{Page: 2, Limit: 3})
		require.NoError(t, err)

		assert.Len(t, first, 3)
		assert.Len(t, second, 1)
		assert.NotContains(t, entryNames(first), second[0].Name)
	})

	t.Run("other users' entries never match", func(t *testing.T) {
		entries, err := f.vault.ListEntries(context.Background(), uuid.New(), model.SearchParams{Query: "git"})
		require.NoError(t, err)

		assert.Empty(t, entries)
	})
}
