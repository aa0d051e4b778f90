package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/imatveev/passvault/internal/model"
)

var _ model.EntryStore = (*EntryRepository)(nil)

type EntryRepository struct {
	db *Connection
}

func NewEntryRepository(db *Connection) *EntryRepository {
	return &EntryRepository{db: db}
}

const entryColumns = `id, user_id, name, url, category, ciphertext, nonce, favorite, created_at, updated_at`

func scanEntry(row pgx.Row) (model.Entry, error) {
	var e model.Entry
	err := row.Scan(
		&e.ID, &e.UserID, &e.Name, &e.URL, &e.Category,
		&e.Ciphertext, &e.Nonce, &e.Favorite, &e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

func (r *EntryRepository) Create(ctx context.Context, entry model.Entry) (model.Entry, error) {
	query := `
		INSERT INTO entries (id, user_id, name, url, category, ciphertext, nonce, favorite)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + entryColumns

	saved, err := scanEntry(r.db.QueryRow(ctx, query,
		entry.ID, entry.UserID, entry.Name, entry.URL, string(entry.Category),
		entry.Ciphertext, entry.Nonce, entry.Favorite,
	))
	if err != nil {
		return model.Entry{}, fmt.Errorf("failed to create entry: %w", err)
	}
	return saved, nil
}

func (r *EntryRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = $1`

	entry, err := scanEntry(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Entry{}, model.ErrNotFound
		}
		return model.Entry{}, fmt.Errorf("failed to get entry by id: %w", err)
	}
	return entry, nil
}

func (r *EntryRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]model.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries by user id: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *EntryRepository) Search(ctx context.Context, userID uuid.UUID, params model.SearchParams) ([]model.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE user_id = $1`
	args := []any{userID}

	if params.Query != "" {
		args = append(args, "%"+params.Query+"%")
		query += fmt.Sprintf(` AND (name ILIKE $%d OR url ILIKE $%d)`, len(args), len(args))
	}
	if params.Category != "" {
		args = append(args, string(params.Category))
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	query += ` ORDER BY favorite DESC, name ASC`

	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
		if params.Page > 1 {
			args = append(args, (params.Page-1)*params.Limit)
			query += fmt.Sprintf(` OFFSET $%d`, len(args))
		}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (r *EntryRepository) Update(ctx context.Context, entry model.Entry) (model.Entry, error) {
	query := `
		UPDATE entries
		SET name = $2, url = $3, category = $4, ciphertext = $5, nonce = $6, favorite = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + entryColumns

	saved, err := scanEntry(r.db.QueryRow(ctx, query,
		entry.ID, entry.Name, entry.URL, string(entry.Category),
		entry.Ciphertext, entry.Nonce, entry.Favorite,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Entry{}, model.ErrNotFound
		}
		return model.Entry{}, fmt.Errorf("failed to update entry: %w", err)
	}
	return saved, nil
}

func (r *EntryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// RekeyAll rewrites ciphertext and nonce for every entry in the slice,
// upserts the rekeyed auxiliary secrets and rewrites the user's vault
// credentials inside one transaction. A failure on any row rolls the
// whole batch back: committed ciphertexts and the salt deriving their key
// are never split across transactions.
func (r *EntryRepository) RekeyAll(ctx context.Context, userID uuid.UUID, entries []model.Entry, secrets []model.UserSecret, creds model.VaultCredentials) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin rekey transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const entryQuery = `
		UPDATE entries SET ciphertext = $3, nonce = $4, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`

	count := 0
	for _, e := range entries {
		cmd, err := tx.Exec(ctx, entryQuery, e.ID, userID, e.Ciphertext, e.Nonce)
		if err != nil {
			return 0, fmt.Errorf("failed to rekey entry %s: %w", e.ID, err)
		}
		if cmd.RowsAffected() == 0 {
			return 0, fmt.Errorf("failed to rekey entry %s: %w", e.ID, model.ErrNotFound)
		}
		count++
	}

	const secretQuery = `
		UPDATE user_secrets SET ciphertext = $3, nonce = $4, salt = $5, updated_at = NOW()
		WHERE user_id = $1 AND kind = $2`

	for _, s := range secrets {
		if _, err := tx.Exec(ctx, secretQuery, userID, string(s.Kind), s.Ciphertext, s.Nonce, s.Salt); err != nil {
			return 0, fmt.Errorf("failed to rekey %s secret: %w", s.Kind, err)
		}
	}

	const credsQuery = `
		UPDATE users
		SET password_hash = $2, vault_salt = $3, key_check = $4, key_check_nonce = $5, updated_at = NOW()
		WHERE id = $1`

	cmd, err := tx.Exec(ctx, credsQuery, userID, creds.PasswordHash, creds.VaultSalt, creds.KeyCheck, creds.KeyCheckNonce)
	if err != nil {
		return 0, fmt.Errorf("failed to update vault credentials: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return 0, fmt.Errorf("failed to update vault credentials: %w", model.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit rekey transaction: %w", err)
	}
	return count, nil
}

func collectEntries(rows pgx.Rows) ([]model.Entry, error) {
	var entries []model.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
