package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/imatveev/passvault/internal/model"
)

var _ model.SecretStore = (*SecretRepository)(nil)

type SecretRepository struct {
	db *Connection
}

func NewSecretRepository(db *Connection) *SecretRepository {
	return &SecretRepository{db: db}
}

func (r *SecretRepository) Get(ctx context.Context, userID uuid.UUID, kind model.SecretKind) (model.UserSecret, error) {
	query := `
		SELECT user_id, kind, ciphertext, nonce, salt, plaintext_legacy, backup_codes, created_at, updated_at
		FROM user_secrets WHERE user_id = $1 AND kind = $2`

	var s model.UserSecret
	err := r.db.QueryRow(ctx, query, userID, string(kind)).Scan(
		&s.UserID, &s.Kind, &s.Ciphertext, &s.Nonce, &s.Salt,
		&s.PlaintextLegacy, &s.BackupCodeHashes, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.UserSecret{}, model.ErrNotFound
		}
		return model.UserSecret{}, fmt.Errorf("failed to get user secret: %w", err)
	}
	return s, nil
}

func (r *SecretRepository) Upsert(ctx context.Context, secret model.UserSecret) error {
	query := `
		INSERT INTO user_secrets (user_id, kind, ciphertext, nonce, salt, plaintext_legacy, backup_codes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, kind) DO UPDATE
		SET ciphertext = EXCLUDED.ciphertext,
		    nonce = EXCLUDED.nonce,
		    salt = EXCLUDED.salt,
		    plaintext_legacy = EXCLUDED.plaintext_legacy,
		    backup_codes = EXCLUDED.backup_codes,
		    updated_at = NOW()`

	codes := secret.BackupCodeHashes
	if codes == nil {
		codes = []string{}
	}

	_, err := r.db.Exec(ctx, query,
		secret.UserID, string(secret.Kind), secret.Ciphertext, secret.Nonce, secret.Salt,
		secret.PlaintextLegacy, codes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user secret: %w", err)
	}
	return nil
}

func (r *SecretRepository) Delete(ctx context.Context, userID uuid.UUID, kind model.SecretKind) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM user_secrets WHERE user_id = $1 AND kind = $2`, userID, string(kind))
	if err != nil {
		return fmt.Errorf("failed to delete user secret: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ClearPlaintext removes only the legacy plaintext column. The safety
// check that an encrypted twin exists belongs to the migration
// coordinator, not the store.
func (r *SecretRepository) ClearPlaintext(ctx context.Context, userID uuid.UUID, kind model.SecretKind) error {
	query := `
		UPDATE user_secrets SET plaintext_legacy = NULL, updated_at = NOW()
		WHERE user_id = $1 AND kind = $2`

	cmd, err := r.db.Exec(ctx, query, userID, string(kind))
	if err != nil {
		return fmt.Errorf("failed to clear plaintext: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *SecretRepository) ListWithPlaintext(ctx context.Context, kind model.SecretKind) ([]uuid.UUID, error) {
	query := `
		SELECT user_id FROM user_secrets
		WHERE kind = $1 AND plaintext_legacy IS NOT NULL AND plaintext_legacy <> ''
		ORDER BY user_id`

	rows, err := r.db.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets with plaintext: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *SecretRepository) CountByMigrationState(ctx context.Context, kind model.SecretKind) (model.MigrationCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE plaintext_legacy IS NOT NULL AND plaintext_legacy <> '' AND ciphertext IS NULL),
			COUNT(*) FILTER (WHERE plaintext_legacy IS NOT NULL AND plaintext_legacy <> '' AND ciphertext IS NOT NULL),
			COUNT(*) FILTER (WHERE (plaintext_legacy IS NULL OR plaintext_legacy = '') AND ciphertext IS NOT NULL)
		FROM user_secrets WHERE kind = $1`

	var counts model.MigrationCounts
	err := r.db.QueryRow(ctx, query, string(kind)).Scan(
		&counts.PlaintextOnly, &counts.Both, &counts.EncryptedOnly,
	)
	if err != nil {
		return model.MigrationCounts{}, fmt.Errorf("failed to count migration states: %w", err)
	}
	return counts, nil
}

func (r *SecretRepository) UpdateBackupCodes(ctx context.Context, userID uuid.UUID, hashes []string) error {
	if hashes == nil {
		hashes = []string{}
	}
	query := `
		UPDATE user_secrets SET backup_codes = $3, updated_at = NOW()
		WHERE user_id = $1 AND kind = $2`

	cmd, err := r.db.Exec(ctx, query, userID, string(model.SecretKindTOTP), hashes)
	if err != nil {
		return fmt.Errorf("failed to update backup codes: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
