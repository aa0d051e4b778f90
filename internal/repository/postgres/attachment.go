package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/imatveev/passvault/internal/model"
)

var _ model.AttachmentStore = (*AttachmentRepository)(nil)

type AttachmentRepository struct {
	db *Connection
}

func NewAttachmentRepository(db *Connection) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

const attachmentColumns = `id, entry_id, user_id, file_name, size, storage_key, nonce, created_at`

func (r *AttachmentRepository) Create(ctx context.Context, att model.Attachment) (model.Attachment, error) {
	query := `
		INSERT INTO attachments (id, entry_id, user_id, file_name, size, storage_key, nonce)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		att.ID, att.EntryID, att.UserID, att.FileName, att.Size, att.StorageKey, att.Nonce,
	).Scan(&att.CreatedAt)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to create attachment: %w", err)
	}
	return att, nil
}

func (r *AttachmentRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = $1`

	var att model.Attachment
	err := r.db.QueryRow(ctx, query, id).Scan(
		&att.ID, &att.EntryID, &att.UserID, &att.FileName, &att.Size,
		&att.StorageKey, &att.Nonce, &att.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Attachment{}, model.ErrNotFound
		}
		return model.Attachment{}, fmt.Errorf("failed to get attachment by id: %w", err)
	}
	return att, nil
}

func (r *AttachmentRepository) GetByEntryID(ctx context.Context, entryID uuid.UUID) ([]model.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE entry_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments by entry id: %w", err)
	}
	defer rows.Close()

	var atts []model.Attachment
	for rows.Next() {
		var att model.Attachment
		err := rows.Scan(
			&att.ID, &att.EntryID, &att.UserID, &att.FileName, &att.Size,
			&att.StorageKey, &att.Nonce, &att.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		atts = append(atts, att)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return atts, nil
}

func (r *AttachmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
