package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/modernalchemist/magic-sub000/internal/model"
)

// CreateFile creates a new file record.
func (r *Repository) CreateFile(ctx context.Context, f model.File) error {
	query := `
		INSERT INTO files (
			id, topic_id, task_id, user_id, organization_code,
			file_key, file_name, file_extension, file_size,
			parent_id, is_directory, source, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		f.ID,
		f.TopicID,
		f.TaskID,
		f.UserID,
		f.OrganizationCode,
		f.FileKey,
		f.FileName,
		f.FileExtension,
		f.FileSize,
		f.ParentID,
		f.IsDirectory,
		f.Source,
		f.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueErr(err, "files") {
			return fmt.Errorf("file with key %s: %w", f.FileKey, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert file: %w", err)
	}

	r.logger.Debugf("Created file in repository: %s", f.FileKey)
	return nil
}

// GetFileByKey retrieves a file record by its object storage key.
func (r *Repository) GetFileByKey(ctx context.Context, fileKey string) (*model.File, error) {
	query := `
		SELECT
			id, topic_id, task_id, user_id, organization_code,
			file_key, file_name, file_extension, file_size,
			parent_id, is_directory, source, created_at
		FROM files
		WHERE file_key = ?
	`

	var f model.File
	var createdAt int64
	err := r.db.QueryRowContext(ctx, query, fileKey).Scan(
		&f.ID,
		&f.TopicID,
		&f.TaskID,
		&f.UserID,
		&f.OrganizationCode,
		&f.FileKey,
		&f.FileName,
		&f.FileExtension,
		&f.FileSize,
		&f.ParentID,
		&f.IsDirectory,
		&f.Source,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("file with key %s: %w", fileKey, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query file: %w", err)
	}
	f.CreatedAt = timeFromUnix(createdAt)

	return &f, nil
}
