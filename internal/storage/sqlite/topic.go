package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/modernalchemist/magic-sub000/internal/model"
)

const topicColumns = `
	id, user_id, organization_code,
	chat_conversation_id, chat_topic_id, agent_user_id,
	workspace_id, sandbox_id,
	current_task_id, current_task_status,
	work_dir, task_mode, project_archive,
	created_at, updated_at`

// CreateTopic creates a new topic in the repository.
func (r *Repository) CreateTopic(ctx context.Context, t model.Topic) error {
	query := `INSERT INTO topics (` + topicColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.UserID,
		t.OrganizationCode,
		t.ChatConversationID,
		t.ChatTopicID,
		t.AgentUserID,
		t.WorkspaceID,
		t.SandboxID,
		t.CurrentTaskID,
		t.CurrentTaskStatus,
		t.WorkDir,
		t.TaskMode,
		t.ProjectArchive,
		t.CreatedAt.Unix(),
		t.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueErr(err, "topics") {
			return fmt.Errorf("topic already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert topic: %w", err)
	}

	r.logger.Debugf("Created topic in repository: %s", t.ID)
	return nil
}

// GetTopic retrieves a topic by ID.
func (r *Repository) GetTopic(ctx context.Context, id string) (*model.Topic, error) {
	query := `SELECT ` + topicColumns + ` FROM topics WHERE id = ?`

	var t model.Topic
	var createdAt, updatedAt int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.UserID,
		&t.OrganizationCode,
		&t.ChatConversationID,
		&t.ChatTopicID,
		&t.AgentUserID,
		&t.WorkspaceID,
		&t.SandboxID,
		&t.CurrentTaskID,
		&t.CurrentTaskStatus,
		&t.WorkDir,
		&t.TaskMode,
		&t.ProjectArchive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("topic %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query topic: %w", err)
	}
	t.CreatedAt = timeFromUnix(createdAt)
	t.UpdatedAt = timeFromUnix(updatedAt)

	return &t, nil
}

// SetTopicSandbox sets the sandbox of a topic.
func (r *Repository) SetTopicSandbox(ctx context.Context, id, sandboxID string) error {
	query := `UPDATE topics SET sandbox_id = ?, updated_at = ? WHERE id = ?`
	return r.execTopicUpdate(ctx, id, query, sandboxID, r.timeNowFn().Unix(), id)
}

// SetTopicProjectArchive sets the project archive of a topic.
func (r *Repository) SetTopicProjectArchive(ctx context.Context, id, archive string) error {
	query := `UPDATE topics SET project_archive = ?, updated_at = ? WHERE id = ?`
	return r.execTopicUpdate(ctx, id, query, archive, r.timeNowFn().Unix(), id)
}

// SetTopicCurrentTask sets the current task of a topic. The status is read from
// the task row in the same statement so a concurrent status write is never lost.
func (r *Repository) SetTopicCurrentTask(ctx context.Context, id, taskID string) error {
	query := `
		UPDATE topics
		SET
			current_task_id = ?,
			current_task_status = (SELECT status FROM tasks WHERE id = ?),
			task_mode = (SELECT task_mode FROM tasks WHERE id = ?),
			updated_at = ?
		WHERE id = ? AND EXISTS (SELECT 1 FROM tasks WHERE id = ?)
	`
	return r.execTopicUpdate(ctx, id, query, taskID, taskID, taskID, r.timeNowFn().Unix(), id, taskID)
}

func (r *Repository) execTopicUpdate(ctx context.Context, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("could not update topic: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("topic %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Updated topic in repository: %s", id)
	return nil
}
