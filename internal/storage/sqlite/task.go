package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/storage"
)

const taskColumns = `
	id, topic_id, user_id, organization_code,
	sandbox_id, protocol_task_id,
	prompt, attachments, instruction,
	status, err_message,
	work_dir, task_mode,
	created_at, updated_at`

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.TopicID,
		t.UserID,
		t.OrganizationCode,
		t.SandboxID,
		t.ProtocolTaskID,
		t.Prompt,
		t.Attachments,
		t.Instruction,
		t.Status,
		t.ErrMessage,
		t.WorkDir,
		t.TaskMode,
		t.CreatedAt.Unix(),
		t.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueErr(err, "tasks") {
			return fmt.Errorf("task already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert task: %w", err)
	}

	r.logger.Debugf("Created task in repository: %s", t.ID)
	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task: %w", err)
	}

	return &task, nil
}

// ListTasks returns the tasks matching the options, newest first.
func (r *Repository) ListTasks(ctx context.Context, opts storage.ListTasksOpts) ([]model.Task, error) {
	var (
		where []string
		args  []any
	)
	if opts.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, opts.UserID)
	}
	if opts.TopicID != "" {
		where = append(where, "topic_id = ?")
		args = append(args, opts.TopicID)
	}
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for _, s := range opts.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, s)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

// UpdateTaskRun sets the run identifiers of a task.
func (r *Repository) UpdateTaskRun(ctx context.Context, id, sandboxID, protocolTaskID string) error {
	query := `
		UPDATE tasks
		SET
			sandbox_id = CASE WHEN ? = '' THEN sandbox_id ELSE ? END,
			protocol_task_id = CASE WHEN ? = '' THEN protocol_task_id ELSE ? END,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, sandboxID, sandboxID, protocolTaskID, protocolTaskID, r.timeNowFn().Unix(), id)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	return nil
}

// UpdateTaskStatus updates the status of a task and its topic in a single transaction.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus, errMsg string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // Rollback is safe to call after Commit

	var current model.TaskStatus
	var topicID string
	err = tx.QueryRowContext(ctx, `SELECT status, topic_id FROM tasks WHERE id = ?`, id).Scan(&current, &topicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return false, fmt.Errorf("could not query task status: %w", err)
	}

	if current == status || !current.CanTransitionTo(status) {
		r.logger.Debugf("Ignoring task %s status write %s -> %s", id, current, status)
		return false, nil
	}

	now := r.timeNowFn().Unix()

	// Guard on the read status so a concurrent writer can't be overwritten.
	result, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, err_message = ?, updated_at = ? WHERE id = ? AND status = ?`, status, errMsg, now, id, current)
	if err != nil {
		return false, fmt.Errorf("could not update task status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE topics SET current_task_status = ?, updated_at = ? WHERE id = ? AND current_task_id = ?`, status, now, topicID, id)
	if err != nil {
		return false, fmt.Errorf("could not update topic status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Task %s status updated: %s -> %s", id, current, status)
	return true, nil
}

func scanTask(s scanner) (model.Task, error) {
	var t model.Task
	var createdAt, updatedAt int64

	err := s.Scan(
		&t.ID,
		&t.TopicID,
		&t.UserID,
		&t.OrganizationCode,
		&t.SandboxID,
		&t.ProtocolTaskID,
		&t.Prompt,
		&t.Attachments,
		&t.Instruction,
		&t.Status,
		&t.ErrMessage,
		&t.WorkDir,
		&t.TaskMode,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.Task{}, err
	}

	t.CreatedAt = timeFromUnix(createdAt)
	t.UpdatedAt = timeFromUnix(updatedAt)

	return t, nil
}
