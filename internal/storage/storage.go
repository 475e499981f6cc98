package storage

import (
	"context"

	"github.com/modernalchemist/magic-sub000/internal/model"
)

// ListTasksOpts are the filters used to list tasks, empty fields don't filter.
type ListTasksOpts struct {
	UserID   string
	TopicID  string
	Statuses []model.TaskStatus
	Limit    int
}

// TaskRepository is the interface for task persistence.
type TaskRepository interface {
	CreateTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, opts ListTasksOpts) ([]model.Task, error)
	// UpdateTaskRun sets the sandbox and the protocol task ids of a task run, empty
	// values leave the stored ones untouched.
	UpdateTaskRun(ctx context.Context, id, sandboxID, protocolTaskID string) error
	// UpdateTaskStatus is the only status write of a task, it also updates the status
	// of the topic if the task is its current one. Terminal statuses are never
	// overwritten, writing the same status again is a no-op. Returns true when the
	// status changed.
	UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus, errMsg string) (bool, error)
}

// TopicRepository is the interface for topic persistence.
type TopicRepository interface {
	CreateTopic(ctx context.Context, t model.Topic) error
	GetTopic(ctx context.Context, id string) (*model.Topic, error)
	// SetTopicSandbox sets the sandbox bound to the topic.
	SetTopicSandbox(ctx context.Context, id, sandboxID string) error
	// SetTopicProjectArchive sets the latest project archive of the topic.
	SetTopicProjectArchive(ctx context.Context, id, archive string) error
	// SetTopicCurrentTask makes a task the current one of the topic, the topic
	// status and task mode are copied from the stored task.
	SetTopicCurrentTask(ctx context.Context, id, taskID string) error
}

// FileRepository is the interface for durable file records.
type FileRepository interface {
	// CreateFile returns model.ErrAlreadyExists if a file with the same key exists.
	CreateFile(ctx context.Context, f model.File) error
	GetFileByKey(ctx context.Context, fileKey string) (*model.File, error)
}

// Repository is the interface for all the persistence.
type Repository interface {
	TaskRepository
	TopicRepository
	FileRepository
}
