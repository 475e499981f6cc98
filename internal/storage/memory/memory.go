package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	tasks     map[string]model.Task
	topics    map[string]model.Topic
	files     map[string]model.File // By file key.
	mu        sync.RWMutex
	logger    log.Logger
	timeNowFn func() time.Time
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		tasks:     make(map[string]model.Task),
		topics:    make(map[string]model.Topic),
		files:     make(map[string]model.File),
		logger:    cfg.Logger,
		timeNowFn: func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; ok {
		return fmt.Errorf("task with id %s: %w", t.ID, model.ErrAlreadyExists)
	}

	r.tasks[t.ID] = t
	r.logger.Debugf("Created task in repository: %s", t.ID)

	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	// Return a copy
	taskCopy := task
	return &taskCopy, nil
}

// ListTasks returns the tasks matching the options, newest first.
func (r *Repository) ListTasks(ctx context.Context, opts storage.ListTasksOpts) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := []model.Task{}
	for _, t := range r.tasks {
		if opts.UserID != "" && t.UserID != opts.UserID {
			continue
		}
		if opts.TopicID != "" && t.TopicID != opts.TopicID {
			continue
		}
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, t.Status) {
			continue
		}
		tasks = append(tasks, t)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if opts.Limit > 0 && len(tasks) > opts.Limit {
		tasks = tasks[:opts.Limit]
	}

	return tasks, nil
}

// UpdateTaskRun sets the run identifiers of a task.
func (r *Repository) UpdateTaskRun(ctx context.Context, id, sandboxID, protocolTaskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	if sandboxID != "" {
		task.SandboxID = sandboxID
	}
	if protocolTaskID != "" {
		task.ProtocolTaskID = protocolTaskID
	}
	task.UpdatedAt = r.timeNowFn()
	r.tasks[id] = task

	return nil
}

// UpdateTaskStatus updates the status of a task and its topic.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus, errMsg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return false, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	if task.Status == status || !task.Status.CanTransitionTo(status) {
		r.logger.Debugf("Ignoring task %s status write %s -> %s", id, task.Status, status)
		return false, nil
	}

	now := r.timeNowFn()
	task.Status = status
	task.ErrMessage = errMsg
	task.UpdatedAt = now
	r.tasks[id] = task

	if topic, ok := r.topics[task.TopicID]; ok && topic.CurrentTaskID == id {
		topic.CurrentTaskStatus = status
		topic.UpdatedAt = now
		r.topics[topic.ID] = topic
	}

	return true, nil
}

// CreateTopic creates a new topic in the repository.
func (r *Repository) CreateTopic(ctx context.Context, t model.Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[t.ID]; ok {
		return fmt.Errorf("topic with id %s: %w", t.ID, model.ErrAlreadyExists)
	}

	r.topics[t.ID] = t
	r.logger.Debugf("Created topic in repository: %s", t.ID)

	return nil
}

// GetTopic retrieves a topic by ID.
func (r *Repository) GetTopic(ctx context.Context, id string) (*model.Topic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topic, ok := r.topics[id]
	if !ok {
		return nil, fmt.Errorf("topic %s: %w", id, model.ErrNotFound)
	}

	topicCopy := topic
	return &topicCopy, nil
}

// SetTopicSandbox sets the sandbox of a topic.
func (r *Repository) SetTopicSandbox(ctx context.Context, id, sandboxID string) error {
	return r.setTopic(id, func(t *model.Topic) error {
		t.SandboxID = sandboxID
		return nil
	})
}

// SetTopicProjectArchive sets the project archive of a topic.
func (r *Repository) SetTopicProjectArchive(ctx context.Context, id, archive string) error {
	return r.setTopic(id, func(t *model.Topic) error {
		t.ProjectArchive = archive
		return nil
	})
}

// SetTopicCurrentTask sets the current task of a topic.
func (r *Repository) SetTopicCurrentTask(ctx context.Context, id, taskID string) error {
	return r.setTopic(id, func(t *model.Topic) error {
		task, ok := r.tasks[taskID]
		if !ok {
			return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
		}
		t.CurrentTaskID = task.ID
		t.CurrentTaskStatus = task.Status
		t.TaskMode = task.TaskMode
		return nil
	})
}

func (r *Repository) setTopic(id string, fn func(t *model.Topic) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[id]
	if !ok {
		return fmt.Errorf("topic %s: %w", id, model.ErrNotFound)
	}
	if err := fn(&t); err != nil {
		return err
	}
	t.UpdatedAt = r.timeNowFn()
	r.topics[id] = t
	r.logger.Debugf("Updated topic in repository: %s", id)

	return nil
}

// CreateFile creates a new file record.
func (r *Repository) CreateFile(ctx context.Context, f model.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[f.FileKey]; ok {
		return fmt.Errorf("file with key %s: %w", f.FileKey, model.ErrAlreadyExists)
	}

	r.files[f.FileKey] = f
	r.logger.Debugf("Created file in repository: %s", f.FileKey)

	return nil
}

// GetFileByKey retrieves a file record by its object storage key.
func (r *Repository) GetFileByKey(ctx context.Context, fileKey string) (*model.File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.files[fileKey]
	if !ok {
		return nil, fmt.Errorf("file with key %s: %w", fileKey, model.ErrNotFound)
	}

	fCopy := f
	return &fCopy, nil
}

var _ storage.Repository = &Repository{}
