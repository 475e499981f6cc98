package orchestrate

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/storage"
)

const defaultLanguage = "en_US"

var limitMessages = map[string]string{
	"en_US": "You already have %d tasks running, please wait until one of them finishes or stop one before starting a new one.",
	"zh_CN": "您当前已有 %d 个任务正在运行，请等待任务完成或终止其中一个任务后再试。",
}

// LimitExceededError is returned when the user reached the running tasks limit.
type LimitExceededError struct {
	// Message is the localized message for the user.
	Message string
	Running int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s (running: %d)", model.ErrUserTaskLimitExceeded, e.Running)
}

func (e *LimitExceededError) Unwrap() error { return model.ErrUserTaskLimitExceeded }

// LimitMessage returns the localized running tasks limit message.
func LimitMessage(lang string, running int) string {
	msg, ok := limitMessages[lang]
	if !ok {
		msg = limitMessages[defaultLanguage]
	}
	return fmt.Sprintf(msg, running)
}

// checkRunningLimit fails when the user has reached the running tasks limit.
// Tasks sharing a sandbox count once, and a topic whose sandbox is already
// counted can always run.
func (s *Service) checkRunningLimit(ctx context.Context, topic model.Topic, lang string) error {
	if s.openMode {
		return nil
	}

	tasks, err := s.repo.ListTasks(ctx, storage.ListTasksOpts{
		UserID:   topic.UserID,
		Statuses: []model.TaskStatus{model.TaskStatusRunning},
	})
	if err != nil {
		return fmt.Errorf("could not list running tasks: %w", err)
	}

	sandboxes := mapset.NewThreadUnsafeSet[string]()
	for _, t := range tasks {
		id := t.SandboxID
		if id == "" {
			id = "task:" + t.ID
		}
		sandboxes.Add(id)
	}

	if topic.SandboxID != "" && sandboxes.Contains(topic.SandboxID) {
		return nil
	}
	if sandboxes.Cardinality() < s.maxRunning {
		return nil
	}

	return &LimitExceededError{
		Message: LimitMessage(lang, sandboxes.Cardinality()),
		Running: sandboxes.Cardinality(),
	}
}
