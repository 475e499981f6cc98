package orchestrate

import (
	"context"
	"fmt"

	"github.com/modernalchemist/magic-sub000/internal/model"
)

// CreateTopicRequest is the request to create a conversation topic.
type CreateTopicRequest struct {
	UserID             string
	OrganizationCode   string
	ChatConversationID string
	ChatTopicID        string
	AgentUserID        string
	WorkspaceID        string
	WorkDir            string
	TaskMode           model.TaskMode
}

// CreateTopic stores a new topic and returns it. Topics are owned by an external
// service in production, this is the entrypoint for local setups.
func (s *Service) CreateTopic(ctx context.Context, req CreateTopicRequest) (*model.Topic, error) {
	switch req.TaskMode {
	case "":
		req.TaskMode = model.TaskModeChat
	case model.TaskModeChat, model.TaskModePlan:
	default:
		return nil, fmt.Errorf("unknown task mode %q: %w", req.TaskMode, model.ErrNotValid)
	}

	now := s.timeNowFn()
	topic := model.Topic{
		ID:                 s.newIDFn(),
		UserID:             req.UserID,
		OrganizationCode:   req.OrganizationCode,
		ChatConversationID: req.ChatConversationID,
		ChatTopicID:        req.ChatTopicID,
		AgentUserID:        req.AgentUserID,
		WorkspaceID:        req.WorkspaceID,
		WorkDir:            req.WorkDir,
		TaskMode:           req.TaskMode,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := topic.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.CreateTopic(ctx, topic); err != nil {
		return nil, fmt.Errorf("could not create topic: %w", err)
	}

	s.logger.Infof("Topic %s created for user %s", topic.ID, topic.UserID)

	return &topic, nil
}

// GetTask returns a task of a user.
func (s *Service) GetTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if userID != "" && task.UserID != userID {
		return nil, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}

	return task, nil
}
