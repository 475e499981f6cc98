package model

import (
	"fmt"
	"time"
)

// Topic is a long-lived conversation thread that owns a sandbox and a sequence of tasks.
type Topic struct {
	ID                 string
	UserID             string
	OrganizationCode   string
	ChatConversationID string
	ChatTopicID        string
	AgentUserID        string
	WorkspaceID        string
	SandboxID          string
	CurrentTaskID      string
	CurrentTaskStatus  TaskStatus
	WorkDir            string
	TaskMode           TaskMode
	// ProjectArchive is the last project archive notification received from the agent (JSON).
	ProjectArchive string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate validates the topic.
func (t Topic) Validate() error {
	if t.UserID == "" {
		return fmt.Errorf("user id is required: %w", ErrNotValid)
	}
	if t.ChatConversationID == "" {
		return fmt.Errorf("chat conversation id is required: %w", ErrNotValid)
	}
	if t.ChatTopicID == "" {
		return fmt.Errorf("chat topic id is required: %w", ErrNotValid)
	}
	return nil
}
