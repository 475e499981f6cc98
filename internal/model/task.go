package model

import (
	"fmt"
	"time"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	// TaskStatusWaiting is the status of a task that has been created but not started.
	TaskStatusWaiting TaskStatus = "waiting"
	// TaskStatusRunning indicates the agent is working on the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusSuspended indicates the task was interrupted.
	TaskStatusSuspended TaskStatus = "suspended"
	// TaskStatusFinished indicates the task finished successfully.
	TaskStatusFinished TaskStatus = "finished"
	// TaskStatusError indicates the task failed.
	TaskStatusError TaskStatus = "error"
)

// IsTerminal returns true if the status ends a task run.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSuspended, TaskStatusFinished, TaskStatusError:
		return true
	}
	return false
}

// IsValid returns true if the status is a known one.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusWaiting, TaskStatusRunning, TaskStatusSuspended, TaskStatusFinished, TaskStatusError:
		return true
	}
	return false
}

// CanTransitionTo returns true if a task in status s can be moved to next.
// Terminal statuses are final, writing the same status again is allowed (no-op).
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	// Nothing goes back to waiting.
	return next != TaskStatusWaiting
}

// Instruction is the kind of order sent to the agent.
type Instruction string

const (
	InstructionNormal    Instruction = "normal"
	InstructionFollowUp  Instruction = "follow_up"
	InstructionInterrupt Instruction = "interrupt"
)

// TaskMode is the agent working mode.
type TaskMode string

const (
	TaskModeChat TaskMode = "chat"
	TaskModePlan TaskMode = "plan"
)

// Task represents one agent turn on a topic.
type Task struct {
	ID               string
	TopicID          string
	UserID           string
	OrganizationCode string
	SandboxID        string
	// ProtocolTaskID is the task id assigned by the sandbox agent on the chat handshake.
	ProtocolTaskID string
	Prompt         string
	// Attachments is the serialized list of the attachments sent with the prompt.
	Attachments string
	Instruction Instruction
	Status      TaskStatus
	ErrMessage  string
	WorkDir     string
	TaskMode    TaskMode
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate validates the task.
func (t Task) Validate() error {
	if t.TopicID == "" {
		return fmt.Errorf("topic id is required: %w", ErrNotValid)
	}
	if t.UserID == "" {
		return fmt.Errorf("user id is required: %w", ErrNotValid)
	}
	if t.Prompt == "" {
		return fmt.Errorf("prompt is required: %w", ErrNotValid)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("status %q is not valid: %w", t.Status, ErrNotValid)
	}
	return nil
}

// TaskContext binds a task with its conversation data for a single run.
type TaskContext struct {
	Task               Task
	ChatConversationID string
	ChatTopicID        string
	AgentUserID        string
	SandboxID          string
	Instruction        Instruction
}
