// Package protocol has the wire frames exchanged with the agent running inside a sandbox.
//
// Every frame is a JSON object with a metadata section, that routes the frame to its
// task and conversation, and a payload section, that has the agent event itself.
package protocol

import (
	"strings"

	"github.com/modernalchemist/magic-sub000/internal/model"
)

// MessageType is the type of a payload.
type MessageType string

const (
	MessageTypeInit           MessageType = "init"
	MessageTypeChat           MessageType = "chat"
	MessageTypeMessage        MessageType = "message"
	MessageTypeThinking       MessageType = "thinking"
	MessageTypeTaskUpdate     MessageType = "task_update"
	MessageTypeToolCall       MessageType = "tool_call"
	MessageTypeAgentReply     MessageType = "agent_reply"
	MessageTypeProjectArchive MessageType = "project_archive"
	MessageTypeError          MessageType = "error"
	MessageTypeFinished       MessageType = "finished"
	MessageTypeReminder       MessageType = "reminder"
)

// IsKnown returns true if the message type is one of the known types.
func (m MessageType) IsKnown() bool {
	switch m {
	case MessageTypeInit, MessageTypeChat, MessageTypeMessage, MessageTypeThinking,
		MessageTypeTaskUpdate, MessageTypeToolCall, MessageTypeAgentReply,
		MessageTypeProjectArchive, MessageTypeError, MessageTypeFinished, MessageTypeReminder:
		return true
	}
	return false
}

// Status is the task status carried by a payload.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusFinished  Status = "finished"
	StatusError     Status = "error"
)

// IsTerminal returns true if the status ends the task.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuspended, StatusFinished, StatusError:
		return true
	}
	return false
}

// TaskStatus maps the wire status to a task status, unknown or empty statuses are
// returned as empty.
func (s Status) TaskStatus() model.TaskStatus {
	switch s {
	case StatusRunning:
		return model.TaskStatusRunning
	case StatusSuspended:
		return model.TaskStatusSuspended
	case StatusFinished:
		return model.TaskStatusFinished
	case StatusError:
		return model.TaskStatusError
	}
	return ""
}

// Metadata routes a frame to its task and conversation.
type Metadata struct {
	AgentUserID        string `json:"agent_user_id"`
	UserID             string `json:"user_id"`
	OrganizationCode   string `json:"organization_code"`
	ChatConversationID string `json:"chat_conversation_id"`
	ChatTopicID        string `json:"chat_topic_id"`
	Instruction        string `json:"instruction"`
	SandboxID          string `json:"sandbox_id"`
	SuperMagicTaskID   string `json:"super_magic_task_id"`
}

// Attachment is a file referenced by a payload or a tool.
type Attachment struct {
	FileKey       string `json:"file_key"`
	FileExtension string `json:"file_extension"`
	FileName      string `json:"filename"`
	FileSize      int64  `json:"file_size,omitempty"`
	FileID        string `json:"file_id,omitempty"`
	FileURL       string `json:"file_url,omitempty"`
	FileTag       string `json:"file_tag,omitempty"`
	// Extra has the agent fields without a struct field, they are relayed untouched.
	Extra Extra `json:"-"`
}

var attachmentFields = []string{"file_key", "file_extension", "filename", "file_size", "file_id", "file_url", "file_tag"}

// UnmarshalJSON satisfies json.Unmarshaler interface.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	type plain Attachment
	var p plain
	extra, err := unmarshalWithExtra(data, &p, attachmentFields)
	if err != nil {
		return err
	}
	*a = Attachment(p)
	a.Extra = extra
	return nil
}

// MarshalJSON satisfies json.Marshaler interface.
func (a Attachment) MarshalJSON() ([]byte, error) {
	type plain Attachment
	return marshalWithExtra(plain(a), a.Extra)
}

// HasRequiredFields returns true if the attachment can be resolved to a file record.
func (a Attachment) HasRequiredFields() bool {
	return a.FileKey != "" && a.FileExtension != "" && a.FileName != ""
}

// Extension returns the normalized (lowercase, no dot) file extension.
func (a Attachment) Extension() string {
	return strings.ToLower(strings.TrimPrefix(a.FileExtension, "."))
}

// Tool is a tool call made by the agent.
type Tool struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Action      string         `json:"action"`
	Status      string         `json:"status"`
	Remark      string         `json:"remark"`
	Detail      map[string]any `json:"detail"`
	Attachments []Attachment   `json:"attachments"`
}

// Step is one of the plan steps reported by the agent.
type Step struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status"`
	Extra  Extra  `json:"-"`
}

var stepFields = []string{"id", "title", "status"}

// UnmarshalJSON satisfies json.Unmarshaler interface.
func (s *Step) UnmarshalJSON(data []byte) error {
	type plain Step
	var p plain
	extra, err := unmarshalWithExtra(data, &p, stepFields)
	if err != nil {
		return err
	}
	*s = Step(p)
	s.Extra = extra
	return nil
}

// MarshalJSON satisfies json.Marshaler interface.
func (s Step) MarshalJSON() ([]byte, error) {
	type plain Step
	return marshalWithExtra(plain(s), s.Extra)
}

// ProjectArchive is the workspace snapshot the agent persisted in object storage.
type ProjectArchive struct {
	Key       string `json:"key"`
	Directory string `json:"directory,omitempty"`
	FileID    string `json:"file_id,omitempty"`
	Version   int64  `json:"version,omitempty"`
}

// UploadConfig has the credentials the agent uses to upload its files.
type UploadConfig struct {
	Platform        string `json:"platform"`
	Region          string `json:"region,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token,omitempty"`
	Dir             string `json:"dir"`
	Expires         int64  `json:"expires,omitempty"`
}

// Payload is the agent event of a frame.
type Payload struct {
	TaskID         string          `json:"task_id"`
	Type           MessageType     `json:"type"`
	Content        string          `json:"content"`
	Status         Status          `json:"status"`
	Tool           *Tool           `json:"tool"`
	Steps          []Step          `json:"steps"`
	Event          string          `json:"event"`
	Attachments    []Attachment    `json:"attachments"`
	ShowInUI       bool            `json:"show_in_ui"`
	MessageID      string          `json:"message_id"`
	ProjectArchive *ProjectArchive `json:"project_archive"`

	// Handshake only fields, sent to the agent.
	Prompt       string        `json:"prompt,omitempty"`
	TaskMode     string        `json:"task_mode,omitempty"`
	WorkDir      string        `json:"work_dir,omitempty"`
	UploadConfig *UploadConfig `json:"upload_config,omitempty"`
}

// Frame is one wire message.
type Frame struct {
	Metadata Metadata `json:"metadata"`
	Payload  Payload  `json:"payload"`
}
