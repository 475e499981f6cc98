package printer

import (
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/notify"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONPrinter prints task information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem is a task in the list output (subset of fields).
type listItem struct {
	ID        string    `json:"id"`
	TopicID   string    `json:"topic_id"`
	Status    string    `json:"status"`
	SandboxID string    `json:"sandbox_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type statusOutput struct {
	ID             string    `json:"id"`
	TopicID        string    `json:"topic_id"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	TaskMode       string    `json:"task_mode"`
	Instruction    string    `json:"instruction"`
	SandboxID      string    `json:"sandbox_id,omitempty"`
	ProtocolTaskID string    `json:"protocol_task_id,omitempty"`
	ErrMessage     string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type messageOutput struct {
	Message string `json:"message"`
}

// PrintTaskList prints tasks in JSON format with a subset of fields.
func (j *JSONPrinter) PrintTaskList(tasks []model.Task) error {
	items := make([]listItem, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, listItem{
			ID:        t.ID,
			TopicID:   t.TopicID,
			Status:    string(t.Status),
			SandboxID: t.SandboxID,
			CreatedAt: t.CreatedAt.UTC(),
		})
	}

	return j.encode(items)
}

// PrintTaskStatus prints the task in JSON format.
func (j *JSONPrinter) PrintTaskStatus(t model.Task) error {
	return j.encode(statusOutput{
		ID:             t.ID,
		TopicID:        t.TopicID,
		UserID:         t.UserID,
		Status:         string(t.Status),
		TaskMode:       string(t.TaskMode),
		Instruction:    string(t.Instruction),
		SandboxID:      t.SandboxID,
		ProtocolTaskID: t.ProtocolTaskID,
		ErrMessage:     t.ErrMessage,
		CreatedAt:      t.CreatedAt.UTC(),
		UpdatedAt:      t.UpdatedAt.UTC(),
	})
}

// PrintEvent prints the event as a single JSON line so event streams can be piped.
func (j *JSONPrinter) PrintEvent(env notify.Envelope) error {
	return json.NewEncoder(j.writer).Encode(env)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
