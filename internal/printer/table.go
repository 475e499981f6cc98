package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/notify"
)

// TablePrinter prints task information in a human readable table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintTaskList prints tasks in a table format.
func (t *TablePrinter) PrintTaskList(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tTOPIC\tSTATUS\tSANDBOX\tCREATED")
	for _, task := range tasks {
		sandbox := task.SandboxID
		if sandbox == "" {
			sandbox = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", task.ID, task.TopicID, task.Status, sandbox, TimeAgo(task.CreatedAt))
	}

	return nil
}

// PrintTaskStatus prints detailed task status.
func (t *TablePrinter) PrintTaskStatus(task model.Task) error {
	fmt.Fprintf(t.writer, "ID:          %s\n", task.ID)
	fmt.Fprintf(t.writer, "Topic:       %s\n", task.TopicID)
	fmt.Fprintf(t.writer, "User:        %s\n", task.UserID)
	fmt.Fprintf(t.writer, "Status:      %s\n", task.Status)
	fmt.Fprintf(t.writer, "Mode:        %s\n", task.TaskMode)
	fmt.Fprintf(t.writer, "Instruction: %s\n", task.Instruction)

	if task.SandboxID != "" {
		fmt.Fprintf(t.writer, "Sandbox:     %s\n", task.SandboxID)
	}
	if task.ProtocolTaskID != "" {
		fmt.Fprintf(t.writer, "Agent task:  %s\n", task.ProtocolTaskID)
	}
	if task.ErrMessage != "" {
		fmt.Fprintf(t.writer, "Error:       %s\n", task.ErrMessage)
	}

	fmt.Fprintf(t.writer, "Created:     %s\n", FormatTimestamp(task.CreatedAt))
	fmt.Fprintf(t.writer, "Updated:     %s\n", FormatTimestamp(task.UpdatedAt))
	if task.Status.IsTerminal() {
		fmt.Fprintf(t.writer, "Elapsed:     %s\n", FormatElapsed(task.CreatedAt, task.UpdatedAt))
	}

	return nil
}

// PrintEvent prints a client event as a single line, plus one line per attachment.
func (t *TablePrinter) PrintEvent(env notify.Envelope) error {
	content := strings.TrimSpace(env.Content)
	if env.Tool != nil && env.Tool.Name != "" {
		content = strings.TrimSpace(fmt.Sprintf("[%s] %s", env.Tool.Name, content))
	}

	status := ""
	if env.Status != "" {
		status = fmt.Sprintf(" (%s)", env.Status)
	}
	fmt.Fprintf(t.writer, "#%d %s%s: %s\n", env.Seq, env.Type, status, content)

	for _, a := range env.Attachments {
		fmt.Fprintf(t.writer, "    - %s (%s)\n", a.FileName, FormatBytes(a.FileSize))
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
