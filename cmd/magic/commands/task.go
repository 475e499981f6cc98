package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/storage"
)

type TaskListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	userID   string
	topicID  string
	statuses []string
	limit    int
	format   string
}

// NewTaskListCommand returns the task list command.
func NewTaskListCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskListCommand {
	c := &TaskListCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("list", "List tasks.")
	c.Cmd.Flag("user", "Filter by user ID.").StringVar(&c.userID)
	c.Cmd.Flag("topic", "Filter by topic ID.").StringVar(&c.topicID)
	c.Cmd.Flag("status", "Filter by status (waiting, running, suspended, finished, error), repeatable.").StringsVar(&c.statuses)
	c.Cmd.Flag("limit", "Max number of tasks, 0 means all.").Default("50").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c TaskListCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskListCommand) Run(ctx context.Context) error {
	statuses, err := parseStatuses(c.statuses)
	if err != nil {
		return err
	}

	repo, _, closeRepo, err := newRepository(ctx, c.rootCmd.Config, c.rootCmd.Logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	tasks, err := repo.ListTasks(ctx, storage.ListTasksOpts{
		UserID:   c.userID,
		TopicID:  c.topicID,
		Statuses: statuses,
		Limit:    c.limit,
	})
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintTaskList(tasks); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}

func parseStatuses(raw []string) ([]model.TaskStatus, error) {
	statuses := make([]model.TaskStatus, 0, len(raw))
	for _, r := range raw {
		s := model.TaskStatus(strings.ToLower(strings.TrimSpace(r)))
		if !s.IsValid() {
			return nil, fmt.Errorf("invalid status filter: %s (must be: waiting, running, suspended, finished, error)", r)
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

type TaskStatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	format string
}

// NewTaskStatusCommand returns the task status command.
func NewTaskStatusCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskStatusCommand {
	c := &TaskStatusCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("status", "Get detailed status of a task.")
	c.Cmd.Arg("id", "Task ID.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c TaskStatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskStatusCommand) Run(ctx context.Context) error {
	repo, _, closeRepo, err := newRepository(ctx, c.rootCmd.Config, c.rootCmd.Logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	task, err := repo.GetTask(ctx, c.taskID)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintTaskStatus(*task); err != nil {
		return fmt.Errorf("could not print status: %w", err)
	}

	return nil
}
