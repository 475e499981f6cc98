package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/modernalchemist/magic-sub000/internal/app/orchestrate"
	"github.com/modernalchemist/magic-sub000/internal/model"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	prompt   string
	userID   string
	topicID  string
	workDir  string
	taskMode string
	language string
	format   string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a single task in process and follow its events until it ends.")
	c.Cmd.Arg("prompt", "The task prompt.").Required().StringVar(&c.prompt)
	c.Cmd.Flag("user", "User that runs the task.").Default("local").StringVar(&c.userID)
	c.Cmd.Flag("topic", "Existing topic ID, a new topic is created when missing.").StringVar(&c.topicID)
	c.Cmd.Flag("work-dir", "Agent working directory for new topics.").StringVar(&c.workDir)
	c.Cmd.Flag("mode", "Task mode.").Default(string(model.TaskModeChat)).EnumVar(&c.taskMode, string(model.TaskModeChat), string(model.TaskModePlan))
	c.Cmd.Flag("language", "Language of the user facing errors (e.g: en_US, zh_CN).").StringVar(&c.language)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger
	cfg := c.rootCmd.Config
	if cfg.Agent.Mode != string(orchestrate.ModeWebsocket) {
		return fmt.Errorf("run command requires the websocket agent mode, got %q", cfg.Agent.Mode)
	}

	svcs, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.close()

	topicID := c.topicID
	if topicID == "" {
		topic, err := svcs.orchestrator.CreateTopic(ctx, orchestrate.CreateTopicRequest{
			UserID:             c.userID,
			ChatConversationID: "cli",
			ChatTopicID:        "cli",
			WorkDir:            c.workDir,
			TaskMode:           model.TaskMode(c.taskMode),
		})
		if err != nil {
			return fmt.Errorf("could not create topic: %w", err)
		}
		topicID = topic.ID
	}

	// Subscribe before submitting so no event is lost.
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := svcs.events.Subscribe(subCtx, topicID)

	taskID, err := svcs.orchestrator.Submit(ctx, orchestrate.SubmitRequest{
		UserID:   c.userID,
		TopicID:  topicID,
		Prompt:   c.prompt,
		TaskMode: model.TaskMode(c.taskMode),
		Language: c.language,
	})
	if err != nil {
		return fmt.Errorf("could not submit task: %w", err)
	}
	logger.Infof("Task %s submitted on topic %s", taskID, topicID)

	// Stop following when the run ends, even if the terminal event was dropped.
	go func() {
		svcs.orchestrator.Wait()
		cancel()
	}()

	p := newPrinter(c.format, c.rootCmd.Stdout)
	for env := range events {
		if env.TaskID != taskID {
			continue
		}
		if err := p.PrintEvent(env); err != nil {
			return fmt.Errorf("could not print event: %w", err)
		}
		if env.Status.IsTerminal() {
			break
		}
	}

	// Interrupted by the user, the run is cancelled so the task doesn't stay running.
	if ctx.Err() != nil {
		expired, cancel := context.WithCancel(context.Background())
		cancel()
		if err := svcs.orchestrator.Shutdown(expired); err != nil {
			logger.Warningf("Task %s cancelled", taskID)
		}
		return nil
	}

	svcs.orchestrator.Wait()

	task, err := svcs.orchestrator.GetTask(ctx, c.userID, taskID)
	if err != nil {
		return err
	}
	if task.Status == model.TaskStatusError {
		return fmt.Errorf("task %s failed: %s", task.ID, task.ErrMessage)
	}

	return nil
}
