package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/modernalchemist/magic-sub000/cmd/magic/commands"
	"github.com/modernalchemist/magic-sub000/internal/log"
	loglogrus "github.com/modernalchemist/magic-sub000/internal/log/logrus"
)

// Version is the application version (set via ldflags).
var Version = "dev"

// printerCommands write tables or JSON to stdout, logs are disabled unless debugging.
var printerCommands = map[string]bool{
	"task list":   true,
	"task status": true,
}

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	app := kingpin.New("magic", "Sandboxed agent task orchestrator.")
	app.Version(Version)
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	cmds := map[string]commands.Command{}
	register := func(c commands.Command) { cmds[c.Name()] = c }

	register(commands.NewServeCommand(rootCmd, app))
	register(commands.NewRunCommand(rootCmd, app))
	taskCmd := app.Command("task", "Inspect tasks.")
	register(commands.NewTaskListCommand(rootCmd, taskCmd))
	register(commands.NewTaskStatusCommand(rootCmd, taskCmd))

	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	cmd, ok := cmds[cmdName]
	if !ok {
		return fmt.Errorf("unknown command %q", cmdName)
	}

	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// The configuration file can change the logging setup.
	cfg, err := rootCmd.LoadConfig(ctx)
	if err != nil {
		return err
	}
	rootCmd.Config = cfg

	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}
	rootCmd.Logger = newLogger(*rootCmd)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer signalCancel()
	g.Add(
		func() error {
			<-signalCtx.Done()
			rootCmd.Logger.Debugf("Stopping %q command", cmdName)
			return nil
		},
		func(_ error) { signalCancel() },
	)

	g.Add(
		func() error {
			if err := cmd.Run(ctx); err != nil {
				return fmt.Errorf("%q command failed: %w", cmdName, err)
			}
			return nil
		},
		func(_ error) { cancel() },
	)

	return g.Run()
}

func newLogger(root commands.RootCommand) log.Logger {
	if root.NoLog {
		return log.Noop
	}

	l := logrus.New()
	// Stdout belongs to the printers and the event output.
	l.Out = root.Stderr
	if root.Debug {
		l.SetLevel(logrus.DebugLevel)
	}

	switch root.LoggerType {
	case commands.LoggerTypeJSON:
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !root.NoColor,
			DisableColors: root.NoColor,
			FullTimestamp: true,
		})
	}

	logger := loglogrus.NewLogrus(logrus.NewEntry(l)).WithValues(log.Kv{
		"app":     "magic",
		"version": Version,
	})
	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	if err := Run(context.Background(), os.Args, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
