package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/modernalchemist/magic-sub000/internal/config"
	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/printer"
	"github.com/modernalchemist/magic-sub000/internal/utils/env"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	ConfigPath string
	DBPath     string
	AgentMode  string
	SandboxEnv []string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
	Config config.Config
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("config", "Path to the YAML or TOML configuration file.").Short('c').StringVar(&c.ConfigPath)
	app.Flag("db-path", "Path to the SQLite database file (overrides the configuration).").StringVar(&c.DBPath)
	app.Flag("agent-mode", "How agent frames are received (overrides the configuration).").EnumVar(&c.AgentMode, "websocket", "pull")
	app.Flag("sandbox-env", "Extra sandbox agent env var as KEY=VALUE or KEY (inherited), repeatable.").StringsVar(&c.SandboxEnv)

	return c
}

// LoadConfig loads the configuration file (if any) and applies the global flag overrides.
func (r *RootCommand) LoadConfig(ctx context.Context) (config.Config, error) {
	cfg := config.Default()
	if r.ConfigPath != "" {
		path, err := filepath.Abs(r.ConfigPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid config path: %w", err)
		}

		cfg, err = config.NewLoader(os.DirFS(filepath.Dir(path))).Load(ctx, filepath.Base(path))
		if err != nil {
			return config.Config{}, fmt.Errorf("could not load config: %w", err)
		}
	}

	if r.DBPath != "" {
		cfg.Database.Path = r.DBPath
	}
	if r.AgentMode != "" {
		cfg.Agent.Mode = r.AgentMode
	}
	if len(r.SandboxEnv) > 0 {
		extra, err := env.ParseSpecs(r.SandboxEnv)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid sandbox env: %w", err)
		}
		cfg.Sandbox.Docker.Env = env.Merge(cfg.Sandbox.Docker.Env, extra)
	}
	if cfg.Logging.Debug {
		r.Debug = true
	}
	if cfg.Logging.JSON && r.LoggerType == LoggerTypeDefault {
		r.LoggerType = LoggerTypeJSON
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func newPrinter(format string, w io.Writer) printer.Printer {
	switch format {
	case "json":
		return printer.NewJSONPrinter(w)
	default: // table
		return printer.NewTablePrinter(w)
	}
}
