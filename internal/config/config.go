package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
	"k8s.io/client-go/util/homedir"

	"github.com/modernalchemist/magic-sub000/internal/conventions"
)

// Config is the whole application configuration. Once loaded it's not mutated.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Sandbox     SandboxConfig
	Agent       AgentConfig
	Limits      LimitsConfig
	Delivery    DeliveryConfig
	ObjectStore ObjectStoreConfig
	Credentials CredentialsConfig
	Notify      NotifyConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	ListenAddress string
}

type DatabaseConfig struct {
	// Driver is `sqlite` or `memory`.
	Driver string
	Path   string
}

type SandboxConfig struct {
	// Enabled false runs the agent outside sandboxes (non sandbox mode).
	Enabled bool
	// Gateway is `fake`, `docker` or `remote`.
	Gateway string
	// AgentEndpoint is the agent used on non sandbox mode.
	AgentEndpoint string
	ReadyTimeout  time.Duration
	PollInterval  time.Duration
	Docker        DockerGatewayConfig
	Remote        RemoteGatewayConfig
}

type DockerGatewayConfig struct {
	Image     string
	PullImage bool
	Network   string
	AgentPort int
	Env       map[string]string
}

type RemoteGatewayConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type AgentConfig struct {
	// Mode is `websocket` or `pull`.
	Mode             string
	ConnectTimeout   time.Duration
	InitTimeout      time.Duration
	ChatTimeout      time.Duration
	ReceiveTimeout   time.Duration
	TaskTimeout      time.Duration
	InterruptTimeout time.Duration
	ReadLimit        int64
}

type LimitsConfig struct {
	MaxRunningTasksPerUser int
	OpenMode               bool
}

type DeliveryConfig struct {
	LockTTL        time.Duration
	AcquireTimeout time.Duration
	QueueCapacity  int
	DedupeTTL      time.Duration
	DedupeSize     int
}

type ObjectStoreConfig struct {
	// Driver is `memory`, `s3` or `http`.
	Driver          string
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	BaseURL         string
	URLExpiry       time.Duration
	MaxObjectSize   int64
}

type CredentialsConfig struct {
	// Driver is `none`, `static` or `sts`.
	Driver      string
	RoleARN     string
	STSEndpoint string
	DirPrefix   string
	Duration    time.Duration
}

type NotifyConfig struct {
	// Transport is `memory` or `webhook`.
	Transport  string
	WebhookURL string
	Headers    map[string]string
}

type LoggingConfig struct {
	Debug bool
	JSON  bool
}

// Default returns the default configuration, a single process deployment using
// local sqlite storage and the fake sandbox gateway.
func Default() Config {
	return Config{
		Server:   ServerConfig{ListenAddress: ":8080"},
		Database: DatabaseConfig{Driver: "sqlite", Path: conventions.DBPath(homedir.HomeDir())},
		Sandbox: SandboxConfig{
			Enabled:      true,
			Gateway:      "fake",
			ReadyTimeout: 2 * time.Minute,
			PollInterval: time.Second,
			Docker:       DockerGatewayConfig{AgentPort: conventions.AgentPort},
			Remote:       RemoteGatewayConfig{Timeout: 30 * time.Second},
		},
		Agent: AgentConfig{
			Mode:             "websocket",
			ConnectTimeout:   10 * time.Second,
			InitTimeout:      5 * time.Minute,
			ChatTimeout:      30 * time.Second,
			ReceiveTimeout:   10 * time.Second,
			TaskTimeout:      2 * time.Hour,
			InterruptTimeout: 10 * time.Second,
			ReadLimit:        32 * 1024 * 1024,
		},
		Limits: LimitsConfig{MaxRunningTasksPerUser: 3},
		Delivery: DeliveryConfig{
			LockTTL:       30 * time.Second,
			QueueCapacity: 1024,
			DedupeTTL:     10 * time.Minute,
			DedupeSize:    10000,
		},
		ObjectStore: ObjectStoreConfig{Driver: "memory", Region: "us-east-1", URLExpiry: time.Hour},
		Credentials: CredentialsConfig{Driver: "none", Duration: time.Hour},
		Notify:      NotifyConfig{Transport: "memory"},
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server listen address is required")
	}

	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Sandbox.Enabled {
		switch c.Sandbox.Gateway {
		case "fake":
		case "docker":
			if c.Sandbox.Docker.Image == "" {
				return fmt.Errorf("docker sandbox gateway image is required")
			}
		case "remote":
			if c.Sandbox.Remote.BaseURL == "" {
				return fmt.Errorf("remote sandbox gateway base url is required")
			}
		default:
			return fmt.Errorf("unknown sandbox gateway %q", c.Sandbox.Gateway)
		}
	} else if c.Sandbox.AgentEndpoint == "" {
		return fmt.Errorf("agent endpoint is required when sandboxes are disabled")
	}

	switch c.Agent.Mode {
	case "websocket", "pull":
	default:
		return fmt.Errorf("unknown agent mode %q", c.Agent.Mode)
	}
	for name, d := range map[string]time.Duration{
		"connect":   c.Agent.ConnectTimeout,
		"init":      c.Agent.InitTimeout,
		"chat":      c.Agent.ChatTimeout,
		"receive":   c.Agent.ReceiveTimeout,
		"task":      c.Agent.TaskTimeout,
		"interrupt": c.Agent.InterruptTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("agent %s timeout must be positive", name)
		}
	}
	if c.Agent.ReceiveTimeout > c.Agent.TaskTimeout {
		return fmt.Errorf("agent receive timeout can't be greater than the task timeout")
	}

	if c.Limits.MaxRunningTasksPerUser <= 0 && !c.Limits.OpenMode {
		return fmt.Errorf("max running tasks per user must be positive")
	}
	if c.Delivery.LockTTL <= 0 {
		return fmt.Errorf("delivery lock ttl must be positive")
	}
	if c.Delivery.AcquireTimeout < 0 {
		return fmt.Errorf("delivery acquire timeout can't be negative")
	}

	switch c.ObjectStore.Driver {
	case "memory":
	case "s3":
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("object store bucket is required for s3")
		}
	case "http":
		if c.ObjectStore.BaseURL == "" {
			return fmt.Errorf("object store base url is required for http")
		}
	default:
		return fmt.Errorf("unknown object store driver %q", c.ObjectStore.Driver)
	}

	switch c.Credentials.Driver {
	case "none", "static":
	case "sts":
		if c.Credentials.RoleARN == "" {
			return fmt.Errorf("credentials role arn is required for sts")
		}
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("object store bucket is required for sts credentials")
		}
	default:
		return fmt.Errorf("unknown credentials driver %q", c.Credentials.Driver)
	}

	switch c.Notify.Transport {
	case "memory":
	case "webhook":
		if c.Notify.WebhookURL == "" {
			return fmt.Errorf("notify webhook url is required")
		}
	default:
		return fmt.Errorf("unknown notify transport %q", c.Notify.Transport)
	}

	return nil
}

// Loader loads configuration files.
type Loader struct {
	fs fs.FS
}

// NewLoader returns a new config loader that reads from the filesystem.
func NewLoader(filesystem fs.FS) *Loader {
	return &Loader{fs: filesystem}
}

// Load loads a YAML or TOML (by extension) configuration file on top of the
// defaults. `${VAR}` references are expanded from the environment.
func (l *Loader) Load(ctx context.Context, path string) (Config, error) {
	data, err := fs.ReadFile(l.fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return Config{}, ctx.Err()
	}

	data = []byte(os.ExpandEnv(string(data)))

	var file fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parsing YAML: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &file); err != nil {
			return Config{}, fmt.Errorf("parsing TOML: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config file format %q", filepath.Ext(path))
	}

	cfg := Default()
	if err := file.apply(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
