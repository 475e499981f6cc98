package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"

	"github.com/modernalchemist/magic-sub000/internal/conventions"
	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/sandbox"
)

// ServiceConfig is the configuration for the lifecycle service.
type ServiceConfig struct {
	Gateway sandbox.Gateway
	// NonSandboxMode doesn't use sandboxes, the topic id is used as the sandbox id
	// and the agent always needs initialization.
	NonSandboxMode bool
	// AgentEndpoint is the agent endpoint used on non sandbox mode.
	AgentEndpoint string
	// ReadyTimeout is the max time waiting for a new sandbox to be running.
	ReadyTimeout time.Duration
	// PollInterval is the interval between readiness checks.
	PollInterval time.Duration
	Logger       log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Gateway == nil && !c.NonSandboxMode {
		return fmt.Errorf("gateway is required")
	}
	if c.NonSandboxMode && c.AgentEndpoint == "" {
		c.AgentEndpoint = conventions.LocalAgentEndpoint
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = 2 * time.Minute
	}
	if c.PollInterval == 0 {
		c.PollInterval = time.Second
	}
	if c.PollInterval > c.ReadyTimeout {
		return fmt.Errorf("poll interval can't be greater than ready timeout")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Lifecycle"})
	return nil
}

// Service decides if a sandbox can be reused or a new one is required.
type Service struct {
	gateway        sandbox.Gateway
	nonSandboxMode bool
	agentEndpoint  string
	readyAttempts  uint
	pollInterval   time.Duration
	logger         log.Logger
}

// NewService creates a new lifecycle service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	attempts := uint(cfg.ReadyTimeout / cfg.PollInterval)
	if attempts == 0 {
		attempts = 1
	}

	return &Service{
		gateway:        cfg.Gateway,
		nonSandboxMode: cfg.NonSandboxMode,
		agentEndpoint:  cfg.AgentEndpoint,
		readyAttempts:  attempts,
		pollInterval:   cfg.PollInterval,
		logger:         cfg.Logger,
	}, nil
}

// ResolveRequest is the request to resolve the sandbox of a task.
type ResolveRequest struct {
	ExistingSandboxID string
	TopicID           string
	UserID            string
}

// Resolution is the sandbox the task will use.
type Resolution struct {
	SandboxID string
	// NeedsInit is true when the agent has not been initialized yet (new sandbox).
	NeedsInit bool
}

// Resolve returns the sandbox to use, reusing the existing one if it's running or
// creating a new one otherwise.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (Resolution, error) {
	if s.nonSandboxMode {
		if req.TopicID == "" {
			return Resolution{}, fmt.Errorf("topic id is required: %w", model.ErrNotValid)
		}
		return Resolution{SandboxID: req.TopicID, NeedsInit: true}, nil
	}

	logger := s.logger.WithValues(log.Kv{"topic_id": req.TopicID, "sandbox_id": req.ExistingSandboxID})

	if req.ExistingSandboxID != "" {
		state, err := s.gateway.Status(ctx, req.ExistingSandboxID)
		switch {
		case err != nil:
			logger.Warningf("Could not get sandbox status, a new one will be created: %s", err)
		case state == model.SandboxStateRunning:
			logger.Debugf("Reusing running sandbox")
			return Resolution{SandboxID: req.ExistingSandboxID, NeedsInit: false}, nil
		default:
			logger.Infof("Sandbox is not usable (%s), a new one will be created", state)
		}
	}

	id, err := s.gateway.Create(ctx, sandbox.CreateRequest{
		PreviousID: req.ExistingSandboxID,
		TopicID:    req.TopicID,
		UserID:     req.UserID,
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("could not create sandbox: %w: %w", model.ErrSandboxCreateFailed, err)
	}
	if id == "" {
		return Resolution{}, fmt.Errorf("gateway returned an empty sandbox id: %w", model.ErrSandboxCreateFailed)
	}

	if err := s.waitReady(ctx, id); err != nil {
		return Resolution{}, fmt.Errorf("sandbox %s not ready: %w: %w", id, model.ErrSandboxCreateFailed, err)
	}

	logger.Infof("New sandbox %s ready", id)

	return Resolution{SandboxID: id, NeedsInit: true}, nil
}

// Endpoint returns the agent endpoint of a resolved sandbox.
func (s *Service) Endpoint(ctx context.Context, sandboxID string) (string, error) {
	if s.nonSandboxMode {
		return s.agentEndpoint, nil
	}

	endpoint, err := s.gateway.Endpoint(ctx, sandboxID)
	if err != nil {
		return "", fmt.Errorf("could not get sandbox %s endpoint: %w", sandboxID, err)
	}

	return endpoint, nil
}

// IsRunning returns true if the sandbox is reachable. Status errors are handled
// as not running.
func (s *Service) IsRunning(ctx context.Context, sandboxID string) bool {
	if s.nonSandboxMode {
		return true
	}
	if sandboxID == "" {
		return false
	}

	state, err := s.gateway.Status(ctx, sandboxID)
	if err != nil {
		s.logger.Warningf("Could not get sandbox %s status: %s", sandboxID, err)
		return false
	}

	return state == model.SandboxStateRunning
}

var (
	errNotReady = errors.New("sandbox not ready")
	errExited   = errors.New("sandbox exited while starting")
)

func (s *Service) waitReady(ctx context.Context, id string) error {
	return retry.Do(
		func() error {
			state, err := s.gateway.Status(ctx, id)
			if err != nil {
				return fmt.Errorf("could not get sandbox status: %w", err)
			}
			switch state {
			case model.SandboxStateRunning:
				return nil
			case model.SandboxStateExited:
				return errExited
			default:
				return fmt.Errorf("sandbox is %s: %w", state, errNotReady)
			}
		},
		retry.Context(ctx),
		retry.Attempts(s.readyAttempts),
		retry.Delay(s.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, errExited) }),
	)
}
