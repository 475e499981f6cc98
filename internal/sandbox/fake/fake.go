package fake

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/sandbox"
)

// GatewayConfig is the configuration for the fake gateway.
type GatewayConfig struct {
	// EndpointTemplate is used to build the agent endpoint, `{id}` is replaced
	// with the sandbox id.
	EndpointTemplate string
	// PendingPolls is the number of status calls a new sandbox reports pending
	// before running.
	PendingPolls int
	Logger       log.Logger
}

func (c *GatewayConfig) defaults() error {
	if c.EndpointTemplate == "" {
		c.EndpointTemplate = "ws://127.0.0.1:8002/ws?sandbox={id}"
	}
	if c.PendingPolls < 0 {
		return fmt.Errorf("pending polls can't be negative")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sandbox.Fake"})
	return nil
}

// Gateway is a fake implementation of the sandbox.Gateway interface.
// It simulates sandboxes in memory without creating anything.
type Gateway struct {
	states       map[string]model.SandboxState
	pending      map[string]int
	createCalls  []sandbox.CreateRequest
	createErr    error
	pendingPolls int
	endpointTmpl string
	mu           sync.Mutex
	logger       log.Logger
}

// NewGateway creates a new fake gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Gateway{
		states:       make(map[string]model.SandboxState),
		pending:      make(map[string]int),
		pendingPolls: cfg.PendingPolls,
		endpointTmpl: cfg.EndpointTemplate,
		logger:       cfg.Logger,
	}, nil
}

// SetState sets the state of a sandbox, creating it if missing.
func (g *Gateway) SetState(id string, state model.SandboxState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[id] = state
	delete(g.pending, id)
}

// SetCreateError makes all the following create calls fail with err (nil clears it).
func (g *Gateway) SetCreateError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createErr = err
}

// CreateCalls returns the create requests received.
func (g *Gateway) CreateCalls() []sandbox.CreateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sandbox.CreateRequest{}, g.createCalls...)
}

// Status returns the state of a sandbox.
func (g *Gateway) Status(ctx context.Context, id string) (model.SandboxState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.states[id]
	if !ok {
		return model.SandboxStateNotFound, nil
	}

	if n := g.pending[id]; n > 0 {
		g.pending[id] = n - 1
		return model.SandboxStatePending, nil
	}

	return state, nil
}

// Create creates a new fake sandbox.
func (g *Gateway) Create(ctx context.Context, req sandbox.CreateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.createCalls = append(g.createCalls, req)
	if g.createErr != nil {
		return "", g.createErr
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	g.states[id] = model.SandboxStateRunning
	g.pending[id] = g.pendingPolls

	g.logger.Infof("Created fake sandbox: %s (previous: %q)", id, req.PreviousID)

	return id, nil
}

// Endpoint returns the agent endpoint of a sandbox.
func (g *Gateway) Endpoint(ctx context.Context, id string) (string, error) {
	return strings.ReplaceAll(g.endpointTmpl, "{id}", id), nil
}

var _ sandbox.Gateway = &Gateway{}
