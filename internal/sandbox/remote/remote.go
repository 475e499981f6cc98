package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/sandbox"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GatewayConfig is the configuration for the remote sandbox gateway client.
type GatewayConfig struct {
	// BaseURL is the sandbox gateway service URL (e.g: http://sandbox-gateway:8080).
	BaseURL string
	// Token is sent as bearer token when set.
	Token   string
	Timeout time.Duration
	// HTTPClient is the underlying HTTP client, mainly for tests.
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *GatewayConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sandbox.Remote"})
	return nil
}

// Gateway is a sandbox.Gateway that talks with a sandbox gateway service over HTTP.
type Gateway struct {
	client  *resty.Client
	baseURL string
	logger  log.Logger
}

// NewGateway creates a new remote gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := resty.NewWithClient(cfg.HTTPClient).
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &Gateway{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  cfg.Logger,
	}, nil
}

type createSandboxRequest struct {
	PreviousSandboxID string `json:"previous_sandbox_id,omitempty"`
	TopicID           string `json:"topic_id"`
	UserID            string `json:"user_id"`
}

type sandboxResponse struct {
	SandboxID     string `json:"sandbox_id"`
	Status        string `json:"status"`
	AgentEndpoint string `json:"agent_endpoint"`
}

// Status returns the state of a sandbox.
func (g *Gateway) Status(ctx context.Context, id string) (model.SandboxState, error) {
	sb, found, err := g.get(ctx, id)
	if err != nil {
		return model.SandboxStateUnknown, err
	}
	if !found {
		return model.SandboxStateNotFound, nil
	}

	switch strings.ToLower(sb.Status) {
	case "running":
		return model.SandboxStateRunning, nil
	case "pending", "creating", "starting":
		return model.SandboxStatePending, nil
	case "exited", "stopped", "failed":
		return model.SandboxStateExited, nil
	case "not_found":
		return model.SandboxStateNotFound, nil
	default:
		return model.SandboxStateUnknown, nil
	}
}

// Create requests a new sandbox.
func (g *Gateway) Create(ctx context.Context, req sandbox.CreateRequest) (string, error) {
	out := sandboxResponse{}
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(createSandboxRequest{
			PreviousSandboxID: req.PreviousID,
			TopicID:           req.TopicID,
			UserID:            req.UserID,
		}).
		SetResult(&out).
		Post("/api/v1/sandboxes")
	if err != nil {
		return "", fmt.Errorf("could not request sandbox creation: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("sandbox creation failed with status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.SandboxID == "" {
		return "", fmt.Errorf("sandbox creation returned an empty id")
	}

	g.logger.Infof("Created remote sandbox: %s (previous: %q)", out.SandboxID, req.PreviousID)

	return out.SandboxID, nil
}

// Endpoint returns the agent endpoint of a sandbox. When the gateway doesn't
// return one, its websocket proxy is used.
func (g *Gateway) Endpoint(ctx context.Context, id string) (string, error) {
	sb, found, err := g.get(ctx, id)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("sandbox %s: %w", id, model.ErrNotFound)
	}
	if sb.AgentEndpoint != "" {
		return sb.AgentEndpoint, nil
	}

	u, err := url.Parse(g.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/sandboxes/" + url.PathEscape(id) + "/ws"

	return u.String(), nil
}

func (g *Gateway) get(ctx context.Context, id string) (sb sandboxResponse, found bool, err error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&sb).
		Get("/api/v1/sandboxes/{id}")
	if err != nil {
		return sb, false, fmt.Errorf("could not get sandbox: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return sb, false, nil
	}
	if resp.IsError() {
		return sb, false, fmt.Errorf("get sandbox failed with status %d: %s", resp.StatusCode(), resp.String())
	}

	return sb, true, nil
}

var _ sandbox.Gateway = &Gateway{}
