package docker

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/modernalchemist/magic-sub000/internal/conventions"
	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/sandbox"
)

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

const (
	labelSandboxID = "magic.sandbox.id"
	labelTopicID   = "magic.topic.id"
	labelUserID    = "magic.user.id"
)

// GatewayConfig is the configuration for the Docker gateway.
type GatewayConfig struct {
	Client DockerClient
	// Image is the agent image every sandbox runs.
	Image string
	// PullImage pulls the image before creating the container.
	PullImage bool
	// Network is the docker network the sandboxes join, the orchestrator must be able
	// to reach it.
	Network string
	// AgentPort is the port the agent websocket listens on inside the container.
	AgentPort int
	// AgentPath is the HTTP path of the agent websocket.
	AgentPath string
	// Env are extra environment variables for the agent.
	Env    map[string]string
	Logger log.Logger
}

func (c *GatewayConfig) defaults() error {
	if c.Image == "" {
		return fmt.Errorf("image is required")
	}
	if c.AgentPort == 0 {
		c.AgentPort = conventions.AgentPort
	}
	if c.AgentPath == "" {
		c.AgentPath = conventions.AgentPath
	}
	if c.Client == nil {
		// Create a default Docker client
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sandbox.Docker"})
	return nil
}

// Gateway is a local development sandbox.Gateway that runs every sandbox as a Docker container.
type Gateway struct {
	client    DockerClient
	image     string
	pullImage bool
	network   string
	agentPort int
	agentPath string
	env       map[string]string
	logger    log.Logger
}

// NewGateway creates a new Docker gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Gateway{
		client:    cfg.Client,
		image:     cfg.Image,
		pullImage: cfg.PullImage,
		network:   cfg.Network,
		agentPort: cfg.AgentPort,
		agentPath: cfg.AgentPath,
		env:       cfg.Env,
		logger:    cfg.Logger,
	}, nil
}

func containerName(id string) string { return fmt.Sprintf("magic-sbx-%s", strings.ToLower(id)) }

func isNotFound(err error) bool { return strings.Contains(err.Error(), "No such container") }

// Status returns the sandbox state from the container state.
func (g *Gateway) Status(ctx context.Context, id string) (model.SandboxState, error) {
	name := containerName(id)

	g.logger.Debugf("Inspecting container: %s", name)
	info, err := g.client.ContainerInspect(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return model.SandboxStateNotFound, nil
		}
		return model.SandboxStateUnknown, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return model.SandboxStateUnknown, nil
	}

	switch info.State.Status {
	case "running":
		return model.SandboxStateRunning, nil
	case "created", "restarting":
		return model.SandboxStatePending, nil
	case "exited", "dead", "removing":
		return model.SandboxStateExited, nil
	default:
		return model.SandboxStateUnknown, nil
	}
}

// Create creates and starts a new agent container.
func (g *Gateway) Create(ctx context.Context, req sandbox.CreateRequest) (string, error) {
	// The replaced sandbox is unusable, don't leave it around.
	if req.PreviousID != "" {
		err := g.client.ContainerRemove(ctx, containerName(req.PreviousID), container.RemoveOptions{Force: true})
		if err != nil && !isNotFound(err) {
			g.logger.Warningf("Could not remove previous sandbox container %s: %s", req.PreviousID, err)
		}
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	name := containerName(id)

	if g.pullImage {
		g.logger.Infof("Pulling image: %s", g.image)
		pullResp, err := g.client.ImagePull(ctx, g.image, image.PullOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to pull image %s: %w", g.image, err)
		}
		// Consume the pull response to ensure it completes
		_, _ = io.Copy(io.Discard, pullResp)
		pullResp.Close()
	}

	envVars := []string{
		fmt.Sprintf("SANDBOX_ID=%s", id),
		fmt.Sprintf("AGENT_PORT=%d", g.agentPort),
	}
	for k, v := range g.env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", k, v))
	}

	containerConfig := &container.Config{
		Image: g.image,
		Env:   envVars,
		Labels: map[string]string{
			labelSandboxID: id,
			labelTopicID:   req.TopicID,
			labelUserID:    req.UserID,
		},
	}

	var netConfig *network.NetworkingConfig
	if g.network != "" {
		netConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{g.network: {}},
		}
	}

	g.logger.Infof("Creating container: %s", name)
	resp, err := g.client.ContainerCreate(ctx, containerConfig, &container.HostConfig{}, netConfig, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := g.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = g.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	g.logger.Infof("Created Docker sandbox: %s (container: %s)", id, resp.ID)

	return id, nil
}

// Endpoint returns the agent websocket URL using the container network address.
func (g *Gateway) Endpoint(ctx context.Context, id string) (string, error) {
	name := containerName(id)

	info, err := g.client.ContainerInspect(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("container %s: %w", name, model.ErrNotFound)
		}
		return "", fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	host := ""
	if info.NetworkSettings != nil {
		if ep, ok := info.NetworkSettings.Networks[g.network]; ok && ep != nil && ep.IPAddress != "" {
			host = ep.IPAddress
		}
		for _, ep := range info.NetworkSettings.Networks {
			if host != "" {
				break
			}
			if ep != nil && ep.IPAddress != "" {
				host = ep.IPAddress
			}
		}
	}
	if host == "" {
		return "", fmt.Errorf("container %s has no network address", name)
	}

	return fmt.Sprintf("ws://%s:%d%s", host, g.agentPort, g.agentPath), nil
}

var _ sandbox.Gateway = &Gateway{}
