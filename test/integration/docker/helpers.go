package docker

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/stretchr/testify/require"
)

// Config holds the docker integration test configuration loaded from environment variables.
type Config struct {
	// Image is a long running image used as the sandbox agent (e.g: nginx:alpine).
	Image string
}

// NewConfig loads the configuration from environment variables, if not
// activated the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "MAGIC_INTEGRATION"
		envImage      = "MAGIC_INTEGRATION_DOCKER_IMAGE"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	img := os.Getenv(envImage)
	if img == "" {
		t.Skipf("Skipping docker integration test: %s is not set", envImage)
	}

	return Config{Image: img}
}

// Helper provides utilities for interacting with Docker in tests.
type Helper struct {
	Client *client.Client
}

// NewHelper creates a new Docker helper for tests.
func NewHelper(t *testing.T) *Helper {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	require.NoError(t, err, "Failed to create Docker client")
	t.Cleanup(func() { _ = cli.Close() })

	return &Helper{Client: cli}
}

// ContainerName returns the container name of a sandbox.
func ContainerName(sandboxID string) string {
	return "magic-sbx-" + strings.ToLower(sandboxID)
}

// ContainerStatus returns the status of a container (running, exited, etc), empty if missing.
func (d *Helper) ContainerStatus(t *testing.T, containerName string) string {
	containers, err := d.Client.ContainerList(context.Background(), container.ListOptions{All: true})
	require.NoError(t, err, "Failed to list containers")

	for _, c := range containers {
		for _, name := range c.Names {
			// Docker names start with /
			if name == "/"+containerName || name == containerName {
				return c.State
			}
		}
	}
	return ""
}

// CleanupTopicContainers removes all the sandbox containers created for a topic.
func (d *Helper) CleanupTopicContainers(t *testing.T, topicID string) {
	ctx := context.Background()
	containers, err := d.Client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", "magic.topic.id="+topicID)),
	})
	if err != nil {
		t.Logf("Warning: Failed to list containers during cleanup: %v", err)
		return
	}

	for _, c := range containers {
		if err := d.Client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			t.Logf("Warning: Failed to remove container %s during cleanup: %v", c.ID, err)
		}
	}
}
