package docker_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/sandbox"
	sandboxdocker "github.com/modernalchemist/magic-sub000/internal/sandbox/docker"
	"github.com/modernalchemist/magic-sub000/test/integration/docker"
)

func TestDockerGatewayLifecycle(t *testing.T) {
	config := docker.NewConfig(t)
	helper := docker.NewHelper(t)
	require := require.New(t)
	assert := assert.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	topicID := fmt.Sprintf("it-topic-%d", time.Now().UnixNano())
	t.Cleanup(func() { helper.CleanupTopicContainers(t, topicID) })

	gw, err := sandboxdocker.NewGateway(sandboxdocker.GatewayConfig{
		Client:    helper.Client,
		Image:     config.Image,
		PullImage: true,
		Env:       map[string]string{"MAGIC_IT": "true"},
	})
	require.NoError(err)

	// Unknown sandboxes are reported as missing.
	state, err := gw.Status(ctx, "01JUNKNOWNSANDBOX")
	require.NoError(err)
	assert.Equal(model.SandboxStateNotFound, state)

	// Create a sandbox and wait until it runs.
	id, err := gw.Create(ctx, sandbox.CreateRequest{TopicID: topicID, UserID: "u1"})
	require.NoError(err)
	require.NotEmpty(id)

	require.Eventually(func() bool {
		state, err := gw.Status(ctx, id)
		return err == nil && state == model.SandboxStateRunning
	}, 1*time.Minute, 500*time.Millisecond)
	assert.Equal("running", helper.ContainerStatus(t, docker.ContainerName(id)))

	endpoint, err := gw.Endpoint(ctx, id)
	require.NoError(err)
	assert.True(strings.HasPrefix(endpoint, "ws://"), endpoint)
	assert.True(strings.HasSuffix(endpoint, ":8002/ws"), endpoint)

	// Replacing the sandbox removes the previous container.
	newID, err := gw.Create(ctx, sandbox.CreateRequest{PreviousID: id, TopicID: topicID, UserID: "u1"})
	require.NoError(err)
	assert.NotEqual(id, newID)
	assert.Empty(helper.ContainerStatus(t, docker.ContainerName(id)))

	state, err = gw.Status(ctx, id)
	require.NoError(err)
	assert.Equal(model.SandboxStateNotFound, state)
}
