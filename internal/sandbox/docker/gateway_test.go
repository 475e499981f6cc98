package docker_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/sandbox"
	"github.com/modernalchemist/magic-sub000/internal/sandbox/docker"
)

type fakeDockerClient struct {
	inspect      map[string]container.InspectResponse
	inspectErr   error
	created      []*container.Config
	createdNames []string
	removed      []string
	pulled       []string
	startErr     error
}

func (f *fakeDockerClient) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	f.pulled = append(f.pulled, refStr)
	return io.NopCloser(strings.NewReader("{}")), nil
}

func (f *fakeDockerClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.created = append(f.created, config)
	f.createdNames = append(f.createdNames, containerName)
	return container.CreateResponse{ID: "container-" + containerName}, nil
}

func (f *fakeDockerClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return f.startErr
}

func (f *fakeDockerClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.removed = append(f.removed, containerID)
	return errors.New("Error response from daemon: No such container: " + containerID)
}

func (f *fakeDockerClient) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	if f.inspectErr != nil {
		return container.InspectResponse{}, f.inspectErr
	}
	info, ok := f.inspect[containerID]
	if !ok {
		return container.InspectResponse{}, errors.New("Error response from daemon: No such container: " + containerID)
	}
	return info, nil
}

func inspectWithState(status string) container.InspectResponse {
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{State: &container.State{Status: status}},
	}
}

func TestGatewayStatus(t *testing.T) {
	tests := map[string]struct {
		client   *fakeDockerClient
		expState model.SandboxState
		expErr   bool
	}{
		"Running containers should be running.": {
			client:   &fakeDockerClient{inspect: map[string]container.InspectResponse{"magic-sbx-s1": inspectWithState("running")}},
			expState: model.SandboxStateRunning,
		},
		"Created containers should be pending.": {
			client:   &fakeDockerClient{inspect: map[string]container.InspectResponse{"magic-sbx-s1": inspectWithState("created")}},
			expState: model.SandboxStatePending,
		},
		"Exited containers should be exited.": {
			client:   &fakeDockerClient{inspect: map[string]container.InspectResponse{"magic-sbx-s1": inspectWithState("exited")}},
			expState: model.SandboxStateExited,
		},
		"Paused containers should be unknown.": {
			client:   &fakeDockerClient{inspect: map[string]container.InspectResponse{"magic-sbx-s1": inspectWithState("paused")}},
			expState: model.SandboxStateUnknown,
		},
		"Missing containers should be not found.": {
			client:   &fakeDockerClient{},
			expState: model.SandboxStateNotFound,
		},
		"Docker errors should fail.": {
			client: &fakeDockerClient{inspectErr: errors.New("daemon down")},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			gw, err := docker.NewGateway(docker.GatewayConfig{Client: test.client, Image: "agent:latest"})
			require.NoError(t, err)

			state, err := gw.Status(context.Background(), "S1")
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expState, state)
		})
	}
}

func TestGatewayCreate(t *testing.T) {
	tests := map[string]struct {
		cfg     docker.GatewayConfig
		req     sandbox.CreateRequest
		client  *fakeDockerClient
		expErr  bool
		checkFn func(t *testing.T, id string, c *fakeDockerClient)
	}{
		"Creating should start a labeled container and remove the previous one.": {
			cfg:    docker.GatewayConfig{Image: "agent:latest", PullImage: true, Env: map[string]string{"A": "b"}},
			req:    sandbox.CreateRequest{PreviousID: "OLD", TopicID: "topic1", UserID: "user1"},
			client: &fakeDockerClient{},
			checkFn: func(t *testing.T, id string, c *fakeDockerClient) {
				assert.Equal(t, []string{"magic-sbx-old"}, c.removed)
				assert.Equal(t, []string{"agent:latest"}, c.pulled)
				require.Len(t, c.created, 1)
				assert.Equal(t, "magic-sbx-"+strings.ToLower(id), c.createdNames[0])
				assert.Equal(t, "topic1", c.created[0].Labels["magic.topic.id"])
				assert.Contains(t, c.created[0].Env, "A=b")
				assert.Contains(t, c.created[0].Env, "SANDBOX_ID="+id)
			},
		},
		"Start errors should fail and remove the container.": {
			cfg:    docker.GatewayConfig{Image: "agent:latest"},
			client: &fakeDockerClient{startErr: errors.New("boom")},
			expErr: true,
			checkFn: func(t *testing.T, id string, c *fakeDockerClient) {
				assert.Empty(t, c.pulled)
				assert.Len(t, c.removed, 1)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := test.cfg
			cfg.Client = test.client
			gw, err := docker.NewGateway(cfg)
			require.NoError(t, err)

			id, err := gw.Create(context.Background(), test.req)
			if test.expErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, id)
			}
			test.checkFn(t, id, test.client)
		})
	}
}

func TestGatewayEndpoint(t *testing.T) {
	info := inspectWithState("running")
	info.NetworkSettings = &container.NetworkSettings{
		Networks: map[string]*network.EndpointSettings{
			"bridge": {IPAddress: "172.17.0.2"},
			"magic":  {IPAddress: "10.10.0.5"},
		},
	}
	client := &fakeDockerClient{inspect: map[string]container.InspectResponse{"magic-sbx-s1": info}}

	gw, err := docker.NewGateway(docker.GatewayConfig{Client: client, Image: "agent:latest", Network: "magic"})
	require.NoError(t, err)

	endpoint, err := gw.Endpoint(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "ws://10.10.0.5:8002/ws", endpoint)

	_, err = gw.Endpoint(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestNewGatewayRequiresImage(t *testing.T) {
	_, err := docker.NewGateway(docker.GatewayConfig{Client: &fakeDockerClient{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image is required")
}
