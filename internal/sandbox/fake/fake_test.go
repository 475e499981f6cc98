package fake_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/sandbox"
	"github.com/modernalchemist/magic-sub000/internal/sandbox/fake"
)

func TestGateway(t *testing.T) {
	tests := map[string]struct {
		cfg     fake.GatewayConfig
		actions func(ctx context.Context, t *testing.T, gw *fake.Gateway)
	}{
		"Missing sandboxes should be reported as not found.": {
			actions: func(ctx context.Context, t *testing.T, gw *fake.Gateway) {
				state, err := gw.Status(ctx, "missing")
				require.NoError(t, err)
				assert.Equal(t, model.SandboxStateNotFound, state)
			},
		},

		"Created sandboxes should be running and recorded.": {
			actions: func(ctx context.Context, t *testing.T, gw *fake.Gateway) {
				id, err := gw.Create(ctx, sandbox.CreateRequest{PreviousID: "old", TopicID: "topic1"})
				require.NoError(t, err)
				assert.NotEmpty(t, id)

				state, err := gw.Status(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, model.SandboxStateRunning, state)
				assert.Equal(t, []sandbox.CreateRequest{{PreviousID: "old", TopicID: "topic1"}}, gw.CreateCalls())
			},
		},

		"Created sandboxes should be pending for the configured polls.": {
			cfg: fake.GatewayConfig{PendingPolls: 2},
			actions: func(ctx context.Context, t *testing.T, gw *fake.Gateway) {
				id, err := gw.Create(ctx, sandbox.CreateRequest{})
				require.NoError(t, err)

				for _, exp := range []model.SandboxState{model.SandboxStatePending, model.SandboxStatePending, model.SandboxStateRunning} {
					state, err := gw.Status(ctx, id)
					require.NoError(t, err)
					assert.Equal(t, exp, state)
				}
			},
		},

		"Create errors should be returned.": {
			actions: func(ctx context.Context, t *testing.T, gw *fake.Gateway) {
				gw.SetCreateError(errors.New("whatever"))
				_, err := gw.Create(ctx, sandbox.CreateRequest{})
				assert.Error(t, err)
				assert.Len(t, gw.CreateCalls(), 1)
			},
		},

		"Endpoint should use the template.": {
			cfg: fake.GatewayConfig{EndpointTemplate: "ws://agent-{id}:8002/ws"},
			actions: func(ctx context.Context, t *testing.T, gw *fake.Gateway) {
				endpoint, err := gw.Endpoint(ctx, "s1")
				require.NoError(t, err)
				assert.Equal(t, "ws://agent-s1:8002/ws", endpoint)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			gw, err := fake.NewGateway(test.cfg)
			require.NoError(t, err)
			test.actions(context.Background(), t, gw)
		})
	}
}
