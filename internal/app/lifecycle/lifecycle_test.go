package lifecycle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/app/lifecycle"
	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/sandbox"
	"github.com/modernalchemist/magic-sub000/internal/sandbox/sandboxmock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		cfg    lifecycle.ServiceConfig
		expErr bool
		errMsg string
	}{
		"Valid config with all fields": {
			cfg: lifecycle.ServiceConfig{
				Gateway: &sandboxmock.MockGateway{},
				Logger:  log.Noop,
			},
		},
		"Non sandbox mode doesn't require a gateway": {
			cfg: lifecycle.ServiceConfig{NonSandboxMode: true},
		},
		"Missing gateway returns error": {
			cfg:    lifecycle.ServiceConfig{},
			expErr: true,
			errMsg: "gateway is required",
		},
		"Poll interval greater than timeout returns error": {
			cfg: lifecycle.ServiceConfig{
				Gateway:      &sandboxmock.MockGateway{},
				ReadyTimeout: time.Second,
				PollInterval: time.Minute,
			},
			expErr: true,
			errMsg: "poll interval",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := lifecycle.NewService(tt.cfg)

			if tt.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, svc)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestServiceResolve(t *testing.T) {
	tests := map[string]struct {
		nonSandboxMode bool
		req            lifecycle.ResolveRequest
		setupMocks     func(gw *sandboxmock.MockGateway)
		expRes         lifecycle.Resolution
		expErr         error
	}{
		"A running sandbox should be reused without creating a new one.": {
			req: lifecycle.ResolveRequest{ExistingSandboxID: "s1", TopicID: "t1"},
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Status", mock.Anything, "s1").Once().Return(model.SandboxStateRunning, nil)
			},
			expRes: lifecycle.Resolution{SandboxID: "s1", NeedsInit: false},
		},

		"A not found sandbox should be replaced with a single create call.": {
			req: lifecycle.ResolveRequest{ExistingSandboxID: "s1", TopicID: "t1", UserID: "u1"},
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Status", mock.Anything, "s1").Once().Return(model.SandboxStateNotFound, nil)
				gw.On("Create", mock.Anything, sandbox.CreateRequest{PreviousID: "s1", TopicID: "t1", UserID: "u1"}).Once().Return("s2", nil)
				gw.On("Status", mock.Anything, "s2").Once().Return(model.SandboxStateRunning, nil)
			},
			expRes: lifecycle.Resolution{SandboxID: "s2", NeedsInit: true},
		},

		"An exited sandbox should be replaced with a single create call.": {
			req: lifecycle.ResolveRequest{ExistingSandboxID: "s1", TopicID: "t1"},
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Status", mock.Anything, "s1").Once().Return(model.SandboxStateExited, nil)
				gw.On("Create", mock.Anything, mock.Anything).Once().Return("s2", nil)
				gw.On("Status", mock.Anything, "s2").Once().Return(model.SandboxStateRunning, nil)
			},
			expRes: lifecycle.Resolution{SandboxID: "s2", NeedsInit: true},
		},

		"A sandbox in another state should be replaced.": {
			req: lifecycle.ResolveRequest{ExistingSandboxID: "s1", TopicID: "t1"},
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Status", mock.Anything, "s1").Once().Return(model.SandboxStateUnknown, nil)
				gw.On("Create", mock.Anything, mock.Anything).Once().Return("s2", nil)
				gw.On("Status", mock.Anything, "s2").Once().Return(model.SandboxStateRunning, nil)
			},
			expRes: lifecycle.Resolution{SandboxID: "s2", NeedsInit: true},
		},

		"A status query error should create a new sandbox.": {
			req: lifecycle.ResolveRequest{ExistingSandboxID: "s1", TopicID: "t1"},
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Status", mock.Anything, "s1").Once().Return(model.SandboxStateUnknown, errors.New("whatever"))
				gw.On("Create", mock.Anything, mock.Anything).Once().Return("s2", nil)
				gw.On("Status", mock.Anything, "s2").Once().Return(model.SandboxStateRunning, nil)
			},
			expRes: lifecycle.Resolution{SandboxID: "s2", NeedsInit: true},
		},

		"Without existing sandbox it should create directly.": {
			req: lifecycle.ResolveRequest{TopicID: "t1"},
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Create", mock.Anything, sandbox.CreateRequest{TopicID: "t1"}).Once().Return("s2", nil)
				gw.On("Status", mock.Anything, "s2").Once().Return(model.SandboxStateRunning, nil)
			},
			expRes: lifecycle.Resolution{SandboxID: "s2", NeedsInit: true},
		},

		"A new sandbox should be polled until running.": {
			req: lifecycle.ResolveRequest{TopicID: "t1"},
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Create", mock.Anything, mock.Anything).Once().Return("s2", nil)
				gw.On("Status", mock.Anything, "s2").Twice().Return(model.SandboxStatePending, nil)
				gw.On("Status", mock.Anything, "s2").Once().Return(model.SandboxStateRunning, nil)
			},
			expRes: lifecycle.Resolution{SandboxID: "s2", NeedsInit: true},
		},

		"A create failure should fail without retries.": {
			req: lifecycle.ResolveRequest{TopicID: "t1"},
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Create", mock.Anything, mock.Anything).Once().Return("", errors.New("no capacity"))
			},
			expErr: model.ErrSandboxCreateFailed,
		},

		"A sandbox that never becomes ready should fail.": {
			req: lifecycle.ResolveRequest{TopicID: "t1"},
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Create", mock.Anything, mock.Anything).Once().Return("s2", nil)
				gw.On("Status", mock.Anything, "s2").Return(model.SandboxStatePending, nil)
			},
			expErr: model.ErrSandboxCreateFailed,
		},

		"A sandbox that exits while starting should fail without more polls.": {
			req: lifecycle.ResolveRequest{TopicID: "t1"},
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Create", mock.Anything, mock.Anything).Once().Return("s2", nil)
				gw.On("Status", mock.Anything, "s2").Once().Return(model.SandboxStateExited, nil)
			},
			expErr: model.ErrSandboxCreateFailed,
		},

		"Non sandbox mode should use the topic id and require init.": {
			nonSandboxMode: true,
			req:            lifecycle.ResolveRequest{ExistingSandboxID: "s1", TopicID: "t1"},
			setupMocks:     func(gw *sandboxmock.MockGateway) {},
			expRes:         lifecycle.Resolution{SandboxID: "t1", NeedsInit: true},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			gw := sandboxmock.NewMockGateway(t)
			test.setupMocks(gw)

			svc, err := lifecycle.NewService(lifecycle.ServiceConfig{
				Gateway:        gw,
				NonSandboxMode: test.nonSandboxMode,
				ReadyTimeout:   20 * time.Millisecond,
				PollInterval:   time.Millisecond,
			})
			require.NoError(err)

			res, err := svc.Resolve(context.Background(), test.req)

			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
				return
			}
			require.NoError(err)
			assert.Equal(test.expRes, res)
		})
	}
}

func TestServiceEndpointAndIsRunning(t *testing.T) {
	tests := map[string]struct {
		nonSandboxMode bool
		sandboxID      string
		setupMocks     func(gw *sandboxmock.MockGateway)
		expEndpoint    string
		expRunning     bool
	}{
		"Non sandbox mode should use the configured agent endpoint.": {
			nonSandboxMode: true,
			sandboxID:      "t1",
			setupMocks:     func(gw *sandboxmock.MockGateway) {},
			expEndpoint:    "ws://agent:8002/ws",
			expRunning:     true,
		},

		"A running sandbox should use the gateway endpoint.": {
			sandboxID: "s1",
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Endpoint", mock.Anything, "s1").Once().Return("ws://10.0.0.2:8002/ws", nil)
				gw.On("Status", mock.Anything, "s1").Once().Return(model.SandboxStateRunning, nil)
			},
			expEndpoint: "ws://10.0.0.2:8002/ws",
			expRunning:  true,
		},

		"A status error should be handled as not running.": {
			sandboxID: "s1",
			setupMocks: func(gw *sandboxmock.MockGateway) {
				gw.On("Endpoint", mock.Anything, "s1").Once().Return("ws://10.0.0.2:8002/ws", nil)
				gw.On("Status", mock.Anything, "s1").Once().Return(model.SandboxStateUnknown, errors.New("something"))
			},
			expEndpoint: "ws://10.0.0.2:8002/ws",
			expRunning:  false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			gw := sandboxmock.NewMockGateway(t)
			test.setupMocks(gw)

			svc, err := lifecycle.NewService(lifecycle.ServiceConfig{
				Gateway:        gw,
				NonSandboxMode: test.nonSandboxMode,
				AgentEndpoint:  "ws://agent:8002/ws",
			})
			require.NoError(err)

			endpoint, err := svc.Endpoint(context.Background(), test.sandboxID)
			require.NoError(err)
			assert.Equal(test.expEndpoint, endpoint)
			assert.Equal(test.expRunning, svc.IsRunning(context.Background(), test.sandboxID))
		})
	}
}
