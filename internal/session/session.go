package session

import (
	"context"
	"time"

	"github.com/modernalchemist/magic-sub000/internal/protocol"
)

// Session is a bidirectional channel with the agent running in a sandbox.
// A session has a single owner, it's not safe to send or receive concurrently
// from different goroutines.
type Session interface {
	// Connect opens the channel, it's bounded by the implementation connect timeout.
	// Connecting an already connected session is a no-op.
	Connect(ctx context.Context) error
	// Send sends a frame to the agent.
	Send(ctx context.Context, f protocol.Frame) error
	// Receive waits up to timeout for the next raw frame. It returns nil without
	// error when nothing arrived in time and a model.ErrFatalTransport error when
	// the channel is broken.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	// Disconnect closes the channel, it's best-effort and never fails.
	Disconnect()
	// IsConnected returns true if the channel is usable.
	IsConnected() bool
}

// Factory creates sessions to agent endpoints.
type Factory interface {
	NewSession(endpoint string) Session
}

// FactoryFunc is a helper to use functions as Factory.
type FactoryFunc func(endpoint string) Session

// NewSession satisfies Factory interface.
func (f FactoryFunc) NewSession(endpoint string) Session { return f(endpoint) }
