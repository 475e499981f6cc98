package sandbox

import (
	"context"

	"github.com/modernalchemist/magic-sub000/internal/model"
)

// CreateRequest is the request to create a new sandbox.
type CreateRequest struct {
	// PreviousID is the id of the sandbox that is being replaced, if any. Gateways
	// can use it as a hint (e.g to clean it up or to reuse its workspace).
	PreviousID string
	TopicID    string
	UserID     string
}

// Gateway is the contract with the service that owns the sandboxes.
type Gateway interface {
	// Status returns the state of a sandbox, missing sandboxes return
	// model.SandboxStateNotFound instead of an error.
	Status(ctx context.Context, id string) (model.SandboxState, error)
	// Create requests a new sandbox and returns its id.
	Create(ctx context.Context, req CreateRequest) (string, error)
	// Endpoint returns the websocket URL of the agent running in the sandbox.
	Endpoint(ctx context.Context, id string) (string, error)
}
