package queue

import (
	"context"
)

// Message is a unit of asynchronous delivery. Messages with the same key are
// consumed in the order they were published.
type Message struct {
	// Key is the ordering key (e.g the sandbox ID).
	Key  string
	Body []byte
}

// Producer publishes messages to be delivered asynchronously.
type Producer interface {
	Publish(ctx context.Context, msg Message) error
}

// Handler handles a consumed message.
type Handler func(ctx context.Context, msg Message) error
