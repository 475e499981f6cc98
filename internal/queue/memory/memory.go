package memory

import (
	"context"
	"fmt"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/queue"
)

// QueueConfig is the configuration for the memory queue.
type QueueConfig struct {
	Capacity int
	Logger   log.Logger
}

func (c *QueueConfig) defaults() error {
	if c.Capacity <= 0 {
		c.Capacity = 1024
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "queue.Memory"})
	return nil
}

// Queue is an in-process FIFO queue with a single sequential consumer, so it
// keeps the global publish order (and the per key order).
type Queue struct {
	msgs   chan queue.Message
	logger log.Logger
}

// NewQueue returns a new memory queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Queue{
		msgs:   make(chan queue.Message, cfg.Capacity),
		logger: cfg.Logger,
	}, nil
}

// Publish satisfies queue.Producer interface. Blocks while the queue is full.
func (q *Queue) Publish(ctx context.Context, msg queue.Message) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("could not publish message: %w", ctx.Err())
	case q.msgs <- msg:
		return nil
	}
}

// Run consumes messages with the handler until the context is done. Handler
// errors are logged and the message is dropped.
func (q *Queue) Run(ctx context.Context, h queue.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-q.msgs:
			if err := h(ctx, msg); err != nil {
				q.logger.Errorf("Could not handle message with key %s: %s", msg.Key, err)
			}
		}
	}
}

var _ queue.Producer = &Queue{}
