package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/notify"
)

const subscriberBufferSize = 64

// BroadcasterConfig is the configuration for the broadcaster.
type BroadcasterConfig struct {
	Logger log.Logger
}

func (c *BroadcasterConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.Memory"})
	return nil
}

// Broadcaster is a notify.Transport that fans out envelopes to the in-process
// subscribers of the envelope topic. Slow subscribers lose envelopes instead of
// blocking the sender.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[string]chan notify.Envelope // Topic ID -> subscription ID -> ch.
	logger log.Logger
}

// NewBroadcaster returns a new broadcaster.
func NewBroadcaster(cfg BroadcasterConfig) (*Broadcaster, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Broadcaster{
		subs:   map[string]map[string]chan notify.Envelope{},
		logger: cfg.Logger,
	}, nil
}

// Subscribe registers a subscriber for a topic. The subscription is removed
// (and the channel closed) when the context is done.
func (b *Broadcaster) Subscribe(ctx context.Context, topicID string) <-chan notify.Envelope {
	id := uuid.NewString()
	ch := make(chan notify.Envelope, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subs[topicID]; !ok {
		b.subs[topicID] = map[string]chan notify.Envelope{}
	}
	b.subs[topicID][id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(topicID, id)
	}()

	return ch
}

func (b *Broadcaster) unsubscribe(topicID, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subs[topicID]
	if !ok {
		return
	}
	ch, ok := subs[id]
	if !ok {
		return
	}

	delete(subs, id)
	close(ch)
	if len(subs) == 0 {
		delete(b.subs, topicID)
	}
}

// Send satisfies notify.Transport interface.
func (b *Broadcaster) Send(_ context.Context, env notify.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[env.TopicID] {
		select {
		case ch <- env:
		default:
			b.logger.Warningf("Dropped envelope %s for slow subscriber of topic %s", env.MessageID, env.TopicID)
		}
	}

	return nil
}

var _ notify.Transport = &Broadcaster{}
