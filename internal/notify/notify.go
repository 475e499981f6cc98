package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
)

// Event is a protocol event that must reach the client.
type Event struct {
	TopicID            string
	TaskID             string
	ChatTopicID        string
	ChatConversationID string
	Content            string
	Type               protocol.MessageType
	Status             protocol.Status
	Event              string
	Steps              []protocol.Step
	Tool               *protocol.Tool
	Attachments        []protocol.Attachment
	ShowInUI           bool
}

// Envelope is the outbound message handed to the client transport.
type Envelope struct {
	MessageID          string                `json:"message_id"`
	Seq                int64                 `json:"seq_id"`
	SendTime           time.Time             `json:"send_timestamp"`
	TopicID            string                `json:"topic_id"`
	TaskID             string                `json:"task_id"`
	ChatTopicID        string                `json:"chat_topic_id"`
	ChatConversationID string                `json:"chat_conversation_id"`
	Type               protocol.MessageType  `json:"type"`
	Status             protocol.Status       `json:"status"`
	Content            string                `json:"content"`
	Event              string                `json:"event"`
	Steps              []protocol.Step       `json:"steps"`
	Tool               *protocol.Tool        `json:"tool"`
	Attachments        []protocol.Attachment `json:"attachments"`
	ShowInUI           bool                  `json:"show_in_ui"`
}

// Transport delivers envelopes to the client facing chat transport.
type Transport interface {
	Send(ctx context.Context, env Envelope) error
}

// MultiTransport sends every envelope to all its transports, a failing transport
// doesn't stop the rest.
type MultiTransport []Transport

// Send satisfies Transport interface.
func (m MultiTransport) Send(ctx context.Context, env Envelope) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifierConfig is the configuration for the notifier.
type NotifierConfig struct {
	Transport Transport
	// SeqIdleTTL is how long the sequence of a topic without events is kept,
	// after it the topic sequence starts again.
	SeqIdleTTL time.Duration
	Logger     log.Logger
}

func (c *NotifierConfig) defaults() error {
	if c.Transport == nil {
		return fmt.Errorf("transport is required")
	}
	if c.SeqIdleTTL <= 0 {
		c.SeqIdleTTL = 24 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.Notifier"})
	return nil
}

// Notifier builds client envelopes and sends them.
type Notifier struct {
	transport Transport
	logger    log.Logger
	timeNowFn func() time.Time
	newIDFn   func() string

	mu         sync.Mutex
	seqs       map[string]*topicSeq
	seqIdleTTL time.Duration
	lastSweep  time.Time
}

type topicSeq struct {
	n        int64
	lastUsed time.Time
}

// NewNotifier returns a new notifier.
func NewNotifier(cfg NotifierConfig) (*Notifier, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Notifier{
		transport: cfg.Transport,
		logger:    cfg.Logger,
		timeNowFn: func() time.Time { return time.Now().UTC() },
		newIDFn:   func() string { return uuid.NewString() },

		seqs:       map[string]*topicSeq{},
		seqIdleTTL: cfg.SeqIdleTTL,
	}, nil
}

// Notify sends the event to the client. A failed notification must not abort
// the caller, so transport errors and panics are only logged.
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorf("Transport panicked notifying %s event of task %s: %v", ev.Type, ev.TaskID, r)
		}
	}()

	env := Envelope{
		MessageID:          n.newIDFn(),
		Seq:                n.nextSeq(ev.TopicID),
		SendTime:           n.timeNowFn(),
		TopicID:            ev.TopicID,
		TaskID:             ev.TaskID,
		ChatTopicID:        ev.ChatTopicID,
		ChatConversationID: ev.ChatConversationID,
		Type:               ev.Type,
		Status:             ev.Status,
		Content:            ev.Content,
		Event:              ev.Event,
		Steps:              ev.Steps,
		Tool:               ev.Tool,
		Attachments:        ev.Attachments,
		ShowInUI:           ev.ShowInUI,
	}

	if err := n.transport.Send(ctx, env); err != nil {
		n.logger.Errorf("Could not notify %s event of task %s: %s", ev.Type, ev.TaskID, err)
		return
	}
	n.logger.Debugf("Notified %s event of task %s (seq %d)", ev.Type, ev.TaskID, env.Seq)
}

func (n *Notifier) nextSeq(topicID string) int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.timeNowFn()
	if now.Sub(n.lastSweep) >= n.seqIdleTTL {
		for id, s := range n.seqs {
			if now.Sub(s.lastUsed) >= n.seqIdleTTL {
				delete(n.seqs, id)
			}
		}
		n.lastSweep = now
	}

	s, ok := n.seqs[topicID]
	if !ok {
		s = &topicSeq{}
		n.seqs[topicID] = s
	}
	s.n++
	s.lastUsed = now

	return s.n
}
