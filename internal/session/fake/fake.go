// Package fake has a scripted in-memory session.Session for tests and local runs.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
	"github.com/modernalchemist/magic-sub000/internal/session"
)

// Responder returns the raw frames the agent replies to a sent frame.
type Responder func(f protocol.Frame) [][]byte

// Session is a scripted session.
type Session struct {
	responder Responder

	mu          sync.Mutex
	connected   bool
	broken      bool
	inbound     chan []byte
	sent        []protocol.Frame
	connects    int
	disconnects int
	connectErrs []error
}

// NewSession returns a new fake session that uses responder to answer the sent frames.
func NewSession(responder Responder) *Session {
	if responder == nil {
		responder = func(protocol.Frame) [][]byte { return nil }
	}
	return &Session{
		responder: responder,
		inbound:   make(chan []byte, 1024),
	}
}

// FailNextConnects makes the next connect calls fail with errs in order.
func (s *Session) FailNextConnects(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErrs = append(s.connectErrs, errs...)
}

// Push queues raw frames as if the agent sent them. A nil frame simulates a
// silent connection drop, the session is disconnected when it's received.
func (s *Session) Push(frames ...[]byte) {
	for _, f := range frames {
		s.inbound <- f
	}
}

// Break simulates a hard disconnection, the next receive fails.
func (s *Session) Break() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = true
}

// Sent returns the frames sent to the agent.
func (s *Session) Sent() []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Frame{}, s.sent...)
}

// Connects returns the number of successful connects.
func (s *Session) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Disconnects returns the number of disconnect calls.
func (s *Session) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

// Connect satisfies session.Session interface.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.connectErrs) > 0 {
		err := s.connectErrs[0]
		s.connectErrs = s.connectErrs[1:]
		if err != nil {
			return err
		}
	}

	if s.connected {
		return nil
	}
	s.connected = true
	s.broken = false
	s.connects++

	return nil
}

// Send satisfies session.Session interface.
func (s *Session) Send(ctx context.Context, f protocol.Frame) error {
	s.mu.Lock()
	if !s.connected || s.broken {
		s.mu.Unlock()
		return fmt.Errorf("not connected: %w", model.ErrFatalTransport)
	}
	s.sent = append(s.sent, f)
	s.mu.Unlock()

	s.Push(s.responder(f)...)
	return nil
}

// Receive satisfies session.Session interface.
func (s *Session) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	connected, broken := s.connected, s.broken
	if broken {
		s.connected = false
	}
	s.mu.Unlock()

	if !connected || broken {
		return nil, fmt.Errorf("agent connection lost: %w", model.ErrFatalTransport)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-s.inbound:
		if msg == nil {
			s.mu.Lock()
			s.connected = false
			s.mu.Unlock()
			return nil, nil
		}
		return msg, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect satisfies session.Session interface.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.disconnects++
}

// IsConnected satisfies session.Session interface.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && !s.broken
}

var _ session.Session = &Session{}
