package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
	"github.com/modernalchemist/magic-sub000/internal/session"
)

// FactoryConfig is the configuration of the websocket session factory.
type FactoryConfig struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// ReadLimit is the max size in bytes of a single inbound frame.
	ReadLimit int64
	// Header is sent on the websocket handshake.
	Header http.Header
	Logger log.Logger
}

func (c *FactoryConfig) defaults() error {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 32 << 20
	}
	if c.ReadLimit < 0 {
		return fmt.Errorf("read limit can't be negative")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "session.WebSocket"})
	return nil
}

// Factory creates websocket sessions.
type Factory struct {
	cfg FactoryConfig
}

// NewFactory returns a new websocket session factory.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Factory{cfg: cfg}, nil
}

// NewSession returns a new disconnected session to endpoint.
func (f *Factory) NewSession(endpoint string) session.Session {
	return &Session{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: f.cfg.ConnectTimeout,
		},
		connectTimeout: f.cfg.ConnectTimeout,
		writeTimeout:   f.cfg.WriteTimeout,
		readLimit:      f.cfg.ReadLimit,
		header:         f.cfg.Header,
		logger:         f.cfg.Logger.WithValues(log.Kv{"endpoint": endpoint}),
	}
}

// Session is a websocket session.Session.
type Session struct {
	endpoint       string
	dialer         *websocket.Dialer
	connectTimeout time.Duration
	writeTimeout   time.Duration
	readLimit      int64
	header         http.Header
	logger         log.Logger

	mu   sync.Mutex
	conn *conn
}

// conn is a single websocket connection, reconnecting creates a new one.
type conn struct {
	ws        *websocket.Conn
	frames    chan []byte
	done      chan struct{}
	err       error // Set before done is closed.
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// Connect dials the agent endpoint.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil && !s.conn.isDone() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	wsConn, resp, err := s.dialer.DialContext(ctx, s.endpoint, s.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("could not connect to %s: %w: %w", s.endpoint, model.ErrConnectTimeout, err)
		}
		return fmt.Errorf("could not connect to %s: %w: %w", s.endpoint, model.ErrFatalTransport, err)
	}
	wsConn.SetReadLimit(s.readLimit)

	c := &conn{
		ws:     wsConn,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go s.readPump(c)
	s.conn = c

	s.logger.Debugf("Connected to agent")

	return nil
}

// readPump reads the connection until it breaks. Reading on a separate goroutine lets
// Receive time out without setting read deadlines, a timed out gorilla connection
// can't be read again.
func (s *Session) readPump(c *conn) {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if isExpectedClose(err) {
				s.logger.Debugf("Agent connection closed: %s", err)
			} else {
				s.logger.Warningf("Agent connection broken: %s", err)
			}
			c.finish(err)
			return
		}

		select {
		case c.frames <- msg:
		case <-c.done:
			return
		}
	}
}

// Send sends a frame to the agent.
func (s *Session) Send(ctx context.Context, f protocol.Frame) error {
	c := s.current()
	if c == nil || c.isDone() {
		return fmt.Errorf("session is not connected: %w", model.ErrFatalTransport)
	}

	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.finish(err)
		return fmt.Errorf("could not write frame: %w: %w", model.ErrFatalTransport, err)
	}

	return nil
}

// Receive waits for the next frame.
func (s *Session) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	c := s.current()
	if c == nil {
		return nil, fmt.Errorf("session is not connected: %w", model.ErrFatalTransport)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-c.frames:
		return msg, nil
	case <-c.done:
		// Frames read before the connection broke go first.
		select {
		case msg := <-c.frames:
			return msg, nil
		default:
		}
		return nil, fmt.Errorf("agent connection lost: %w: %w", model.ErrFatalTransport, c.err)
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect closes the connection.
func (s *Session) Disconnect() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	if err != nil && !isExpectedClose(err) && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debugf("Could not send close message: %s", err)
	}

	c.finish(errors.New("disconnected"))
	s.logger.Debugf("Disconnected from agent")
}

// IsConnected returns true if the connection is usable.
func (s *Session) IsConnected() bool {
	c := s.current()
	return c != nil && !c.isDone()
}

func (s *Session) current() *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (c *conn) finish(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *conn) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isExpectedClose reports whether err is a normal connection termination.
func isExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

var _ session.Session = &Session{}
