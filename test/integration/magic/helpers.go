package magic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/protocol"
	"github.com/modernalchemist/magic-sub000/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "magic"
	}

	// go test changes the CWD to the test package directory.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("MAGIC_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("magic binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "MAGIC_INTEGRATION"
		envBinary     = "MAGIC_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// WriteConfigFile writes a magic configuration that runs the agent outside
// sandboxes against agentURL and stores everything in dir.
func WriteConfigFile(t *testing.T, dir, agentURL, listenAddress string) string {
	t.Helper()

	path := filepath.Join(dir, "magic.yaml")
	data := fmt.Sprintf(`
server:
  listenAddress: %q
database:
  driver: sqlite
  path: %q
sandbox:
  enabled: false
  agentEndpoint: %q
agent:
  receiveTimeout: 50ms
  taskTimeout: 30s
`, listenAddress, filepath.Join(dir, "magic.db"), agentURL)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	return path
}

// RunMagicCmd runs a magic command with a specific configuration file and
// without logs for cleaner test output.
func RunMagicCmd(ctx context.Context, config Config, cfgPath string, args ...string) (stdout, stderr []byte, err error) {
	args = append([]string{"--no-log", "--config", cfgPath}, args...)
	return testutils.RunMagic(ctx, nil, config.Binary, args, true)
}

// NewAgent returns a websocket agent that completes the handshakes and finishes
// every task with a message and a finished event. It returns the agent websocket URL.
func NewAgent(t *testing.T) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		reply := func(req protocol.Frame, typ protocol.MessageType, status protocol.Status, content string) {
			data, _ := protocol.Encode(protocol.Frame{
				Metadata: req.Metadata,
				Payload: protocol.Payload{
					TaskID:    "agent-" + req.Payload.MessageID,
					Type:      typ,
					Status:    status,
					Content:   content,
					MessageID: fmt.Sprintf("%s-%s-%s", typ, status, req.Payload.MessageID),
					ShowInUI:  true,
				},
			})
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			req, err := protocol.Decode(raw)
			if err != nil {
				return
			}

			switch req.Payload.Type {
			case protocol.MessageTypeInit:
				reply(req, protocol.MessageTypeInit, protocol.StatusRunning, "")
			case protocol.MessageTypeChat:
				reply(req, protocol.MessageTypeChat, protocol.StatusRunning, "")
				reply(req, protocol.MessageTypeMessage, protocol.StatusRunning, "working on: "+req.Payload.Prompt)
				reply(req, protocol.MessageTypeFinished, protocol.StatusFinished, "done")
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}
