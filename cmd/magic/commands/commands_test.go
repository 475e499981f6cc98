package commands

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modernalchemist/magic-sub000/internal/config"
	"github.com/modernalchemist/magic-sub000/internal/log"
	"github.com/modernalchemist/magic-sub000/internal/model"
	"github.com/modernalchemist/magic-sub000/internal/protocol"
)

func TestRootCommandLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "magic.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
database:
  path: /from/config.db
agent:
  mode: pull
logging:
  json: true
sandbox:
  docker:
    env:
      A: from-config
      B: from-config
`), 0o600))

	tests := map[string]struct {
		root      RootCommand
		expDBPath string
		expMode   string
		expLogger string
		expEnv    map[string]string
		expErr    bool
	}{
		"Without config file the defaults should be used.": {
			root:      RootCommand{LoggerType: LoggerTypeDefault},
			expDBPath: config.Default().Database.Path,
			expMode:   "websocket",
			expLogger: LoggerTypeDefault,
		},

		"The config file should be loaded.": {
			root:      RootCommand{ConfigPath: cfgPath, LoggerType: LoggerTypeDefault},
			expDBPath: "/from/config.db",
			expMode:   "pull",
			expLogger: LoggerTypeJSON,
			expEnv:    map[string]string{"A": "from-config", "B": "from-config"},
		},

		"Flags should override the config file.": {
			root:      RootCommand{ConfigPath: cfgPath, DBPath: "/from/flag.db", AgentMode: "websocket", SandboxEnv: []string{"B=from-flag"}, LoggerType: LoggerTypeDefault},
			expDBPath: "/from/flag.db",
			expMode:   "websocket",
			expLogger: LoggerTypeJSON,
			expEnv:    map[string]string{"A": "from-config", "B": "from-flag"},
		},

		"Invalid sandbox env flags should fail.": {
			root:   RootCommand{SandboxEnv: []string{"1=x"}},
			expErr: true,
		},

		"A missing config file should fail.": {
			root:   RootCommand{ConfigPath: filepath.Join(dir, "missing.yaml")},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			root := test.root
			cfg, err := root.LoadConfig(context.TODO())
			if test.expErr {
				assert.Error(err)
				return
			}
			require.NoError(err)

			assert.Equal(test.expDBPath, cfg.Database.Path)
			assert.Equal(test.expMode, cfg.Agent.Mode)
			assert.Equal(test.expLogger, root.LoggerType)
			assert.Equal(test.expEnv, cfg.Sandbox.Docker.Env)
		})
	}
}

func TestParseStatuses(t *testing.T) {
	statuses, err := parseStatuses([]string{"Running", " error "})
	require.NoError(t, err)
	assert.Equal(t, []model.TaskStatus{model.TaskStatusRunning, model.TaskStatusError}, statuses)

	_, err = parseStatuses([]string{"done"})
	assert.Error(t, err)
}

// newAgentServer returns a websocket agent that completes the handshakes and
// finishes every task with a message and a finished event.
func newAgentServer(t *testing.T) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		send := func(req protocol.Frame, typ protocol.MessageType, status protocol.Status, content string) {
			data, _ := protocol.Encode(protocol.Frame{
				Metadata: req.Metadata,
				Payload: protocol.Payload{
					TaskID:    "agent-task-1",
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
				send(req, protocol.MessageTypeInit, protocol.StatusRunning, "")
			case protocol.MessageTypeChat:
				send(req, protocol.MessageTypeChat, protocol.StatusRunning, "")
				send(req, protocol.MessageTypeMessage, protocol.StatusRunning, "working on it")
				send(req, protocol.MessageTypeFinished, protocol.StatusFinished, "all done")
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func testConfig(agentURL string) config.Config {
	cfg := config.Default()
	cfg.Database.Driver = "memory"
	cfg.Sandbox.Enabled = false
	cfg.Sandbox.AgentEndpoint = agentURL
	cfg.Agent.InitTimeout = 5 * time.Second
	cfg.Agent.ChatTimeout = 5 * time.Second
	cfg.Agent.ReceiveTimeout = 50 * time.Millisecond
	cfg.Agent.TaskTimeout = 10 * time.Second
	return cfg
}

func TestRunCommand(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newAgentServer(t)
	cfg := testConfig("ws" + strings.TrimPrefix(srv.URL, "http") + "/ws")
	require.NoError(cfg.Validate())

	var out bytes.Buffer
	cmd := RunCommand{
		rootCmd:  &RootCommand{Config: cfg, Logger: log.Noop, Stdout: &out},
		prompt:   "write a report",
		userID:   "local",
		taskMode: string(model.TaskModeChat),
		format:   "table",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	err := cmd.Run(ctx)
	require.NoError(err)

	assert.Contains(out.String(), "message (running): working on it")
	assert.Contains(out.String(), "finished (finished): all done")
}

func TestRunCommandRequiresWebsocketMode(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/ws")
	cfg.Agent.Mode = "pull"

	cmd := RunCommand{rootCmd: &RootCommand{Config: cfg, Logger: log.Noop, Stdout: &bytes.Buffer{}}, prompt: "p", userID: "u"}
	err := cmd.Run(context.TODO())
	assert.ErrorContains(t, err, "requires the websocket agent mode")
}

func TestTaskCommands(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "magic.db")

	repo, _, closeRepo, err := newRepository(context.TODO(), cfg, log.Noop)
	require.NoError(err)
	now := time.Now().UTC()
	require.NoError(repo.CreateTopic(context.TODO(), model.Topic{ID: "topic1", UserID: "u1", ChatConversationID: "c", ChatTopicID: "t", CreatedAt: now, UpdatedAt: now}))
	require.NoError(repo.CreateTask(context.TODO(), model.Task{ID: "task1", TopicID: "topic1", UserID: "u1", Prompt: "p", Status: model.TaskStatusWaiting, CreatedAt: now, UpdatedAt: now}))
	require.NoError(closeRepo())

	root := &RootCommand{Config: cfg, Logger: log.Noop}

	var out bytes.Buffer
	root.Stdout = &out
	err = TaskListCommand{rootCmd: root, userID: "u1", format: "table"}.Run(context.TODO())
	require.NoError(err)
	assert.Contains(out.String(), "task1")

	out.Reset()
	err = TaskStatusCommand{rootCmd: root, taskID: "task1", format: "json"}.Run(context.TODO())
	require.NoError(err)
	assert.Contains(out.String(), `"status": "waiting"`)

	err = TaskStatusCommand{rootCmd: root, taskID: "missing", format: "json"}.Run(context.TODO())
	assert.Error(err)
}
