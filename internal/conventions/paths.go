package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default magic data directory name (relative to home).
	DefaultDataDir = ".magic"
	// DBFile is the SQLite database filename inside the data directory.
	DBFile = "magic.db"

	// AgentPort is the port the sandbox agent websocket listens on.
	AgentPort = 8002
	// AgentPath is the HTTP path of the sandbox agent websocket.
	AgentPath = "/ws"
	// LocalAgentEndpoint is the agent used when sandboxes are disabled.
	LocalAgentEndpoint = "ws://127.0.0.1:8002/ws"
)

// DataDir returns the magic data directory of a home directory.
func DataDir(home string) string {
	return filepath.Join(home, DefaultDataDir)
}

// DBPath returns the default SQLite database path of a home directory.
func DBPath(home string) string {
	return filepath.Join(DataDir(home), DBFile)
}
