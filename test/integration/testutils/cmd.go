package testutils

import (
	"bytes"
	"context"
	"os"
	"os/exec"
)

// RunMagic executes a magic command with pre-split arguments and waits for it.
func RunMagic(ctx context.Context, env []string, binary string, args []string, nolog bool) (stdout, stderr []byte, err error) {
	var outData, errData bytes.Buffer
	cmd := newCmd(ctx, env, binary, args, nolog)
	cmd.Stdout = &outData
	cmd.Stderr = &errData

	err = cmd.Run()

	return outData.Bytes(), errData.Bytes(), err
}

// StartMagic starts a long running magic command (e.g: serve), it's stopped
// when the context is cancelled.
func StartMagic(ctx context.Context, env []string, binary string, args []string) (*exec.Cmd, *bytes.Buffer, error) {
	var logs bytes.Buffer
	cmd := newCmd(ctx, env, binary, args, false)
	cmd.Stdout = &logs
	cmd.Stderr = &logs
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	return cmd, &logs, nil
}

func newCmd(ctx context.Context, env []string, binary string, args []string, nolog bool) *exec.Cmd {
	cmd := exec.CommandContext(ctx, binary, args...)

	// When duplicate keys exist the last one wins, so custom env goes on top.
	newEnv := append([]string{}, os.Environ()...)
	newEnv = append(newEnv, env...)
	if nolog {
		newEnv = append(newEnv, "MAGIC_NO_LOG=true")
	}
	cmd.Env = newEnv

	return cmd
}
