// Package process implements orchestrator.Host by running a plugin's
// entry point as an isolated child process. Each instantiation execs the
// manifest's EntryPoint with the plugin directory as its working
// directory; disposal sends SIGTERM and waits briefly before killing.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ows4444/pluginforge/internal/manifest"
)

// Host execs each plugin's entry point as a child process. The returned
// instantiation handle (any, as required by orchestrator.Host) is always
// a *Handle.
type Host struct {
	// KillGrace bounds how long Dispose waits after SIGTERM before it
	// escalates to SIGKILL. Zero uses a 5 second default.
	KillGrace time.Duration
	Logger    *slog.Logger
}

// Handle is the live state of one instantiated plugin process.
type Handle struct {
	Plugin string
	cmd    *exec.Cmd

	mu     sync.Mutex
	exited bool
}

func (h *Host) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// Instantiate starts m's entry point as a subprocess rooted at pluginDir.
// The process inherits no stdin and its stdout/stderr are discarded; a
// future iteration could pipe them through pkg/logger instead.
func (h *Host) Instantiate(ctx context.Context, m *manifest.Manifest, pluginDir string) (any, error) {
	if m.EntryPoint == "" {
		return nil, fmt.Errorf("process: %s has no entryPoint", m.Name)
	}

	cmd := exec.CommandContext(ctx, m.EntryPoint)
	cmd.Dir = pluginDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", m.Name, err)
	}

	handle := &Handle{Plugin: m.Name, cmd: cmd}
	go func() {
		_ = cmd.Wait()
		handle.mu.Lock()
		handle.exited = true
		handle.mu.Unlock()
	}()

	h.logger().Info("plugin process started", "plugin", m.Name, "pid", cmd.Process.Pid, "entry_point", m.EntryPoint)
	return handle, nil
}

// Dispose signals module's process to exit, escalating to SIGKILL if it
// doesn't within KillGrace.
func (h *Host) Dispose(ctx context.Context, module any) error {
	handle, ok := module.(*Handle)
	if !ok || handle == nil {
		return fmt.Errorf("process: Dispose called with unrecognized handle %T", module)
	}

	handle.mu.Lock()
	exited := handle.exited
	handle.mu.Unlock()
	if exited {
		return nil
	}

	grace := h.KillGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	pgid := handle.cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-time.After(grace):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	case <-ctx.Done():
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return ctx.Err()
	}
	return nil
}
