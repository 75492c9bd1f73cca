package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/skiffsync/skiff/internal/utils"
)

// writePidFile records the current pid, refusing to clobber a live
// daemon's file.
func writePidFile(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	if pid, err := readPidFile(path); err == nil && pidAlive(pid) {
		return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, pid)
	}

	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func clearPidFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove pid file", "path", path, "error", err)
	}
}

func readPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse pid file %s: %w", path, err)
	}
	return pid, nil
}

func pidAlive(pid int) bool {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	return err == nil && running
}

// RunningProcess returns the daemon process recorded in the pid file,
// or nil if no live daemon is found. A stale or missing pid file is not
// an error.
func RunningProcess(path string) (*process.Process, error) {
	pid, err := readPidFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, nil
	}
	running, err := proc.IsRunning()
	if err != nil || !running {
		return nil, nil
	}
	return proc, nil
}
