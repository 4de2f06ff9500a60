package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"firestige.xyz/satcam/internal/core"
)

// ReadPIDFile returns the process ID recorded in path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, core.ErrDaemonNotRunning
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s: %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// SignalStop sends SIGTERM to the daemon recorded in pidFile and waits up
// to timeout for it to exit.
func SignalStop(pidFile string, timeout time.Duration) error {
	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("%w: signal pid %d: %v", core.ErrDaemonNotRunning, pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if process.Signal(syscall.Signal(0)) != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon pid %d still running after %s", pid, timeout)
}
