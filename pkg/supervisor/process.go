package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/easel-ai/easel/pkg/config"
)

const (
	portProbeTimeout = 250 * time.Millisecond
	killPollInterval = 100 * time.Millisecond
)

// pidAlive reports whether a process with the given pid exists.
func pidAlive(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

// portInUse probes the loopback port for an active listener.
func portInUse(port int) bool {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, portProbeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// spawn launches the daemon detached in its own session so it survives
// an easel restart. The child is reaped in the background to keep
// same-lifetime exits from lingering as zombies.
func (s *Supervisor) spawn(svc *config.ServiceConfig, port int, env []string) (int, error) {
	args := make([]string, 0, len(svc.Args))
	for _, a := range svc.Args {
		args = append(args, strings.ReplaceAll(a, "{port}", strconv.Itoa(port)))
	}

	cmd := exec.Command(svc.Command, args...)
	cmd.Dir = svc.WorkDir
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	logPath := filepath.Join(s.runDir, svc.Name+"_service.log")
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Warn("Falling back to discarded daemon output", "service", svc.Name, "error", err)
	} else {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return 0, fmt.Errorf("failed to launch %s: %w", svc.Name, err)
	}

	go func() {
		_ = cmd.Wait()
		if logFile != nil {
			_ = logFile.Close()
		}
	}()

	return cmd.Process.Pid, nil
}

// terminate delivers SIGTERM, waits up to graceful for a clean exit,
// and falls back to SIGKILL.
func terminate(ctx context.Context, pid int, graceful time.Duration) error {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(graceful)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(killPollInterval):
		}
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to kill pid %d: %w", pid, err)
	}
	for i := 0; i < 20; i++ {
		if !pidAlive(pid) {
			return nil
		}
		time.Sleep(killPollInterval / 2)
	}
	return fmt.Errorf("pid %d did not exit after SIGKILL", pid)
}
