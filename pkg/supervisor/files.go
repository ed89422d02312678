package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/easel-ai/easel/pkg/config"
)

// Runtime state lives in flat files under the run directory (default
// /tmp) so that a freshly started easel process can discover daemons
// left behind by a previous one. The naming is part of the on-host
// contract and must not change between releases.
const (
	pidFileSuffix  = "_service.pid"
	portFileSuffix = "_service.port"
	stopLockSuffix = "_STOP_LOCK"
)

func (s *Supervisor) pidFile(name string) string {
	return filepath.Join(s.runDir, name+pidFileSuffix)
}

func (s *Supervisor) portFile(name string) string {
	return filepath.Join(s.runDir, name+portFileSuffix)
}

func (s *Supervisor) stopLockFile(name string) string {
	return filepath.Join(s.runDir, name+stopLockSuffix)
}

// readPIDFile returns the recorded pid, or (0, false) when the file is
// missing or unparseable. Garbage content is removed on sight.
func (s *Supervisor) readPIDFile(name string) (int, bool) {
	data, err := os.ReadFile(s.pidFile(name))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		s.logger.Warn("Removing unparseable pid file", "service", name, "content", string(data))
		_ = os.Remove(s.pidFile(name))
		return 0, false
	}
	return pid, true
}

func (s *Supervisor) writeRuntimeFiles(name string, pid, port int) error {
	if err := os.WriteFile(s.pidFile(name), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	if err := os.WriteFile(s.portFile(name), []byte(strconv.Itoa(port)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write port file: %w", err)
	}
	return nil
}

func (s *Supervisor) clearRuntimeFiles(name string) {
	_ = os.Remove(s.pidFile(name))
	_ = os.Remove(s.portFile(name))
}

// readPortFile returns the recorded port, or 0 when absent.
func (s *Supervisor) readPortFile(name string) int {
	data, err := os.ReadFile(s.portFile(name))
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || port <= 0 {
		return 0
	}
	return port
}

// CreateStopLock records an explicit user stop. While the lock file
// exists, restart paths and the auto-restart monitor leave the service
// alone.
func (s *Supervisor) CreateStopLock(name string) error {
	if !config.IsValidServiceName(name) {
		return fmt.Errorf("%w: %s", config.ErrServiceNotFound, name)
	}
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	if err := os.WriteFile(s.stopLockFile(name), []byte(stamp+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to create stop lock: %w", err)
	}
	s.logger.Info("Stop lock created", "service", name)
	return nil
}

// HasStopLock reports whether an explicit stop is in effect for name.
func (s *Supervisor) HasStopLock(name string) bool {
	_, err := os.Stat(s.stopLockFile(name))
	return err == nil
}

// DeleteStopLock removes the stop lock, re-enabling restarts. Returns
// ErrNoStopLock when there is nothing to remove.
func (s *Supervisor) DeleteStopLock(name string) error {
	if !config.IsValidServiceName(name) {
		return fmt.Errorf("%w: %s", config.ErrServiceNotFound, name)
	}
	err := os.Remove(s.stopLockFile(name))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNoStopLock, name)
	}
	if err != nil {
		return fmt.Errorf("failed to remove stop lock: %w", err)
	}
	s.logger.Info("Stop lock removed", "service", name)
	return nil
}

// AllStopLocks returns the creation time of every present stop lock,
// keyed by service name.
func (s *Supervisor) AllStopLocks() map[string]time.Time {
	locks := make(map[string]time.Time)
	for _, name := range config.ServiceNames() {
		data, err := os.ReadFile(s.stopLockFile(name))
		if err != nil {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			// A lock with garbage content still locks; surface zero time.
			locks[name] = time.Time{}
			continue
		}
		locks[name] = time.Unix(unix, 0)
	}
	return locks
}
