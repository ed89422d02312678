package supervisor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easel-ai/easel/pkg/config"
)

// startExitedProcessPID returns the pid of a process that has already
// exited and been reaped, which makes it stale by definition.
func startExitedProcessPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())
	return pid
}

// freePort grabs an ephemeral port and releases it for the test to use.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// testConfig builds a config whose services are plain sleep processes,
// so lifecycle tests exercise real pids without any model weights.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	services := make(map[string]*config.ServiceConfig)
	for _, name := range config.ServiceNames() {
		services[name] = &config.ServiceConfig{
			Name:            name,
			Port:            freePort(t),
			Command:         "sleep",
			Args:            []string{"60"},
			HealthPath:      "/health",
			GracefulTimeout: 2 * time.Second,
			StartupTimeout:  5 * time.Second,
		}
	}
	return &config.Config{
		Port:     freePort(t),
		Services: services,
	}
}

func TestSupervisorStartStop(t *testing.T) {
	cfg := testConfig(t)
	sup := New(cfg, t.TempDir())
	ctx := context.Background()

	pid, port, err := sup.Start(ctx, config.ServiceLLM, StartOptions{})
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
	assert.Equal(t, cfg.Services[config.ServiceLLM].Port, port)

	assert.True(t, sup.IsRunning(config.ServiceLLM))
	gotPID, ok := sup.PID(config.ServiceLLM)
	require.True(t, ok)
	assert.Equal(t, pid, gotPID)
	gotPort, err := sup.Port(config.ServiceLLM)
	require.NoError(t, err)
	assert.Equal(t, port, gotPort)
	assert.True(t, sup.ShouldBeRunning(config.ServiceLLM))

	// Pid and port files exist with the recorded values.
	data, err := os.ReadFile(sup.pidFile(config.ServiceLLM))
	require.NoError(t, err)
	filePID, err := strconv.Atoi(string(data[:len(data)-1]))
	require.NoError(t, err)
	assert.Equal(t, pid, filePID)

	_, _, err = sup.Start(ctx, config.ServiceLLM, StartOptions{})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, sup.Stop(ctx, config.ServiceLLM))
	assert.False(t, sup.IsRunning(config.ServiceLLM))
	assert.False(t, sup.ShouldBeRunning(config.ServiceLLM))
	assert.NoFileExists(t, sup.pidFile(config.ServiceLLM))
	assert.NoFileExists(t, sup.portFile(config.ServiceLLM))
	assert.False(t, pidAlive(pid))
}

func TestSupervisorStopIsIdempotent(t *testing.T) {
	sup := New(testConfig(t), t.TempDir())
	require.NoError(t, sup.Stop(context.Background(), config.ServiceVision))
}

func TestSupervisorStartErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown service", func(t *testing.T) {
		sup := New(testConfig(t), t.TempDir())
		_, _, err := sup.Start(ctx, "gpt", StartOptions{})
		assert.ErrorIs(t, err, config.ErrServiceNotFound)
	})

	t.Run("not configured", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Services[config.ServiceVLM].Disabled = true
		sup := New(cfg, t.TempDir())
		_, _, err := sup.Start(ctx, config.ServiceVLM, StartOptions{})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("port occupied", func(t *testing.T) {
		cfg := testConfig(t)
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer func() { _ = l.Close() }()
		cfg.Services[config.ServiceLLM].Port = l.Addr().(*net.TCPAddr).Port

		sup := New(cfg, t.TempDir())
		_, _, err = sup.Start(ctx, config.ServiceLLM, StartOptions{})
		assert.ErrorIs(t, err, ErrPortInUse)
	})
}

func TestSupervisorKillsStubbornProcess(t *testing.T) {
	cfg := testConfig(t)
	svc := cfg.Services[config.ServiceLLM]
	svc.Command = "sh"
	svc.Args = []string{"-c", `trap '' TERM; sleep 60`}
	svc.GracefulTimeout = 300 * time.Millisecond

	sup := New(cfg, t.TempDir())
	ctx := context.Background()

	pid, _, err := sup.Start(ctx, config.ServiceLLM, StartOptions{})
	require.NoError(t, err)

	// Give the shell a moment to install its TERM trap.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, sup.Stop(ctx, config.ServiceLLM))
	assert.False(t, pidAlive(pid))
}

func TestSupervisorAdoptsPreviousRuntime(t *testing.T) {
	cfg := testConfig(t)
	runDir := t.TempDir()
	ctx := context.Background()

	first := New(cfg, runDir)
	pid, _, err := first.Start(ctx, config.ServiceVision, StartOptions{})
	require.NoError(t, err)

	// A fresh supervisor over the same run dir discovers the daemon.
	second := New(cfg, runDir)
	assert.True(t, second.IsRunning(config.ServiceVision))
	assert.True(t, second.ShouldBeRunning(config.ServiceVision))
	adoptedPID, ok := second.PID(config.ServiceVision)
	require.True(t, ok)
	assert.Equal(t, pid, adoptedPID)

	require.NoError(t, second.Stop(ctx, config.ServiceVision))
	assert.False(t, first.IsRunning(config.ServiceVision))
}

func TestSupervisorDeletesStalePidFile(t *testing.T) {
	cfg := testConfig(t)
	sup := New(cfg, t.TempDir())

	// A pid of an already-exited process is stale by definition.
	probe := startExitedProcessPID(t)
	require.NoError(t, os.WriteFile(sup.pidFile(config.ServiceLLM),
		[]byte(strconv.Itoa(probe)+"\n"), 0o644))

	assert.False(t, sup.IsRunning(config.ServiceLLM))
	assert.NoFileExists(t, sup.pidFile(config.ServiceLLM))
}

func TestSupervisorRemovesGarbagePidFile(t *testing.T) {
	sup := New(testConfig(t), t.TempDir())
	require.NoError(t, os.WriteFile(sup.pidFile(config.ServiceFlux), []byte("not-a-pid\n"), 0o644))

	assert.False(t, sup.IsRunning(config.ServiceFlux))
	assert.NoFileExists(t, sup.pidFile(config.ServiceFlux))
}

func TestStopLockLifecycle(t *testing.T) {
	sup := New(testConfig(t), t.TempDir())

	assert.False(t, sup.HasStopLock(config.ServiceFlux))
	assert.Empty(t, sup.AllStopLocks())

	require.NoError(t, sup.CreateStopLock(config.ServiceFlux))
	assert.True(t, sup.HasStopLock(config.ServiceFlux))

	locks := sup.AllStopLocks()
	require.Contains(t, locks, config.ServiceFlux)
	assert.WithinDuration(t, time.Now(), locks[config.ServiceFlux], 5*time.Second)

	require.NoError(t, sup.DeleteStopLock(config.ServiceFlux))
	assert.False(t, sup.HasStopLock(config.ServiceFlux))

	err := sup.DeleteStopLock(config.ServiceFlux)
	assert.ErrorIs(t, err, ErrNoStopLock)
}

func TestStopLockRejectsUnknownService(t *testing.T) {
	sup := New(testConfig(t), t.TempDir())
	assert.ErrorIs(t, sup.CreateStopLock("gpt"), config.ErrServiceNotFound)
	assert.ErrorIs(t, sup.DeleteStopLock("gpt"), config.ErrServiceNotFound)
}

func TestRestartRefusedWhileStopLocked(t *testing.T) {
	sup := New(testConfig(t), t.TempDir())
	require.NoError(t, sup.CreateStopLock(config.ServiceFlux))

	_, _, err := sup.Restart(context.Background(), config.ServiceFlux, StartOptions{})
	require.ErrorIs(t, err, ErrStopLocked)
	assert.Contains(t, err.Error(), "STOP_LOCK")

	// Removing the lock makes restart work again.
	require.NoError(t, sup.DeleteStopLock(config.ServiceFlux))
	pid, _, err := sup.Restart(context.Background(), config.ServiceFlux, StartOptions{})
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
	require.NoError(t, sup.Stop(context.Background(), config.ServiceFlux))
}

func TestSupervisorHealth(t *testing.T) {
	var probes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(t)
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	cfg.Services[config.ServiceVision].Port = port

	sup := New(cfg, t.TempDir())
	ctx := context.Background()

	t.Run("not running", func(t *testing.T) {
		result := sup.Health(ctx, config.ServiceVision)
		assert.False(t, result.Healthy)
		assert.Equal(t, "service is not running", result.Error)
	})

	// Pretend the test process itself is the daemon; its pid is alive.
	require.NoError(t, os.WriteFile(sup.pidFile(config.ServiceVision),
		[]byte(strconv.Itoa(os.Getpid())+"\n"), 0o644))

	t.Run("healthy and cached", func(t *testing.T) {
		result := sup.Health(ctx, config.ServiceVision)
		assert.True(t, result.Healthy)
		again := sup.Health(ctx, config.ServiceVision)
		assert.True(t, again.Healthy)
		assert.Equal(t, int32(1), probes.Load(), "second check within TTL must hit the cache")
	})

	t.Run("status reflects health", func(t *testing.T) {
		status, err := sup.Status(ctx, config.ServiceVision)
		require.NoError(t, err)
		assert.True(t, status.Running)
		assert.True(t, status.Healthy)
		assert.Equal(t, os.Getpid(), status.PID)
		require.NotNil(t, status.LastHealthy)
	})
}

func TestSupervisorWaitHealthy(t *testing.T) {
	var ready atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(t)
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	cfg.Services[config.ServiceLLM].Port = port
	cfg.Services[config.ServiceLLM].StartupTimeout = 5 * time.Second

	sup := New(cfg, t.TempDir())

	go func() {
		time.Sleep(700 * time.Millisecond)
		ready.Store(true)
	}()
	require.NoError(t, sup.WaitHealthy(context.Background(), config.ServiceLLM))
}

func TestSupervisorWaitHealthyTimesOut(t *testing.T) {
	cfg := testConfig(t)
	cfg.Services[config.ServiceLLM].StartupTimeout = 300 * time.Millisecond

	sup := New(cfg, t.TempDir())
	err := sup.WaitHealthy(context.Background(), config.ServiceLLM)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not become healthy")
}

func TestAllStatuses(t *testing.T) {
	cfg := testConfig(t)
	sup := New(cfg, t.TempDir())
	ctx := context.Background()

	_, _, err := sup.Start(ctx, config.ServiceLLM, StartOptions{})
	require.NoError(t, err)
	defer func() { _ = sup.Stop(ctx, config.ServiceLLM) }()
	require.NoError(t, sup.CreateStopLock(config.ServiceVLM))

	statuses := sup.AllStatuses(ctx)
	require.Len(t, statuses, 4)
	assert.True(t, statuses[config.ServiceLLM].Running)
	assert.True(t, statuses[config.ServiceLLM].ShouldBeRunning)
	assert.False(t, statuses[config.ServiceVision].Running)
	assert.True(t, statuses[config.ServiceVLM].StopLocked)
	require.NotNil(t, statuses[config.ServiceVLM].StopLockedAt)
}

func TestBuildEnvFluxLora(t *testing.T) {
	cfg := testConfig(t)
	cfg.HFToken = "hf_test"
	flux := cfg.Services[config.ServiceFlux]
	flux.LoraPath = "/models/style.safetensors"
	flux.LoraScale = 0.8

	sup := New(cfg, t.TempDir())

	env := sup.buildEnv(flux, StartOptions{})
	assert.Contains(t, env, "HF_TOKEN=hf_test")
	assert.Contains(t, env, "FLUX_LORA_PATH=/models/style.safetensors")
	assert.Contains(t, env, "FLUX_LORA_SCALE=0.8")

	overridden := sup.buildEnv(flux, StartOptions{LoraPath: "/models/other.safetensors", LoraScale: 1.2})
	assert.Contains(t, overridden, "FLUX_LORA_PATH=/models/other.safetensors")
	assert.Contains(t, overridden, "FLUX_LORA_SCALE=1.2")

	// Non-flux services never get LoRA env.
	llmEnv := sup.buildEnv(cfg.Services[config.ServiceLLM], StartOptions{})
	for _, kv := range llmEnv {
		assert.NotContains(t, kv, "FLUX_LORA_PATH")
	}
}
