// Package e2e boots a complete easel instance over temp directories and
// scripted providers, exercising the real HTTP and WebSocket boundary.
package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/easel-ai/easel/pkg/api"
	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/jobs"
	"github.com/easel-ai/easel/pkg/progress"
	"github.com/easel-ai/easel/pkg/session"
	"github.com/easel-ai/easel/pkg/supervisor"
)

// TestApp is one fully wired easel instance for e2e testing. Model
// daemons are replaced by scripted providers; everything else is real.
type TestApp struct {
	Config     *config.Config
	Store      *session.Store
	Bus        *progress.Bus
	Manager    *jobs.Manager
	Supervisor *supervisor.Supervisor
	Server     *api.Server

	BaseURL string
	WSURL   string

	httpServer *httptest.Server
	t          *testing.T
}

type testAppConfig struct {
	providers *ScriptedProviders
	retention *config.RetentionConfig
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithProviders injects pre-scripted providers.
func WithProviders(p *ScriptedProviders) TestAppOption {
	return func(c *testAppConfig) { c.providers = p }
}

// NewTestApp boots an easel instance on an ephemeral listener. Shutdown
// is registered via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.providers == nil {
		tc.providers = NewScriptedProviders()
	}

	services := make(map[string]*config.ServiceConfig)
	for i, name := range config.ServiceNames() {
		services[name] = &config.ServiceConfig{Name: name, Port: 8200 + i}
	}
	cfg := &config.Config{
		Services:  services,
		Retention: tc.retention,
		Defaults:  &config.BeamDefaults{N: 2, M: 1, Iterations: 1, Alpha: 0.7, Temperature: 0.8},
	}

	store, err := session.NewStore(t.TempDir())
	require.NoError(t, err)

	bus := progress.NewBus()
	manager := jobs.NewManager(cfg, store, bus, nil, tc.providers.Factory())
	sup := supervisor.New(cfg, t.TempDir())
	server := api.NewServer(cfg, manager, store, sup, bus)

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	return &TestApp{
		Config:     cfg,
		Store:      store,
		Bus:        bus,
		Manager:    manager,
		Supervisor: sup,
		Server:     server,
		BaseURL:    httpServer.URL,
		WSURL:      "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws",
		httpServer: httpServer,
		t:          t,
	}
}

// rebootApp boots a second instance over the first one's session root,
// simulating a server restart with persisted history.
func rebootApp(t *testing.T, prev *TestApp) *TestApp {
	t.Helper()

	store, err := session.NewStore(prev.Store.Root())
	require.NoError(t, err)

	bus := progress.NewBus()
	manager := jobs.NewManager(prev.Config, store, bus, nil, NewScriptedProviders().Factory())
	sup := supervisor.New(prev.Config, t.TempDir())
	server := api.NewServer(prev.Config, manager, store, sup, bus)

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	return &TestApp{
		Config:     prev.Config,
		Store:      store,
		Bus:        bus,
		Manager:    manager,
		Supervisor: sup,
		Server:     server,
		BaseURL:    httpServer.URL,
		WSURL:      "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws",
		httpServer: httpServer,
		t:          t,
	}
}

// PostJSON sends a JSON body and decodes the JSON response into out
// (when out is non-nil). Returns the status code.
func (a *TestApp) PostJSON(path string, body, out any) int {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}
	resp, err := http.Post(a.BaseURL+path, "application/json", reader)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// GetJSON fetches path and decodes the JSON response into out when the
// request succeeds. Returns the status code.
func (a *TestApp) GetJSON(path string, out any) int {
	a.t.Helper()
	resp, err := http.Get(a.BaseURL + path)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// Do issues a request with no body and returns the response; the caller
// closes it.
func (a *TestApp) Do(method, path string) *http.Response {
	a.t.Helper()
	req, err := http.NewRequest(method, a.BaseURL+path, nil)
	require.NoError(a.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	return resp
}

// WaitForJobStatus polls the job endpoint until it reports the wanted
// status.
func (a *TestApp) WaitForJobStatus(jobID, status string) map[string]any {
	a.t.Helper()
	var job map[string]any
	require.Eventually(a.t, func() bool {
		var got map[string]any
		if code := a.GetJSON("/api/jobs/"+jobID, &got); code != http.StatusOK {
			return false
		}
		job = got
		return got["status"] == status
	}, 10*time.Second, 25*time.Millisecond, "job %s never reached %s", jobID, status)
	return job
}

// Submit posts a beam-search request and returns the job and session ids.
func (a *TestApp) Submit(body map[string]any) (jobID, sessionID string) {
	a.t.Helper()
	var resp struct {
		JobID string `json:"jobId"`
	}
	code := a.PostJSON("/api/beam-search", body, &resp)
	require.Equal(a.t, http.StatusOK, code)
	require.NotEmpty(a.t, resp.JobID)

	var job struct {
		SessionID string `json:"sessionId"`
	}
	require.Equal(a.t, http.StatusOK, a.GetJSON("/api/jobs/"+resp.JobID, &job))
	return resp.JobID, job.SessionID
}
