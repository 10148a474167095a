package cmd

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitweaker/tweakd/pkg/bisect"
	"github.com/aitweaker/tweakd/pkg/model"
	"github.com/aitweaker/tweakd/pkg/provider"
	"github.com/aitweaker/tweakd/pkg/service"
	"github.com/aitweaker/tweakd/pkg/store"
)

type idleProxy struct{}

func (idleProxy) Start(int) error { return nil }
func (idleProxy) Stop() error { return nil }
func (idleProxy) Status() (bool, int) { return false, model.DefaultPort }
func (idleProxy) Subscribe() ([]string, <-chan string, func()) {
	return nil, make(chan string), func() {}
}

type failingPersister struct{}

func (failingPersister) Save(model.Configuration) error { return errors.New("disk full") }

func startStore(t *testing.T) (*httptest.Server, *store.State) {
	t.Helper()
	return startStoreWith(t, &provider.FilePathProvider{URI: filepath.Join(t.TempDir(), "profiles.json")})
}

func startStoreWith(t *testing.T, persister service.Persister) (*httptest.Server, *store.State) {
	t.Helper()
	state := store.NewState()
	_, err := state.Replace(model.DefaultConfiguration())
	require.NoError(t, err)
	svc := &service.HTTPService{
		HTTPServiceConfiguration: &service.HTTPServiceConfiguration{},
		State:                    state,
		Persister:                persister,
		Proxy:                    idleProxy{},
	}
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv, state
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func gemini(t *testing.T, state *store.State) model.AppConfig {
	t.Helper()
	cfg, err := state.Configuration()
	require.NoError(t, err)
	return cfg.App("gemini")
}

func TestFlagsCommands(t *testing.T) {
	srv, state := startStore(t)
	base := []string{"--store-url", srv.URL, "--state-dir", t.TempDir()}

	_, err := run(t, append([]string{"flags", "add", "123", "200-300"}, base...)...)
	require.NoError(t, err)
	app := gemini(t, state)
	assert.Contains(t, app.FlagConfigs, "123")
	assert.Contains(t, app.FlagConfigs, "200-300")

	_, err = run(t, append([]string{"flags", "note", "123", "Dark mode"}, base...)...)
	require.NoError(t, err)
	_, err = run(t, append([]string{"flags", "toggle", "123"}, base...)...)
	require.NoError(t, err)
	assert.Equal(t, model.FlagEntry{Note: "Dark mode", Enabled: false}, gemini(t, state).FlagConfigs["123"])

	_, err = run(t, append([]string{"flags", "rename", "123", "124"}, base...)...)
	require.NoError(t, err)
	app = gemini(t, state)
	assert.NotContains(t, app.FlagConfigs, "123")
	assert.Equal(t, "Dark mode", app.FlagConfigs["124"].Note)

	out, err := run(t, append([]string{"flags", "list", "--term", "dark"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "124")
	assert.Contains(t, out, "Dark mode")
	assert.NotContains(t, out, "200-300")

	_, err = run(t, append([]string{"flags", "remove", "200-300"}, base...)...)
	require.NoError(t, err)
	assert.NotContains(t, gemini(t, state).FlagConfigs, "200-300")

	_, err = run(t, append([]string{"flags", "disable"}, base...)...)
	require.NoError(t, err)
	assert.False(t, gemini(t, state).Enabled)
	assert.Len(t, gemini(t, state).FlagConfigs, 16)
}

func TestFlagsAddRejectsBadIDWithoutWriting(t *testing.T) {
	srv, state := startStore(t)
	_, err := run(t, "flags", "add", "9-3", "--store-url", srv.URL, "--state-dir", t.TempDir())
	assert.Error(t, err)
	assert.NotContains(t, gemini(t, state).FlagConfigs, "9-3")
}

func TestFailedEditIsReportedOnce(t *testing.T) {
	srv, state := startStoreWith(t, failingPersister{})

	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
	})

	out, err := run(t, "flags", "add", "777", "--store-url", srv.URL, "--state-dir", t.TempDir(), "--log-level", "debug")
	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(out, "was not saved"))
	assert.NotContains(t, out, "reverted")
	assert.NotContains(t, gemini(t, state).FlagConfigs, "777")

	assert.Contains(t, logs.String(), "tweakd_configsync_persist_failures_total=1")
	assert.Contains(t, logs.String(), "tweakd_configsync_reverts_total=1")

	_, err = run(t, "flags", "list", "--log-level", "info", "--store-url", srv.URL)
	require.NoError(t, err)
}

func TestPortCommand(t *testing.T) {
	srv, state := startStore(t)
	_, err := run(t, "port", "9090", "--store-url", srv.URL, "--state-dir", t.TempDir())
	require.NoError(t, err)
	cfg, err := state.Configuration()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Profiles[model.DefaultProfile].ProxyPort)

	_, err = run(t, "port", "70000", "--store-url", srv.URL, "--state-dir", t.TempDir())
	assert.Error(t, err)
}

func TestBisectCommands(t *testing.T) {
	srv, state := startStore(t)
	dir := t.TempDir()
	base := []string{"--store-url", srv.URL, "--state-dir", dir}

	out, err := run(t, append([]string{"bisect", "start", "100-104"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "100-102")
	assert.Equal(t, bisect.CandidateNote, gemini(t, state).FlagConfigs["100-102"].Note)

	_, err = run(t, append([]string{"bisect", "start", "0", "10"}, base...)...)
	assert.Error(t, err)

	_, err = run(t, append([]string{"bisect", "present"}, base...)...)
	require.NoError(t, err)
	app := gemini(t, state)
	assert.NotContains(t, app.FlagConfigs, "100-102")
	assert.Contains(t, app.FlagConfigs, "100-101")

	out, err = run(t, append([]string{"bisect", "absent"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "isolated flag 101 after 2 steps")
	app = gemini(t, state)
	assert.NotContains(t, app.FlagConfigs, "100-101")
	assert.Equal(t, model.FlagEntry{Note: bisect.IsolatedNote, Enabled: true}, app.FlagConfigs["101"])

	_, err = os.Stat(filepath.Join(dir, "bisect.json"))
	assert.True(t, os.IsNotExist(err))

	_, err = run(t, append([]string{"bisect", "present"}, base...)...)
	assert.Error(t, err)
}

func TestBisectAbortKeepsCandidate(t *testing.T) {
	srv, state := startStore(t)
	base := []string{"--store-url", srv.URL, "--state-dir", t.TempDir()}

	_, err := run(t, append([]string{"bisect", "start", "0", "8"}, base...)...)
	require.NoError(t, err)
	out, err := run(t, append([]string{"bisect", "abort"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "0-4 is still injected")
	assert.Contains(t, gemini(t, state).FlagConfigs, "0-4")
}

func TestLogStreamURL(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:8000/ws/logs", logStreamURL("http://127.0.0.1:8000/"))
	assert.Equal(t, "wss://store.local/ws/logs", logStreamURL("https://store.local"))
}

func TestParseBounds(t *testing.T) {
	start, end, err := parseBounds([]string{"45000-46000"})
	require.NoError(t, err)
	assert.Equal(t, 45000, start)
	assert.Equal(t, 46000, end)

	start, end, err = parseBounds([]string{"1", "9"})
	require.NoError(t, err)
	assert.Equal(t, 1, start)
	assert.Equal(t, 9, end)

	_, _, err = parseBounds([]string{"x", "9"})
	assert.Error(t, err)
}

func TestLogStreamURLFromStoreClient(t *testing.T) {
	srv, _ := startStore(t)
	_, err := run(t, "flags", "list", "--store-url", srv.URL+"/", "--state-dir", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/logs", logStreamURL(storeClient().BaseURL()))
}
