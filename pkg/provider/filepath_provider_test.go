package provider

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitweaker/tweakd/pkg/model"
)

func newFileProvider(t *testing.T) *FilePathProvider {
	t.Helper()
	fp := &FilePathProvider{URI: filepath.Join(t.TempDir(), "profiles.json")}
	require.NoError(t, fp.Initialize())
	return fp
}

func TestFilePathProviderInitializeWritesDefaults(t *testing.T) {
	fp := newFileProvider(t)
	cfg, err := fp.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPort, cfg.Profiles[model.DefaultProfile].ProxyPort)
	assert.Contains(t, cfg.App("gemini").FlagConfigs, "45709348")
}

func TestFilePathProviderPersistMerges(t *testing.T) {
	fp := newFileProvider(t)
	ctx := context.Background()

	require.NoError(t, fp.Persist(ctx, json.RawMessage(`{"apps":{"gemini":{"enabled":false}}}`)))
	cfg, err := fp.Fetch(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.App("gemini").Enabled)
	assert.Len(t, cfg.App("gemini").FlagConfigs, 15)

	assert.Error(t, fp.Persist(ctx, json.RawMessage(`{"proxy_port":0}`)))
	cfg, err = fp.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPort, cfg.Profiles[model.DefaultProfile].ProxyPort)
}

func TestFilePathProviderRejectsInvalidDocument(t *testing.T) {
	fp := &FilePathProvider{URI: filepath.Join(t.TempDir(), "profiles.json")}
	require.NoError(t, os.WriteFile(fp.URI, []byte(`{"active_profile":"default","profiles":{"default":{"proxy_port":"x"}}}`), 0o644))
	_, err := fp.Fetch(context.Background())
	assert.Error(t, err)
}

func TestFilePathProviderWatch(t *testing.T) {
	fp := newFileProvider(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan model.Configuration, 16)
	go func() {
		_ = fp.Watch(ctx, func(cfg model.Configuration) { changes <- cfg })
	}()
	time.Sleep(100 * time.Millisecond)

	cfg := model.DefaultConfiguration()
	p := cfg.Profiles[model.DefaultProfile]
	p.ProxyPort = 9191
	cfg.Profiles[model.DefaultProfile] = p
	require.NoError(t, fp.Save(cfg))

	select {
	case got := <-changes:
		assert.Equal(t, 9191, got.Profiles[model.DefaultProfile].ProxyPort)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}
