package rules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitweaker/tweakd/pkg/model"
)

func TestGenerateGemini(t *testing.T) {
	p := model.Profile{
		ProxyPort: 8080,
		Apps: map[string]model.AppConfig{
			"gemini": {
				Enabled: true,
				FlagConfigs: map[string]model.FlagEntry{
					"45709348":    {Enabled: true},
					"45720836":    {Enabled: false},
					"45000-45500": {Enabled: true, Note: "Binary Search: Lower Half"},
					"named":       {Enabled: true},
				},
			},
		},
	}
	b, err := json.Marshal(Generate(p))
	require.NoError(t, err)
	assert.JSONEq(t, `{"apps":{"gemini":{"enabled":true,"flags":["45000-45500",45709348,"named"]}}}`, string(b))
}

func TestGenerateDefaults(t *testing.T) {
	p := model.DefaultConfiguration().Profiles[model.DefaultProfile]
	r := Generate(p)

	require.Contains(t, r.Apps, "gemini")
	assert.Len(t, r.Apps["gemini"]["flags"], 15)
	assert.Equal(t, []string{}, r.Apps["copilot"]["flags"])
	assert.Equal(t, false, r.Apps["copilot"]["allow_beta"])
	assert.Equal(t, json.RawMessage(`"None"`), r.Apps["google_labs"]["music_fx_replace"])
}

func TestGenerateCopilot(t *testing.T) {
	p := model.Profile{Apps: map[string]model.AppConfig{
		"copilot": {
			Enabled: true,
			Extra: map[string]json.RawMessage{
				"flags":      json.RawMessage(`[{"name":"zeta"},{"name":"alpha","enabled":true},{"name":"off","enabled":false}]`),
				"allow_beta": json.RawMessage(`true`),
			},
		},
	}}
	r := Generate(p)
	assert.Equal(t, []string{"alpha", "zeta"}, r.Apps["copilot"]["flags"])
	assert.Equal(t, true, r.Apps["copilot"]["allow_beta"])
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, Write(path, Generate(model.DefaultConfiguration().Profiles[model.DefaultProfile])))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, true, got["apps"]["gemini"]["enabled"])
	assert.IsType(t, []interface{}{}, got["apps"]["gemini"]["flags"])
}
