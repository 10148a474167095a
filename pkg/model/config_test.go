package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	r, err := ParseRange("45000-46000")
	require.NoError(t, err)
	assert.Equal(t, RangeToken{Start: 45000, End: 46000}, r)
	assert.Equal(t, 1000, r.Size())
	assert.Equal(t, "45000-46000", r.String())

	for _, bad := range []string{"200-100", "5-5", "-5", "a-10", "1-", "1-2-3", "+1-4"} {
		_, err := ParseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestCheckID(t *testing.T) {
	assert.NoError(t, CheckID("45709348"))
	assert.NoError(t, CheckID("some_token"))
	assert.NoError(t, CheckID("100-200"))
	assert.Error(t, CheckID(""))
	assert.Error(t, CheckID("200-100"))
}

func TestAppConfigKeepsUnknownFields(t *testing.T) {
	raw := `{"enabled":false,"flags":["a"],"allow_beta":true}`
	var app AppConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &app))
	assert.False(t, app.Enabled)
	assert.Nil(t, app.FlagConfigs)

	out, err := json.Marshal(app)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestAppConfigDefaultsToEnabled(t *testing.T) {
	var app AppConfig
	require.NoError(t, json.Unmarshal([]byte(`{"flag_configs":{"7":{"note":"x","enabled":false}}}`), &app))
	assert.True(t, app.Enabled)
	assert.Equal(t, FlagEntry{Note: "x"}, app.FlagConfigs["7"])
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfiguration()
	require.NoError(t, cfg.Validate())

	cfg.ActiveProfile = "missing"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfiguration()
	p := cfg.Profiles[DefaultProfile]
	p.ProxyPort = 70000
	cfg.Profiles[DefaultProfile] = p
	assert.Error(t, cfg.Validate())
}

func TestWithAppDoesNotAlias(t *testing.T) {
	cfg := DefaultConfiguration()
	app := cfg.App("gemini").Clone()
	app.Enabled = false
	next := cfg.WithApp("gemini", app)

	assert.True(t, cfg.App("gemini").Enabled)
	assert.False(t, next.App("gemini").Enabled)
	assert.Len(t, next.App("gemini").FlagConfigs, 15)
}
