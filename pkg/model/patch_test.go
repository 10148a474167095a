package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfilePatchCarriesOnlyTheChange(t *testing.T) {
	from := DefaultConfiguration().Profiles[DefaultProfile]
	to := from.Clone()
	gemini := to.Apps["gemini"]
	delete(gemini.FlagConfigs, "45709348")
	gemini.FlagConfigs["7"] = FlagEntry{Note: "test", Enabled: true}
	to.Apps["gemini"] = gemini

	patch, err := ProfilePatch(from, to)
	require.NoError(t, err)
	assert.JSONEq(t, `{"apps":{"gemini":{"flag_configs":{"45709348":null,"7":{"note":"test","enabled":true}}}}}`, string(patch))

	merged, err := ApplyProfilePatch(from, patch)
	require.NoError(t, err)
	assert.Equal(t, to.Apps["gemini"], merged.Apps["gemini"])
	assert.Equal(t, from.Apps["copilot"], merged.Apps["copilot"])
}

func TestApplyProfilePatchIsDeep(t *testing.T) {
	p := DefaultConfiguration().Profiles[DefaultProfile]
	merged, err := ApplyProfilePatch(p, json.RawMessage(`{"apps":{"gemini":{"enabled":false}}}`))
	require.NoError(t, err)
	assert.False(t, merged.Apps["gemini"].Enabled)
	assert.Len(t, merged.Apps["gemini"].FlagConfigs, 15)
	assert.Equal(t, DefaultPort, merged.ProxyPort)
}

func TestApplyProfilePatchRejectsEmpty(t *testing.T) {
	p := DefaultConfiguration().Profiles[DefaultProfile]
	_, err := ApplyProfilePatch(p, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrEmptyUpdate)
}
