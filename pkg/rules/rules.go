// Package rules derives the file the interception addon reads on every flow:
// per app, whether it is enabled and which flags to inject.
package rules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/aitweaker/tweakd/pkg/model"
)

type Rules struct {
	Apps map[string]map[string]interface{} `json:"apps"`
}

// Generate builds the rules for p. Enabled flags of gemini are emitted as
// numbers when they are numeric and as strings otherwise, range tokens
// included. Copilot flag names are sorted. Other apps pass through.
func Generate(p model.Profile) Rules {
	out := Rules{Apps: map[string]map[string]interface{}{}}
	for id, app := range p.Apps {
		switch id {
		case "gemini":
			out.Apps[id] = map[string]interface{}{
				"enabled": app.Enabled,
				"flags":   injectedFlags(app),
			}
		case "copilot":
			out.Apps[id] = map[string]interface{}{
				"enabled":    app.Enabled,
				"flags":      copilotFlags(app),
				"allow_beta": extraBool(app, "allow_beta"),
			}
		default:
			entry := map[string]interface{}{}
			for k, v := range app.Extra {
				entry[k] = v
			}
			entry["enabled"] = app.Enabled
			if app.FlagConfigs != nil {
				entry["flags"] = injectedFlags(app)
			}
			out.Apps[id] = entry
		}
	}
	return out
}

func injectedFlags(app model.AppConfig) []interface{} {
	ids := make([]string, 0, len(app.FlagConfigs))
	for id, entry := range app.FlagConfigs {
		if entry.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	flags := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		if n, err := strconv.Atoi(id); err == nil && !model.IsRange(id) {
			flags = append(flags, n)
			continue
		}
		flags = append(flags, id)
	}
	return flags
}

func copilotFlags(app model.AppConfig) []string {
	var entries []struct {
		Name    string `json:"name"`
		Enabled *bool  `json:"enabled"`
	}
	if raw, ok := app.Extra["flags"]; ok {
		_ = json.Unmarshal(raw, &entries)
	}
	names := []string{}
	for _, e := range entries {
		if e.Enabled == nil || *e.Enabled {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}

func extraBool(app model.AppConfig, key string) bool {
	var v bool
	if raw, ok := app.Extra[key]; ok {
		_ = json.Unmarshal(raw, &v)
	}
	return v
}

// Write stores r at path, replacing the file atomically so the addon never
// reads half a document.
func Write(path string, r Rules) error {
	b, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rules-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
