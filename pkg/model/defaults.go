package model

import "encoding/json"

var defaultGeminiFlags = []string{
	"45709348", "45720836", "45728464", "45728377", "45711245",
	"45663720", "45691404", "45707395", "45715396", "45715303",
	"45730924", "45720638", "45685834", "45428791", "45461453",
}

// DefaultConfiguration is the document written on first run.
func DefaultConfiguration() Configuration {
	gemini := AppConfig{Enabled: true, FlagConfigs: map[string]FlagEntry{}}
	for _, id := range defaultGeminiFlags {
		gemini.FlagConfigs[id] = FlagEntry{Enabled: true}
	}
	return Configuration{
		ActiveProfile: DefaultProfile,
		Profiles: map[string]Profile{
			DefaultProfile: {
				ProxyPort: DefaultPort,
				Apps: map[string]AppConfig{
					"gemini": gemini,
					"copilot": {
						Enabled: true,
						Extra: map[string]json.RawMessage{
							"flags":      json.RawMessage(`[]`),
							"allow_beta": json.RawMessage(`false`),
						},
					},
					"google_labs": {
						Enabled: true,
						Extra: map[string]json.RawMessage{
							"music_fx_replace": json.RawMessage(`"None"`),
							"bypass_not_found": json.RawMessage(`false`),
						},
					},
				},
			},
		},
	}
}
