package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultProfile = "default"
	DefaultPort    = 8080
)

type Configuration struct {
	ActiveProfile string             `json:"active_profile"`
	Profiles      map[string]Profile `json:"profiles"`
}

type Profile struct {
	ProxyPort int                  `json:"proxy_port"`
	Apps      map[string]AppConfig `json:"apps"`
}

// AppConfig is the per-integration configuration. Fields the core does not own
// (allow_beta, music_fx_replace, ...) are kept in Extra and written back untouched.
type AppConfig struct {
	Enabled     bool                       `json:"enabled"`
	FlagConfigs map[string]FlagEntry       `json:"flag_configs"`
	Extra       map[string]json.RawMessage `json:"-"`
}

type FlagEntry struct {
	Note    string `json:"note"`
	Enabled bool   `json:"enabled"`
}

// Active returns the active profile and whether it exists.
func (c Configuration) Active() (Profile, bool) {
	p, ok := c.Profiles[c.ActiveProfile]
	return p, ok
}

// Validate checks the document level invariants.
func (c Configuration) Validate() error {
	if c.ActiveProfile == "" {
		return errors.New("active_profile is empty")
	}
	if _, ok := c.Profiles[c.ActiveProfile]; !ok {
		return fmt.Errorf("active_profile %q is not a known profile", c.ActiveProfile)
	}
	for name, p := range c.Profiles {
		if p.ProxyPort < 1 || p.ProxyPort > 65535 {
			return fmt.Errorf("profile %q: proxy_port %d out of range", name, p.ProxyPort)
		}
	}
	return nil
}

// Clone returns a deep copy, so callers may mutate the result freely.
func (c Configuration) Clone() Configuration {
	out := Configuration{
		ActiveProfile: c.ActiveProfile,
		Profiles:      make(map[string]Profile, len(c.Profiles)),
	}
	for name, p := range c.Profiles {
		out.Profiles[name] = p.Clone()
	}
	return out
}

func (p Profile) Clone() Profile {
	out := Profile{ProxyPort: p.ProxyPort, Apps: make(map[string]AppConfig, len(p.Apps))}
	for id, app := range p.Apps {
		out.Apps[id] = app.Clone()
	}
	return out
}

func (a AppConfig) Clone() AppConfig {
	out := AppConfig{Enabled: a.Enabled}
	if a.FlagConfigs != nil {
		out.FlagConfigs = make(map[string]FlagEntry, len(a.FlagConfigs))
		for id, entry := range a.FlagConfigs {
			out.FlagConfigs[id] = entry
		}
	}
	if a.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(a.Extra))
		for k, v := range a.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// WithApp returns a copy of c where the active profile's app id is replaced by app.
func (c Configuration) WithApp(id string, app AppConfig) Configuration {
	out := c.Clone()
	p := out.Profiles[out.ActiveProfile]
	if p.Apps == nil {
		p.Apps = map[string]AppConfig{}
	}
	p.Apps[id] = app
	out.Profiles[out.ActiveProfile] = p
	return out
}

// App returns the active profile's configuration for id. A missing app reads as
// an enabled app without flags.
func (c Configuration) App(id string) AppConfig {
	p, _ := c.Active()
	if app, ok := p.Apps[id]; ok {
		return app
	}
	return AppConfig{Enabled: true, FlagConfigs: map[string]FlagEntry{}}
}

func (a AppConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+2)
	for k, v := range a.Extra {
		out[k] = v
	}
	out["enabled"] = a.Enabled
	if a.FlagConfigs != nil {
		out["flag_configs"] = a.FlagConfigs
	}
	return json.Marshal(out)
}

func (a *AppConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = AppConfig{Enabled: true}
	if v, ok := raw["enabled"]; ok {
		if err := json.Unmarshal(v, &a.Enabled); err != nil {
			return fmt.Errorf("enabled: %w", err)
		}
		delete(raw, "enabled")
	}
	if v, ok := raw["flag_configs"]; ok {
		if err := json.Unmarshal(v, &a.FlagConfigs); err != nil {
			return fmt.Errorf("flag_configs: %w", err)
		}
		delete(raw, "flag_configs")
	}
	if len(raw) > 0 {
		a.Extra = raw
	}
	return nil
}

// RangeToken is a flag id of the form "<start>-<end>" covering [Start, End).
type RangeToken struct {
	Start int
	End   int
}

func (r RangeToken) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

func (r RangeToken) Size() int {
	return r.End - r.Start
}

// IsRange reports whether id is syntactically meant as a range token.
func IsRange(id string) bool {
	return strings.Contains(id, "-")
}

// ParseRange decodes a range token. Both halves must be non-negative integers
// with start < end.
func ParseRange(id string) (RangeToken, error) {
	lo, hi, ok := strings.Cut(id, "-")
	if !ok {
		return RangeToken{}, fmt.Errorf("%q is not a range token", id)
	}
	start, err := parseBound(lo)
	if err != nil {
		return RangeToken{}, fmt.Errorf("range %q start: %w", id, err)
	}
	end, err := parseBound(hi)
	if err != nil {
		return RangeToken{}, fmt.Errorf("range %q end: %w", id, err)
	}
	if start >= end {
		return RangeToken{}, fmt.Errorf("range %q: start must be below end", id)
	}
	return RangeToken{Start: start, End: end}, nil
}

func parseBound(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty bound")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a non-negative integer", s)
		}
	}
	return strconv.Atoi(s)
}

// CheckID validates a flag id: non-empty, and a well formed range when it
// contains a dash.
func CheckID(id string) error {
	if id == "" {
		return errors.New("empty flag id")
	}
	if IsRange(id) {
		_, err := ParseRange(id)
		return err
	}
	return nil
}
