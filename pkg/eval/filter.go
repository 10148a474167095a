package eval

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"

	"github.com/aitweaker/tweakd/pkg/model"
	"github.com/aitweaker/tweakd/pkg/registry"
)

var ErrInvalidRule = errors.New("invalid filter rule")

// Filter selects flags of an app. Term matches id or note case-insensitively.
// Logic is a JSONLogic rule evaluated against each flag as
// {"id", "note", "enabled", "range", "start", "end"}; start and end are -1
// for single ids.
type Filter struct {
	Term  string
	Logic json.RawMessage
}

type Match struct {
	ID    string          `json:"id"`
	Entry model.FlagEntry `json:"entry"`
}

// Apply returns the matching flags in id order.
func (f Filter) Apply(app model.AppConfig) ([]Match, error) {
	if len(f.Logic) > 0 && !jsonlogic.IsValid(bytes.NewReader(f.Logic)) {
		return nil, ErrInvalidRule
	}
	term := strings.ToLower(f.Term)
	var out []Match
	for _, id := range registry.IDs(app) {
		entry := app.FlagConfigs[id]
		if term != "" && !strings.Contains(strings.ToLower(id), term) && !strings.Contains(strings.ToLower(entry.Note), term) {
			continue
		}
		if len(f.Logic) > 0 {
			ok, err := f.matches(id, entry)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, Match{ID: id, Entry: entry})
	}
	return out, nil
}

func (f Filter) matches(id string, entry model.FlagEntry) (bool, error) {
	data := map[string]interface{}{
		"id":      id,
		"note":    entry.Note,
		"enabled": entry.Enabled,
		"range":   false,
		"start":   -1,
		"end":     -1,
	}
	if r, err := model.ParseRange(id); err == nil {
		data["range"] = true
		data["start"] = r.Start
		data["end"] = r.End
	}
	b, err := json.Marshal(data)
	if err != nil {
		return false, err
	}

	var result bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(f.Logic), bytes.NewReader(b), &result); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	var v interface{}
	if err := json.Unmarshal(result.Bytes(), &v); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return truthy(v), nil
}

// truthy follows JSONLogic's notion of truth.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	default:
		return true
	}
}
