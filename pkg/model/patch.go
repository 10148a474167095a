package model

import (
	"encoding/json"
	"errors"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

var ErrEmptyUpdate = errors.New("empty update")

// ProfilePatch returns the JSON merge patch (RFC 7386) turning from into to.
// Removed flags appear as null, unchanged subtrees are absent.
func ProfilePatch(from, to Profile) (json.RawMessage, error) {
	a, err := json.Marshal(from)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(to)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(a, b)
	if err != nil {
		return nil, fmt.Errorf("unable to diff profiles: %w", err)
	}
	return patch, nil
}

// ApplyProfilePatch merges updates into p. Objects merge key by key and null
// deletes, so {"apps":{"gemini":{"enabled":false}}} leaves flag_configs alone.
func ApplyProfilePatch(p Profile, updates json.RawMessage) (Profile, error) {
	if isEmptyPatch(updates) {
		return p, ErrEmptyUpdate
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return p, err
	}
	merged, err := jsonpatch.MergePatch(doc, updates)
	if err != nil {
		return p, fmt.Errorf("unable to merge updates: %w", err)
	}
	var out Profile
	if err := json.Unmarshal(merged, &out); err != nil {
		return p, fmt.Errorf("merged profile is malformed: %w", err)
	}
	return out, nil
}

func isEmptyPatch(updates json.RawMessage) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(updates, &m); err != nil {
		return false
	}
	return len(m) == 0
}
