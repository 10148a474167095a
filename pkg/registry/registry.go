// Package registry holds the pure transforms over an application's flags.
// Every operation returns a new AppConfig and never touches its input.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aitweaker/tweakd/pkg/model"
)

var (
	ErrInvalidId  = errors.New("invalid flag id")
	ErrIdConflict = errors.New("flag id already exists")
	ErrNotFound   = errors.New("flag not found")
)

func SetEnabled(cfg model.AppConfig, enabled bool) model.AppConfig {
	out := cfg.Clone()
	out.Enabled = enabled
	return out
}

func AddFlag(cfg model.AppConfig, id string) (model.AppConfig, error) {
	return AddFlagWithEntry(cfg, id, model.FlagEntry{Enabled: true})
}

// AddFlagWithEntry inserts id with the given entry; see AddFlag.
func AddFlagWithEntry(cfg model.AppConfig, id string, entry model.FlagEntry) (model.AppConfig, error) {
	if err := model.CheckID(id); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidId, err)
	}
	if _, ok := cfg.FlagConfigs[id]; ok {
		return cfg, fmt.Errorf("%w: %s", ErrIdConflict, id)
	}
	out := cfg.Clone()
	if out.FlagConfigs == nil {
		out.FlagConfigs = map[string]model.FlagEntry{}
	}
	out.FlagConfigs[id] = entry
	return out, nil
}

// RemoveFlag deletes id. Removing an absent id returns an equal copy.
func RemoveFlag(cfg model.AppConfig, id string) model.AppConfig {
	out := cfg.Clone()
	delete(out.FlagConfigs, id)
	return out
}

func ToggleFlag(cfg model.AppConfig, id string) (model.AppConfig, error) {
	entry, ok := cfg.FlagConfigs[id]
	if !ok {
		return cfg, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := cfg.Clone()
	entry.Enabled = !entry.Enabled
	out.FlagConfigs[id] = entry
	return out, nil
}

// UpdateNote replaces the note verbatim.
func UpdateNote(cfg model.AppConfig, id, note string) (model.AppConfig, error) {
	entry, ok := cfg.FlagConfigs[id]
	if !ok {
		return cfg, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := cfg.Clone()
	entry.Note = note
	out.FlagConfigs[id] = entry
	return out, nil
}

// RenameFlag moves the entry stored under oldID to newID. The returned map is
// built in one piece, so no observer ever sees both ids or neither.
func RenameFlag(cfg model.AppConfig, oldID, newID string) (model.AppConfig, error) {
	entry, ok := cfg.FlagConfigs[oldID]
	if !ok {
		return cfg, fmt.Errorf("%w: %s", ErrNotFound, oldID)
	}
	if newID == oldID {
		return cfg.Clone(), nil
	}
	if err := model.CheckID(newID); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidId, err)
	}
	if _, ok := cfg.FlagConfigs[newID]; ok {
		return cfg, fmt.Errorf("%w: %s", ErrIdConflict, newID)
	}
	out := cfg.Clone()
	delete(out.FlagConfigs, oldID)
	out.FlagConfigs[newID] = entry
	return out, nil
}

func Lookup(cfg model.AppConfig, id string) (model.FlagEntry, bool) {
	entry, ok := cfg.FlagConfigs[id]
	return entry, ok
}

// IDs returns the flag ids in lexical order.
func IDs(cfg model.AppConfig) []string {
	ids := make([]string, 0, len(cfg.FlagConfigs))
	for id := range cfg.FlagConfigs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
