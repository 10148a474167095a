package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/hashicorp/go-memdb"
	log "github.com/sirupsen/logrus"

	"github.com/aitweaker/tweakd/pkg/model"
)

const (
	profilesTable = "profiles"
	metaTable     = "meta"
	activeKey     = "active_profile"
)

var ErrNotLoaded = errors.New("store holds no configuration")

type profileRecord struct {
	Name    string
	Profile model.Profile
}

type metaRecord struct {
	Key   string
	Value string
}

// State is the server side copy of the configuration document. Writes go
// through a single memdb transaction, so readers see the old or the new
// document and nothing in between.
type State struct {
	mx sync.Mutex
	db *memdb.MemDB
}

func NewState() *State {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			profilesTable: {
				Name: profilesTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
				},
			},
			metaTable: {
				Name: metaTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		panic(err)
	}
	return &State{db: db}
}

// Configuration returns a copy of the stored document.
func (s *State) Configuration() (model.Configuration, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return read(txn)
}

// Replace swaps in cfg wholesale. It reports false, and leaves watchers
// alone, when cfg equals what is stored.
func (s *State) Replace(cfg model.Configuration) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	s.mx.Lock()
	defer s.mx.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()
	if current, err := read(txn); err == nil && reflect.DeepEqual(current, cfg) {
		return false, nil
	}
	if err := write(txn, cfg); err != nil {
		return false, err
	}
	txn.Commit()
	log.Debugf("store replaced with %d profiles, active %q", len(cfg.Profiles), cfg.ActiveProfile)
	return true, nil
}

// Merge applies updates to the active profile. commit is called with the
// resulting document before it becomes visible; an error from it discards
// the change.
func (s *State) Merge(updates json.RawMessage, commit func(model.Configuration) error) (model.Profile, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()
	cfg, err := read(txn)
	if err != nil {
		return model.Profile{}, err
	}
	active, _ := cfg.Active()
	merged, err := model.ApplyProfilePatch(active, updates)
	if err != nil {
		return model.Profile{}, err
	}
	cfg.Profiles[cfg.ActiveProfile] = merged
	if err := cfg.Validate(); err != nil {
		return model.Profile{}, err
	}
	if commit != nil {
		if err := commit(cfg); err != nil {
			return model.Profile{}, err
		}
	}
	if err := txn.Insert(profilesTable, &profileRecord{Name: cfg.ActiveProfile, Profile: merged.Clone()}); err != nil {
		return model.Profile{}, err
	}
	txn.Commit()
	return merged, nil
}

// Watch returns a channel closed on the next change to the document.
func (s *State) Watch() <-chan struct{} {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(profilesTable, "id")
	if err != nil {
		panic(err)
	}
	return it.WatchCh()
}

func read(txn *memdb.Txn) (model.Configuration, error) {
	raw, err := txn.First(metaTable, "id", activeKey)
	if err != nil {
		return model.Configuration{}, err
	}
	meta, ok := raw.(*metaRecord)
	if !ok {
		return model.Configuration{}, ErrNotLoaded
	}
	cfg := model.Configuration{ActiveProfile: meta.Value, Profiles: map[string]model.Profile{}}

	it, err := txn.Get(profilesTable, "id")
	if err != nil {
		return model.Configuration{}, err
	}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*profileRecord)
		cfg.Profiles[rec.Name] = rec.Profile.Clone()
	}
	return cfg, nil
}

func write(txn *memdb.Txn, cfg model.Configuration) error {
	if _, err := txn.DeleteAll(profilesTable, "id"); err != nil {
		return fmt.Errorf("unable to clear profiles: %w", err)
	}
	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := txn.Insert(profilesTable, &profileRecord{Name: name, Profile: cfg.Profiles[name].Clone()}); err != nil {
			return err
		}
	}
	return txn.Insert(metaTable, &metaRecord{Key: activeKey, Value: cfg.ActiveProfile})
}
