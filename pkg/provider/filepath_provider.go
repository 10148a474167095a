package provider

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/aitweaker/tweakd/pkg/model"
)

//go:embed schemas/profiles.json
var profilesSchema []byte

// FilePathProvider keeps the configuration document in a JSON file.
type FilePathProvider struct {
	URI string

	mu sync.Mutex
}

// Initialize writes the default document when the file does not exist yet.
func (fp *FilePathProvider) Initialize() error {
	if fp.URI == "" {
		return errors.New("no filepath string set")
	}
	if _, err := os.Stat(fp.URI); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	log.Infof("creating %s with the default profile", fp.URI)
	return fp.Save(model.DefaultConfiguration())
}

func (fp *FilePathProvider) Fetch(_ context.Context) (model.Configuration, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.parse()
}

// Persist merges updates into the active profile and writes the file back.
func (fp *FilePathProvider) Persist(_ context.Context, updates json.RawMessage) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	cfg, err := fp.parse()
	if err != nil {
		return err
	}
	active, _ := cfg.Active()
	merged, err := model.ApplyProfilePatch(active, updates)
	if err != nil {
		return err
	}
	cfg.Profiles[cfg.ActiveProfile] = merged
	if err := cfg.Validate(); err != nil {
		return err
	}
	return fp.write(cfg)
}

func (fp *FilePathProvider) Save(cfg model.Configuration) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.write(cfg)
}

func (fp *FilePathProvider) write(cfg model.Configuration) error {
	b, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("unable to marshal configuration: %w", err)
	}
	return os.WriteFile(fp.URI, b, 0o644)
}

func (fp *FilePathProvider) parse() (model.Configuration, error) {
	var cfg model.Configuration
	if fp.URI == "" {
		return cfg, errors.New("no filepath string set")
	}
	rawFile, err := os.ReadFile(fp.URI)
	if err != nil {
		return cfg, err
	}
	if err := ValidateDocument(rawFile); err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(rawFile, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ValidateDocument checks raw against the profiles schema.
func ValidateDocument(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(profilesSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid configuration document: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Watch calls onChange with the reparsed document every time the file is
// written, until ctx is done.
func (fp *FilePathProvider) Watch(ctx context.Context, onChange func(model.Configuration)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(fp.URI); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := fp.Fetch(ctx)
			if err != nil {
				// editors truncate before writing, a later event carries the full file
				log.Debugf("skipping reload of %s: %v", fp.URI, err)
				continue
			}
			log.Info("Configuration reloaded from disk.")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("watch %s: %v", fp.URI, err)
		}
	}
}
