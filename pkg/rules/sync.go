package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/aitweaker/tweakd/pkg/store"
)

// Syncer keeps the rules file in step with the store. The serialized rules
// are computed once per change and handed to every subscriber.
type Syncer struct {
	state *store.State
	path  string

	subs    map[interface{}]chan []byte
	current []byte

	mu sync.RWMutex
}

// NewSyncer returns a syncer for state. Nothing is computed until the first
// Publish. path may be empty, in which case nothing is written and
// subscribers still get updates.
func NewSyncer(state *store.State, path string) *Syncer {
	return &Syncer{
		state: state,
		path:  path,
		subs:  map[interface{}]chan []byte{},
	}
}

// Register adds a subscriber and returns the rules as they are now, nil
// before the first Publish.
func (s *Syncer) Register(id interface{}, ch chan []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[id] = ch
	return s.current
}

func (s *Syncer) Unregister(id interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// Current returns the last computed rules document, nil before the first
// Publish.
func (s *Syncer) Current() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Publish recomputes the rules, writes them and notifies subscribers. A slow
// subscriber misses the update rather than stalling the others.
func (s *Syncer) Publish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reFill(); err != nil {
		return err
	}
	for id, ch := range s.subs {
		select {
		case ch <- s.current:
		default:
			log.Debugf("rules subscriber %v is behind, skipping", id)
		}
	}
	return nil
}

// Run publishes on every store change until ctx ends.
func (s *Syncer) Run(ctx context.Context) error {
	changed := s.state.Watch()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			changed = s.state.Watch()
			if err := s.Publish(); err != nil {
				log.Errorf("unable to regenerate rules: %v", err)
			}
		}
	}
}

func (s *Syncer) reFill() error {
	cfg, err := s.state.Configuration()
	if err != nil {
		return fmt.Errorf("error retrieving configuration from the store: %w", err)
	}
	active, _ := cfg.Active()
	r := Generate(active)

	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("error marshalling: %w", err)
	}
	s.current = b

	if s.path == "" {
		return nil
	}
	if err := Write(s.path, r); err != nil {
		return fmt.Errorf("unable to write %s: %w", s.path, err)
	}
	log.Debugf("rules written to %s", s.path)
	return nil
}
