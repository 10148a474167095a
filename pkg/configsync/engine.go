// Package configsync keeps a local Configuration in step with the configuration
// store. Changes are applied locally first, persisted one at a time in issue
// order, and rolled back to the store's document when a persist fails.
package configsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/aitweaker/tweakd/pkg/model"
	"github.com/aitweaker/tweakd/pkg/provider"
)

var (
	ErrSyncFailed = errors.New("sync failed")
	ErrNotLoaded  = errors.New("configuration not loaded")
)

// SyncFailedError reports a persist that did not go through. The edit it
// carried has been reverted.
type SyncFailedError struct {
	Mutation   string
	Cause      error
	RefetchErr error
}

func (e *SyncFailedError) Error() string {
	msg := fmt.Sprintf("sync failed for %s: %v", e.Mutation, e.Cause)
	if e.RefetchErr != nil {
		msg += fmt.Sprintf(" (refetch failed: %v)", e.RefetchErr)
	}
	return msg
}

func (e *SyncFailedError) Is(target error) bool {
	return target == ErrSyncFailed
}

func (e *SyncFailedError) Unwrap() error {
	return e.Cause
}

// Transform computes the next configuration. It must not modify its input.
type Transform func(cfg model.Configuration) (model.Configuration, error)

// Notice is a dismissible record of a reverted edit.
type Notice struct {
	ID      string
	Message string
	At      time.Time
}

type mutation struct {
	name      string
	transform Transform
	done      chan error
}

// Engine owns the local Configuration. The displayed state is always the
// confirmed document with the still pending transforms replayed on top.
type Engine struct {
	provider provider.IProvider
	metrics  *Metrics

	mu        sync.RWMutex
	loaded    bool
	confirmed model.Configuration
	view      model.Configuration
	pending   []*mutation
	notices   []Notice

	wake chan struct{}
}

type Option func(*Engine)

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(p provider.IProvider, opts ...Option) *Engine {
	e := &Engine{
		provider: p,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load fetches the authoritative document and makes it the baseline.
func (e *Engine) Load(ctx context.Context) error {
	cfg, err := e.provider.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}
	e.mu.Lock()
	e.loaded = true
	e.confirmed = cfg
	e.rebuild()
	e.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the currently displayed configuration.
func (e *Engine) Snapshot() model.Configuration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view.Clone()
}

// Confirmed returns a copy of the last document known to be durable.
func (e *Engine) Confirmed() model.Configuration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.confirmed.Clone()
}

// Pending reports how many mutations are waiting to be persisted.
func (e *Engine) Pending() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pending)
}

// Apply validates t against the displayed state and applies it optimistically.
// A validation error is returned directly and changes nothing. Otherwise the
// returned channel yields the persist outcome once Run has processed it.
func (e *Engine) Apply(name string, t Transform) (<-chan error, error) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return nil, ErrNotLoaded
	}
	next, err := e.transform(t, e.view)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	m := &mutation{name: name, transform: t, done: make(chan error, 1)}
	e.pending = append(e.pending, m)
	e.view = next
	e.mu.Unlock()

	log.Debugf("applied %s optimistically", name)
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return m.done, nil
}

// Do applies t and waits for its persist outcome.
func (e *Engine) Do(ctx context.Context, name string, t Transform) error {
	done, err := e.Apply(name, t)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run persists queued mutations one at a time until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	for {
		for e.step(ctx) {
		}
		select {
		case <-ctx.Done():
			return nil
		case <-e.wake:
		}
	}
}

func (e *Engine) step(ctx context.Context) bool {
	e.mu.RLock()
	if len(e.pending) == 0 {
		e.mu.RUnlock()
		return false
	}
	m := e.pending[0]
	base := e.confirmed
	e.mu.RUnlock()

	next, err := e.transform(m.transform, base)
	if err != nil {
		// an earlier revert removed what this edit depended on
		log.Warnf("dropping %s: %v", m.name, err)
		e.finish(m, nil)
		m.done <- err
		return true
	}

	from, _ := base.Active()
	to, _ := next.Active()
	patch, err := model.ProfilePatch(from, to)
	if err == nil && string(patch) != "{}" {
		e.metrics.persisted()
		err = e.provider.Persist(ctx, patch)
	}
	if err == nil {
		e.metrics.succeeded()
		e.finish(m, &next)
		m.done <- nil
		return true
	}

	e.metrics.failed()
	log.Errorf("persist %s failed, reverting: %v", m.name, err)
	failure := &SyncFailedError{Mutation: m.name, Cause: err}
	fresh, fetchErr := e.provider.Fetch(ctx)
	if fetchErr != nil {
		failure.RefetchErr = fetchErr
		log.Errorf("refetch after failed persist: %v", fetchErr)
	}
	e.mu.Lock()
	if fetchErr == nil {
		e.confirmed = fresh
	}
	e.notices = append(e.notices, Notice{ID: uuid.NewString(), Message: failure.Error(), At: time.Now()})
	e.mu.Unlock()
	e.metrics.reverted()
	e.finish(m, nil)
	m.done <- failure
	return true
}

// finish pops m, optionally moving the baseline to confirmed, and replays what
// is still pending.
func (e *Engine) finish(m *mutation, confirmed *model.Configuration) {
	e.mu.Lock()
	if len(e.pending) > 0 && e.pending[0] == m {
		e.pending = e.pending[1:]
	}
	if confirmed != nil {
		e.confirmed = *confirmed
	}
	e.rebuild()
	e.mu.Unlock()
}

func (e *Engine) rebuild() {
	view := e.confirmed
	for _, m := range e.pending {
		next, err := e.transform(m.transform, view)
		if err != nil {
			continue
		}
		view = next
	}
	e.view = view
}

func (e *Engine) transform(t Transform, cfg model.Configuration) (model.Configuration, error) {
	next, err := t(cfg.Clone())
	if err != nil {
		return cfg, err
	}
	if next.ActiveProfile != cfg.ActiveProfile {
		return cfg, errors.New("switching the active profile is not a profile update")
	}
	if err := next.Validate(); err != nil {
		return cfg, err
	}
	return next, nil
}

func (e *Engine) Notices() []Notice {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Notice(nil), e.notices...)
}

// Dismiss removes the notice with id and reports whether it existed.
func (e *Engine) Dismiss(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, n := range e.notices {
		if n.ID == id {
			e.notices = append(e.notices[:i], e.notices[i+1:]...)
			return true
		}
	}
	return false
}
