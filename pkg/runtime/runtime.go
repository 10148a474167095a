package runtime

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aitweaker/tweakd/pkg/model"
	"github.com/aitweaker/tweakd/pkg/provider"
	"github.com/aitweaker/tweakd/pkg/proxy"
	"github.com/aitweaker/tweakd/pkg/rules"
	"github.com/aitweaker/tweakd/pkg/service"
	"github.com/aitweaker/tweakd/pkg/store"
)

// Runtime ties the profiles file, the in-memory store, the rules file and the
// HTTP service together for `tweakd start`.
type Runtime struct {
	Provider *provider.FilePathProvider
	State    *store.State
	Service  service.IService
	Proxy    *proxy.Manager
	// Rules is shared with the service so it can stream rule updates; one
	// writing to RulesPath is created when nil.
	Rules *rules.Syncer

	RulesPath string
	// ProxyLog is followed and fanned out to log stream clients when set.
	ProxyLog string
}

// Start loads the profiles file and serves until ctx ends or a component
// fails.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.Provider.Initialize(); err != nil {
		return fmt.Errorf("unable to initialise %s: %w", r.Provider.URI, err)
	}
	cfg, err := r.Provider.Fetch(ctx)
	if err != nil {
		return err
	}
	if _, err := r.State.Replace(cfg); err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", r.Provider.URI, err)
	}

	syncer := r.Rules
	if syncer == nil {
		syncer = rules.NewSyncer(r.State, r.RulesPath)
	}
	if err := syncer.Publish(); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Provider.Watch(gCtx, r.reload)
	})
	g.Go(func() error {
		return syncer.Run(gCtx)
	})
	if r.Proxy != nil && r.ProxyLog != "" {
		g.Go(func() error {
			return r.Proxy.Follow(gCtx, r.ProxyLog)
		})
	}
	g.Go(func() error {
		return r.Service.Serve(gCtx)
	})

	err = g.Wait()
	if r.Proxy != nil {
		if stopErr := r.Proxy.Stop(); stopErr != nil {
			log.Debugf("stopping proxy: %v", stopErr)
		}
	}
	return err
}

func (r *Runtime) reload(cfg model.Configuration) {
	changed, err := r.State.Replace(cfg)
	if err != nil {
		log.Errorf("ignoring %s: %v", r.Provider.URI, err)
		return
	}
	if changed {
		log.Infof("reloaded %s", r.Provider.URI)
	}
}
