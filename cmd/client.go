package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/aitweaker/tweakd/pkg/configsync"
	"github.com/aitweaker/tweakd/pkg/provider"
)

func storeClient() *provider.HTTPProvider {
	return provider.NewHTTPProvider(viper.GetString("store-url"), nil)
}

// withEngine loads the configuration from the store and keeps the sync worker
// running while fn issues edits. A reverted edit is reported once, through
// the returned error.
func withEngine(ctx context.Context, p provider.IProvider, fn func(*configsync.Engine) error) error {
	reg := prometheus.NewRegistry()
	engine := configsync.NewEngine(p, configsync.WithMetrics(configsync.NewMetrics(reg)))
	if err := engine.Load(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := engine.Run(runCtx); err != nil {
			log.Errorf("sync worker: %v", err)
		}
	}()

	err := fn(engine)
	cancel()
	<-done

	// every notice belongs to an edit whose caller already got the error
	for _, n := range engine.Notices() {
		engine.Dismiss(n.ID)
	}
	logSyncCounts(reg)

	var syncErr *configsync.SyncFailedError
	if errors.As(err, &syncErr) {
		return fmt.Errorf("%s was not saved (%v), local state reloaded from the store", syncErr.Mutation, syncErr.Cause)
	}
	return err
}

func logSyncCounts(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.Debugf("gather sync metrics: %v", err)
		return
	}
	counts := make([]string, 0, len(families))
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			counts = append(counts, fmt.Sprintf("%s=%g", mf.GetName(), m.GetCounter().GetValue()))
		}
	}
	log.Debugf("sync: %s", strings.Join(counts, " "))
}
