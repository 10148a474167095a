package configsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aitweaker/tweakd/pkg/model"
	providermock "github.com/aitweaker/tweakd/pkg/provider/mock"
)

func TestFailedPersistWithFailedRefetchKeepsBaseline(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := providermock.NewMockIProvider(ctrl)

	persistErr := errors.New("connection refused")
	fetchErr := errors.New("store unreachable")
	gomock.InOrder(
		p.EXPECT().Fetch(gomock.Any()).Return(model.DefaultConfiguration(), nil),
		p.EXPECT().Persist(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, updates json.RawMessage) error {
			assert.JSONEq(t, `{"proxy_port":9090}`, string(updates))
			return persistErr
		}),
		p.EXPECT().Fetch(gomock.Any()).Return(model.Configuration{}, fetchErr),
	)

	e := NewEngine(p)
	require.NoError(t, e.Load(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	err := e.Do(context.Background(), "port 9090", SetProxyPort(9090))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.ErrorIs(t, err, persistErr)

	var syncErr *SyncFailedError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, fetchErr, syncErr.RefetchErr)

	active, _ := e.Snapshot().Active()
	assert.Equal(t, model.DefaultPort, active.ProxyPort)
	assert.Len(t, e.Notices(), 1)
}

func TestLoadFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := providermock.NewMockIProvider(ctrl)
	p.EXPECT().Fetch(gomock.Any()).Return(model.Configuration{}, errors.New("503"))

	e := NewEngine(p)
	assert.Error(t, e.Load(context.Background()))

	_, err := e.Apply("port 9090", SetProxyPort(9090))
	assert.ErrorIs(t, err, ErrNotLoaded)
}
