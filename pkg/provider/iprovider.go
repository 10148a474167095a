package provider

import (
	"context"
	"encoding/json"

	"github.com/aitweaker/tweakd/pkg/model"
)

//go:generate mockgen -source=iprovider.go -destination=mock/iprovider.go -package=providermock

// IProvider is the configuration store as seen by the sync engine: fetch the
// whole document, persist a partial update against the active profile.
type IProvider interface {
	Fetch(ctx context.Context) (model.Configuration, error)
	Persist(ctx context.Context, updates json.RawMessage) error
}
