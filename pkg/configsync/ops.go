package configsync

import (
	"github.com/aitweaker/tweakd/pkg/model"
	"github.com/aitweaker/tweakd/pkg/registry"
)

// UpdateApp lifts an AppConfig transform to the active profile.
func UpdateApp(appID string, fn func(model.AppConfig) (model.AppConfig, error)) Transform {
	return func(cfg model.Configuration) (model.Configuration, error) {
		next, err := fn(cfg.App(appID))
		if err != nil {
			return cfg, err
		}
		return cfg.WithApp(appID, next), nil
	}
}

func SetProxyPort(port int) Transform {
	return func(cfg model.Configuration) (model.Configuration, error) {
		out := cfg.Clone()
		p := out.Profiles[out.ActiveProfile]
		p.ProxyPort = port
		out.Profiles[out.ActiveProfile] = p
		return out, nil
	}
}

func SetAppEnabled(appID string, enabled bool) Transform {
	return UpdateApp(appID, func(app model.AppConfig) (model.AppConfig, error) {
		return registry.SetEnabled(app, enabled), nil
	})
}

func AddFlag(appID, id string) Transform {
	return UpdateApp(appID, func(app model.AppConfig) (model.AppConfig, error) {
		return registry.AddFlag(app, id)
	})
}

func RemoveFlag(appID, id string) Transform {
	return UpdateApp(appID, func(app model.AppConfig) (model.AppConfig, error) {
		return registry.RemoveFlag(app, id), nil
	})
}

func ToggleFlag(appID, id string) Transform {
	return UpdateApp(appID, func(app model.AppConfig) (model.AppConfig, error) {
		return registry.ToggleFlag(app, id)
	})
}

func UpdateNote(appID, id, note string) Transform {
	return UpdateApp(appID, func(app model.AppConfig) (model.AppConfig, error) {
		return registry.UpdateNote(app, id, note)
	})
}

func RenameFlag(appID, oldID, newID string) Transform {
	return UpdateApp(appID, func(app model.AppConfig) (model.AppConfig, error) {
		return registry.RenameFlag(app, oldID, newID)
	})
}
