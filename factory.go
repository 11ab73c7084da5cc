package arlaunch

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-arlaunch/pkg/configurator"
)

// Factory carries collaborators and settings shared by the launchers it
// builds. Per-launcher options are layered over the factory's.
type Factory struct {
	base config
}

// NewFactory builds a Factory from options.
func NewFactory(opts ...Option) *Factory {
	return &Factory{base: applyOptions(opts)}
}

// With returns a copy of the factory with opts applied on top.
func (f *Factory) With(opts ...Option) *Factory {
	if f == nil {
		return NewFactory(opts...)
	}
	next := &Factory{base: f.base}
	next.base.hooks = f.base.hooks.Clone()
	next.base.alternates = append([]string(nil), f.base.alternates...)
	if f.base.settings.Banner != nil {
		banner := *f.base.settings.Banner
		next.base.settings.Banner = &banner
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&next.base)
		}
	}
	return next
}

// Settings returns the settings launchers start from before their own
// options apply.
func (f *Factory) Settings() Settings {
	return newConfig(f.basePtr(), nil).settings
}

func (f *Factory) basePtr() *config {
	if f == nil {
		return nil
	}
	return &f.base
}

// Raw builds a RawLauncher.
func (f *Factory) Raw(rawURL string, opts ...Option) *RawLauncher {
	return newRawLauncher(f.basePtr(), rawURL, opts)
}

// Model builds a ModelLauncher.
func (f *Factory) Model(modelID string, opts ...Option) *ModelLauncher {
	return newModelLauncher(f.basePtr(), modelID, opts)
}

// Product builds a ProductLauncher.
func (f *Factory) Product(productID, variationID string, opts ...Option) *ProductLauncher {
	return newProductLauncher(f.basePtr(), productID, variationID, opts)
}

// SceneProduct builds a SceneProductLauncher.
func (f *Factory) SceneProduct(sceneProductID, variationID string, opts ...Option) *SceneProductLauncher {
	return newSceneProductLauncher(f.basePtr(), sceneProductID, variationID, opts)
}

// State builds a launcher for the first entry of state.
func (f *Factory) State(state *configurator.State, opts ...Option) *SceneProductLauncher {
	return newStateLauncher(f.basePtr(), state, opts)
}

// Scene builds a SceneLauncher. state may be nil.
func (f *Factory) Scene(sceneID string, state *configurator.State, opts ...Option) *SceneLauncher {
	return newSceneLauncher(f.basePtr(), sceneID, state, opts)
}

// Graph builds a GraphLauncher.
func (f *Factory) Graph(sceneID, graphID string, opts ...Option) *GraphLauncher {
	return newGraphLauncher(f.basePtr(), sceneID, graphID, opts)
}

// Build constructs the launcher for target. Scene targets read their
// configurator state from encodedState.
func (f *Factory) Build(target Target, encodedState string, opts ...Option) (Launcher, error) {
	switch target.Kind {
	case TargetRaw:
		return f.Raw(target.ID, opts...), nil
	case TargetModel:
		return f.Model(target.ID, opts...), nil
	case TargetProduct:
		return f.Product(target.ID, target.VariationID, opts...), nil
	case TargetSceneProduct:
		if target.ID == "" && strings.TrimSpace(encodedState) != "" {
			return f.State(configurator.Decode(encodedState), opts...), nil
		}
		return f.SceneProduct(target.ID, target.VariationID, opts...), nil
	case TargetScene:
		var state *configurator.State
		if strings.TrimSpace(encodedState) != "" {
			state = configurator.Decode(encodedState)
		}
		return f.Scene(target.ID, state, opts...), nil
	case TargetGraph:
		return f.Graph(target.ID, target.GraphID, opts...), nil
	default:
		return nil, fmt.Errorf("arlaunch: unknown target kind %q", target.Kind)
	}
}
