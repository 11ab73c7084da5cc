package arlaunch

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-arlaunch/pkg/cms"
)

// GraphLauncher composes a stored scene graph by reference. When a resolver
// is configured the scene is looked up for its anchor preference.
type GraphLauncher struct {
	machine
}

// NewGraphLauncher builds a launcher for graphID within sceneID.
func NewGraphLauncher(sceneID, graphID string, opts ...Option) *GraphLauncher {
	return newGraphLauncher(nil, sceneID, graphID, opts)
}

func newGraphLauncher(base *config, sceneID, graphID string, opts []Option) *GraphLauncher {
	target := Target{Kind: TargetGraph, ID: strings.TrimSpace(sceneID), GraphID: strings.TrimSpace(graphID)}
	src := &graphSource{sceneID: target.ID, graphID: target.GraphID}
	return &GraphLauncher{machine: newMachine("graph", target, newConfig(base, opts), src)}
}

// Init implements Launcher.
func (l *GraphLauncher) Init(ctx context.Context) (Launcher, error) {
	if err := l.init(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

type graphSource struct {
	sceneID string
	graphID string

	anchor   Anchor
	composer Composer
}

func (s *graphSource) prepare(ctx context.Context, cfg *config) error {
	if s.sceneID == "" || s.graphID == "" {
		return fmt.Errorf("%w: scene id and graph id are required", ErrMissingTarget)
	}
	var err error
	if s.composer, err = requireComposer(cfg); err != nil {
		return err
	}
	if cfg.resolver == nil {
		return nil
	}
	record, err := cfg.resolver.Resolve(ctx, cms.TypeScene, s.sceneID)
	if err != nil {
		return missingTarget(cms.TypeScene, s.sceneID, err)
	}
	scene, err := cms.DecodeScene(record)
	if err != nil {
		return err
	}
	s.anchor = parseStoredAnchor(scene.AnchorAlignment)
	return nil
}

func (s *graphSource) storedAnchor() Anchor { return s.anchor }

func (s *graphSource) artifact(ctx context.Context, kind artifactKind) (string, error) {
	output, ok := composedOutput(kind)
	if !ok {
		return "", nil
	}
	return s.composer.ComposeByReference(ctx, s.sceneID, output, s.graphID)
}
