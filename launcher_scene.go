package arlaunch

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-arlaunch/pkg/cms"
	"github.com/goliatone/go-arlaunch/pkg/composer"
	"github.com/goliatone/go-arlaunch/pkg/configurator"
)

// SceneLauncher composes a whole scene remotely from a configurator state.
// With an empty state every scene product is placed with its product's
// default variation.
type SceneLauncher struct {
	machine
}

// NewSceneLauncher builds a launcher for sceneID. state may be nil.
func NewSceneLauncher(sceneID string, state *configurator.State, opts ...Option) *SceneLauncher {
	return newSceneLauncher(nil, sceneID, state, opts)
}

func newSceneLauncher(base *config, sceneID string, state *configurator.State, opts []Option) *SceneLauncher {
	sceneID = strings.TrimSpace(sceneID)
	src := &sceneSource{sceneID: sceneID, state: state}
	return &SceneLauncher{machine: newMachine("scene", Target{Kind: TargetScene, ID: sceneID}, newConfig(base, opts), src)}
}

// Init implements Launcher.
func (l *SceneLauncher) Init(ctx context.Context) (Launcher, error) {
	if err := l.init(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Graph returns the scene graph composed by Init.
func (l *SceneLauncher) Graph() composer.SceneGraph {
	src, _ := l.src.(*sceneSource)
	if src == nil {
		return composer.SceneGraph{}
	}
	graph := src.graph
	graph.Nodes = append([]composer.Node(nil), src.graph.Nodes...)
	return graph
}

var sceneIncludes = []string{"scene_product.product"}

type sceneSource struct {
	sceneID string
	state   *configurator.State

	graph    composer.SceneGraph
	anchor   Anchor
	composer Composer
}

func (s *sceneSource) prepare(ctx context.Context, cfg *config) error {
	if s.sceneID == "" {
		return fmt.Errorf("%w: scene id is empty", ErrMissingTarget)
	}
	resolver, err := requireResolver(cfg)
	if err != nil {
		return err
	}
	if s.composer, err = requireComposer(cfg); err != nil {
		return err
	}

	record, err := resolver.Resolve(ctx, cms.TypeScene, s.sceneID, sceneIncludes...)
	if err != nil {
		return missingTarget(cms.TypeScene, s.sceneID, err)
	}
	scene, err := cms.DecodeScene(record)
	if err != nil {
		return err
	}
	s.anchor = parseStoredAnchor(scene.AnchorAlignment)

	s.graph = composer.SceneGraph{SceneID: scene.ID}
	if s.state.Len() > 0 {
		s.state.ForEach(func(entry configurator.Entry) bool {
			if entry.SceneProductID != "" && entry.Meta.Augment {
				s.graph.Nodes = append(s.graph.Nodes, composer.Node{
					SceneProductID:     entry.SceneProductID,
					ProductVariationID: entry.ProductVariationID,
				})
			}
			return true
		})
	} else {
		nodes, err := defaultNodes(record)
		if err != nil {
			return err
		}
		s.graph.Nodes = nodes
	}
	if len(s.graph.Nodes) == 0 {
		return fmt.Errorf("%w: scene %q has nothing to compose", ErrMissingTarget, s.sceneID)
	}
	return nil
}

// defaultNodes places every scene product of the scene with its product's
// default variation, in relationship order.
func defaultNodes(scene *cms.Record) ([]composer.Node, error) {
	var nodes []composer.Node
	for _, ref := range scene.Related("scene_product") {
		record, ok := scene.Find(cms.TypeSceneProduct, ref.ID)
		if !ok {
			continue
		}
		sceneProduct, err := cms.DecodeSceneProduct(record)
		if err != nil {
			return nil, err
		}
		productID := sceneProduct.ProductID
		if productID == "" {
			if refs := record.Related("product"); len(refs) > 0 {
				productID = refs[0].ID
			}
		}
		productRecord, ok := scene.Find(cms.TypeProduct, productID)
		if !ok {
			continue
		}
		product, err := cms.DecodeProduct(productRecord)
		if err != nil {
			return nil, err
		}
		if product.ProductVariationID == "" {
			continue
		}
		nodes = append(nodes, composer.Node{
			SceneProductID:     sceneProduct.ID,
			ProductVariationID: product.ProductVariationID,
		})
	}
	return nodes, nil
}

func (s *sceneSource) storedAnchor() Anchor { return s.anchor }

func (s *sceneSource) artifact(ctx context.Context, kind artifactKind) (string, error) {
	output, ok := composedOutput(kind)
	if !ok {
		return "", nil
	}
	return s.composer.Compose(ctx, s.sceneID, output, s.graph)
}

// composedOutput maps artifact kinds onto composer outputs. The service has
// no .reality output.
func composedOutput(kind artifactKind) (composer.Output, bool) {
	switch kind {
	case artifactGLB:
		return composer.OutputGLB, true
	case artifactUSDZ:
		return composer.OutputUSDZ, true
	case artifactVTO:
		return composer.OutputVTO, true
	default:
		return "", false
	}
}
