package arlaunch

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-arlaunch/pkg/cms"
	"github.com/goliatone/go-arlaunch/pkg/configurator"
)

// ProductLauncher launches the model attached to a product variation. An
// empty variation id selects the product's default variation.
type ProductLauncher struct {
	machine
}

// NewProductLauncher builds a launcher for productID and variationID.
func NewProductLauncher(productID, variationID string, opts ...Option) *ProductLauncher {
	return newProductLauncher(nil, productID, variationID, opts)
}

func newProductLauncher(base *config, productID, variationID string, opts []Option) *ProductLauncher {
	target := Target{Kind: TargetProduct, ID: strings.TrimSpace(productID), VariationID: strings.TrimSpace(variationID)}
	src := &productSource{productID: target.ID, variationID: target.VariationID}
	return &ProductLauncher{machine: newMachine("product", target, newConfig(base, opts), src)}
}

// Init implements Launcher.
func (l *ProductLauncher) Init(ctx context.Context) (Launcher, error) {
	if err := l.init(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// SceneProductLauncher resolves a scene product to its product and then
// launches like ProductLauncher.
type SceneProductLauncher struct {
	machine
}

// NewSceneProductLauncher builds a launcher for sceneProductID and variationID.
func NewSceneProductLauncher(sceneProductID, variationID string, opts ...Option) *SceneProductLauncher {
	return newSceneProductLauncher(nil, sceneProductID, variationID, opts)
}

// NewStateLauncher launches the first entry of a configurator state.
func NewStateLauncher(state *configurator.State, opts ...Option) *SceneProductLauncher {
	return newStateLauncher(nil, state, opts)
}

func newStateLauncher(base *config, state *configurator.State, opts []Option) *SceneProductLauncher {
	entry, _ := state.First()
	return newSceneProductLauncher(base, entry.SceneProductID, entry.ProductVariationID, opts)
}

func newSceneProductLauncher(base *config, sceneProductID, variationID string, opts []Option) *SceneProductLauncher {
	target := Target{Kind: TargetSceneProduct, ID: strings.TrimSpace(sceneProductID), VariationID: strings.TrimSpace(variationID)}
	src := &sceneProductSource{
		sceneProductID: target.ID,
		product:        productSource{variationID: target.VariationID},
	}
	return &SceneProductLauncher{machine: newMachine("scene_product", target, newConfig(base, opts), src)}
}

// Init implements Launcher.
func (l *SceneProductLauncher) Init(ctx context.Context) (Launcher, error) {
	if err := l.init(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

var productIncludes = []string{"product_variation.file_model", "scene"}

type productSource struct {
	productID   string
	variationID string
	sceneHint   string

	resolved string
	files    modelFiles
	anchor   Anchor
}

func (s *productSource) prepare(ctx context.Context, cfg *config) error {
	if s.productID == "" {
		return fmt.Errorf("%w: product id is empty", ErrMissingTarget)
	}
	resolver, err := requireResolver(cfg)
	if err != nil {
		return err
	}
	record, err := resolver.Resolve(ctx, cms.TypeProduct, s.productID, productIncludes...)
	if err != nil {
		return missingTarget(cms.TypeProduct, s.productID, err)
	}
	product, err := cms.DecodeProduct(record)
	if err != nil {
		return err
	}

	variationRecord, err := s.variationRecord(ctx, resolver, record, product)
	if err != nil {
		return err
	}
	variation, err := cms.DecodeProductVariation(variationRecord)
	if err != nil {
		return err
	}
	s.resolved = variation.ID

	modelRecord, err := fileModelRecord(ctx, resolver, variation, record, variationRecord)
	if err != nil {
		return err
	}
	model, err := cms.DecodeFileModel(modelRecord)
	if err != nil {
		return err
	}
	s.files = modelFiles{model: model, cdn: cfg.settings.CDNURL}

	s.anchor = parseStoredAnchor(model.AnchorAlignment)
	sceneID := product.SceneID
	if sceneID == "" {
		sceneID = s.sceneHint
	}
	if scene, ok := record.Find(cms.TypeScene, sceneID); ok {
		decoded, err := cms.DecodeScene(scene)
		if err != nil {
			return err
		}
		if anchor := parseStoredAnchor(decoded.AnchorAlignment); anchor != "" {
			s.anchor = anchor
		}
	}
	return nil
}

func (s *productSource) variationRecord(ctx context.Context, resolver cms.Resolver, record *cms.Record, product cms.Product) (*cms.Record, error) {
	id := s.variationID
	if id == "" {
		id = product.ProductVariationID
	}
	if id == "" {
		variation, ok := record.Find(cms.TypeProductVariation)
		if !ok {
			return nil, fmt.Errorf("%w: product %q has no variations", ErrMissingTarget, product.ID)
		}
		return variation, nil
	}
	if variation, ok := record.Find(cms.TypeProductVariation, id); ok {
		return variation, nil
	}
	variation, err := resolver.Resolve(ctx, cms.TypeProductVariation, id, "file_model")
	if err != nil {
		return nil, missingTarget(cms.TypeProductVariation, id, err)
	}
	return variation, nil
}

// fileModelRecord finds the variation's model among the included records
// before falling back to a direct lookup.
func fileModelRecord(ctx context.Context, resolver cms.Resolver, variation cms.ProductVariation, records ...*cms.Record) (*cms.Record, error) {
	id := variation.FileModelID
	if id == "" {
		for _, record := range records {
			if record == nil || record.Type != cms.TypeProductVariation {
				continue
			}
			if refs := record.Related("file_model"); len(refs) > 0 {
				id = refs[0].ID
				break
			}
		}
	}
	if id == "" {
		return nil, fmt.Errorf("%w: variation %q has no file model", ErrUnsupportedFormat, variation.ID)
	}
	for _, record := range records {
		if model, ok := record.Find(cms.TypeFileModel, id); ok {
			return model, nil
		}
	}
	model, err := resolver.Resolve(ctx, cms.TypeFileModel, id)
	if err != nil {
		return nil, missingTarget(cms.TypeFileModel, id, err)
	}
	return model, nil
}

func (s *productSource) storedAnchor() Anchor { return s.anchor }

func (s *productSource) artifact(_ context.Context, kind artifactKind) (string, error) {
	return s.files.url(kind), nil
}

func (s *productSource) resolvedVariation() string { return s.resolved }

type sceneProductSource struct {
	sceneProductID string
	product        productSource
}

func (s *sceneProductSource) prepare(ctx context.Context, cfg *config) error {
	if s.sceneProductID == "" {
		return fmt.Errorf("%w: scene product id is empty", ErrMissingTarget)
	}
	resolver, err := requireResolver(cfg)
	if err != nil {
		return err
	}
	record, err := resolver.Resolve(ctx, cms.TypeSceneProduct, s.sceneProductID)
	if err != nil {
		return missingTarget(cms.TypeSceneProduct, s.sceneProductID, err)
	}
	sceneProduct, err := cms.DecodeSceneProduct(record)
	if err != nil {
		return err
	}
	productID := sceneProduct.ProductID
	if productID == "" {
		if refs := record.Related("product"); len(refs) > 0 {
			productID = refs[0].ID
		}
	}
	if productID == "" {
		return fmt.Errorf("%w: scene product %q has no product", ErrMissingTarget, s.sceneProductID)
	}
	s.product.productID = productID
	s.product.sceneHint = sceneProduct.SceneID
	return s.product.prepare(ctx, cfg)
}

func (s *sceneProductSource) storedAnchor() Anchor { return s.product.storedAnchor() }

func (s *sceneProductSource) artifact(ctx context.Context, kind artifactKind) (string, error) {
	return s.product.artifact(ctx, kind)
}

func (s *sceneProductSource) resolvedVariation() string { return s.product.resolvedVariation() }
