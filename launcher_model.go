package arlaunch

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-arlaunch/pkg/cms"
)

// ModelLauncher launches a single CMS file model by id.
type ModelLauncher struct {
	machine
}

// NewModelLauncher builds a launcher for the file model modelID.
func NewModelLauncher(modelID string, opts ...Option) *ModelLauncher {
	return newModelLauncher(nil, modelID, opts)
}

func newModelLauncher(base *config, modelID string, opts []Option) *ModelLauncher {
	modelID = strings.TrimSpace(modelID)
	cfg := newConfig(base, opts)
	return &ModelLauncher{machine: newMachine("model", Target{Kind: TargetModel, ID: modelID}, cfg, &modelSource{id: modelID})}
}

// Init implements Launcher.
func (l *ModelLauncher) Init(ctx context.Context) (Launcher, error) {
	if err := l.init(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

type modelSource struct {
	id     string
	files  modelFiles
	anchor Anchor
}

func (s *modelSource) prepare(ctx context.Context, cfg *config) error {
	if s.id == "" {
		return fmt.Errorf("%w: model id is empty", ErrMissingTarget)
	}
	resolver, err := requireResolver(cfg)
	if err != nil {
		return err
	}
	record, err := resolver.Resolve(ctx, cms.TypeFileModel, s.id)
	if err != nil {
		return missingTarget(cms.TypeFileModel, s.id, err)
	}
	model, err := cms.DecodeFileModel(record)
	if err != nil {
		return err
	}
	s.files = modelFiles{model: model, cdn: cfg.settings.CDNURL}
	s.anchor = parseStoredAnchor(model.AnchorAlignment)
	return nil
}

func (s *modelSource) storedAnchor() Anchor { return s.anchor }

func (s *modelSource) artifact(_ context.Context, kind artifactKind) (string, error) {
	return s.files.url(kind), nil
}

// modelFiles maps artifact kinds onto a file model's CDN URLs. VTO content is
// the model's .reality file.
type modelFiles struct {
	model cms.FileModel
	cdn   string
}

func (f modelFiles) url(kind artifactKind) string {
	switch kind {
	case artifactGLB:
		return f.model.URL(f.cdn, f.model.GLB())
	case artifactUSDZ:
		return f.model.URL(f.cdn, f.model.USDZ())
	case artifactReality, artifactVTO:
		return f.model.URL(f.cdn, f.model.Reality())
	default:
		return ""
	}
}
