package arlaunch

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-arlaunch/internal/layering"
	"github.com/goliatone/go-arlaunch/pkg/activity"
	"github.com/goliatone/go-arlaunch/pkg/cms"
	"github.com/goliatone/go-arlaunch/pkg/composer"
)

// State is a launcher lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateStarted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TargetKind names what a launcher launches.
type TargetKind string

const (
	TargetRaw          TargetKind = "raw"
	TargetModel        TargetKind = "model"
	TargetProduct      TargetKind = "product"
	TargetSceneProduct TargetKind = "scene_product"
	TargetScene        TargetKind = "scene"
	TargetGraph        TargetKind = "graph"
)

// Target is the logical identity of a launch. ID holds the raw URL, model,
// product, scene product or scene id depending on Kind.
type Target struct {
	Kind        TargetKind `json:"kind"`
	ID          string     `json:"id"`
	VariationID string     `json:"variation_id,omitempty"`
	GraphID     string     `json:"graph_id,omitempty"`
}

func (t Target) String() string {
	var b strings.Builder
	b.WriteString(string(t.Kind))
	b.WriteString(":")
	b.WriteString(t.ID)
	if t.GraphID != "" {
		b.WriteString("/")
		b.WriteString(t.GraphID)
	}
	if t.VariationID != "" {
		b.WriteString("?variation=")
		b.WriteString(t.VariationID)
	}
	return b.String()
}

// Launcher is the two phase contract every variant implements. Init resolves
// capability and the model artifact without navigating; Start hands the
// resolved invocation to the Navigator. A Launcher is not safe for
// concurrent use.
type Launcher interface {
	Init(ctx context.Context) (Launcher, error)
	Start(ctx context.Context) error
	State() State
	Viewer() (ResolvedViewer, bool)
	Target() Target
}

// Composer turns a scene graph into a downloadable artifact. *composer.Client
// satisfies it.
type Composer interface {
	Compose(ctx context.Context, sceneID string, output composer.Output, graph composer.SceneGraph) (string, error)
	ComposeByReference(ctx context.Context, sceneID string, output composer.Output, graphID string) (string, error)
}

var _ Composer = (*composer.Client)(nil)

// Settings are the mergeable launch settings. Launcher settings are layered
// over Factory settings, which are layered over DefaultSettings.
type Settings struct {
	CDNURL      string  `json:"cdn_url,omitempty"`
	FallbackURL string  `json:"fallback_url,omitempty"`
	Anchor      Anchor  `json:"anchor,omitempty"`
	Banner      *Banner `json:"banner,omitempty"`
	Channel     string  `json:"channel,omitempty"`
	ActorID     string  `json:"actor_id,omitempty"`
	TenantID    string  `json:"tenant_id,omitempty"`
}

// DefaultSettings returns the weakest settings layer.
func DefaultSettings() Settings {
	return Settings{
		Anchor:  AnchorHorizontal,
		Channel: activity.DefaultChannel,
	}
}

// Option configures a launcher or a Factory.
type Option func(*config)

type config struct {
	settings   Settings
	detector   *Detector
	env        Environment
	hasEnv     bool
	resolver   cms.Resolver
	composer   Composer
	navigator  Navigator
	hooks      activity.Hooks
	logger     LaunchLogger
	alternates []string
}

// WithSettings sets a whole settings layer. Later options still apply on top.
func WithSettings(settings Settings) Option {
	return func(c *config) {
		c.settings = settings
	}
}

// WithCDN sets the base URL model paths are joined to.
func WithCDN(cdnURL string) Option {
	return func(c *config) {
		c.settings.CDNURL = strings.TrimSpace(cdnURL)
	}
}

// WithFallbackURL sets the page Scene Viewer returns to without ARCore.
func WithFallbackURL(pageURL string) Option {
	return func(c *config) {
		c.settings.FallbackURL = strings.TrimSpace(pageURL)
	}
}

// WithAnchor sets the caller's anchor preference.
func WithAnchor(anchor Anchor) Option {
	return func(c *config) {
		c.settings.Anchor = anchor
	}
}

// WithBanner attaches banner metadata to the resolved viewer.
func WithBanner(banner Banner) Option {
	return func(c *config) {
		b := banner
		c.settings.Banner = &b
	}
}

// WithChannel sets the analytics channel.
func WithChannel(channel string) Option {
	return func(c *config) {
		c.settings.Channel = strings.TrimSpace(channel)
	}
}

// WithActor tags analytics events with an actor and tenant.
func WithActor(actorID, tenantID string) Option {
	return func(c *config) {
		c.settings.ActorID = strings.TrimSpace(actorID)
		c.settings.TenantID = strings.TrimSpace(tenantID)
	}
}

// WithDetector replaces DefaultDetector.
func WithDetector(detector *Detector) Option {
	return func(c *config) {
		c.detector = detector
	}
}

// WithEnvironment sets the runtime the launch is evaluated against.
func WithEnvironment(env Environment) Option {
	return func(c *config) {
		c.env = env
		c.hasEnv = true
	}
}

// WithResolver sets the CMS collaborator.
func WithResolver(resolver cms.Resolver) Option {
	return func(c *config) {
		c.resolver = resolver
	}
}

// WithComposer sets the remote composition collaborator.
func WithComposer(composer Composer) Option {
	return func(c *config) {
		c.composer = composer
	}
}

// WithNavigator sets how Start performs the invocation.
func WithNavigator(navigator Navigator) Option {
	return func(c *config) {
		c.navigator = navigator
	}
}

// WithActivityHooks appends analytics hooks.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(c *config) {
		for _, hook := range hooks {
			if hook != nil {
				c.hooks = append(c.hooks, hook)
			}
		}
	}
}

// WithLaunchLogger attaches a launch logger.
func WithLaunchLogger(logger LaunchLogger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithRawAlternates lists companion URLs of a raw target in other formats,
// e.g. the .usdz next to a .glb.
func WithRawAlternates(urls ...string) Option {
	return func(c *config) {
		for _, u := range urls {
			if u = strings.TrimSpace(u); u != "" {
				c.alternates = append(c.alternates, u)
			}
		}
	}
}

func applyOptions(opts []Option) config {
	var cfg config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// newConfig layers launcher options over an optional factory config and the
// defaults. Collaborators are taken from the strongest layer that sets them.
func newConfig(base *config, opts []Option) config {
	cfg := applyOptions(opts)

	layers := []Settings{cfg.settings}
	if base != nil {
		layers = append(layers, base.settings)
	}
	layers = append(layers, DefaultSettings())
	cfg.settings = layering.MergeLayers(layers...)

	if base != nil {
		if cfg.detector == nil {
			cfg.detector = base.detector
		}
		if !cfg.hasEnv {
			cfg.env, cfg.hasEnv = base.env, base.hasEnv
		}
		if cfg.resolver == nil {
			cfg.resolver = base.resolver
		}
		if cfg.composer == nil {
			cfg.composer = base.composer
		}
		if cfg.navigator == nil {
			cfg.navigator = base.navigator
		}
		if cfg.logger == nil {
			cfg.logger = base.logger
		}
		cfg.hooks = append(base.hooks.Clone(), cfg.hooks...)
		if len(cfg.alternates) == 0 {
			cfg.alternates = append([]string(nil), base.alternates...)
		}
	}

	if cfg.detector == nil {
		cfg.detector = DefaultDetector()
	}
	if cfg.logger == nil {
		cfg.logger = noopLaunchLogger{}
	}
	return cfg
}
