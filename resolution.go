package arlaunch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-arlaunch/pkg/activity"
	"github.com/goliatone/go-arlaunch/pkg/cms"
)

// artifactKind is a model file variant a source can provide.
type artifactKind string

const (
	artifactGLB     artifactKind = "glb"
	artifactUSDZ    artifactKind = "usdz"
	artifactReality artifactKind = "reality"
	artifactVTO     artifactKind = "vto"
)

// source is the per-variant strategy: how the target is resolved and where
// its artifacts live. artifact returns "" when the variant does not exist.
type source interface {
	prepare(ctx context.Context, cfg *config) error
	storedAnchor() Anchor
	artifact(ctx context.Context, kind artifactKind) (string, error)
}

// machine is the lifecycle shared by every launcher variant.
type machine struct {
	name   string
	target Target
	cfg    config
	src    source

	state      State
	err        error
	viewer     ResolvedViewer
	invocation Invocation
	profile    Profile
	launchID   string
	variation  string
}

func newMachine(name string, target Target, cfg config, src source) machine {
	return machine{name: name, target: target, cfg: cfg, src: src}
}

// State returns the lifecycle state.
func (m *machine) State() State { return m.state }

// Target returns what the launcher launches.
func (m *machine) Target() Target { return m.target }

// Viewer returns the resolved viewer once Init succeeded.
func (m *machine) Viewer() (ResolvedViewer, bool) {
	if m.state != StateInitialized && m.state != StateStarted {
		return ResolvedViewer{}, false
	}
	viewer := m.viewer
	if viewer.Banner != nil {
		banner := *viewer.Banner
		viewer.Banner = &banner
	}
	return viewer, true
}

// Invocation returns the invocation Start will perform.
func (m *machine) Invocation() (Invocation, bool) {
	if m.state != StateInitialized && m.state != StateStarted {
		return Invocation{}, false
	}
	return m.invocation, true
}

// Profile returns the capability profile Init evaluated.
func (m *machine) Profile() Profile { return m.profile }

// LaunchID identifies this launch in analytics events.
func (m *machine) LaunchID() string { return m.launchID }

// Err returns the error recorded by a failed Init.
func (m *machine) Err() error { return m.err }

func (m *machine) init(ctx context.Context) error {
	switch m.state {
	case StateInitialized, StateStarted:
		return nil
	case StateFailed:
		return m.err
	}

	start := time.Now()
	err := m.resolve(ctx)
	event := LaunchLogEvent{
		Phase:    PhaseInit,
		Launcher: m.name,
		Target:   m.target,
		Duration: time.Since(start),
	}
	if err != nil {
		m.state = StateFailed
		m.err = wrapLaunchError("init", m.name, m.target.String(), err)
		event.Err = m.err
		m.cfg.logger.LogLaunch(event)
		return m.err
	}

	m.state = StateInitialized
	m.launchID = uuid.NewString()
	event.Viewer = m.viewer.Kind
	event.ModelURL = m.viewer.ModelURL
	m.cfg.logger.LogLaunch(event)
	m.emit(ctx, activity.BuildLaunchInitializedEvent(m.eventInput()))
	return nil
}

// Start performs the resolved invocation. It is valid once, right after a
// successful Init.
func (m *machine) Start(ctx context.Context) error {
	if m.state != StateInitialized {
		return wrapLaunchError("start", m.name, m.target.String(),
			fmt.Errorf("%w: state is %s", ErrNotInitialized, m.state))
	}
	if m.cfg.navigator == nil {
		return wrapLaunchError("start", m.name, m.target.String(), errors.New("no navigator configured"))
	}

	m.state = StateStarted
	m.emit(ctx, activity.BuildLaunchStartedEvent(m.eventInput()))

	start := time.Now()
	err := m.cfg.navigator.Navigate(ctx, m.invocation)
	err = wrapLaunchError("start", m.name, m.target.String(), err)
	m.cfg.logger.LogLaunch(LaunchLogEvent{
		Phase:    PhaseStart,
		Launcher: m.name,
		Target:   m.target,
		Viewer:   m.viewer.Kind,
		ModelURL: m.viewer.ModelURL,
		Duration: time.Since(start),
		Err:      err,
	})
	return err
}

func (m *machine) resolve(ctx context.Context) error {
	if m.src == nil {
		return errors.New("launcher has no source")
	}

	profile := m.cfg.detector.Profile(m.cfg.env)
	m.profile = profile
	if !profile.CanAugmentAtAll() {
		return fmt.Errorf("%w: no native AR viewer on %s/%s", ErrCapabilityUnavailable, profile.Platform, profile.Browser)
	}

	if err := m.src.prepare(ctx, &m.cfg); err != nil {
		return err
	}
	m.variation = m.target.VariationID
	if resolved, ok := m.src.(interface{ resolvedVariation() string }); ok && resolved.resolvedVariation() != "" {
		m.variation = resolved.resolvedVariation()
	}

	caller := m.cfg.settings.Anchor
	stored := m.src.storedAnchor()

	var (
		viewer ResolvedViewer
		err    error
	)
	switch {
	case profile.IsPlatformIOSFamily():
		viewer, err = m.resolveIOS(ctx, profile, caller, stored)
	case profile.Platform == PlatformAndroid:
		viewer, err = m.resolveAndroid(ctx, profile, caller, stored)
	default:
		err = fmt.Errorf("%w: platform %s", ErrCapabilityUnavailable, profile.Platform)
	}
	if err != nil {
		return err
	}
	if !m.cfg.settings.Banner.IsZero() {
		banner := *m.cfg.settings.Banner
		viewer.Banner = &banner
	}

	adapter, err := AdapterFor(viewer.Kind, m.cfg.settings.FallbackURL)
	if err != nil {
		return err
	}
	if err := adapter.Validate(profile); err != nil {
		return err
	}
	invocation, err := adapter.Invocation(viewer)
	if err != nil {
		return err
	}

	m.viewer = viewer
	m.invocation = invocation
	return nil
}

func (m *machine) resolveIOS(ctx context.Context, profile Profile, caller, stored Anchor) (ResolvedViewer, error) {
	if caller == AnchorVTO || stored == AnchorVTO {
		if !profile.RealityViewer {
			return ResolvedViewer{}, fmt.Errorf("%w: face anchoring needs %s", ErrCapabilityUnavailable, ViewerRealityViewer)
		}
		modelURL, err := m.requireArtifact(ctx, artifactVTO)
		if err != nil {
			return ResolvedViewer{}, err
		}
		return ResolvedViewer{Kind: ViewerQuickLook, ModelURL: modelURL, Anchor: AnchorVTO}, nil
	}

	anchor := effectiveAnchor(caller, stored)
	if profile.RealityViewer {
		modelURL, err := m.src.artifact(ctx, artifactReality)
		if err != nil {
			return ResolvedViewer{}, err
		}
		if modelURL != "" {
			return ResolvedViewer{Kind: ViewerRealityViewer, ModelURL: modelURL, Anchor: anchor}, nil
		}
	}
	if !profile.QuickLook {
		return ResolvedViewer{}, fmt.Errorf("%w: %s", ErrCapabilityUnavailable, ViewerQuickLook)
	}
	modelURL, err := m.requireArtifact(ctx, artifactUSDZ)
	if err != nil {
		return ResolvedViewer{}, err
	}
	return ResolvedViewer{Kind: ViewerQuickLook, ModelURL: modelURL, Anchor: anchor}, nil
}

func (m *machine) resolveAndroid(ctx context.Context, profile Profile, caller, stored Anchor) (ResolvedViewer, error) {
	if !profile.SceneViewer {
		return ResolvedViewer{}, fmt.Errorf("%w: %s", ErrCapabilityUnavailable, ViewerSceneViewer)
	}
	modelURL, err := m.requireArtifact(ctx, artifactGLB)
	if err != nil {
		return ResolvedViewer{}, err
	}
	return ResolvedViewer{
		Kind:              ViewerSceneViewer,
		ModelURL:          modelURL,
		Anchor:            effectiveAnchor(caller, stored),
		VerticalPlacement: caller.allowsVertical() || stored.allowsVertical(),
	}, nil
}

func (m *machine) requireArtifact(ctx context.Context, kind artifactKind) (string, error) {
	modelURL, err := m.src.artifact(ctx, kind)
	if err != nil {
		return "", err
	}
	if modelURL == "" {
		return "", fmt.Errorf("%w: no %s variant", ErrUnsupportedFormat, kind)
	}
	return modelURL, nil
}

// effectiveAnchor reports the anchor a launch ends up using. Vertical
// preferences from either side win over plain horizontal.
func effectiveAnchor(caller, stored Anchor) Anchor {
	switch {
	case caller == AnchorVTO || stored == AnchorVTO:
		return AnchorVTO
	case caller.allowsVertical():
		return caller
	case stored.allowsVertical():
		return stored
	case caller != "":
		return caller
	case stored != "":
		return stored
	default:
		return AnchorHorizontal
	}
}

func (m *machine) eventInput() activity.LaunchEventInput {
	return activity.LaunchEventInput{
		LaunchID:    m.launchID,
		TargetKind:  string(m.target.Kind),
		TargetID:    m.target.ID,
		VariationID: m.variation,
		Viewer:      string(m.viewer.Kind),
		ModelURL:    m.viewer.ModelURL,
		Anchor:      string(m.viewer.Anchor),
		Platform:    string(m.profile.Platform),
		Browser:     string(m.profile.Browser),
		ActorID:     m.cfg.settings.ActorID,
		TenantID:    m.cfg.settings.TenantID,
		Channel:     m.cfg.settings.Channel,
		OccurredAt:  time.Now().UTC(),
	}
}

// emit reports an analytics event. Failures are logged and never affect the
// launch.
func (m *machine) emit(ctx context.Context, event activity.Event) {
	emitter := activity.NewEmitter(m.cfg.settings.Channel, m.cfg.hooks...)
	if !emitter.Enabled() {
		return
	}
	if err := emitter.Emit(ctx, event); err != nil {
		m.cfg.logger.LogLaunch(LaunchLogEvent{
			Phase:    PhaseAnalytics,
			Launcher: m.name,
			Target:   m.target,
			Viewer:   m.viewer.Kind,
			ModelURL: m.viewer.ModelURL,
			Err:      fmt.Errorf("arlaunch: %s event: %w", event.Verb, err),
		})
	}
}

// parseStoredAnchor reads a CMS anchor preference; unknown values count as
// no preference.
func parseStoredAnchor(value string) Anchor {
	anchor, err := ParseAnchor(value)
	if err != nil {
		return ""
	}
	return anchor
}

// missingTarget marks a CMS lookup failure as ErrMissingTarget while keeping
// the cause.
func missingTarget(typ cms.Type, id string, err error) error {
	if errors.Is(err, cms.ErrNotFound) {
		return fmt.Errorf("%w: %s %q: %w", ErrMissingTarget, typ, id, err)
	}
	return fmt.Errorf("resolve %s %q: %w", typ, id, err)
}

func requireResolver(cfg *config) (cms.Resolver, error) {
	if cfg.resolver == nil {
		return nil, errors.New("no CMS resolver configured")
	}
	return cfg.resolver, nil
}

func requireComposer(cfg *config) (Composer, error) {
	if cfg.composer == nil {
		return nil, errors.New("no composer configured")
	}
	return cfg.composer, nil
}

// extensionOf returns the lowercased extension of a URL path.
func extensionOf(raw string) string {
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		raw = parsed.Path
	}
	return strings.ToLower(path.Ext(raw))
}
