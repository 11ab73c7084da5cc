package arlaunch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ViewerKind tags the native viewer a launch resolved to.
type ViewerKind string

const (
	ViewerQuickLook     ViewerKind = "Quick Look"
	ViewerRealityViewer ViewerKind = "Reality Viewer"
	ViewerSceneViewer   ViewerKind = "Scene Viewer"
)

// Anchor is the placement mode requested for a model.
type Anchor string

const (
	AnchorHorizontal         Anchor = "horizontal"
	AnchorVertical           Anchor = "vertical"
	AnchorVTO                Anchor = "vto"
	AnchorHorizontalVertical Anchor = "horizontal_vertical"
)

// ParseAnchor normalises s; an empty string yields "".
func ParseAnchor(s string) (Anchor, error) {
	anchor := Anchor(strings.ToLower(strings.TrimSpace(s)))
	switch anchor {
	case "", AnchorHorizontal, AnchorVertical, AnchorVTO, AnchorHorizontalVertical:
		return anchor, nil
	default:
		return "", fmt.Errorf("arlaunch: unknown anchor %q", s)
	}
}

// allowsVertical reports whether Scene Viewer should enable vertical placement.
func (a Anchor) allowsVertical() bool {
	return a == AnchorVertical || a == AnchorHorizontalVertical
}

// Banner is advisory call-to-action metadata shown by viewers that support it.
type Banner struct {
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Button   string `json:"button,omitempty"`
}

// IsZero reports whether the banner carries nothing to show.
func (b *Banner) IsZero() bool {
	return b == nil || (strings.TrimSpace(b.Title) == "" && strings.TrimSpace(b.Subtitle) == "" && strings.TrimSpace(b.Button) == "")
}

// ResolvedViewer is the outcome of a successful Init.
type ResolvedViewer struct {
	Kind              ViewerKind `json:"kind"`
	ModelURL          string     `json:"model_url"`
	Anchor            Anchor     `json:"anchor,omitempty"`
	VerticalPlacement bool       `json:"vertical_placement,omitempty"`
	Banner            *Banner    `json:"banner,omitempty"`
}

// Invocation is the single navigation that hands a model to a native viewer.
// Rel is "ar" for anchor-click invocations and empty for intents.
type Invocation struct {
	Kind ViewerKind `json:"kind"`
	Href string     `json:"href"`
	Rel  string     `json:"rel,omitempty"`
}

// Navigator performs an Invocation. Navigation is forward-only; the caller
// learns nothing about what the OS does with it.
type Navigator interface {
	Navigate(ctx context.Context, invocation Invocation) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, invocation Invocation) error

// Navigate implements Navigator.
func (fn NavigatorFunc) Navigate(ctx context.Context, invocation Invocation) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, invocation)
}

// ViewerAdapter turns a ResolvedViewer into an Invocation for one viewer.
// Validate only rejects a runtime that cannot honour the adapter; choosing
// an adapter is the launcher's job.
type ViewerAdapter interface {
	Kind() ViewerKind
	Validate(profile Profile) error
	Invocation(viewer ResolvedViewer) (Invocation, error)
}

// QuickLookAdapter opens usdz, reality or VTO content through an
// <a rel="ar"> link, with the banner encoded in the fragment.
type QuickLookAdapter struct{}

func (QuickLookAdapter) Kind() ViewerKind { return ViewerQuickLook }

func (QuickLookAdapter) Validate(profile Profile) error {
	if !profile.QuickLook && !profile.RealityViewer {
		return fmt.Errorf("%w: %s", ErrCapabilityUnavailable, ViewerQuickLook)
	}
	return nil
}

func (QuickLookAdapter) Invocation(viewer ResolvedViewer) (Invocation, error) {
	href, err := modelHref(viewer.ModelURL)
	if err != nil {
		return Invocation{}, err
	}
	if fragment := quickLookFragment(viewer.Banner); fragment != "" {
		href += "#" + fragment
	}
	return Invocation{Kind: ViewerQuickLook, Href: href, Rel: "ar"}, nil
}

func quickLookFragment(banner *Banner) string {
	if banner.IsZero() {
		return ""
	}
	var parts []string
	add := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			parts = append(parts, key+"="+fragmentEscape(value))
		}
	}
	add("callToAction", banner.Button)
	add("checkoutTitle", banner.Title)
	add("checkoutSubtitle", banner.Subtitle)
	return strings.Join(parts, "&")
}

func fragmentEscape(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// RealityViewerAdapter links straight to a .reality file. Banners are ignored.
type RealityViewerAdapter struct{}

func (RealityViewerAdapter) Kind() ViewerKind { return ViewerRealityViewer }

func (RealityViewerAdapter) Validate(profile Profile) error {
	if !profile.RealityViewer {
		return fmt.Errorf("%w: %s", ErrCapabilityUnavailable, ViewerRealityViewer)
	}
	return nil
}

func (RealityViewerAdapter) Invocation(viewer ResolvedViewer) (Invocation, error) {
	href, err := modelHref(viewer.ModelURL)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{Kind: ViewerRealityViewer, Href: href, Rel: "ar"}, nil
}

// SceneViewerAdapter builds the Android Scene Viewer intent. FallbackURL is
// the page the browser returns to when ARCore is unavailable.
type SceneViewerAdapter struct {
	FallbackURL string
}

const (
	sceneViewerBase   = "intent://arvr.google.com/scene-viewer/1.0"
	noARFallbackToken = "no-ar-fallback"
)

func (SceneViewerAdapter) Kind() ViewerKind { return ViewerSceneViewer }

func (SceneViewerAdapter) Validate(profile Profile) error {
	if !profile.SceneViewer {
		return fmt.Errorf("%w: %s", ErrCapabilityUnavailable, ViewerSceneViewer)
	}
	return nil
}

func (a SceneViewerAdapter) Invocation(viewer ResolvedViewer) (Invocation, error) {
	file, err := modelHref(viewer.ModelURL)
	if err != nil {
		return Invocation{}, err
	}

	var b strings.Builder
	b.WriteString(sceneViewerBase)
	b.WriteString("?file=")
	b.WriteString(sceneViewerFile(file))
	b.WriteString("&mode=ar_preferred")
	if viewer.VerticalPlacement {
		b.WriteString("&enable_vertical_placement=true")
	}
	if title := sceneViewerTitle(viewer.Banner); title != "" {
		b.WriteString("&title=")
		b.WriteString(url.QueryEscape(title))
	}
	b.WriteString("#Intent;scheme=https;package=com.google.ar.core;action=android.intent.action.VIEW;")
	if fallback := strings.TrimSpace(a.FallbackURL); fallback != "" {
		page, _, _ := strings.Cut(fallback, "#")
		b.WriteString("S.browser_fallback_url=")
		b.WriteString(url.QueryEscape(page + "#" + noARFallbackToken))
		b.WriteString(";")
	}
	b.WriteString("end;")
	return Invocation{Kind: ViewerSceneViewer, Href: b.String()}, nil
}

// sceneViewerFile keeps plain model URLs readable and query-escapes any URL
// whose own query or escapes would otherwise leak into the intent parameters.
func sceneViewerFile(href string) string {
	if strings.ContainsAny(href, "?&;#%+ ") {
		return url.QueryEscape(href)
	}
	return href
}

func sceneViewerTitle(banner *Banner) string {
	if banner.IsZero() {
		return ""
	}
	title := strings.TrimSpace(banner.Title)
	subtitle := strings.TrimSpace(banner.Subtitle)
	switch {
	case title != "" && subtitle != "":
		return "<b>" + title + "</b><br>" + subtitle
	case title != "":
		return "<b>" + title + "</b>"
	default:
		return subtitle
	}
}

// modelHref requires an absolute http(s) URL and drops any fragment.
func modelHref(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("arlaunch: model url is empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("arlaunch: model url %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("arlaunch: model url %q must be absolute http(s)", raw)
	}
	href, _, _ := strings.Cut(raw, "#")
	return href, nil
}

// AdapterFor returns the adapter for kind.
func AdapterFor(kind ViewerKind, fallbackURL string) (ViewerAdapter, error) {
	switch kind {
	case ViewerQuickLook:
		return QuickLookAdapter{}, nil
	case ViewerRealityViewer:
		return RealityViewerAdapter{}, nil
	case ViewerSceneViewer:
		return SceneViewerAdapter{FallbackURL: fallbackURL}, nil
	default:
		return nil, fmt.Errorf("arlaunch: unknown viewer %q", kind)
	}
}
