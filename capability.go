package arlaunch

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Probe names a page reports after feature-testing the browser.
const (
	ProbeRelAR = "rel_ar"
	ProbeTouch = "touch"
)

// ProbeHeader carries client-reported probes, e.g. "rel_ar=1,touch=1".
const ProbeHeader = "X-AR-Probes"

// ProbeQuery is the repeatable query parameter alternative to ProbeHeader.
const ProbeQuery = "ar_probe"

// Environment is the runtime a launch is evaluated against.
type Environment struct {
	UserAgent    string
	PlatformHint string
	Probes       map[string]bool
}

// EnvironmentFromRequest reads the user agent, the Sec-CH-UA-Platform client
// hint, and probes from ProbeHeader and ProbeQuery. A bare probe name reports
// true; "name=0" or "name=false" reports false.
func EnvironmentFromRequest(r *http.Request) Environment {
	if r == nil {
		return Environment{}
	}
	env := Environment{
		UserAgent:    r.UserAgent(),
		PlatformHint: strings.Trim(strings.TrimSpace(r.Header.Get("Sec-CH-UA-Platform")), `"`),
	}
	var entries []string
	for _, header := range r.Header.Values(ProbeHeader) {
		entries = append(entries, strings.Split(header, ",")...)
	}
	if r.URL != nil {
		entries = append(entries, r.URL.Query()[ProbeQuery]...)
	}
	for _, entry := range entries {
		name, value, hasValue := strings.Cut(strings.TrimSpace(entry), "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if env.Probes == nil {
			env.Probes = map[string]bool{}
		}
		if !hasValue {
			env.Probes[name] = true
			continue
		}
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		env.Probes[name] = err == nil && enabled
	}
	return env
}

// Platform is the OS family of a runtime.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformOther   Platform = "other"
)

// Browser is the browser family of a runtime.
type Browser string

const (
	BrowserSafari    Browser = "safari"
	BrowserChromeIOS Browser = "chrome_ios"
	BrowserChrome    Browser = "chrome"
	BrowserFirefox   Browser = "firefox"
	BrowserSamsung   Browser = "samsung"
	BrowserOther     Browser = "other"
)

// Profile is the derived capability profile of an Environment.
type Profile struct {
	Platform      Platform `json:"platform"`
	Browser       Browser  `json:"browser"`
	IOSVersion    int      `json:"ios_version,omitempty"`
	QuickLook     bool     `json:"quick_look"`
	RealityViewer bool     `json:"reality_viewer"`
	SceneViewer   bool     `json:"scene_viewer"`
}

// IsPlatformIOSFamily reports Safari or Chrome on iOS.
func (p Profile) IsPlatformIOSFamily() bool {
	return p.Platform == PlatformIOS && (p.Browser == BrowserSafari || p.Browser == BrowserChromeIOS)
}

// CanAugmentAtAll reports whether any native viewer is available.
func (p Profile) CanAugmentAtAll() bool {
	return p.QuickLook || p.RealityViewer || p.SceneViewer
}

var (
	iosDeviceRe  = regexp.MustCompile(`\b(iPhone|iPad|iPod)\b`)
	iosVersionRe = regexp.MustCompile(`\bOS (\d+)[_.]\d+`)
	safariVerRe  = regexp.MustCompile(`\bVersion/(\d+)`)
)

// facts are the UA-derived values capability rules see.
type facts struct {
	platform   Platform
	browser    Browser
	iosVersion int
	relAR      bool
	probes     map[string]bool
	ua         string
}

var factNames = []string{"ua", "platform", "browser", "ios_version", "ios_family", "android", "rel_ar", "probes"}

func deriveFacts(env Environment) facts {
	ua := env.UserAgent
	f := facts{ua: ua, probes: env.Probes}

	hint := strings.ToLower(env.PlatformHint)
	switch {
	case iosDeviceRe.MatchString(ua):
		f.platform = PlatformIOS
	case strings.Contains(ua, "Macintosh") && env.Probes[ProbeTouch]:
		// iPadOS requests the desktop site with a macOS user agent
		f.platform = PlatformIOS
	case strings.Contains(ua, "Android") || hint == "android":
		f.platform = PlatformAndroid
	case hint == "ios":
		f.platform = PlatformIOS
	default:
		f.platform = PlatformOther
	}

	switch {
	case strings.Contains(ua, "SamsungBrowser/"):
		f.browser = BrowserSamsung
	case strings.Contains(ua, "Firefox/") || strings.Contains(ua, "FxiOS/"):
		f.browser = BrowserFirefox
	case strings.Contains(ua, "CriOS/"):
		f.browser = BrowserChromeIOS
	case strings.Contains(ua, "Chrome/") || strings.Contains(ua, "Chromium/"):
		f.browser = BrowserChrome
	case strings.Contains(ua, "Safari/"):
		f.browser = BrowserSafari
	default:
		f.browser = BrowserOther
	}

	if f.platform == PlatformIOS {
		if m := iosVersionRe.FindStringSubmatch(ua); m != nil {
			f.iosVersion, _ = strconv.Atoi(m[1])
		} else if m := safariVerRe.FindStringSubmatch(ua); m != nil {
			f.iosVersion, _ = strconv.Atoi(m[1])
		}
	}

	if reported, ok := env.Probes[ProbeRelAR]; ok {
		f.relAR = reported
	} else {
		f.relAR = f.iosFamily() && f.iosVersion >= 12
	}
	return f
}

func (f facts) iosFamily() bool {
	return Profile{Platform: f.platform, Browser: f.browser}.IsPlatformIOSFamily()
}

func (f facts) bindings() map[string]any {
	probes := make(map[string]any, len(f.probes))
	for name, value := range f.probes {
		probes[name] = value
	}
	return map[string]any{
		"ua":          f.ua,
		"platform":    string(f.platform),
		"browser":     string(f.browser),
		"ios_version": int64(f.iosVersion),
		"ios_family":  f.iosFamily(),
		"android":     f.platform == PlatformAndroid,
		"rel_ar":      f.relAR,
		"probes":      probes,
	}
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithRules replaces the default capability rules.
func WithRules(rules Rules) DetectorOption {
	return func(d *Detector) {
		d.initial = rules
	}
}

// WithRuleLogger attaches a rule logger.
func WithRuleLogger(logger RuleLogger) DetectorOption {
	return func(d *Detector) {
		if logger == nil {
			logger = noopRuleLogger{}
		}
		d.logger = logger
	}
}

// WithProgramCache shares a program cache across rule compilations.
func WithProgramCache(cache ProgramCache) DetectorOption {
	return func(d *Detector) {
		d.cache = cache
	}
}

// WithFunctionRegistry replaces the helper functions exposed to rules.
func WithFunctionRegistry(registry *FunctionRegistry) DetectorOption {
	return func(d *Detector) {
		if registry != nil {
			d.registry = registry.Clone()
		}
	}
}

// Detector answers capability questions about an Environment. Answers are
// recomputed on every call; only compiled rules are kept. A Detector is safe
// for concurrent use and its rules can be swapped while in use.
type Detector struct {
	initial  Rules
	registry *FunctionRegistry
	cache    ProgramCache
	logger   RuleLogger
	active   atomic.Pointer[ruleSet]
}

type ruleSet struct {
	rules    Rules
	engine   string
	compiled map[string]CompiledRule
}

// NewDetector compiles the configured rules, defaulting to DefaultRules.
func NewDetector(opts ...DetectorOption) (*Detector, error) {
	d := &Detector{
		initial:  DefaultRules(),
		registry: DefaultFunctions(),
		cache:    NewProgramCache(),
		logger:   noopRuleLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if err := d.SetRules(d.initial); err != nil {
		return nil, err
	}
	return d, nil
}

// SetRules compiles rules and swaps them in atomically. Empty expressions
// fall back to the default rule. On error the active rules are kept.
func (d *Detector) SetRules(rules Rules) error {
	rules = rules.withDefaults()
	evaluator, err := NewEvaluator(rules.Engine, d.registry, d.cache)
	if err != nil {
		return err
	}
	set := &ruleSet{
		rules:    rules,
		engine:   evaluatorEngineName(evaluator),
		compiled: make(map[string]CompiledRule, 3),
	}
	for name, expression := range rules.expressions() {
		compiled, err := evaluator.Compile(expression)
		if err != nil {
			return wrapEvaluationError(set.engine, name, expression, err)
		}
		set.compiled[name] = compiled
	}
	d.active.Store(set)
	return nil
}

// Rules returns the active rules.
func (d *Detector) Rules() Rules {
	if set := d.active.Load(); set != nil {
		return set.rules
	}
	return DefaultRules()
}

// Profile evaluates every rule against env.
func (d *Detector) Profile(env Environment) Profile {
	f := deriveFacts(env)
	ctx := RuleContext{Facts: f.bindings()}
	return Profile{
		Platform:      f.platform,
		Browser:       f.browser,
		IOSVersion:    f.iosVersion,
		QuickLook:     d.eval(ctx, RuleQuickLook),
		RealityViewer: d.eval(ctx, RuleRealityViewer),
		SceneViewer:   d.eval(ctx, RuleSceneViewer),
	}
}

// IsPlatformIOSFamily reports Safari or Chrome on iOS.
func (d *Detector) IsPlatformIOSFamily(env Environment) bool {
	return deriveFacts(env).iosFamily()
}

// SupportsQuickLook reports the rel=ar anchor capability.
func (d *Detector) SupportsQuickLook(env Environment) bool {
	return d.eval(RuleContext{Facts: deriveFacts(env).bindings()}, RuleQuickLook)
}

// SupportsRealityViewer reports Reality Viewer support.
func (d *Detector) SupportsRealityViewer(env Environment) bool {
	return d.eval(RuleContext{Facts: deriveFacts(env).bindings()}, RuleRealityViewer)
}

// SupportsSceneViewer reports Scene Viewer intent support.
func (d *Detector) SupportsSceneViewer(env Environment) bool {
	return d.eval(RuleContext{Facts: deriveFacts(env).bindings()}, RuleSceneViewer)
}

// CanAugmentAtAll reports whether any viewer is available.
func (d *Detector) CanAugmentAtAll(env Environment) bool {
	return d.Profile(env).CanAugmentAtAll()
}

func (d *Detector) eval(ctx RuleContext, name string) bool {
	set := d.active.Load()
	if set == nil {
		return false
	}
	rule := set.compiled[name]
	if rule == nil {
		return false
	}
	expression := set.rules.expression(name)

	start := time.Now()
	value, err := rule.Evaluate(ctx)
	duration := time.Since(start)

	result, ok := value.(bool)
	if err == nil && !ok {
		err = fmt.Errorf("rule returned non-bool %T", value)
	}
	err = wrapEvaluationError(set.engine, name, expression, err)
	d.logger.LogRule(RuleLogEvent{
		Engine:   set.engine,
		Rule:     name,
		Expr:     expression,
		Result:   err == nil && result,
		Duration: duration,
		Err:      err,
	})
	return err == nil && result
}

var (
	defaultDetectorOnce sync.Once
	defaultDetector     *Detector
)

// DefaultDetector returns a shared Detector built with DefaultRules.
func DefaultDetector() *Detector {
	defaultDetectorOnce.Do(func() {
		detector, err := NewDetector()
		if err != nil {
			// the built-in rules always compile
			panic(err)
		}
		defaultDetector = detector
	})
	return defaultDetector
}

// IsPlatformIOSFamily reports Safari or Chrome on iOS using DefaultDetector.
func IsPlatformIOSFamily(env Environment) bool {
	return DefaultDetector().IsPlatformIOSFamily(env)
}

// SupportsQuickLook uses DefaultDetector.
func SupportsQuickLook(env Environment) bool {
	return DefaultDetector().SupportsQuickLook(env)
}

// SupportsRealityViewer uses DefaultDetector.
func SupportsRealityViewer(env Environment) bool {
	return DefaultDetector().SupportsRealityViewer(env)
}

// SupportsSceneViewer uses DefaultDetector.
func SupportsSceneViewer(env Environment) bool {
	return DefaultDetector().SupportsSceneViewer(env)
}

// CanAugmentAtAll uses DefaultDetector.
func CanAugmentAtAll(env Environment) bool {
	return DefaultDetector().CanAugmentAtAll(env)
}
