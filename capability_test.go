package arlaunch

import (
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
)

const (
	uaSafariIOS16   = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.4 Mobile/15E148 Safari/604.1"
	uaSafariIOS12   = "Mozilla/5.0 (iPhone; CPU iPhone OS 12_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/12.0 Mobile/15E148 Safari/604.1"
	uaChromeIOS     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/118.0.5993.69 Mobile/15E148 Safari/604.1"
	uaFirefoxIOS    = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) FxiOS/118.0 Mobile/15E148 Safari/605.1.15"
	uaIPadDesktop   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"
	uaAndroidChrome = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Mobile Safari/537.36"
	uaAndroidFF     = "Mozilla/5.0 (Android 14; Mobile; rv:118.0) Gecko/118.0 Firefox/118.0"
	uaSamsung       = "Mozilla/5.0 (Linux; Android 13; SM-S911B) AppleWebKit/537.36 (KHTML, like Gecko) SamsungBrowser/22.0 Chrome/111.0.5563.116 Mobile Safari/537.36"
	uaDesktop       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
)

func TestDetectorProfileTable(t *testing.T) {
	detector, err := NewDetector()
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}

	tests := []struct {
		name string
		env  Environment
		want Profile
	}{
		{
			name: "safari ios 16",
			env:  Environment{UserAgent: uaSafariIOS16},
			want: Profile{Platform: PlatformIOS, Browser: BrowserSafari, IOSVersion: 16, QuickLook: true, RealityViewer: true},
		},
		{
			name: "safari ios 12 lacks reality viewer",
			env:  Environment{UserAgent: uaSafariIOS12},
			want: Profile{Platform: PlatformIOS, Browser: BrowserSafari, IOSVersion: 12, QuickLook: true},
		},
		{
			name: "chrome ios",
			env:  Environment{UserAgent: uaChromeIOS},
			want: Profile{Platform: PlatformIOS, Browser: BrowserChromeIOS, IOSVersion: 17, QuickLook: true, RealityViewer: true},
		},
		{
			name: "firefox ios is not ios family",
			env:  Environment{UserAgent: uaFirefoxIOS},
			want: Profile{Platform: PlatformIOS, Browser: BrowserFirefox, IOSVersion: 17},
		},
		{
			name: "ipados desktop mode with touch probe",
			env:  Environment{UserAgent: uaIPadDesktop, Probes: map[string]bool{ProbeTouch: true}},
			want: Profile{Platform: PlatformIOS, Browser: BrowserSafari, IOSVersion: 17, QuickLook: true, RealityViewer: true},
		},
		{
			name: "macos safari without touch",
			env:  Environment{UserAgent: uaIPadDesktop},
			want: Profile{Platform: PlatformOther, Browser: BrowserSafari},
		},
		{
			name: "android chrome",
			env:  Environment{UserAgent: uaAndroidChrome},
			want: Profile{Platform: PlatformAndroid, Browser: BrowserChrome, SceneViewer: true},
		},
		{
			name: "android firefox",
			env:  Environment{UserAgent: uaAndroidFF},
			want: Profile{Platform: PlatformAndroid, Browser: BrowserFirefox},
		},
		{
			name: "samsung internet",
			env:  Environment{UserAgent: uaSamsung},
			want: Profile{Platform: PlatformAndroid, Browser: BrowserSamsung, SceneViewer: true},
		},
		{
			name: "desktop",
			env:  Environment{UserAgent: uaDesktop},
			want: Profile{Platform: PlatformOther, Browser: BrowserChrome},
		},
		{
			name: "platform hint only",
			env:  Environment{UserAgent: "custom", PlatformHint: "Android"},
			want: Profile{Platform: PlatformAndroid, Browser: BrowserOther, SceneViewer: true},
		},
		{
			name: "rel_ar probe is authoritative",
			env:  Environment{UserAgent: uaSafariIOS16, Probes: map[string]bool{ProbeRelAR: false}},
			want: Profile{Platform: PlatformIOS, Browser: BrowserSafari, IOSVersion: 16},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detector.Profile(tt.env)
			if got != tt.want {
				t.Fatalf("profile mismatch\n got: %+v\nwant: %+v", got, tt.want)
			}
			if got.CanAugmentAtAll() != detector.CanAugmentAtAll(tt.env) {
				t.Fatalf("CanAugmentAtAll disagrees with profile")
			}
			if detector.SupportsQuickLook(tt.env) != tt.want.QuickLook {
				t.Fatalf("SupportsQuickLook mismatch")
			}
			if detector.SupportsRealityViewer(tt.env) != tt.want.RealityViewer {
				t.Fatalf("SupportsRealityViewer mismatch")
			}
			if detector.SupportsSceneViewer(tt.env) != tt.want.SceneViewer {
				t.Fatalf("SupportsSceneViewer mismatch")
			}
		})
	}
}

func TestIsPlatformIOSFamily(t *testing.T) {
	if !IsPlatformIOSFamily(Environment{UserAgent: uaSafariIOS16}) {
		t.Fatalf("expected safari ios to be ios family")
	}
	if !IsPlatformIOSFamily(Environment{UserAgent: uaChromeIOS}) {
		t.Fatalf("expected chrome ios to be ios family")
	}
	if IsPlatformIOSFamily(Environment{UserAgent: uaAndroidChrome}) {
		t.Fatalf("android must not be ios family")
	}
	if CanAugmentAtAll(Environment{UserAgent: uaDesktop}) {
		t.Fatalf("desktop must not augment")
	}
	if !SupportsSceneViewer(Environment{UserAgent: uaAndroidChrome}) {
		t.Fatalf("expected package-level scene viewer support")
	}
}

func TestDetectorCELEngine(t *testing.T) {
	rules := DefaultRules()
	rules.Engine = EngineCEL
	rules.QuickLook = `ios_family && rel_ar`
	rules.RealityViewer = `ios_family && rel_ar && versionAtLeast(ios_version, 13)`
	rules.SceneViewer = `android && browser != "firefox" && !uaMatches(ua, "wv\\)")`

	detector, err := NewDetector(WithRules(rules))
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	profile := detector.Profile(Environment{UserAgent: uaSafariIOS16})
	if !profile.QuickLook || !profile.RealityViewer || profile.SceneViewer {
		t.Fatalf("unexpected cel profile for ios: %+v", profile)
	}
	if !detector.SupportsSceneViewer(Environment{UserAgent: uaAndroidChrome}) {
		t.Fatalf("expected cel scene viewer support on android chrome")
	}
	webview := "Mozilla/5.0 (Linux; Android 14; Pixel 8; wv) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Mobile Safari/537.36"
	if detector.SupportsSceneViewer(Environment{UserAgent: webview}) {
		t.Fatalf("expected webview to be excluded by uaMatches")
	}
	if got := detector.Rules().Engine; got != EngineCEL {
		t.Fatalf("expected cel engine, got %q", got)
	}
}

func TestDetectorJSEngineRequiresBuildTag(t *testing.T) {
	if jsEvaluatorAvailable() {
		t.Skip("js engine compiled in")
	}
	_, err := NewDetector(WithRules(Rules{Engine: EngineJS}))
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestDetectorUnknownEngine(t *testing.T) {
	_, err := NewDetector(WithRules(Rules{Engine: "lua"}))
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestDetectorNonBoolRuleAnswersFalse(t *testing.T) {
	var (
		mu     sync.Mutex
		events []RuleLogEvent
	)
	logger := RuleLoggerFunc(func(event RuleLogEvent) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})
	detector, err := NewDetector(
		WithRules(Rules{QuickLook: `ios_version`}),
		WithRuleLogger(logger),
	)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}

	if detector.SupportsQuickLook(Environment{UserAgent: uaSafariIOS16}) {
		t.Fatalf("non-bool rule must answer false")
	}
	if len(events) != 1 {
		t.Fatalf("expected one rule log event, got %d", len(events))
	}
	event := events[0]
	if event.Rule != RuleQuickLook || event.Engine != EngineExpr || event.Result {
		t.Fatalf("unexpected log event: %+v", event)
	}
	var evalErr *EvaluationError
	if !errors.As(event.Err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %v", event.Err)
	}
	if evalErr.Expr != "ios_version" {
		t.Fatalf("expected expression recorded, got %q", evalErr.Expr)
	}
}

func TestDetectorSetRulesSwapsAndKeepsOnError(t *testing.T) {
	detector, err := NewDetector()
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	android := Environment{UserAgent: uaAndroidChrome}
	if !detector.SupportsSceneViewer(android) {
		t.Fatalf("expected default scene viewer support")
	}

	if err := detector.SetRules(Rules{SceneViewer: `false`}); err != nil {
		t.Fatalf("set rules: %v", err)
	}
	if detector.SupportsSceneViewer(android) {
		t.Fatalf("expected swapped rule to disable scene viewer")
	}

	err = detector.SetRules(Rules{SceneViewer: `android &&`})
	if err == nil {
		t.Fatalf("expected compile error")
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || evalErr.Rule != RuleSceneViewer {
		t.Fatalf("expected EvaluationError naming the rule, got %v", err)
	}
	if got := detector.Rules().SceneViewer; got != `false` {
		t.Fatalf("expected previous rules retained, got %q", got)
	}
}

func TestRulesRoundTrip(t *testing.T) {
	rules := Rules{
		Engine:        EngineCEL,
		QuickLook:     `ios_family && rel_ar`,
		RealityViewer: `ios_family && versionAtLeast(ios_version, 14)`,
		SceneViewer:   `android`,
	}
	for _, format := range []RulesFormat{RulesTOML, RulesYAML, RulesJSON} {
		t.Run(string(format), func(t *testing.T) {
			data, err := MarshalRules(rules, format)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			got, err := ParseRules(data, format)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != rules {
				t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v", got, rules)
			}
		})
	}
}

func TestParseRulesRejectsUnknownKeys(t *testing.T) {
	if _, err := ParseRules([]byte(`{"quick_look":"true","webxr":"true"}`), RulesJSON); err == nil {
		t.Fatalf("expected unknown json key to fail")
	}
	if _, err := ParseRules([]byte("webxr = \"true\"\n"), RulesTOML); err == nil {
		t.Fatalf("expected unknown toml key to fail")
	}
	if _, err := ParseRules([]byte("webxr: \"true\"\n"), RulesYAML); err == nil {
		t.Fatalf("expected unknown yaml key to fail")
	}
	rules, err := ParseRules(nil, RulesYAML)
	if err != nil {
		t.Fatalf("empty yaml should parse: %v", err)
	}
	if rules != (Rules{}) {
		t.Fatalf("expected zero rules, got %+v", rules)
	}
}

func TestRulesFormatFromPath(t *testing.T) {
	cases := map[string]RulesFormat{
		"rules.toml": RulesTOML,
		"rules.yml":  RulesYAML,
		"RULES.YAML": RulesYAML,
		"rules.json": RulesJSON,
	}
	for path, want := range cases {
		got, err := RulesFormatFromPath(path)
		if err != nil || got != want {
			t.Fatalf("%s: got %q, %v", path, got, err)
		}
	}
	if _, err := RulesFormatFromPath("rules.ini"); err == nil {
		t.Fatalf("expected unknown extension error")
	}
}

func TestEnvironmentFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/launch/raw?ar_probe=touch&ar_probe=webxr=0", nil)
	req.Header.Set("User-Agent", uaIPadDesktop)
	req.Header.Set("Sec-CH-UA-Platform", `"iOS"`)
	req.Header.Set(ProbeHeader, "rel_ar=1, quick=false")

	env := EnvironmentFromRequest(req)
	if env.UserAgent != uaIPadDesktop {
		t.Fatalf("unexpected user agent %q", env.UserAgent)
	}
	if env.PlatformHint != "iOS" {
		t.Fatalf("expected unquoted platform hint, got %q", env.PlatformHint)
	}
	want := map[string]bool{"rel_ar": true, "quick": false, "touch": true, "webxr": false}
	if len(env.Probes) != len(want) {
		t.Fatalf("unexpected probes %+v", env.Probes)
	}
	for name, value := range want {
		if env.Probes[name] != value {
			t.Fatalf("probe %s: got %v want %v", name, env.Probes[name], value)
		}
	}

	detector, err := NewDetector()
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	if !detector.SupportsRealityViewer(env) {
		t.Fatalf("expected ipad desktop request to support reality viewer")
	}

	if got := EnvironmentFromRequest(nil); got.UserAgent != "" || got.Probes != nil {
		t.Fatalf("expected zero environment for nil request")
	}
}
