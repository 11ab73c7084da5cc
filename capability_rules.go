package arlaunch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Rule names, also the keys used in rules files.
const (
	RuleQuickLook     = "quick_look"
	RuleRealityViewer = "reality_viewer"
	RuleSceneViewer   = "scene_viewer"
)

// Built-in capability rules.
const (
	DefaultQuickLookRule     = `ios_family && rel_ar`
	DefaultRealityViewerRule = `ios_family && rel_ar && versionAtLeast(ios_version, 13)`
	DefaultSceneViewerRule   = `android && browser != "firefox"`
)

// Rules holds the capability expressions and the engine that runs them.
// Available facts: ua, platform, browser, ios_version, ios_family, android,
// rel_ar, probes.
type Rules struct {
	Engine        string `json:"engine,omitempty" toml:"engine,omitempty" yaml:"engine,omitempty"`
	QuickLook     string `json:"quick_look,omitempty" toml:"quick_look,omitempty" yaml:"quick_look,omitempty"`
	RealityViewer string `json:"reality_viewer,omitempty" toml:"reality_viewer,omitempty" yaml:"reality_viewer,omitempty"`
	SceneViewer   string `json:"scene_viewer,omitempty" toml:"scene_viewer,omitempty" yaml:"scene_viewer,omitempty"`
}

// DefaultRules returns the built-in rules on the expr engine.
func DefaultRules() Rules {
	return Rules{
		Engine:        EngineExpr,
		QuickLook:     DefaultQuickLookRule,
		RealityViewer: DefaultRealityViewerRule,
		SceneViewer:   DefaultSceneViewerRule,
	}
}

func (r Rules) withDefaults() Rules {
	defaults := DefaultRules()
	r.Engine = strings.ToLower(strings.TrimSpace(r.Engine))
	if r.Engine == "" {
		r.Engine = defaults.Engine
	}
	if strings.TrimSpace(r.QuickLook) == "" {
		r.QuickLook = defaults.QuickLook
	}
	if strings.TrimSpace(r.RealityViewer) == "" {
		r.RealityViewer = defaults.RealityViewer
	}
	if strings.TrimSpace(r.SceneViewer) == "" {
		r.SceneViewer = defaults.SceneViewer
	}
	return r
}

func (r Rules) expressions() map[string]string {
	return map[string]string{
		RuleQuickLook:     r.QuickLook,
		RuleRealityViewer: r.RealityViewer,
		RuleSceneViewer:   r.SceneViewer,
	}
}

func (r Rules) expression(name string) string {
	return r.expressions()[name]
}

// RulesFormat is a rules file encoding.
type RulesFormat string

const (
	RulesTOML RulesFormat = "toml"
	RulesYAML RulesFormat = "yaml"
	RulesJSON RulesFormat = "json"
)

// RulesFormatFromPath picks the format from a file extension.
func RulesFormatFromPath(path string) (RulesFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return RulesTOML, nil
	case ".yaml", ".yml":
		return RulesYAML, nil
	case ".json":
		return RulesJSON, nil
	default:
		return "", fmt.Errorf("arlaunch: unknown rules file extension %q", filepath.Ext(path))
	}
}

// ParseRules decodes a rules document. Unknown keys are rejected.
func ParseRules(data []byte, format RulesFormat) (Rules, error) {
	var rules Rules
	switch format {
	case RulesTOML:
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&rules); err != nil {
			return Rules{}, fmt.Errorf("arlaunch: parse toml rules: %w", err)
		}
	case RulesYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
			return Rules{}, fmt.Errorf("arlaunch: parse yaml rules: %w", err)
		}
	case RulesJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&rules); err != nil {
			return Rules{}, fmt.Errorf("arlaunch: parse json rules: %w", err)
		}
	default:
		return Rules{}, fmt.Errorf("arlaunch: unknown rules format %q", format)
	}
	return rules, nil
}

// LoadRules reads and parses the rules file at path.
func LoadRules(path string) (Rules, error) {
	format, err := RulesFormatFromPath(path)
	if err != nil {
		return Rules{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("arlaunch: read rules %s: %w", path, err)
	}
	return ParseRules(data, format)
}

// MarshalRules encodes rules in format.
func MarshalRules(rules Rules, format RulesFormat) ([]byte, error) {
	switch format {
	case RulesTOML:
		return toml.Marshal(rules)
	case RulesYAML:
		return yaml.Marshal(rules)
	case RulesJSON:
		return json.MarshalIndent(rules, "", "  ")
	default:
		return nil, fmt.Errorf("arlaunch: unknown rules format %q", format)
	}
}
