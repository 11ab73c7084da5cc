package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/goliatone/go-arlaunch"
	"github.com/goliatone/go-arlaunch/pkg/activity"
)

// EnvPrefix prefixes every environment override, e.g. ARLAUNCH_CDN_URL.
const EnvPrefix = "ARLAUNCH"

// RulesConfig selects the capability rules file and engine.
type RulesConfig struct {
	File   string `mapstructure:"file"`
	Engine string `mapstructure:"engine"`
	Watch  bool   `mapstructure:"watch"`
}

// AnalyticsConfig controls launch event sinks.
type AnalyticsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Channel    string `mapstructure:"channel"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// Config holds runtime configuration for the arlaunch CLI.
// Values are populated from .arlaunch.yaml, ARLAUNCH_* env vars, and CLI flags.
type Config struct {
	Listen      string          `mapstructure:"listen"`
	APIURL      string          `mapstructure:"api_url"`
	CDNURL      string          `mapstructure:"cdn_url"`
	FallbackURL string          `mapstructure:"fallback_url"`
	Rules       RulesConfig     `mapstructure:"rules"`
	Analytics   AnalyticsConfig `mapstructure:"analytics"`
	Verbose     bool            `mapstructure:"verbose"`
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("api_url", "")
	v.SetDefault("cdn_url", "")
	v.SetDefault("fallback_url", "")
	v.SetDefault("rules.file", "")
	v.SetDefault("rules.engine", arlaunch.EngineExpr)
	v.SetDefault("rules.watch", false)
	v.SetDefault("analytics.enabled", false)
	v.SetDefault("analytics.channel", activity.DefaultChannel)
	v.SetDefault("analytics.sqlite_path", "")
	v.SetDefault("verbose", false)
}

// Init points v at the config file (or .arlaunch.yaml in the working and
// home directories) and enables ARLAUNCH_* overrides. A missing default
// config file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".arlaunch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	bindEnv(v)
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
	}
	return nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes v, with defaults applied, into a Config.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("config: listen must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.Rules.Engine)) {
	case "", arlaunch.EngineExpr, arlaunch.EngineCEL, arlaunch.EngineJS:
	default:
		return fmt.Errorf("config: unknown rules engine %q", c.Rules.Engine)
	}
	if c.Rules.Watch && strings.TrimSpace(c.Rules.File) == "" {
		return fmt.Errorf("config: rules.watch needs rules.file")
	}
	return nil
}

// LauncherSettings maps the config onto launcher settings.
func (c Config) LauncherSettings() arlaunch.Settings {
	return arlaunch.Settings{
		CDNURL:      strings.TrimSpace(c.CDNURL),
		FallbackURL: strings.TrimSpace(c.FallbackURL),
		Channel:     strings.TrimSpace(c.Analytics.Channel),
	}
}
