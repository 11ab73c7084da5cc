package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/goliatone/go-arlaunch"
	"github.com/goliatone/go-arlaunch/internal/config"
	"github.com/goliatone/go-arlaunch/internal/rulewatch"
	"github.com/goliatone/go-arlaunch/pkg/zaplog"
)

// app carries state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "arlaunch",
		Short:         "Launch native AR viewers for models, products and scenes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			_ = a.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./.arlaunch.yaml or $HOME/.arlaunch.yaml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	_ = a.v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(
		newServeCmd(a),
		newProbeCmd(a),
		newStateCmd(),
		newRulesCmd(),
	)
	return root
}

func (a *app) setup() error {
	if err := config.Init(a.v, a.cfgFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := zaplog.New(cfg.Verbose)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// rules returns the configured rules: the rules file when set, otherwise the
// built-in rules on the configured engine.
func (a *app) rules() (arlaunch.Rules, error) {
	if a.cfg.Rules.File != "" {
		return rulewatch.Load(a.cfg.Rules.File, a.cfg.Rules.Engine)
	}
	rules := arlaunch.DefaultRules()
	if a.cfg.Rules.Engine != "" {
		rules.Engine = a.cfg.Rules.Engine
	}
	return rules, nil
}

func (a *app) detector() (*arlaunch.Detector, error) {
	rules, err := a.rules()
	if err != nil {
		return nil, err
	}
	return arlaunch.NewDetector(
		arlaunch.WithRules(rules),
		arlaunch.WithRuleLogger(zaplog.RuleLogger(a.logger)),
	)
}
