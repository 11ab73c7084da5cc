package arlaunch

import "time"

// RuleLogEvent describes one capability rule evaluation.
type RuleLogEvent struct {
	Engine   string
	Rule     string
	Expr     string
	Result   bool
	Duration time.Duration
	Err      error
}

// RuleLogger records capability rule evaluations.
type RuleLogger interface {
	LogRule(RuleLogEvent)
}

// RuleLoggerFunc adapts a function to RuleLogger.
type RuleLoggerFunc func(RuleLogEvent)

// LogRule implements RuleLogger.
func (f RuleLoggerFunc) LogRule(event RuleLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopRuleLogger struct{}

func (noopRuleLogger) LogRule(RuleLogEvent) {}

// Launch phases reported to a LaunchLogger.
const (
	PhaseInit      = "init"
	PhaseStart     = "start"
	PhaseAnalytics = "analytics"
)

// LaunchLogEvent describes a launcher phase outcome.
type LaunchLogEvent struct {
	Phase    string
	Launcher string
	Target   Target
	Viewer   ViewerKind
	ModelURL string
	Duration time.Duration
	Err      error
}

// LaunchLogger records launcher phases.
type LaunchLogger interface {
	LogLaunch(LaunchLogEvent)
}

// LaunchLoggerFunc adapts a function to LaunchLogger.
type LaunchLoggerFunc func(LaunchLogEvent)

// LogLaunch implements LaunchLogger.
func (f LaunchLoggerFunc) LogLaunch(event LaunchLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLaunchLogger struct{}

func (noopLaunchLogger) LogLaunch(LaunchLogEvent) {}
