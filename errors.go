package arlaunch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-arlaunch/pkg/composer"
	"github.com/goliatone/go-arlaunch/pkg/configurator"
)

var (
	// ErrCapabilityUnavailable reports that the runtime cannot perform any AR
	// mechanism, or not the one the content requires.
	ErrCapabilityUnavailable = errors.New("arlaunch: capability unavailable")
	// ErrUnsupportedFormat reports that the target lacks a file variant the
	// current platform can consume.
	ErrUnsupportedFormat = errors.New("arlaunch: unsupported format")
	// ErrMissingTarget reports that a referenced id does not resolve.
	ErrMissingTarget = errors.New("arlaunch: missing target")
	// ErrNotInitialized reports lifecycle misuse: Start without a successful Init.
	ErrNotInitialized = errors.New("arlaunch: launcher not initialized")

	// ErrCompositionFailure matches every remote composition failure.
	ErrCompositionFailure = composer.ErrCompositionFailure
	// ErrDecodeFailure is only surfaced by configurator.DecodeStrict; Decode
	// recovers with an empty state.
	ErrDecodeFailure = configurator.ErrDecodeFailure

	// ErrEngineUnavailable reports an unknown rule engine or one compiled out.
	ErrEngineUnavailable = errors.New("arlaunch: rule engine unavailable")
)

// LaunchError names the failing launcher operation and the offending input.
type LaunchError struct {
	Op       string
	Launcher string
	Input    string
	Err      error
}

func (e *LaunchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("arlaunch: %s %s launcher %s: %v", e.Op, e.Launcher, describeInput(e.Input), e.Err)
}

func (e *LaunchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeInput(input string) string {
	if input == "" {
		return "input=<empty>"
	}
	return fmt.Sprintf("input=%q", input)
}

func wrapLaunchError(op, launcher, input string, err error) error {
	if err == nil {
		return nil
	}

	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		if launchErr.Op == "" {
			launchErr.Op = op
		}
		if launchErr.Launcher == "" {
			launchErr.Launcher = launcher
		}
		if launchErr.Input == "" {
			launchErr.Input = input
		}
		return launchErr
	}

	return &LaunchError{
		Op:       op,
		Launcher: launcher,
		Input:    input,
		Err:      err,
	}
}

// EvaluationError captures rule evaluation metadata alongside the
// originating error.
type EvaluationError struct {
	Engine string
	Rule   string
	Expr   string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	rule := e.Rule
	if rule == "" {
		rule = "<adhoc>"
	}
	return fmt.Sprintf("arlaunch: %s evaluator rule=%s %s: %v", e.Engine, rule, describeExpression(e.Expr), e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "arlaunch:") {
		return err
	}
	return fmt.Errorf("arlaunch: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, rule, expr string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Rule == "" {
			evalErr.Rule = rule
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		return evalErr
	}

	return &EvaluationError{
		Engine: engine,
		Rule:   rule,
		Expr:   expr,
		Err:    err,
	}
}
