package arlaunch

import (
	"fmt"
	"strings"
	"sync"
)

// Rule engines understood by NewEvaluator.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// RuleContext carries the facts a capability rule is evaluated against.
type RuleContext struct {
	Facts map[string]any
}

func (ctx RuleContext) withDefaults() RuleContext {
	if ctx.Facts == nil {
		ctx.Facts = map[string]any{}
	}
	return ctx
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// ProgramCache stores compiled programs keyed by engine and expression. It
// never stores answers.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// NewProgramCache returns an unbounded ProgramCache safe for concurrent use.
func NewProgramCache() ProgramCache {
	return &programCache{programs: map[string]any{}}
}

type programCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

func (c *programCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.programs[key]
	return value, ok
}

func (c *programCache) Set(key string, value any) {
	c.mu.Lock()
	c.programs[key] = value
	c.mu.Unlock()
}

func cacheKey(engine, expression string) string {
	return engine + ":" + expression
}

// NewEvaluator builds the evaluator for engine ("" selects expr). The js
// engine is only available in builds tagged js_eval.
func NewEvaluator(engine string, registry *FunctionRegistry, cache ProgramCache) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineExpr:
		return NewExprEvaluator(ExprWithFunctionRegistry(registry), ExprWithProgramCache(cache)), nil
	case EngineCEL:
		return NewCELEvaluator(CELWithFunctionRegistry(registry), CELWithProgramCache(cache)), nil
	case EngineJS:
		evaluator := NewJSEvaluator(JSWithFunctionRegistry(registry), JSWithProgramCache(cache))
		if evaluator == nil {
			return nil, fmt.Errorf("%w: %q requires the js_eval build tag", ErrEngineUnavailable, engine)
		}
		return evaluator, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrEngineUnavailable, engine)
	}
}

func evaluatorEngineName(e Evaluator) string {
	if named, ok := e.(interface{ engine() string }); ok {
		return named.engine()
	}
	if e == nil {
		return "unknown"
	}
	return "custom"
}

// evaluatorSettings is what every engine's options configure.
type evaluatorSettings struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

func (s *evaluatorSettings) useRegistry(registry *FunctionRegistry) {
	if registry != nil {
		s.registry = registry.Clone()
	}
}

func collectSettings[O ~func(*evaluatorSettings)](opts []O) evaluatorSettings {
	var s evaluatorSettings
	for _, opt := range opts {
		if fn := (func(*evaluatorSettings))(opt); fn != nil {
			fn(&s)
		}
	}
	return s
}

// JSEvaluatorOption configures the goja evaluator. The options exist in every
// build so callers compile without the js_eval tag.
type JSEvaluatorOption func(*evaluatorSettings)

// JSWithProgramCache wires a ProgramCache into the JS evaluator.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(s *evaluatorSettings) { s.cache = cache }
}

// JSWithFunctionRegistry wires a FunctionRegistry into the JS evaluator.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(s *evaluatorSettings) { s.useRegistry(registry) }
}
