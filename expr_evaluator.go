package arlaunch

import (
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprEvaluatorOption configures NewExprEvaluator.
type ExprEvaluatorOption func(*evaluatorSettings)

// ExprWithProgramCache shares compiled expr programs through cache.
func ExprWithProgramCache(cache ProgramCache) ExprEvaluatorOption {
	return func(s *evaluatorSettings) { s.cache = cache }
}

// ExprWithFunctionRegistry exposes the registry's helpers to expr rules.
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprEvaluatorOption {
	return func(s *evaluatorSettings) { s.useRegistry(registry) }
}

// NewExprEvaluator evaluates rules with expr-lang/expr. Facts missing from a
// context read as nil.
func NewExprEvaluator(opts ...ExprEvaluatorOption) Evaluator {
	cfg := collectSettings(opts)

	compileOpts := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range cfg.registry.Names() {
		registry, fn := cfg.registry, name
		compileOpts = append(compileOpts, exprlang.Function(fn, func(args ...any) (any, error) {
			return registry.Call(fn, args...)
		}))
	}

	return &programEngine[*exprvm.Program]{
		name:  EngineExpr,
		cache: cfg.cache,
		compile: func(expression string) (*exprvm.Program, error) {
			return exprlang.Compile(expression, compileOpts...)
		},
		run: func(facts map[string]any, program *exprvm.Program) (any, error) {
			return exprlang.Run(program, facts)
		},
	}
}
