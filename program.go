package arlaunch

import (
	"errors"
	"strings"
)

var errEmptyExpression = errors.New("expression must not be empty")

// programEngine turns expressions into programs of type P once, through the
// shared cache, and runs them per launch. Each rule engine only supplies the
// compile and run steps.
type programEngine[P any] struct {
	name    string
	cache   ProgramCache
	compile func(expression string) (P, error)
	run     func(facts map[string]any, program P) (any, error)
}

// Evaluate compiles expression, or takes it from the cache, and runs it.
func (e *programEngine[P]) Evaluate(ctx RuleContext, expression string) (any, error) {
	rule, err := e.Compile(expression)
	if err != nil {
		return nil, err
	}
	return rule.Evaluate(ctx)
}

// Compile returns expression as a reusable rule.
func (e *programEngine[P]) Compile(expression string) (CompiledRule, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, wrapEvaluatorError(e.name, errEmptyExpression)
	}
	key := cacheKey(e.name, expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(P); ok {
				return &compiledProgram[P]{engine: e, expression: expression, program: program}, nil
			}
		}
	}
	program, err := e.compile(expression)
	if err != nil {
		return nil, wrapEvaluationError(e.name, "", expression, err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return &compiledProgram[P]{engine: e, expression: expression, program: program}, nil
}

func (e *programEngine[P]) engine() string { return e.name }

type compiledProgram[P any] struct {
	engine     *programEngine[P]
	expression string
	program    P
}

func (r *compiledProgram[P]) Evaluate(ctx RuleContext) (any, error) {
	value, err := r.engine.run(ctx.withDefaults().Facts, r.program)
	if err != nil {
		return nil, wrapEvaluationError(r.engine.name, "", r.expression, err)
	}
	return value, nil
}
