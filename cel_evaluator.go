package arlaunch

import (
	"maps"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELEvaluatorOption configures NewCELEvaluator.
type CELEvaluatorOption func(*evaluatorSettings)

// CELWithProgramCache shares compiled CEL programs through cache.
func CELWithProgramCache(cache ProgramCache) CELEvaluatorOption {
	return func(s *evaluatorSettings) { s.cache = cache }
}

// CELWithFunctionRegistry exposes the registry's helpers to CEL rules.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEvaluatorOption {
	return func(s *evaluatorSettings) { s.useRegistry(registry) }
}

// NewCELEvaluator evaluates rules with cel-go. Every capability fact is
// declared as a dyn variable; registry functions are exposed with one to
// three dyn arguments.
func NewCELEvaluator(opts ...CELEvaluatorOption) Evaluator {
	cfg := collectSettings(opts)
	return &programEngine[celgo.Program]{
		name:  EngineCEL,
		cache: cfg.cache,
		compile: func(expression string) (celgo.Program, error) {
			env, err := celEnv(cfg.registry)
			if err != nil {
				return nil, err
			}
			ast, issues := env.Compile(expression)
			if issues != nil && issues.Err() != nil {
				return nil, issues.Err()
			}
			return env.Program(ast)
		},
		run: func(facts map[string]any, program celgo.Program) (any, error) {
			activation := make(map[string]any, len(factNames)+len(facts))
			for _, name := range factNames {
				activation[name] = nil
			}
			maps.Copy(activation, facts)
			out, _, err := program.Eval(activation)
			if err != nil {
				return nil, err
			}
			return out.Value(), nil
		},
	}
}

func celEnv(registry *FunctionRegistry) (*celgo.Env, error) {
	names := registry.Names()
	opts := make([]celgo.EnvOption, 0, len(factNames)+len(names))
	for _, name := range factNames {
		opts = append(opts, celgo.Variable(name, celgo.DynType))
	}
	for _, name := range names {
		opts = append(opts, celgo.Function(name, celOverloads(registry, name)...))
	}
	return celgo.NewEnv(opts...)
}

func celOverloads(registry *FunctionRegistry, name string) []celgo.FunctionOpt {
	call := func(values ...ref.Val) ref.Val {
		args := make([]any, len(values))
		for i, value := range values {
			args[i] = value.Value()
		}
		result, err := registry.Call(name, args...)
		switch {
		case err != nil:
			return types.NewErr("%s", err.Error())
		case result == nil:
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
	dyn := celgo.DynType
	return []celgo.FunctionOpt{
		celgo.Overload(name+"_dyn1", []*celgo.Type{dyn}, dyn,
			celgo.UnaryBinding(func(arg ref.Val) ref.Val { return call(arg) })),
		celgo.Overload(name+"_dyn2", []*celgo.Type{dyn, dyn}, dyn,
			celgo.BinaryBinding(func(lhs, rhs ref.Val) ref.Val { return call(lhs, rhs) })),
		celgo.Overload(name+"_dyn3", []*celgo.Type{dyn, dyn, dyn}, dyn,
			celgo.FunctionBinding(call)),
	}
}
