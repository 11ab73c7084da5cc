//go:build js_eval

package arlaunch

import (
	"fmt"

	"github.com/dop251/goja"
)

// NewJSEvaluator evaluates rules as JavaScript expressions with goja. Each
// run gets a fresh runtime.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	cfg := collectSettings(opts)
	return &programEngine[*goja.Program]{
		name:  EngineJS,
		cache: cfg.cache,
		compile: func(expression string) (*goja.Program, error) {
			return goja.Compile("capability-rule", fmt.Sprintf("(function(){ return (%s); })()", expression), true)
		},
		run: func(facts map[string]any, program *goja.Program) (any, error) {
			vm := goja.New()
			for key, value := range facts {
				if err := vm.Set(key, value); err != nil {
					return nil, err
				}
			}
			for _, name := range cfg.registry.Names() {
				fn := name
				if err := vm.Set(fn, func(args ...any) (any, error) {
					return cfg.registry.Call(fn, args...)
				}); err != nil {
					return nil, err
				}
			}
			value, err := vm.RunProgram(program)
			if err != nil {
				return nil, err
			}
			return value.Export(), nil
		},
	}
}

func jsEvaluatorAvailable() bool { return true }
