package arlaunch

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"sync"
)

// ErrUnknownFunction is returned when a rule calls a helper nobody registered.
var ErrUnknownFunction = errors.New("arlaunch: unknown rule function")

var functionNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Function is a helper callable from capability rules.
type Function func(args ...any) (any, error)

// FunctionRegistry holds the helpers every rule engine exposes. Names are
// case sensitive identifiers and may not shadow a capability fact.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry returns an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: map[string]Function{}}
}

// DefaultFunctions returns a registry holding versionAtLeast and uaMatches.
func DefaultFunctions() *FunctionRegistry {
	registry := NewFunctionRegistry()
	_ = registry.Register("versionAtLeast", versionAtLeast)
	_ = registry.Register("uaMatches", newUAMatcher())
	return registry
}

// Register adds fn under name. Names are registered once.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	switch {
	case fn == nil:
		return fmt.Errorf("arlaunch: rule function %q is nil", name)
	case !functionNameRe.MatchString(name):
		return fmt.Errorf("arlaunch: rule function name %q is not an identifier", name)
	case slices.Contains(factNames, name):
		return fmt.Errorf("arlaunch: rule function %q shadows a capability fact", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = map[string]Function{}
	}
	if _, taken := r.functions[name]; taken {
		return fmt.Errorf("arlaunch: rule function %q registered twice", name)
	}
	r.functions[name] = fn
	return nil
}

// Clone copies the registry so later registrations do not leak between
// evaluators.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &FunctionRegistry{functions: maps.Clone(r.functions)}
}

// Call runs the helper registered under name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	var fn Function
	if r != nil {
		r.mu.RLock()
		fn = r.functions[name]
		r.mu.RUnlock()
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return fn(args...)
}

// Names lists the registered helpers in sorted order.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.functions))
}

// versionAtLeast(version, minimum) compares two integer-like values.
func versionAtLeast(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("versionAtLeast expects 2 arguments, got %d", len(args))
	}
	version, err := toInt64(args[0])
	if err != nil {
		return nil, fmt.Errorf("versionAtLeast: version: %w", err)
	}
	minimum, err := toInt64(args[1])
	if err != nil {
		return nil, fmt.Errorf("versionAtLeast: minimum: %w", err)
	}
	return version >= minimum, nil
}

// newUAMatcher builds uaMatches(ua, pattern), a case-insensitive regexp
// match with compiled patterns memoised.
func newUAMatcher() Function {
	var (
		mu       sync.Mutex
		compiled = map[string]*regexp.Regexp{}
	)
	return func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("uaMatches expects 2 arguments, got %d", len(args))
		}
		ua, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("uaMatches: user agent must be a string, got %T", args[0])
		}
		pattern, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("uaMatches: pattern must be a string, got %T", args[1])
		}

		mu.Lock()
		re, ok := compiled[pattern]
		if !ok {
			var err error
			re, err = regexp.Compile("(?i)" + pattern)
			if err != nil {
				mu.Unlock()
				return nil, fmt.Errorf("uaMatches: %w", err)
			}
			compiled[pattern] = re
		}
		mu.Unlock()
		return re.MatchString(ua), nil
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}
