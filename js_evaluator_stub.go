//go:build !js_eval

package arlaunch

// NewJSEvaluator returns nil without the js_eval build tag; NewEvaluator
// reports ErrEngineUnavailable for the js engine in that case.
func NewJSEvaluator(...JSEvaluatorOption) Evaluator {
	return nil
}

func jsEvaluatorAvailable() bool {
	return false
}
