package wampc

// CallResult is what a MethodHandler answers an invocation with: a YIELD
// carrying Args and Kwargs, or an ERROR when Err is set.
type CallResult struct {
	Args   []interface{}
	Kwargs map[string]interface{}
	Err    URI
}

// ValueResult yields a single positional value.
func ValueResult(value interface{}) *CallResult {
	return &CallResult{Args: []interface{}{value}}
}

func SliceResult(slice []interface{}) *CallResult {
	return &CallResult{Args: slice}
}

func MapResult(mapValue map[string]interface{}) *CallResult {
	return &CallResult{Kwargs: mapValue}
}

func SimpleErrorResult(err URI) *CallResult {
	return &CallResult{Err: err}
}

func ErrorResult(err URI, args []interface{}, kwargs map[string]interface{}) *CallResult {
	return &CallResult{
		Args:   args,
		Kwargs: kwargs,
		Err:    err,
	}
}
