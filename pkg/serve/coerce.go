package serve

import "github.com/plugkit/plugkit/pkg/extension"

// CoerceInputs types an untyped request payload against the node's
// declared input slots. Mapping-shaped values in file-typed slots
// become structured file references, element-wise for lists. Values
// that do not coerce, declared non-file slots, and payload keys with
// no declared slot all pass through verbatim — coercion is total and
// never rejects an input; shape enforcement belongs to the node's own
// invocation logic.
func CoerceInputs(node *extension.Node, payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}

	fileSlots := make(map[string]bool, len(node.Inputs))
	for _, in := range node.Inputs {
		if in.Type == extension.InputTypeFile {
			fileSlots[in.Name] = true
		}
	}

	typed := make(map[string]any, len(payload))
	for key, val := range payload {
		if !fileSlots[key] {
			typed[key] = val
			continue
		}
		typed[key] = coerceFileValue(val)
	}
	return typed
}

// coerceFileValue converts a single file-slot value: a map becomes a
// *File, a list is coerced element-wise, anything else is returned
// unchanged.
func coerceFileValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		if f, ok := extension.FileFromMap(v); ok {
			return f
		}
		return val
	case []any:
		coerced := make([]any, len(v))
		for i, elem := range v {
			coerced[i] = coerceFileValue(elem)
		}
		return coerced
	default:
		return val
	}
}
