package executor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Interpolate replaces every {{key}} occurrence in the template with the
// string form of inputs[key]. Maps and slices are JSON-encoded, strings pass
// through unchanged, other scalars are stringified. Placeholders without a
// matching input key are left literally; an unresolved template is not an
// error.
func Interpolate(template string, inputs map[string]any) string {
	result := template
	for key, value := range inputs {
		placeholder := "{{" + key + "}}"
		result = strings.ReplaceAll(result, placeholder, stringify(value))
	}
	return result
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprintf("%v", v)
	default:
		// Objects and arrays render as compact JSON.
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
