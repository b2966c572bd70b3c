package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		inputs   map[string]any
		want     string
	}{
		{
			name:     "string value passes through",
			template: "Hello {{name}}",
			inputs:   map[string]any{"name": "Ada"},
			want:     "Hello Ada",
		},
		{
			name:     "slice renders as compact json",
			template: "Hello {{name}}, items: {{items}}",
			inputs:   map[string]any{"name": "A", "items": []int{1, 2}},
			want:     "Hello A, items: [1,2]",
		},
		{
			name:     "map renders as compact json",
			template: "data: {{payload}}",
			inputs:   map[string]any{"payload": map[string]any{"k": "v"}},
			want:     `data: {"k":"v"}`,
		},
		{
			name:     "missing key is left literal",
			template: "Hello {{name}}, from {{city}}",
			inputs:   map[string]any{"name": "Ada"},
			want:     "Hello Ada, from {{city}}",
		},
		{
			name:     "numeric and bool scalars",
			template: "{{count}} items, ready={{ready}}, score={{score}}",
			inputs:   map[string]any{"count": 3, "ready": true, "score": 4.5},
			want:     "3 items, ready=true, score=4.5",
		},
		{
			name:     "nil value renders empty",
			template: "value=[{{v}}]",
			inputs:   map[string]any{"v": nil},
			want:     "value=[]",
		},
		{
			name:     "repeated placeholder replaced everywhere",
			template: "{{x}} and {{x}}",
			inputs:   map[string]any{"x": "y"},
			want:     "y and y",
		},
		{
			name:     "nil inputs leave template untouched",
			template: "Hello {{name}}",
			inputs:   nil,
			want:     "Hello {{name}}",
		},
		{
			name:     "no placeholders",
			template: "static prompt",
			inputs:   map[string]any{"unused": "value"},
			want:     "static prompt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpolate(tt.template, tt.inputs))
		})
	}
}
