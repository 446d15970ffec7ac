package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeNestedString(t *testing.T) {
	obj := map[string]interface{}{
		"metadata": map[string]interface{}{
			"name":   "web",
			"labels": map[string]interface{}{"app": "web"},
		},
		"replicas": int64(3),
	}

	tests := []struct {
		name   string
		obj    map[string]interface{}
		fields []string
		want   string
	}{
		{"present", obj, []string{"metadata", "name"}, "web"},
		{"missing path", obj, []string{"metadata", "namespace"}, ""},
		{"wrong type", obj, []string{"replicas"}, ""},
		{"not a leaf", obj, []string{"metadata", "labels"}, ""},
		{"nil object", nil, []string{"metadata", "name"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeNestedString(tt.obj, tt.fields...))
		})
	}
}

func TestSafeStringFromMap(t *testing.T) {
	m := map[string]interface{}{
		"kind":     "Deployment",
		"replicas": 3,
	}

	assert.Equal(t, "Deployment", SafeStringFromMap(m, "kind"))
	assert.Equal(t, "", SafeStringFromMap(m, "replicas"))
	assert.Equal(t, "", SafeStringFromMap(m, "missing"))
	assert.Equal(t, "", SafeStringFromMap(nil, "kind"))
}
