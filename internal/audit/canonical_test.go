package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize_KeyOrderIndependent(t *testing.T) {
	a := canonicalize(map[string]any{"b": 1, "a": 2, "c": 3})
	b := canonicalize(map[string]any{"c": 3, "a": 2, "b": 1})
	assert.Equal(t, a, b)
}

func TestCanonicalize_FloatFormattingStable(t *testing.T) {
	got := canonicalize(map[string]any{"score": 0.7})
	assert.Contains(t, string(got), `"score":0.7`)

	got = canonicalize(map[string]any{"score": 100.0})
	assert.Contains(t, string(got), `"score":100`)
}

func TestCanonicalize_NestedStructures(t *testing.T) {
	a := canonicalize(map[string]any{
		"nested": map[string]any{"y": 2, "x": 1},
		"list":   []any{1, "two", true},
	})
	b := canonicalize(map[string]any{
		"list":   []any{1, "two", true},
		"nested": map[string]any{"x": 1, "y": 2},
	})
	assert.Equal(t, a, b)
}

func TestCanonicalize_StringEscaping(t *testing.T) {
	got := canonicalize(map[string]any{"msg": "a \"quoted\" \\ value\nline2"})
	assert.Contains(t, string(got), `\"quoted\"`)
	assert.Contains(t, string(got), `\\`)
	assert.Contains(t, string(got), `\n`)
}

func TestCanonicalize_EmptyAndNil(t *testing.T) {
	assert.Equal(t, []byte("{}"), canonicalize(nil))
	assert.Equal(t, []byte("{}"), canonicalize(map[string]any{}))

	got := canonicalize(map[string]any{"v": nil})
	assert.Equal(t, `{"v":null}`, string(got))
}
