// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package toolregistry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hnsc/internal/hnsc"
)

type noopHandler struct{}

func (noopHandler) Kind() hnsc.HandlerKind { return hnsc.HandlerSync }
func (noopHandler) Invoke(context.Context, *hnsc.ToolCall, hnsc.AuditHandle) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func sampleTool(name string) *hnsc.Tool {
	return &hnsc.Tool{
		Name:        name,
		ScopeTags:   map[hnsc.ScopeTag]struct{}{"general": {}},
		InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
		Handler:     noopHandler{},
	}
}

func TestToolRegistry_RegisterAndGet(t *testing.T) {
	tr := NewToolRegistry()
	require.NoError(t, tr.Register(sampleTool("search")))

	got, ok := tr.Get("search")
	require.True(t, ok)
	assert.Equal(t, "search", got.Name)
}

func TestToolRegistry_DuplicateNameRejected(t *testing.T) {
	tr := NewToolRegistry()
	require.NoError(t, tr.Register(sampleTool("search")))
	err := tr.Register(sampleTool("search"))
	assert.Error(t, err)
}

func TestToolRegistry_InvalidInputSchemaRejectedAtRegistration(t *testing.T) {
	tr := NewToolRegistry()
	tool := sampleTool("broken")
	tool.InputSchema = json.RawMessage(`{"type": 123}`)
	err := tr.Register(tool)
	assert.Error(t, err)
}

func TestToolRegistry_ForScopeFiltersByTag(t *testing.T) {
	tr := NewToolRegistry()
	require.NoError(t, tr.Register(sampleTool("search")))

	other := sampleTool("admin_only")
	other.ScopeTags = map[hnsc.ScopeTag]struct{}{"debug": {}}
	require.NoError(t, tr.Register(other))

	tools := tr.ForScope("general")
	require.Len(t, tools, 1)
	assert.Equal(t, "search", tools[0].Name)
}

func TestToolRegistry_ValidateAcceptsWellFormedArguments(t *testing.T) {
	tr := NewToolRegistry()
	require.NoError(t, tr.Register(sampleTool("search")))

	call := &hnsc.ToolCall{ToolName: "search", Arguments: json.RawMessage(`{"query":"hello"}`)}
	assert.NoError(t, tr.Validate(call))
}

func TestToolRegistry_ValidateRejectsMissingRequiredField(t *testing.T) {
	tr := NewToolRegistry()
	require.NoError(t, tr.Register(sampleTool("search")))

	call := &hnsc.ToolCall{ToolName: "search", Arguments: json.RawMessage(`{}`)}
	assert.Error(t, tr.Validate(call))
}

func TestToolRegistry_ValidateRejectsUnknownTool(t *testing.T) {
	tr := NewToolRegistry()
	call := &hnsc.ToolCall{ToolName: "nonexistent", Arguments: json.RawMessage(`{}`)}
	assert.Error(t, tr.Validate(call))
}

func TestToolRegistry_RemoveAndCount(t *testing.T) {
	tr := NewToolRegistry()
	require.NoError(t, tr.Register(sampleTool("search")))
	assert.Equal(t, 1, tr.Count())

	require.NoError(t, tr.Remove("search"))
	assert.Equal(t, 0, tr.Count())
	assert.Error(t, tr.Remove("search"))
}
