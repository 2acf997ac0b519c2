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

// Package toolregistry holds the authoritative set of Tools a Controller
// may invoke: in-process handlers, MCP-sourced tools, and externally
// dispatched plugin handlers, all behind one schema-validating registry.
package toolregistry

import (
	"fmt"
	"sync"

	"github.com/kadirpekel/hnsc/internal/hnsc"
)

// Registry is the generic name -> item store every other registry in this
// codebase is built from.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewRegistry constructs an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

func (r *Registry[T]) Register(name string, item T) error {
	if name == "" {
		return fmt.Errorf("toolregistry: name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[name]; exists {
		return fmt.Errorf("toolregistry: %q already registered", name)
	}
	r.items[name] = item
	return nil
}

func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[name]
	return item, ok
}

func (r *Registry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]T, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	return items
}

func (r *Registry[T]) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[name]; !exists {
		return fmt.Errorf("toolregistry: %q not found", name)
	}
	delete(r.items, name)
	return nil
}

func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// ToolRegistry is the Registry specialized to hnsc.Tool, with schema
// validation folded into registration and dispatch.
type ToolRegistry struct {
	inner *Registry[*hnsc.Tool]
}

// NewToolRegistry builds an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{inner: NewRegistry[*hnsc.Tool]()}
}

// Register validates that the tool's declared input/output schemas are
// themselves well-formed JSON Schema documents before admitting it.
func (tr *ToolRegistry) Register(t *hnsc.Tool) error {
	if t.Name == "" {
		return fmt.Errorf("toolregistry: tool name cannot be empty")
	}
	if len(t.InputSchema) > 0 {
		if _, err := compileSchema(t.InputSchema); err != nil {
			return fmt.Errorf("toolregistry: invalid input schema for %q: %w", t.Name, err)
		}
	}
	if len(t.OutputSchema) > 0 {
		if _, err := compileSchema(t.OutputSchema); err != nil {
			return fmt.Errorf("toolregistry: invalid output schema for %q: %w", t.Name, err)
		}
	}
	return tr.inner.Register(t.Name, t)
}

func (tr *ToolRegistry) Get(name string) (*hnsc.Tool, bool) { return tr.inner.Get(name) }
func (tr *ToolRegistry) List() []*hnsc.Tool                 { return tr.inner.List() }
func (tr *ToolRegistry) Remove(name string) error           { return tr.inner.Remove(name) }
func (tr *ToolRegistry) Count() int                         { return tr.inner.Count() }

// ForScope returns the registered tools that carry the given scope tag.
func (tr *ToolRegistry) ForScope(tag hnsc.ScopeTag) []*hnsc.Tool {
	var out []*hnsc.Tool
	for _, t := range tr.inner.List() {
		if t.HasScope(tag) {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks call.Arguments against the tool's input schema. It
// reports a schema mismatch as an error; callers treat this as a
// caller-side validation failure, never a tool execution failure.
func (tr *ToolRegistry) Validate(call *hnsc.ToolCall) error {
	t, ok := tr.Get(call.ToolName)
	if !ok {
		return fmt.Errorf("toolregistry: unknown tool %q", call.ToolName)
	}
	if len(t.InputSchema) == 0 {
		return nil
	}
	return validatePayload(call.Arguments, t.InputSchema)
}
