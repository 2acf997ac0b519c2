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

package pluginhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kadirpekel/hnsc/internal/hnsc"
)

// ToolHandlerAdapter exposes a Launcher as an hnsc.Handler, so an external
// plugin process can be registered in the tool registry like any other
// handler.
type ToolHandlerAdapter struct {
	launcher *Launcher
}

// NewToolHandlerAdapter wraps an already-launched plugin process.
func NewToolHandlerAdapter(l *Launcher) *ToolHandlerAdapter {
	return &ToolHandlerAdapter{launcher: l}
}

func (a *ToolHandlerAdapter) Kind() hnsc.HandlerKind { return hnsc.HandlerSync }

func (a *ToolHandlerAdapter) Invoke(_ context.Context, call *hnsc.ToolCall, audit hnsc.AuditHandle) (json.RawMessage, error) {
	out, err := a.launcher.Invoke(call.Arguments)
	if err != nil {
		if audit != nil {
			audit.Note("plugin_tool_call_failed", map[string]any{"tool": call.ToolName, "error": err.Error()})
		}
		return nil, fmt.Errorf("pluginhandler: invoke %q: %w", call.ToolName, err)
	}
	return out, nil
}
