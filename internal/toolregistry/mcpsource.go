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
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/hnsc/internal/hnsc"
)

// MCPSourceConfig configures a stdio-transport MCP server as a tool source.
type MCPSourceConfig struct {
	Command   string
	Args      []string
	Env       map[string]string
	ScopeTags []hnsc.ScopeTag
}

// LoadMCPTools connects to an MCP server over stdio, lists its tools, and
// returns each as an hnsc.Tool backed by an mcpHandler. The connection is
// kept open for the lifetime of the returned tools' handlers; callers
// should arrange for Close to run at shutdown.
func LoadMCPTools(ctx context.Context, cfg MCPSourceConfig) ([]*hnsc.Tool, func() error, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, nil, fmt.Errorf("toolregistry: create MCP client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("toolregistry: start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "hnscd", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("toolregistry: initialize MCP session: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("toolregistry: list MCP tools: %w", err)
	}

	scopes := make(map[hnsc.ScopeTag]struct{}, len(cfg.ScopeTags))
	for _, s := range cfg.ScopeTags {
		scopes[s] = struct{}{}
	}

	tools := make([]*hnsc.Tool, 0, len(listResp.Tools))
	for _, mt := range listResp.Tools {
		schema, err := json.Marshal(mt.InputSchema)
		if err != nil {
			schema = nil
		}
		tools = append(tools, &hnsc.Tool{
			Name:            mt.Name,
			ScopeTags:       scopes,
			InputSchema:     schema,
			Handler:         &mcpHandler{client: mcpClient, toolName: mt.Name},
			Idempotent:      false,
			SideEffectClass: hnsc.SideEffectWrite,
			RiskWeight:      0.5,
		})
	}

	return tools, mcpClient.Close, nil
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// mcpHandler dispatches a ToolCall to a connected MCP server over stdio.
type mcpHandler struct {
	client   *client.Client
	toolName string
}

func (h *mcpHandler) Kind() hnsc.HandlerKind { return hnsc.HandlerSync }

func (h *mcpHandler) Invoke(ctx context.Context, call *hnsc.ToolCall, audit hnsc.AuditHandle) (json.RawMessage, error) {
	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, fmt.Errorf("mcp handler: decode arguments: %w", err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = h.toolName
	req.Params.Arguments = args

	resp, err := h.client.CallTool(ctx, req)
	if err != nil {
		if audit != nil {
			audit.Note("mcp_tool_call_failed", map[string]any{"tool": h.toolName, "error": err.Error()})
		}
		return nil, fmt.Errorf("mcp handler: call %q: %w", h.toolName, err)
	}

	if resp.IsError {
		msg := "unknown MCP tool error"
		for _, c := range resp.Content {
			if tc, ok := c.(mcp.TextContent); ok {
				msg = tc.Text
				break
			}
		}
		return nil, fmt.Errorf("mcp handler: %q reported an error: %s", h.toolName, msg)
	}

	var texts []string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}

	var payload any
	switch len(texts) {
	case 0:
		payload = map[string]any{}
	case 1:
		payload = map[string]any{"result": texts[0]}
	default:
		payload = map[string]any{"results": texts}
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mcp handler: encode result: %w", err)
	}
	return out, nil
}
