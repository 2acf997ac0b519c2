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

// Package pluginhandler dispatches Tool invocations to an external process
// over the hashicorp/go-plugin net/rpc protocol, for handlers that cannot
// or should not run in the controller's process (untrusted code, a
// different language runtime, a heavyweight native dependency).
package pluginhandler

import (
	"encoding/json"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// Handshake identifies this process family to go-plugin; both host and
// plugin binaries must agree on it exactly.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "HNSC_TOOL_PLUGIN",
	MagicCookieValue: "hnsc_tool_plugin_v1",
}

const pluginName = "toolhandler"

// ToolHandler is the interface an external plugin binary implements. args
// and the return value are opaque JSON payloads, matching the Tool
// Handler.Invoke contract at the process boundary.
type ToolHandler interface {
	Invoke(args json.RawMessage) (json.RawMessage, error)
}

// Plugin adapts ToolHandler to go-plugin's net/rpc Plugin interface.
type Plugin struct {
	Impl ToolHandler
}

func (p *Plugin) Server(*goplugin.MuxBroker) (any, error) {
	return &rpcServer{impl: p.Impl}, nil
}

func (p *Plugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &rpcClient{client: c}, nil
}

type rpcServer struct {
	impl ToolHandler
}

func (s *rpcServer) Invoke(args json.RawMessage, resp *json.RawMessage) error {
	out, err := s.impl.Invoke(args)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

type rpcClient struct {
	client *rpc.Client
}

func (c *rpcClient) Invoke(args json.RawMessage) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.client.Call("Plugin.Invoke", args, &resp); err != nil {
		return nil, fmt.Errorf("pluginhandler: rpc call: %w", err)
	}
	return resp, nil
}

// Serve blocks, running a plugin server that dispenses impl. Call this
// from an external plugin binary's main().
func Serve(impl ToolHandler) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			pluginName: &Plugin{Impl: impl},
		},
	})
}

// Launcher starts and owns the lifecycle of an external plugin process.
type Launcher struct {
	path   string
	client *goplugin.Client
	handle ToolHandler
}

// Launch starts the plugin binary at path and dispenses its ToolHandler.
func Launch(path string) (*Launcher, error) {
	logger := hclog.New(&hclog.LoggerOptions{Name: "hnsc-plugin", Level: hclog.Warn})

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          map[string]goplugin.Plugin{pluginName: &Plugin{}},
		Cmd:              exec.Command(path),
		Logger:           logger,
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("pluginhandler: connect to %s: %w", path, err)
	}

	raw, err := rpcClient.Dispense(pluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("pluginhandler: dispense %s: %w", path, err)
	}

	handle, ok := raw.(ToolHandler)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("pluginhandler: %s does not implement ToolHandler", path)
	}

	return &Launcher{path: path, client: client, handle: handle}, nil
}

// Invoke forwards args to the plugin process and returns its response.
func (l *Launcher) Invoke(args json.RawMessage) (json.RawMessage, error) {
	return l.handle.Invoke(args)
}

// Close terminates the plugin process.
func (l *Launcher) Close() {
	l.client.Kill()
}
