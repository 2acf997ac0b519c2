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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// WorkflowCmd groups workflow inspection subcommands, both of which talk
// to hnscd's HTTP surface rather than touching the engine directly, since
// a running daemon owns the only live workflow.Engine.
type WorkflowCmd struct {
	Status WorkflowStatusCmd `cmd:"" help:"Print a workflow's current snapshot."`
	Cancel WorkflowCancelCmd `cmd:"" help:"Cancel a running workflow."`
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func daemonRequest(method, addr, path string, query url.Values) (*http.Response, error) {
	u := addr + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call hnscd at %s: %w", addr, err)
	}
	return resp, nil
}

// WorkflowStatusCmd fetches and prints a workflow handle's snapshot.
type WorkflowStatusCmd struct {
	Handle string `help:"Workflow handle." required:""`
}

func (c *WorkflowStatusCmd) Run(cli *CLI) error {
	resp, err := daemonRequest(http.MethodGet, cli.DaemonAddr, "/workflow_status", url.Values{"handle": {c.Handle}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hnscd returned %d: %s", resp.StatusCode, body)
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}

// WorkflowCancelCmd requests cancellation of a running workflow.
type WorkflowCancelCmd struct {
	Handle string `help:"Workflow handle." required:""`
}

func (c *WorkflowCancelCmd) Run(cli *CLI) error {
	resp, err := daemonRequest(http.MethodPost, cli.DaemonAddr, "/cancel", url.Values{"handle": {c.Handle}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("hnscd returned %d: %s", resp.StatusCode, body)
	}
	fmt.Printf("workflow %s: cancellation requested\n", c.Handle)
	return nil
}
