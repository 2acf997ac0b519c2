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

// Command hnscctl is the administrative companion to hnscd: it publishes
// and migrates policy manifests in etcd, tails and verifies the audit
// log, and inspects/cancels running workflows over hnscd's HTTP API.
//
// Usage:
//
//	hnscctl policy migrate --to-version 3
//	hnscctl audit tail --stream requests
//	hnscctl workflow status --handle <handle>
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI defines hnscctl's command-line surface.
type CLI struct {
	Policy   PolicyCmd   `cmd:"" help:"Manage versioned policy manifests in etcd."`
	Audit    AuditCmd    `cmd:"" help:"Inspect the hash-chained audit log."`
	Workflow WorkflowCmd `cmd:"" help:"Inspect or cancel running workflows."`

	DaemonAddr string `help:"hnscd HTTP address." default:"http://localhost:8090"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, kong.Name("hnscctl"), kong.Description("Administrative tool for the HNSC daemon"))
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "hnscctl:", err)
		os.Exit(1)
	}
}
