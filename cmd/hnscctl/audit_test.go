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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hnsc/internal/audit"
)

func seedStream(t *testing.T, dir, stream string, events []audit.Event) {
	t.Helper()
	sink := audit.New(audit.NewFileWriterFactory(dir), nil, nil)
	require.NoError(t, sink.Open(stream))
	for _, ev := range events {
		_, err := sink.Append(context.Background(), stream, ev.Category, ev.ActorID, ev.RequestID, ev.Fields)
		require.NoError(t, err)
	}
	require.NoError(t, sink.Close())
}

func TestAuditTailCmd_PrintsTrailingEvents(t *testing.T) {
	dir := t.TempDir()
	seedStream(t, dir, "requests", []audit.Event{
		{Category: "submitted", ActorID: "a1", RequestID: "r1", Fields: map[string]any{"x": 1}},
		{Category: "completed", ActorID: "a1", RequestID: "r1", Fields: map[string]any{"x": 2}},
	})

	cli := &CLI{Audit: AuditCmd{Dir: dir}}
	cmd := AuditTailCmd{Stream: "requests", Lines: 1}
	require.NoError(t, cmd.Run(cli))
}

func TestAuditVerifyCmd_PassesOnIntactChain(t *testing.T) {
	dir := t.TempDir()
	seedStream(t, dir, "policy", []audit.Event{
		{Category: "policy_denied", ActorID: "a1", RequestID: "r1", Fields: map[string]any{"reason": "ingress"}},
	})

	cli := &CLI{Audit: AuditCmd{Dir: dir}}
	cmd := AuditVerifyCmd{Stream: "policy"}
	require.NoError(t, cmd.Run(cli))
}

func TestAuditVerifyCmd_FailsOnTamperedLine(t *testing.T) {
	dir := t.TempDir()
	seedStream(t, dir, "policy", []audit.Event{
		{Category: "policy_denied", ActorID: "a1", RequestID: "r1", Fields: map[string]any{"reason": "ingress"}},
	})

	path := filepath.Join(dir, "policy.ndjson")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := []byte(string(raw) + `{"seq":2,"category":"tampered","hash":"deadbeef","prev_hash":"deadbeef"}` + "\n")
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	cli := &CLI{Audit: AuditCmd{Dir: dir}}
	cmd := AuditVerifyCmd{Stream: "policy"}
	assert.Error(t, cmd.Run(cli))
}
