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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowStatusCmd_PrintsSnapshotOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workflow_status", r.URL.Path)
		assert.Equal(t, "wf-123", r.URL.Query().Get("handle"))
		w.Write([]byte(`{"status":"running"}`))
	}))
	defer srv.Close()

	cli := &CLI{DaemonAddr: srv.URL}
	cmd := WorkflowStatusCmd{Handle: "wf-123"}
	require.NoError(t, cmd.Run(cli))
}

func TestWorkflowStatusCmd_ErrorsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown workflow handle", http.StatusNotFound)
	}))
	defer srv.Close()

	cli := &CLI{DaemonAddr: srv.URL}
	cmd := WorkflowStatusCmd{Handle: "missing"}
	assert.Error(t, cmd.Run(cli))
}

func TestWorkflowCancelCmd_SucceedsOnOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "wf-123", r.URL.Query().Get("handle"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cli := &CLI{DaemonAddr: srv.URL}
	cmd := WorkflowCancelCmd{Handle: "wf-123"}
	require.NoError(t, cmd.Run(cli))
}
