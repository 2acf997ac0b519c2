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
	"encoding/json"
	"net"
	"net/rpc"
	"testing"

	"github.com/stretchr/testify/require"
)

type echoToolHandler struct{}

func (echoToolHandler) Invoke(args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

// TestRPCServerClient_RoundTripsInvoke exercises the net/rpc server/client
// pair go-plugin wraps, over a real in-process listener, without spawning
// an external plugin binary.
func TestRPCServerClient_RoundTripsInvoke(t *testing.T) {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("Plugin", &rpcServer{impl: echoToolHandler{}}))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	go server.Accept(lis)

	conn, err := net.Dial("tcp", lis.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	client := rpc.NewClient(conn)
	defer client.Close()

	rc := &rpcClient{client: client}
	resp, err := rc.Invoke(json.RawMessage(`{"hello":"world"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"hello":"world"}`, string(resp))
}
