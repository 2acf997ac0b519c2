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

package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GenerateParsesChoiceAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "the sea is vast"}}},
			Usage:   chatUsage{PromptTokens: 12, CompletionTokens: 4},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "gpt-4"})
	text, tokensIn, tokensOut, err := c.Generate(context.Background(), "reasoner", "system", "tell me about the sea")
	require.NoError(t, err)
	assert.Equal(t, "the sea is vast", text)
	assert.Equal(t, 12, tokensIn)
	assert.Equal(t, 4, tokensOut)
}

func TestClient_GenerateSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Error: &chatError{Message: "invalid api key"}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "bad-key"})
	_, _, _, err := c.Generate(context.Background(), "critic", "system", "prompt")
	assert.Error(t, err)
}

func TestClient_GenerateClassifiesRateLimitStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"})
	_, _, _, err := c.Generate(context.Background(), "reasoner", "system", "prompt")
	assert.Error(t, err)
}
