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

// Package retriever implements hybrid-scored semantic search: query
// expansion, embedding, vector search across the connection pool, a
// cosine/BM25 hybrid score, optional cross-encoder re-rank, and
// token-budget truncation.
package retriever

import "context"

// Document is a single retrievable unit with a precomputed embedding.
type Document struct {
	ID     string
	Text   string
	Vector []float32
	Meta   map[string]any
}

// Request is the Retriever's sole input contract.
type Request struct {
	Query       string
	TopK        int
	TokenBudget int
	Filter      map[string]string
}

// Result is the Retriever's sole output contract.
type Result struct {
	Documents []ResultDocument
	Truncated bool
}

// ResultDocument is one scored, retrieved document.
type ResultDocument struct {
	Text  string
	Score float64
	Meta  map[string]any
}

// Embedder encodes text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher performs a top-K nearest-neighbor search over a backend.
// Implementations wrap a pool.Lease'd client for a specific vector store.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]candidate, error)
}

type candidate struct {
	doc    Document
	cosine float64
}

// Reranker re-scores a merged candidate set with a cross-encoder or
// equivalent higher-fidelity model.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []ResultDocument) ([]ResultDocument, error)
}

// QueryExpander generates up to M variants of a query; the original query
// must always be included verbatim in the returned slice.
type QueryExpander interface {
	Expand(query string, m int) []string
}

// TokenCounter measures the token length of text for budget truncation.
type TokenCounter interface {
	Count(text string) int
}
