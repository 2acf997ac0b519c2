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

package retriever

import (
	"context"
	"log/slog"
	"sort"
)

// Config tunes the optional stages of the pipeline.
type Config struct {
	ExpansionEnabled bool
	MaxVariants      int
	RerankEnabled    bool
	RerankTopK       int
}

// Retriever implements the C6 hybrid-scored retrieval contract. It never
// returns an error to the caller: every failure mode degrades to an empty
// or partial Result, because retrieval is advisory.
type Retriever struct {
	cfg      Config
	expander QueryExpander
	embedder Embedder
	search   VectorSearcher
	rerank   Reranker
	tokens   TokenCounter
	logger   *slog.Logger
}

// New constructs a Retriever. rerank and expander may be nil; a nil
// expander behaves as NoopExpander regardless of cfg.ExpansionEnabled.
func New(cfg Config, expander QueryExpander, embedder Embedder, search VectorSearcher, rerank Reranker, tokens TokenCounter, logger *slog.Logger) *Retriever {
	if expander == nil {
		expander = NoopExpander{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{cfg: cfg, expander: expander, embedder: embedder, search: search, rerank: rerank, tokens: tokens, logger: logger}
}

// Retrieve runs the full pipeline: expansion, embedding, vector search,
// hybrid scoring, optional re-rank, and token-budget truncation.
func (r *Retriever) Retrieve(ctx context.Context, req Request) Result {
	variants := []string{req.Query}
	if r.cfg.ExpansionEnabled {
		variants = r.expander.Expand(req.Query, r.cfg.MaxVariants)
	}

	topK := req.TopK
	if r.cfg.RerankEnabled && r.cfg.RerankTopK > topK {
		topK = r.cfg.RerankTopK
	}

	merged := make(map[string]*mergedCandidate)
	for _, variant := range variants {
		vec, err := r.embedder.Embed(ctx, variant)
		if err != nil {
			r.logger.Warn("retriever: embedding unavailable", "error", err)
			return Result{Truncated: false}
		}

		hits, err := r.search.Search(ctx, vec, topK, req.Filter)
		if err != nil {
			r.logger.Warn("retriever: vector search failed, degrading to empty result", "error", err)
			return Result{Truncated: false}
		}

		for _, h := range hits {
			mc, ok := merged[h.doc.ID]
			if !ok || h.cosine > mc.cosine {
				merged[h.doc.ID] = &mergedCandidate{doc: h.doc, cosine: maxCosine(mc, h.cosine)}
			}
		}
	}

	docs := make([]Document, 0, len(merged))
	for _, mc := range merged {
		docs = append(docs, mc.doc)
	}
	stats := newCorpusStats(docs)

	scored := make([]ResultDocument, 0, len(merged))
	for _, mc := range merged {
		bm25 := bm25Like(req.Query, mc.doc.Text, stats, mc.doc.ID)
		scored = append(scored, ResultDocument{
			Text:  mc.doc.Text,
			Score: hybridScore(mc.cosine, bm25),
			Meta:  mc.doc.Meta,
		})
	}

	if r.cfg.RerankEnabled && r.rerank != nil {
		reranked, err := r.rerank.Rerank(ctx, req.Query, scored)
		if err != nil {
			r.logger.Warn("retriever: rerank failed, keeping hybrid scores", "error", err)
		} else {
			scored = reranked
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	return r.truncate(scored, req.TokenBudget)
}

type mergedCandidate struct {
	doc    Document
	cosine float64
}

func maxCosine(existing *mergedCandidate, candidate float64) float64 {
	if existing == nil || candidate > existing.cosine {
		return candidate
	}
	return existing.cosine
}

// truncate accumulates documents in score order until adding the next one
// would exceed tokenBudget, marking the result truncated iff any candidate
// was dropped.
func (r *Retriever) truncate(scored []ResultDocument, tokenBudget int) Result {
	if tokenBudget <= 0 || r.tokens == nil {
		return Result{Documents: scored, Truncated: false}
	}

	var used int
	var out []ResultDocument
	for _, d := range scored {
		n := r.tokens.Count(d.Text)
		if used+n > tokenBudget {
			return Result{Documents: out, Truncated: true}
		}
		used += n
		out = append(out, d)
	}
	return Result{Documents: out, Truncated: false}
}
