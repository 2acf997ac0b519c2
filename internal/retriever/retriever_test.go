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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vectors[text]
	if !ok {
		return []float32{0, 0, 0}, nil
	}
	return v, nil
}

type fakeSearcher struct {
	hits map[string][]candidate
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, vector []float32, topK int, _ map[string]string) ([]candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, hits := range f.hits {
		_ = hits
	}
	hits := f.hits[vecKey(vector)]
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

func vecKey(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	s := ""
	for _, f := range v {
		if f > 0.5 {
			s += "h"
		} else {
			s += "l"
		}
	}
	return s
}

type fixedCounter struct{ perDoc int }

func (c fixedCounter) Count(text string) int { return c.perDoc }

func TestRetrieve_EmbeddingFailureReturnsEmptyResult(t *testing.T) {
	r := New(Config{}, nil, &fakeEmbedder{err: errors.New("embedding backend down")}, &fakeSearcher{}, nil, nil, nil)
	res := r.Retrieve(context.Background(), Request{Query: "hello", TopK: 5})
	assert.Empty(t, res.Documents)
	assert.False(t, res.Truncated)
}

func TestRetrieve_SearchFailureReturnsEmptyResult(t *testing.T) {
	r := New(Config{}, nil, &fakeEmbedder{vectors: map[string][]float32{"hello": {1, 1, 1}}}, &fakeSearcher{err: errors.New("backend unreachable")}, nil, nil, nil)
	res := r.Retrieve(context.Background(), Request{Query: "hello", TopK: 5})
	assert.Empty(t, res.Documents)
	assert.False(t, res.Truncated)
}

func TestRetrieve_ExpansionAlwaysIncludesOriginalQuery(t *testing.T) {
	exp := NewLexiconExpander(map[string][]string{"cat": {"feline"}})
	variants := exp.Expand("the cat sat", 3)
	require.NotEmpty(t, variants)
	assert.Equal(t, "the cat sat", variants[0])
}

func TestRetrieve_MergesDuplicateDocumentsKeepingMaxCosine(t *testing.T) {
	doc := Document{ID: "d1", Text: "alpha beta"}
	searcher := &fakeSearcher{hits: map[string][]candidate{
		"hhh": {{doc: doc, cosine: 0.4}},
		"lll": {{doc: doc, cosine: 0.9}},
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alpha query":  {1, 1, 1},
		"beta variant": {0, 0, 0},
	}}
	expander := NewTemplateExpander([]string{"%s"})
	// A TemplateExpander with the single template "%s" only repeats the query;
	// twoVariantExpander below gives two distinct, fixed variants instead.
	_ = expander

	r := New(Config{ExpansionEnabled: true, MaxVariants: 1}, twoVariantExpander{}, embedder, searcher, nil, nil, nil)
	res := r.Retrieve(context.Background(), Request{Query: "alpha query", TopK: 5})
	require.Len(t, res.Documents, 1)
	assert.Greater(t, res.Documents[0].Score, 0.0)
	// The merged hit keeps the 0.9 cosine from the "beta variant" search, not 0.4.
	wantBM25 := bm25Like("alpha query", doc.Text, newCorpusStats([]Document{doc}), doc.ID)
	assert.InDelta(t, hybridScore(0.9, wantBM25), res.Documents[0].Score, 1e-9)
}

type twoVariantExpander struct{}

func (twoVariantExpander) Expand(query string, _ int) []string {
	return []string{query, "beta variant"}
}

func TestRetrieve_TruncatesByTokenBudgetAndSetsFlag(t *testing.T) {
	docs := []candidate{
		{doc: Document{ID: "d1", Text: "short one"}, cosine: 0.9},
		{doc: Document{ID: "d2", Text: "short two"}, cosine: 0.1},
	}
	searcher := &fakeSearcher{hits: map[string][]candidate{"hhh": docs}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 1, 1}}}

	r := New(Config{}, nil, embedder, searcher, nil, fixedCounter{perDoc: 10}, nil)
	res := r.Retrieve(context.Background(), Request{Query: "query", TopK: 5, TokenBudget: 15})
	assert.True(t, res.Truncated)
	require.Len(t, res.Documents, 1)
}

func TestRetrieve_NoTokenBudgetReturnsEverythingUntruncated(t *testing.T) {
	docs := []candidate{
		{doc: Document{ID: "d1", Text: "short one"}, cosine: 0.9},
		{doc: Document{ID: "d2", Text: "short two"}, cosine: 0.1},
	}
	searcher := &fakeSearcher{hits: map[string][]candidate{"hhh": docs}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 1, 1}}}

	r := New(Config{}, nil, embedder, searcher, nil, fixedCounter{perDoc: 10}, nil)
	res := r.Retrieve(context.Background(), Request{Query: "query", TopK: 5})
	assert.False(t, res.Truncated)
	assert.Len(t, res.Documents, 2)
}

func TestRetrieve_RerankReplacesScores(t *testing.T) {
	docs := []candidate{{doc: Document{ID: "d1", Text: "alpha"}, cosine: 0.5}}
	searcher := &fakeSearcher{hits: map[string][]candidate{"hhh": docs}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 1, 1}}}

	r := New(Config{RerankEnabled: true, RerankTopK: 10}, nil, embedder, searcher, fixedRerank{score: 0.99}, nil, nil)
	res := r.Retrieve(context.Background(), Request{Query: "query", TopK: 5})
	require.Len(t, res.Documents, 1)
	assert.Equal(t, 0.99, res.Documents[0].Score)
}

type fixedRerank struct{ score float64 }

func (f fixedRerank) Rerank(_ context.Context, _ string, candidates []ResultDocument) ([]ResultDocument, error) {
	out := make([]ResultDocument, len(candidates))
	for i, c := range candidates {
		c.Score = f.score
		out[i] = c
	}
	return out, nil
}
