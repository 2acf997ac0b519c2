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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
}

func TestCosineSimilarity_OrthogonalVectorsIsZero(t *testing.T) {
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarity_MismatchedLengthsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestHybridScore_WeightsCosineAndBM25(t *testing.T) {
	assert.InDelta(t, 0.7*1.0+0.3*0.5, hybridScore(1.0, 0.5), 1e-9)
}

func TestBM25Like_DegradesToJaccardWhenStatsUnavailable(t *testing.T) {
	score := bm25Like("alpha beta", "alpha beta gamma", nil, "d1")
	assert.InDelta(t, jaccardOverlap("alpha beta", "alpha beta gamma"), score, 1e-9)
}

func TestBM25Like_HigherTermFrequencyScoresHigher(t *testing.T) {
	docs := []Document{
		{ID: "d1", Text: "alpha alpha alpha beta"},
		{ID: "d2", Text: "alpha gamma delta"},
		{ID: "d3", Text: "beta gamma delta epsilon"},
	}
	stats := newCorpusStats(docs)
	scoreHigh := bm25Like("alpha", docs[0].Text, stats, "d1")
	scoreLow := bm25Like("alpha", docs[1].Text, stats, "d2")
	assert.Greater(t, scoreHigh, scoreLow)
}

func TestBM25Like_UnknownQueryTermContributesNothing(t *testing.T) {
	docs := []Document{
		{ID: "d1", Text: "alpha beta"},
		{ID: "d2", Text: "gamma delta"},
	}
	stats := newCorpusStats(docs)
	score := bm25Like("nonexistentterm", docs[0].Text, stats, "d1")
	assert.Equal(t, 0.0, score)
}

func TestJaccardOverlap_PartialOverlap(t *testing.T) {
	overlap := jaccardOverlap("alpha beta", "alpha gamma")
	assert.InDelta(t, 1.0/3.0, overlap, 1e-9)
}

func TestJaccardOverlap_EmptyQueryIsZero(t *testing.T) {
	assert.Equal(t, 0.0, jaccardOverlap("", "alpha beta"))
}

func TestNewCorpusStats_EmptyCorpusIsNil(t *testing.T) {
	assert.Nil(t, newCorpusStats(nil))
}
