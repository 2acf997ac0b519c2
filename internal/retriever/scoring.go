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
	"math"
	"strings"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// corpusStats holds the document-frequency and average-length statistics
// bm25Like needs. A nil *corpusStats signals "unavailable" and triggers
// the Jaccard-overlap degradation.
type corpusStats struct {
	docFreq map[string]int
	docLen  map[string]int
	avgLen  float64
	n       int
}

func newCorpusStats(docs []Document) *corpusStats {
	if len(docs) == 0 {
		return nil
	}
	cs := &corpusStats{docFreq: make(map[string]int), docLen: make(map[string]int), n: len(docs)}
	var totalLen int
	for _, d := range docs {
		terms := tokenize(d.Text)
		cs.docLen[d.ID] = len(terms)
		totalLen += len(terms)
		seen := make(map[string]bool)
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				cs.docFreq[t]++
			}
		}
	}
	cs.avgLen = float64(totalLen) / float64(len(docs))
	return cs
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func termFreq(terms []string) map[string]int {
	tf := make(map[string]int, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	return tf
}

// bm25Like scores query against a single document's text using the
// standard BM25 term-weighting formula, or degrades to Jaccard token
// overlap when corpus statistics are unavailable.
func bm25Like(query, text string, stats *corpusStats, docID string) float64 {
	if stats == nil {
		return jaccardOverlap(query, text)
	}

	qTerms := tokenize(query)
	dTerms := tokenize(text)
	tf := termFreq(dTerms)
	docLen := stats.docLen[docID]
	if docLen == 0 {
		docLen = len(dTerms)
	}

	var score float64
	for _, t := range qTerms {
		df := stats.docFreq[t]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(stats.n)-float64(df)+0.5)/(float64(df)+0.5))
		tft := float64(tf[t])
		denom := tft + bm25K1*(1-bm25B+bm25B*float64(docLen)/stats.avgLen)
		if denom == 0 {
			continue
		}
		score += idf * (tft * (bm25K1 + 1)) / denom
	}
	return score
}

// jaccardOverlap is the degraded-mode lexical similarity: the Jaccard index
// of the distinct query and document terms (shared terms over all terms).
func jaccardOverlap(query, text string) float64 {
	qSet := toSet(tokenize(query))
	dSet := toSet(tokenize(text))
	if len(qSet) == 0 || len(dSet) == 0 {
		return 0
	}
	inter := 0
	for t := range qSet {
		if dSet[t] {
			inter++
		}
	}
	union := len(qSet) + len(dSet) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func toSet(terms []string) map[string]bool {
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	return set
}

// cosineSimilarity is the standard vector cosine similarity in [-1, 1];
// negative values are returned unclamped.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// hybridScore implements score = 0.7*cosine + 0.3*bm25_like.
func hybridScore(cosine, bm25 float64) float64 {
	return 0.7*cosine + 0.3*bm25
}
