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

package arbitration

import "strings"

// tokenize splits text into lowercase word tokens for both similarity
// measures below.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// tokenSequenceRatio mirrors Python difflib.SequenceMatcher.ratio():
// 2*M / T where M is the number of matching tokens (via longest common
// subsequence) and T is the total token count of both sequences.
func tokenSequenceRatio(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	m := lcsLength(ta, tb)
	total := len(ta) + len(tb)
	if total == 0 {
		return 0
	}
	return 2 * float64(m) / float64(total)
}

// lcsLength computes the longest common subsequence length between two
// token slices via standard O(n*m) dynamic programming.
func lcsLength(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// jaccardOverlap is |intersection| / |union| over token sets.
func jaccardOverlap(a, b string) float64 {
	setA := toSet(tokenize(a))
	setB := toSet(tokenize(b))
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(tokens []string) map[string]bool {
	out := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		out[t] = true
	}
	return out
}

// similarity implements the hybrid measure from §4.11: the max of the
// token-sequence ratio and the Jaccard overlap. Empty candidates yield 0,
// per §9's resolution of the corresponding Open Question.
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	r := tokenSequenceRatio(a, b)
	j := jaccardOverlap(a, b)
	if j > r {
		return j
	}
	return r
}
