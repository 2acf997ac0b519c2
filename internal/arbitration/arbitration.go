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

// Package arbitration reconciles two candidate generator outputs into one
// final decision under safety constraints: consensus when the candidates
// agree closely, otherwise the safer candidate, or a synthesized fallback
// when neither is clearly safer.
package arbitration

import "strings"

const consensusThresholdDefault = 0.85

// ChosenKind identifies which candidate (if any) a Decision selected.
type ChosenKind string

const (
	ChosenA           ChosenKind = "a"
	ChosenB           ChosenKind = "b"
	ChosenSynthesized ChosenKind = "synthesized"
	ChosenNone        ChosenKind = "none"
)

// Candidate is one generator output plus the safety signals needed to
// score it; callers compute RedactionCount and PolicyViolations from the
// egress safety checkpoint (internal/pii, internal/safety) before calling
// Arbitrate.
type Candidate struct {
	Text             string
	RedactionCount   int
	PolicyViolations int
	EgressSafe       bool
}

// safetyScore rewards fewer redactions and zero policy hits; a policy
// violation dominates the score regardless of redaction count.
func (c Candidate) safetyScore() float64 {
	if c.PolicyViolations > 0 {
		return 0
	}
	score := 1.0 - 0.1*float64(c.RedactionCount)
	if score < 0 {
		score = 0
	}
	return score
}

// Decision is the §4.11 output contract.
type Decision struct {
	Consensus  bool
	Chosen     ChosenKind
	Text       string
	Similarity float64
	Reasons    []string
}

// Engine holds the configured consensus threshold; the zero value uses
// the spec default of 0.85.
type Engine struct {
	ConsensusThreshold float64
}

// New constructs an Engine with the given consensus threshold; a
// non-positive value falls back to the spec default.
func New(consensusThreshold float64) *Engine {
	if consensusThreshold <= 0 {
		consensusThreshold = consensusThresholdDefault
	}
	return &Engine{ConsensusThreshold: consensusThreshold}
}

// Arbitrate implements §4.11 in full: egress-unsafe candidates are
// discarded first; if both are discarded the decision is
// {consensus:false, chosen:none}. Otherwise similarity gates whether the
// higher-safety-score candidate wins outright (consensus) or a
// synthesized fallback is produced on a safety-score tie without
// consensus.
func (e *Engine) Arbitrate(a, b Candidate) Decision {
	aOK, bOK := a.EgressSafe, b.EgressSafe
	switch {
	case !aOK && !bOK:
		return Decision{Consensus: false, Chosen: ChosenNone, Reasons: []string{"both candidates failed egress safety"}}
	case !aOK:
		return Decision{Consensus: false, Chosen: ChosenB, Text: b.Text, Reasons: []string{"candidate a failed egress safety"}}
	case !bOK:
		return Decision{Consensus: false, Chosen: ChosenA, Text: a.Text, Reasons: []string{"candidate b failed egress safety"}}
	}

	sim := similarity(a.Text, b.Text)
	consensus := sim >= e.ConsensusThreshold
	scoreA, scoreB := a.safetyScore(), b.safetyScore()

	if consensus {
		if scoreB > scoreA {
			return Decision{Consensus: true, Chosen: ChosenB, Text: b.Text, Similarity: sim,
				Reasons: []string{"consensus reached, b has higher safety score"}}
		}
		return Decision{Consensus: true, Chosen: ChosenA, Text: a.Text, Similarity: sim,
			Reasons: []string{"consensus reached, a wins by default or safety score"}}
	}

	switch {
	case scoreA > scoreB:
		return Decision{Consensus: false, Chosen: ChosenA, Text: a.Text, Similarity: sim,
			Reasons: []string{"no consensus, a has strictly higher safety score"}}
	case scoreB > scoreA:
		return Decision{Consensus: false, Chosen: ChosenB, Text: b.Text, Similarity: sim,
			Reasons: []string{"no consensus, b has strictly higher safety score"}}
	default:
		synthesized := synthesize(a.Text, b.Text)
		return Decision{Consensus: false, Chosen: ChosenSynthesized, Text: synthesized, Similarity: sim,
			Reasons: []string{"no consensus, tied safety scores, synthesized from divergence point"}}
	}
}

const disclaimer = "\n\n[Note: the two reasoning passes diverged after this point; this response was truncated and may be incomplete.]"

// synthesize returns the common prefix of a and b up to their first
// token-level divergence, followed by a disclaimer, per §4.11.
func synthesize(a, b string) string {
	ta, tb := tokenize(a), tokenize(b)
	n := len(ta)
	if len(tb) < n {
		n = len(tb)
	}
	i := 0
	for i < n && ta[i] == tb[i] {
		i++
	}
	prefix := strings.Join(ta[:i], " ")
	return prefix + disclaimer
}
