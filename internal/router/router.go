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

// Package router implements the deterministic, non-generative intent
// classifier: exact-match phrases, anchored regexes, and keyword
// bag-of-words, in that priority order, deciding between a named workflow,
// a single fully-specified tool call, or falling through to generation.
package router

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/kadirpekel/hnsc/internal/hnsc"
)

// DispositionKind identifies which arm of a Disposition is populated.
type DispositionKind string

const (
	DispositionWorkflow DispositionKind = "workflow"
	DispositionTool     DispositionKind = "tool"
	DispositionGenerate DispositionKind = "generate"
)

// Disposition is the Router's sole output.
type Disposition struct {
	Kind         DispositionKind
	WorkflowName string
	Binding      map[string]any
	ToolName     string
	Args         json.RawMessage
	Prompt       string
	Candidates   []Candidate // attached when confidence falls in the hint band
	Confidence   float64
}

// Candidate is one scored match surfaced as a hint when no rule wins
// outright.
type Candidate struct {
	ToolName   string
	Confidence float64
}

// ExactRule matches a phrase verbatim (case-insensitive, trimmed).
type ExactRule struct {
	Phrase       string
	ToolName     string
	WorkflowName string
	Binding      map[string]any
	Args         json.RawMessage
}

// RegexRule matches an anchored regular expression against the input text.
type RegexRule struct {
	Pattern      *regexp.Regexp
	ToolName     string
	WorkflowName string
	Binding      map[string]any
	Args         json.RawMessage
}

// KeywordDictionary is one tool's bag-of-words, scored by fraction of
// dictionary keywords present in the input text.
type KeywordDictionary struct {
	ToolName string
	Keywords []string
	Args     json.RawMessage
}

const (
	confidenceHigh = 0.8
	confidenceLow  = 0.5
)

// Router holds the priority-ordered rule sets and the tool registry needed
// to resolve tie-breaking metadata (side_effect_class, risk_weight).
type Router struct {
	exact      []ExactRule
	regexes    []RegexRule
	dicts      []KeywordDictionary
	tools      ToolLookup
	defaultMax int
}

// ToolLookup resolves a tool name to its metadata for tie-breaking; the
// real implementation is backed by the tool registry.
type ToolLookup interface {
	Get(name string) (*hnsc.Tool, bool)
}

// New constructs a Router. tools may be nil if tie-breaking metadata is
// unavailable; ties then fall back to lexicographic tool name only.
func New(exact []ExactRule, regexes []RegexRule, dicts []KeywordDictionary, tools ToolLookup) *Router {
	return &Router{exact: exact, regexes: regexes, dicts: dicts, tools: tools}
}

// Route classifies text and returns a Disposition.
func (r *Router) Route(text string, mode hnsc.Mode) Disposition {
	normalized := strings.ToLower(strings.TrimSpace(text))

	if d, ok := r.matchExact(normalized); ok {
		return d
	}
	if d, ok := r.matchRegex(text); ok {
		return d
	}

	candidates := r.scoreKeywords(normalized)
	if len(candidates) == 0 {
		return Disposition{Kind: DispositionGenerate, Prompt: text}
	}

	best := r.rankedBest(candidates)
	switch {
	case best.Confidence >= confidenceHigh:
		return r.toolDisposition(best)
	case best.Confidence >= confidenceLow:
		return Disposition{Kind: DispositionGenerate, Prompt: text, Candidates: candidates, Confidence: best.Confidence}
	default:
		return Disposition{Kind: DispositionGenerate, Prompt: text, Confidence: best.Confidence}
	}
}

func (r *Router) matchExact(normalized string) (Disposition, bool) {
	for _, rule := range r.exact {
		if strings.ToLower(strings.TrimSpace(rule.Phrase)) == normalized {
			return disposition(rule.WorkflowName, rule.ToolName, rule.Binding, rule.Args), true
		}
	}
	return Disposition{}, false
}

func (r *Router) matchRegex(text string) (Disposition, bool) {
	for _, rule := range r.regexes {
		if rule.Pattern.MatchString(text) {
			return disposition(rule.WorkflowName, rule.ToolName, rule.Binding, rule.Args), true
		}
	}
	return Disposition{}, false
}

func disposition(workflowName, toolName string, binding map[string]any, args json.RawMessage) Disposition {
	if workflowName != "" {
		return Disposition{Kind: DispositionWorkflow, WorkflowName: workflowName, Binding: binding, Confidence: 1.0}
	}
	return Disposition{Kind: DispositionTool, ToolName: toolName, Args: args, Confidence: 1.0}
}

func (r *Router) scoreKeywords(normalized string) []Candidate {
	words := strings.Fields(normalized)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}

	var candidates []Candidate
	for _, dict := range r.dicts {
		if len(dict.Keywords) == 0 {
			continue
		}
		hits := 0
		for _, kw := range dict.Keywords {
			if wordSet[strings.ToLower(kw)] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			ToolName:   dict.ToolName,
			Confidence: float64(hits) / float64(len(dict.Keywords)),
		})
	}
	return candidates
}

// rankedBest picks the highest-confidence candidate, breaking ties by
// lower side_effect_class, then lower risk_weight, then lexicographic name.
func (r *Router) rankedBest(candidates []Candidate) Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return r.lessBreakingTie(a.ToolName, b.ToolName)
	})
	return candidates[0]
}

func (r *Router) lessBreakingTie(a, b string) bool {
	toolA, okA := r.lookupTool(a)
	toolB, okB := r.lookupTool(b)
	if okA && okB {
		if toolA.SideEffectClass != toolB.SideEffectClass {
			return toolA.SideEffectClass.Less(toolB.SideEffectClass)
		}
		if toolA.RiskWeight != toolB.RiskWeight {
			return toolA.RiskWeight < toolB.RiskWeight
		}
	}
	return a < b
}

func (r *Router) lookupTool(name string) (*hnsc.Tool, bool) {
	if r.tools == nil {
		return nil, false
	}
	return r.tools.Get(name)
}

func (r *Router) toolDisposition(c Candidate) Disposition {
	for _, dict := range r.dicts {
		if dict.ToolName == c.ToolName {
			return Disposition{Kind: DispositionTool, ToolName: c.ToolName, Args: dict.Args, Confidence: c.Confidence}
		}
	}
	return Disposition{Kind: DispositionTool, ToolName: c.ToolName, Confidence: c.Confidence}
}
