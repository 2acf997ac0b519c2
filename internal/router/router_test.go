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

package router

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hnsc/internal/hnsc"
)

type fakeToolLookup struct {
	tools map[string]*hnsc.Tool
}

func (f fakeToolLookup) Get(name string) (*hnsc.Tool, bool) {
	t, ok := f.tools[name]
	return t, ok
}

func TestRoute_ExactMatchWins(t *testing.T) {
	r := New([]ExactRule{{Phrase: "cancel my order", ToolName: "cancel_order"}}, nil, nil, nil)
	d := r.Route("Cancel My Order", hnsc.ModeGeneral)
	require.Equal(t, DispositionTool, d.Kind)
	assert.Equal(t, "cancel_order", d.ToolName)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestRoute_ExactMatchToWorkflow(t *testing.T) {
	r := New([]ExactRule{{Phrase: "start onboarding", WorkflowName: "onboarding"}}, nil, nil, nil)
	d := r.Route("start onboarding", hnsc.ModeGeneral)
	require.Equal(t, DispositionWorkflow, d.Kind)
	assert.Equal(t, "onboarding", d.WorkflowName)
}

func TestRoute_RegexMatchTakesPriorityOverKeywords(t *testing.T) {
	r := New(nil, []RegexRule{{Pattern: regexp.MustCompile(`^refund order \d+$`), ToolName: "refund_order"}},
		[]KeywordDictionary{{ToolName: "other_tool", Keywords: []string{"refund", "order"}}}, nil)
	d := r.Route("refund order 42", hnsc.ModeGeneral)
	require.Equal(t, DispositionTool, d.Kind)
	assert.Equal(t, "refund_order", d.ToolName)
}

func TestRoute_HighConfidenceKeywordMatchWinsOutright(t *testing.T) {
	r := New(nil, nil, []KeywordDictionary{{ToolName: "weather", Keywords: []string{"weather", "forecast"}}}, nil)
	d := r.Route("weather forecast", hnsc.ModeGeneral)
	require.Equal(t, DispositionTool, d.Kind)
	assert.Equal(t, "weather", d.ToolName)
	assert.GreaterOrEqual(t, d.Confidence, confidenceHigh)
}

func TestRoute_MidConfidenceReturnsGenerateWithCandidates(t *testing.T) {
	r := New(nil, nil, []KeywordDictionary{{ToolName: "weather", Keywords: []string{"weather", "forecast", "tomorrow", "humidity"}}}, nil)
	d := r.Route("weather forecast", hnsc.ModeGeneral)
	require.Equal(t, DispositionGenerate, d.Kind)
	assert.NotEmpty(t, d.Candidates)
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
}

func TestRoute_LowConfidenceFallsThroughWithoutCandidates(t *testing.T) {
	r := New(nil, nil, []KeywordDictionary{{ToolName: "weather", Keywords: []string{"weather", "forecast", "tomorrow", "humidity", "wind", "pressure"}}}, nil)
	d := r.Route("weather today", hnsc.ModeGeneral)
	require.Equal(t, DispositionGenerate, d.Kind)
	assert.Less(t, d.Confidence, confidenceLow)
	assert.Empty(t, d.Candidates)
}

func TestRoute_NoMatchFallsThroughToGenerate(t *testing.T) {
	r := New(nil, nil, nil, nil)
	d := r.Route("tell me a story", hnsc.ModeGeneral)
	assert.Equal(t, DispositionGenerate, d.Kind)
	assert.Equal(t, "tell me a story", d.Prompt)
}

func TestRoute_TiesBreakByLowerSideEffectClassThenRiskWeightThenName(t *testing.T) {
	lookup := fakeToolLookup{tools: map[string]*hnsc.Tool{
		"b_tool": {SideEffectClass: hnsc.SideEffectWrite, RiskWeight: 0.9},
		"a_tool": {SideEffectClass: hnsc.SideEffectRead, RiskWeight: 0.9},
	}}
	r := New(nil, nil, []KeywordDictionary{
		{ToolName: "a_tool", Keywords: []string{"do", "thing"}},
		{ToolName: "b_tool", Keywords: []string{"do", "thing"}},
	}, lookup)

	d := r.Route("do thing", hnsc.ModeGeneral)
	require.Equal(t, DispositionTool, d.Kind)
	assert.Equal(t, "a_tool", d.ToolName)
}

func TestRoute_TiesBreakLexicographicallyWithoutToolLookup(t *testing.T) {
	r := New(nil, nil, []KeywordDictionary{
		{ToolName: "zeta", Keywords: []string{"do", "thing"}},
		{ToolName: "alpha", Keywords: []string{"do", "thing"}},
	}, nil)

	d := r.Route("do thing", hnsc.ModeGeneral)
	require.Equal(t, DispositionTool, d.Kind)
	assert.Equal(t, "alpha", d.ToolName)
}
