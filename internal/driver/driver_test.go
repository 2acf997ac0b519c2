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

package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hnsc/internal/pii"
	"github.com/kadirpekel/hnsc/internal/retriever"
)

type stubGenerator struct {
	reasonerText string
	criticText   string
	tokensIn     int
	tokensOut    int
}

func (g *stubGenerator) Generate(_ context.Context, role, _, _ string) (string, int, int, error) {
	if role == "reasoner" {
		return g.reasonerText, g.tokensIn, g.tokensOut, nil
	}
	return g.criticText, g.tokensIn, g.tokensOut, nil
}

func TestDriver_RunReachesConsensusOnSimilarCandidates(t *testing.T) {
	gen := &stubGenerator{reasonerText: "the sky is blue today", criticText: "the sky is blue today", tokensIn: 10, tokensOut: 5}
	d := New(gen, nil, pii.New(), nil, nil, Config{ConsensusThreshold: 0.85, PIIProfile: pii.ProfileProduction})

	g, err := d.Run(context.Background(), "what color is the sky?")
	require.NoError(t, err)
	assert.True(t, g.Decision.Consensus)
	assert.Equal(t, 20, g.TokensIn)
	assert.Equal(t, 10, g.TokensOut)
}

func TestDriver_RunRedactsPIIBeforeScoring(t *testing.T) {
	gen := &stubGenerator{reasonerText: "email me at jane@example.com", criticText: "contact jane@example.com by email", tokensIn: 4, tokensOut: 4}
	d := New(gen, nil, pii.New(), nil, nil, Config{ConsensusThreshold: 0.85, PIIProfile: pii.ProfileProduction})

	g, err := d.Run(context.Background(), "how do I reach jane?")
	require.NoError(t, err)
	assert.NotEmpty(t, g.Decision.Text)
}

func TestDriver_ForecastUsageWithoutCounterNeverExceeds(t *testing.T) {
	d := New(&stubGenerator{}, nil, pii.New(), nil, nil, Config{TokenBudget: 100})
	projected, exceeds := d.ForecastUsage("anything", 0.1)
	assert.Equal(t, 0, projected)
	assert.False(t, exceeds)
}

func TestDriver_ForecastUsageFlagsOverBudgetAfterHistory(t *testing.T) {
	counter, err := retriever.NewTiktokenCounter("cl100k_base")
	require.NoError(t, err)

	gen := &stubGenerator{reasonerText: "a reply", criticText: "a reply too", tokensIn: 500, tokensOut: 500}
	d := New(gen, nil, pii.New(), nil, counter, Config{ConsensusThreshold: 0.85, TokenBudget: 10})

	_, err = d.Run(context.Background(), "prompt one")
	require.NoError(t, err)

	_, exceeds := d.ForecastUsage("prompt two", 0)
	assert.True(t, exceeds)
}

func TestUsageHistory_AverageTotalIsZeroWhenEmpty(t *testing.T) {
	var h usageHistory
	assert.Equal(t, 0.0, h.averageTotal())
}

func TestUsageHistory_EvictsOldestPastCapacity(t *testing.T) {
	var h usageHistory
	for i := 0; i < historySize+5; i++ {
		h.push(usageSample{TokensIn: 1, TokensOut: 1})
	}
	assert.Equal(t, historySize, h.count)
}
