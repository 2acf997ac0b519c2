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

// Package driver runs the dual-model reasoner/critic pipeline: a
// retrieval-grounded reasoner pass, a critic pass that reviews the
// reasoner's answer, arbitration between the two, and a rolling usage
// history feeding a token-budget forecast.
package driver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kadirpekel/hnsc/internal/arbitration"
	"github.com/kadirpekel/hnsc/internal/pii"
	"github.com/kadirpekel/hnsc/internal/retriever"
	"github.com/kadirpekel/hnsc/internal/safety"
)

// Generator produces one completion for a prompt under a named role
// ("reasoner" or "critic"). It reports the token counts it consumed so
// the Driver does not need its own tokenizer to bill usage; TokenCounter
// is only used for the pre-flight budget forecast.
type Generator interface {
	Generate(ctx context.Context, role, systemPrompt, userPrompt string) (text string, tokensIn, tokensOut int, err error)
}

const (
	reasonerSystemPrompt = "You are the reasoning pass of a two-model pipeline. Answer the user directly and completely."
	criticSystemPrompt   = "You are the critic pass of a two-model pipeline. You receive the reasoner's draft answer below. " +
		"Verify it, correct any errors, and produce your own complete answer; do not merely comment on the draft."
)

// Config holds the driver's tunables, all sourced from the HNSC
// configuration table.
type Config struct {
	ConsensusThreshold float64
	PIIProfile         pii.Profile
	TokenBudget        int // per-request total token budget for forecast_usage
	RetrievalEnabled   bool
	RetrievalTopK      int
	RetrievalTokens    int // context token budget carved out of TokenBudget
}

// Generation is the outcome of one driver.Run call.
type Generation struct {
	Decision       arbitration.Decision
	TokensIn       int
	TokensOut      int
	Latency        time.Duration
	RetrievedDocs  int
	RetrievalTrunc bool
	CandidateAText string
	CandidateBText string
}

// Driver wires retrieval, dual generation, PII-aware egress safety
// scoring, and arbitration into one request-scoped operation, with a
// rolling usage history for budget forecasting.
type Driver struct {
	generator Generator
	retriever *retriever.Retriever
	redactor  *pii.Redactor
	safetyEng *safety.Engine
	tokens    *retriever.TiktokenCounter
	arbiter   *arbitration.Engine
	cfg       Config

	mu      sync.Mutex
	history usageHistory
}

// New constructs a Driver. retriever, redactor, and tokens may be nil;
// retrieval and token forecasting degrade gracefully (forecast_usage
// always reports "within budget" without a counter, retrieval is skipped
// without a configured retriever).
func New(gen Generator, rtr *retriever.Retriever, redactor *pii.Redactor, safetyEng *safety.Engine, tokens *retriever.TiktokenCounter, cfg Config) *Driver {
	return &Driver{
		generator: gen,
		retriever: rtr,
		redactor:  redactor,
		safetyEng: safetyEng,
		tokens:    tokens,
		arbiter:   arbitration.New(cfg.ConsensusThreshold),
		cfg:       cfg,
	}
}

// Run executes the full §4.12 pipeline for one user prompt and returns
// the arbitrated decision alongside usage accounting.
func (d *Driver) Run(ctx context.Context, prompt string) (Generation, error) {
	start := time.Now()

	groundedPrompt := prompt
	retrievedDocs := 0
	truncated := false
	if d.cfg.RetrievalEnabled && d.retriever != nil {
		res := d.retriever.Retrieve(ctx, retriever.Request{
			Query:       prompt,
			TopK:        d.cfg.RetrievalTopK,
			TokenBudget: d.cfg.RetrievalTokens,
		})
		retrievedDocs = len(res.Documents)
		truncated = res.Truncated
		if retrievedDocs > 0 {
			groundedPrompt = buildGroundedPrompt(res, prompt)
		}
	}

	aText, aIn, aOut, err := d.generator.Generate(ctx, "reasoner", reasonerSystemPrompt, groundedPrompt)
	if err != nil {
		return Generation{}, fmt.Errorf("driver: reasoner pass: %w", err)
	}

	criticPrompt := fmt.Sprintf("User request:\n%s\n\nReasoner draft:\n%s", groundedPrompt, aText)
	bText, bIn, bOut, err := d.generator.Generate(ctx, "critic", criticSystemPrompt, criticPrompt)
	if err != nil {
		return Generation{}, fmt.Errorf("driver: critic pass: %w", err)
	}

	candA := d.scoreCandidate(ctx, aText)
	candB := d.scoreCandidate(ctx, bText)
	decision := d.arbiter.Arbitrate(candA, candB)

	tokensIn := aIn + bIn
	tokensOut := aOut + bOut
	latency := time.Since(start)

	d.mu.Lock()
	d.history.push(usageSample{TokensIn: tokensIn, TokensOut: tokensOut, Latency: latency})
	d.mu.Unlock()

	return Generation{
		Decision:       decision,
		TokensIn:       tokensIn,
		TokensOut:      tokensOut,
		Latency:        latency,
		RetrievedDocs:  retrievedDocs,
		RetrievalTrunc: truncated,
		CandidateAText: aText,
		CandidateBText: bText,
	}, nil
}

// scoreCandidate derives the arbitration.Candidate safety signals by
// running the egress PII redactor and safety checkpoint over the raw
// candidate text. RedactionCount counts placeholder substitutions left by
// the redactor, a cheap proxy for "how much had to be scrubbed" without
// needing the redactor to report a count directly. PolicyViolations is 1
// whenever the egress checkpoint denies, 0 otherwise; the checkpoint does
// not currently distinguish violation severity or count.
func (d *Driver) scoreCandidate(ctx context.Context, text string) arbitration.Candidate {
	redactionCount := 0
	if d.redactor != nil {
		redacted := d.redactor.Redact(text, d.cfg.PIIProfile)
		redactionCount = countRedactions(redacted)
	}

	egressSafe := true
	policyViolations := 0
	if d.safetyEng != nil {
		decision, err := d.safetyEng.CheckEgress(ctx, redactionCount > 0, false)
		if err != nil || !decision.Allow {
			egressSafe = false
			policyViolations = 1
		}
	}

	return arbitration.Candidate{
		Text:             text,
		RedactionCount:   redactionCount,
		PolicyViolations: policyViolations,
		EgressSafe:       egressSafe,
	}
}

func countRedactions(text string) int {
	return strings.Count(text, "[REDACTED_")
}

// buildGroundedPrompt prepends a summarized, budget-truncated retrieval
// context block ahead of the original prompt.
func buildGroundedPrompt(res retriever.Result, prompt string) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for _, doc := range res.Documents {
		b.WriteString("- ")
		b.WriteString(doc.Text)
		b.WriteString("\n")
	}
	if res.Truncated {
		b.WriteString("(context truncated to fit token budget)\n")
	}
	b.WriteString("\nRequest:\n")
	b.WriteString(prompt)
	return b.String()
}

// ForecastUsage implements forecast_usage(current_input, margin): it
// projects total tokens for the next call as twice the current input's
// token count plus the historical average total (input plus output) per
// run, and reports whether that
// projection, inflated by margin, would exceed the configured per-request
// budget. A nil TokenCounter or zero TokenBudget always reports within
// budget, since neither constraint is configured.
func (d *Driver) ForecastUsage(currentInput string, margin float64) (projectedTotal int, exceedsBudget bool) {
	if d.tokens == nil || d.cfg.TokenBudget <= 0 {
		return 0, false
	}
	inputTokens := d.tokens.Count(currentInput)

	d.mu.Lock()
	avgTotal := d.history.averageTotal()
	d.mu.Unlock()

	projected := float64(inputTokens)*2 + avgTotal // two generation passes share the input
	if margin > 0 {
		projected *= 1 + margin
	}
	projectedTotal = int(projected)
	exceedsBudget = projectedTotal > d.cfg.TokenBudget
	return projectedTotal, exceedsBudget
}
