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

// Package config loads the layered, hot-reloadable configuration surface
// that every HNSC component is constructed from: rate limiter sizing,
// breaker tuning, pool sizing, retrieval knobs, workflow concurrency,
// arbitration thresholds, policy cache TTLs, audit streams, and the
// safety profile that selects PII/egress strictness.
package config

import "time"

// SafetyProfile selects PII redaction and tool-scope strictness.
type SafetyProfile string

const (
	ProfileProduction  SafetyProfile = "production"
	ProfileStaging     SafetyProfile = "staging"
	ProfileDevelopment SafetyProfile = "development"
)

// RateLimitConfig mirrors ratelimiter.Config.
type RateLimitConfig struct {
	Capacity      float64 `mapstructure:"capacity" yaml:"capacity"`
	RefillPerSec  float64 `mapstructure:"refill_per_sec" yaml:"refill_per_sec"`
}

// BreakerConfig mirrors breaker.Config.
type BreakerConfig struct {
	FailThreshold int           `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	Window        time.Duration `mapstructure:"window" yaml:"window"`
	Cooldown      time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// PoolConfig mirrors pool.Config.
type PoolConfig struct {
	Size            int           `mapstructure:"size" yaml:"size"`
	AcquireTimeout  time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	BaseBackoff     time.Duration `mapstructure:"base_backoff" yaml:"base_backoff"`
}

// RetrievalConfig mirrors retriever.Config plus driver retrieval gating.
type RetrievalConfig struct {
	Enabled        bool `mapstructure:"enabled" yaml:"enabled"`
	TopK           int  `mapstructure:"top_k" yaml:"top_k"`
	RerankEnabled  bool `mapstructure:"rerank_enabled" yaml:"rerank_enabled"`
	RerankTopK     int  `mapstructure:"rerank_top_k" yaml:"rerank_top_k"`
	QueryExpansion bool `mapstructure:"query_expansion" yaml:"query_expansion"`
	TokenBudget    int  `mapstructure:"token_budget" yaml:"token_budget"`
}

// WorkflowConfig mirrors workflow.Engine tuning.
type WorkflowConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	CancelGrace   time.Duration `mapstructure:"cancel_grace" yaml:"cancel_grace"`
}

// ArbitrationConfig mirrors arbitration.Engine tuning.
type ArbitrationConfig struct {
	ConsensusThreshold float64 `mapstructure:"consensus_threshold" yaml:"consensus_threshold"`
}

// PolicyConfig mirrors policygateway.Config.
type PolicyConfig struct {
	TTLSeconds  int    `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
	TokenIssuer string `mapstructure:"token_issuer" yaml:"token_issuer"`
	SigningKey  string `mapstructure:"signing_key" yaml:"signing_key"`
}

// AuditConfig names the append-only streams the sink must open at startup.
type AuditConfig struct {
	Streams []string `mapstructure:"streams" yaml:"streams"`
	Dir     string   `mapstructure:"dir" yaml:"dir"`
}

// DriverConfig mirrors driver.Config's externally tunable fields.
type DriverConfig struct {
	TokenBudget     int     `mapstructure:"token_budget" yaml:"token_budget"`
	ForecastMargin  float64 `mapstructure:"forecast_margin" yaml:"forecast_margin"`
}

// ControllerConfig mirrors controller.Config's externally tunable fields.
type ControllerConfig struct {
	RateLimitBucketKey string   `mapstructure:"rate_limit_bucket_key" yaml:"rate_limit_bucket_key"`
	RateLimitCost      float64  `mapstructure:"rate_limit_cost" yaml:"rate_limit_cost"`
	MaxIngressBytes    int      `mapstructure:"max_ingress_bytes" yaml:"max_ingress_bytes"`
	ProhibitedPhrases  []string `mapstructure:"prohibited_phrases" yaml:"prohibited_phrases"`
	RestrictedModes    []string `mapstructure:"restricted_modes" yaml:"restricted_modes"`
}

// ToolManifestEntry declares one externally-implemented tool the daemon
// registers at startup, dialing it as a subprocess plugin per
// internal/pluginhandler.
type ToolManifestEntry struct {
	Name            string   `mapstructure:"name" yaml:"name"`
	ScopeTags       []string `mapstructure:"scope_tags" yaml:"scope_tags"`
	PluginPath      string   `mapstructure:"plugin_path" yaml:"plugin_path"`
	Idempotent      bool     `mapstructure:"idempotent" yaml:"idempotent"`
	SideEffectClass string   `mapstructure:"side_effect_class" yaml:"side_effect_class"`
	RiskWeight      float64  `mapstructure:"risk_weight" yaml:"risk_weight"`
	Keywords        []string `mapstructure:"keywords" yaml:"keywords"`
}

// RouterExactEntry is one verbatim-phrase routing rule.
type RouterExactEntry struct {
	Phrase       string `mapstructure:"phrase" yaml:"phrase"`
	ToolName     string `mapstructure:"tool_name" yaml:"tool_name"`
	WorkflowName string `mapstructure:"workflow_name" yaml:"workflow_name"`
}

// RouterRegexEntry is one anchored-regex routing rule.
type RouterRegexEntry struct {
	Pattern      string `mapstructure:"pattern" yaml:"pattern"`
	ToolName     string `mapstructure:"tool_name" yaml:"tool_name"`
	WorkflowName string `mapstructure:"workflow_name" yaml:"workflow_name"`
}

// RouterConfig holds the declarative routing rule set.
type RouterConfig struct {
	Exact []RouterExactEntry `mapstructure:"exact" yaml:"exact"`
	Regex []RouterRegexEntry `mapstructure:"regex" yaml:"regex"`
}

// WorkflowStepEntry is one node of a declared workflow's DAG.
type WorkflowStepEntry struct {
	ID           string   `mapstructure:"id" yaml:"id"`
	ToolName     string   `mapstructure:"tool_name" yaml:"tool_name"`
	ArgsTemplate string   `mapstructure:"args_template" yaml:"args_template"`
	DependsOn    []string `mapstructure:"depends_on" yaml:"depends_on"`
	OnFailure    string   `mapstructure:"on_failure" yaml:"on_failure"`
	MaxRetries   int      `mapstructure:"max_retries" yaml:"max_retries"`
}

// WorkflowDefinition is one named, statically declared workflow.
type WorkflowDefinition struct {
	Name          string              `mapstructure:"name" yaml:"name"`
	MaxConcurrent int                 `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	Steps         []WorkflowStepEntry `mapstructure:"steps" yaml:"steps"`
}

// Config is the decoded, defaulted, validated root of HNSC's
// configuration surface. Every field corresponds to one row of the
// external configuration table, plus the declarative tool/router/
// workflow manifests a standalone daemon needs to have anything to do.
type Config struct {
	ModeScopeTags map[string][]string `mapstructure:"mode_scope_tags" yaml:"mode_scope_tags"`

	SafetyProfile SafetyProfile `mapstructure:"safety_profile" yaml:"safety_profile"`

	RateLimit   RateLimitConfig   `mapstructure:"rate_limit" yaml:"rate_limit"`
	Breaker     BreakerConfig     `mapstructure:"breaker" yaml:"breaker"`
	Pool        PoolConfig        `mapstructure:"pool" yaml:"pool"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval" yaml:"retrieval"`
	Workflow    WorkflowConfig    `mapstructure:"workflow" yaml:"workflow"`
	Arbitration ArbitrationConfig `mapstructure:"arbitration" yaml:"arbitration"`
	Policy      PolicyConfig      `mapstructure:"policy" yaml:"policy"`
	Audit       AuditConfig       `mapstructure:"audit" yaml:"audit"`
	Driver      DriverConfig      `mapstructure:"driver" yaml:"driver"`
	Controller  ControllerConfig  `mapstructure:"controller" yaml:"controller"`

	Tools           []ToolManifestEntry   `mapstructure:"tools" yaml:"tools"`
	Router          RouterConfig          `mapstructure:"router" yaml:"router"`
	WorkflowDefs    []WorkflowDefinition  `mapstructure:"workflow_defs" yaml:"workflow_defs"`
}

// SetDefaults fills every field the loader didn't see with the values
// spec.md documents as defaults, mirroring the teacher's post-decode
// defaulting pass.
func (c *Config) SetDefaults() {
	if c.SafetyProfile == "" {
		c.SafetyProfile = ProfileProduction
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 60
	}
	if c.RateLimit.RefillPerSec == 0 {
		c.RateLimit.RefillPerSec = 1
	}
	if c.Breaker.FailThreshold == 0 {
		c.Breaker.FailThreshold = 5
	}
	if c.Breaker.Window == 0 {
		c.Breaker.Window = 30 * time.Second
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = 15 * time.Second
	}
	if c.Pool.Size == 0 {
		c.Pool.Size = 8
	}
	if c.Pool.AcquireTimeout == 0 {
		c.Pool.AcquireTimeout = 2 * time.Second
	}
	if c.Pool.BaseBackoff == 0 {
		c.Pool.BaseBackoff = 50 * time.Millisecond
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.TokenBudget == 0 {
		c.Retrieval.TokenBudget = 2000
	}
	if c.Workflow.MaxConcurrent == 0 {
		c.Workflow.MaxConcurrent = 4
	}
	if c.Workflow.CancelGrace == 0 {
		c.Workflow.CancelGrace = 5 * time.Second
	}
	if c.Arbitration.ConsensusThreshold == 0 {
		c.Arbitration.ConsensusThreshold = 0.85
	}
	if c.Policy.TTLSeconds == 0 {
		c.Policy.TTLSeconds = 30
	}
	if c.Policy.TokenIssuer == "" {
		c.Policy.TokenIssuer = "hnsc"
	}
	if len(c.Audit.Streams) == 0 {
		c.Audit.Streams = []string{"requests", "policy", "workflow"}
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = "./data/audit"
	}
	if c.Driver.ForecastMargin == 0 {
		c.Driver.ForecastMargin = 0.2
	}
	if c.Controller.RateLimitBucketKey == "" {
		c.Controller.RateLimitBucketKey = "default"
	}
	if c.Controller.RateLimitCost == 0 {
		c.Controller.RateLimitCost = 1
	}
	if c.Controller.MaxIngressBytes == 0 {
		c.Controller.MaxIngressBytes = 32 * 1024
	}
}

// Validate rejects a decoded configuration that would construct a
// component in a nonsensical state, mirroring the teacher's strict
// post-decode Validate() pass.
func (c *Config) Validate() error {
	switch c.SafetyProfile {
	case ProfileProduction, ProfileStaging, ProfileDevelopment:
	default:
		return &ValidationError{Field: "safety_profile", Reason: "must be one of production, staging, development"}
	}
	if c.RateLimit.Capacity <= 0 {
		return &ValidationError{Field: "rate_limit.capacity", Reason: "must be positive"}
	}
	if c.RateLimit.RefillPerSec <= 0 {
		return &ValidationError{Field: "rate_limit.refill_per_sec", Reason: "must be positive"}
	}
	if c.Pool.Size <= 0 {
		return &ValidationError{Field: "pool.size", Reason: "must be positive"}
	}
	if c.Arbitration.ConsensusThreshold <= 0 || c.Arbitration.ConsensusThreshold > 1 {
		return &ValidationError{Field: "arbitration.consensus_threshold", Reason: "must be in (0, 1]"}
	}
	if c.Retrieval.Enabled && c.Retrieval.TopK <= 0 {
		return &ValidationError{Field: "retrieval.top_k", Reason: "must be positive when retrieval is enabled"}
	}
	return nil
}

// ValidationError reports one malformed configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Field + ": " + e.Reason
}
