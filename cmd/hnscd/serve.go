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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/kadirpekel/hnsc/internal/audit"
	"github.com/kadirpekel/hnsc/internal/breaker"
	"github.com/kadirpekel/hnsc/internal/config"
	"github.com/kadirpekel/hnsc/internal/controller"
	"github.com/kadirpekel/hnsc/internal/driver"
	"github.com/kadirpekel/hnsc/internal/hnsc"
	"github.com/kadirpekel/hnsc/internal/llmclient"
	"github.com/kadirpekel/hnsc/internal/pii"
	"github.com/kadirpekel/hnsc/internal/pluginhandler"
	"github.com/kadirpekel/hnsc/internal/policygateway"
	"github.com/kadirpekel/hnsc/internal/ratelimiter"
	"github.com/kadirpekel/hnsc/internal/router"
	"github.com/kadirpekel/hnsc/internal/safety"
	"github.com/kadirpekel/hnsc/internal/telemetry"
	"github.com/kadirpekel/hnsc/internal/toolregistry"
	"github.com/kadirpekel/hnsc/internal/workflow"
)

// ServeCmd starts the daemon.
type ServeCmd struct {
	Config string `short:"c" help:"Path to config.yaml." type:"path" required:""`
	EnvFile string `help:"Optional .env file loaded before config expansion." type:"path"`
	Addr    string `help:"HTTP listen address." default:":8090"`

	LLMBaseURL string `name:"llm-base-url" help:"OpenAI-compatible base URL for the reasoner/critic." default:"https://api.openai.com/v1"`
	LLMAPIKey  string `name:"llm-api-key" help:"API key for the configured LLM endpoint." env:"HNSC_LLM_API_KEY"`
	LLMModel   string `name:"llm-model" help:"Model name for both reasoner and critic passes." default:"gpt-4o-mini"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	logger := newLogger(cli.LogLevel)
	ctx, cancel := signalContext()
	defer cancel()

	provider, err := config.NewFileProvider(c.Config, c.EnvFile)
	if err != nil {
		return fmt.Errorf("hnscd: %w", err)
	}
	cfg, err := config.NewLoader(provider).Load(ctx)
	if err != nil {
		return fmt.Errorf("hnscd: %w", err)
	}

	daemon, err := build(ctx, cfg, c, logger)
	if err != nil {
		return fmt.Errorf("hnscd: %w", err)
	}
	defer daemon.close()

	mux := http.NewServeMux()
	daemon.registerRoutes(mux)

	srv := &http.Server{Addr: c.Addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.Info("hnscd listening", "addr", c.Addr)
	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// daemon holds every long-lived component build assembles, so Run can
// route HTTP requests into the Controller and close resources cleanly
// on shutdown.
type daemon struct {
	cfg        *config.Config
	controller *controller.Controller
	workflows  *workflow.Engine
	auditSink  *audit.Sink
	metrics    *telemetry.Metrics
	launchers  []*pluginhandler.Launcher
	workflowBy map[string]*hnsc.Workflow
}

func (d *daemon) close() {
	for _, l := range d.launchers {
		l.Close()
	}
	d.auditSink.Close()
}

func build(ctx context.Context, cfg *config.Config, c *ServeCmd, logger *slog.Logger) (*daemon, error) {
	metrics := telemetry.New(telemetry.Config{})

	auditSink := audit.New(audit.NewFileWriterFactory(cfg.Audit.Dir), logger, metrics.Audit())
	for _, stream := range cfg.Audit.Streams {
		if err := auditSink.Open(stream); err != nil {
			return nil, fmt.Errorf("open audit stream %s: %w", stream, err)
		}
	}

	limiter, err := ratelimiter.New(ratelimiter.Config{
		Capacity:        cfg.RateLimit.Capacity,
		RefillPerSecond: cfg.RateLimit.RefillPerSec,
	})
	if err != nil {
		return nil, fmt.Errorf("build rate limiter: %w", err)
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailThreshold: cfg.Breaker.FailThreshold,
		Window:        cfg.Breaker.Window,
		Cooldown:      cfg.Breaker.Cooldown,
	}, metrics.Breaker())

	safetyEng := safety.NewEngine()
	if err := safetyEng.Compile(ctx); err != nil {
		return nil, fmt.Errorf("compile safety policies: %w", err)
	}

	tools, launchers, err := buildToolRegistry(cfg.Tools)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	rtr := buildRouter(cfg.Router, tools)

	dispatcher := controller.NewToolDispatcher(tools, breakers)
	wfEngine := workflow.New(dispatcher, cfg.Workflow.CancelGrace)
	workflowBy := buildWorkflows(cfg.WorkflowDefs)

	var gen *driver.Driver
	if c.LLMAPIKey != "" {
		client := llmclient.New(llmclient.Config{BaseURL: c.LLMBaseURL, APIKey: c.LLMAPIKey, Model: c.LLMModel})
		gen = driver.New(client, nil, pii.New(), safetyEng, nil, driver.Config{
			ConsensusThreshold: cfg.Arbitration.ConsensusThreshold,
			PIIProfile:         safetyProfileToPII(cfg.SafetyProfile),
			TokenBudget:        cfg.Driver.TokenBudget,
		})
	} else {
		logger.Warn("hnscd: no LLM API key configured, text_result dispositions will fail")
	}

	ctrl := controller.New(
		controller.Config{
			RateLimitBucketKey: cfg.Controller.RateLimitBucketKey,
			RateLimitCost:      cfg.Controller.RateLimitCost,
			PIIProfile:         safetyProfileToPII(cfg.SafetyProfile),
			MaxIngressBytes:    cfg.Controller.MaxIngressBytes,
			ProhibitedPhrases:  cfg.Controller.ProhibitedPhrases,
			RestrictedModes:    cfg.Controller.RestrictedModes,
			PermittedScopes:    buildPermittedScopes(cfg.ModeScopeTags),
		},
		limiter, pii.New(), safetyEng, rtr, tools, breakers,
		buildPolicyGateway(ctx, cfg),
		wfEngine,
		func(name string) (*hnsc.Workflow, bool) { wf, ok := workflowBy[name]; return wf, ok },
		gen, auditSink,
	)

	return &daemon{
		cfg: cfg, controller: ctrl, workflows: wfEngine, auditSink: auditSink,
		metrics: metrics, launchers: launchers, workflowBy: workflowBy,
	}, nil
}

func buildToolRegistry(entries []config.ToolManifestEntry) (*toolregistry.ToolRegistry, []*pluginhandler.Launcher, error) {
	tools := toolregistry.NewToolRegistry()
	var launchers []*pluginhandler.Launcher
	for _, e := range entries {
		launcher, err := pluginhandler.Launch(e.PluginPath)
		if err != nil {
			return nil, launchers, fmt.Errorf("launch plugin for tool %s: %w", e.Name, err)
		}
		launchers = append(launchers, launcher)

		scopes := make(map[hnsc.ScopeTag]struct{}, len(e.ScopeTags))
		for _, s := range e.ScopeTags {
			scopes[hnsc.ScopeTag(s)] = struct{}{}
		}
		if err := tools.Register(&hnsc.Tool{
			Name:            e.Name,
			ScopeTags:       scopes,
			Handler:         pluginhandler.NewToolHandlerAdapter(launcher),
			Idempotent:      e.Idempotent,
			SideEffectClass: hnsc.SideEffectClass(e.SideEffectClass),
			RiskWeight:      e.RiskWeight,
			Keywords:        e.Keywords,
		}); err != nil {
			return nil, launchers, fmt.Errorf("register tool %s: %w", e.Name, err)
		}
	}
	return tools, launchers, nil
}

func buildRouter(cfg config.RouterConfig, tools *toolregistry.ToolRegistry) *router.Router {
	exact := make([]router.ExactRule, 0, len(cfg.Exact))
	for _, e := range cfg.Exact {
		exact = append(exact, router.ExactRule{Phrase: e.Phrase, ToolName: e.ToolName, WorkflowName: e.WorkflowName})
	}
	regexes := make([]router.RegexRule, 0, len(cfg.Regex))
	for _, e := range cfg.Regex {
		pattern, err := regexp.Compile(e.Pattern)
		if err != nil {
			continue // malformed rule from an admin-edited manifest; skip rather than fail the whole daemon
		}
		regexes = append(regexes, router.RegexRule{Pattern: pattern, ToolName: e.ToolName, WorkflowName: e.WorkflowName})
	}
	return router.New(exact, regexes, nil, tools)
}

func buildWorkflows(defs []config.WorkflowDefinition) map[string]*hnsc.Workflow {
	out := make(map[string]*hnsc.Workflow, len(defs))
	for _, d := range defs {
		steps := make([]*hnsc.Step, 0, len(d.Steps))
		for _, s := range d.Steps {
			deps := make(map[hnsc.StepID]struct{}, len(s.DependsOn))
			for _, dep := range s.DependsOn {
				deps[hnsc.StepID(dep)] = struct{}{}
			}
			steps = append(steps, &hnsc.Step{
				ID:           hnsc.StepID(s.ID),
				ToolName:     s.ToolName,
				ArgsTemplate: json.RawMessage(s.ArgsTemplate),
				DependsOn:    deps,
				OnFailure:    hnsc.OnFailure(s.OnFailure),
				MaxRetries:   s.MaxRetries,
			})
		}
		out[d.Name] = &hnsc.Workflow{Name: d.Name, Steps: steps, MaxConcurrent: d.MaxConcurrent}
	}
	return out
}

func buildPermittedScopes(modeScopeTags map[string][]string) map[hnsc.Mode][]string {
	out := make(map[hnsc.Mode][]string, len(modeScopeTags))
	for mode, scopes := range modeScopeTags {
		out[hnsc.Mode(mode)] = scopes
	}
	return out
}

func buildPolicyGateway(ctx context.Context, cfg *config.Config) *policygateway.Gateway {
	if cfg.Policy.SigningKey == "" {
		return nil
	}
	store := policygateway.NewMemoryStore(policygateway.Manifest{Version: 1})
	gw, err := policygateway.New(ctx, store, policygateway.Config{
		CacheTTL:    time.Duration(cfg.Policy.TTLSeconds) * time.Second,
		SigningKey:  []byte(cfg.Policy.SigningKey),
		TokenIssuer: cfg.Policy.TokenIssuer,
	})
	if err != nil {
		return nil
	}
	return gw
}

func safetyProfileToPII(p config.SafetyProfile) pii.Profile {
	switch p {
	case config.ProfileStaging:
		return pii.ProfileStaging
	case config.ProfileDevelopment:
		return pii.ProfileDevelopment
	default:
		return pii.ProfileProduction
	}
}

func (d *daemon) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/submit", d.handleSubmit)
	mux.HandleFunc("/workflow_status", d.handleWorkflowStatus)
	mux.HandleFunc("/cancel", d.handleCancel)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

type submitRequest struct {
	ActorID        string        `json:"actor_id"`
	SessionID      string        `json:"session_id"`
	Text           string        `json:"text"`
	Mode           hnsc.Mode     `json:"mode"`
	TTL            time.Duration `json:"ttl"`
	ApprovalToken  string        `json:"approval_token"`
}

func (d *daemon) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if body.TTL == 0 {
		body.TTL = 30 * time.Second
	}
	req := hnsc.NewRequest(body.ActorID, body.SessionID, body.Text, body.Mode, body.TTL)
	req.ApprovalToken = body.ApprovalToken

	resp, _ := d.controller.Submit(r.Context(), req)
	writeJSON(w, resp)
}

func (d *daemon) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	handle := workflow.Handle(r.URL.Query().Get("handle"))
	snapshot, ok := d.workflows.Status(handle)
	if !ok {
		http.Error(w, "unknown workflow handle", http.StatusNotFound)
		return
	}
	writeJSON(w, snapshot)
}

func (d *daemon) handleCancel(w http.ResponseWriter, r *http.Request) {
	handle := workflow.Handle(r.URL.Query().Get("handle"))
	if err := d.workflows.Cancel(handle); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
