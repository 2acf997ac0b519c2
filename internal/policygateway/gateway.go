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

// Package policygateway scores the risk of a requested tool invocation
// against a versioned, per-role capability manifest, caches the
// decision, and issues short-lived JWT approval tokens the Controller's
// pre-tool checkpoint can verify for high-risk calls.
package policygateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Decision is the outcome of one risk evaluation.
type Decision struct {
	Allow     bool
	RiskScore float64
	Reasons   []string
}

// Manifest is one versioned policy snapshot: per-role tool capability
// sets plus per-tool base risk and per-context modifiers.
type Manifest struct {
	Version     uint64
	Checksum    string
	Roles       map[string]map[string]bool // role -> tool name -> allowed
	BaseRisk    map[string]float64         // tool name -> base risk in [0,1]
	Modifiers   map[string]float64         // context modifier key -> delta
	DenyAbove   float64                    // risk_score threshold that forces deny regardless of role
}

func (m Manifest) clone() Manifest {
	roles := make(map[string]map[string]bool, len(m.Roles))
	for role, tools := range m.Roles {
		t := make(map[string]bool, len(tools))
		for k, v := range tools {
			t[k] = v
		}
		roles[role] = t
	}
	baseRisk := make(map[string]float64, len(m.BaseRisk))
	for k, v := range m.BaseRisk {
		baseRisk[k] = v
	}
	modifiers := make(map[string]float64, len(m.Modifiers))
	for k, v := range m.Modifiers {
		modifiers[k] = v
	}
	return Manifest{Version: m.Version, Checksum: m.Checksum, Roles: roles, BaseRisk: baseRisk, Modifiers: modifiers, DenyAbove: m.DenyAbove}
}

// computeChecksum is deterministic over the manifest's logical content, so
// two manifests built from identical policy source hash identically
// regardless of map iteration order.
func computeChecksum(m Manifest) string {
	b, _ := json.Marshal(struct {
		Roles     map[string]map[string]bool
		BaseRisk  map[string]float64
		Modifiers map[string]float64
		DenyAbove float64
	}{m.Roles, m.BaseRisk, m.Modifiers, m.DenyAbove})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// cacheEntry memoizes a decision for a fingerprinted (actor role, tool,
// context) tuple, scoped to the manifest version it was computed under.
type cacheEntry struct {
	decision      Decision
	manifestVer   uint64
	expiresAt     time.Time
}

// Gateway is the C14 Policy Gateway.
type Gateway struct {
	store    VersionStore
	cacheTTL time.Duration
	signer   *tokenSigner

	mu       sync.Mutex
	current  Manifest
	cache    map[string]cacheEntry
	onChange chan struct{}
}

// Config holds Gateway tunables.
type Config struct {
	CacheTTL     time.Duration
	TokenTTL     time.Duration
	SigningKey   []byte // HMAC key used to sign/verify approval tokens
	TokenIssuer  string
}

// New constructs a Gateway seeded from the store's current manifest and
// begins watching it for version changes.
func New(ctx context.Context, store VersionStore, cfg Config) (*Gateway, error) {
	manifest, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("policygateway: load initial manifest: %w", err)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 5 * time.Minute
	}
	g := &Gateway{
		store:    store,
		cacheTTL: cfg.CacheTTL,
		signer:   newTokenSigner(cfg.SigningKey, cfg.TokenIssuer, cfg.TokenTTL),
		current:  manifest,
		cache:    make(map[string]cacheEntry),
	}
	updates := store.Watch(ctx)
	go g.consumeUpdates(ctx, updates)
	return g, nil
}

func (g *Gateway) consumeUpdates(ctx context.Context, updates <-chan Manifest) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-updates:
			if !ok {
				return
			}
			g.mu.Lock()
			g.current = m
			g.cache = make(map[string]cacheEntry) // version bump invalidates the whole cache
			g.mu.Unlock()
		}
	}
}

// snapshot returns the manifest version in effect right now, for per-request
// snapshot isolation: a request that started evaluation under version N
// finishes under version N even if a concurrent migrate() bumps the version
// mid-flight.
func (g *Gateway) snapshot() Manifest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Decide implements decide(actor, tool, context) -> PolicyDecision: risk
// score is base_risk(tool) plus the sum of the named context modifiers,
// clamped to [0,1]; allow requires both role capability and risk below
// DenyAbove.
func (g *Gateway) Decide(role, tool string, contextModifiers []string) Decision {
	manifest := g.snapshot()
	fingerprint := fingerprintFor(manifest.Version, role, tool, contextModifiers)

	g.mu.Lock()
	if entry, ok := g.cache[fingerprint]; ok && entry.manifestVer == manifest.Version && time.Now().Before(entry.expiresAt) {
		g.mu.Unlock()
		return entry.decision
	}
	g.mu.Unlock()

	decision := evaluate(manifest, role, tool, contextModifiers)

	g.mu.Lock()
	g.cache[fingerprint] = cacheEntry{decision: decision, manifestVer: manifest.Version, expiresAt: time.Now().Add(g.cacheTTL)}
	g.mu.Unlock()

	return decision
}

func evaluate(manifest Manifest, role, tool string, contextModifiers []string) Decision {
	tools, roleKnown := manifest.Roles[role]
	allowed := roleKnown && tools[tool]

	risk := manifest.BaseRisk[tool]
	for _, mod := range contextModifiers {
		risk += manifest.Modifiers[mod]
	}
	if risk < 0 {
		risk = 0
	}
	if risk > 1 {
		risk = 1
	}

	reasons := []string{}
	if !allowed {
		reasons = append(reasons, fmt.Sprintf("role %q has no capability for tool %q", role, tool))
	}
	if manifest.DenyAbove > 0 && risk > manifest.DenyAbove {
		allowed = false
		reasons = append(reasons, fmt.Sprintf("risk score %.2f exceeds deny threshold %.2f", risk, manifest.DenyAbove))
	}

	return Decision{Allow: allowed, RiskScore: risk, Reasons: reasons}
}

func fingerprintFor(version uint64, role, tool string, contextModifiers []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%v", version, role, tool, contextModifiers)
	return hex.EncodeToString(h.Sum(nil))
}

// IssueApproval mints a signed, short-lived token scoping approval to
// (actorID, tool), used by a human-in-the-loop step to authorize a
// high-risk tool call the Controller's pre-tool checkpoint requires
// has_approval for.
func (g *Gateway) IssueApproval(actorID, tool string) (string, error) {
	return g.signer.issue(actorID, tool)
}

// VerifyApproval reports whether token is a currently-valid approval for
// (actorID, tool).
func (g *Gateway) VerifyApproval(_ context.Context, token, actorID, tool string) bool {
	return g.signer.verify(token, actorID, tool)
}

// MigrationReport is the diff/impact report returned by Migrate in
// dry-run mode, and the record of what actually changed otherwise.
type MigrationReport struct {
	FromVersion    uint64
	ToVersion      uint64
	AddedGrants    []string // "role:tool" pairs newly allowed
	RemovedGrants  []string // "role:tool" pairs newly denied
	RiskChanges    map[string][2]float64 // tool -> [old, new] base risk
	DryRun         bool
}

// Migrate implements migrate(to_version, dry_run): it diffs the current
// manifest against the target version and, unless dryRun is set, commits
// the target as current and invalidates the decision cache. Writing a
// checksummed policy.version audit record is the caller's responsibility
// once this returns, since Migrate has no audit sink dependency of its
// own.
func (g *Gateway) Migrate(ctx context.Context, toVersion uint64, dryRun bool) (MigrationReport, error) {
	target, err := g.store.LoadVersion(ctx, toVersion)
	if err != nil {
		return MigrationReport{}, fmt.Errorf("policygateway: load version %d: %w", toVersion, err)
	}

	current := g.snapshot()
	report := diffManifests(current, target)
	report.DryRun = dryRun
	if dryRun {
		return report, nil
	}

	g.mu.Lock()
	g.current = target
	g.cache = make(map[string]cacheEntry)
	g.mu.Unlock()

	return report, nil
}

func diffManifests(from, to Manifest) MigrationReport {
	report := MigrationReport{FromVersion: from.Version, ToVersion: to.Version, RiskChanges: map[string][2]float64{}}

	for role, tools := range to.Roles {
		for tool, allowed := range tools {
			if !allowed {
				continue
			}
			if !from.Roles[role][tool] {
				report.AddedGrants = append(report.AddedGrants, role+":"+tool)
			}
		}
	}
	for role, tools := range from.Roles {
		for tool, allowed := range tools {
			if !allowed {
				continue
			}
			if !to.Roles[role][tool] {
				report.RemovedGrants = append(report.RemovedGrants, role+":"+tool)
			}
		}
	}
	for tool, newRisk := range to.BaseRisk {
		oldRisk := from.BaseRisk[tool]
		if oldRisk != newRisk {
			report.RiskChanges[tool] = [2]float64{oldRisk, newRisk}
		}
	}
	return report
}
