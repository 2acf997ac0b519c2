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
	"os"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/kadirpekel/hnsc/internal/policygateway"
)

// PolicyCmd groups the etcd-backed manifest administration subcommands.
type PolicyCmd struct {
	Migrate MigrateCmd `cmd:"" help:"Diff and optionally commit a manifest version change."`
	Publish PublishCmd `cmd:"" help:"Publish a new manifest version from a JSON file."`

	EtcdEndpoints []string      `help:"etcd endpoints." default:"localhost:2379"`
	DialTimeout   time.Duration `help:"etcd dial timeout." default:"5s"`
}

func (c *PolicyCmd) store() (*policygateway.EtcdStore, func(), error) {
	client, err := clientv3.New(clientv3.Config{Endpoints: c.EtcdEndpoints, DialTimeout: c.DialTimeout})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to etcd: %w", err)
	}
	return policygateway.NewEtcdStore(client), func() { client.Close() }, nil
}

// MigrateCmd diffs the current manifest against a target version and,
// unless --dry-run is set, commits it.
type MigrateCmd struct {
	ToVersion uint64 `help:"Target manifest version." required:""`
	DryRun    bool   `help:"Report the diff without committing."`
}

func (c *MigrateCmd) Run(cli *CLI) error {
	store, closeStore, err := cli.Policy.store()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gw, err := policygateway.New(ctx, store, policygateway.Config{})
	if err != nil {
		return fmt.Errorf("load current manifest: %w", err)
	}

	report, err := gw.Migrate(ctx, c.ToVersion, c.DryRun)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// manifestFile is the on-disk shape a policy manifest is authored in,
// decoded here and converted to policygateway.Manifest (which carries no
// json tags of its own, since only hnscctl ever serializes one).
type manifestFile struct {
	Version   uint64                     `json:"version"`
	Roles     map[string]map[string]bool `json:"roles"`
	BaseRisk  map[string]float64         `json:"base_risk"`
	Modifiers map[string]float64         `json:"modifiers"`
	DenyAbove float64                    `json:"deny_above"`
}

// PublishCmd writes a new manifest version to etcd.
type PublishCmd struct {
	File       string `help:"Path to the manifest JSON file." type:"path" required:""`
	SetCurrent bool   `help:"Advance the current pointer to this version."`
}

func (c *PublishCmd) Run(cli *CLI) error {
	raw, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read manifest file: %w", err)
	}
	var mf manifestFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return fmt.Errorf("decode manifest file: %w", err)
	}

	store, closeStore, err := cli.Policy.store()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manifest := policygateway.Manifest{
		Version:   mf.Version,
		Roles:     mf.Roles,
		BaseRisk:  mf.BaseRisk,
		Modifiers: mf.Modifiers,
		DenyAbove: mf.DenyAbove,
	}
	if err := store.Publish(ctx, manifest, c.SetCurrent); err != nil {
		return fmt.Errorf("publish manifest: %w", err)
	}
	fmt.Printf("published policy version %d (current=%v)\n", manifest.Version, c.SetCurrent)
	return nil
}
