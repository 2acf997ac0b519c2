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

package policygateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// VersionStore abstracts the versioned manifest storage backend so the
// Gateway is testable without a live etcd cluster.
type VersionStore interface {
	// Load returns whichever manifest is current.
	Load(ctx context.Context) (Manifest, error)
	// LoadVersion returns a specific historical or future manifest
	// version, for Migrate's dry-run diff.
	LoadVersion(ctx context.Context, version uint64) (Manifest, error)
	// Watch streams every manifest published after the call, for
	// Watch-based cache invalidation. EtcdStore closes the channel when
	// ctx is done; the in-memory store never closes it.
	Watch(ctx context.Context) <-chan Manifest
}

// etcdKeyPrefix namespaces every key this store touches.
const etcdKeyPrefix = "/hnsc/policy/"

// EtcdStore is the production VersionStore, grounded on the teacher's
// etcd-backed remote config provider: one key per manifest version under
// a fixed prefix, plus a "current" pointer key whose value is the active
// version number. Watch uses etcd's native watch API on the pointer key,
// so invalidation is pushed rather than polled.
type EtcdStore struct {
	client *clientv3.Client
}

// NewEtcdStore wraps an already-connected etcd client.
func NewEtcdStore(client *clientv3.Client) *EtcdStore {
	return &EtcdStore{client: client}
}

func (s *EtcdStore) Load(ctx context.Context) (Manifest, error) {
	resp, err := s.client.Get(ctx, etcdKeyPrefix+"current")
	if err != nil {
		return Manifest{}, fmt.Errorf("policygateway: read current pointer: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return Manifest{}, fmt.Errorf("policygateway: no current policy version published")
	}
	version, err := strconv.ParseUint(string(resp.Kvs[0].Value), 10, 64)
	if err != nil {
		return Manifest{}, fmt.Errorf("policygateway: malformed current pointer: %w", err)
	}
	return s.LoadVersion(ctx, version)
}

func (s *EtcdStore) LoadVersion(ctx context.Context, version uint64) (Manifest, error) {
	key := etcdKeyPrefix + "versions/" + strconv.FormatUint(version, 10)
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return Manifest{}, fmt.Errorf("policygateway: read version %d: %w", version, err)
	}
	if len(resp.Kvs) == 0 {
		return Manifest{}, fmt.Errorf("policygateway: version %d not found", version)
	}
	var m Manifest
	if err := json.Unmarshal(resp.Kvs[0].Value, &m); err != nil {
		return Manifest{}, fmt.Errorf("policygateway: decode version %d: %w", version, err)
	}
	m.Version = version
	if m.Checksum == "" {
		m.Checksum = computeChecksum(m)
	}
	return m, nil
}

func (s *EtcdStore) Watch(ctx context.Context) <-chan Manifest {
	out := make(chan Manifest)
	watchCh := s.client.Watch(ctx, etcdKeyPrefix+"current")
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case resp, ok := <-watchCh:
				if !ok {
					return
				}
				for _, ev := range resp.Events {
					if ev.Type != clientv3.EventTypePut {
						continue
					}
					version, err := strconv.ParseUint(string(ev.Kv.Value), 10, 64)
					if err != nil {
						continue
					}
					manifest, err := s.LoadVersion(ctx, version)
					if err != nil {
						continue
					}
					select {
					case out <- manifest:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}

// Publish writes a new manifest version and, if setCurrent is set,
// advances the current pointer to it. This is an administrative
// operation used by cmd/hnscctl, not by the Gateway's own read path.
func (s *EtcdStore) Publish(ctx context.Context, m Manifest, setCurrent bool) error {
	m.Checksum = computeChecksum(m)
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("policygateway: encode manifest: %w", err)
	}
	key := etcdKeyPrefix + "versions/" + strconv.FormatUint(m.Version, 10)
	if _, err := s.client.Put(ctx, key, string(body)); err != nil {
		return fmt.Errorf("policygateway: publish version %d: %w", m.Version, err)
	}
	if setCurrent {
		if _, err := s.client.Put(ctx, etcdKeyPrefix+"current", strconv.FormatUint(m.Version, 10)); err != nil {
			return fmt.Errorf("policygateway: advance current pointer: %w", err)
		}
	}
	return nil
}

// memoryStore is an in-process VersionStore for tests and for
// deployments that opt out of distributed policy storage.
type memoryStore struct {
	manifests map[uint64]Manifest
	current   uint64
	watchers  []chan Manifest
}

// NewMemoryStore builds a VersionStore seeded with one manifest version.
func NewMemoryStore(initial Manifest) *memoryStore {
	initial.Checksum = computeChecksum(initial)
	return &memoryStore{manifests: map[uint64]Manifest{initial.Version: initial}, current: initial.Version}
}

func (s *memoryStore) Load(ctx context.Context) (Manifest, error) {
	return s.LoadVersion(ctx, s.current)
}

func (s *memoryStore) LoadVersion(_ context.Context, version uint64) (Manifest, error) {
	m, ok := s.manifests[version]
	if !ok {
		return Manifest{}, fmt.Errorf("policygateway: version %d not found", version)
	}
	return m.clone(), nil
}

func (s *memoryStore) Watch(ctx context.Context) <-chan Manifest {
	ch := make(chan Manifest, 1)
	s.watchers = append(s.watchers, ch)
	go func() {
		<-ctx.Done()
	}()
	return ch
}

// Publish adds or replaces a version and, if setCurrent, notifies watchers.
func (s *memoryStore) Publish(m Manifest, setCurrent bool) {
	m.Checksum = computeChecksum(m)
	s.manifests[m.Version] = m
	if setCurrent {
		s.current = m.Version
		for _, w := range s.watchers {
			select {
			case w <- m.clone():
			default:
			}
		}
	}
}
