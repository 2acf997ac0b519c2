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

// Package audit implements an append-only, hash-chained event log with one
// stream per named category. Writers are serialized per stream to preserve
// the dense, strictly-increasing sequence invariant; different streams may
// be written concurrently.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event is one hash-chained audit record.
type Event struct {
	Seq        uint64
	MonotonicTS time.Time
	WallTS     time.Time
	Category   string
	ActorID    string
	RequestID  string
	Fields     map[string]any
	PrevHash   string
	Hash       string
}

// Writer persists one already-hashed Event to durable storage, in append
// order. Implementations must never reorder or rewrite prior entries.
type Writer interface {
	// WriteEvent appends ev, returning an error if it could not be
	// persisted.
	WriteEvent(ev Event) error
	// LastHash returns the hash of the most recently written event, or
	// "" if the stream is empty. Called once at startup so a restarted
	// process continues the same chain instead of starting a new one.
	LastHash() (string, error)
	Close() error
}

// stream is a single hash-chained, single-writer audit stream.
type stream struct {
	mu       sync.Mutex
	name     string
	writer   Writer
	seq      uint64
	prevHash string
}

// Sink is the top-level C1 component: a named collection of streams.
type Sink struct {
	mu      sync.RWMutex
	streams map[string]*stream
	newWriter func(streamName string) (Writer, error)
	logger  *slog.Logger
	metrics Metrics
}

// Metrics is the narrow counter surface the Sink updates; satisfied by
// internal/telemetry without this package importing Prometheus directly.
type Metrics interface {
	IncAppend(stream string)
}

type noopMetrics struct{}

func (noopMetrics) IncAppend(string) {}

// New creates a Sink. newWriter is invoked lazily, once per distinct
// stream name, the first time that stream is appended to or opened
// explicitly via Open.
func New(newWriter func(streamName string) (Writer, error), logger *slog.Logger, metrics Metrics) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Sink{
		streams:   make(map[string]*stream),
		newWriter: newWriter,
		logger:    logger,
		metrics:   metrics,
	}
}

// Open eagerly initializes a named stream, seeding its hash chain from the
// writer's last entry so a restarted process continues the same chain.
func (s *Sink) Open(name string) error {
	_, err := s.streamFor(name)
	return err
}

func (s *Sink) streamFor(name string) (*stream, error) {
	s.mu.RLock()
	st, ok := s.streams[name]
	s.mu.RUnlock()
	if ok {
		return st, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[name]; ok {
		return st, nil
	}

	w, err := s.newWriter(name)
	if err != nil {
		return nil, fmt.Errorf("audit: open stream %q: %w", name, err)
	}
	last, err := w.LastHash()
	if err != nil {
		return nil, fmt.Errorf("audit: seed stream %q: %w", name, err)
	}
	st = &stream{name: name, writer: w, prevHash: last}
	s.streams[name] = st
	return st, nil
}

// WriteError is returned when the backing store for a stream is
// unwritable. Callers that cannot tolerate an unaudited action should
// treat this as fatal to the action, not just to the log entry.
type WriteError struct {
	Stream string
	Cause  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("audit: stream %q unwritable: %v", e.Stream, e.Cause) }
func (e *WriteError) Unwrap() error { return e.Cause }

// Append writes a new hash-chained event to the named stream and returns
// its sequence number.
func (s *Sink) Append(ctx context.Context, streamName, category, actorID, requestID string, fields map[string]any) (uint64, error) {
	st, err := s.streamFor(streamName)
	if err != nil {
		return 0, &WriteError{Stream: streamName, Cause: err}
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	seq := st.seq + 1
	now := time.Now()
	ev := Event{
		Seq:         seq,
		MonotonicTS: now,
		WallTS:      now,
		Category:    category,
		ActorID:     actorID,
		RequestID:   requestID,
		Fields:      fields,
		PrevHash:    st.prevHash,
	}
	ev.Hash = computeHash(ev.PrevHash, ev.Fields, seq, category, actorID, requestID)

	if err := st.writer.WriteEvent(ev); err != nil {
		s.logger.Error("audit write failed", "stream", streamName, "error", err)
		return 0, &WriteError{Stream: streamName, Cause: err}
	}

	st.seq = seq
	st.prevHash = ev.Hash
	s.metrics.IncAppend(streamName)
	return seq, nil
}

// computeHash implements hash_i = H(hash_{i-1} || canonical(fields_i)),
// extended with the indexable (seq, category, actor, request) header so
// two events with identical fields in different streams/positions never
// collide.
func computeHash(prevHash string, fields map[string]any, seq uint64, category, actorID, requestID string) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d|%s|%s|%s|", seq, category, actorID, requestID)
	h.Write(canonicalize(fields))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain re-derives every hash in order and reports the first index
// at which the stored hash diverges from the recomputed one, or -1 if the
// entire chain verifies.
func VerifyChain(events []Event) int {
	prev := ""
	for i, ev := range events {
		want := computeHash(prev, ev.Fields, ev.Seq, ev.Category, ev.ActorID, ev.RequestID)
		if want != ev.Hash || ev.PrevHash != prev {
			return i
		}
		prev = ev.Hash
	}
	return -1
}

// Close closes every open stream writer.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, st := range s.streams {
		if err := st.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
