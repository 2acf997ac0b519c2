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

package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileWriter persists one stream as newline-delimited JSON, one file per
// stream.
type FileWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

// NewFileWriter opens (creating if necessary) the NDJSON file for a
// stream under dir/<streamName>.ndjson.
func NewFileWriter(dir, streamName string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, streamName+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &FileWriter{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// NewFileWriterFactory returns a newWriter callback for Sink, rooting
// every stream's file under dir.
func NewFileWriterFactory(dir string) func(string) (Writer, error) {
	return func(streamName string) (Writer, error) {
		return NewFileWriter(dir, streamName)
	}
}

type fileRecord struct {
	Seq      uint64         `json:"seq"`
	MonoTS   int64          `json:"monotonic_ts"`
	WallTS   int64          `json:"wall_ts"`
	Category string         `json:"category"`
	ActorID  string         `json:"actor_id"`
	ReqID    string         `json:"request_id"`
	Fields   map[string]any `json:"fields"`
	PrevHash string         `json:"prev_hash"`
	Hash     string         `json:"hash"`
}

func (fw *FileWriter) WriteEvent(ev Event) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	rec := fileRecord{
		Seq: ev.Seq, MonoTS: ev.MonotonicTS.UnixNano(), WallTS: ev.WallTS.Unix(),
		Category: ev.Category, ActorID: ev.ActorID, ReqID: ev.RequestID,
		Fields: ev.Fields, PrevHash: ev.PrevHash, Hash: ev.Hash,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := fw.w.Write(line); err != nil {
		return err
	}
	if err := fw.w.WriteByte('\n'); err != nil {
		return err
	}
	return fw.w.Flush()
}

// LastHash scans the file for its final line and returns its hash. This
// is O(file size); acceptable because it runs once per stream at startup.
func (fw *FileWriter) LastHash() (string, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.f.Seek(0, 0); err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(fw.f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var last string
	for scanner.Scan() {
		var rec fileRecord
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			return "", fmt.Errorf("audit: corrupt line in %s: %w", fw.path, err)
		}
		last = rec.Hash
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if _, err := fw.f.Seek(0, 2); err != nil {
		return "", err
	}
	return last, nil
}

func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.w.Flush(); err != nil {
		return err
	}
	return fw.f.Close()
}
