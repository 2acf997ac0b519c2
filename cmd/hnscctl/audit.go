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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kadirpekel/hnsc/internal/audit"
)

// AuditCmd groups audit-log inspection subcommands. Both operate directly
// on the NDJSON files hnscd's FileWriter produces, since the Sink itself
// exposes no read path.
type AuditCmd struct {
	Tail   AuditTailCmd   `cmd:"" help:"Print the most recent events in a stream."`
	Verify AuditVerifyCmd `cmd:"" help:"Verify a stream's hash chain end to end."`

	Dir string `help:"Audit stream directory." default:"./data/audit"`
}

type auditRecord struct {
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

func readStream(dir, streamName string) ([]auditRecord, error) {
	path := filepath.Join(dir, streamName+".ndjson")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var records []auditRecord
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec auditRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("corrupt line in %s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// AuditTailCmd prints the last N events of a stream, newest last.
type AuditTailCmd struct {
	Stream string `help:"Stream name." required:""`
	Lines  int    `help:"Number of trailing events to print." default:"20"`
}

func (c *AuditTailCmd) Run(cli *CLI) error {
	records, err := readStream(cli.Audit.Dir, c.Stream)
	if err != nil {
		return err
	}

	start := 0
	if len(records) > c.Lines {
		start = len(records) - c.Lines
	}
	for _, rec := range records[start:] {
		ts := time.Unix(rec.WallTS, 0).Format(time.RFC3339)
		fmt.Printf("%d\t%s\t%s\tactor=%s\trequest=%s\n", rec.Seq, ts, rec.Category, rec.ActorID, rec.ReqID)
	}
	return nil
}

// AuditVerifyCmd re-derives the hash chain and reports the first broken
// link, if any.
type AuditVerifyCmd struct {
	Stream string `help:"Stream name." required:""`
}

func (c *AuditVerifyCmd) Run(cli *CLI) error {
	records, err := readStream(cli.Audit.Dir, c.Stream)
	if err != nil {
		return err
	}

	events := make([]audit.Event, 0, len(records))
	for _, rec := range records {
		events = append(events, audit.Event{
			Seq:       rec.Seq,
			WallTS:    time.Unix(rec.WallTS, 0),
			Category:  rec.Category,
			ActorID:   rec.ActorID,
			RequestID: rec.ReqID,
			Fields:    rec.Fields,
			PrevHash:  rec.PrevHash,
			Hash:      rec.Hash,
		})
	}

	if idx := audit.VerifyChain(events); idx != -1 {
		return fmt.Errorf("chain broken at seq %d (index %d)", events[idx].Seq, idx)
	}
	fmt.Printf("stream %q: %d events verified\n", c.Stream, len(events))
	return nil
}
