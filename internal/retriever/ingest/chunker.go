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

package ingest

import "strings"

// ChunkerConfig tunes how extracted content is split before embedding.
type ChunkerConfig struct {
	// Size is the target chunk size in bytes.
	Size int
	// Overlap is how much trailing content from the previous chunk is
	// repeated at the start of the next, preserving context across a
	// chunk boundary.
	Overlap int
}

// SetDefaults fills unset fields with retrieval-friendly defaults.
func (c *ChunkerConfig) SetDefaults() {
	if c.Size <= 0 {
		c.Size = 1000
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		c.Overlap = c.Size / 5
	}
}

// Chunker splits extracted content into overlapping, line-aligned pieces.
type Chunker struct {
	cfg ChunkerConfig
}

// NewChunker builds a Chunker, defaulting any zero-valued config fields.
func NewChunker(cfg ChunkerConfig) *Chunker {
	cfg.SetDefaults()
	return &Chunker{cfg: cfg}
}

// Chunk splits content on line boundaries into pieces close to cfg.Size,
// repeating the last cfg.Overlap bytes of a chunk at the start of the
// next one.
func (c *Chunker) Chunk(content string) []Chunk {
	if len(content) <= c.cfg.Size {
		return []Chunk{{Content: content, Index: 0, Total: 1, StartLine: 1, EndLine: countLines(content)}}
	}

	lines := strings.Split(content, "\n")
	var chunks []Chunk
	var cur strings.Builder
	var overlap strings.Builder
	startLine := 1

	flush := func(endLine int) {
		chunks = append(chunks, Chunk{
			Content:   cur.String(),
			Index:     len(chunks),
			StartLine: startLine,
			EndLine:   endLine,
		})
		if c.cfg.Overlap > 0 {
			tail := cur.String()
			if len(tail) > c.cfg.Overlap {
				tail = tail[len(tail)-c.cfg.Overlap:]
			}
			overlap.Reset()
			overlap.WriteString(tail)
		}
		cur.Reset()
		cur.WriteString(overlap.String())
	}

	for i, line := range lines {
		lineWithNL := line + "\n"
		if cur.Len() > 0 && cur.Len()+len(lineWithNL) > c.cfg.Size {
			flush(i)
			startLine = i + 1 - countLines(overlap.String())
			if startLine < 1 {
				startLine = i + 1
			}
		}
		cur.WriteString(lineWithNL)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, Chunk{Content: cur.String(), Index: len(chunks), StartLine: startLine, EndLine: len(lines)})
	}

	for i := range chunks {
		chunks[i].Total = len(chunks)
	}
	return chunks
}

func countLines(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
