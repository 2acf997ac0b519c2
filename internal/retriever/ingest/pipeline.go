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

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/hnsc/internal/retriever"
)

// Upserter writes embedded documents into whatever vector-store backend
// sits behind the Connection Pool.
type Upserter interface {
	Upsert(ctx context.Context, docs []retriever.Document) error
}

// Pipeline turns a DataSource into embedded, upserted retriever.Documents:
// discover, extract, chunk, embed, upsert.
type Pipeline struct {
	source     DataSource
	extractors *ExtractorRegistry
	chunker    *Chunker
	embedder   retriever.Embedder
	upserter   Upserter
	logger     *slog.Logger
}

// NewPipeline builds a Pipeline. embedder and upserter are required;
// extractors defaults to NewExtractorRegistry() if nil.
func NewPipeline(source DataSource, extractors *ExtractorRegistry, chunker *Chunker, embedder retriever.Embedder, upserter Upserter, logger *slog.Logger) *Pipeline {
	if extractors == nil {
		extractors = NewExtractorRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{source: source, extractors: extractors, chunker: chunker, embedder: embedder, upserter: upserter, logger: logger}
}

// Stats summarizes one Run.
type Stats struct {
	DocumentsDiscovered int
	DocumentsIndexed    int
	ChunksIndexed       int
	Errors              int
}

// Run discovers every document in the source, extracts and chunks each
// one, embeds every chunk, and upserts each document's chunks as one
// batch. A per-document failure is logged and counted, not fatal to the
// run.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	docCh, errCh := p.source.DiscoverDocuments(ctx)
	var stats Stats

	for docCh != nil || errCh != nil {
		select {
		case doc, ok := <-docCh:
			if !ok {
				docCh = nil
				continue
			}
			stats.DocumentsDiscovered++
			n, err := p.indexDocument(ctx, doc)
			if err != nil {
				stats.Errors++
				p.logger.Warn("ingest: failed to index document", "source_path", doc.SourcePath, "error", err)
				continue
			}
			stats.DocumentsIndexed++
			stats.ChunksIndexed += n

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			stats.Errors++
			p.logger.Warn("ingest: discovery error", "error", err)

		case <-ctx.Done():
			return stats, ctx.Err()
		}
	}

	return stats, nil
}

func (p *Pipeline) indexDocument(ctx context.Context, doc Document) (int, error) {
	extracted, err := p.extractors.Extract(ctx, doc)
	if err != nil {
		return 0, err
	}

	chunks := p.chunker.Chunk(extracted.Content)
	embedded := make([]retriever.Document, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := p.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d of %s: %w", chunk.Index, doc.SourcePath, err)
		}
		embedded = append(embedded, retriever.Document{
			ID:     fmt.Sprintf("%s#%d", doc.ID, chunk.Index),
			Text:   chunk.Content,
			Vector: vec,
			Meta: map[string]any{
				"source_path":   doc.SourcePath,
				"title":         extracted.Title,
				"extractor":     extracted.ExtractorName,
				"chunk_index":   chunk.Index,
				"chunk_total":   chunk.Total,
				"start_line":    chunk.StartLine,
				"end_line":      chunk.EndLine,
				"last_modified": doc.LastModified.Unix(),
			},
		})
	}

	if len(embedded) == 0 {
		return 0, nil
	}
	if err := p.upserter.Upsert(ctx, embedded); err != nil {
		return 0, fmt.Errorf("upsert %s: %w", doc.SourcePath, err)
	}
	return len(embedded), nil
}
