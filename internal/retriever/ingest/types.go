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

// Package ingest builds the corpus the Retriever searches over: it walks
// a DataSource, extracts text from whatever format it finds, chunks the
// result, embeds each chunk, and hands the embedded chunks to an Upserter
// for the vector-store backend behind the Connection Pool.
package ingest

import "time"

// Document is a single discovered unit of content, before extraction.
type Document struct {
	ID           string
	Content      string
	SourcePath   string
	MimeType     string
	Size         int64
	LastModified time.Time
	Metadata     map[string]any
}

// ExtractedContent is what a ContentExtractor produces from a Document.
type ExtractedContent struct {
	Content       string
	Title         string
	Author        string
	Metadata      map[string]string
	ExtractorName string
}

// Chunk is one piece of extracted content, ready for embedding.
type Chunk struct {
	Content   string
	Index     int
	Total     int
	StartLine int
	EndLine   int
}
