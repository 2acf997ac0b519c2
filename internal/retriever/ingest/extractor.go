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
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// ContentExtractor pulls plain text out of one document format.
type ContentExtractor interface {
	Name() string
	CanExtract(path, mimeType string) bool
	Extract(ctx context.Context, path string, fileSize int64) (*ExtractedContent, error)
	Priority() int
}

// ExtractorRegistry tries every registered extractor, highest priority
// first, and returns the first successful extraction.
type ExtractorRegistry struct {
	extractors []ContentExtractor
}

// NewExtractorRegistry builds a registry preloaded with the text
// extractor and the native PDF/DOCX/XLSX extractors.
func NewExtractorRegistry() *ExtractorRegistry {
	r := &ExtractorRegistry{}
	r.Register(&textExtractor{})
	r.Register(&pdfExtractor{})
	r.Register(&officeExtractor{})
	return r
}

// Register adds an extractor, keeping the list sorted by descending
// priority.
func (r *ExtractorRegistry) Register(e ContentExtractor) {
	r.extractors = append(r.extractors, e)
	sort.Slice(r.extractors, func(i, j int) bool { return r.extractors[i].Priority() > r.extractors[j].Priority() })
}

// Extract runs the file at doc.ID (the document's full path) through each
// matching extractor in priority order and returns the first non-empty
// result; doc.Content is not consulted.
func (r *ExtractorRegistry) Extract(ctx context.Context, doc Document) (*ExtractedContent, error) {
	for _, e := range r.extractors {
		if !e.CanExtract(doc.ID, doc.MimeType) {
			continue
		}
		content, err := e.Extract(ctx, doc.ID, doc.Size)
		if err != nil || content == nil {
			continue
		}
		content.ExtractorName = e.Name()
		return content, nil
	}
	return nil, fmt.Errorf("ingest: no extractor for %s (mime %s)", doc.SourcePath, doc.MimeType)
}

// textExtractor handles plain text and structured-text formats (json,
// xml, markdown, source code) by reading the file directly.
type textExtractor struct{}

func (textExtractor) Name() string { return "text" }

func (textExtractor) Priority() int { return 1 }

func (textExtractor) CanExtract(path, mimeType string) bool {
	if mimeType != "" {
		return isTextMimeType(mimeType)
	}
	return !looksBinary(path)
}

func (textExtractor) Extract(ctx context.Context, path string, fileSize int64) (*ExtractedContent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := cleanUTF8(string(raw))
	if content == "" {
		return nil, nil
	}
	return &ExtractedContent{Content: content, Title: filepath.Base(path), Metadata: map[string]string{}}, nil
}

func isTextMimeType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") ||
		mimeType == "application/json" ||
		mimeType == "application/xml" ||
		strings.Contains(mimeType, "javascript")
}

func looksBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil || n == 0 {
		return false
	}
	return !isTextMimeType(http.DetectContentType(buf[:n]))
}

func cleanUTF8(content string) string {
	if utf8.ValidString(content) {
		return content
	}
	cleaned := strings.ToValidUTF8(content, "")
	if float64(len(content)-len(cleaned))/float64(len(content)) > 0.5 {
		return ""
	}
	return cleaned
}

var _ ContentExtractor = (*textExtractor)(nil)
