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
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// pdfExtractor extracts page text from PDF files.
type pdfExtractor struct{}

func (pdfExtractor) Name() string { return "pdf" }

func (pdfExtractor) Priority() int { return 10 }

func (pdfExtractor) CanExtract(path, mimeType string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf") || mimeType == "application/pdf"
}

func (pdfExtractor) Extract(ctx context.Context, path string, fileSize int64) (*ExtractedContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open pdf: %w", err)
	}
	defer f.Close()

	reader, err := pdf.NewReader(f, fileSize)
	if err != nil {
		return nil, fmt.Errorf("ingest: parse pdf: %w", err)
	}

	var parts []string
	for page := 1; page <= reader.NumPage(); page++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		text, err := reader.Page(page).GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	return &ExtractedContent{
		Content: strings.Join(parts, "\n\n"),
		Title:   filepath.Base(path),
		Metadata: map[string]string{
			"type":  "pdf",
			"pages": fmt.Sprintf("%d", reader.NumPage()),
		},
	}, nil
}

// officeExtractor handles Word (.docx) and Excel (.xlsx) documents.
type officeExtractor struct{}

func (officeExtractor) Name() string { return "office" }

func (officeExtractor) Priority() int { return 10 }

func (officeExtractor) CanExtract(path, mimeType string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".docx" || ext == ".xlsx"
}

func (officeExtractor) Extract(ctx context.Context, path string, fileSize int64) (*ExtractedContent, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return extractDocx(path)
	case ".xlsx":
		return extractXlsx(ctx, path)
	default:
		return nil, fmt.Errorf("ingest: unsupported office format: %s", filepath.Ext(path))
	}
}

func extractDocx(path string) (*ExtractedContent, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	return &ExtractedContent{
		Content: content,
		Title:   filepath.Base(path),
		Metadata: map[string]string{
			"type": "docx",
		},
	}, nil
}

func extractXlsx(ctx context.Context, path string) (*ExtractedContent, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var parts []string
	for _, sheet := range sheets {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "--- Sheet: %s ---\n", sheet)
		for _, row := range rows {
			for _, cell := range row {
				if text := strings.TrimSpace(cell); text != "" {
					b.WriteString(text)
					b.WriteString("\n")
				}
			}
		}
		parts = append(parts, b.String())
	}

	return &ExtractedContent{
		Content: strings.Join(parts, "\n\n"),
		Title:   filepath.Base(path),
		Metadata: map[string]string{
			"type":   "xlsx",
			"sheets": fmt.Sprintf("%d", len(sheets)),
		},
	}, nil
}

var (
	_ ContentExtractor = (*pdfExtractor)(nil)
	_ ContentExtractor = (*officeExtractor)(nil)
)
