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
	"mime"
	"os"
	"path/filepath"
	"regexp"
)

// DataSource discovers documents to feed into the ingestion pipeline.
// Directory trees are the only source implemented here; a SQL- or
// API-backed source would satisfy the same interface.
type DataSource interface {
	DiscoverDocuments(ctx context.Context) (<-chan Document, <-chan error)
	Close() error
}

// FileFilter decides whether a walked path belongs in the corpus.
type FileFilter interface {
	ShouldInclude(path string) bool
	ShouldExclude(path string) bool
}

// PatternFilter includes/excludes paths by glob pattern, matched against
// the path relative to the source root.
type PatternFilter struct {
	root    string
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewPatternFilter compiles include/exclude glob patterns (e.g. "*.md",
// "**/node_modules/**") into a PatternFilter rooted at root.
func NewPatternFilter(root string, include, exclude []string) (*PatternFilter, error) {
	inc, err := compileGlobs(include)
	if err != nil {
		return nil, err
	}
	exc, err := compileGlobs(exclude)
	if err != nil {
		return nil, err
	}
	return &PatternFilter{root: root, include: inc, exclude: exc}, nil
}

func compileGlobs(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := globToRegexp(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// globToRegexp translates a small glob dialect (*, **, ?) to a regexp
// anchored against the full relative path.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b []byte
	b = append(b, '^')
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			if i+2 < len(pattern) && pattern[i+1] == '*' && pattern[i+2] == '/' {
				// "**/" matches zero or more leading directories.
				b = append(b, "(?:.*/)?"...)
				i += 2
			} else if i+1 < len(pattern) && pattern[i+1] == '*' {
				b = append(b, '.', '*')
				i++
			} else {
				b = append(b, '[', '^', '/', ']', '*')
			}
		case '?':
			b = append(b, '[', '^', '/', ']')
		case '.', '+', '(', ')', '|', '^', '$':
			b = append(b, '\\', c)
		default:
			b = append(b, c)
		}
	}
	b = append(b, '$')
	return regexp.Compile(string(b))
}

func (f *PatternFilter) relPath(path string) string {
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// ShouldInclude returns true when no include patterns are configured, or
// the path matches at least one.
func (f *PatternFilter) ShouldInclude(path string) bool {
	if len(f.include) == 0 {
		return true
	}
	rel := f.relPath(path)
	for _, re := range f.include {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

// ShouldExclude returns true when the path matches any exclude pattern.
func (f *PatternFilter) ShouldExclude(path string) bool {
	rel := f.relPath(path)
	for _, re := range f.exclude {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

// DirectorySource walks a local filesystem tree.
type DirectorySource struct {
	basePath    string
	filter      FileFilter
	maxFileSize int64
}

// NewDirectorySource builds a DirectorySource rooted at basePath. filter
// may be nil to index everything under maxFileSize (0 means unbounded).
func NewDirectorySource(basePath string, filter FileFilter, maxFileSize int64) *DirectorySource {
	return &DirectorySource{basePath: basePath, filter: filter, maxFileSize: maxFileSize}
}

// DiscoverDocuments walks the tree asynchronously, streaming documents and
// non-fatal per-file errors on separate channels.
func (ds *DirectorySource) DiscoverDocuments(ctx context.Context) (<-chan Document, <-chan error) {
	docCh := make(chan Document, 100)
	errCh := make(chan error, 10)

	go func() {
		defer close(docCh)
		defer close(errCh)

		walkErr := filepath.Walk(ds.basePath, func(path string, info os.FileInfo, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				sendErr(ctx, errCh, err)
				return nil
			}
			if info.IsDir() {
				if ds.filter != nil && ds.filter.ShouldExclude(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if info.Size() == 0 {
				return nil
			}
			if ds.maxFileSize > 0 && info.Size() > ds.maxFileSize {
				return nil
			}
			if ds.filter != nil && (ds.filter.ShouldExclude(path) || !ds.filter.ShouldInclude(path)) {
				return nil
			}

			content, err := os.ReadFile(path)
			if err != nil {
				sendErr(ctx, errCh, err)
				return nil
			}

			rel, _ := filepath.Rel(ds.basePath, path)
			doc := Document{
				ID:           path,
				Content:      string(content),
				SourcePath:   rel,
				MimeType:     detectMimeType(path),
				Size:         info.Size(),
				LastModified: info.ModTime(),
				Metadata: map[string]any{
					"path":     path,
					"rel_path": rel,
					"name":     info.Name(),
				},
			}
			select {
			case docCh <- doc:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if walkErr != nil && walkErr != context.Canceled {
			sendErr(ctx, errCh, walkErr)
		}
	}()

	return docCh, errCh
}

func sendErr(ctx context.Context, ch chan<- error, err error) {
	select {
	case ch <- err:
	case <-ctx.Done():
	}
}

// Close is a no-op for a directory source; no resources are held between
// calls to DiscoverDocuments.
func (ds *DirectorySource) Close() error { return nil }

func detectMimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

var _ DataSource = (*DirectorySource)(nil)
