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

package retriever

import "strings"

// LexiconExpander generates variants by substituting each occurrence of a
// known term with one of its synonyms, one substitution per variant.
type LexiconExpander struct {
	synonyms map[string][]string
}

// NewLexiconExpander builds an expander from a term -> synonym-list map.
func NewLexiconExpander(synonyms map[string][]string) *LexiconExpander {
	return &LexiconExpander{synonyms: synonyms}
}

// Expand returns up to m variants plus the original query verbatim as the
// first element.
func (e *LexiconExpander) Expand(query string, m int) []string {
	variants := []string{query}
	if m <= 0 {
		return variants
	}

	words := strings.Fields(query)
	for _, w := range words {
		lower := strings.ToLower(w)
		syns, ok := e.synonyms[lower]
		if !ok {
			continue
		}
		for _, syn := range syns {
			if len(variants) > m {
				return variants[:m+1]
			}
			variants = append(variants, strings.Replace(query, w, syn, 1))
		}
	}
	if len(variants) > m+1 {
		variants = variants[:m+1]
	}
	return variants
}

// TemplateExpander generates variants by wrapping the query in fixed
// question/instruction templates.
type TemplateExpander struct {
	templates []string
}

// NewTemplateExpander builds an expander from printf-style templates, each
// containing exactly one %s for the original query.
func NewTemplateExpander(templates []string) *TemplateExpander {
	return &TemplateExpander{templates: templates}
}

func (e *TemplateExpander) Expand(query string, m int) []string {
	variants := []string{query}
	for i, tmpl := range e.templates {
		if i >= m {
			break
		}
		variants = append(variants, strings.Replace(tmpl, "%s", query, 1))
	}
	return variants
}

// NoopExpander always returns just the original query.
type NoopExpander struct{}

func (NoopExpander) Expand(query string, _ int) []string { return []string{query} }
