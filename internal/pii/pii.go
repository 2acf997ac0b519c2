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

// Package pii implements pattern-based redaction over free text: a pure
// function from (text, profile) to redacted text, with no external state.
package pii

import (
	"regexp"
)

// Profile selects which pattern groups apply, from strictest to loosest.
type Profile string

const (
	ProfileProduction  Profile = "production"
	ProfileStaging     Profile = "staging"
	ProfileDevelopment Profile = "development"
)

// Pattern is a named, precompiled regex with its replacement token.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

var builtinPatterns = []Pattern{
	{
		Name:        "email",
		Regex:       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		Replacement: "[REDACTED_EMAIL]",
	},
	{
		Name:        "phone",
		Regex:       regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?(?:\(\d{3}\)|\b\d{3})[\s.\-]?\d{3}[\s.\-]?\d{4}\b`),
		Replacement: "[REDACTED_PHONE]",
	},
	{
		Name:        "national_id",
		Regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		Replacement: "[REDACTED_ID]",
	},
}

// digitRun matches candidate card numbers: 13-19 digits, optionally
// separated by spaces or hyphens in groups, before Luhn validation.
var digitRun = regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`)

// profileGroups maps a profile to the pattern names it applies, mirroring
// the strictness ordering in safety.profile: production is strictest,
// development is loosest (and is expected to run against non-production
// data where some categories are intentionally left visible for
// debugging).
var profileGroups = map[Profile]map[string]bool{
	ProfileProduction:  {"email": true, "phone": true, "national_id": true, "card": true},
	ProfileStaging:     {"email": true, "phone": true, "national_id": true, "card": true},
	ProfileDevelopment: {"card": true},
}

// Redactor applies builtin and user-supplied patterns. It carries no
// mutable state after construction and is safe for concurrent use.
type Redactor struct {
	custom []Pattern
}

// New constructs a Redactor with an optional set of additional patterns
// applied after the builtins, in declaration order.
func New(custom ...Pattern) *Redactor {
	return &Redactor{custom: custom}
}

// Redact returns text with every span matched under profile replaced by
// its category's placeholder token. Redact(Redact(x)) == Redact(x): once a
// span has been replaced by a placeholder, none of the patterns match the
// placeholder text itself.
func (r *Redactor) Redact(text string, profile Profile) string {
	allowed := profileGroups[profile]
	if allowed == nil {
		allowed = profileGroups[ProfileProduction]
	}

	out := text
	for _, p := range builtinPatterns {
		if !allowed[p.Name] {
			continue
		}
		out = p.Regex.ReplaceAllString(out, p.Replacement)
	}
	if allowed["card"] {
		out = redactCardNumbers(out)
	}
	for _, p := range r.custom {
		out = p.Regex.ReplaceAllString(out, p.Replacement)
	}
	return out
}

// redactCardNumbers replaces digit runs of 13-19 digits that pass the Luhn
// checksum with a placeholder, leaving non-card digit runs (short IDs,
// years, order numbers) untouched.
func redactCardNumbers(text string) string {
	return digitRun.ReplaceAllStringFunc(text, func(match string) string {
		digits := stripSeparators(match)
		if len(digits) < 13 || len(digits) > 19 {
			return match
		}
		if !luhnValid(digits) {
			return match
		}
		return "[REDACTED_CARD]"
	})
}

func stripSeparators(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// luhnValid implements the Luhn checksum used by all major card networks.
func luhnValid(digits string) bool {
	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}
