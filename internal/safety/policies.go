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

package safety

// ingressPolicy denies on prohibited phrase matches, oversized payloads,
// and unauthenticated access to a restricted mode.
const ingressPolicy = `
package hnsc.safety.ingress

import rego.v1

default allow := false

allow if {
	count(deny_reasons) == 0
}

deny_reasons contains reason if {
	some pattern in input.prohibited_phrases
	regex.match(pattern, input.text)
	reason := sprintf("text matches prohibited pattern %q", [pattern])
}

deny_reasons contains reason if {
	input.max_size_bytes > 0
	input.size_bytes > input.max_size_bytes
	reason := sprintf("payload size %d exceeds maximum %d", [input.size_bytes, input.max_size_bytes])
}

deny_reasons contains reason if {
	some restricted in input.restricted_modes
	input.mode == restricted
	not input.authenticated
	reason := sprintf("mode %q requires authentication", [input.mode])
}
`

// preToolPolicy denies on out-of-scope tools for the request's mode and on
// irreversible side effects without an approval token.
const preToolPolicy = `
package hnsc.safety.pre_tool

import rego.v1

default allow := false

allow if {
	count(deny_reasons) == 0
}

scope_permitted if {
	some tag in input.tool_scope_tags
	some permitted in input.permitted_scopes
	tag == permitted
}

deny_reasons contains reason if {
	count(input.tool_scope_tags) > 0
	not scope_permitted
	reason := "tool scope tags not permitted in this request mode"
}

deny_reasons contains reason if {
	input.side_effect_class == "irreversible"
	not input.has_approval
	reason := "irreversible tool call requires an approval token"
}
`

// egressPolicy denies on unredacted PII or an Arbitration-flagged policy
// violation surviving into the final response.
const egressPolicy = `
package hnsc.safety.egress

import rego.v1

default allow := false

allow if {
	count(deny_reasons) == 0
}

deny_reasons contains reason if {
	input.has_unredacted_pii
	reason := "response contains unredacted PII"
}

deny_reasons contains reason if {
	input.policy_violation
	reason := "response tagged policy_violation by arbitration"
}
`
