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

package audit

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// canonicalize encodes fields into a deterministic byte sequence: keys in
// sorted order, numbers formatted with strconv (never Go's map-iteration-
// order-dependent json.Marshal on a map), nested maps and slices likewise
// ordered. Hashing must never depend on map iteration order.
func canonicalize(fields map[string]any) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeSortedMap(&buf, fields)
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeSortedMap(buf *bytes.Buffer, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k)
		buf.WriteByte(':')
		writeValue(buf, m[k])
	}
}

func writeValue(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		writeString(buf, t)
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		buf.WriteString(strconv.Itoa(t))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case float64:
		// Stable formatting: shortest round-trippable representation,
		// never scientific notation, so the same float always canonicalizes
		// to the same bytes regardless of how it was produced upstream.
		buf.WriteString(strconv.FormatFloat(t, 'f', -1, 64))
	case map[string]any:
		buf.WriteByte('{')
		writeSortedMap(buf, t)
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeValue(buf, e)
		}
		buf.WriteByte(']')
	case []string:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, e)
		}
		buf.WriteByte(']')
	default:
		// Fallback: stable textual form via fmt, still deterministic for a
		// fixed input since it does not depend on map order.
		writeString(buf, fmt.Sprintf("%v", t))
	}
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}
