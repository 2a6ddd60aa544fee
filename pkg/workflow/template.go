// Copyright 2025 Tom Barlow
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

package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TemplateResolver substitutes "{{path}}" references in strings, and
// resolves standalone "$path"/"path" path expressions, against a data
// map (normally a StepContext's inputs view). A path's leading "$" is
// stripped if present; "_all" resolves to the whole map.
type TemplateResolver struct{}

// NewTemplateResolver constructs a TemplateResolver. It carries no
// state: resolution is a pure function of the path string and the data
// map handed to it by the caller for this one step dispatch.
func NewTemplateResolver() *TemplateResolver {
	return &TemplateResolver{}
}

// ResolvePath looks up a dotted path expression against data. A leading
// "$" is stripped. "_all" returns the whole map. Returns ok=false if any
// segment is missing or the path walks into a non-map value.
func (r *TemplateResolver) ResolvePath(path string, data map[string]interface{}) (interface{}, bool) {
	return resolvePath(path, data)
}

func resolvePath(path string, data map[string]interface{}) (interface{}, bool) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "$")
	if path == "_all" {
		return data, true
	}

	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, false
	}

	var current interface{} = data
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, exists := m[part]
		if !exists {
			return nil, false
		}
		current = v
	}
	return current, true
}

// splitPath splits a dotted path like "steps.foo.response" into parts.
func splitPath(path string) []string {
	var parts []string
	var current strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			continue
		}
		current.WriteByte(path[i])
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// isPureTemplateRef reports whether s (already trimmed) is exactly one
// "{{path}}" reference with no surrounding text and no nested braces.
func isPureTemplateRef(s string) bool {
	if len(s) < 5 || !strings.HasPrefix(s, "{{") || !strings.HasSuffix(s, "}}") {
		return false
	}
	inner := s[2 : len(s)-2]
	return !strings.Contains(inner, "{{") && !strings.Contains(inner, "}}")
}

// ResolveTemplate resolves "{{path}}" references in s against data.
//
// When s, trimmed, is exactly a single "{{path}}" reference, the looked
// up value's native type is returned (so an array or object can flow
// between steps untouched). Otherwise every "{{path}}" occurrence in s
// is substituted with its stringified value and the result is a string.
// A path that cannot be resolved leaves its placeholder text intact.
func (r *TemplateResolver) ResolveTemplate(s string, data map[string]interface{}) interface{} {
	trimmed := strings.TrimSpace(s)
	if isPureTemplateRef(trimmed) {
		inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		if val, ok := resolvePath(inner, data); ok {
			return val
		}
		return s
	}
	return r.resolveString(s, data)
}

// ResolveString behaves like ResolveTemplate but always returns a
// string, for callers (like prompt building) that never want a
// non-string result.
func (r *TemplateResolver) ResolveString(s string, data map[string]interface{}) string {
	result := r.ResolveTemplate(s, data)
	if str, ok := result.(string); ok {
		return str
	}
	return stringifyValue(result)
}

func (r *TemplateResolver) resolveString(s string, data map[string]interface{}) string {
	var sb strings.Builder
	i := 0
	for i < len(s) {
		if i+1 < len(s) && s[i] == '{' && s[i+1] == '{' {
			rest := s[i+2:]
			closeIdx := strings.Index(rest, "}}")
			if closeIdx == -1 {
				sb.WriteString(s[i:])
				break
			}
			placeholder := s[i : i+2+closeIdx+2]
			inner := strings.TrimSpace(rest[:closeIdx])
			if val, ok := resolvePath(inner, data); ok {
				sb.WriteString(stringifyValue(val))
			} else {
				sb.WriteString(placeholder)
			}
			i += 2 + closeIdx + 2
			continue
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String()
}

// ResolveValue recursively resolves template references inside strings,
// maps, and slices, leaving other types untouched. Used to resolve a
// whole step config sub-tree (e.g. a merge input list or extractor
// schema) in one pass.
func (r *TemplateResolver) ResolveValue(value interface{}, data map[string]interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return r.ResolveTemplate(v, data)
	case map[string]interface{}:
		resolved := make(map[string]interface{}, len(v))
		for k, val := range v {
			resolved[k] = r.ResolveValue(val, data)
		}
		return resolved
	case []interface{}:
		resolved := make([]interface{}, len(v))
		for i, val := range v {
			resolved[i] = r.ResolveValue(val, data)
		}
		return resolved
	default:
		return value
	}
}

func stringifyValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
