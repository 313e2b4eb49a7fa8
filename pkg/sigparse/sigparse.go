// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sigparse does best-effort parameter-name/type extraction from a
// rendered Go function or method signature string ("func ..."). Signatures
// of other languages are not handled.
package sigparse

import "strings"

// ParamInfo holds a parsed parameter's name and base type.
type ParamInfo struct {
	Name string
	Type string
}

// ParseGoParams parses a Go function/method signature string and returns the
// parameter names paired with a normalized base type. The method receiver
// (if any) is excluded.
func ParseGoParams(signature string) []ParamInfo {
	paramStr := ExtractParamString(signature)
	if paramStr == "" {
		return nil
	}

	groups := splitTopLevel(paramStr)

	// Go allows grouped names sharing a trailing type: "a, b int, x, y string".
	// Walk groups left to right, accumulating bare names until we hit a group
	// that carries its own type, then assign that type to the accumulated names.
	type pending struct {
		name string
	}
	var pendingNames []pending
	var result []ParamInfo

	flush := func(typ string) {
		for _, p := range pendingNames {
			result = append(result, ParamInfo{Name: p.name, Type: typ})
		}
		pendingNames = nil
	}

	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		name, typ, hasType := splitNameAndType(g)
		if !hasType {
			// Bare name, type comes from a later group.
			pendingNames = append(pendingNames, pending{name: name})
			continue
		}
		pendingNames = append(pendingNames, pending{name: name})
		flush(NormalizeType(typ))
	}
	// Anything left without a following typed group has no type info.
	flush("")

	// Re-order: flush appends in FIFO order per call, but groups are processed
	// left-to-right so the result is already in declaration order.
	return result
}

// ExtractParamString returns the raw text between the parameter-list parens
// of a function signature, skipping over a leading method receiver group.
func ExtractParamString(signature string) string {
	idx := strings.Index(signature, "func")
	if idx == -1 {
		return ""
	}
	rest := signature[idx+len("func"):]
	rest = strings.TrimLeft(rest, " ")

	// Skip an optional method receiver "(r *Type)".
	if strings.HasPrefix(rest, "(") {
		end := matchingParen(rest, 0)
		if end == -1 {
			return ""
		}
		rest = strings.TrimLeft(rest[end+1:], " ")
	}

	// Skip the function name up to the parameter-list paren.
	nameEnd := strings.IndexByte(rest, '(')
	if nameEnd == -1 {
		return ""
	}
	rest = rest[nameEnd:]

	end := matchingParen(rest, 0)
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[1:end])
}

// matchingParen returns the index (within s) of the ')' matching the '(' at
// position open, or -1 if unbalanced.
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits a comma-separated parameter string, respecting nested
// parens (for func-typed parameters) and brackets (for slice/map types).
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// splitNameAndType splits "name Type" into its two components. If the group
// has no internal whitespace boundary (i.e. it's a bare name with no type,
// part of a grouped declaration), hasType is false.
func splitNameAndType(group string) (name, typ string, hasType bool) {
	group = strings.TrimSpace(group)
	sp := strings.IndexAny(group, " \t")
	if sp == -1 {
		return group, "", false
	}
	return strings.TrimSpace(group[:sp]), strings.TrimSpace(group[sp+1:]), true
}

// NormalizeType strips pointer/slice/variadic/qualification decoration from a
// Go type string down to its base identifier. Function types collapse to the
// literal "func".
func NormalizeType(t string) string {
	t = strings.TrimSpace(t)
	t = strings.TrimPrefix(t, "...")
	for strings.HasPrefix(t, "[]") {
		t = t[2:]
	}
	t = strings.TrimPrefix(t, "*")
	for strings.HasPrefix(t, "[]") {
		t = t[2:]
	}
	if strings.HasPrefix(t, "func") {
		return "func"
	}
	if dot := strings.LastIndex(t, "."); dot != -1 {
		t = t[dot+1:]
	}
	return t
}
