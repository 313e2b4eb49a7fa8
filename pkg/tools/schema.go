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

package tools

import (
	"encoding/json"

	"github.com/kraklabs/repoindex/pkg/llm"
)

func schema(props map[string]any, required ...string) json.RawMessage {
	obj := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
	raw, _ := json.Marshal(obj)
	return raw
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

// Defs returns the JSON-schema tool definitions for the five retrieval
// tools, in the shape the LLM providers' tool-calling APIs expect. repo_id
// is not exposed as a model-fillable parameter — the orchestrator's system
// prompt embeds the current repository and the caller injects it before
// dispatch, so the model never has to (and cannot) name a different one.
func Defs() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        "search_code",
			Description: "Hybrid semantic + full-text search over functions, types, and classes in the indexed repository. Use for questions about how specific code works or where behavior is implemented.",
			Parameters: schema(map[string]any{
				"query": strProp("natural-language or code-like search query"),
				"top_k": intProp("maximum number of files to return (default 2)"),
			}, "query"),
		},
		{
			Name:        "search_files",
			Description: "Hybrid search over file-level summaries only. Use for broad questions about which files are relevant, without needing specific functions or classes.",
			Parameters: schema(map[string]any{
				"query": strProp("natural-language search query"),
				"top_k": intProp("maximum number of files to return (default 2)"),
			}, "query"),
		},
		{
			Name:        "get_repo_overview",
			Description: "Return the repository's generated overview, language breakdown, file count, and source URL. Use for \"what does this repo do\"-style questions.",
			Parameters:  schema(map[string]any{}),
		},
		{
			Name:        "get_file_by_path",
			Description: "Return one file's full content, summary, and structural lists (functions, types, imports) given its repository-relative path.",
			Parameters: schema(map[string]any{
				"path": strProp("repository-relative file path"),
			}, "path"),
		},
		{
			Name:        "find_function",
			Description: "Find a function or method by exact name, optionally constrained to a file path. Falls back to a code search if no exact match exists.",
			Parameters: schema(map[string]any{
				"name": strProp("exact function or method name"),
				"path": strProp("optional file path to constrain the search to"),
			}, "name"),
		},
	}
}
