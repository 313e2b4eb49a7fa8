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
	"context"
	"encoding/json"
	"fmt"

	"github.com/kraklabs/repoindex/pkg/retrieval"
)

// Call carries a model-issued tool invocation through to Dispatch: the tool
// name as named in Defs, and its raw JSON argument object.
type Call struct {
	Name      string
	Arguments json.RawMessage
}

// Source is one (file_path, optional line range) reference surfaced by a
// tool result, for the orchestrator's running deduplicated source list.
type Source struct {
	FilePath  string
	StartLine int
	EndLine   int
}

// Dispatch parses a tool call's arguments, executes the matching retrieval
// operation against repositoryID, and returns the formatted result together
// with a result count (for the tool_result event) and the sources it
// touched (for the final done event's source list).
func Dispatch(ctx context.Context, r *retrieval.Retriever, repositoryID string, call Call) (*ToolResult, int, []Source, error) {
	switch call.Name {
	case "search_code":
		var args struct {
			Query string `json:"query"`
			TopK  int    `json:"top_k"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return NewError(fmt.Sprintf("invalid arguments: %v", err)), 0, nil, nil
		}
		hits, err := r.SearchCode(ctx, repositoryID, args.Query, args.TopK)
		if err != nil {
			return NewError(fmt.Sprintf("search_code failed: %v", err)), 0, nil, nil
		}
		res, _ := SearchCode(ctx, r, SearchCodeArgs{RepositoryID: repositoryID, Query: args.Query, TopK: args.TopK})
		return res, len(hits), sourcesFromFileResults(hits), nil

	case "search_files":
		var args struct {
			Query string `json:"query"`
			TopK  int    `json:"top_k"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return NewError(fmt.Sprintf("invalid arguments: %v", err)), 0, nil, nil
		}
		hits, err := r.SearchFiles(ctx, repositoryID, args.Query, args.TopK)
		if err != nil {
			return NewError(fmt.Sprintf("search_files failed: %v", err)), 0, nil, nil
		}
		res, _ := SearchFiles(ctx, r, SearchFilesArgs{RepositoryID: repositoryID, Query: args.Query, TopK: args.TopK})
		return res, len(hits), sourcesFromFileResults(hits), nil

	case "get_repo_overview":
		res, err := GetRepoOverview(ctx, r, GetRepoOverviewArgs{RepositoryID: repositoryID})
		if err != nil {
			return NewError(fmt.Sprintf("get_repo_overview failed: %v", err)), 0, nil, nil
		}
		return res, 1, nil, nil

	case "get_file_by_path":
		var args struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return NewError(fmt.Sprintf("invalid arguments: %v", err)), 0, nil, nil
		}
		res, err := GetFileByPath(ctx, r, GetFileByPathArgs{RepositoryID: repositoryID, Path: args.Path})
		if err != nil {
			return NewError(fmt.Sprintf("get_file_by_path failed: %v", err)), 0, nil, nil
		}
		if res.IsError {
			return res, 0, nil, nil
		}
		return res, 1, []Source{{FilePath: args.Path}}, nil

	case "find_function":
		var args struct {
			Name string `json:"name"`
			Path string `json:"path"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return NewError(fmt.Sprintf("invalid arguments: %v", err)), 0, nil, nil
		}
		fn, err := r.FindFunction(ctx, repositoryID, args.Name, args.Path)
		if err != nil {
			return NewError(fmt.Sprintf("find_function failed: %v", err)), 0, nil, nil
		}
		res, _ := FindFunction(ctx, r, FindFunctionArgs{RepositoryID: repositoryID, Name: args.Name, Path: args.Path})
		if fn == nil {
			return res, 0, nil, nil
		}
		return res, 1, []Source{{FilePath: fn.FilePath, StartLine: fn.StartLine, EndLine: fn.EndLine}}, nil

	default:
		return NewError(fmt.Sprintf("unknown tool: %s", call.Name)), 0, nil, nil
	}
}

func sourcesFromFileResults(hits []retrieval.FileResult) []Source {
	out := make([]Source, 0, len(hits))
	for _, h := range hits {
		if len(h.CodeElements) == 0 {
			out = append(out, Source{FilePath: h.Path})
			continue
		}
		for _, e := range h.CodeElements {
			out = append(out, Source{FilePath: h.Path, StartLine: e.StartLine, EndLine: e.EndLine})
		}
	}
	return out
}
