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

// Package tools exposes pkg/retrieval's operations as the five tools the
// query orchestrator (C10) offers the model: search_code, search_files,
// get_repo_overview, get_file_by_path, and find_function. Each tool function
// shares one shape, func(ctx, *retrieval.Retriever, Args) (*ToolResult,
// error), returning a human-readable text block for the model to read
// rather than raw JSON.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/kraklabs/repoindex/pkg/retrieval"
)

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	Text    string
	IsError bool
}

// NewResult creates a successful tool result.
func NewResult(text string) *ToolResult {
	return &ToolResult{Text: text}
}

// NewError creates an error tool result.
func NewError(text string) *ToolResult {
	return &ToolResult{Text: text, IsError: true}
}

// Truncate truncates a string to the specified length, appending an ellipsis
// when it was cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

const maxElementContentChars = 1200

// SearchCodeArgs holds arguments for the search_code tool.
type SearchCodeArgs struct {
	RepositoryID string
	Query        string
	TopK         int
}

// SearchCode runs the hybrid search_code operation and formats the grouped
// file/code-element hits as text for the model.
func SearchCode(ctx context.Context, r *retrieval.Retriever, args SearchCodeArgs) (*ToolResult, error) {
	if strings.TrimSpace(args.Query) == "" {
		return NewError("search_code requires a non-empty query"), nil
	}
	hits, err := r.SearchCode(ctx, args.RepositoryID, args.Query, args.TopK)
	if err != nil {
		return NewError(fmt.Sprintf("search_code failed: %v", err)), nil
	}
	if len(hits) == 0 {
		return NewResult(fmt.Sprintf("No results for %q.", args.Query)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d file(s) for %q:\n\n", len(hits), args.Query)
	for _, f := range hits {
		fmt.Fprintf(&sb, "--- %s (score %.3f) ---\n", f.Path, f.Score)
		if f.Summary != "" {
			fmt.Fprintf(&sb, "Summary: %s\n", Truncate(f.Summary, 400))
		}
		for _, e := range f.CodeElements {
			fmt.Fprintf(&sb, "  [%s] %s (lines %d-%d, score %.3f)\n", e.Kind, e.Name, e.StartLine, e.EndLine, e.Score)
			if e.Kind == "class_chunk" {
				if e.ClassChunkHint != "" {
					fmt.Fprintf(&sb, "  %s\n", e.ClassChunkHint)
				}
				if e.FullClassContent != "" {
					fmt.Fprintf(&sb, "  full class:\n%s\n", Truncate(e.FullClassContent, maxElementContentChars))
					continue
				}
			}
			fmt.Fprintf(&sb, "%s\n", Truncate(e.Content, maxElementContentChars))
		}
		sb.WriteString("\n")
	}
	return NewResult(sb.String()), nil
}

// SearchFilesArgs holds arguments for the search_files tool.
type SearchFilesArgs struct {
	RepositoryID string
	Query        string
	TopK         int
}

// SearchFiles runs the summary-only search and formats the hits as text.
func SearchFiles(ctx context.Context, r *retrieval.Retriever, args SearchFilesArgs) (*ToolResult, error) {
	if strings.TrimSpace(args.Query) == "" {
		return NewError("search_files requires a non-empty query"), nil
	}
	hits, err := r.SearchFiles(ctx, args.RepositoryID, args.Query, args.TopK)
	if err != nil {
		return NewError(fmt.Sprintf("search_files failed: %v", err)), nil
	}
	if len(hits) == 0 {
		return NewResult(fmt.Sprintf("No files matched %q.", args.Query)), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d file(s) for %q:\n\n", len(hits), args.Query)
	for _, f := range hits {
		fmt.Fprintf(&sb, "- %s (%s, score %.3f): %s\n", f.Path, f.Language, f.Score, Truncate(f.Summary, 300))
	}
	return NewResult(sb.String()), nil
}

// GetRepoOverviewArgs holds arguments for the get_repo_overview tool.
type GetRepoOverviewArgs struct {
	RepositoryID string
}

// GetRepoOverview formats the repository's overview, language breakdown,
// file count, and source URL as text.
func GetRepoOverview(ctx context.Context, r *retrieval.Retriever, args GetRepoOverviewArgs) (*ToolResult, error) {
	ov, err := r.GetRepoOverview(ctx, args.RepositoryID)
	if err != nil {
		return NewError(fmt.Sprintf("get_repo_overview failed: %v", err)), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Repository: %s\n", ov.Name)
	if ov.URL != "" {
		fmt.Fprintf(&sb, "URL: %s\n", ov.URL)
	}
	fmt.Fprintf(&sb, "Files: %d\n", ov.FileCount)
	if len(ov.Languages) > 0 {
		sb.WriteString("Languages:\n")
		for lang, count := range ov.Languages {
			fmt.Fprintf(&sb, "  - %s: %d\n", lang, count)
		}
	}
	if ov.Overview != "" {
		sb.WriteString("\nOverview:\n")
		sb.WriteString(ov.Overview)
	} else {
		sb.WriteString("\nNo overview has been generated for this repository yet.")
	}
	return NewResult(sb.String()), nil
}

// GetFileByPathArgs holds arguments for the get_file_by_path tool.
type GetFileByPathArgs struct {
	RepositoryID string
	Path         string
}

// GetFileByPath formats a file's content, summary, and structural lists as
// text.
func GetFileByPath(ctx context.Context, r *retrieval.Retriever, args GetFileByPathArgs) (*ToolResult, error) {
	if strings.TrimSpace(args.Path) == "" {
		return NewError("get_file_by_path requires a path"), nil
	}
	f, err := r.GetFileByPath(ctx, args.RepositoryID, args.Path)
	if err != nil {
		return NewError(fmt.Sprintf("file not found: %s", args.Path)), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s (%s)\n", f.Path, f.Language)
	if f.Summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", f.Summary)
	}
	if len(f.Functions) > 0 {
		sb.WriteString("Functions:\n")
		for _, fn := range f.Functions {
			fmt.Fprintf(&sb, "  - %s (lines %d-%d)\n", fn.Name, fn.StartLine, fn.EndLine)
		}
	}
	if len(f.Types) > 0 {
		sb.WriteString("Types:\n")
		for _, t := range f.Types {
			fmt.Fprintf(&sb, "  - %s (%s, lines %d-%d)\n", t.Name, t.Kind, t.StartLine, t.EndLine)
		}
	}
	if len(f.Imports) > 0 {
		sb.WriteString("Imports:\n")
		for _, imp := range f.Imports {
			fmt.Fprintf(&sb, "  - %s\n", imp.ImportPath)
		}
	}
	sb.WriteString("\nContent:\n")
	sb.WriteString(Truncate(f.Content, 4000))
	return NewResult(sb.String()), nil
}

// FindFunctionArgs holds arguments for the find_function tool.
type FindFunctionArgs struct {
	RepositoryID string
	Name         string
	Path         string
}

// FindFunction formats the resolved function's source location and text, or
// a not-found message when neither the exact match nor the search_code
// fallback produced a hit.
func FindFunction(ctx context.Context, r *retrieval.Retriever, args FindFunctionArgs) (*ToolResult, error) {
	if strings.TrimSpace(args.Name) == "" {
		return NewError("find_function requires a name"), nil
	}
	fn, err := r.FindFunction(ctx, args.RepositoryID, args.Name, args.Path)
	if err != nil {
		return NewError(fmt.Sprintf("find_function failed: %v", err)), nil
	}
	if fn == nil {
		return NewResult(fmt.Sprintf("No function named %q was found.", args.Name)), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s in %s (lines %d-%d)\n", fn.Name, fn.FilePath, fn.StartLine, fn.EndLine)
	if fn.Signature != "" {
		fmt.Fprintf(&sb, "Signature: %s\n", fn.Signature)
	}
	sb.WriteString("\n")
	sb.WriteString(Truncate(fn.CodeText, maxElementContentChars))
	return NewResult(sb.String()), nil
}
