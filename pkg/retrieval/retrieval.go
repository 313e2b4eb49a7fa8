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

// Package retrieval implements the hybrid search and lookup operations that
// back the query orchestrator's tool calls: search_code, search_files,
// get_repo_overview, get_file_by_path, and find_function. The hybrid scoring
// itself (0.7*vector + 0.3*text, then a 1.3x filename boost) lives in
// pkg/store's SQL layer; this package is the orchestration on top of it —
// embedding the query, fanning the summary and code searches out in
// parallel, collapsing code hits to one best element per file, and
// reconstructing class_chunk hits back into their owning class.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/repoindex/pkg/ingestion"
	"github.com/kraklabs/repoindex/pkg/store"

	"golang.org/x/sync/errgroup"
)

// defaultTopK is used for both halves of search_code when the caller passes
// a non-positive top_k, mirroring the "top 2" default described for each
// half of the hybrid search operation.
const defaultTopK = 2

// codeCandidatePoolFactor widens the code-vector candidate pool beyond top_k
// before collapsing to one hit per file, so the per-file dedup in step 2 has
// real candidates to choose among instead of already-truncated ones.
const codeCandidatePoolFactor = 8

// Retriever answers search_code/search_files/get_repo_overview/
// get_file_by_path/find_function against one store, embedding query text
// with the repository's configured embedding provider.
type Retriever struct {
	store *store.Store
	embed ingestion.EmbeddingProvider
}

// New creates a Retriever backed by st, embedding query text via embed.
func New(st *store.Store, embed ingestion.EmbeddingProvider) *Retriever {
	return &Retriever{store: st, embed: embed}
}

// CodeElement is one code hit within a FileResult: a function, a type, or a
// class_chunk (a sliding-window slice of an oversized type).
type CodeElement struct {
	Kind      string // "function", "type", "class_chunk"
	Name      string
	Content   string
	StartLine int
	EndLine   int
	Score     float64

	// ClassChunkHint and FullClassContent are only populated for
	// Kind=="class_chunk": the hint names which window of the class matched,
	// FullClassContent is the class reconstructed from the owning file's
	// stored content using the class's own line range.
	ClassChunkHint   string
	FullClassContent string
}

// FileResult is one file-level hit from search_code or search_files: file
// metadata, its summary if one matched, the highest score observed across
// all of its hits, and the code elements that matched (empty for a
// summary-only hit).
type FileResult struct {
	FileID       string
	Path         string
	Language     string
	Summary      string
	Score        float64
	CodeElements []CodeElement
}

// SearchCode runs the full hybrid search operation (C9): embed the query,
// search file summaries and code units in parallel, collapse code hits to
// their best-scoring element per file, merge both halves by file_id, and
// reconstruct any class_chunk hit's owning class.
func (r *Retriever) SearchCode(ctx context.Context, repositoryID, query string, topK int) ([]FileResult, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	vec, embedErr := r.embed.Embed(ctx, query)
	if embedErr != nil {
		vec = nil // degrade to text-only search rather than failing the whole query
	}

	var summaryHits []store.FileSearchResult
	var codeHits []store.CodeSearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.store.SearchFiles(gctx, repositoryID, vec, query, topK)
		if err != nil {
			return fmt.Errorf("search_files: %w", err)
		}
		summaryHits = hits
		return nil
	})
	g.Go(func() error {
		pool := topK * codeCandidatePoolFactor
		hits, err := r.store.SearchCode(gctx, repositoryID, vec, query, pool)
		if err != nil {
			return fmt.Errorf("search_code: %w", err)
		}
		codeHits = bestPerFile(hits, topK)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]*FileResult)
	order := make([]string, 0, len(summaryHits)+len(codeHits))

	for _, h := range summaryHits {
		fr, ok := merged[h.FileID]
		if !ok {
			fr = &FileResult{FileID: h.FileID, Path: h.Path, Language: h.Language}
			merged[h.FileID] = fr
			order = append(order, h.FileID)
		}
		fr.Summary = h.Summary
		if h.Score > fr.Score {
			fr.Score = h.Score
		}
	}

	for _, h := range codeHits {
		fr, ok := merged[fileIDForUnit(h)]
		if !ok {
			fr = &FileResult{FileID: fileIDForUnit(h), Path: h.FilePath}
			merged[fr.FileID] = fr
			order = append(order, fr.FileID)
		}
		elem := CodeElement{
			Kind: elementKind(h.Kind), Name: h.Name, Content: h.Content,
			StartLine: h.StartLine, EndLine: h.EndLine, Score: h.Score,
		}
		if elem.Kind == "class_chunk" {
			r.reconstructClassChunk(ctx, repositoryID, h, &elem)
		}
		fr.CodeElements = append(fr.CodeElements, elem)
		if h.Score > fr.Score {
			fr.Score = h.Score
		}
	}

	results := make([]FileResult, 0, len(order))
	for _, id := range order {
		results = append(results, *merged[id])
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// fileIDForUnit recovers a code_units hit's owning file_id. SearchCode
// doesn't carry file_id directly on CodeSearchResult (only file path); files.id
// is derived from the path by ingestion.GenerateFileID, so recomputing it gives
// the same key the summary hits carry.
func fileIDForUnit(h store.CodeSearchResult) string {
	return ingestion.GenerateFileID(h.FilePath)
}

// elementKind maps a code_units.kind value to the vocabulary search_code
// exposes to callers: "chunk" (a sliding-window slice of an oversized type)
// is surfaced as "class_chunk".
func elementKind(kind string) string {
	if kind == "chunk" {
		return "class_chunk"
	}
	return kind
}

// bestPerFile collapses a flat list of code hits to the single
// highest-scoring hit per file, then returns the top n files by that score —
// the "unwind per embedding then group back by file_id" step that stops one
// file from monopolizing results.
func bestPerFile(hits []store.CodeSearchResult, n int) []store.CodeSearchResult {
	bestIdx := make(map[string]int)
	for i, h := range hits {
		key := h.FilePath
		if cur, ok := bestIdx[key]; !ok || h.Score > hits[cur].Score {
			bestIdx[key] = i
		}
	}
	out := make([]store.CodeSearchResult, 0, len(bestIdx))
	for _, i := range bestIdx {
		out = append(out, hits[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// reconstructClassChunk resolves a class_chunk hit back to its owning type
// and slices the full class out of the owning file's stored content, per
// search_code step 6.
func (r *Retriever) reconstructClassChunk(ctx context.Context, repositoryID string, h store.CodeSearchResult, elem *CodeElement) {
	parent, err := r.store.ChunkParentByRefID(ctx, h.RefID)
	if err != nil {
		return
	}
	elem.ClassChunkHint = fmt.Sprintf("matched chunk %d of %d of class %s (lines %d-%d of the full class)",
		parent.ChunkIndex+1, parent.TotalChunks, parent.TypeName, h.StartLine, h.EndLine)

	file, err := r.store.GetFileByPath(ctx, repositoryID, parent.FilePath)
	if err != nil || file.Content == "" {
		return
	}
	lines := strings.Split(file.Content, "\n")
	start, end := parent.TypeStartLine-1, parent.TypeEndLine
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start < end {
		elem.FullClassContent = strings.Join(lines[start:end], "\n")
	}
}

// SearchFiles runs the summary-only half of search_code: hybrid search over
// file summaries, returning file-level hits with no code_elements.
func (r *Retriever) SearchFiles(ctx context.Context, repositoryID, query string, topK int) ([]FileResult, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	vec, embedErr := r.embed.Embed(ctx, query)
	if embedErr != nil {
		vec = nil
	}
	hits, err := r.store.SearchFiles(ctx, repositoryID, vec, query, topK)
	if err != nil {
		return nil, fmt.Errorf("search_files: %w", err)
	}
	out := make([]FileResult, len(hits))
	for i, h := range hits {
		out[i] = FileResult{FileID: h.FileID, Path: h.Path, Language: h.Language, Summary: h.Summary, Score: h.Score}
	}
	return out, nil
}

// RepoOverview is the result of get_repo_overview: a direct read of the
// repository document's overview, language breakdown, file count, and
// source URL.
type RepoOverview struct {
	RepositoryID string
	Name         string
	Overview     string
	Languages    map[string]int
	FileCount    int
	URL          string
}

// GetRepoOverview reads the repository document and the per-file language
// breakdown used to build the repository-level overview (C6).
func (r *Retriever) GetRepoOverview(ctx context.Context, repositoryID string) (*RepoOverview, error) {
	repo, err := r.store.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("get_repo_overview: %w", err)
	}
	counts, err := r.store.FileCountsByRepository(ctx, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("get_repo_overview: %w", err)
	}
	languages := make(map[string]int)
	for _, c := range counts {
		if c.Language != "" {
			languages[c.Language]++
		}
	}
	return &RepoOverview{
		RepositoryID: repo.ID,
		Name:         repo.Name,
		Overview:     repo.Overview,
		Languages:    languages,
		FileCount:    repo.FileCount,
		URL:          repoURL(repo),
	}, nil
}

// repoURL derives a browsable source URL from a repository's source_type
// and source_value, when one can be inferred.
func repoURL(repo *store.Repository) string {
	switch repo.SourceType {
	case "github":
		return "https://github.com/" + repo.SourceValue
	case "git_url":
		return repo.SourceValue
	default:
		return ""
	}
}

// FileDetail is the result of get_file_by_path: a file's content, summary,
// and structural lists (its functions, types, and imports).
type FileDetail struct {
	Path      string
	Language  string
	Content   string
	Summary   string
	Functions []store.FunctionRow
	Types     []store.TypeRow
	Imports   []store.ImportRow
}

// GetFileByPath normalizes the requested path (stripping a leading slash)
// and reads the file's content, summary, and structural lists in one shot.
func (r *Retriever) GetFileByPath(ctx context.Context, repositoryID, path string) (*FileDetail, error) {
	path = strings.TrimPrefix(path, "/")
	file, err := r.store.GetFileByPath(ctx, repositoryID, path)
	if err != nil {
		return nil, fmt.Errorf("get_file_by_path: %w", err)
	}
	functions, err := r.store.FunctionsByFile(ctx, file.ID)
	if err != nil {
		return nil, fmt.Errorf("get_file_by_path: %w", err)
	}
	types, err := r.store.TypesByFile(ctx, file.ID)
	if err != nil {
		return nil, fmt.Errorf("get_file_by_path: %w", err)
	}
	imports, err := r.store.ImportsByFile(ctx, file.ID)
	if err != nil {
		return nil, fmt.Errorf("get_file_by_path: %w", err)
	}
	return &FileDetail{
		Path: path, Language: file.Language, Content: file.Content, Summary: file.Summary,
		Functions: functions, Types: types, Imports: imports,
	}, nil
}

// FunctionResult is the result of find_function: a function's source
// location, plus whether it was resolved by exact name match or by falling
// back to search_code.
type FunctionResult struct {
	Name      string
	FilePath  string
	Signature string
	CodeText  string
	StartLine int
	EndLine   int
	ViaSearch bool
}

// FindFunction resolves a function by exact name (optionally constrained to
// one file path); when no exact match exists, it falls back to search_code
// with a synthesized query and returns the first hit that matched a
// function-shaped code element.
func (r *Retriever) FindFunction(ctx context.Context, repositoryID, name, path string) (*FunctionResult, error) {
	rows, err := r.store.FindFunction(ctx, repositoryID, name)
	if err != nil {
		return nil, fmt.Errorf("find_function: %w", err)
	}
	for _, fn := range rows {
		if path == "" || fn.FilePath == path {
			return &FunctionResult{
				Name: fn.Name, FilePath: fn.FilePath, Signature: fn.Signature, CodeText: fn.CodeText,
				StartLine: fn.StartLine, EndLine: fn.EndLine,
			}, nil
		}
	}

	query := "function " + name
	if path != "" {
		query += " in " + path
	}
	hits, err := r.SearchCode(ctx, repositoryID, query, defaultTopK)
	if err != nil {
		return nil, fmt.Errorf("find_function: %w", err)
	}
	for _, hit := range hits {
		for _, elem := range hit.CodeElements {
			if elem.Kind == "function" {
				return &FunctionResult{
					Name: elem.Name, FilePath: hit.Path, CodeText: elem.Content,
					StartLine: elem.StartLine, EndLine: elem.EndLine, ViaSearch: true,
				}, nil
			}
		}
	}
	return nil, nil
}
