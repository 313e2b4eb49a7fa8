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

package ingestion

import "strings"

// FileEntity is a single source file discovered in a repository.
type FileEntity struct {
	ID       string
	Path     string
	Language string
	Role     string // "source", "test", "generated", "vendor"
	// Hash is the SHA-256 content hash of the file, independent of ID (which
	// is derived from the path). Used to detect unchanged files and to give
	// callers a cheap equality check without re-reading content.
	Hash string
	// Content is the raw file text, read once by the parser and carried
	// forward so later stages (chunking, summarization, class-chunk
	// reconstruction) never need to touch the filesystem again.
	Content string
	Size    int64
}

// FunctionEntity is a function or method extracted from a source file.
type FunctionEntity struct {
	ID        string
	Name      string
	Signature string
	FilePath  string
	CodeText  string
	StartLine int
	EndLine   int
	StartCol  int
	EndCol    int
	Embedding []float32
	// ParentClass is the receiver/owning type name for a method, empty for a
	// standalone function. IsMethod mirrors ParentClass != "" for callers
	// that only need the boolean. Neither is set by the parsers directly;
	// AssignParentClasses derives them after a file's types are known.
	ParentClass string
	IsMethod    bool
}

// AssignParentClasses derives ParentClass/IsMethod for every function in a
// parsed file by matching a "Type.Method" name against the file's own
// types. Parsers emit methods with a dotted Name (the Go tree-sitter walker
// already does this for receiver methods); this keeps that parsing logic
// untouched while giving callers (chunking, search result formatting) a
// structured way to tell a method from a free function.
func AssignParentClasses(functions []FunctionEntity, types []TypeEntity) []FunctionEntity {
	byName := make(map[string]bool, len(types))
	for _, t := range types {
		byName[t.Name] = true
	}
	out := make([]FunctionEntity, len(functions))
	for i, fn := range functions {
		out[i] = fn
		dot := strings.LastIndex(fn.Name, ".")
		if dot <= 0 {
			continue
		}
		owner := fn.Name[:dot]
		if byName[owner] {
			out[i].ParentClass = owner
			out[i].IsMethod = true
		}
	}
	return out
}

// TypeEntity is a type/class/interface/struct extracted from a source file.
type TypeEntity struct {
	ID        string
	Name      string
	Kind      string // "struct", "interface", "class", "type_alias", "enum"
	FilePath  string
	CodeText  string
	StartLine int
	EndLine   int
	StartCol  int
	EndCol    int
	Embedding []float32
}

// ImportEntity is a single import statement within a file.
type ImportEntity struct {
	ID         string
	FilePath   string
	ImportPath string
	Alias      string
	StartLine  int
}

// DefinesEdge links a file to a function it defines.
type DefinesEdge struct {
	FileID     string
	FunctionID string
}

// DefinesTypeEdge links a file to a type it defines.
type DefinesTypeEdge struct {
	FileID string
	TypeID string
}

// CallsEdge is a resolved function-to-function call relationship.
type CallsEdge struct {
	CallerID string
	CalleeID string
}

// UnresolvedCall is a call site discovered during parsing whose target
// function could not be determined without a cross-file index.
type UnresolvedCall struct {
	CallerID  string
	CalleeName string
	FilePath  string
}

// PackageInfo tracks the files that make up a single local package.
type PackageInfo struct {
	PackagePath string
	PackageName string
	Files       []string
}

// ParseResult is what a CodeParser produces for one source file.
type ParseResult struct {
	File            FileEntity
	PackageName     string
	Functions       []FunctionEntity
	Types           []TypeEntity
	Defines         []DefinesEdge
	DefinesTypes    []DefinesTypeEdge
	Calls           []CallsEdge
	Imports         []ImportEntity
	UnresolvedCalls []UnresolvedCall
}

// RepoSource describes where to fetch a repository's contents from.
type RepoSource struct {
	// Type is one of "github" (fetched through the GitHub REST API),
	// "git_url" (shallow-cloned with git), or "local_path".
	Type string
	// Value is the source-specific locator: "owner/repo" for github,
	// a clone URL for git_url, or a filesystem path for local_path.
	Value string
	// Ref is an optional branch, tag, or commit SHA. Defaults to the
	// repository's default branch when empty.
	Ref string
}

// ConcurrencyConfig controls worker counts and batch sizes for the pipeline's
// concurrent stages (C8). Batch sizes bound how many units are in flight at
// once within a stage, not the total worker count.
type ConcurrencyConfig struct {
	ParseWorkers   int
	EmbedWorkers   int
	SummaryWorkers int
	ParseBatch     int
	EmbedBatch     int
	SummaryBatch   int
}

// IngestionConfig holds the tunable knobs for a single ingestion run.
type IngestionConfig struct {
	ParserMode        string // "treesitter", "simplified", "auto"
	EmbeddingProvider string // "openai", "nomic", "ollama", "llamacpp", "mock"
	EmbeddingModel    string
	ChatProvider      string // "openai", "gemini", "together", "groq", "openrouter", "ollama", "anthropic", "mock"
	ChatModel         string
	ChatBaseURL       string
	ChatAPIKey        string
	MaxFileSizeBytes  int64
	MaxCodeTextBytes  int64
	ExcludeGlobs      []string
	Concurrency       ConcurrencyConfig
	LocalDataDir      string
	WriteMode         string
}

// DefaultConfig returns sane defaults for IngestionConfig.
func DefaultConfig() IngestionConfig {
	return IngestionConfig{
		ParserMode:        ParserModeAuto,
		EmbeddingProvider: "mock",
		MaxFileSizeBytes:  1024 * 1024,
		MaxCodeTextBytes:  100 * 1024,
		ExcludeGlobs: []string{
			"node_modules/**",
			".git/**",
			"vendor/**",
			"dist/**",
			"build/**",
		},
		Concurrency: ConcurrencyConfig{
			ParseWorkers:   4,
			EmbedWorkers:   8,
			SummaryWorkers: 5,
			ParseBatch:     100,
			EmbedBatch:     8,
			SummaryBatch:   5,
		},
		WriteMode: "bulk",
	}
}

// Config is the top-level configuration for one ingestion run.
type Config struct {
	ProjectID        string
	RepoSource       RepoSource
	IngestionConfig  IngestionConfig
}
