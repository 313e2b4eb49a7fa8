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

// Package ingestion provides the code indexing pipeline for CIE.
//
// The ingestion package is responsible for parsing source code, extracting
// semantic information (functions, types, calls), generating embeddings and
// summaries, and storing the results in the SQLite-backed store for
// retrieval.
//
// # Pipeline Overview
//
// The ingestion pipeline processes a repository in stages:
//
//  1. Fetch: clone a git URL, hit the GitHub API, or walk a local path
//  2. Parsing: use Tree-sitter to parse code into ASTs
//  3. Extraction: extract functions, types, and call relationships
//  4. Analysis: resolve cross-file dependencies, embed code, and summarize
//     files and the repository overview, run concurrently
//  5. Storage: persist entities, embeddings and summaries to pkg/store
//
// Ingestion always walks a repository fresh; there is no incremental
// re-ingestion or checkpoint/resume support.
//
// # Supported Languages
//
// The following languages are fully supported with Tree-sitter parsing:
//   - Go (.go)
//   - Python (.py)
//   - TypeScript (.ts, .tsx)
//   - JavaScript (.js, .jsx)
//
// Additionally, Protocol Buffers (.proto) are supported via regex parsing.
//
// Each language parser extracts:
//   - Functions/methods with signatures and bodies
//   - Types, interfaces, classes, and structs
//   - Function call relationships
//   - File and package metadata
//
// # Quick Start
//
// Create and run a local indexing pipeline:
//
//	config := ingestion.Config{
//	    ProjectID: "my-project",
//	    RepoSource: ingestion.RepoSource{
//	        Type:  "git_url",
//	        Value: "https://github.com/user/repo.git",
//	    },
//	    IngestionConfig: ingestion.DefaultConfig(),
//	}
//
//	pipeline, err := ingestion.NewLocalPipeline(ctx, config, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pipeline.Close()
//
//	result, err := pipeline.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Indexed %d files, %d functions\n",
//	    result.FilesProcessed, result.FunctionsExtracted)
//
// # Key Components
//
// LocalPipeline is the main entry point for indexing:
//
//	pipeline, err := ingestion.NewLocalPipeline(ctx, config, logger)
//	result, err := pipeline.Run(ctx)
//
// LocalPipeline orchestrates the entire pipeline without requiring a
// Primary Hub, storing results in a local SQLite database.
//
// EmbeddingGenerator produces semantic embeddings concurrently:
//
//	embeddingGen := ingestion.NewEmbeddingGenerator(provider, concurrency, logger)
//	result, err := embeddingGen.EmbedFunctions(ctx, functions)
//
// Supports multiple providers: OpenAI, Nomic, Ollama, and Mock for testing.
//
// RepoLoader loads code from git repositories or local paths:
//
//	repoLoader := ingestion.NewRepoLoader(logger)
//	result, err := repoLoader.LoadRepository(repoSource, excludeGlobs, maxFileSizeBytes)
//	defer repoLoader.Close()  // Cleans up temp directories
//
// # Configuration
//
// The pipeline is configured through Config and IngestionConfig:
//
//	config := &ingestion.Config{
//	    ProjectID: "my-project",
//	    RepoSource: ingestion.RepoSource{
//	        Type:  "local_path",
//	        Value: "/path/to/code",
//	    },
//	    IngestionConfig: ingestion.IngestionConfig{
//	        ParserMode:        "auto",           // "treesitter", "simplified", "auto"
//	        EmbeddingProvider: "openai",         // "openai", "nomic", "ollama", "mock"
//	        MaxFileSizeBytes:  1024 * 1024,      // 1MB default
//	        MaxCodeTextBytes:  100 * 1024,       // 100KB default
//	        ExcludeGlobs: []string{
//	            "node_modules/**",
//	            ".git/**",
//	            "vendor/**",
//	        },
//	        Concurrency: ingestion.ConcurrencyConfig{
//	            ParseWorkers: 4,
//	            EmbedWorkers: 8,
//	        },
//	        LocalDataDir:         "~/.cie/data/my-project",
//	    },
//	}
//
// Use DefaultConfig() for sensible defaults.
//
// # Metrics
//
// Indexing progress and statistics are available through the result:
//
//	result, err := pipeline.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Files processed: %d\n", result.FilesProcessed)
//	fmt.Printf("Functions extracted: %d\n", result.FunctionsExtracted)
//	fmt.Printf("Types extracted: %d\n", result.TypesExtracted)
//	fmt.Printf("Parse errors: %d (%.1f%%)\n",
//	    result.ParseErrors, result.ParseErrorRate*100)
//	fmt.Printf("Total duration: %v\n", result.TotalDuration)
//
// Prometheus metrics are also exported for monitoring production systems.
package ingestion
