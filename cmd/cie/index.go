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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repoindex/pkg/ingestion"
	"github.com/kraklabs/repoindex/pkg/store"
)

// runIndex executes the 'index' CLI command: it walks the repository named
// by .cie/project.yaml, parses it, generates embeddings and summaries, and
// writes the result into the project's local SQLite database.
//
// Flags:
//   - --full: force a full reindex, deleting any existing local data first
//   - --embed-workers: number of parallel embedding workers (default: 8)
//   - --debug: enable debug logging
//   - --metrics-addr: HTTP listen address for Prometheus metrics
func runIndex(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	full := fs.Bool("full", false, "Force full reindex, deleting any existing local data first")
	embedWorkers := fs.Int("embed-workers", 8, "Number of parallel embedding workers")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie index [options]

Indexes the current repository using configuration from .cie/project.yaml.
Data is stored locally in ~/.cie/data/<project_id>/

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
		os.Exit(1)
	}

	if *full {
		dataDir, derr := DataDir(cfg.ProjectID)
		if derr == nil {
			if rmErr := os.RemoveAll(dataDir); rmErr == nil {
				logger.Info("data.deleted", "path", dataDir)
			} else if !os.IsNotExist(rmErr) {
				logger.Warn("data.delete.error", "path", dataDir, "err", rmErr)
			}
		}
	}

	runLocalIndex(ctx, logger, cfg, cwd, *embedWorkers, globals)
}

// runLocalIndex drives one ingestion.LocalPipeline run and prints the result.
func runLocalIndex(ctx context.Context, logger *slog.Logger, cfg *Config, repoPath string, embedWorkers int, globals GlobalFlags) {
	defaults := ingestion.DefaultConfig()
	excludeGlobs := append(append([]string{}, defaults.ExcludeGlobs...), cfg.Indexing.Exclude...)

	config := ingestion.Config{
		ProjectID: cfg.ProjectID,
		RepoSource: ingestion.RepoSource{
			Type:  cfg.RepoSource.Type,
			Value: cfg.RepoSource.Value,
			Ref:   cfg.RepoSource.Ref,
		},
		IngestionConfig: ingestion.IngestionConfig{
			ParserMode:        ingestion.ParserMode(cfg.Indexing.ParserMode),
			EmbeddingProvider: cfg.Embedding.Provider,
			EmbeddingModel:    cfg.Embedding.Model,
			ChatProvider:      cfg.Chat.Provider,
			ChatModel:         cfg.Chat.Model,
			ChatBaseURL:       cfg.Chat.BaseURL,
			ChatAPIKey:        cfg.Chat.APIKey,
			MaxFileSizeBytes:  cfg.Indexing.MaxFileSize,
			ExcludeGlobs:      excludeGlobs,
			Concurrency: ingestion.ConcurrencyConfig{
				ParseWorkers: 4,
				EmbedWorkers: embedWorkers,
			},
		},
	}

	switch cfg.Embedding.Provider {
	case "ollama":
		os.Setenv("OLLAMA_BASE_URL", cfg.Embedding.BaseURL)
		os.Setenv("OLLAMA_EMBED_MODEL", cfg.Embedding.Model)
	case "openai":
		os.Setenv("OPENAI_API_BASE", cfg.Embedding.BaseURL)
		os.Setenv("OPENAI_EMBED_MODEL", cfg.Embedding.Model)
		if cfg.Embedding.APIKey != "" {
			os.Setenv("OPENAI_API_KEY", cfg.Embedding.APIKey)
		}
	}

	pipeline, err := ingestion.NewLocalPipeline(ctx, config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: create pipeline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = pipeline.Close() }()

	logger.Info("indexing.starting",
		"project_id", cfg.ProjectID,
		"repo_path", repoPath,
		"embedding_provider", cfg.Embedding.Provider,
	)

	progressCfg := NewProgressConfig(globals)
	spinner := NewSpinner(progressCfg, phaseDescription("fetching"))
	if spinner != nil {
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(150 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if step := currentIndexStep(ctx, pipeline.Store(), cfg.ProjectID); step != "" {
						spinner.Describe(phaseDescription(step))
					}
					_ = spinner.Add(1)
				}
			}
		}()
	}

	result, err := pipeline.Run(ctx)
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: indexing failed: %v\n", err)
		os.Exit(1)
	}

	printResult(result)
}

// currentIndexStep looks up the most recent task's current step for the
// project's repository, for display on the indexing spinner. Returns "" if
// the repository or task row doesn't exist yet (e.g. the very first tick,
// before the pipeline has created them).
func currentIndexStep(ctx context.Context, st *store.Store, projectID string) string {
	repo, err := st.GetRepositoryByProjectID(ctx, projectID)
	if err != nil {
		return ""
	}
	task, err := latestTaskForRepository(st, ctx, repo.ID)
	if err != nil || task == nil {
		return ""
	}
	return task.CurrentStep
}

// printResult prints the indexing result summary to stdout.
func printResult(result *ingestion.IngestionResult) {
	fmt.Println()
	fmt.Println("=== Indexing Complete ===")
	fmt.Printf("Project ID:    %s\n", result.ProjectID)
	fmt.Printf("Repository ID: %s\n", result.RepositoryID)
	fmt.Printf("Files Processed:     %d\n", result.FilesProcessed)
	fmt.Printf("Functions Extracted: %d\n", result.FunctionsExtracted)
	fmt.Printf("Types Extracted:     %d\n", result.TypesExtracted)
	fmt.Printf("Defines Edges:       %d\n", result.DefinesEdges)
	fmt.Printf("Summaries Generated: %d\n", result.SummariesGenerated)
	fmt.Printf("Overview Generated:  %t\n", result.OverviewGenerated)

	if result.ParseErrors > 0 {
		fmt.Printf("Parse Errors: %d (%.2f%%)\n", result.ParseErrors, result.ParseErrorRate*100)
	}
	if result.EmbeddingErrors > 0 {
		fmt.Printf("Embedding Errors: %d\n", result.EmbeddingErrors)
	}
	if result.CodeTextTruncated > 0 {
		fmt.Printf("CodeText Truncated: %d\n", result.CodeTextTruncated)
	}
	if len(result.TopSkipReasons) > 0 {
		fmt.Println("\nSkipped Files:")
		for reason, count := range result.TopSkipReasons {
			fmt.Printf("  %s: %d\n", reason, count)
		}
	}

	fmt.Println("\nTimings:")
	fmt.Printf("  Parse:    %s\n", result.ParseDuration)
	fmt.Printf("  Analysis: %s\n", result.AnalysisDuration)
	fmt.Printf("  Finalize: %s\n", result.FinalizeDuration)
	fmt.Printf("  Total:    %s\n", result.TotalDuration)
	fmt.Println()

	dataDir, _ := DataDir(result.ProjectID)
	fmt.Printf("Data stored in: %s\n", dataDir)
}
