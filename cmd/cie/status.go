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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repoindex/internal/bootstrap"
	"github.com/kraklabs/repoindex/pkg/store"
)

// StatusResult represents the project status for JSON output.
type StatusResult struct {
	ProjectID    string    `json:"project_id"`
	DataDir      string    `json:"data_dir"`
	Connected    bool      `json:"connected"`
	Repository   string    `json:"repository,omitempty"`
	Status       string    `json:"status,omitempty"`
	Files        int       `json:"files"`
	Functions    int       `json:"functions"`
	Types        int       `json:"types"`
	Embeddings   int       `json:"embeddings"`
	CallEdges    int       `json:"call_edges"`
	LastTaskStep string    `json:"last_task_step,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// runStatus executes the 'status' CLI command, displaying project index statistics.
//
// It opens the project's local SQLite database and counts indexed files,
// functions, types, and code embeddings. Call edges are not stored (the
// schema has no calls table), so CallEdges always reports 0. This helps users
// verify that indexing completed successfully and understand the scope of
// their indexed codebase.
//
// Flags:
//   - --json: Output results as JSON (default: false)
//
// Examples:
//
//	cie status           Display formatted status
//	cie status --json    Output as JSON for programmatic use
func runStatus(args []string, configPath string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie status [options]

Shows local project status.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		failStatus(&StatusResult{Timestamp: time.Now()}, err, *jsonOutput)
	}

	dataDir, err := DataDir(cfg.ProjectID)
	if err != nil {
		failStatus(&StatusResult{ProjectID: cfg.ProjectID, Timestamp: time.Now()}, err, *jsonOutput)
	}

	result := &StatusResult{
		ProjectID: cfg.ProjectID,
		DataDir:   dataDir,
		Timestamp: time.Now(),
	}

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		result.Connected = false
		result.Error = "project not indexed yet; run 'cie index' first"
		if *jsonOutput {
			outputStatusJSON(result)
		} else {
			fmt.Printf("Project %q not indexed yet.\n", cfg.ProjectID)
			fmt.Println("Run 'cie index' to index the repository.")
		}
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	st, err := bootstrap.OpenProject(bootstrap.ProjectConfig{ProjectID: cfg.ProjectID, DataDir: dataDir}, logger)
	if err != nil {
		failStatus(result, fmt.Errorf("open database: %w", err), *jsonOutput)
	}
	defer func() { _ = st.Close() }()

	result.Connected = true
	ctx := context.Background()

	repo, err := st.GetRepositoryByProjectID(ctx, cfg.ProjectID)
	if err != nil {
		result.Error = fmt.Sprintf("no repository indexed yet: %v", err)
		if *jsonOutput {
			outputStatusJSON(result)
		} else {
			printLocalStatus(result)
		}
		return
	}
	result.Repository = repo.Name
	result.Status = repo.Status
	result.Files = repo.FileCount

	counts, err := st.FileCountsByRepository(ctx, repo.ID)
	if err == nil {
		for _, c := range counts {
			result.Functions += c.FunctionCount
			result.Types += c.TypeCount
		}
	}

	result.Embeddings = queryCount(st, "SELECT COUNT(*) FROM vec_code_units v JOIN code_units c ON c.id = v.unit_id JOIN files f ON f.id = c.file_id WHERE f.repository_id = ?", repo.ID)
	result.CallEdges = queryCount(st, "SELECT COUNT(*) FROM calls ca JOIN functions fn ON fn.id = ca.caller_id JOIN files f ON f.id = fn.file_id WHERE f.repository_id = ?", repo.ID)

	if task, err := latestTaskForRepository(st, ctx, repo.ID); err == nil && task != nil {
		result.LastTaskStep = task.CurrentStep
		if task.Error != "" {
			result.Error = task.Error
		}
	}

	if *jsonOutput {
		outputStatusJSON(result)
	} else {
		printLocalStatus(result)
	}
}

// latestTaskForRepository returns the most recently created ingestion task
// for a repository, if any.
func latestTaskForRepository(st *store.Store, ctx context.Context, repositoryID string) (*store.Task, error) {
	var taskID string
	err := st.DB().QueryRowContext(ctx,
		`SELECT id FROM tasks WHERE repository_id = ? ORDER BY created_at DESC LIMIT 1`,
		repositoryID,
	).Scan(&taskID)
	if err != nil {
		return nil, err
	}
	return st.GetTask(ctx, taskID)
}

func queryCount(st *store.Store, query string, args ...interface{}) int {
	row := st.DB().QueryRow(query, args...)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0
	}
	return n
}

func failStatus(result *StatusResult, err error, jsonOutput bool) {
	result.Error = err.Error()
	if jsonOutput {
		outputStatusJSON(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// outputStatusJSON writes the status result as formatted JSON to stdout.
func outputStatusJSON(result *StatusResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

// printLocalStatus prints the status result as formatted text to stdout.
func printLocalStatus(result *StatusResult) {
	fmt.Println("CIE Project Status")
	fmt.Println("===================")
	fmt.Printf("Project ID:    %s\n", result.ProjectID)
	fmt.Printf("Data Dir:      %s\n", result.DataDir)
	if result.Repository != "" {
		fmt.Printf("Repository:    %s\n", result.Repository)
		fmt.Printf("Status:        %s\n", result.Status)
	}
	fmt.Println()

	fmt.Println("Entities:")
	fmt.Printf("  Files:         %d\n", result.Files)
	fmt.Printf("  Functions:     %d\n", result.Functions)
	fmt.Printf("  Types:         %d\n", result.Types)
	fmt.Printf("  Embeddings:    %d\n", result.Embeddings)
	fmt.Printf("  Call Edges:    %d\n", result.CallEdges)

	if result.LastTaskStep != "" {
		fmt.Printf("\nLast Task Step: %s\n", result.LastTaskStep)
	}
	if result.Error != "" {
		fmt.Printf("\nWarning: %s\n", result.Error)
	}
}
