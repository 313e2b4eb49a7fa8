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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/repoindex/internal/bootstrap"
	"github.com/kraklabs/repoindex/pkg/ingestion"
	"github.com/kraklabs/repoindex/pkg/llm"
	"github.com/kraklabs/repoindex/pkg/query"
	"github.com/kraklabs/repoindex/pkg/retrieval"
	"github.com/kraklabs/repoindex/pkg/store"
)

// cliSessionID is the fixed session every 'cie ask' invocation shares within
// a project, so follow-up questions keep the prior turns as context.
const cliSessionID = "cli"

// askJSONEvent mirrors query.Event for --json output: one line of JSON per
// event, newline-delimited, so a wrapping process can stream it.
type askJSONEvent struct {
	Kind        string          `json:"kind"`
	Tool        string          `json:"tool,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
	ResultCount int             `json:"result_count,omitempty"`
	Content     string          `json:"content,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// runAsk executes the 'ask' CLI command: it streams a natural-language
// question through the query orchestrator (C10) and prints the grounded
// answer, citing the files it consulted along the way.
//
// Flags:
//   - --json: emit newline-delimited JSON events instead of prose
//   - --timeout: overall wall-clock budget for the question (default: 2m)
//
// Examples:
//
//	cie ask "how does the indexing pipeline work?"
//	cie ask --json "where is the embedding provider selected?"
func runAsk(args []string, configPath string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Emit newline-delimited JSON events")
	timeout := fs.Duration("timeout", 2*time.Minute, "Overall timeout for the question")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cie ask [options] "<question>"

Answers a question about the indexed repository, grounded in its code.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: question argument required\n")
		fs.Usage()
		os.Exit(1)
	}
	question := strings.Join(fs.Args(), " ")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	dataDir, err := DataDir(cfg.ProjectID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: project %q not indexed yet; run 'cie index' first\n", cfg.ProjectID)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	st, err := bootstrap.OpenProject(bootstrap.ProjectConfig{ProjectID: cfg.ProjectID, DataDir: dataDir}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	repo, err := st.GetRepositoryByProjectID(context.Background(), cfg.ProjectID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: no repository indexed yet: %v\n", err)
		os.Exit(1)
	}

	embedProvider, err := ingestion.CreateEmbeddingProvider(cfg.Embedding.Provider, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: embedding provider: %v\n", err)
		os.Exit(1)
	}
	retriever := retrieval.New(st, embedProvider)

	chat, err := llm.NewProvider(llm.ProviderConfig{
		Type:         cfg.Chat.Provider,
		BaseURL:      cfg.Chat.BaseURL,
		APIKey:       cfg.Chat.APIKey,
		DefaultModel: cfg.Chat.Model,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: chat provider: %v\n", err)
		os.Exit(1)
	}

	if err := ensureSession(context.Background(), st, repo, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: session: %v\n", err)
		os.Exit(1)
	}

	orch := query.New(st, retriever, chat, cfg.Chat.Model, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	events := orch.Run(ctx, cliSessionID, repo.ID, question)
	if *jsonOutput {
		streamJSON(events)
	} else {
		streamText(events)
	}
}

// ensureSession creates the shared CLI session on first use, recording the
// configured chat/embedding model quadruple so the orchestrator picks it up
// without the caller repeating it on every question.
func ensureSession(ctx context.Context, st *store.Store, repo *store.Repository, cfg *Config) error {
	if _, err := st.GetSession(ctx, cliSessionID); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return st.CreateSession(ctx, store.Session{
		ID:                cliSessionID,
		RepositoryID:      repo.ID,
		ChatProvider:      cfg.Chat.Provider,
		ChatModel:         cfg.Chat.Model,
		EmbeddingProvider: cfg.Embedding.Provider,
		EmbeddingModel:    cfg.Embedding.Model,
	})
}

// streamText prints answer chunks as they arrive and a short tool-call trail
// and source list once the run completes.
func streamText(events <-chan query.Event) {
	answered := false
	for evt := range events {
		switch evt.Kind {
		case "tool_call":
			fmt.Fprintf(os.Stderr, "[%s]\n", evt.ToolCall.Tool)
		case "answer_chunk":
			fmt.Print(evt.AnswerChunk.Content)
			answered = true
		case "done":
			if answered {
				fmt.Println()
			}
			if len(evt.Done.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, s := range evt.Done.Sources {
					if s.StartLine > 0 {
						fmt.Printf("  %s:%d-%d\n", s.FilePath, s.StartLine, s.EndLine)
					} else {
						fmt.Printf("  %s\n", s.FilePath)
					}
				}
			}
		case "error":
			fmt.Fprintf(os.Stderr, "\nError: %v\n", evt.Error)
			os.Exit(1)
		}
	}
}

// streamJSON emits one JSON object per line, mirroring query.Event.
func streamJSON(events <-chan query.Event) {
	enc := json.NewEncoder(os.Stdout)
	for evt := range events {
		out := askJSONEvent{Kind: evt.Kind}
		switch evt.Kind {
		case "tool_call":
			out.Tool = evt.ToolCall.Tool
			out.Args = evt.ToolCall.Args
		case "tool_result":
			out.Tool = evt.ToolResult.Tool
			out.ResultCount = evt.ToolResult.ResultCount
		case "answer_chunk":
			out.Content = evt.AnswerChunk.Content
		case "error":
			out.Error = evt.Error.Error()
		}
		if evt.Kind == "done" {
			done := map[string]any{"kind": "done", "sources": evt.Done.Sources}
			_ = enc.Encode(done)
		} else {
			_ = enc.Encode(out)
		}
		if evt.Kind == "error" {
			os.Exit(1)
		}
	}
}
