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

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kraklabs/repoindex/pkg/llm"
	"github.com/kraklabs/repoindex/pkg/store"
)

// Analyzer generates per-file summaries and repository overviews (C6). It
// reuses pkg/llm's ThinkStripper for the non-streaming case: a single
// StripThink call over the complete response is the degenerate application
// of the same two-state scanner C10 runs incrementally over a stream.
type Analyzer struct {
	chat   llm.Provider
	model  string
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer that issues non-streaming chat completions
// against the given provider and model.
func NewAnalyzer(chat llm.Provider, model string, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{chat: chat, model: model, logger: logger}
}

// FileSummaryInput carries the parsed structure an Analyzer needs to build a
// per-file summary prompt.
type FileSummaryInput struct {
	Path      string
	Language  string
	Content   string
	Functions []FunctionEntity
	Types     []TypeEntity
	Imports   []ImportEntity
}

const analyzerSystemPrompt = `You are a code analysis assistant. Given a source file's structure and a snippet of its content, produce a concise summary.
Include: a one-sentence overview; a list of 3-5 key functions, each with a one-sentence description; key dependencies; and, only for material issues, a brief security or notable-behavior note.
Keep the entire response under roughly 1,000 characters. Do not repeat the file path or language back verbatim.`

// fileKind classifies a file for prompt-variant selection, per the analyzer
// contract: code files get a structure-focused prompt, configuration/doc/
// script files get a content-focused prompt, and anything else a generic one.
func fileKind(path string, functions []FunctionEntity, types []TypeEntity) string {
	if len(functions) > 0 || len(types) > 0 {
		return "code"
	}
	lower := strings.ToLower(path)
	base := lower[strings.LastIndex(lower, "/")+1:]
	switch {
	case hasAnySuffix(lower, ".yaml", ".yml", ".json", ".toml", ".ini", ".cfg", ".env", ".conf"):
		return "config"
	case hasAnySuffix(lower, ".md", ".txt", ".rst"):
		return "doc"
	case hasAnySuffix(lower, ".sh", ".bash"), base == "makefile", base == "dockerfile":
		return "script"
	default:
		return "generic"
	}
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// buildSummaryPrompt assembles the user-turn prompt for one file, varying
// its framing by fileKind while always carrying the same structural facts
// (bounded function/class/import lists and a truncated content excerpt).
func buildSummaryPrompt(in FileSummaryInput) string {
	kind := fileKind(in.Path, in.Functions, in.Types)
	var sb strings.Builder

	switch kind {
	case "code":
		fmt.Fprintf(&sb, "Analyze this %s source file at %s.\n\n", in.Language, in.Path)
	case "config":
		fmt.Fprintf(&sb, "Summarize this configuration file at %s.\n\n", in.Path)
	case "doc":
		fmt.Fprintf(&sb, "Summarize this documentation file at %s.\n\n", in.Path)
	case "script":
		fmt.Fprintf(&sb, "Summarize this build/deployment script at %s.\n\n", in.Path)
	default:
		fmt.Fprintf(&sb, "Summarize this file at %s.\n\n", in.Path)
	}

	if len(in.Functions) > 0 {
		sb.WriteString("Functions:\n")
		for i, fn := range in.Functions {
			if i >= 10 {
				break
			}
			if fn.ParentClass != "" {
				fmt.Fprintf(&sb, "  - %s.%s\n", fn.ParentClass, fn.Name)
			} else {
				fmt.Fprintf(&sb, "  - %s\n", fn.Name)
			}
		}
	}
	if len(in.Types) > 0 {
		sb.WriteString("Classes/types:\n")
		for i, t := range in.Types {
			if i >= 10 {
				break
			}
			methods := methodNamesFor(t.Name, in.Functions)
			fmt.Fprintf(&sb, "  - %s (%s): %s\n", t.Name, t.Kind, strings.Join(methods, ", "))
		}
	}
	if len(in.Imports) > 0 {
		sb.WriteString("Imports:\n")
		for i, imp := range in.Imports {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&sb, "  - %s\n", imp.ImportPath)
		}
	}

	sb.WriteString("\nContent excerpt:\n")
	sb.WriteString(truncateWithMarker(in.Content, 2000))

	return sb.String()
}

func methodNamesFor(typeName string, functions []FunctionEntity) []string {
	var names []string
	for _, fn := range functions {
		if fn.ParentClass == typeName {
			names = append(names, fn.Name)
			if len(names) >= 10 {
				break
			}
		}
	}
	return names
}

func truncateWithMarker(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... [truncated]"
}

// SummarizeFile produces one file's summary, stripping any <think>...</think>
// reasoning region from the response before returning it.
func (a *Analyzer) SummarizeFile(ctx context.Context, in FileSummaryInput) (string, error) {
	resp, err := a.chat.Chat(ctx, llm.ChatRequest{
		Model:       a.model,
		Temperature: 0.2,
		Messages:    llm.BuildChatMessages(analyzerSystemPrompt, buildSummaryPrompt(in)),
	})
	if err != nil {
		return "", err
	}
	return llm.StripThink(resp.Message.Content), nil
}

// SummarizeFiles summarizes every input, processing sequential batches of
// batchSize files concurrently within each batch, per the hard concurrency
// contract (Summary stage: sequential batches of 5). Per-file failures are
// logged and skipped; the returned map only contains files that succeeded.
func (a *Analyzer) SummarizeFiles(ctx context.Context, inputs []FileSummaryInput, batchSize int) map[string]string {
	if batchSize <= 0 {
		batchSize = 5
	}
	results := make(map[string]string, len(inputs))
	var mu sync.Mutex

	for start := 0; start < len(inputs); start += batchSize {
		end := start + batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batch := inputs[start:end]

		done := make(chan struct{}, len(batch))
		for _, in := range batch {
			in := in
			go func() {
				defer func() { done <- struct{}{} }()
				summary, err := a.SummarizeFile(ctx, in)
				if err != nil {
					a.logger.Warn("analyzer.summarize.failed", "path", in.Path, "err", err)
					return
				}
				mu.Lock()
				results[in.Path] = summary
				mu.Unlock()
			}()
		}
		for range batch {
			<-done
		}
	}
	return results
}

// SelectOverviewFiles orders a repository's files by the priority described
// in the analyzer contract: README files first, then entry-point file
// names, then the remainder in descending (function+type count) order as
// already returned by FileCountsByRepository, capped at limit.
func SelectOverviewFiles(counts []store.FileOverviewCount, limit int) []store.FileOverviewCount {
	var readmes, entryPoints, rest []store.FileOverviewCount
	for _, c := range counts {
		lower := strings.ToLower(c.Path)
		base := lower[strings.LastIndex(lower, "/")+1:]
		switch {
		case strings.Contains(lower, "readme"):
			readmes = append(readmes, c)
		case isEntryPointName(base):
			entryPoints = append(entryPoints, c)
		default:
			rest = append(rest, c)
		}
	}
	ordered := append(readmes, entryPoints...)
	ordered = append(ordered, rest...)
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered
}

func isEntryPointName(base string) bool {
	prefixes := []string{"main.", "index.", "app.", "server.", "__init__.", "__main__."}
	for _, p := range prefixes {
		if strings.HasPrefix(base, p) {
			return true
		}
	}
	return false
}

// OverviewFileSummary pairs a selected file's path with its persisted
// summary, for building the repository overview prompt.
type OverviewFileSummary struct {
	Path    string
	Summary string
}

const overviewSystemPrompt = `You are a code analysis assistant. Given a set of per-file summaries from a repository, write a 4-5 paragraph overview covering: purpose, architecture, tech stack, entry points, and any notable concerns.`

// GenerateOverview produces the repository-level overview from a set of
// already-selected file summaries and a language breakdown.
func (a *Analyzer) GenerateOverview(ctx context.Context, repoName string, languages map[string]int, files []OverviewFileSummary) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Repository: %s\n\n", repoName)

	sb.WriteString("Languages:\n")
	langNames := make([]string, 0, len(languages))
	for lang := range languages {
		langNames = append(langNames, lang)
	}
	sort.Slice(langNames, func(i, j int) bool { return languages[langNames[i]] > languages[langNames[j]] })
	for _, lang := range langNames {
		fmt.Fprintf(&sb, "  - %s: %d files\n", lang, languages[lang])
	}

	sb.WriteString("\nFile summaries:\n")
	for _, f := range files {
		if f.Summary == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n%s:\n%s\n", f.Path, f.Summary)
	}

	resp, err := a.chat.Chat(ctx, llm.ChatRequest{
		Model:       a.model,
		Temperature: 0.3,
		Messages:    llm.BuildChatMessages(overviewSystemPrompt, sb.String()),
	})
	if err != nil {
		return "", err
	}
	return llm.StripThink(resp.Message.Content), nil
}
