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

// Package query implements the streaming tool-calling loop (C10) that turns
// a user's natural-language question into an answer grounded in the
// indexed repository: it drives pkg/llm's streaming chat completion,
// dispatches pkg/tools calls against pkg/retrieval, and persists the
// conversation through pkg/store.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kraklabs/repoindex/pkg/llm"
	"github.com/kraklabs/repoindex/pkg/retrieval"
	"github.com/kraklabs/repoindex/pkg/store"
	"github.com/kraklabs/repoindex/pkg/tools"
)

// maxIterations bounds the tool-calling loop, per the orchestrator contract
// (default 5): each iteration is one streamed completion, possibly followed
// by tool execution and another iteration.
const maxIterations = 5

// historyLimit is how many prior messages are loaded into context before the
// new user turn.
const historyLimit = 20

// Event is one tagged record emitted to the caller as the orchestrator
// runs. Exactly one of the payload fields is set, matching Kind.
type Event struct {
	Kind string // "tool_call", "tool_result", "answer_chunk", "done", "error"

	ToolCall    *ToolCallEvent
	ToolResult  *ToolResultEvent
	AnswerChunk *AnswerChunkEvent
	Done        *DoneEvent
	Error       error
}

// ToolCallEvent reports a tool the model asked to invoke.
type ToolCallEvent struct {
	Tool string
	Args json.RawMessage
}

// ToolResultEvent reports a tool's outcome without its full text, so
// streaming clients can show progress without a wall of text.
type ToolResultEvent struct {
	Tool        string
	ResultCount int
}

// AnswerChunkEvent carries one fragment of the final answer, already
// stripped of any <think>...</think> reasoning region.
type AnswerChunkEvent struct {
	Content string
}

// DoneEvent is the terminal event: the deduplicated sources touched during
// the run and the tool calls that were made, in order.
type DoneEvent struct {
	Sources   []tools.Source
	ToolCalls []ToolCallEvent
}

// Orchestrator runs the query loop for one repository against one store.
type Orchestrator struct {
	store     *store.Store
	retriever *retrieval.Retriever
	chat      llm.Provider
	model     string
	logger    *slog.Logger
}

// New creates an Orchestrator. chat and model select the LLM used to drive
// the tool-calling loop; model may be empty to use the provider's default.
func New(st *store.Store, retriever *retrieval.Retriever, chat llm.Provider, model string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: st, retriever: retriever, chat: chat, model: model, logger: logger}
}

const systemPromptTemplate = `You are a code assistant answering questions about the repository %q (repository id %s).

You have five tools:
  - search_files: summary-only search. Use for broad "which files are relevant" questions.
  - search_code: hybrid search over functions, types, and classes. Use for "how does X work" / "where is X implemented" questions.
  - get_repo_overview: the repository's generated overview, languages, and file count. Use for "what is this repo" questions.
  - get_file_by_path: a single file's content, summary, and structural lists. Use when the user names an exact path.
  - find_function: look up a function or method by exact name. Use when the user names a specific function.

Call one or more tools before answering; you may call more than one tool per turn and across turns. Prefer the
most specific tool that fits the question. When you have enough information, answer directly without further
tool calls. Always cite the file paths and line numbers your answer is grounded on.`

// Run executes the bounded tool-calling loop for one user query and returns
// a channel of Events. The channel is closed after a terminal "done" or
// "error" event. If ctx is cancelled, the orchestrator stops issuing further
// tool calls or LLM turns at the next safe boundary.
func (o *Orchestrator) Run(ctx context.Context, sessionID, repositoryID, userQuery string) <-chan Event {
	events := make(chan Event, 16)
	go o.run(ctx, sessionID, repositoryID, userQuery, events)
	return events
}

func (o *Orchestrator) run(ctx context.Context, sessionID, repositoryID, userQuery string, events chan<- Event) {
	defer close(events)

	conv, err := o.store.FindOrCreateConversation(ctx, newID("conv", sessionID), sessionID, truncateTitle(userQuery))
	if err != nil {
		events <- Event{Kind: "error", Error: fmt.Errorf("conversation: %w", err)}
		return
	}

	model := o.model
	if sess, err := o.store.GetSession(ctx, sessionID); err == nil && sess.ChatModel != "" {
		model = sess.ChatModel
	}

	history, err := o.store.RecentMessages(ctx, conv.ID, historyLimit)
	if err != nil {
		events <- Event{Kind: "error", Error: fmt.Errorf("history: %w", err)}
		return
	}

	repoName := repositoryID
	if ov, err := o.retriever.GetRepoOverview(ctx, repositoryID); err == nil && ov.Name != "" {
		repoName = ov.Name
	}
	systemPrompt := fmt.Sprintf(systemPromptTemplate, repoName, repositoryID)

	historyMessages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		historyMessages = append(historyMessages, historyToLLMMessage(m))
	}
	messages := llm.BuildChatMessages(systemPrompt, userQuery, historyMessages...)

	if _, err := o.store.AppendMessage(ctx, store.Message{ID: newID("msg", conv.ID), ConversationID: conv.ID, Role: "user", Content: userQuery}); err != nil {
		events <- Event{Kind: "error", Error: fmt.Errorf("persist user message: %w", err)}
		return
	}

	var allSources []tools.Source
	var allToolCalls []ToolCallEvent

	for iteration := 0; iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			events <- Event{Kind: "error", Error: ctx.Err()}
			return
		}

		stream, err := o.chat.Stream(ctx, llm.ChatRequest{
			Model:       model,
			Messages:    messages,
			Tools:       tools.Defs(),
			Temperature: 0.3,
		})
		if err != nil {
			events <- Event{Kind: "error", Error: fmt.Errorf("stream: %w", err)}
			return
		}

		content, calls, err := o.consumeStream(stream, events)
		if err != nil {
			events <- Event{Kind: "error", Error: err}
			return
		}

		if len(calls) == 0 {
			if _, err := o.store.AppendMessage(ctx, store.Message{
				ID: newID("msg", conv.ID), ConversationID: conv.ID, Role: "assistant", Content: content, ToolCalls: toolCallsJSON(allToolCalls),
			}); err != nil {
				events <- Event{Kind: "error", Error: fmt.Errorf("persist assistant message: %w", err)}
				return
			}
			events <- Event{Kind: "done", Done: &DoneEvent{Sources: dedupeSources(allSources), ToolCalls: allToolCalls}}
			return
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: content, ToolCalls: calls})

		for _, call := range calls {
			callEvt := ToolCallEvent{Tool: call.Name, Args: json.RawMessage(call.Arguments)}
			events <- Event{Kind: "tool_call", ToolCall: &callEvt}
			allToolCalls = append(allToolCalls, callEvt)

			result, count, sources, err := tools.Dispatch(ctx, o.retriever, repositoryID,
				tools.Call{Name: call.Name, Arguments: json.RawMessage(call.Arguments)})
			if err != nil {
				events <- Event{Kind: "error", Error: fmt.Errorf("tool %s: %w", call.Name, err)}
				return
			}
			allSources = append(allSources, sources...)
			events <- Event{Kind: "tool_result", ToolResult: &ToolResultEvent{Tool: call.Name, ResultCount: count}}

			messages = append(messages, llm.Message{Role: "tool", ToolCallID: call.ID, Name: call.Name, Content: result.Text})
		}
	}

	events <- Event{Kind: "answer_chunk", AnswerChunk: &AnswerChunkEvent{
		Content: "I wasn't able to reach a confident answer within the available tool-call budget. Please narrow the question or try again.",
	}}
	events <- Event{Kind: "done", Done: &DoneEvent{Sources: dedupeSources(allSources), ToolCalls: allToolCalls}}
}

// consumeStream drains one streamed completion, applying think-tag
// filtering to content fragments on the fly and reassembling tool-call
// deltas by index. It returns the final (stripped) content and the
// completed tool calls, if any.
func (o *Orchestrator) consumeStream(stream <-chan llm.StreamDelta, events chan<- Event) (string, []llm.ToolCall, error) {
	stripper := llm.NewThinkStripper()
	var content string
	callsByIndex := make(map[int]*llm.ToolCall)
	var order []int

	for delta := range stream {
		if delta.Err != nil {
			return "", nil, delta.Err
		}
		if delta.ContentFragment != "" {
			if visible := stripper.Write(delta.ContentFragment); visible != "" {
				content += visible
				events <- Event{Kind: "answer_chunk", AnswerChunk: &AnswerChunkEvent{Content: visible}}
			}
		}
		if delta.ToolCallDelta != nil {
			td := delta.ToolCallDelta
			call, ok := callsByIndex[td.Index]
			if !ok {
				call = &llm.ToolCall{Index: td.Index}
				callsByIndex[td.Index] = call
				order = append(order, td.Index)
			}
			if td.ID != "" {
				call.ID = td.ID
			}
			if td.Name != "" {
				call.Name = td.Name
			}
			call.Arguments += td.ArgumentsFragment
		}
		if delta.Done {
			break
		}
	}
	if tail := stripper.Flush(); tail != "" {
		content += tail
		events <- Event{Kind: "answer_chunk", AnswerChunk: &AnswerChunkEvent{Content: tail}}
	}

	sort.Ints(order)
	calls := make([]llm.ToolCall, 0, len(order))
	for _, idx := range order {
		calls = append(calls, *callsByIndex[idx])
	}
	return content, calls, nil
}

func historyToLLMMessage(m store.Message) llm.Message {
	msg := llm.Message{Role: m.Role, Content: m.Content}
	if m.ToolCalls != "" {
		var calls []llm.ToolCall
		if err := json.Unmarshal([]byte(m.ToolCalls), &calls); err == nil {
			msg.ToolCalls = calls
		}
	}
	return msg
}

func toolCallsJSON(calls []ToolCallEvent) string {
	if len(calls) == 0 {
		return ""
	}
	raw, err := json.Marshal(calls)
	if err != nil {
		return ""
	}
	return string(raw)
}

func dedupeSources(sources []tools.Source) []tools.Source {
	seen := make(map[tools.Source]bool, len(sources))
	out := make([]tools.Source, 0, len(sources))
	for _, s := range sources {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// newID derives a stable-length identifier from a prefix, a seed (the
// session or conversation it belongs to), and the current time, the same
// way the ingestion pipeline derives its run IDs: hash the parts together
// and hex-encode a prefix of the digest.
func newID(prefix, seed string) string {
	base := fmt.Sprintf("%s|%s|%d", prefix, seed, time.Now().UnixNano())
	hash := sha256.Sum256([]byte(base))
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(hash[:16]))
}

func truncateTitle(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max]
}
