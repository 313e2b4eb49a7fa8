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
	"strconv"
	"strings"

	"github.com/kraklabs/repoindex/pkg/store"
)

// Chunking constants for large types (C7), grounded on
// bbiangul-go-reason/chunker/chunker.go's extractOverlap window splitting,
// generalized from word-count windows over prose to line-range windows over
// source text.
const (
	maxWholeClassLines = 800
	chunkWindowLines    = 700
	chunkOverlapLines   = 100
)

// Chunker embeds functions, types (whole or sliding-window chunked), and
// file summaries, and registers them as searchable code_units (C7).
type Chunker struct {
	embed  *EmbeddingGenerator
	store  *store.Store
	logger *slog.Logger
}

// NewChunker creates a Chunker backed by the given embedding generator and
// store.
func NewChunker(embed *EmbeddingGenerator, st *store.Store, logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{embed: embed, store: st, logger: logger}
}

// EmbedFile embeds every function and type belonging to one file and
// registers them in the code_units index. Individual embedding failures are
// logged and skipped; the file may end with a partial embedding set.
func (c *Chunker) EmbedFile(ctx context.Context, fileID string, functions []FunctionEntity, types []TypeEntity) {
	for _, fn := range functions {
		if fn.IsMethod {
			// Methods of a class are covered by the enclosing class
			// embedding; embedding them individually would duplicate
			// content for little retrieval benefit.
			continue
		}
		if err := c.embedFunction(ctx, fileID, fn); err != nil {
			c.logger.Warn("chunker.function.failed", "file_id", fileID, "function", fn.Name, "err", err)
		}
	}
	for _, t := range types {
		if err := c.embedType(ctx, fileID, t); err != nil {
			c.logger.Warn("chunker.type.failed", "file_id", fileID, "type", t.Name, "err", err)
		}
	}
}

func (c *Chunker) embedFunction(ctx context.Context, fileID string, fn FunctionEntity) error {
	vec, err := c.embed.EmbedText(ctx, fn.ID, fn.CodeText)
	if err != nil {
		return err
	}
	unitID, err := c.store.UpsertCodeUnit(ctx, store.CodeUnit{
		Kind: "function", RefID: fn.ID, FileID: fileID, Name: fn.Name,
		Content: fn.CodeText, StartLine: fn.StartLine, EndLine: fn.EndLine,
	})
	if err != nil {
		return err
	}
	return c.store.InsertCodeEmbedding(ctx, unitID, vec)
}

func (c *Chunker) embedType(ctx context.Context, fileID string, t TypeEntity) error {
	span := t.EndLine - t.StartLine
	if span <= maxWholeClassLines {
		vec, err := c.embed.EmbedText(ctx, t.ID, t.CodeText)
		if err != nil {
			return err
		}
		unitID, err := c.store.UpsertCodeUnit(ctx, store.CodeUnit{
			Kind: "type", RefID: t.ID, FileID: fileID, Name: t.Name,
			Content: t.CodeText, StartLine: t.StartLine, EndLine: t.EndLine,
		})
		if err != nil {
			return err
		}
		return c.store.InsertCodeEmbedding(ctx, unitID, vec)
	}
	return c.embedTypeChunks(ctx, fileID, t)
}

// embedTypeChunks slides a chunkWindowLines window with chunkOverlapLines
// overlap across a large type's source text, embedding each window
// separately.
func (c *Chunker) embedTypeChunks(ctx context.Context, fileID string, t TypeEntity) error {
	lines := strings.Split(t.CodeText, "\n")
	windows := slidingWindows(len(lines), chunkWindowLines, chunkOverlapLines)

	rows := make([]store.ChunkRow, len(windows))
	for i, w := range windows {
		rows[i] = store.ChunkRow{
			TypeID:      t.ID,
			ChunkIndex:  i,
			TotalChunks: len(windows),
			StartLine:   t.StartLine + w.start,
			EndLine:     t.StartLine + w.end - 1,
			Content:     strings.Join(lines[w.start:w.end], "\n"),
		}
	}
	ids, err := c.store.InsertChunks(ctx, rows)
	if err != nil {
		return err
	}

	for i, row := range rows {
		refID := strconv.FormatInt(ids[i], 10)
		name := fmt.Sprintf("%s_chunk_%d", t.Name, row.ChunkIndex)
		vec, err := c.embed.EmbedText(ctx, refID, row.Content)
		if err != nil {
			c.logger.Warn("chunker.chunk.embed.failed", "type", t.Name, "chunk", row.ChunkIndex, "err", err)
			continue
		}
		unitID, err := c.store.UpsertCodeUnit(ctx, store.CodeUnit{
			Kind: "chunk", RefID: refID, FileID: fileID, Name: name,
			Content: row.Content, StartLine: row.StartLine, EndLine: row.EndLine,
		})
		if err != nil {
			c.logger.Warn("chunker.chunk.register.failed", "type", t.Name, "chunk", row.ChunkIndex, "err", err)
			continue
		}
		if err := c.store.InsertCodeEmbedding(ctx, unitID, vec); err != nil {
			c.logger.Warn("chunker.chunk.embedding.write.failed", "type", t.Name, "chunk", row.ChunkIndex, "err", err)
		}
	}
	return nil
}

// EmbedSummary embeds a file's summary text and writes it to the
// file-summary vector index.
func (c *Chunker) EmbedSummary(ctx context.Context, fileID, path, summary string) error {
	if summary == "" {
		return nil
	}
	vec, err := c.embed.EmbedText(ctx, fileID, summary)
	if err != nil {
		return err
	}
	return c.store.UpsertFileSummaryEmbedding(ctx, fileID, path, summary, vec)
}

type lineWindow struct{ start, end int } // end exclusive

// slidingWindows splits totalLines into overlapping [start,end) windows of
// size windowSize with overlap lines shared between consecutive windows.
// total_chunks = ceil((span-overlap)/(window-overlap)) falls naturally out
// of advancing the window by (windowSize-overlap) each step.
func slidingWindows(totalLines, windowSize, overlap int) []lineWindow {
	if totalLines <= windowSize {
		return []lineWindow{{0, totalLines}}
	}
	stride := windowSize - overlap
	var windows []lineWindow
	for start := 0; start < totalLines; start += stride {
		end := start + windowSize
		if end >= totalLines {
			windows = append(windows, lineWindow{start, totalLines})
			break
		}
		windows = append(windows, lineWindow{start, end})
	}
	return windows
}
