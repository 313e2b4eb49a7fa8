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

package store

import "fmt"

// schemaSQL returns the DDL for every table this package manages. embeddingDim
// sizes the two vec0 virtual tables (code units and file summaries).
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- One row per ingested repository.
CREATE TABLE IF NOT EXISTS repositories (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL UNIQUE,
    source_type TEXT NOT NULL,
    source_value TEXT NOT NULL,
    ref TEXT,
    root_path TEXT,
    owner TEXT,
    name TEXT,
    description TEXT,
    default_branch TEXT,
    stars INTEGER DEFAULT 0,
    forks INTEGER DEFAULT 0,
    file_count INTEGER DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending',
    overview TEXT,
    chat_provider TEXT,
    chat_model TEXT,
    embedding_provider TEXT,
    embedding_model TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per source file discovered during ingestion.
CREATE TABLE IF NOT EXISTS files (
    id TEXT PRIMARY KEY,
    repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    language TEXT,
    role TEXT,
    content TEXT,
    size_bytes INTEGER DEFAULT 0,
    content_hash TEXT,
    summary TEXT,
    UNIQUE(repository_id, path)
);

-- Functions and methods extracted from a file.
CREATE TABLE IF NOT EXISTS functions (
    id TEXT PRIMARY KEY,
    file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    signature TEXT,
    code_text TEXT,
    start_line INTEGER,
    end_line INTEGER,
    start_col INTEGER,
    end_col INTEGER
);

-- Types, classes, interfaces and structs extracted from a file.
CREATE TABLE IF NOT EXISTS types (
    id TEXT PRIMARY KEY,
    file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    kind TEXT,
    code_text TEXT,
    start_line INTEGER,
    end_line INTEGER,
    start_col INTEGER,
    end_col INTEGER
);

-- Import statements, used to build the file dependency graph (C3).
CREATE TABLE IF NOT EXISTS imports (
    id TEXT PRIMARY KEY,
    file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    import_path TEXT NOT NULL,
    alias TEXT,
    start_line INTEGER
);

-- File-to-file dependency edges resolved from imports.
CREATE TABLE IF NOT EXISTS file_dependencies (
    file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    depends_on_file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    import_path TEXT NOT NULL,
    PRIMARY KEY (file_id, depends_on_file_id, import_path)
);

-- Import paths that could not be resolved to a file within the repository.
CREATE TABLE IF NOT EXISTS external_imports (
    file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    import_path TEXT NOT NULL,
    PRIMARY KEY (file_id, import_path)
);

CREATE TABLE IF NOT EXISTS defines (
    file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    function_id TEXT NOT NULL REFERENCES functions(id) ON DELETE CASCADE,
    PRIMARY KEY (file_id, function_id)
);

CREATE TABLE IF NOT EXISTS defines_type (
    file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    type_id TEXT NOT NULL REFERENCES types(id) ON DELETE CASCADE,
    PRIMARY KEY (file_id, type_id)
);

-- Sliding-window chunks for large classes/types that exceed the embeddable
-- window size (C7). Standalone functions embed in full and never chunk.
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY,
    type_id TEXT NOT NULL REFERENCES types(id) ON DELETE CASCADE,
    chunk_index INTEGER NOT NULL,
    total_chunks INTEGER NOT NULL,
    start_line INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    content TEXT NOT NULL
);

-- Unit-of-embedding registry: one row per function, type, or chunk that
-- carries a code embedding. Keeps vec_code_units' rowid stable and lets a
-- single ANN index cover all three kinds.
CREATE TABLE IF NOT EXISTS code_units (
    id INTEGER PRIMARY KEY,
    kind TEXT NOT NULL CHECK (kind IN ('function', 'type', 'chunk')),
    ref_id TEXT NOT NULL,
    file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    content TEXT NOT NULL,
    start_line INTEGER,
    end_line INTEGER,
    UNIQUE(kind, ref_id)
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_code_units USING vec0(
    unit_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

CREATE VIRTUAL TABLE IF NOT EXISTS code_units_fts USING fts5(
    name,
    content,
    content='code_units',
    content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS code_units_ai AFTER INSERT ON code_units BEGIN
    INSERT INTO code_units_fts(rowid, name, content) VALUES (new.id, new.name, new.content);
END;
CREATE TRIGGER IF NOT EXISTS code_units_ad AFTER DELETE ON code_units BEGIN
    INSERT INTO code_units_fts(code_units_fts, rowid, name, content) VALUES ('delete', old.id, old.name, old.content);
END;
CREATE TRIGGER IF NOT EXISTS code_units_au AFTER UPDATE ON code_units BEGIN
    INSERT INTO code_units_fts(code_units_fts, rowid, name, content) VALUES ('delete', old.id, old.name, old.content);
    INSERT INTO code_units_fts(rowid, name, content) VALUES (new.id, new.name, new.content);
END;

-- File-level summary embeddings, kept separate from code_units since
-- summaries regenerate independently of the function/type extraction pass.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_file_summaries USING vec0(
    file_rowid INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- files.id is a TEXT path-derived ID; vec0/fts5 need a stable INTEGER rowid,
-- so this table is the bridge between the two ID spaces.
CREATE TABLE IF NOT EXISTS file_rowids (
    rowid_id INTEGER PRIMARY KEY,
    file_id TEXT NOT NULL UNIQUE REFERENCES files(id) ON DELETE CASCADE
);

CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
    path,
    summary,
    content='',
    tokenize='porter unicode61'
);

-- Ingestion task state machine (C8): queued -> fetching -> parsing ->
-- embedding -> summarizing -> overview -> finalizing -> completed, or failed.
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'queued',
    current_step TEXT NOT NULL DEFAULT 'queued',
    error TEXT,
    total_files INTEGER DEFAULT 0,
    processed_files INTEGER DEFAULT 0,
    files_processed INTEGER DEFAULT 0,
    functions_extracted INTEGER DEFAULT 0,
    types_extracted INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- A query session scopes one repository plus a chosen model quadruple
-- (chat_provider, chat_model, embedding_provider, embedding_model).
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
    chat_provider TEXT,
    chat_model TEXT,
    embedding_provider TEXT,
    embedding_model TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    title TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    sequence_number INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT,
    tool_calls JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(conversation_id, sequence_number)
);

CREATE INDEX IF NOT EXISTS idx_files_repository ON files(repository_id);
CREATE INDEX IF NOT EXISTS idx_functions_file ON functions(file_id);
CREATE INDEX IF NOT EXISTS idx_types_file ON types(file_id);
CREATE INDEX IF NOT EXISTS idx_imports_file ON imports(file_id);
CREATE INDEX IF NOT EXISTS idx_file_deps_file ON file_dependencies(file_id);
CREATE INDEX IF NOT EXISTS idx_file_deps_target ON file_dependencies(depends_on_file_id);
CREATE INDEX IF NOT EXISTS idx_chunks_type ON chunks(type_id);
CREATE INDEX IF NOT EXISTS idx_code_units_file ON code_units(file_id);
CREATE INDEX IF NOT EXISTS idx_tasks_repository ON tasks(repository_id);
CREATE INDEX IF NOT EXISTS idx_sessions_repository ON sessions(repository_id);
CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`, embeddingDim, embeddingDim)
}
