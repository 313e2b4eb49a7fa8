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

// Package store persists ingested repositories, their code entities and
// embeddings, and query sessions in a single SQLite file. Vector search
// rides sqlite-vec's vec0 virtual tables; full-text search rides FTS5.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Store wraps the SQLite database backing one CIE workspace. A single Store
// may hold many repositories; callers scope all queries by repository_id.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// Config configures the store's backing SQLite file.
type Config struct {
	// Path is the SQLite database file. ":memory:" is allowed for tests.
	Path string
	// EmbeddingDim sizes the vec0 virtual tables. Must match every
	// embedding vector written to the store.
	EmbeddingDim int
}

// Open creates or opens a SQLite database at cfg.Path and ensures the full
// schema (tables, vec0 indexes, FTS5 indexes and sync triggers) exists.
func Open(cfg Config) (*Store, error) {
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = 768
	}
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(cfg.EmbeddingDim)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db, embeddingDim: cfg.EmbeddingDim}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ", ")
}

// --- Repository ---

// Repository is a single ingested repository.
type Repository struct {
	ID                string
	ProjectID         string
	SourceType        string
	SourceValue       string
	Ref               string
	RootPath          string
	Owner             string
	Name              string
	Description       string
	DefaultBranch     string
	Stars             int
	Forks             int
	FileCount         int
	Status            string
	Overview          string
	ChatProvider      string
	ChatModel         string
	EmbeddingProvider string
	EmbeddingModel    string
}

// UpsertRepository inserts a repository or updates it if the project ID
// already exists. Returns the repository's ID.
func (s *Store) UpsertRepository(ctx context.Context, r Repository) (string, error) {
	if r.ID == "" {
		r.ID = r.ProjectID
	}
	if r.Status == "" {
		r.Status = "pending"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (id, project_id, source_type, source_value, ref, root_path,
			owner, name, description, default_branch, stars, forks, file_count, status,
			chat_provider, chat_model, embedding_provider, embedding_model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			source_type = excluded.source_type,
			source_value = excluded.source_value,
			ref = excluded.ref,
			root_path = excluded.root_path,
			owner = excluded.owner,
			name = excluded.name,
			description = excluded.description,
			default_branch = excluded.default_branch,
			stars = excluded.stars,
			forks = excluded.forks,
			file_count = excluded.file_count,
			status = excluded.status,
			chat_provider = excluded.chat_provider,
			chat_model = excluded.chat_model,
			embedding_provider = excluded.embedding_provider,
			embedding_model = excluded.embedding_model,
			updated_at = CURRENT_TIMESTAMP
	`, r.ID, r.ProjectID, r.SourceType, r.SourceValue, r.Ref, r.RootPath,
		r.Owner, r.Name, r.Description, r.DefaultBranch, r.Stars, r.Forks, r.FileCount, r.Status,
		r.ChatProvider, r.ChatModel, r.EmbeddingProvider, r.EmbeddingModel)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// GetRepositoryByProjectID looks up a repository by its project ID.
func (s *Store) GetRepositoryByProjectID(ctx context.Context, projectID string) (*Repository, error) {
	r := &Repository{}
	var ref, rootPath, owner, name, description, defaultBranch, overview, chatProvider, chatModel, embProvider, embModel sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, source_type, source_value, ref, root_path,
			owner, name, description, default_branch, stars, forks, file_count, status, overview,
			chat_provider, chat_model, embedding_provider, embedding_model
		FROM repositories WHERE project_id = ?
	`, projectID).Scan(&r.ID, &r.ProjectID, &r.SourceType, &r.SourceValue, &ref, &rootPath,
		&owner, &name, &description, &defaultBranch, &r.Stars, &r.Forks, &r.FileCount, &r.Status, &overview,
		&chatProvider, &chatModel, &embProvider, &embModel)
	if err != nil {
		return nil, err
	}
	r.Ref, r.RootPath, r.Overview = ref.String, rootPath.String, overview.String
	r.Owner, r.Name, r.Description, r.DefaultBranch = owner.String, name.String, description.String, defaultBranch.String
	r.ChatProvider, r.ChatModel, r.EmbeddingProvider, r.EmbeddingModel =
		chatProvider.String, chatModel.String, embProvider.String, embModel.String
	return r, nil
}

// GetRepository looks up a repository by its own ID, as used throughout
// retrieval (C9) where callers already hold a repository_id rather than a
// project_id.
func (s *Store) GetRepository(ctx context.Context, repositoryID string) (*Repository, error) {
	r := &Repository{}
	var ref, rootPath, owner, name, description, defaultBranch, overview, chatProvider, chatModel, embProvider, embModel sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, source_type, source_value, ref, root_path,
			owner, name, description, default_branch, stars, forks, file_count, status, overview,
			chat_provider, chat_model, embedding_provider, embedding_model
		FROM repositories WHERE id = ?
	`, repositoryID).Scan(&r.ID, &r.ProjectID, &r.SourceType, &r.SourceValue, &ref, &rootPath,
		&owner, &name, &description, &defaultBranch, &r.Stars, &r.Forks, &r.FileCount, &r.Status, &overview,
		&chatProvider, &chatModel, &embProvider, &embModel)
	if err != nil {
		return nil, err
	}
	r.Ref, r.RootPath, r.Overview = ref.String, rootPath.String, overview.String
	r.Owner, r.Name, r.Description, r.DefaultBranch = owner.String, name.String, description.String, defaultBranch.String
	r.ChatProvider, r.ChatModel, r.EmbeddingProvider, r.EmbeddingModel =
		chatProvider.String, chatModel.String, embProvider.String, embModel.String
	return r, nil
}

// UpdateRepositoryOverview stores the generated repository-level summary.
func (s *Store) UpdateRepositoryOverview(ctx context.Context, repositoryID, overview string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE repositories SET overview = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		overview, repositoryID)
	return err
}

// UpdateRepositoryStatus transitions a repository's top-level ingestion status.
func (s *Store) UpdateRepositoryStatus(ctx context.Context, repositoryID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE repositories SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, repositoryID)
	return err
}

// --- Files ---

// File is a row in the files table.
type File struct {
	ID           string
	RepositoryID string
	Path         string
	Language     string
	Role         string
	Content      string
	SizeBytes    int64
	ContentHash  string
	Summary      string
}

// UpsertFiles inserts a batch of files for a repository in a single
// transaction, replacing any rows with the same (repository_id, path).
func (s *Store) UpsertFiles(ctx context.Context, files []File) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO files (id, repository_id, path, language, role, content, size_bytes, content_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(repository_id, path) DO UPDATE SET
				language = excluded.language,
				role = excluded.role,
				content = excluded.content,
				size_bytes = excluded.size_bytes,
				content_hash = excluded.content_hash
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, f := range files {
			if _, err := stmt.ExecContext(ctx, f.ID, f.RepositoryID, f.Path, f.Language, f.Role,
				f.Content, f.SizeBytes, f.ContentHash); err != nil {
				return fmt.Errorf("upsert file %s: %w", f.Path, err)
			}
		}
		return nil
	})
}

// UpdateFileSummary stores the per-file summary generated by the analyzer (C6).
func (s *Store) UpdateFileSummary(ctx context.Context, fileID, summary string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE files SET summary = ? WHERE id = ?", summary, fileID)
	return err
}

// GetFileByPath looks up a file by its repository-relative path, including
// its full stored content.
func (s *Store) GetFileByPath(ctx context.Context, repositoryID, path string) (*File, error) {
	f := &File{RepositoryID: repositoryID, Path: path}
	var summary, content, contentHash sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, language, role, content, content_hash, size_bytes, summary FROM files WHERE repository_id = ? AND path = ?",
		repositoryID, path,
	).Scan(&f.ID, &f.Language, &f.Role, &content, &contentHash, &f.SizeBytes, &summary)
	if err != nil {
		return nil, err
	}
	f.Summary, f.Content, f.ContentHash = summary.String, content.String, contentHash.String
	return f, nil
}

// ListFiles returns every file row for a repository.
func (s *Store) ListFiles(ctx context.Context, repositoryID string) ([]File, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, path, language, role, COALESCE(summary, '') FROM files WHERE repository_id = ? ORDER BY path",
		repositoryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f := File{RepositoryID: repositoryID}
		if err := rows.Scan(&f.ID, &f.Path, &f.Language, &f.Role, &f.Summary); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// fileRowID returns (creating if necessary) the stable integer rowid used to
// key vec_file_summaries/files_fts for a given text file ID.
func (s *Store) fileRowID(ctx context.Context, tx *sql.Tx, fileID string) (int64, error) {
	var rowid int64
	err := tx.QueryRowContext(ctx, "SELECT rowid_id FROM file_rowids WHERE file_id = ?", fileID).Scan(&rowid)
	if err == nil {
		return rowid, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, "INSERT INTO file_rowids (file_id) VALUES (?)", fileID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpsertFileSummaryEmbedding stores the vector embedding of a file's summary
// and keeps the files_fts shadow index (path + summary) in sync. files_fts
// uses an external-content table of '' (unmanaged), so rows are
// inserted/deleted explicitly rather than through triggers.
func (s *Store) UpsertFileSummaryEmbedding(ctx context.Context, fileID, path, summary string, embedding []float32) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		rowid, err := s.fileRowID(ctx, tx, fileID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO vec_file_summaries (file_rowid, embedding) VALUES (?, ?)",
			rowid, serializeFloat32(embedding)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM files_fts WHERE rowid = ?", rowid); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO files_fts (rowid, path, summary) VALUES (?, ?, ?)", rowid, path, summary)
		return err
	})
}

// --- Functions, types, imports, edges ---

// FunctionRow is a row in the functions table.
type FunctionRow struct {
	ID, FileID, Name, Signature, CodeText, FilePath string
	StartLine, EndLine, StartCol, EndCol            int
}

// TypeRow is a row in the types table.
type TypeRow struct {
	ID, FileID, Name, Kind, CodeText      string
	StartLine, EndLine, StartCol, EndCol  int
}

// ImportRow is a row in the imports table.
type ImportRow struct {
	ID, FileID, ImportPath, Alias string
	StartLine                    int
}

// InsertFunctions inserts a batch of functions and their defines edges.
func (s *Store) InsertFunctions(ctx context.Context, functions []FunctionRow) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		fnStmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO functions (id, file_id, name, signature, code_text, start_line, end_line, start_col, end_col)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer fnStmt.Close()

		defStmt, err := tx.PrepareContext(ctx,
			"INSERT OR IGNORE INTO defines (file_id, function_id) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer defStmt.Close()

		for _, fn := range functions {
			if _, err := fnStmt.ExecContext(ctx, fn.ID, fn.FileID, fn.Name, fn.Signature, fn.CodeText,
				fn.StartLine, fn.EndLine, fn.StartCol, fn.EndCol); err != nil {
				return fmt.Errorf("insert function %s: %w", fn.Name, err)
			}
			if _, err := defStmt.ExecContext(ctx, fn.FileID, fn.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertTypes inserts a batch of types and their defines_type edges.
func (s *Store) InsertTypes(ctx context.Context, types []TypeRow) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		tStmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO types (id, file_id, name, kind, code_text, start_line, end_line, start_col, end_col)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer tStmt.Close()

		defStmt, err := tx.PrepareContext(ctx,
			"INSERT OR IGNORE INTO defines_type (file_id, type_id) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer defStmt.Close()

		for _, t := range types {
			if _, err := tStmt.ExecContext(ctx, t.ID, t.FileID, t.Name, t.Kind, t.CodeText,
				t.StartLine, t.EndLine, t.StartCol, t.EndCol); err != nil {
				return fmt.Errorf("insert type %s: %w", t.Name, err)
			}
			if _, err := defStmt.ExecContext(ctx, t.FileID, t.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertImports inserts a batch of import statements.
func (s *Store) InsertImports(ctx context.Context, imports []ImportRow) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO imports (id, file_id, import_path, alias, start_line)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, imp := range imports {
			if _, err := stmt.ExecContext(ctx, imp.ID, imp.FileID, imp.ImportPath, imp.Alias, imp.StartLine); err != nil {
				return err
			}
		}
		return nil
	})
}

// FileDependency is a resolved file-to-file import edge (C3).
type FileDependency struct {
	FileID, DependsOnFileID, ImportPath string
}

// InsertFileDependencies inserts resolved file dependency edges.
func (s *Store) InsertFileDependencies(ctx context.Context, deps []FileDependency) error {
	if len(deps) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT OR IGNORE INTO file_dependencies (file_id, depends_on_file_id, import_path) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, d := range deps {
			if _, err := stmt.ExecContext(ctx, d.FileID, d.DependsOnFileID, d.ImportPath); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertExternalImports records import paths that resolved to nothing inside
// the repository (standard library or third-party packages).
func (s *Store) InsertExternalImports(ctx context.Context, fileID string, importPaths []string) error {
	if len(importPaths) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT OR IGNORE INTO external_imports (file_id, import_path) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range importPaths {
			if _, err := stmt.ExecContext(ctx, fileID, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// FileDependencies returns the files a given file imports from within the
// repository, and the import paths that resolved externally.
func (s *Store) FileDependencies(ctx context.Context, fileID string) (dependsOn []string, external []string, err error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT depends_on_file_id FROM file_dependencies WHERE file_id = ?", fileID)
	if err != nil {
		return nil, nil, err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, nil, err
		}
		dependsOn = append(dependsOn, id)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		"SELECT import_path FROM external_imports WHERE file_id = ?", fileID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, nil, err
		}
		external = append(external, p)
	}
	return dependsOn, external, rows.Err()
}

// FileImportedBy returns the files that depend on the given file.
func (s *Store) FileImportedBy(ctx context.Context, fileID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT file_id FROM file_dependencies WHERE depends_on_file_id = ?", fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Chunks (C7) ---

// ChunkRow is a sliding-window chunk of a large type's code text.
type ChunkRow struct {
	TypeID                       string
	ChunkIndex, TotalChunks      int
	StartLine, EndLine           int
	Content                      string
}

// InsertChunks inserts the chunks produced for one large type and returns
// their generated row IDs in the same order.
func (s *Store) InsertChunks(ctx context.Context, chunks []ChunkRow) ([]int64, error) {
	ids := make([]int64, len(chunks))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (type_id, chunk_index, total_chunks, start_line, end_line, content)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, c := range chunks {
			res, err := stmt.ExecContext(ctx, c.TypeID, c.ChunkIndex, c.TotalChunks, c.StartLine, c.EndLine, c.Content)
			if err != nil {
				return err
			}
			ids[i], err = res.LastInsertId()
			if err != nil {
				return err
			}
		}
		return nil
	})
	return ids, err
}

// --- Code units and embeddings (C4, C9) ---

// CodeUnit is one embeddable unit of code: a function, a whole type, or a
// chunk of a large type.
type CodeUnit struct {
	Kind                string // "function", "type", "chunk"
	RefID               string // functions.id, types.id, or chunks.id (as text)
	FileID              string
	Name                string
	Content             string
	StartLine, EndLine  int
}

// UpsertCodeUnit registers (or re-registers) one embeddable code unit and
// returns its integer row ID, used to key vec_code_units.
func (s *Store) UpsertCodeUnit(ctx context.Context, u CodeUnit) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO code_units (kind, ref_id, file_id, name, content, start_line, end_line)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, ref_id) DO UPDATE SET
			content = excluded.content, name = excluded.name,
			start_line = excluded.start_line, end_line = excluded.end_line
	`, u.Kind, u.RefID, u.FileID, u.Name, u.Content, u.StartLine, u.EndLine)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if id == 0 {
		err = s.db.QueryRowContext(ctx,
			"SELECT id FROM code_units WHERE kind = ? AND ref_id = ?", u.Kind, u.RefID).Scan(&id)
	}
	return id, err
}

// InsertCodeEmbedding stores the vector embedding for a registered code unit.
func (s *Store) InsertCodeEmbedding(ctx context.Context, unitID int64, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_code_units (unit_id, embedding) VALUES (?, ?)",
		unitID, serializeFloat32(embedding))
	return err
}

// CodeSearchResult is one hit from hybrid code search.
type CodeSearchResult struct {
	UnitID              int64
	Kind                string
	RefID               string
	FilePath             string
	Name                string
	Content             string
	StartLine, EndLine  int
	Score               float64
}

// filenameBoost is applied to hits whose file path contains a query token at
// a word boundary, on top of the blended vector/text score.
const filenameBoost = 1.3

// vectorWeight and textWeight blend the normalized ANN and FTS5 scores for
// hybrid code and file search.
const (
	vectorWeight = 0.7
	textWeight   = 0.3
)

// SearchCode performs hybrid (vector + full-text) search over functions,
// types, and chunks, scoped to one repository. It combines a cosine-style
// vector similarity with a normalized BM25 text score
// (0.7*vector + 0.3*text), then applies a 1.3x boost to hits whose file path
// contains any query token at a word boundary.
func (s *Store) SearchCode(ctx context.Context, repositoryID string, queryEmbedding []float32, queryText string, limit int) ([]CodeSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	candidatePool := limit * 5
	if candidatePool < 50 {
		candidatePool = 50
	}

	vecScores := make(map[int64]float64)
	if len(queryEmbedding) > 0 {
		rows, err := s.db.QueryContext(ctx, `
			SELECT v.unit_id, v.distance
			FROM vec_code_units v
			JOIN code_units cu ON cu.id = v.unit_id
			WHERE v.embedding MATCH ? AND k = ? AND cu.file_id IN (SELECT id FROM files WHERE repository_id = ?)
			ORDER BY v.distance
		`, serializeFloat32(queryEmbedding), candidatePool, repositoryID)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		for rows.Next() {
			var unitID int64
			var distance float64
			if err := rows.Scan(&unitID, &distance); err != nil {
				rows.Close()
				return nil, err
			}
			vecScores[unitID] = 1.0 - distance
		}
		rows.Close()
	}

	textScores := make(map[int64]float64)
	if strings.TrimSpace(queryText) != "" {
		rows, err := s.db.QueryContext(ctx, `
			SELECT f.rowid, f.rank
			FROM code_units_fts f
			JOIN code_units cu ON cu.id = f.rowid
			WHERE code_units_fts MATCH ? AND cu.file_id IN (SELECT id FROM files WHERE repository_id = ?)
			ORDER BY f.rank
			LIMIT ?
		`, ftsQuery(queryText), repositoryID, candidatePool)
		if err != nil {
			return nil, fmt.Errorf("text search: %w", err)
		}
		for rows.Next() {
			var unitID int64
			var rank float64
			if err := rows.Scan(&unitID, &rank); err != nil {
				rows.Close()
				return nil, err
			}
			textScores[unitID] = -rank
		}
		rows.Close()
	}

	combined := make(map[int64]float64, len(vecScores)+len(textScores))
	for id, v := range vecScores {
		combined[id] += vectorWeight * v
	}
	for id, t := range textScores {
		combined[id] += textWeight * normalizeTextScore(t)
	}
	if len(combined) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(combined))
	for id := range combined {
		ids = append(ids, id)
	}
	units, err := s.loadCodeUnits(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]CodeSearchResult, 0, len(units))
	tokens := queryTokens(queryText)
	for _, u := range units {
		score := combined[u.UnitID]
		if len(tokens) > 0 && matchesAnyToken(u.FilePath, tokens) {
			score *= filenameBoost
		}
		u.Score = score
		results = append(results, u)
	}
	sortResultsByScore(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) loadCodeUnits(ctx context.Context, ids []int64) ([]CodeSearchResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT cu.id, cu.kind, cu.ref_id, f.path, cu.name, cu.content, cu.start_line, cu.end_line
		FROM code_units cu
		JOIN files f ON f.id = cu.file_id
		WHERE cu.id IN (%s)
	`, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CodeSearchResult
	for rows.Next() {
		var r CodeSearchResult
		if err := rows.Scan(&r.UnitID, &r.Kind, &r.RefID, &r.FilePath, &r.Name, &r.Content, &r.StartLine, &r.EndLine); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FileSearchResult is one hit from hybrid file search.
type FileSearchResult struct {
	FileID, Path, Language, Summary string
	Score                           float64
}

// SearchFiles performs hybrid search over file-level summaries.
func (s *Store) SearchFiles(ctx context.Context, repositoryID string, queryEmbedding []float32, queryText string, limit int) ([]FileSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	candidatePool := limit * 5
	if candidatePool < 50 {
		candidatePool = 50
	}

	vecScores := make(map[int64]float64)
	if len(queryEmbedding) > 0 {
		rows, err := s.db.QueryContext(ctx, `
			SELECT v.file_rowid, v.distance
			FROM vec_file_summaries v
			JOIN file_rowids fr ON fr.rowid_id = v.file_rowid
			JOIN files f ON f.id = fr.file_id
			WHERE v.embedding MATCH ? AND k = ? AND f.repository_id = ?
			ORDER BY v.distance
		`, serializeFloat32(queryEmbedding), candidatePool, repositoryID)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		for rows.Next() {
			var rowid int64
			var distance float64
			if err := rows.Scan(&rowid, &distance); err != nil {
				rows.Close()
				return nil, err
			}
			vecScores[rowid] = 1.0 - distance
		}
		rows.Close()
	}

	textScores := make(map[int64]float64)
	if strings.TrimSpace(queryText) != "" {
		rows, err := s.db.QueryContext(ctx, `
			SELECT f.rowid, f.rank
			FROM files_fts f
			JOIN file_rowids fr ON fr.rowid_id = f.rowid
			JOIN files ff ON ff.id = fr.file_id
			WHERE files_fts MATCH ? AND ff.repository_id = ?
			ORDER BY f.rank
			LIMIT ?
		`, ftsQuery(queryText), repositoryID, candidatePool)
		if err != nil {
			return nil, fmt.Errorf("text search: %w", err)
		}
		for rows.Next() {
			var rowid int64
			var rank float64
			if err := rows.Scan(&rowid, &rank); err != nil {
				rows.Close()
				return nil, err
			}
			textScores[rowid] = -rank
		}
		rows.Close()
	}

	combined := make(map[int64]float64, len(vecScores)+len(textScores))
	for id, v := range vecScores {
		combined[id] += vectorWeight * v
	}
	for id, t := range textScores {
		combined[id] += textWeight * normalizeTextScore(t)
	}
	if len(combined) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(combined))
	for id := range combined {
		ids = append(ids, id)
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT fr.rowid_id, f.id, f.path, f.language, COALESCE(f.summary, '')
		FROM file_rowids fr
		JOIN files f ON f.id = fr.file_id
		WHERE fr.rowid_id IN (%s)
	`, placeholders(len(ids)))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := queryTokens(queryText)
	var results []FileSearchResult
	for rows.Next() {
		var rowid int64
		var r FileSearchResult
		if err := rows.Scan(&rowid, &r.FileID, &r.Path, &r.Language, &r.Summary); err != nil {
			return nil, err
		}
		r.Score = combined[rowid]
		if len(tokens) > 0 && matchesAnyToken(r.Path, tokens) {
			r.Score *= filenameBoost
		}
		results = append(results, r)
	}
	sortFileResultsByScore(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, rows.Err()
}

// FindFunction returns the functions in a repository whose name equals name
// exactly, ordered by file path. CodeText carries the function's own source, and
// FilePath the file it was defined in.
func (s *Store) FindFunction(ctx context.Context, repositoryID, name string) ([]FunctionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fn.id, fn.file_id, fn.name, COALESCE(fn.signature, ''), COALESCE(fn.code_text, ''),
			f.path, fn.start_line, fn.end_line, fn.start_col, fn.end_col
		FROM functions fn
		JOIN files f ON f.id = fn.file_id
		WHERE f.repository_id = ? AND fn.name = ?
		ORDER BY f.path
	`, repositoryID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FunctionRow
	for rows.Next() {
		var fn FunctionRow
		if err := rows.Scan(&fn.ID, &fn.FileID, &fn.Name, &fn.Signature, &fn.CodeText,
			&fn.FilePath, &fn.StartLine, &fn.EndLine, &fn.StartCol, &fn.EndCol); err != nil {
			return nil, err
		}
		out = append(out, fn)
	}
	return out, rows.Err()
}

// FunctionsByFile returns every function defined in a single file, for the
// structural listing half of get_file_by_path (C9).
func (s *Store) FunctionsByFile(ctx context.Context, fileID string) ([]FunctionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fn.id, fn.file_id, fn.name, COALESCE(fn.signature, ''), COALESCE(fn.code_text, ''),
			f.path, fn.start_line, fn.end_line, fn.start_col, fn.end_col
		FROM functions fn
		JOIN files f ON f.id = fn.file_id
		WHERE fn.file_id = ?
		ORDER BY fn.start_line
	`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FunctionRow
	for rows.Next() {
		var fn FunctionRow
		if err := rows.Scan(&fn.ID, &fn.FileID, &fn.Name, &fn.Signature, &fn.CodeText,
			&fn.FilePath, &fn.StartLine, &fn.EndLine, &fn.StartCol, &fn.EndCol); err != nil {
			return nil, err
		}
		out = append(out, fn)
	}
	return out, rows.Err()
}

// TypesByFile returns every type defined in a single file.
func (s *Store) TypesByFile(ctx context.Context, fileID string) ([]TypeRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, name, kind, COALESCE(code_text, ''), start_line, end_line, start_col, end_col
		FROM types
		WHERE file_id = ?
		ORDER BY start_line
	`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TypeRow
	for rows.Next() {
		var t TypeRow
		if err := rows.Scan(&t.ID, &t.FileID, &t.Name, &t.Kind, &t.CodeText,
			&t.StartLine, &t.EndLine, &t.StartCol, &t.EndCol); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ImportsByFile returns every import statement recorded for a single file.
func (s *Store) ImportsByFile(ctx context.Context, fileID string) ([]ImportRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, import_path, COALESCE(alias, ''), start_line
		FROM imports
		WHERE file_id = ?
		ORDER BY start_line
	`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ImportRow
	for rows.Next() {
		var imp ImportRow
		if err := rows.Scan(&imp.ID, &imp.FileID, &imp.ImportPath, &imp.Alias, &imp.StartLine); err != nil {
			return nil, err
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

// ChunkParent describes the type a code_units "chunk" entry was sliced
// from, so retrieval can reconstruct or reference the whole class.
type ChunkParent struct {
	TypeID               string
	TypeName              string
	FilePath              string
	TypeStartLine         int
	TypeEndLine           int
	ChunkIndex            int
	TotalChunks           int
}

// ChunkParentByRefID resolves a chunks.id (as stored in code_units.ref_id for
// kind="chunk") back to its owning type, for class-chunk reconstruction (C9).
func (s *Store) ChunkParentByRefID(ctx context.Context, chunkRefID string) (*ChunkParent, error) {
	cp := &ChunkParent{}
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.name, f.path, t.start_line, t.end_line, c.chunk_index, c.total_chunks
		FROM chunks c
		JOIN types t ON t.id = c.type_id
		JOIN files f ON f.id = t.file_id
		WHERE c.id = ?
	`, chunkRefID).Scan(&cp.TypeID, &cp.TypeName, &cp.FilePath, &cp.TypeStartLine, &cp.TypeEndLine,
		&cp.ChunkIndex, &cp.TotalChunks)
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// FileOverviewCount is one row of per-file entity counts, used by the
// repository overview's file-selection heuristic (C6).
type FileOverviewCount struct {
	FileID          string
	Path            string
	Language        string
	FunctionCount   int
	TypeCount       int
}

// FileCountsByRepository returns, for every file in a repository, the number
// of functions and types it defines, ordered by combined count descending so
// callers can take the top N most substantial files.
func (s *Store) FileCountsByRepository(ctx context.Context, repositoryID string) ([]FileOverviewCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.path, COALESCE(f.language, ''),
			(SELECT COUNT(*) FROM functions fn WHERE fn.file_id = f.id) AS fn_count,
			(SELECT COUNT(*) FROM types t WHERE t.file_id = f.id) AS type_count
		FROM files f
		WHERE f.repository_id = ?
		ORDER BY (fn_count + type_count) DESC, f.path ASC
	`, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileOverviewCount
	for rows.Next() {
		var c FileOverviewCount
		if err := rows.Scan(&c.FileID, &c.Path, &c.Language, &c.FunctionCount, &c.TypeCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ftsQuery wraps free-text user input into an FTS5 prefix query so partial
// identifiers (e.g. "parse") still match "parseFile".
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return `""`
	}
	for i, f := range fields {
		f = strings.Map(func(r rune) rune {
			if r == '"' || r == '*' {
				return -1
			}
			return r
		}, f)
		fields[i] = `"` + f + `"*`
	}
	return strings.Join(fields, " OR ")
}

// normalizeTextScore caps a raw full-text score to [0,1] per the hybrid
// score formula: min(text_score/3, 1).
func normalizeTextScore(score float64) float64 {
	n := score / 3
	if n > 1 {
		return 1
	}
	if n < 0 {
		return 0
	}
	return n
}

// queryTokens splits a query into lowercase word tokens for word-boundary
// filename matching.
func queryTokens(query string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// matchesAnyToken reports whether any token occurs in path at a word
// boundary (i.e. not as part of a larger identifier).
func matchesAnyToken(path string, tokens []string) bool {
	lowerPath := strings.ToLower(path)
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		idx := 0
		for {
			pos := strings.Index(lowerPath[idx:], tok)
			if pos < 0 {
				break
			}
			start := idx + pos
			end := start + len(tok)
			beforeOK := start == 0 || !isWordByte(lowerPath[start-1])
			afterOK := end == len(lowerPath) || !isWordByte(lowerPath[end])
			if beforeOK && afterOK {
				return true
			}
			idx = start + 1
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

func sortResultsByScore(results []CodeSearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func sortFileResultsByScore(results []FileSearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// --- Tasks (C8 state machine) ---

// Task tracks one ingestion run's progress through the pipeline state
// machine: queued -> fetching -> parsing -> embedding -> summarizing ->
// overview -> finalizing -> completed, or failed at any step.
type Task struct {
	ID                 string
	RepositoryID       string
	Status             string
	CurrentStep        string
	Error              string
	TotalFiles         int
	ProcessedFiles     int
	FilesProcessed     int
	FunctionsExtracted int
	TypesExtracted     int
}

// CreateTask registers a new ingestion task in the "queued" state.
func (s *Store) CreateTask(ctx context.Context, taskID, repositoryID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, repository_id, status, current_step)
		VALUES (?, ?, 'queued', 'queued')
	`, taskID, repositoryID)
	return err
}

// UpdateTaskStep advances a task's current_step without changing its
// terminal status.
func (s *Store) UpdateTaskStep(ctx context.Context, taskID, step string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET current_step = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		step, taskID)
	return err
}

// UpdateTaskProgress records file-processing progress counters.
func (s *Store) UpdateTaskProgress(ctx context.Context, taskID string, totalFiles, processedFiles int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET total_files = ?, processed_files = ?, files_processed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, totalFiles, processedFiles, processedFiles, taskID)
	return err
}

// UpdateTaskCounts records the number of functions/types extracted so far.
func (s *Store) UpdateTaskCounts(ctx context.Context, taskID string, functions, types int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET functions_extracted = ?, types_extracted = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, functions, types, taskID)
	return err
}

// CompleteTask marks a task completed.
func (s *Store) CompleteTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET status = 'completed', current_step = 'completed', updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		taskID)
	return err
}

// FailTask marks a task failed with the given error message.
func (s *Store) FailTask(ctx context.Context, taskID, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET status = 'failed', error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		errMsg, taskID)
	return err
}

// GetTask loads a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID string) (*Task, error) {
	t := &Task{ID: taskID}
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT repository_id, status, current_step, error, total_files, processed_files,
			files_processed, functions_extracted, types_extracted
		FROM tasks WHERE id = ?
	`, taskID).Scan(&t.RepositoryID, &t.Status, &t.CurrentStep, &errMsg, &t.TotalFiles, &t.ProcessedFiles,
		&t.FilesProcessed, &t.FunctionsExtracted, &t.TypesExtracted)
	if err != nil {
		return nil, err
	}
	t.Error = errMsg.String
	return t, nil
}

// --- Sessions, conversations, messages (C10 persistence) ---

// Session scopes a query conversation to one repository and one chosen
// chat/embedding model quadruple.
type Session struct {
	ID                string
	RepositoryID      string
	ChatProvider      string
	ChatModel         string
	EmbeddingProvider string
	EmbeddingModel    string
}

// CreateSession registers a new query session.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, repository_id, chat_provider, chat_model, embedding_provider, embedding_model)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.RepositoryID, sess.ChatProvider, sess.ChatModel, sess.EmbeddingProvider, sess.EmbeddingModel)
	return err
}

// GetSession loads a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	sess := &Session{ID: sessionID}
	err := s.db.QueryRowContext(ctx, `
		SELECT repository_id, COALESCE(chat_provider, ''), COALESCE(chat_model, ''),
			COALESCE(embedding_provider, ''), COALESCE(embedding_model, '')
		FROM sessions WHERE id = ?
	`, sessionID).Scan(&sess.RepositoryID, &sess.ChatProvider, &sess.ChatModel, &sess.EmbeddingProvider, &sess.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Conversation is a single thread of messages within a session.
type Conversation struct {
	ID        string
	SessionID string
	Title     string
}

// FindOrCreateConversation returns the most recently created conversation
// for a session, creating one with the given title if none exists yet.
func (s *Store) FindOrCreateConversation(ctx context.Context, conversationID, sessionID, title string) (*Conversation, error) {
	c := &Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, COALESCE(title, '') FROM conversations
		WHERE session_id = ? ORDER BY created_at DESC LIMIT 1
	`, sessionID).Scan(&c.ID, &c.SessionID, &c.Title)
	if err == nil {
		return c, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, session_id, title) VALUES (?, ?, ?)",
		conversationID, sessionID, title); err != nil {
		return nil, err
	}
	return &Conversation{ID: conversationID, SessionID: sessionID, Title: title}, nil
}

// Message is one turn in a conversation: a user prompt, an assistant answer,
// or a tool-call/tool-result record. ToolCalls carries a JSON-encoded array
// when Role is "assistant" and the turn included tool calls.
type Message struct {
	ID             string
	ConversationID string
	SequenceNumber int
	Role           string
	Content        string
	ToolCalls      string
}

// AppendMessage inserts a message at the next sequence number for its
// conversation, so ordering is strictly increasing even across concurrent
// readers replaying history.
func (s *Store) AppendMessage(ctx context.Context, msg Message) (int, error) {
	var seq int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var maxSeq sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			"SELECT MAX(sequence_number) FROM messages WHERE conversation_id = ?", msg.ConversationID,
		).Scan(&maxSeq); err != nil {
			return err
		}
		seq = int(maxSeq.Int64) + 1
		var toolCalls interface{}
		if msg.ToolCalls != "" {
			toolCalls = msg.ToolCalls
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sequence_number, role, content, tool_calls)
			VALUES (?, ?, ?, ?, ?, ?)
		`, msg.ID, msg.ConversationID, seq, msg.Role, msg.Content, toolCalls)
		return err
	})
	return seq, err
}

// RecentMessages returns the last n messages of a conversation in
// chronological (ascending sequence_number) order.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, n int) ([]Message, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sequence_number, role, COALESCE(content, ''), COALESCE(tool_calls, '')
		FROM messages WHERE conversation_id = ?
		ORDER BY sequence_number DESC LIMIT ?
	`, conversationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m := Message{ConversationID: conversationID}
		if err := rows.Scan(&m.ID, &m.SequenceNumber, &m.Role, &m.Content, &m.ToolCalls); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
