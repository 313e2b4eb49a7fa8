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

// Package testing provides shared test seeding helpers for SQLite-backed
// store tests.
package testing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kraklabs/repoindex/pkg/ingestion"
	"github.com/kraklabs/repoindex/pkg/store"
)

// SetupTestStore opens a fresh SQLite-backed store in a temp directory.
// The store is automatically closed when the test finishes.
//
// Example:
//
//	s := testing.SetupTestStore(t)
//	repoID := testing.InsertTestRepository(t, s, "proj1")
func SetupTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(store.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		EmbeddingDim: 8,
	})
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// InsertTestRepository registers a repository row and returns its id.
func InsertTestRepository(t *testing.T, s *store.Store, projectID string) string {
	t.Helper()

	ctx := context.Background()
	id, err := s.UpsertRepository(ctx, store.Repository{
		ProjectID:   projectID,
		SourceType:  "local_path",
		SourceValue: "/tmp/" + projectID,
	})
	if err != nil {
		t.Fatalf("failed to insert test repository: %v", err)
	}
	return id
}

// InsertTestFile adds a test file row and returns its id.
func InsertTestFile(t *testing.T, s *store.Store, repositoryID, path, language string) string {
	t.Helper()

	id := ingestion.GenerateFileID(path)
	ctx := context.Background()
	err := s.UpsertFiles(ctx, []store.File{
		{ID: id, RepositoryID: repositoryID, Path: path, Language: language, Role: "source"},
	})
	if err != nil {
		t.Fatalf("failed to insert test file: %v", err)
	}
	return id
}

// InsertTestFunction adds a test function tied to a file.
func InsertTestFunction(t *testing.T, s *store.Store, fileID, name, filePath string, startLine, endLine int) string {
	t.Helper()

	id := ingestion.GenerateFunctionID(filePath, name, "", startLine, endLine, 0, 0)
	ctx := context.Background()
	err := s.InsertFunctions(ctx, []store.FunctionRow{
		{ID: id, FileID: fileID, Name: name, StartLine: startLine, EndLine: endLine},
	})
	if err != nil {
		t.Fatalf("failed to insert test function: %v", err)
	}
	return id
}

// InsertTestFunctionWithSignature adds a test function including a signature.
func InsertTestFunctionWithSignature(t *testing.T, s *store.Store, fileID, name, signature, filePath string, startLine, endLine int) string {
	t.Helper()

	id := ingestion.GenerateFunctionID(filePath, name, signature, startLine, endLine, 0, 0)
	ctx := context.Background()
	err := s.InsertFunctions(ctx, []store.FunctionRow{
		{ID: id, FileID: fileID, Name: name, Signature: signature, StartLine: startLine, EndLine: endLine},
	})
	if err != nil {
		t.Fatalf("failed to insert test function with signature: %v", err)
	}
	return id
}

// InsertTestType adds a test type (struct/interface/class) tied to a file.
func InsertTestType(t *testing.T, s *store.Store, fileID, name, kind, filePath string, startLine, endLine int) string {
	t.Helper()

	id := ingestion.GenerateTypeID(filePath, name, startLine, endLine)
	ctx := context.Background()
	err := s.InsertTypes(ctx, []store.TypeRow{
		{ID: id, FileID: fileID, Name: name, Kind: kind, StartLine: startLine, EndLine: endLine},
	})
	if err != nil {
		t.Fatalf("failed to insert test type: %v", err)
	}
	return id
}

// InsertTestImport records an import statement within a file.
func InsertTestImport(t *testing.T, s *store.Store, fileID, filePath, importPath, alias string, startLine int) {
	t.Helper()

	id := ingestion.GenerateImportID(filePath, importPath)
	ctx := context.Background()
	if err := s.InsertImports(ctx, []store.ImportRow{
		{ID: id, FileID: fileID, ImportPath: importPath, Alias: alias, StartLine: startLine},
	}); err != nil {
		t.Fatalf("failed to insert import: %v", err)
	}
}
