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
// pkg/store tests.
//
// # Quick Start
//
// Use SetupTestStore to open a fresh store backed by a temp-directory
// SQLite file, then seed it with the InsertTest* helpers:
//
//	func TestMyFeature(t *testing.T) {
//	    s := testing.SetupTestStore(t)
//
//	    repoID := testing.InsertTestRepository(t, s, "proj1")
//	    fileID := testing.InsertTestFile(t, s, repoID, "main.go", "go")
//	    testing.InsertTestFunction(t, s, fileID, "main", "main.go", 1, 5)
//
//	    // exercise the code under test against s
//	}
//
// # Seeding Test Data
//
//   - InsertTestRepository: register a repository row
//   - InsertTestFile: add a file to a repository
//   - InsertTestFunction / InsertTestFunctionWithSignature: add a function
//   - InsertTestType: add a type (struct/interface/class)
//   - InsertTestImport: record an import statement
//
// Every helper derives its row's ID the same way pkg/ingestion does
// (GenerateFileID, GenerateFunctionID, GenerateTypeID, GenerateImportID), so
// seeded fixtures look like real ingestion output rather than ad hoc test
// IDs.
package testing
