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
	"path"
	"strings"

	"github.com/kraklabs/repoindex/pkg/store"
)

// FileDependencyResolver maps each file's raw import paths to another file
// in the same repository, or classifies them as external when no match is
// found. It resolves JS/TS/Python relative imports, and imports whose whole
// path (or its dotted form with dots read as slashes) is a trailing suffix
// of exactly one file path. Imports that name a directory, such as Go
// package import paths, match no file and are classified as external.
type FileDependencyResolver struct {
	// byCleanPath indexes every file by its path with a known source
	// extension stripped, e.g. "pkg/store/store" -> "pkg/store/store.go".
	byCleanPath map[string]string
	// bySuffix indexes every stripped path by each of its trailing
	// slash-separated suffixes, e.g. "store/store" and "store" both point
	// at "pkg/store/store.go", for resolving dotted/package-style imports
	// that don't carry the full repo-relative prefix.
	bySuffix map[string][]string
}

// NewFileDependencyResolver builds the path indexes from a repository's
// parsed files.
func NewFileDependencyResolver(files []FileEntity) *FileDependencyResolver {
	r := &FileDependencyResolver{
		byCleanPath: make(map[string]string, len(files)),
		bySuffix:    make(map[string][]string),
	}
	for _, f := range files {
		clean := stripSourceExt(f.Path)
		r.byCleanPath[clean] = f.Path
		parts := strings.Split(clean, "/")
		for i := range parts {
			suffix := strings.Join(parts[i:], "/")
			r.bySuffix[suffix] = append(r.bySuffix[suffix], f.Path)
		}
	}
	return r
}

// sourceExts are stripped when normalizing a file path for import matching.
var sourceExts = []string{".go", ".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".rs", ".c", ".h", ".cpp", ".hpp", ".php", ".proto"}

func stripSourceExt(p string) string {
	for _, ext := range sourceExts {
		if strings.HasSuffix(p, ext) {
			return strings.TrimSuffix(p, ext)
		}
	}
	return p
}

// Resolve maps a single file's imports to dependency edges and external
// import paths. importerPath is the repo-relative path of the importing
// file, used to resolve "./" and "../" relative imports.
func (r *FileDependencyResolver) Resolve(importerPath string, imports []ImportEntity) (deps []store.FileDependency, external []string) {
	seen := make(map[string]bool)
	seenExternal := make(map[string]bool)

	for _, imp := range imports {
		target := r.resolveOne(importerPath, imp.ImportPath)
		if target == "" || target == importerPath {
			if !seenExternal[imp.ImportPath] {
				seenExternal[imp.ImportPath] = true
				external = append(external, imp.ImportPath)
			}
			continue
		}
		if !seen[target] {
			seen[target] = true
			deps = append(deps, store.FileDependency{
				FileID:         GenerateFileID(importerPath),
				DependsOnFileID: GenerateFileID(target),
				ImportPath:     imp.ImportPath,
			})
		}
	}
	return deps, external
}

func (r *FileDependencyResolver) resolveOne(importerPath, importPath string) string {
	if importPath == "" {
		return ""
	}

	// Relative imports (JS/TS/Python-style "./x", "../x") resolve against
	// the importing file's directory.
	if strings.HasPrefix(importPath, ".") {
		joined := path.Join(path.Dir(importerPath), importPath)
		clean := stripSourceExt(joined)
		if p, ok := r.byCleanPath[clean]; ok {
			return p
		}
		if p, ok := r.byCleanPath[clean+"/index"]; ok {
			return p
		}
		if p, ok := r.byCleanPath[clean+"/__init__"]; ok {
			return p
		}
		return ""
	}

	// Dotted module imports (Python "pkg.sub.module") and slash-style
	// imports resolve when the whole import path, as written or with dots
	// read as slashes, equals the trailing suffix of exactly one file path
	// in this repository. The import path is not shortened to find a
	// partial match.
	normalized := strings.ReplaceAll(importPath, ".", "/")
	for _, candidate := range []string{importPath, normalized} {
		clean := stripSourceExt(candidate)
		if matches, ok := r.bySuffix[clean]; ok && len(matches) == 1 {
			return matches[0]
		}
	}
	return ""
}
