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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TreeSitterParser uses Tree-sitter for accurate AST-based code parsing.
// Go gets a dedicated, hand-walked extractor (the bulk of this package);
// Python/JavaScript/TypeScript get their own walkers; Java/Rust/C/C++/PHP
// share a single generic node-type-table walker (parser_generic.go); proto
// files never had a bundled grammar and fall back to regex extraction.
//
// Tree-sitter parsers are not safe for concurrent use, so each language gets
// one *sitter.Parser owned by this struct. ParseFile itself has no shared
// mutable state besides the truncation counter, which is guarded by mu.
type TreeSitterParser struct {
	logger *slog.Logger

	goParser   *sitter.Parser
	pyParser   *sitter.Parser
	jsParser   *sitter.Parser
	tsParser   *sitter.Parser
	javaParser *sitter.Parser
	rustParser *sitter.Parser
	cParser    *sitter.Parser
	cppParser  *sitter.Parser
	phpParser  *sitter.Parser

	mu              sync.Mutex
	maxCodeTextSize int64
	truncatedCount  int
}

// NewTreeSitterParser creates a Tree-sitter based parser with one
// language-specific sub-parser per supported language.
func NewTreeSitterParser(logger *slog.Logger) *TreeSitterParser {
	if logger == nil {
		logger = slog.Default()
	}

	goP := sitter.NewParser()
	goP.SetLanguage(golang.GetLanguage())

	pyP := sitter.NewParser()
	pyP.SetLanguage(python.GetLanguage())

	jsP := sitter.NewParser()
	jsP.SetLanguage(javascript.GetLanguage())

	tsP := sitter.NewParser()
	tsP.SetLanguage(typescript.GetLanguage())

	javaP := sitter.NewParser()
	javaP.SetLanguage(java.GetLanguage())

	rustP := sitter.NewParser()
	rustP.SetLanguage(rust.GetLanguage())

	cP := sitter.NewParser()
	cP.SetLanguage(c.GetLanguage())

	cppP := sitter.NewParser()
	cppP.SetLanguage(cpp.GetLanguage())

	phpP := sitter.NewParser()
	phpP.SetLanguage(php.GetLanguage())

	return &TreeSitterParser{
		logger:          logger,
		goParser:        goP,
		pyParser:        pyP,
		jsParser:        jsP,
		tsParser:        tsP,
		javaParser:      javaP,
		rustParser:      rustP,
		cParser:         cP,
		cppParser:       cppP,
		phpParser:       phpP,
		maxCodeTextSize: 100 * 1024,
	}
}

// SetMaxCodeTextSize sets the maximum size for CodeText (in bytes).
func (p *TreeSitterParser) SetMaxCodeTextSize(size int64) {
	p.maxCodeTextSize = size
}

// GetTruncatedCount returns the number of CodeTexts that were truncated.
func (p *TreeSitterParser) GetTruncatedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.truncatedCount
}

// ResetTruncatedCount resets the truncation counter.
func (p *TreeSitterParser) ResetTruncatedCount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.truncatedCount = 0
}

// truncateCodeText truncates codeText if it exceeds the configured limit,
// counting the truncation so callers can surface it in pipeline stats.
func (p *TreeSitterParser) truncateCodeText(codeText string) string {
	if p.maxCodeTextSize > 0 && int64(len(codeText)) > p.maxCodeTextSize {
		p.mu.Lock()
		p.truncatedCount++
		p.mu.Unlock()
		return codeText[:p.maxCodeTextSize]
	}
	return codeText
}

// ParseFile reads fileInfo.FullPath, hashes its content, and dispatches to
// the language-specific walker selected by fileInfo.Language. An
// unrecognized language returns an empty, error-free result: ingestion
// still records the file itself, just without functions or types.
func (p *TreeSitterParser) ParseFile(fileInfo FileInfo) (*ParseResult, error) {
	content, err := os.ReadFile(fileInfo.FullPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	sum := sha256.Sum256(content)
	fileID := GenerateFileID(fileInfo.Path)
	fileEntity := FileEntity{
		ID:       fileID,
		Path:     fileInfo.Path,
		Language: fileInfo.Language,
		Hash:     hex.EncodeToString(sum[:]),
		Content:  string(content),
		Size:     int64(len(content)),
	}

	var (
		functions       []FunctionEntity
		types           []TypeEntity
		calls           []CallsEdge
		imports         []ImportEntity
		unresolvedCalls []UnresolvedCall
		packageName     string
	)

	switch fileInfo.Language {
	case "go":
		goResult, goErr := p.parseGoAST(content, fileInfo.Path)
		if goErr != nil {
			return nil, fmt.Errorf("parse go AST: %w", goErr)
		}
		functions = goResult.Functions
		types = goResult.Types
		calls = goResult.Calls
		imports = goResult.Imports
		unresolvedCalls = goResult.UnresolvedCalls
		packageName = goResult.PackageName
	case "python":
		functions, types, calls, err = p.parsePythonAST(content, fileInfo.Path)
	case "javascript", "jsx":
		functions, types, calls, err = p.parseJavaScriptAST(content, fileInfo.Path)
	case "typescript", "tsx":
		functions, types, calls, err = p.parseTypeScriptAST(content, fileInfo.Path)
	case "java":
		functions, types, err = p.parseGenericAST(p.javaParser, content, fileInfo.Path, genericLanguageJava)
	case "rust":
		functions, types, err = p.parseGenericAST(p.rustParser, content, fileInfo.Path, genericLanguageRust)
	case "c":
		functions, types, err = p.parseGenericAST(p.cParser, content, fileInfo.Path, genericLanguageC)
	case "cpp", "c++":
		functions, types, err = p.parseGenericAST(p.cppParser, content, fileInfo.Path, genericLanguageCPP)
	case "php":
		functions, types, err = p.parseGenericAST(p.phpParser, content, fileInfo.Path, genericLanguagePHP)
	case "proto", "protobuf":
		functions, calls = parseProtobufSimplified(content, fileInfo.Path, p)
	default:
		p.logger.Debug("parser.treesitter.skip_unsupported",
			"path", fileInfo.Path,
			"language", fileInfo.Language,
		)
		return &ParseResult{File: fileEntity}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s AST: %w", fileInfo.Language, err)
	}

	return &ParseResult{
		File:            fileEntity,
		PackageName:     packageName,
		Functions:       functions,
		Types:           types,
		Defines:         buildDefinesEdges(fileID, functions),
		DefinesTypes:    buildDefinesTypeEdges(fileID, types),
		Calls:           calls,
		Imports:         imports,
		UnresolvedCalls: unresolvedCalls,
	}, nil
}

// buildDefinesEdges links a file to every function it defines.
func buildDefinesEdges(fileID string, functions []FunctionEntity) []DefinesEdge {
	if len(functions) == 0 {
		return nil
	}
	defines := make([]DefinesEdge, len(functions))
	for i, fn := range functions {
		defines[i] = DefinesEdge{FileID: fileID, FunctionID: fn.ID}
	}
	return defines
}

// buildDefinesTypeEdges links a file to every type it defines.
func buildDefinesTypeEdges(fileID string, types []TypeEntity) []DefinesTypeEdge {
	if len(types) == 0 {
		return nil
	}
	defines := make([]DefinesTypeEdge, len(types))
	for i, t := range types {
		defines[i] = DefinesTypeEdge{FileID: fileID, TypeID: t.ID}
	}
	return defines
}

// countErrors recursively counts ERROR and MISSING nodes in a Tree-sitter
// AST, used to decide whether a syntax-error warning is worth logging.
func countErrors(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	count := 0
	if node.Type() == "ERROR" || node.IsMissing() {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrors(node.Child(i))
	}
	return count
}

// =============================================================================
// Parser: simplified, regex/line-based fallback (no CGO tree-sitter grammars)
// =============================================================================

// Parser is the simplified fallback implementation of CodeParser. It uses
// line-oriented pattern matching instead of a real AST, trading accuracy
// for an implementation with no CGO dependency. Go and Protobuf are the
// only languages it understands in any depth; everything else degrades to
// an empty, error-free result just like TreeSitterParser's default case.
type Parser struct {
	logger *slog.Logger

	mu              sync.Mutex
	maxCodeTextSize int64
	truncatedCount  int
}

// NewParser creates a new simplified parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger, maxCodeTextSize: 100 * 1024}
}

// SetMaxCodeTextSize sets the maximum size for CodeText (in bytes).
func (p *Parser) SetMaxCodeTextSize(size int64) {
	p.maxCodeTextSize = size
}

// GetTruncatedCount returns the number of CodeTexts that were truncated.
func (p *Parser) GetTruncatedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.truncatedCount
}

// ResetTruncatedCount resets the truncation counter.
func (p *Parser) ResetTruncatedCount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.truncatedCount = 0
}

// truncateCodeText truncates codeText if it exceeds the configured limit.
func (p *Parser) truncateCodeText(codeText string) string {
	if p.maxCodeTextSize > 0 && int64(len(codeText)) > p.maxCodeTextSize {
		p.mu.Lock()
		p.truncatedCount++
		p.mu.Unlock()
		return codeText[:p.maxCodeTextSize]
	}
	return codeText
}

// ParseFile reads fileInfo.FullPath and extracts what it can using
// line-oriented heuristics. go and proto are handled directly; every other
// language returns the file entity alone.
func (p *Parser) ParseFile(fileInfo FileInfo) (*ParseResult, error) {
	content, err := os.ReadFile(fileInfo.FullPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	sum := sha256.Sum256(content)
	fileID := GenerateFileID(fileInfo.Path)
	fileEntity := FileEntity{
		ID:       fileID,
		Path:     fileInfo.Path,
		Language: fileInfo.Language,
		Hash:     hex.EncodeToString(sum[:]),
		Content:  string(content),
		Size:     int64(len(content)),
	}

	var functions []FunctionEntity
	var calls []CallsEdge

	switch fileInfo.Language {
	case "go":
		functions, calls = p.parseGoFile(string(content), fileInfo.Path)
	case "proto", "protobuf":
		functions, calls = parseProtobufContent(string(content), fileInfo.Path, p.truncateCodeText)
	default:
		p.logger.Debug("parser.simplified.skip_unsupported",
			"path", fileInfo.Path,
			"language", fileInfo.Language,
		)
		return &ParseResult{File: fileEntity}, nil
	}

	return &ParseResult{
		File:      fileEntity,
		Functions: functions,
		Defines:   buildDefinesEdges(fileID, functions),
		Calls:     calls,
	}, nil
}
