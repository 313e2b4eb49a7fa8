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

	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// PYTHON PARSER
// =============================================================================

// parsePythonAST extracts functions, classes, and calls from Python source
// using Tree-sitter. Decorated functions/classes are unwrapped transparently
// (the decorator itself is just another ordinary function def elsewhere in
// the file); methods are named "Class.method" the same way the Go walker
// names receiver methods.
func (p *TreeSitterParser) parsePythonAST(content []byte, filePath string) ([]FunctionEntity, []TypeEntity, []CallsEdge, error) {
	tree, err := p.pyParser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	if rootNode.HasError() {
		if errorCount := countErrors(rootNode); errorCount > 0 {
			p.logger.Warn("parser.treesitter.python.syntax_errors",
				"path", filePath,
				"error_count", errorCount,
			)
		}
	}

	var functions []FunctionEntity
	var types []TypeEntity
	funcNameToID := make(map[string]string)
	anonCounter := 0

	p.walkPythonAST(rootNode, content, filePath, "", &functions, &types, funcNameToID, &anonCounter)

	var calls []CallsEdge
	for _, fn := range functions {
		calls = append(calls, p.extractPyCalls(rootNode, content, fn, funcNameToID)...)
	}

	return functions, types, calls, nil
}

// walkPythonAST recursively walks the Python AST. className tracks the
// nearest enclosing class_definition so methods get a "Class.method" name;
// it resets to "" once the walk descends into a function body, since a
// function nested inside a method is not itself a method.
func (p *TreeSitterParser) walkPythonAST(node *sitter.Node, content []byte, filePath, className string, functions *[]FunctionEntity, types *[]TypeEntity, funcNameToID map[string]string, anonCounter *int) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			p.walkPythonAST(def, content, filePath, className, functions, types, funcNameToID, anonCounter)
		}
		return

	case "function_definition":
		fn := p.extractPyFunction(node, content, filePath, className)
		if fn != nil {
			*functions = append(*functions, *fn)
			funcNameToID[fn.Name] = fn.ID
			if className != "" {
				funcNameToID[simpleMethodName(fn.Name)] = fn.ID
			}
		}
		if body := node.ChildByFieldName("body"); body != nil {
			p.walkPythonAST(body, content, filePath, "", functions, types, funcNameToID, anonCounter)
		}
		return

	case "class_definition":
		nameNode := node.ChildByFieldName("name")
		if nameNode == nil {
			return
		}
		name := string(content[nameNode.StartByte():nameNode.EndByte()])
		if te := p.extractPyClass(node, content, filePath, name); te != nil {
			*types = append(*types, *te)
		}
		if body := node.ChildByFieldName("body"); body != nil {
			p.walkPythonAST(body, content, filePath, name, functions, types, funcNameToID, anonCounter)
		}
		return

	case "lambda":
		*anonCounter++
		name := fmt.Sprintf("$lambda_%d", *anonCounter)
		if fn := p.extractPyLambda(node, content, filePath, name); fn != nil {
			*functions = append(*functions, *fn)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkPythonAST(node.Child(i), content, filePath, className, functions, types, funcNameToID, anonCounter)
	}
}

// extractPyFunction extracts a "def name(params) -> ret:" declaration,
// prefixing the name with className for methods.
func (p *TreeSitterParser) extractPyFunction(node *sitter.Node, content []byte, filePath, className string) *FunctionEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	plainName := string(content[nameNode.StartByte():nameNode.EndByte()])
	name := plainName
	if className != "" {
		name = className + "." + plainName
	}

	paramsNode := node.ChildByFieldName("parameters")
	var params string
	if paramsNode != nil {
		params = string(content[paramsNode.StartByte():paramsNode.EndByte()])
	}

	signature := "def " + plainName + params
	if retNode := node.ChildByFieldName("return_type"); retNode != nil {
		signature += " -> " + string(content[retNode.StartByte():retNode.EndByte()])
	}

	return buildPyFunctionEntity(p, node, content, filePath, name, signature)
}

// extractPyLambda extracts a lambda expression, naming it positionally
// since lambdas have no identifier of their own.
func (p *TreeSitterParser) extractPyLambda(node *sitter.Node, content []byte, filePath, name string) *FunctionEntity {
	signature := "lambda"
	if paramsNode := node.ChildByFieldName("parameters"); paramsNode != nil {
		signature = "lambda " + string(content[paramsNode.StartByte():paramsNode.EndByte()])
	}
	return buildPyFunctionEntity(p, node, content, filePath, name, signature)
}

// buildPyFunctionEntity fills in position/ID/truncation bookkeeping common
// to every Python function extractor.
func buildPyFunctionEntity(p *TreeSitterParser, node *sitter.Node, content []byte, filePath, name, signature string) *FunctionEntity {
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	startCol := int(node.StartPoint().Column) + 1
	endCol := int(node.EndPoint().Column) + 1

	codeText := p.truncateCodeText(string(content[node.StartByte():node.EndByte()]))
	id := GenerateFunctionID(filePath, name, signature, startLine, endLine, startCol, endCol)

	return &FunctionEntity{
		ID:        id,
		Name:      name,
		Signature: signature,
		FilePath:  filePath,
		CodeText:  codeText,
		StartLine: startLine,
		EndLine:   endLine,
		StartCol:  startCol,
		EndCol:    endCol,
	}
}

// extractPyClass extracts a Python class_definition as a TypeEntity.
func (p *TreeSitterParser) extractPyClass(node *sitter.Node, content []byte, filePath, name string) *TypeEntity {
	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	startCol := int(node.StartPoint().Column) + 1
	endCol := int(node.EndPoint().Column) + 1

	codeText := p.truncateCodeText(string(content[node.StartByte():node.EndByte()]))
	id := GenerateTypeID(filePath, name, startLine, endLine)

	return &TypeEntity{
		ID:        id,
		Name:      name,
		Kind:      "class",
		FilePath:  filePath,
		CodeText:  codeText,
		StartLine: startLine,
		EndLine:   endLine,
		StartCol:  startCol,
		EndCol:    endCol,
	}
}

// extractPyCalls finds "call" nodes lexically inside fn's own source range
// and resolves same-file callees via funcNameToID.
func (p *TreeSitterParser) extractPyCalls(rootNode *sitter.Node, content []byte, fn FunctionEntity, funcNameToID map[string]string) []CallsEdge {
	fnNode := findPyNodeByRange(rootNode, fn.StartLine, fn.EndLine)
	if fnNode == nil {
		return nil
	}

	var calls []CallsEdge
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call" {
			if calleeName := pyCalleeName(n, content); calleeName != "" {
				if calleeID, ok := funcNameToID[calleeName]; ok && calleeID != fn.ID {
					calls = append(calls, CallsEdge{CallerID: fn.ID, CalleeID: calleeID})
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(fnNode)
	return calls
}

// pyCalleeName extracts the callee name from a call node, resolving
// "obj.method(...)" attribute access down to just "method".
func pyCalleeName(callNode *sitter.Node, content []byte) string {
	fnField := callNode.ChildByFieldName("function")
	if fnField == nil {
		return ""
	}
	switch fnField.Type() {
	case "identifier":
		return string(content[fnField.StartByte():fnField.EndByte()])
	case "attribute":
		if attr := fnField.ChildByFieldName("attribute"); attr != nil {
			return string(content[attr.StartByte():attr.EndByte()])
		}
	}
	return ""
}

// findPyNodeByRange finds the outermost function/lambda node whose
// 1-indexed start/end line exactly matches the requested range.
func findPyNodeByRange(node *sitter.Node, startLine, endLine int) *sitter.Node {
	if node == nil {
		return nil
	}
	nodeStart := int(node.StartPoint().Row) + 1
	nodeEnd := int(node.EndPoint().Row) + 1
	if nodeStart == startLine && nodeEnd == endLine {
		switch node.Type() {
		case "function_definition", "lambda":
			return node
		}
	}
	if nodeStart > startLine || nodeEnd < endLine {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findPyNodeByRange(node.Child(i), startLine, endLine); found != nil {
			return found
		}
	}
	return nil
}
