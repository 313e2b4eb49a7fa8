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
// JAVASCRIPT PARSER
//
// Shared by plain .js files and, via the TypeScript walker in parser_typescript.go, by .ts/.tsx
// files for every node type the two grammars have in common (function
// declarations, arrow functions, classes, method definitions, calls).
// =============================================================================

// parseJavaScriptAST extracts functions, classes, and calls from JavaScript
// source using Tree-sitter.
func (p *TreeSitterParser) parseJavaScriptAST(content []byte, filePath string) ([]FunctionEntity, []TypeEntity, []CallsEdge, error) {
	tree, err := p.jsParser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	if rootNode.HasError() {
		if errorCount := countErrors(rootNode); errorCount > 0 {
			p.logger.Warn("parser.treesitter.javascript.syntax_errors",
				"path", filePath,
				"error_count", errorCount,
			)
		}
	}

	var functions []FunctionEntity
	funcNameToID := make(map[string]string)
	anonCounter := 0
	p.walkJSFunctions(rootNode, content, filePath, &functions, funcNameToID, &anonCounter)

	types := p.extractJSTypes(rootNode, content, filePath)

	var calls []CallsEdge
	for _, fn := range functions {
		calls = append(calls, p.extractJSCalls(rootNode, content, fn, funcNameToID)...)
	}

	return functions, types, calls, nil
}

// walkJSFunctions recursively walks a JavaScript (or JS-compatible
// TypeScript) AST collecting every function-like declaration.
func (p *TreeSitterParser) walkJSFunctions(node *sitter.Node, content []byte, filePath string, functions *[]FunctionEntity, funcNameToID map[string]string, anonCounter *int) {
	if node == nil {
		return
	}

	nodeType := node.Type()

	switch nodeType {
	case "function_declaration", "generator_function_declaration":
		if fn := p.extractJSFunction(node, content, filePath); fn != nil {
			*functions = append(*functions, *fn)
			funcNameToID[fn.Name] = fn.ID
		}
	case "method_definition":
		if fn := p.extractJSMethod(node, content, filePath); fn != nil {
			*functions = append(*functions, *fn)
			funcNameToID[fn.Name] = fn.ID
			funcNameToID[simpleMethodName(fn.Name)] = fn.ID
		}
	case "variable_declarator":
		nameNode := node.ChildByFieldName("name")
		valueNode := node.ChildByFieldName("value")
		if nameNode != nil && valueNode != nil {
			switch valueNode.Type() {
			case "arrow_function", "function_expression", "function", "generator_function":
				if fn := p.extractJSArrowOrExpressionFunction(nameNode, valueNode, content, filePath); fn != nil {
					*functions = append(*functions, *fn)
					funcNameToID[fn.Name] = fn.ID
				}
			}
		}
	case "arrow_function":
		parent := node.Parent()
		if parent == nil || parent.Type() != "variable_declarator" {
			*anonCounter++
			if fn := p.extractJSAnonymousArrow(node, content, filePath, *anonCounter); fn != nil {
				*functions = append(*functions, *fn)
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkJSFunctions(node.Child(i), content, filePath, functions, funcNameToID, anonCounter)
	}
}

// extractJSFunction extracts a top-level "function name(...) {}" declaration.
func (p *TreeSitterParser) extractJSFunction(node *sitter.Node, content []byte, filePath string) *FunctionEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])

	paramsNode := node.ChildByFieldName("parameters")
	var params string
	if paramsNode != nil {
		params = string(content[paramsNode.StartByte():paramsNode.EndByte()])
	}
	signature := "function " + name + params

	return buildJSFunctionEntity(p, node, content, filePath, name, signature)
}

// extractJSMethod extracts a class method_definition, naming it
// "ClassName.method" when an enclosing class declaration is found.
func (p *TreeSitterParser) extractJSMethod(node *sitter.Node, content []byte, filePath string) *FunctionEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	methodName := string(content[nameNode.StartByte():nameNode.EndByte()])

	className := enclosingClassName(node, content)
	name := methodName
	if className != "" {
		name = className + "." + methodName
	}

	paramsNode := node.ChildByFieldName("parameters")
	var params string
	if paramsNode != nil {
		params = string(content[paramsNode.StartByte():paramsNode.EndByte()])
	}
	signature := methodName + params

	return buildJSFunctionEntity(p, node, content, filePath, name, signature)
}

// extractJSArrowOrExpressionFunction extracts "const name = (...) => {}" or
// "const name = function(...) {}" assignments.
func (p *TreeSitterParser) extractJSArrowOrExpressionFunction(nameNode, valueNode *sitter.Node, content []byte, filePath string) *FunctionEntity {
	name := string(content[nameNode.StartByte():nameNode.EndByte()])

	paramsNode := valueNode.ChildByFieldName("parameters")
	var params string
	if paramsNode != nil {
		params = string(content[paramsNode.StartByte():paramsNode.EndByte()])
	} else if p := valueNode.ChildByFieldName("parameter"); p != nil {
		// Single-arg arrow functions without parens: x => x * 2
		params = "(" + string(content[p.StartByte():p.EndByte()]) + ")"
	}
	signature := "const " + name + " = " + params + " => {}"

	return buildJSFunctionEntity(p, valueNode, content, filePath, name, signature)
}

// extractJSAnonymousArrow extracts a standalone arrow function that isn't
// bound to a name, e.g. one passed directly to Array.prototype.map.
func (p *TreeSitterParser) extractJSAnonymousArrow(node *sitter.Node, content []byte, filePath string, counter int) *FunctionEntity {
	name := fmt.Sprintf("$anon_%d", counter)

	paramsNode := node.ChildByFieldName("parameters")
	var params string
	if paramsNode != nil {
		params = string(content[paramsNode.StartByte():paramsNode.EndByte()])
	}
	signature := params + " => {}"

	return buildJSFunctionEntity(p, node, content, filePath, name, signature)
}

// buildJSFunctionEntity fills in position/ID/truncation bookkeeping common
// to every JS/TS function extractor.
func buildJSFunctionEntity(p *TreeSitterParser, node *sitter.Node, content []byte, filePath, name, signature string) *FunctionEntity {
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

// enclosingClassName walks up from a method_definition to the nearest
// class_declaration/class ancestor and returns its name, or "" for an
// anonymous class expression.
func enclosingClassName(node *sitter.Node, content []byte) string {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case "class_declaration", "class":
			if nameNode := cur.ChildByFieldName("name"); nameNode != nil {
				return string(content[nameNode.StartByte():nameNode.EndByte()])
			}
			return ""
		}
	}
	return ""
}

// simpleMethodName strips a "Class." prefix so a call site using just the
// bare method name can still resolve within the same file.
func simpleMethodName(fullName string) string {
	for i := len(fullName) - 1; i >= 0; i-- {
		if fullName[i] == '.' {
			return fullName[i+1:]
		}
	}
	return fullName
}

// =============================================================================
// JAVASCRIPT TYPE EXTRACTION (classes only; JS has no interfaces/aliases)
// =============================================================================

// extractJSTypes extracts class declarations from JavaScript source.
func (p *TreeSitterParser) extractJSTypes(rootNode *sitter.Node, content []byte, filePath string) []TypeEntity {
	var types []TypeEntity
	if rootNode == nil {
		return types
	}
	p.walkJSTypesAST(rootNode, content, filePath, &types)
	return types
}

func (p *TreeSitterParser) walkJSTypesAST(node *sitter.Node, content []byte, filePath string, types *[]TypeEntity) {
	if node == nil {
		return
	}

	if node.Type() == "class_declaration" {
		if te := p.extractJSClass(node, content, filePath); te != nil {
			*types = append(*types, *te)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkJSTypesAST(node.Child(i), content, filePath, types)
	}
}

// extractJSClass extracts a JavaScript class declaration.
func (p *TreeSitterParser) extractJSClass(node *sitter.Node, content []byte, filePath string) *TypeEntity {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := string(content[nameNode.StartByte():nameNode.EndByte()])

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

// =============================================================================
// JAVASCRIPT CALL EXTRACTION
// =============================================================================

// extractJSCalls finds call_expression nodes lexically inside fn's own
// source range and resolves same-file callees via funcNameToID.
func (p *TreeSitterParser) extractJSCalls(rootNode *sitter.Node, content []byte, fn FunctionEntity, funcNameToID map[string]string) []CallsEdge {
	fnNode := findNodeByRange(rootNode, fn.StartLine, fn.EndLine)
	if fnNode == nil {
		return nil
	}

	var calls []CallsEdge
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call_expression" {
			if calleeName := jsCalleeName(n, content); calleeName != "" {
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

// jsCalleeName extracts the callee name from a call_expression, resolving
// "obj.method(...)" to just "method" so it can match a funcNameToID entry
// built from method names.
func jsCalleeName(callNode *sitter.Node, content []byte) string {
	fnField := callNode.ChildByFieldName("function")
	if fnField == nil {
		return ""
	}
	switch fnField.Type() {
	case "identifier":
		return string(content[fnField.StartByte():fnField.EndByte()])
	case "member_expression":
		if prop := fnField.ChildByFieldName("property"); prop != nil {
			return string(content[prop.StartByte():prop.EndByte()])
		}
	}
	return ""
}

// findNodeByRange finds the outermost function-like node whose 1-indexed
// start/end line exactly matches the requested range. Used to recover a
// function's AST node from just the FunctionEntity recorded for it.
func findNodeByRange(node *sitter.Node, startLine, endLine int) *sitter.Node {
	if node == nil {
		return nil
	}
	nodeStart := int(node.StartPoint().Row) + 1
	nodeEnd := int(node.EndPoint().Row) + 1
	if nodeStart == startLine && nodeEnd == endLine {
		switch node.Type() {
		case "function_declaration", "generator_function_declaration", "method_definition",
			"arrow_function", "function_expression", "function", "generator_function",
			"method_signature", "function_signature":
			return node
		}
	}
	if nodeStart > startLine || nodeEnd < endLine {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findNodeByRange(node.Child(i), startLine, endLine); found != nil {
			return found
		}
	}
	return nil
}
