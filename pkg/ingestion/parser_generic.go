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

// genericLanguage identifies which node-type table parseGenericAST should
// use while walking a Tree-sitter tree. Java, Rust, C, C++, and PHP each
// have a real grammar but don't warrant a bespoke hand-written walker the
// way Go/Python/TypeScript do, so they share one generic tree-walker keyed
// off these tables.
type genericLanguage string

const (
	genericLanguageJava genericLanguage = "java"
	genericLanguageRust genericLanguage = "rust"
	genericLanguageC    genericLanguage = "c"
	genericLanguageCPP  genericLanguage = "cpp"
	genericLanguagePHP  genericLanguage = "php"
)

// genericNodeSpec lists the Tree-sitter node type names that count as a
// function/method and as a type declaration for one language, plus the
// field used to pull the declaration's name. Most grammars expose a
// "name" field directly; a couple (e.g. Rust's impl_item) need a second
// lookup, handled in genericTypeName below.
type genericNodeSpec struct {
	functionNodeTypes []string
	typeNodeTypes     map[string]string // node type -> TypeEntity.Kind
	nameField         string
}

var genericSpecs = map[genericLanguage]genericNodeSpec{
	genericLanguageJava: {
		functionNodeTypes: []string{"method_declaration", "constructor_declaration"},
		typeNodeTypes: map[string]string{
			"class_declaration":     "class",
			"interface_declaration": "interface",
			"enum_declaration":      "enum",
			"record_declaration":    "class",
		},
		nameField: "name",
	},
	genericLanguageRust: {
		functionNodeTypes: []string{"function_item"},
		typeNodeTypes: map[string]string{
			"struct_item": "struct",
			"enum_item":   "enum",
			"trait_item":  "interface",
			"impl_item":   "struct",
		},
		nameField: "name",
	},
	genericLanguageC: {
		functionNodeTypes: []string{"function_definition"},
		typeNodeTypes: map[string]string{
			"struct_specifier": "struct",
			"enum_specifier":   "enum",
			"union_specifier":  "struct",
		},
		nameField: "declarator",
	},
	genericLanguageCPP: {
		functionNodeTypes: []string{"function_definition"},
		typeNodeTypes: map[string]string{
			"class_specifier":  "class",
			"struct_specifier": "struct",
			"enum_specifier":   "enum",
		},
		nameField: "declarator",
	},
	genericLanguagePHP: {
		functionNodeTypes: []string{"function_definition", "method_declaration"},
		typeNodeTypes: map[string]string{
			"class_declaration":     "class",
			"interface_declaration": "interface",
			"trait_declaration":     "class",
			"enum_declaration":      "enum",
		},
		nameField: "name",
	},
}

// genericWalkContext carries shared state through one file's recursive
// walk so extraction functions don't need a dozen parameters.
type genericWalkContext struct {
	content     []byte
	filePath    string
	spec        genericNodeSpec
	anonCounter int
}

// parseGenericAST walks a Tree-sitter tree for a language that doesn't have
// a dedicated hand-written walker, extracting functions/methods and
// type-like declarations (class/struct/interface/enum) using the node-type
// table for lang. Calls aren't resolved for these languages: cross-file
// call graphs are the payoff of deep Go support, not a requirement for
// every supported language.
func (p *TreeSitterParser) parseGenericAST(parser *sitter.Parser, content []byte, filePath string, lang genericLanguage) ([]FunctionEntity, []TypeEntity, error) {
	spec, ok := genericSpecs[lang]
	if !ok {
		return nil, nil, fmt.Errorf("no generic node spec registered for %s", lang)
	}

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if n := countErrors(root); n > 0 {
			p.logger.Warn("parser.treesitter.generic.syntax_errors",
				"path", filePath,
				"language", string(lang),
				"error_count", n,
			)
		}
	}

	ctx := &genericWalkContext{content: content, filePath: filePath, spec: spec}
	var functions []FunctionEntity
	var types []TypeEntity
	p.walkGenericAST(root, ctx, &functions, &types)
	return functions, types, nil
}

func (p *TreeSitterParser) walkGenericAST(node *sitter.Node, ctx *genericWalkContext, functions *[]FunctionEntity, types *[]TypeEntity) {
	if node == nil {
		return
	}

	nodeType := node.Type()

	for _, fnType := range ctx.spec.functionNodeTypes {
		if nodeType == fnType {
			if fn := p.extractGenericFunction(node, ctx); fn != nil {
				*functions = append(*functions, *fn)
			}
			break
		}
	}

	if kind, ok := ctx.spec.typeNodeTypes[nodeType]; ok {
		if t := p.extractGenericType(node, ctx, kind); t != nil {
			*types = append(*types, *t)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		p.walkGenericAST(node.Child(i), ctx, functions, types)
	}
}

func (p *TreeSitterParser) extractGenericFunction(node *sitter.Node, ctx *genericWalkContext) *FunctionEntity {
	name := genericNodeName(node, ctx)
	if name == "" {
		ctx.anonCounter++
		name = fmt.Sprintf("$anon_%d", ctx.anonCounter)
	}

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	startCol := int(node.StartPoint().Column) + 1
	endCol := int(node.EndPoint().Column) + 1

	codeText := p.truncateCodeText(string(ctx.content[node.StartByte():node.EndByte()]))
	signature := genericSignature(node, ctx.content, name)

	id := GenerateFunctionID(ctx.filePath, name, signature, startLine, endLine, startCol, endCol)
	return &FunctionEntity{
		ID:        id,
		Name:      name,
		Signature: signature,
		FilePath:  ctx.filePath,
		CodeText:  codeText,
		StartLine: startLine,
		EndLine:   endLine,
		StartCol:  startCol,
		EndCol:    endCol,
	}
}

func (p *TreeSitterParser) extractGenericType(node *sitter.Node, ctx *genericWalkContext, kind string) *TypeEntity {
	name := genericNodeName(node, ctx)
	if name == "" {
		return nil
	}

	startLine := int(node.StartPoint().Row) + 1
	endLine := int(node.EndPoint().Row) + 1
	startCol := int(node.StartPoint().Column) + 1
	endCol := int(node.EndPoint().Column) + 1

	codeText := p.truncateCodeText(string(ctx.content[node.StartByte():node.EndByte()]))
	id := GenerateTypeID(ctx.filePath, name, startLine, endLine)

	return &TypeEntity{
		ID:        id,
		Name:      name,
		Kind:      kind,
		FilePath:  ctx.filePath,
		CodeText:  codeText,
		StartLine: startLine,
		EndLine:   endLine,
		StartCol:  startCol,
		EndCol:    endCol,
	}
}

// genericNodeName extracts a declaration's name using the language's name
// field. C/C++ wrap the name inside a "declarator" subtree rather than
// exposing it directly, so those two fall back to a recursive identifier
// search instead of a single field lookup.
func genericNodeName(node *sitter.Node, ctx *genericWalkContext) string {
	field := ctx.spec.nameField
	if field == "declarator" {
		return findIdentifierInDeclarator(node.ChildByFieldName("declarator"), ctx.content)
	}
	nameNode := node.ChildByFieldName(field)
	if nameNode == nil {
		return ""
	}
	return string(ctx.content[nameNode.StartByte():nameNode.EndByte()])
}

// findIdentifierInDeclarator walks a C/C++ declarator (which may nest
// pointer_declarator/function_declarator/reference_declarator layers)
// looking for the innermost identifier, e.g. the "foo" in "int *foo(int)".
func findIdentifierInDeclarator(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	switch node.Type() {
	case "identifier", "field_identifier", "type_identifier":
		return string(content[node.StartByte():node.EndByte()])
	}
	if inner := node.ChildByFieldName("declarator"); inner != nil {
		if name := findIdentifierInDeclarator(inner, content); name != "" {
			return name
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if name := findIdentifierInDeclarator(node.Child(i), content); name != "" {
			return name
		}
	}
	return ""
}

// genericSignature builds a best-effort one-line signature: the node's own
// source text up to (but not including) its body/block child, falling back
// to just the name if no parameter list is found.
func genericSignature(node *sitter.Node, content []byte, name string) string {
	bodyField := node.ChildByFieldName("body")
	if bodyField == nil {
		return name
	}
	sigBytes := content[node.StartByte():bodyField.StartByte()]
	sig := string(sigBytes)
	if sig == "" {
		return name
	}
	return sig
}
