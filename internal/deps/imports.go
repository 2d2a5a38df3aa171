// Package deps infers and installs the third-party packages generated
// Python code depends on.
package deps

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ExtractImports returns the sorted top-level names of every non-standard
// module imported anywhere in code. Code that does not parse yields nil.
func ExtractImports(code string) []string {
	modules := importedModules([]byte(code))

	var result []string
	for name := range modules {
		if IsStdlib(name) {
			continue
		}
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// importedModules walks the syntax tree and collects top-level module names
// from import statements. Relative imports refer to local files and are
// skipped.
func importedModules(content []byte) map[string]struct{} {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil
	}

	modules := make(map[string]struct{})
	add := func(n *sitter.Node) {
		if n == nil || n.Type() != "dotted_name" {
			return
		}
		name := n.Content(content)
		if i := strings.IndexByte(name, '.'); i >= 0 {
			name = name[:i]
		}
		if name != "" {
			modules[name] = struct{}{}
		}
	}

	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				switch child.Type() {
				case "dotted_name":
					add(child)
				case "aliased_import":
					add(child.ChildByFieldName("name"))
				}
			}
			return
		case "import_from_statement":
			// module_name is a relative_import node for "from . import x".
			add(n.ChildByFieldName("module_name"))
			return
		}

		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)

	return modules
}
