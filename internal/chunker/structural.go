package chunker

import (
	"context"
	"fmt"

	"github.com/seanblong/codenav/pkg/models"
	sitter "github.com/smacker/go-tree-sitter"
)

// Structural finds top-level declarations with a tree-sitter parse.
// Languages without a compiled grammar yield no spans.
type Structural struct{}

func (Structural) Name() string { return "structural" }

func (Structural) Spans(ctx context.Context, file models.SourceFile, _ []string) ([]Span, error) {
	grammar, ok := grammarFor(file.Language)
	if !ok {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	src := []byte(file.Text)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file.Path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("parse %s: syntax errors in tree", file.Path)
	}

	var spans []Span
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		kind, name, ok := topLevelDecl(file.Language, n, src)
		if !ok {
			continue
		}
		spans = append(spans, Span{
			Start:  int(n.StartPoint().Row) + 1,
			End:    endLine(n),
			Kind:   kind,
			Symbol: name,
		})
	}
	return spans, nil
}

// endLine is the 1-based last line of n. A node ending at column 0 ends on
// the previous line.
func endLine(n *sitter.Node) int {
	start, end := n.StartPoint(), n.EndPoint()
	row := int(end.Row) + 1
	if end.Column == 0 && end.Row > start.Row {
		row--
	}
	return row
}

func topLevelDecl(lang string, n *sitter.Node, src []byte) (models.ChunkKind, string, bool) {
	switch lang {
	case LangPython:
		return pythonDecl(n, src)
	case LangJava:
		return javaDecl(n, src)
	case LangJavaScript:
		return javascriptDecl(n, src)
	}
	return "", "", false
}

func nameOf(n *sitter.Node, src []byte) string {
	if id := n.ChildByFieldName("name"); id != nil {
		return id.Content(src)
	}
	return ""
}

func pythonDecl(n *sitter.Node, src []byte) (models.ChunkKind, string, bool) {
	switch n.Type() {
	case "function_definition":
		return models.KindFunction, nameOf(n, src), true
	case "class_definition":
		return models.KindClass, nameOf(n, src), true
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil {
			return pythonDecl(def, src)
		}
	}
	return "", "", false
}

func javaDecl(n *sitter.Node, src []byte) (models.ChunkKind, string, bool) {
	switch n.Type() {
	case "class_declaration", "interface_declaration", "enum_declaration",
		"record_declaration", "annotation_type_declaration":
		return models.KindClass, nameOf(n, src), true
	}
	return "", "", false
}

func javascriptDecl(n *sitter.Node, src []byte) (models.ChunkKind, string, bool) {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration":
		return models.KindFunction, nameOf(n, src), true
	case "class_declaration":
		return models.KindClass, nameOf(n, src), true
	case "export_statement":
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			return javascriptDecl(decl, src)
		}
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d := n.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			v := d.ChildByFieldName("value")
			if v == nil {
				continue
			}
			switch v.Type() {
			case "arrow_function", "function", "function_expression", "generator_function":
				return models.KindFunction, nameOf(d, src), true
			case "class":
				return models.KindClass, nameOf(d, src), true
			}
		}
	}
	return "", "", false
}
