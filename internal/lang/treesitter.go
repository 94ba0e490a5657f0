package lang

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/lattice/internal/graph"
)

// dialect describes how one language's concrete syntax maps onto the
// universal graph schema. Parsers are generated from these tables rather
// than hand-written per language, so adding a language is a table entry.
type dialect struct {
	name     string
	exts     []string
	language *sitter.Language

	// decls maps declaration node types to graph kinds. A function
	// declared inside a class container becomes a method.
	decls map[string]graph.Kind

	calls    map[string]bool
	controls map[string]bool
	imports  map[string]bool
	assigns  map[string]bool

	// nameFields are tried in order when extracting a declaration name.
	nameFields []string
	// calleeFields are tried in order when extracting a call target.
	calleeFields []string
	// superFields are tried in order for a class's parent type.
	superFields []string
}

// treeParser is a tree-sitter backed Parser configured by a dialect.
type treeParser struct {
	d      dialect
	parser *sitter.Parser
}

func newTreeParser(d dialect) *treeParser {
	p := sitter.NewParser()
	p.SetLanguage(d.language)
	return &treeParser{d: d, parser: p}
}

func (p *treeParser) Language() string { return p.d.name }

func (p *treeParser) Extensions() []string { return p.d.exts }

func (p *treeParser) CanParse(path string) bool { return hasExtension(path, p.d.exts) }

// ParseFile parses one file and stages its fragment on the builder. The
// fragment is committed only when translation succeeds end to end, so a
// failure here cannot corrupt nodes committed for other files.
func (p *treeParser) ParseFile(path string, b *graph.Builder) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return &ParseError{Path: path, Err: err}
	}

	tree, err := p.parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return &ParseError{Path: path, Err: err}
	}
	root := tree.RootNode()
	if root.HasError() {
		return &ParseError{Path: path, Err: errors.New("source contains syntax errors")}
	}

	b.BeginFile()
	w := &walker{d: &p.d, b: b, src: src, path: path, vars: make(map[string]string), classes: make(map[string]string)}
	if err := w.run(root); err != nil {
		b.AbandonFile()
		return &ParseError{Path: path, Err: err}
	}
	b.CommitFile()
	return nil
}

// walker carries the per-file translation state: the container stack for
// contains edges and the enclosing-function stack for calls/reads/writes.
type walker struct {
	d    *dialect
	b    *graph.Builder
	src  []byte
	path string

	containers []string // node IDs: module, classes, functions, controls
	funcs      []string // node IDs: functions and methods only

	vars    map[string]string // variable name -> node ID, file scope
	classes map[string]string // class name -> node ID, file scope
}

func (w *walker) run(root *sitter.Node) error {
	mod := &graph.Node{
		Kind:     graph.KindModule,
		Name:     w.path,
		File:     w.path,
		Language: w.d.name,
		Span:     spanOf(root),
	}
	mod.ID = graph.NodeID(w.path, mod.Span, mod.Kind, mod.Name)
	if err := w.b.AddNode(mod); err != nil {
		return err
	}
	w.containers = []string{mod.ID}
	return w.walk(root)
}

func (w *walker) walk(n *sitter.Node) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if err := w.visit(child); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visit(n *sitter.Node) error {
	t := n.Type()
	switch {
	case w.d.decls[t] != "":
		return w.visitDecl(n, w.d.decls[t])
	case w.d.calls[t]:
		if err := w.visitCall(n); err != nil {
			return err
		}
		return w.walk(n)
	case w.d.controls[t]:
		return w.visitControl(n)
	case w.d.imports[t]:
		return w.visitImport(n)
	case w.d.assigns[t]:
		if err := w.visitAssign(n); err != nil {
			return err
		}
		return w.walk(n)
	default:
		return w.walk(n)
	}
}

func (w *walker) visitDecl(n *sitter.Node, kind graph.Kind) error {
	name := w.fieldText(n, w.d.nameFields)
	if name == "" {
		name = "(anonymous)"
	}
	if kind == graph.KindFunction && w.insideClass() {
		kind = graph.KindMethod
	}

	node := w.newNode(kind, name, n)
	node.Attrs["signature"] = firstLine(w.text(n))
	if w.d.name == "go" && len(name) > 0 {
		if unicode.IsUpper(rune(name[0])) {
			node.Attrs["visibility"] = "public"
		} else {
			node.Attrs["visibility"] = "private"
		}
	}

	if kind == graph.KindClass {
		if super := superName(w.fieldText(n, w.d.superFields)); super != "" {
			node.Attrs["extends"] = super
		}
	}

	if err := w.addContained(node); err != nil {
		return err
	}

	// Inherits edges resolve within the file; cross-file parents stay as
	// the "extends" attribute.
	if kind == graph.KindClass {
		w.classes[name] = node.ID
		if super := node.Attr("extends"); super != "" {
			if parentID, ok := w.classes[super]; ok {
				if err := w.b.AddEdge(node.ID, parentID, graph.EdgeInherits); err != nil {
					return err
				}
			}
		}
	}

	w.containers = append(w.containers, node.ID)
	if kind == graph.KindFunction || kind == graph.KindMethod {
		w.funcs = append(w.funcs, node.ID)
	}
	err := w.walk(n)
	w.containers = w.containers[:len(w.containers)-1]
	if kind == graph.KindFunction || kind == graph.KindMethod {
		w.funcs = w.funcs[:len(w.funcs)-1]
	}
	return err
}

func (w *walker) visitCall(n *sitter.Node) error {
	callee := w.fieldText(n, w.d.calleeFields)
	if callee == "" {
		callee = firstLine(w.text(n))
	}
	node := w.newNode(graph.KindCall, callee, n)
	node.Attrs["signature"] = firstLine(w.text(n))

	// A call whose parent is a bare expression statement discards its
	// result. Detectors key off this.
	used := "true"
	if parent := n.Parent(); parent != nil && strings.Contains(parent.Type(), "expression_statement") {
		used = "false"
	}
	node.Attrs["result_used"] = used

	if err := w.addContained(node); err != nil {
		return err
	}
	if fn := w.enclosingFunc(); fn != "" {
		if err := w.b.AddEdge(fn, node.ID, graph.EdgeCalls); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visitControl(n *sitter.Node) error {
	node := w.newNode(graph.KindControl, n.Type(), n)
	node.Attrs["construct"] = n.Type()
	if cond := n.ChildByFieldName("condition"); cond != nil {
		node.Attrs["condition"] = firstLine(w.text(cond))
	}
	if body := controlBody(n); body != nil && bodyIsEmpty(body) {
		node.Attrs["empty_body"] = "true"
	}

	if err := w.addContained(node); err != nil {
		return err
	}
	if fn := w.enclosingFunc(); fn != "" {
		if err := w.b.AddEdge(fn, node.ID, graph.EdgeControls); err != nil {
			return err
		}
	}

	// Controls join the container stack so nested controls chain via
	// contains edges, which is what nesting-depth detectors traverse.
	w.containers = append(w.containers, node.ID)
	err := w.walk(n)
	w.containers = w.containers[:len(w.containers)-1]
	return err
}

func (w *walker) visitImport(n *sitter.Node) error {
	source := w.fieldText(n, []string{"path", "source", "name"})
	if source == "" {
		source = firstLine(w.text(n))
	}
	node := w.newNode(graph.KindImport, strings.Trim(source, `"'`), n)
	node.Attrs["source"] = strings.Trim(source, `"'`)
	if err := w.b.AddNode(node); err != nil {
		return err
	}
	// Imports always hang off the module node.
	return w.b.AddEdge(w.containers[0], node.ID, graph.EdgeContains)
}

func (w *walker) visitAssign(n *sitter.Node) error {
	fn := w.enclosingFunc()

	if left := n.ChildByFieldName("left"); left != nil {
		for _, ident := range identifiers(left, w.src) {
			id, err := w.variableNode(ident.name, ident.node)
			if err != nil {
				return err
			}
			if fn != "" {
				if err := w.b.AddEdge(fn, id, graph.EdgeWrites); err != nil {
					return err
				}
			}
		}
	}
	if right := n.ChildByFieldName("right"); right != nil && fn != "" {
		for _, ident := range identifiers(right, w.src) {
			if id, ok := w.vars[ident.name]; ok {
				if err := w.b.AddEdge(fn, id, graph.EdgeReads); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// variableNode returns the node ID for a named variable, creating the node
// on first sight.
func (w *walker) variableNode(name string, at *sitter.Node) (string, error) {
	if id, ok := w.vars[name]; ok {
		return id, nil
	}
	node := w.newNode(graph.KindVariable, name, at)
	if err := w.addContained(node); err != nil {
		return "", err
	}
	w.vars[name] = node.ID
	return node.ID, nil
}

func (w *walker) newNode(kind graph.Kind, name string, n *sitter.Node) *graph.Node {
	span := spanOf(n)
	return &graph.Node{
		ID:       graph.NodeID(w.path, span, kind, name),
		Kind:     kind,
		Name:     name,
		File:     w.path,
		Language: w.d.name,
		Span:     span,
		Attrs:    make(map[string]string),
	}
}

func (w *walker) addContained(node *graph.Node) error {
	if err := w.b.AddNode(node); err != nil {
		return err
	}
	return w.b.AddEdge(w.containers[len(w.containers)-1], node.ID, graph.EdgeContains)
}

func (w *walker) insideClass() bool {
	// The container stack holds IDs; class membership is tracked by the
	// classes map instead of re-resolving, so check the top container.
	if len(w.containers) < 2 {
		return false
	}
	top := w.containers[len(w.containers)-1]
	for _, id := range w.classes {
		if id == top {
			return true
		}
	}
	return false
}

func (w *walker) enclosingFunc() string {
	if len(w.funcs) == 0 {
		return ""
	}
	return w.funcs[len(w.funcs)-1]
}

func (w *walker) text(n *sitter.Node) string { return n.Content(w.src) }

func (w *walker) fieldText(n *sitter.Node, fields []string) string {
	for _, f := range fields {
		if c := n.ChildByFieldName(f); c != nil {
			return w.text(c)
		}
	}
	return ""
}

type ident struct {
	name string
	node *sitter.Node
}

// identifiers collects plain identifier leaves under n.
func identifiers(n *sitter.Node, src []byte) []ident {
	var out []ident
	var rec func(*sitter.Node)
	rec = func(cur *sitter.Node) {
		if cur.Type() == "identifier" {
			out = append(out, ident{name: cur.Content(src), node: cur})
			return
		}
		for i := 0; i < int(cur.NamedChildCount()); i++ {
			rec(cur.NamedChild(i))
		}
	}
	rec(n)
	return out
}

// controlBody finds the block a control structure guards.
func controlBody(n *sitter.Node) *sitter.Node {
	for _, f := range []string{"consequence", "body", "block"} {
		if c := n.ChildByFieldName(f); c != nil {
			return c
		}
	}
	// Some grammars attach the block as an unnamed field.
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if strings.Contains(c.Type(), "block") {
			return c
		}
	}
	return nil
}

// bodyIsEmpty reports whether a block has no effectual statements. A body
// of only pass statements or comments counts as empty.
func bodyIsEmpty(body *sitter.Node) bool {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		switch body.NamedChild(i).Type() {
		case "pass_statement", "comment", "line_comment", "block_comment":
		default:
			return false
		}
	}
	return true
}

// superName normalizes a superclass clause to a bare type name: strips the
// grammar's punctuation ("(Base)", "extends Base", ": Base") and keeps the
// first listed parent.
func superName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "():")
	s = strings.TrimPrefix(s, "extends ")
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func spanOf(n *sitter.Node) graph.Span {
	start, end := n.StartPoint(), n.EndPoint()
	return graph.Span{
		StartLine: int(start.Row),
		StartCol:  int(start.Column),
		EndLine:   int(end.Row),
		EndCol:    int(end.Column),
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > 160 {
		s = fmt.Sprintf("%s...", s[:157])
	}
	return s
}
