package transpile

// Document is a parsed .tmpl unit. Lines are one-based lines of transpiler
// input.
type Document struct {
	Page    *PageDirective
	Imports []ImportDirective
	Params  []ParamDirective
	Code    []CodeBlock
	Body    []Node
}

// PageDirective is @page "/route".
type PageDirective struct {
	Route string
	Line  int
}

// ImportDirective is @import "path" or @import alias "path".
type ImportDirective struct {
	Alias string
	Path  string
	Line  int
	// Inherited marks imports contributed by an _Imports unit.
	Inherited bool
}

// Name is the identifier the import is referenced by in this unit.
func (d ImportDirective) Name() string {
	if d.Alias != "" {
		return d.Alias
	}
	return lastSegment(d.Path)
}

// ParamDirective is @param Name Type.
type ParamDirective struct {
	Name string
	Type string
	Line int
}

// CodeBlock holds the Go declarations of one @code block, one entry per
// source line.
type CodeBlock struct {
	Lines []string
	Line  int
}

// Node is a markup node.
type Node interface {
	node()
	Pos() int
}

// Text is literal markup.
type Text struct {
	Value string
	Line  int
}

// Element is an HTML element or a component tag.
type Element struct {
	Tag         string
	Attrs       []Attr
	Children    []Node
	SelfClosing bool
	Line        int
	// EndLine is the line of the closing tag, or Line when there is none.
	EndLine int
}

// IsComponent reports whether the tag names a component: it starts with
// an upper-case letter or is qualified by an import alias.
func (e *Element) IsComponent() bool {
	return isComponentTag(e.Tag)
}

// AttrKind says how an attribute value was written.
type AttrKind int

const (
	AttrLiteral AttrKind = iota
	AttrExpr
	AttrBare
)

// Attr is one attribute of an element.
type Attr struct {
	Name  string
	Kind  AttrKind
	Value string
	Line  int
}

// Expr is @name, @a.b(c) or @(expr).
type Expr struct {
	Code string
	Line int
}

// If is @if with its else-if chain and optional else.
type If struct {
	Branches []Branch
	Else     []Node
	ElseLine int
	EndLine  int
}

// Branch is one condition and its body.
type Branch struct {
	Cond string
	Body []Node
	Line int
}

// For is @for clause { ... }.
type For struct {
	Clause  string
	Body    []Node
	Line    int
	EndLine int
}

// Include is @include "/Other.tmpl".
type Include struct {
	Path string
	Line int
}

func (*Text) node()    {}
func (*Element) node() {}
func (*Expr) node()    {}
func (*If) node()      {}
func (*For) node()     {}
func (*Include) node() {}

func (n *Text) Pos() int    { return n.Line }
func (n *Element) Pos() int { return n.Line }
func (n *Expr) Pos() int    { return n.Line }
func (n *If) Pos() int      { return n.Branches[0].Line }
func (n *For) Pos() int     { return n.Line }
func (n *Include) Pos() int { return n.Line }
