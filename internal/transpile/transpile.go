// Package transpile turns .tmpl component sources into Go.
//
// A unit is transpiled twice per compilation. Declaration mode emits only
// the component's shape (its struct, route and a stub Render method) and
// needs no knowledge of other components. Full mode emits the render body
// and resolves component tags through a Resolver built from the reference
// catalog and the shapes the declaration pass produced.
package transpile

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/conneroisu/templc/internal/diag"
	"github.com/conneroisu/templc/internal/module"
	"github.com/conneroisu/templc/internal/source"
)

// Mode selects how much code is generated.
type Mode int

const (
	ModeDeclaration Mode = iota
	ModeFull
)

func (m Mode) String() string {
	if m == ModeFull {
		return "full"
	}
	return "declaration"
}

// DefaultPackageName is used when Options.PackageName is empty.
const DefaultPackageName = "app"

// Options configures code generation.
type Options struct {
	PackageName string
}

// Result is the output of one transpile of one unit.
type Result struct {
	Unit        *source.Unit
	Mode        Mode
	TypeName    string
	FileName    string
	Code        string
	Diagnostics []diag.Diagnostic
	SourceMap   *SourceMap
	// Shape is the component as declared by its directives. Param types are
	// as written in the source.
	Shape module.Component
}

// Transpile generates Go for unit from input, the text the transpiler sees
// (the unit's text plus anything the pipeline injected). Includes and
// _Imports units are resolved through provider. resolver is only consulted
// in full mode and may be nil in declaration mode.
func Transpile(unit *source.Unit, input string, mode Mode, provider *source.Provider, resolver Resolver, opts Options) *Result {
	if opts.PackageName == "" {
		opts.PackageName = DefaultPackageName
	}

	doc, diags := Parse(unit.Path(), input)
	g := &generator{
		unit:     unit,
		doc:      doc,
		mode:     mode,
		provider: provider,
		resolver: resolver,
		opts:     opts,
		w:        newWriter(),
		diags:    diags,
		typeName: TypeName(unit.Path()),
	}
	g.inheritImports()
	g.generate()

	return &Result{
		Unit:        unit,
		Mode:        mode,
		TypeName:    g.typeName,
		FileName:    GeneratedFileName(unit.Path()),
		Code:        g.w.String(),
		Diagnostics: g.diags,
		SourceMap:   g.w.sourceMap(),
		Shape:       g.shape(),
	}
}

type generator struct {
	unit     *source.Unit
	doc      *Document
	mode     Mode
	provider *source.Provider
	resolver Resolver
	opts     Options
	w        *writer
	diags    []diag.Diagnostic
	typeName string
	// including holds the units currently being spliced, outermost first.
	including []string
}

func (g *generator) report(line int, sev diag.Severity, code, format string, args ...interface{}) {
	g.diags = append(g.diags, diag.FromTemplating(diag.TemplatingMessage{
		Code:     code,
		Severity: sev,
		Text:     fmt.Sprintf(format, args...),
		File:     g.unit.Path(),
		Line:     line,
	}))
}

// inheritImports adds the @import directives of the _Imports units above
// the unit. An inherited import is only kept when the unit's Go code refers
// to it, so unused ones do not fail the host compile.
func (g *generator) inheritImports() {
	if g.provider == nil {
		return
	}
	spans := g.codeSpans(g.doc, g.unit.Dir(), map[string]bool{g.unit.Path(): true})
	own := make(map[string]bool, len(g.doc.Imports))
	for _, imp := range g.doc.Imports {
		own[imp.Name()] = true
	}

	var inherited []ImportDirective
	for _, u := range g.provider.ImportsChain(g.unit.Path()) {
		doc, diags := Parse(u.Path(), u.Text())
		g.diags = append(g.diags, diags...)
		for _, imp := range doc.Imports {
			name := imp.Name()
			if own[name] {
				continue
			}
			if name != "_" && !anyRefersTo(spans, name) {
				continue
			}
			own[name] = true
			imp.Inherited = true
			inherited = append(inherited, imp)
		}
	}
	g.doc.Imports = append(inherited, g.doc.Imports...)
}

// codeSpans collects the Go fragments of doc: parameter types, @code
// blocks, expressions, conditions, loop clauses, component tags and the
// attribute values passed to components. Included units add theirs.
func (g *generator) codeSpans(doc *Document, dir string, seen map[string]bool) []string {
	var spans []string
	for _, p := range doc.Params {
		spans = append(spans, p.Type)
	}
	for _, c := range doc.Code {
		spans = append(spans, c.Lines...)
	}

	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			switch n := n.(type) {
			case *Expr:
				spans = append(spans, n.Code)
			case *Element:
				component := n.IsComponent()
				if component {
					spans = append(spans, n.Tag)
				}
				for _, a := range n.Attrs {
					if a.Kind == AttrExpr || (component && a.Kind == AttrLiteral) {
						spans = append(spans, a.Value)
					}
				}
				walk(n.Children)
			case *If:
				for _, b := range n.Branches {
					spans = append(spans, b.Cond)
					walk(b.Body)
				}
				walk(n.Else)
			case *For:
				spans = append(spans, n.Clause)
				walk(n.Body)
			case *Include:
				target := includeTarget(dir, n.Path)
				if seen[target] {
					continue
				}
				seen[target] = true
				h := g.provider.Resolve(target)
				if !h.Exists() || h.Unit().Kind() != source.KindComponent {
					continue
				}
				inc, _ := Parse(target, h.Unit().Text())
				spans = append(spans, g.codeSpans(inc, path.Dir(target), seen)...)
			}
		}
	}
	walk(doc.Body)
	return spans
}

func anyRefersTo(spans []string, name string) bool {
	for _, s := range spans {
		if refersTo(s, name) {
			return true
		}
	}
	return false
}

// includeTarget resolves an @include path against the directory of the
// unit that contains it.
func includeTarget(dir, p string) string {
	if !path.IsAbs(p) {
		p = path.Join(dir, p)
	}
	return source.NormalizePath(p)
}

// refersTo reports whether text contains name followed by a selector dot
// at the start of an identifier.
func refersTo(text, name string) bool {
	needle := name + "."
	for i := 0; ; {
		j := strings.Index(text[i:], needle)
		if j < 0 {
			return false
		}
		at := i + j
		if at == 0 || !isIdentChar(text[at-1]) {
			return true
		}
		i = at + 1
	}
}

func (g *generator) shape() module.Component {
	c := module.Component{Name: g.typeName}
	if g.doc.Page != nil {
		c.Route = g.doc.Page.Route
	}
	for _, p := range g.doc.Params {
		c.Params = append(c.Params, module.Param{Name: p.Name, Type: p.Type, Text: p.Type == "string"})
	}
	return c
}

func (g *generator) generate() {
	w := g.w
	w.emit(0, fmt.Sprintf("// Code generated by templc from %s. DO NOT EDIT.", g.unit.Path()))
	w.blank()
	w.emit(0, "package "+g.opts.PackageName)
	w.blank()

	w.emit(0, "import (")
	w.indent++
	w.emit(0, strconv.Quote(module.RuntimePath))
	for _, imp := range g.doc.Imports {
		if imp.Path == module.RuntimePath && imp.Name() == "runtime" {
			continue
		}
		line := imp.Line
		if imp.Inherited {
			line = 0
		}
		if imp.Alias != "" {
			w.emit(line, imp.Alias+" "+strconv.Quote(imp.Path))
		} else {
			w.emit(line, strconv.Quote(imp.Path))
		}
	}
	w.indent--
	w.emit(0, ")")
	w.blank()

	w.emit(0, "type "+g.typeName+" struct {")
	w.indent++
	for _, p := range g.doc.Params {
		w.emit(p.Line, p.Name+" "+p.Type)
	}
	w.indent--
	w.emit(0, "}")
	w.blank()

	if g.doc.Page != nil {
		w.emit(g.doc.Page.Line, fmt.Sprintf("func (c *%s) Route() string {", g.typeName))
		w.indent++
		w.emit(g.doc.Page.Line, "return "+strconv.Quote(g.doc.Page.Route))
		w.indent--
		w.emit(0, "}")
		w.blank()
	}

	w.emit(0, fmt.Sprintf("func (c *%s) Render(w *runtime.Buffer) error {", g.typeName))
	w.indent++
	if g.mode == ModeFull {
		for _, p := range g.doc.Params {
			w.emit(p.Line, fmt.Sprintf("%s := c.%s", p.Name, p.Name))
			w.emit(p.Line, "_ = "+p.Name)
		}
		g.nodes(g.doc.Body)
		w.emit(0, "return w.Err()")
	} else {
		g.checkIncludes(g.doc.Body)
		w.emit(0, "return nil")
	}
	w.indent--
	w.emit(0, "}")

	for _, block := range g.doc.Code {
		w.blank()
		for i, l := range block.Lines {
			// @code lines keep their own indentation
			saved := w.indent
			w.indent = 0
			w.emit(block.Line+i, l)
			w.indent = saved
		}
	}
}

// checkIncludes resolves every @include without generating anything, so
// missing includes fail the declaration pass.
func (g *generator) checkIncludes(nodes []Node) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *Include:
			g.include(n)
		case *Element:
			g.checkIncludes(n.Children)
		case *If:
			for _, b := range n.Branches {
				g.checkIncludes(b.Body)
			}
			g.checkIncludes(n.Else)
		case *For:
			g.checkIncludes(n.Body)
		}
	}
}

func (g *generator) nodes(nodes []Node) {
	for _, n := range nodes {
		g.node(n)
	}
}

func (g *generator) node(n Node) {
	w := g.w
	switch n := n.(type) {
	case *Text:
		g.text(n)

	case *Expr:
		w.emit(n.Line, "w.Text("+n.Code+")")

	case *Element:
		if n.IsComponent() {
			if comp, qual, ok := g.lookupComponent(n); ok {
				g.component(n, comp, qual)
				return
			}
		}
		g.element(n)

	case *If:
		for i, b := range n.Branches {
			if i == 0 {
				w.emit(b.Line, "if "+b.Cond+" {")
			} else {
				w.indent--
				w.emit(b.Line, "} else if "+b.Cond+" {")
			}
			w.indent++
			g.nodes(b.Body)
		}
		if n.Else != nil {
			w.indent--
			w.emit(n.ElseLine, "} else {")
			w.indent++
			g.nodes(n.Else)
		}
		w.indent--
		w.emit(n.EndLine, "}")

	case *For:
		w.emit(n.Line, "for "+n.Clause+" {")
		w.indent++
		g.nodes(n.Body)
		w.indent--
		w.emit(n.EndLine, "}")

	case *Include:
		g.include(n)
	}
}

// text writes literal markup, one Raw call per input line.
func (g *generator) text(n *Text) {
	line := n.Line
	rest := n.Value
	for rest != "" {
		seg := rest
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			seg = rest[:i+1]
		}
		rest = rest[len(seg):]
		g.w.emit(line, "w.Raw("+strconv.Quote(seg)+")")
		line++
	}
}

func (g *generator) element(n *Element) {
	w := g.w
	w.emit(n.Line, "w.Raw("+strconv.Quote("<"+n.Tag)+")")
	for _, a := range n.Attrs {
		switch a.Kind {
		case AttrLiteral:
			value := strings.ReplaceAll(a.Value, `"`, "&#34;")
			w.emit(a.Line, "w.Raw("+strconv.Quote(" "+a.Name+"=\""+value+"\"")+")")
		case AttrExpr:
			w.emit(a.Line, fmt.Sprintf("w.Attr(%s, %s)", strconv.Quote(a.Name), a.Value))
		case AttrBare:
			w.emit(a.Line, "w.Raw("+strconv.Quote(" "+a.Name)+")")
		}
	}

	switch {
	case isVoidElement(n.Tag):
		w.emit(n.Line, `w.Raw(">")`)
	case n.SelfClosing:
		w.emit(n.Line, "w.Raw("+strconv.Quote("></"+n.Tag+">")+")")
	default:
		w.emit(n.Line, `w.Raw(">")`)
		g.nodes(n.Children)
		w.emit(n.EndLine, "w.Raw("+strconv.Quote("</"+n.Tag+">")+")")
	}
}

// lookupComponent resolves a component tag. qual is the import name the
// type must be qualified with, empty for local components.
func (g *generator) lookupComponent(n *Element) (module.Component, string, bool) {
	pkgPath, qual, name := "", "", n.Tag
	if i := strings.LastIndex(n.Tag, "."); i >= 0 {
		qual, name = n.Tag[:i], n.Tag[i+1:]
		found := false
		for _, imp := range g.doc.Imports {
			if imp.Name() == qual {
				pkgPath, found = imp.Path, true
				break
			}
		}
		if !found {
			g.report(n.Line, diag.SevWarning, CodeUnknownComponent,
				"unknown component <%s>: %s is not imported", n.Tag, qual)
			return module.Component{}, "", false
		}
	}

	if g.resolver != nil {
		if c, ok := g.resolver.Component(pkgPath, name); ok {
			return c, qual, true
		}
	}
	g.report(n.Line, diag.SevWarning, CodeUnknownComponent,
		"unknown component <%s>, rendering it as a plain element", n.Tag)
	return module.Component{}, "", false
}

func (g *generator) component(n *Element, comp module.Component, qual string) {
	w := g.w
	typ := comp.Name
	if qual != "" {
		typ = qual + "." + comp.Name
	}

	params := make(map[string]module.Param, len(comp.Params))
	for _, p := range comp.Params {
		params[p.Name] = p
	}

	w.emit(n.Line, "w.Component(&"+typ+"{")
	w.indent++
	for _, a := range n.Attrs {
		p, ok := params[a.Name]
		if !ok {
			g.report(a.Line, diag.SevError, CodeUnknownParam,
				"component %s has no parameter %s", n.Tag, a.Name)
			continue
		}
		var value string
		switch a.Kind {
		case AttrLiteral:
			if p.Text || strings.TrimSpace(a.Value) == "" {
				value = strconv.Quote(a.Value)
			} else {
				value = strings.TrimSpace(a.Value)
			}
		case AttrExpr:
			value = a.Value
		case AttrBare:
			value = "true"
		}
		w.emit(a.Line, a.Name+": "+value+",")
	}

	if hasContent(n.Children) {
		if _, ok := params["Children"]; !ok {
			g.report(n.Line, diag.SevError, CodeUnknownParam,
				"component %s does not take child content", n.Tag)
		} else {
			w.emit(n.Line, "Children: []runtime.Component{runtime.Func(func(w *runtime.Buffer) error {")
			w.indent++
			g.nodes(n.Children)
			w.emit(n.EndLine, "return nil")
			w.indent--
			w.emit(n.EndLine, "})},")
		}
	}
	w.indent--
	w.emit(n.EndLine, "})")
}

func hasContent(nodes []Node) bool {
	for _, n := range nodes {
		if t, ok := n.(*Text); ok && strings.TrimSpace(t.Value) == "" {
			continue
		}
		return true
	}
	return false
}

func (g *generator) include(n *Include) {
	line, dir := n.Line, g.unit.Dir()
	if g.w.pin > 0 {
		line = g.w.pin
	}
	if len(g.including) > 0 {
		dir = path.Dir(g.including[len(g.including)-1])
	}

	target := includeTarget(dir, n.Path)

	h := g.provider.Resolve(target)
	if !h.Exists() || h.Unit().Kind() != source.KindComponent {
		g.report(line, diag.SevError, CodeIncludeNotFound, "included unit %s not found", target)
		return
	}
	if target == g.unit.Path() {
		g.report(line, diag.SevError, CodeIncludeCycle, "%s includes itself", target)
		return
	}
	for _, p := range g.including {
		if p == target {
			g.report(line, diag.SevError, CodeIncludeCycle,
				"include cycle: %s", strings.Join(append(g.including, target), " -> "))
			return
		}
	}
	if g.mode != ModeFull {
		return
	}

	// Problems inside the included unit are reported when it is
	// transpiled itself.
	doc, _ := Parse(target, h.Unit().Text())

	outer := g.w.pin
	if outer == 0 {
		g.w.pin = line
	}
	g.including = append(g.including, target)
	g.nodes(doc.Body)
	g.including = g.including[:len(g.including)-1]
	g.w.pin = outer
}
