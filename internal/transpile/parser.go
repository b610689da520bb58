package transpile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conneroisu/templc/internal/diag"
)

// Templating diagnostic codes.
const (
	CodeEmptyBatch        = "TPL0100"
	CodeUnclosedElement   = "TPL0101"
	CodeMismatchedClose   = "TPL0102"
	CodeUnexpectedClose   = "TPL0103"
	CodeUnterminated      = "TPL0104"
	CodeMalformed         = "TPL0105"
	CodeUnterminatedQuote = "TPL0106"
	CodeReservedParam     = "TPL0107"
	CodeDuplicateParam    = "TPL0108"
	CodeDuplicateUnit     = "TPL0109"
	CodeTypeCollision     = "TPL0110"
	CodeUnknownElement    = "TPL0201"
	CodeUnknownComponent  = "TPL0202"
	CodeUnknownParam      = "TPL0203"
	CodeIncludeNotFound   = "TPL0301"
	CodeIncludeCycle      = "TPL0302"
)

// reservedParams collide with the generated receiver and writer.
var reservedParams = map[string]bool{"c": true, "w": true}

type stop int

const (
	stopEOF stop = iota
	stopClose
	stopBrace
)

type parser struct {
	file  string
	src   string
	pos   int
	line  int
	doc   *Document
	diags []diag.Diagnostic
}

// Parse parses transpiler input. It always returns a document; problems are
// reported as templating diagnostics against file.
func Parse(file, src string) (*Document, []diag.Diagnostic) {
	p := &parser{file: file, src: src, line: 1, doc: &Document{}}
	for {
		nodes, why := p.parseNodes(true, false, false, false)
		p.doc.Body = append(p.doc.Body, nodes...)
		if why == stopEOF {
			break
		}
		if why == stopClose {
			p.unexpectedClose()
		}
	}
	return p.doc, p.diags
}

func (p *parser) report(line int, sev diag.Severity, code, format string, args ...interface{}) {
	p.diags = append(p.diags, diag.FromTemplating(diag.TemplatingMessage{
		Code:     code,
		Severity: sev,
		Text:     fmt.Sprintf(format, args...),
		File:     p.file,
		Line:     line,
	}))
}

func (p *parser) errorf(line int, code, format string, args ...interface{}) {
	p.report(line, diag.SevError, code, format, args...)
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek(n int) byte {
	if p.pos+n < len(p.src) {
		return p.src[p.pos+n]
	}
	return 0
}

func (p *parser) next() {
	if p.src[p.pos] == '\n' {
		p.line++
	}
	p.pos++
}

func (p *parser) advance(n int) {
	for i := 0; i < n && !p.eof(); i++ {
		p.next()
	}
}

func (p *parser) skipSpaces() {
	for !p.eof() && isSpace(p.src[p.pos]) {
		p.next()
	}
}

func (p *parser) skipInlineSpaces() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.next()
	}
}

func (p *parser) readIdent() string {
	start := p.pos
	for !p.eof() && isIdentChar(p.src[p.pos]) {
		p.next()
	}
	return p.src[start:p.pos]
}

// restOfLine consumes up to and including the next newline and returns the
// line without it.
func (p *parser) restOfLine() string {
	start := p.pos
	for !p.eof() && p.src[p.pos] != '\n' {
		p.next()
	}
	s := p.src[start:p.pos]
	if !p.eof() {
		p.next()
	}
	return s
}

// parseNodes reads markup until EOF, a close tag, or (inside a block) a
// closing brace. top allows directives; inElement lets close tags end the
// run; foreign disables element checks.
func (p *parser) parseNodes(top, block, inElement, foreign bool) ([]Node, stop) {
	var nodes []Node
	var text strings.Builder
	textLine := 0

	flush := func() {
		if text.Len() > 0 {
			nodes = append(nodes, &Text{Value: text.String(), Line: textLine})
			text.Reset()
		}
	}
	addText := func(s string) {
		if text.Len() == 0 {
			textLine = p.line
		}
		text.WriteString(s)
	}

	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == '<' && p.peek(1) == '/':
			if inElement {
				flush()
				return nodes, stopClose
			}
			flush()
			p.unexpectedClose()

		case c == '<' && isIdentStart(p.peek(1)):
			flush()
			nodes = append(nodes, p.parseElement(block, foreign))

		case c == '}' && block:
			flush()
			return nodes, stopBrace

		case c == '@':
			if n, lit := p.parseAt(top, block, foreign); n != nil {
				flush()
				nodes = append(nodes, n)
			} else if lit != "" {
				addText(lit)
			}

		default:
			addText(string(c))
			p.next()
		}
	}
	flush()
	return nodes, stopEOF
}

func (p *parser) unexpectedClose() {
	line := p.line
	p.advance(2)
	name := p.readTagName()
	p.skipSpaces()
	if !p.eof() && p.src[p.pos] == '>' {
		p.next()
	}
	p.errorf(line, CodeUnexpectedClose, "unexpected closing tag </%s>", name)
}

func (p *parser) readTagName() string {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if !isIdentChar(c) && c != '-' && c != '.' && c != ':' {
			break
		}
		p.next()
	}
	return p.src[start:p.pos]
}

func (p *parser) parseElement(block, foreign bool) *Element {
	el := &Element{Line: p.line}
	p.next()
	el.Tag = p.readTagName()
	el.EndLine = el.Line

	if !el.IsComponent() && !foreign && !isKnownElement(el.Tag) {
		p.report(el.Line, diag.SevWarning, CodeUnknownElement, "unknown HTML element <%s>", el.Tag)
	}
	foreign = foreign || isForeignElement(el.Tag)

	for {
		p.skipSpaces()
		if p.eof() {
			p.errorf(el.Line, CodeUnclosedElement, "element <%s> is never closed", el.Tag)
			return el
		}
		c := p.src[p.pos]
		if c == '>' {
			p.next()
			break
		}
		if c == '/' && p.peek(1) == '>' {
			p.advance(2)
			el.SelfClosing = true
			return el
		}
		if !p.parseAttr(el) {
			p.errorf(p.line, CodeMalformed, "malformed attribute in <%s>", el.Tag)
			p.next()
		}
	}

	if isVoidElement(el.Tag) {
		return el
	}

	children, why := p.parseNodes(false, block, true, foreign)
	el.Children = children
	switch why {
	case stopClose:
		line := p.line
		p.advance(2)
		name := p.readTagName()
		p.skipSpaces()
		if !p.eof() && p.src[p.pos] == '>' {
			p.next()
		}
		el.EndLine = line
		if name != el.Tag {
			p.errorf(line, CodeMismatchedClose, "closing tag </%s> does not match <%s> opened on line %d", name, el.Tag, el.Line)
		}
	default:
		p.errorf(el.Line, CodeUnclosedElement, "element <%s> is never closed", el.Tag)
	}
	return el
}

// parseAttr reads one attribute. It returns false without consuming input
// when no attribute name starts here.
func (p *parser) parseAttr(el *Element) bool {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if isSpace(c) || c == '=' || c == '>' || c == '/' || c == '"' || c == '\'' || c == '<' || c == '@' {
			break
		}
		p.next()
	}
	if p.pos == start {
		return false
	}
	attr := Attr{Name: p.src[start:p.pos], Kind: AttrBare, Line: p.line}

	if p.eof() || p.src[p.pos] != '=' {
		el.Attrs = append(el.Attrs, attr)
		return true
	}
	p.next()

	switch c := p.peek(0); {
	case c == '"' || c == '\'':
		line := p.line
		p.next()
		vstart := p.pos
		for !p.eof() && p.src[p.pos] != c {
			p.next()
		}
		if p.eof() {
			p.errorf(line, CodeUnterminatedQuote, "unterminated value for attribute %s", attr.Name)
			attr.Kind = AttrLiteral
			attr.Value = p.src[vstart:]
			el.Attrs = append(el.Attrs, attr)
			return true
		}
		attr.Kind = AttrLiteral
		attr.Value = p.src[vstart:p.pos]
		p.next()

	case c == '@':
		p.next()
		code, ok := p.parseExprCode()
		if !ok {
			return true
		}
		attr.Kind = AttrExpr
		attr.Value = code

	default:
		vstart := p.pos
		for !p.eof() && !isSpace(p.src[p.pos]) && p.src[p.pos] != '>' {
			if p.src[p.pos] == '/' && p.peek(1) == '>' {
				break
			}
			p.next()
		}
		attr.Kind = AttrLiteral
		attr.Value = p.src[vstart:p.pos]
	}
	el.Attrs = append(el.Attrs, attr)
	return true
}

// parseExprCode reads the expression after an '@': a parenthesized
// expression or a selector/call/index chain. An empty result with ok set
// means no expression starts here.
func (p *parser) parseExprCode() (string, bool) {
	if p.peek(0) == '(' {
		return p.scanBalanced("expression")
	}
	if !isIdentStart(p.peek(0)) {
		p.errorf(p.line, CodeMalformed, "expected an expression after @")
		return "", false
	}
	return p.scanChain()
}

func (p *parser) scanChain() (string, bool) {
	start := p.pos
	p.readIdent()
	for !p.eof() {
		switch c := p.src[p.pos]; {
		case c == '.' && isIdentStart(p.peek(1)):
			p.next()
			p.readIdent()
		case c == '(' || c == '[':
			if _, ok := p.scanBalanced("expression"); !ok {
				return "", false
			}
		default:
			return p.src[start:p.pos], true
		}
	}
	return p.src[start:p.pos], true
}

// parseAt handles an '@'. It returns either a node or literal text.
func (p *parser) parseAt(top, block, foreign bool) (Node, string) {
	line := p.line
	next := p.peek(1)

	switch {
	case next == '@':
		p.advance(2)
		return nil, "@"

	case next == '*':
		p.advance(2)
		end := strings.Index(p.src[p.pos:], "*@")
		if end < 0 {
			p.errorf(line, CodeUnterminatedQuote, "comment is never closed")
			p.advance(len(p.src) - p.pos)
			return nil, ""
		}
		p.advance(end + 2)
		return nil, ""

	case p.pos > 0 && isIdentChar(p.src[p.pos-1]):
		// e-mail addresses and the like
		p.next()
		return nil, "@"

	case next == '(':
		p.next()
		code, ok := p.scanBalanced("expression")
		if !ok {
			return nil, ""
		}
		return &Expr{Code: strings.TrimSpace(code), Line: line}, ""

	case isIdentStart(next):
		p.next()
		save, saveLine := p.pos, p.line
		word := p.readIdent()
		switch word {
		case "if":
			return p.parseIf(line, foreign), ""
		case "for":
			return p.parseFor(line, foreign), ""
		case "include":
			return p.parseInclude(line), ""
		case "page", "import", "param", "code":
			if !top {
				p.errorf(line, CodeMalformed, "@%s is only allowed at the top level", word)
				p.restOfLine()
				return nil, ""
			}
			p.parseDirective(word, line)
			return nil, ""
		case "else":
			p.errorf(line, CodeMalformed, "@else without a preceding @if")
			return nil, ""
		}
		p.pos, p.line = save, saveLine
		code, ok := p.scanChain()
		if !ok {
			return nil, ""
		}
		return &Expr{Code: code, Line: line}, ""
	}

	p.next()
	return nil, "@"
}

// scanBalanced consumes a bracketed Go fragment starting at the opening
// bracket and returns what is between the brackets.
func (p *parser) scanBalanced(what string) (string, bool) {
	line := p.line
	closers := []byte{closerOf(p.src[p.pos])}
	p.next()
	start := p.pos

	for !p.eof() {
		c := p.src[p.pos]
		switch c {
		case '"', '\'', '`':
			if !p.skipString() {
				return "", false
			}
			continue
		case '/':
			if p.peek(1) == '/' {
				for !p.eof() && p.src[p.pos] != '\n' {
					p.next()
				}
				continue
			}
			if p.peek(1) == '*' {
				cline := p.line
				end := strings.Index(p.src[p.pos+2:], "*/")
				if end < 0 {
					p.errorf(cline, CodeUnterminatedQuote, "comment is never closed")
					p.advance(len(p.src) - p.pos)
					return "", false
				}
				p.advance(end + 4)
				continue
			}
		case '(', '[', '{':
			closers = append(closers, closerOf(c))
		case ')', ']', '}':
			if c == closers[len(closers)-1] {
				closers = closers[:len(closers)-1]
				if len(closers) == 0 {
					body := p.src[start:p.pos]
					p.next()
					return body, true
				}
			}
		}
		p.next()
	}
	p.errorf(line, CodeUnterminated, "%s is never closed", what)
	return "", false
}

func closerOf(c byte) byte {
	switch c {
	case '(':
		return ')'
	case '[':
		return ']'
	}
	return '}'
}

// skipString consumes a Go string, rune or raw string literal.
func (p *parser) skipString() bool {
	line := p.line
	q := p.src[p.pos]
	p.next()
	for !p.eof() {
		c := p.src[p.pos]
		if c == '\\' && q != '`' {
			p.advance(2)
			continue
		}
		if c == '\n' && q != '`' {
			break
		}
		p.next()
		if c == q {
			return true
		}
	}
	p.errorf(line, CodeUnterminatedQuote, "string literal is never closed")
	return false
}

// scanHeader reads a Go condition or clause up to the '{' that opens the
// block, leaving the '{' in place. The brace must be on the same line.
func (p *parser) scanHeader(what string, line int) (string, bool) {
	start := p.pos
	for !p.eof() {
		switch c := p.src[p.pos]; c {
		case '{':
			return strings.TrimSpace(p.src[start:p.pos]), true
		case '"', '\'', '`':
			if !p.skipString() {
				return "", false
			}
		case '(', '[':
			if _, ok := p.scanBalanced(what); !ok {
				return "", false
			}
		case '\n':
			p.errorf(line, CodeUnterminated, "%s has no opening brace on its line", what)
			return "", false
		default:
			p.next()
		}
	}
	p.errorf(line, CodeUnterminated, "%s has no opening brace", what)
	return "", false
}

// parseBlock parses a brace-delimited markup body; p is on the '{'.
func (p *parser) parseBlock(what string, line int, foreign bool) ([]Node, int, bool) {
	p.next()
	var body []Node
	for {
		nodes, why := p.parseNodes(false, true, false, foreign)
		body = append(body, nodes...)
		switch why {
		case stopBrace:
			end := p.line
			p.next()
			return body, end, true
		case stopClose:
			p.unexpectedClose()
		default:
			p.errorf(line, CodeUnterminated, "%s block is never closed", what)
			return body, p.line, false
		}
	}
}

func (p *parser) parseIf(line int, foreign bool) Node {
	n := &If{}
	cond, ok := p.scanHeader("@if", line)
	if !ok {
		return &Text{Line: line}
	}
	if cond == "" {
		p.errorf(line, CodeMalformed, "@if needs a condition")
	}
	body, end, ok := p.parseBlock("@if", line, foreign)
	n.Branches = append(n.Branches, Branch{Cond: cond, Body: body, Line: line})
	n.EndLine = end
	if !ok {
		return n
	}

	for {
		save, saveLine := p.pos, p.line
		p.skipSpaces()
		if !strings.HasPrefix(p.src[p.pos:], "else") || isIdentChar(p.peek(4)) {
			p.pos, p.line = save, saveLine
			return n
		}
		elseLine := p.line
		p.advance(4)
		p.skipSpaces()

		if strings.HasPrefix(p.src[p.pos:], "if") && !isIdentChar(p.peek(2)) {
			p.advance(2)
			cond, ok := p.scanHeader("else if", elseLine)
			if !ok {
				return n
			}
			body, end, ok := p.parseBlock("else if", elseLine, foreign)
			n.Branches = append(n.Branches, Branch{Cond: cond, Body: body, Line: elseLine})
			n.EndLine = end
			if !ok {
				return n
			}
			continue
		}

		if p.peek(0) != '{' {
			p.errorf(elseLine, CodeUnterminated, "else has no opening brace")
			return n
		}
		body, end, _ := p.parseBlock("else", elseLine, foreign)
		n.Else = body
		n.ElseLine = elseLine
		n.EndLine = end
		return n
	}
}

func (p *parser) parseFor(line int, foreign bool) Node {
	clause, ok := p.scanHeader("@for", line)
	if !ok {
		return &Text{Line: line}
	}
	body, end, _ := p.parseBlock("@for", line, foreign)
	return &For{Clause: clause, Body: body, Line: line, EndLine: end}
}

func (p *parser) parseInclude(line int) Node {
	p.skipInlineSpaces()
	target, ok := p.readQuoted()
	if !ok {
		p.errorf(line, CodeMalformed, "@include needs a quoted path")
		return &Text{Line: line}
	}
	return &Include{Path: target, Line: line}
}

// readQuoted reads a Go string literal at the cursor.
func (p *parser) readQuoted() (string, bool) {
	if p.eof() || (p.src[p.pos] != '"' && p.src[p.pos] != '`') {
		return "", false
	}
	start := p.pos
	if !p.skipString() {
		return "", false
	}
	s, err := strconv.Unquote(p.src[start:p.pos])
	if err != nil {
		return "", false
	}
	return s, true
}

func (p *parser) parseDirective(word string, line int) {
	if word == "code" {
		p.parseCode(line)
		return
	}

	p.skipInlineSpaces()
	rest := strings.TrimSpace(p.restOfLine())

	switch word {
	case "page":
		route, err := strconv.Unquote(rest)
		if err != nil || route == "" {
			p.errorf(line, CodeMalformed, "@page needs a quoted route")
			return
		}
		// A unit's own @page wins over the injected one.
		p.doc.Page = &PageDirective{Route: route, Line: line}

	case "import":
		fields := strings.Fields(rest)
		var d ImportDirective
		switch len(fields) {
		case 1:
			d.Path = fields[0]
		case 2:
			d.Alias, d.Path = fields[0], fields[1]
		default:
			p.errorf(line, CodeMalformed, "@import needs a quoted path and an optional alias")
			return
		}
		path, err := strconv.Unquote(d.Path)
		if err != nil || path == "" || (d.Alias != "" && d.Alias != "_" && !isIdent(d.Alias)) {
			p.errorf(line, CodeMalformed, "malformed @import %s", rest)
			return
		}
		d.Path = path
		d.Line = line
		p.doc.Imports = append(p.doc.Imports, d)

	case "param":
		name, typ, _ := strings.Cut(rest, " ")
		typ = strings.TrimSpace(typ)
		if !isIdent(name) || typ == "" {
			p.errorf(line, CodeMalformed, "@param needs a name and a type")
			return
		}
		if reservedParams[name] {
			p.errorf(line, CodeReservedParam, "parameter name %q is reserved", name)
			return
		}
		for _, prev := range p.doc.Params {
			if prev.Name == name {
				p.errorf(line, CodeDuplicateParam, "parameter %s is already declared on line %d", name, prev.Line)
				return
			}
		}
		p.doc.Params = append(p.doc.Params, ParamDirective{Name: name, Type: typ, Line: line})
	}
}

func (p *parser) parseCode(line int) {
	p.skipInlineSpaces()
	if p.peek(0) != '{' {
		p.errorf(line, CodeMalformed, "@code needs a block")
		p.restOfLine()
		return
	}
	openLine := p.line
	body, ok := p.scanBalanced("@code block")
	if !ok {
		return
	}
	p.doc.Code = append(p.doc.Code, CodeBlock{Lines: strings.Split(body, "\n"), Line: openLine})

	// drop the rest of the closing line when it is blank
	save, saveLine := p.pos, p.line
	p.skipInlineSpaces()
	if p.eof() || p.src[p.pos] == '\n' {
		p.restOfLine()
		return
	}
	p.pos, p.line = save, saveLine
}
