package transpile

import "strings"

// SourceMap maps lines of generated Go back to transpiler input.
type SourceMap struct {
	lines map[int]int
}

// Lookup returns the zero-based input line of a one-based generated line.
// Lines the generator made up (package clause, braces) are not mapped.
func (m *SourceMap) Lookup(generated int) (int, bool) {
	if m == nil {
		return 0, false
	}
	l, ok := m.lines[generated]
	return l, ok
}

// Len is the number of mapped lines.
func (m *SourceMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.lines)
}

// writer builds generated code line by line, recording where each line
// came from.
type writer struct {
	buf    strings.Builder
	line   int
	indent int
	lines  map[int]int
	// pin maps every line to one input line while set; used for spliced
	// includes.
	pin int
}

func newWriter() *writer {
	return &writer{line: 1, lines: make(map[int]int)}
}

// emit writes one line. src is a one-based input line, 0 for none.
func (w *writer) emit(src int, code string) {
	if w.pin > 0 {
		src = w.pin
	}
	if src > 0 {
		w.lines[w.line] = src - 1
	}
	if code != "" {
		w.buf.WriteString(strings.Repeat("\t", w.indent))
		w.buf.WriteString(code)
	}
	w.buf.WriteByte('\n')
	w.line++
}

func (w *writer) blank() {
	w.emit(0, "")
}

func (w *writer) sourceMap() *SourceMap {
	return &SourceMap{lines: w.lines}
}

func (w *writer) String() string {
	return w.buf.String()
}
