package diag

import (
	"fmt"
	"go/scanner"
	"go/token"
	"go/types"
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/source"
)

// TemplatingMessage is what the transpiler reports about a unit. Line is
// one-based in the transpiler's input, zero when unknown.
type TemplatingMessage struct {
	Code     string
	Severity Severity
	Text     string
	File     string
	Line     int
}

// FromTemplating maps a transpiler message. Lines are taken as reported,
// so for the root unit they still count the injected route directive.
func FromTemplating(m TemplatingMessage) Diagnostic {
	return Diagnostic{
		Code:     m.Code,
		Severity: m.Severity,
		Message:  m.Text,
		File:     m.File,
		Line:     m.Line,
		Origin:   OriginTemplating,
	}
}

// ShiftLine converts a zero-based line of transpiler input into a one-based
// line of the caller's text. Units that received injected lines are shifted
// back by that many lines; the result never drops below 1.
func ShiftLine(mapped int, role source.Role, injected int) int {
	line := mapped + 1
	if role == source.RoleRoot {
		line -= injected
	}
	if line < 1 {
		return 1
	}
	return line
}

// GeneratedFile ties a generated Go file back to the unit it came from.
type GeneratedFile struct {
	Source   string
	Role     source.Role
	Injected int
	// Lines maps a one-based generated line to a zero-based line of
	// transpiler input. It returns false for lines the transpiler made up.
	Lines func(generated int) (int, bool)
}

// GeneratedFiles indexes generated files by the file name the Go parser saw.
type GeneratedFiles map[string]GeneratedFile

// FromTypeError maps a go/types error.
func FromTypeError(e types.Error, files GeneratedFiles) Diagnostic {
	var pos token.Position
	if e.Fset != nil && e.Pos.IsValid() {
		pos = e.Fset.Position(e.Pos)
	}
	return fromHost(pos, e.Msg, false, files)
}

// FromSyntaxError maps a go/parser error.
func FromSyntaxError(e *scanner.Error, files GeneratedFiles) Diagnostic {
	return fromHost(e.Pos, e.Msg, true, files)
}

// FromHostError maps whatever the host toolchain handed back: a types.Error,
// a scanner.Error, or a scanner.ErrorList (first entry). Anything else
// becomes an unlocated host error.
func FromHostError(err error, files GeneratedFiles) []Diagnostic {
	switch e := err.(type) {
	case types.Error:
		return []Diagnostic{FromTypeError(e, files)}
	case *scanner.Error:
		return []Diagnostic{FromSyntaxError(e, files)}
	case scanner.ErrorList:
		out := make([]Diagnostic, 0, len(e))
		for _, se := range e {
			out = append(out, FromSyntaxError(se, files))
		}
		return out
	}
	return []Diagnostic{fromHost(token.Position{}, err.Error(), false, nil)}
}

// AppendHostError maps err and appends the result to diags. go/types
// reports the other positions of an error as follow-up errors whose message
// starts with a tab; those are folded into the previous host diagnostic.
func AppendHostError(diags []Diagnostic, err error, files GeneratedFiles) []Diagnostic {
	te, ok := err.(types.Error)
	if !ok || !strings.HasPrefix(te.Msg, "\t") {
		return append(diags, FromHostError(err, files)...)
	}

	note := FromTypeError(te, files)
	note.Message = strings.TrimSpace(note.Message)
	if loc := note.location(); loc != "" {
		note.Message += " at " + loc
	}
	if n := len(diags); n > 0 && diags[n-1].Origin == OriginHost {
		diags[n-1].Message += "; " + note.Message
		return diags
	}
	return append(diags, note)
}

func fromHost(pos token.Position, msg string, syntax bool, files GeneratedFiles) Diagnostic {
	class := errors.ClassifyHost(msg, syntax)
	d := Diagnostic{
		Code:     class.Code,
		Severity: SevError,
		Message:  rewritePositions(msg, files),
		Origin:   OriginHost,
	}

	f, ok := files[pos.Filename]
	if !ok {
		d.File = pos.Filename
		return d
	}
	d.File = f.Source
	d.Line = f.sourceLine(pos.Line)
	return d
}

// sourceLine maps a generated line to a line of the caller's text, zero
// when the line has no source.
func (f GeneratedFile) sourceLine(generated int) int {
	if f.Lines == nil || generated <= 0 {
		return 0
	}
	mapped, ok := f.Lines(generated)
	if !ok {
		return 0
	}
	return ShiftLine(mapped, f.Role, f.Injected)
}

var generatedPosition = regexp.MustCompile(`([\w./-]+\.go):(\d+)(?::\d+)?`)

// rewritePositions replaces generated file positions quoted inside a host
// message with source positions.
func rewritePositions(msg string, files GeneratedFiles) string {
	if len(files) == 0 || !strings.Contains(msg, ".go:") {
		return msg
	}
	return generatedPosition.ReplaceAllStringFunc(msg, func(m string) string {
		parts := generatedPosition.FindStringSubmatch(m)
		f, ok := files[parts[1]]
		if !ok {
			return m
		}
		line, _ := strconv.Atoi(parts[2])
		if src := f.sourceLine(line); src > 0 {
			return fmt.Sprintf("%s:%d", f.Source, src)
		}
		return f.Source
	})
}

func (d Diagnostic) location() string {
	if d.File == "" {
		return ""
	}
	if d.HasLine() {
		return fmt.Sprintf("%s:%d", d.File, d.Line)
	}
	return d.File
}
