package diag

import (
	"encoding/json"
	"fmt"
	"go/scanner"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/source"
)

// identity maps generated line n to zero-based input line n-1.
func identity(n int) (int, bool) { return n - 1, true }

func TestShiftLine(t *testing.T) {
	tests := []struct {
		name     string
		mapped   int
		role     source.Role
		injected int
		want     int
	}{
		{"root unit keeps the mapped line", 5, source.RoleRoot, 1, 5},
		{"non-root unit adds one", 5, source.RoleComponent, 1, 6},
		{"non-root ignores the injected count", 5, source.RoleComponent, 3, 6},
		{"root with two injected lines", 5, source.RoleRoot, 2, 4},
		{"root injected line itself clamps to 1", 0, source.RoleRoot, 1, 1},
		{"non-root first line", 0, source.RoleComponent, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShiftLine(tt.mapped, tt.role, tt.injected))
		})
	}
}

func TestFromTypeError_RootVersusComponent(t *testing.T) {
	fset := token.NewFileSet()
	rootFile := fset.AddFile("Page.go", -1, 1000)
	compFile := fset.AddFile("Widget.go", -1, 1000)
	lines := make([]int, 0, 100)
	for i := 0; i < 100; i++ {
		lines = append(lines, i*10)
	}
	rootFile.SetLines(lines)
	compFile.SetLines(lines)

	files := GeneratedFiles{
		"Page.go":   {Source: "/Page.tmpl", Role: source.RoleRoot, Injected: source.InjectedLines(source.RoleRoot), Lines: identity},
		"Widget.go": {Source: "/Widget.tmpl", Role: source.RoleComponent, Lines: identity},
	}

	// Both errors sit on generated line 8, i.e. zero-based input line 7.
	rootErr := types.Error{Fset: fset, Pos: rootFile.LineStart(8), Msg: "undefined: Foo"}
	compErr := types.Error{Fset: fset, Pos: compFile.LineStart(8), Msg: "undefined: Foo"}

	root := FromTypeError(rootErr, files)
	comp := FromTypeError(compErr, files)

	assert.Equal(t, "/Page.tmpl", root.File)
	assert.Equal(t, 7, root.Line, "root unit: mapped line L stays L")
	assert.Equal(t, "/Widget.tmpl", comp.File)
	assert.Equal(t, 8, comp.Line, "non-root unit: mapped line L becomes L+1")

	for _, d := range []Diagnostic{root, comp} {
		assert.Equal(t, OriginHost, d.Origin)
		assert.Equal(t, SevError, d.Severity)
		assert.Equal(t, errors.CodeHostUndefined, d.Code)
	}
}

func TestFromTypeError_UnmappedLine(t *testing.T) {
	fset := token.NewFileSet()
	f := fset.AddFile("Page.go", -1, 100)
	f.SetLines([]int{0, 10, 20})

	files := GeneratedFiles{
		"Page.go": {Source: "/Page.tmpl", Lines: func(int) (int, bool) { return 0, false }},
	}
	d := FromTypeError(types.Error{Fset: fset, Pos: f.LineStart(2), Msg: "missing return"}, files)

	assert.Equal(t, "/Page.tmpl", d.File)
	assert.False(t, d.HasLine())
	assert.Equal(t, errors.CodeHostOther, d.Code)
}

func TestAppendHostError(t *testing.T) {
	fset := token.NewFileSet()
	first := fset.AddFile("a/Card.tmpl.go", -1, 1000)
	second := fset.AddFile("b/Card.tmpl.go", -1, 1000)
	lines := make([]int, 0, 100)
	for i := 0; i < 100; i++ {
		lines = append(lines, i*10)
	}
	first.SetLines(lines)
	second.SetLines(lines)

	files := GeneratedFiles{
		"a/Card.tmpl.go": {Source: "/a/Card.tmpl", Role: source.RoleComponent, Lines: identity},
		"b/Card.tmpl.go": {Source: "/b/Card.tmpl", Role: source.RoleComponent, Lines: identity},
	}

	t.Run("continuation folds into the previous error", func(t *testing.T) {
		var diags []Diagnostic
		diags = AppendHostError(diags, types.Error{Fset: fset, Pos: second.LineStart(3), Msg: "Card redeclared in this block"}, files)
		diags = AppendHostError(diags, types.Error{Fset: fset, Pos: first.LineStart(5), Msg: "\tother declaration of Card"}, files)

		require.Len(t, diags, 1)
		assert.Equal(t, "/b/Card.tmpl", diags[0].File)
		assert.Equal(t, 3, diags[0].Line)
		assert.Equal(t, "Card redeclared in this block; other declaration of Card at /a/Card.tmpl:5", diags[0].Message)
	})

	t.Run("generated positions in messages are mapped", func(t *testing.T) {
		diags := AppendHostError(nil, types.Error{
			Fset: fset,
			Pos:  second.LineStart(4),
			Msg:  "method Card.Render already declared at a/Card.tmpl.go:16:16",
		}, files)

		require.Len(t, diags, 1)
		assert.Equal(t, "method Card.Render already declared at /a/Card.tmpl:16", diags[0].Message)
		assert.NotContains(t, diags[0].Message, ".go")
	})

	t.Run("lone continuation stands alone", func(t *testing.T) {
		diags := AppendHostError(nil, types.Error{Fset: fset, Pos: first.LineStart(2), Msg: "\tother declaration of Card"}, files)

		require.Len(t, diags, 1)
		assert.Equal(t, "other declaration of Card at /a/Card.tmpl:2", diags[0].Message)
		assert.Equal(t, OriginHost, diags[0].Origin)
	})
}

func TestFromSyntaxError(t *testing.T) {
	files := GeneratedFiles{"Page.go": {Source: "/Page.tmpl", Role: source.RoleComponent, Lines: identity}}
	d := FromSyntaxError(&scanner.Error{Pos: token.Position{Filename: "Page.go", Line: 3}, Msg: "expected ';'"}, files)

	assert.Equal(t, errors.CodeHostSyntax, d.Code)
	assert.Equal(t, 3, d.Line)
	assert.Equal(t, "/Page.tmpl", d.File)
}

func TestFromHostError(t *testing.T) {
	list := scanner.ErrorList{
		{Pos: token.Position{Filename: "x.go", Line: 1}, Msg: "a"},
		{Pos: token.Position{Filename: "x.go", Line: 2}, Msg: "b"},
	}
	assert.Len(t, FromHostError(list, nil), 2)

	other := FromHostError(fmt.Errorf("could not import fmt (not in catalog)"), nil)
	require.Len(t, other, 1)
	assert.Equal(t, errors.CodeHostImport, other[0].Code)
	assert.Empty(t, other[0].File)
}

func TestFromTemplating(t *testing.T) {
	d := FromTemplating(TemplatingMessage{
		Code: "TPL0101", Severity: SevError, Text: "unclosed element <div>", File: "/Page.tmpl", Line: 2,
	})
	assert.Equal(t, OriginTemplating, d.Origin)
	assert.Equal(t, 2, d.Line, "templating lines are passed through unchanged")
	assert.Equal(t, "/Page.tmpl:2: error TPL0101: unclosed element <div>", d.String())
}

func TestDiagnostic_JSON(t *testing.T) {
	located := Diagnostic{Code: "GO2001", Severity: SevError, Message: "undefined: Foo", File: "/P.tmpl", Line: 4, Origin: OriginHost}
	unlocated := Diagnostic{Code: "GO2005", Severity: SevWarning, Message: "m", Origin: OriginHost}

	data, err := json.Marshal([]Diagnostic{located, unlocated})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"code":"GO2001","severity":"error","message":"undefined: Foo","file":"/P.tmpl","line":4,"origin":"host"},
		{"code":"GO2005","severity":"warning","message":"m","file":null,"line":null,"origin":"host"}
	]`, string(data))

	var back []Diagnostic
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []Diagnostic{located, unlocated}, back)
}

func TestDiagnostic_YAML(t *testing.T) {
	out, err := yaml.Marshal([]Diagnostic{{Code: "TPL0202", Severity: SevWarning, Message: "m"}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "severity: warning")
	assert.Contains(t, string(out), "line: null")
}

func TestHelpers(t *testing.T) {
	a := Diagnostic{Code: "A", Severity: SevInfo}
	b := Diagnostic{Code: "B", Severity: SevWarning}
	c := Diagnostic{Code: "C", Severity: SevError}

	assert.False(t, HasErrors([]Diagnostic{a, b}))
	assert.True(t, HasErrors([]Diagnostic{a, c}))
	assert.Equal(t, []Diagnostic{b, c}, AboveInfo([]Diagnostic{a, b, c}))
	assert.Equal(t, 1, Count([]Diagnostic{a, b, c, a}, SevWarning))
	assert.Equal(t, []Diagnostic{c, a, b}, Merge([]Diagnostic{c, a}, []Diagnostic{a, b, c}))
	assert.NotNil(t, Merge())
}
