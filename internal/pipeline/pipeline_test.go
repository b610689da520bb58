package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/templc/internal/catalog"
	"github.com/conneroisu/templc/internal/diag"
	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/module"
	"github.com/conneroisu/templc/internal/source"
	"github.com/conneroisu/templc/internal/testutils"
	"github.com/conneroisu/templc/internal/transpile"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	return testutils.Catalog(t)
}

func codes(diags []diag.Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func TestCompile_ForwardComponentReference(t *testing.T) {
	cat := testCatalog(t)
	files := []File{
		{Path: "Page.tmpl", Text: `<Widget Count="1" />`},
		{Path: "Widget.tmpl", Text: "@param Count int\n<span>@Count</span>"},
	}

	res, err := Compile(context.Background(), cat, files)
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
	require.NotNil(t, res.Module)
	assert.False(t, res.Failed())

	m, err := module.Decode(res.Module)
	require.NoError(t, err)
	assert.Equal(t, "templc.local/app", m.Path)

	page, ok := m.Component("Page")
	require.True(t, ok)
	assert.Equal(t, "/", page.Route)
	widget, ok := m.Component("Widget")
	require.True(t, ok)
	assert.Equal(t, []module.Param{{Name: "Count", Type: "int"}}, widget.Params)

	var pageSrc string
	for _, s := range m.Sources {
		if s.Name == "Page.tmpl.go" {
			pageSrc = s.Code
		}
	}
	assert.Contains(t, pageSrc, "w.Component(&Widget{")
	assert.Contains(t, pageSrc, "Count: 1,")
}

func TestCompile_TemplatingErrorHalts(t *testing.T) {
	cat := testCatalog(t)

	res, err := Compile(context.Background(), cat, []File{{Path: "Page.tmpl", Text: "<Unclosed"}})
	require.NoError(t, err)
	assert.Nil(t, res.Module)
	require.NotEmpty(t, res.Diagnostics)

	d := res.Diagnostics[0]
	assert.Equal(t, transpile.CodeUnclosedElement, d.Code)
	assert.Equal(t, diag.SevError, d.Severity)
	assert.Equal(t, diag.OriginTemplating, d.Origin)
	assert.Equal(t, "/Page.tmpl", d.File)
}

func TestCompile_UndefinedSymbol(t *testing.T) {
	cat := testCatalog(t)

	res, err := Compile(context.Background(), cat, []File{{Path: "Page.tmpl", Text: "<p>@Foo</p>"}})
	require.NoError(t, err)
	assert.Nil(t, res.Module)
	require.Len(t, res.Diagnostics, 1)

	d := res.Diagnostics[0]
	assert.Equal(t, errors.CodeHostUndefined, d.Code)
	assert.Equal(t, diag.SevError, d.Severity)
	assert.Equal(t, diag.OriginHost, d.Origin)
	assert.Equal(t, "/Page.tmpl", d.File)
	assert.Equal(t, 1, d.Line)
	assert.Contains(t, d.Message, "Foo")
}

func TestCompile_DeclareErrorSkipsFullPass(t *testing.T) {
	cat := testCatalog(t)

	var declared, full atomic.Int32
	counting := func(unit *source.Unit, input string, mode transpile.Mode, provider *source.Provider, resolver transpile.Resolver, opts transpile.Options) *transpile.Result {
		if mode == transpile.ModeFull {
			full.Add(1)
		} else {
			declared.Add(1)
		}
		return transpile.Transpile(unit, input, mode, provider, resolver, opts)
	}

	files := []File{
		{Path: "A.tmpl", Text: "<div>"},
		{Path: "B.tmpl", Text: "<p>fine</p>"},
	}
	res, err := Compile(context.Background(), cat, files, withTranspiler(counting))
	require.NoError(t, err)
	assert.Nil(t, res.Module)
	assert.True(t, diag.HasErrors(res.Diagnostics))

	assert.Equal(t, int32(2), declared.Load())
	assert.Equal(t, int32(0), full.Load())
}

func TestCompile_Idempotent(t *testing.T) {
	cat := testCatalog(t)
	files := []File{
		{Path: "Page.tmpl", Text: "@import \"templc/ui\"\n<main>\n<Card Title=\"hi\" />\n<ui.Badge Label=\"new\" Count=\"3\" />\n</main>"},
		{Path: "Card.tmpl", Text: "@param Title string\n<section><h2>@Title</h2></section>"},
		{Path: "Footer.tmpl", Text: "<footer>@@templc</footer>"},
	}

	first, err := Compile(context.Background(), cat, files)
	require.NoError(t, err)
	second, err := Compile(context.Background(), cat, files)
	require.NoError(t, err)

	require.NotNil(t, first.Module)
	assert.Equal(t, first.Module, second.Module)
	assert.Equal(t, first.Diagnostics, second.Diagnostics)
}

func TestCompile_ModuleIffNoErrors(t *testing.T) {
	cat := testCatalog(t)

	tests := []struct {
		name  string
		files []File
	}{
		{name: "clean", files: []File{{Path: "A.tmpl", Text: "<p>a</p>"}}},
		{name: "warning only", files: []File{{Path: "A.tmpl", Text: "<Missing />"}}},
		{name: "templating error", files: []File{{Path: "A.tmpl", Text: "</p>"}}},
		{name: "host error", files: []File{{Path: "A.tmpl", Text: "<p>@(1 + \"x\")</p>"}}},
		{name: "unknown param", files: []File{
			{Path: "A.tmpl", Text: `<B Nope="1" />`},
			{Path: "B.tmpl", Text: "<p>b</p>"},
		}},
		{name: "bad param type", files: []File{{Path: "A.tmpl", Text: "@param X Missing\n<p></p>"}}},
		{name: "empty batch", files: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(context.Background(), cat, tt.files)
			require.NoError(t, err)
			assert.Equal(t, diag.HasErrors(res.Diagnostics), res.Module == nil, "diagnostics: %v", res.Diagnostics)
		})
	}
}

func TestCompile_LinkAndFinalErrorsAreMerged(t *testing.T) {
	cat := testCatalog(t)

	res, err := Compile(context.Background(), cat, []File{{Path: "A.tmpl", Text: "@param X Missing\n<p></p>"}})
	require.NoError(t, err)
	assert.Nil(t, res.Module)

	var undefined []diag.Diagnostic
	for _, d := range res.Diagnostics {
		if d.Code == errors.CodeHostUndefined {
			undefined = append(undefined, d)
		}
	}
	require.Len(t, undefined, 1, "got %v", res.Diagnostics)
	assert.Equal(t, 1, undefined[0].Line)
}

func TestCompile_EmptyBatch(t *testing.T) {
	cat := testCatalog(t)

	tests := []struct {
		name  string
		files []File
	}{
		{name: "no files", files: nil},
		{name: "imports only", files: []File{{Path: "_Imports.tmpl", Text: "@import \"templc/ui\""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(context.Background(), cat, tt.files)
			require.NoError(t, err)
			assert.Nil(t, res.Module)
			assert.Equal(t, []string{transpile.CodeEmptyBatch}, codes(res.Diagnostics))
		})
	}
}

func TestCompile_DuplicatePaths(t *testing.T) {
	cat := testCatalog(t)
	files := []File{
		{Path: "/A.tmpl", Text: "<p>@Foo</p>"},
		{Path: "B.tmpl", Text: "<p>b</p>"},
		{Path: "A.tmpl", Text: "<p>fixed</p>"},
	}

	res, err := Compile(context.Background(), cat, files)
	require.NoError(t, err)
	require.NotNil(t, res.Module)
	require.Equal(t, []string{transpile.CodeDuplicateUnit}, codes(res.Diagnostics))
	assert.Equal(t, diag.SevWarning, res.Diagnostics[0].Severity)
	assert.Equal(t, "/A.tmpl", res.Diagnostics[0].File)

	m, err := module.Decode(res.Module)
	require.NoError(t, err)
	require.Len(t, m.Sources, 2)
	assert.Equal(t, "A.tmpl.go", m.Sources[0].Name)
	assert.Contains(t, m.Sources[0].Code, "fixed")
}

func TestCompile_TypeNameCollision(t *testing.T) {
	cat := testCatalog(t)

	tests := []struct {
		name   string
		first  string
		second string
	}{
		{name: "same file name in two directories", first: "/a/Card.tmpl", second: "/b/Card.tmpl"},
		{name: "extra dotted suffix", first: "/my.tmpl", second: "/my.page.tmpl"},
		{name: "separators fold away", first: "/user-card.tmpl", second: "/user_card.tmpl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := []File{
				{Path: tt.first, Text: "<p>one</p>"},
				{Path: tt.second, Text: "<p>two</p>"},
			}

			res, err := Compile(context.Background(), cat, files)
			require.NoError(t, err)
			assert.Nil(t, res.Module)
			require.Equal(t, []string{transpile.CodeTypeCollision}, codes(res.Diagnostics))

			d := res.Diagnostics[0]
			assert.Equal(t, diag.SevError, d.Severity)
			assert.Equal(t, diag.OriginTemplating, d.Origin)
			assert.Equal(t, tt.second, d.File)
			assert.Contains(t, d.Message, tt.first)
			assert.Contains(t, d.Message, tt.second)
			assert.NotContains(t, d.Message, ".go")
		})
	}
}

func TestCompile_RootSelection(t *testing.T) {
	cat := testCatalog(t)
	files := []File{
		{Path: "A.tmpl", Text: "<p>a</p>"},
		{Path: "pages/B.tmpl", Text: "<p>b</p>"},
	}

	tests := []struct {
		name      string
		opts      []Option
		wantRoot  string
		wantRoute string
	}{
		{name: "first component by default", wantRoot: "A", wantRoute: "/"},
		{name: "configured root", opts: []Option{WithRoot("pages/B.tmpl", "/b")}, wantRoot: "B", wantRoute: "/b"},
		{name: "unknown root falls back", opts: []Option{WithRoot("nope.tmpl", "")}, wantRoot: "A", wantRoute: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(context.Background(), cat, files, tt.opts...)
			require.NoError(t, err)
			require.NotNil(t, res.Module, "diagnostics: %v", res.Diagnostics)

			m, err := module.Decode(res.Module)
			require.NoError(t, err)
			for _, c := range m.Components {
				if c.Name == tt.wantRoot {
					assert.Equal(t, tt.wantRoute, c.Route)
				} else {
					assert.Empty(t, c.Route, c.Name)
				}
			}
		})
	}
}

func TestCompile_HostLinesByRole(t *testing.T) {
	cat := testCatalog(t)
	files := []File{
		{Path: "Page.tmpl", Text: "<h1>title</h1>\n<p>@Foo</p>"},
		{Path: "Other.tmpl", Text: "<p>other</p>\n\n<p>@Bar</p>"},
	}

	tests := []struct {
		name string
		root string
	}{
		{name: "page is root", root: "Page.tmpl"},
		{name: "other is root", root: "Other.tmpl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compile(context.Background(), cat, files, WithRoot(tt.root, ""))
			require.NoError(t, err)
			require.Len(t, res.Diagnostics, 2)

			lines := map[string]int{}
			for _, d := range res.Diagnostics {
				assert.Equal(t, errors.CodeHostUndefined, d.Code)
				lines[d.File] = d.Line
			}
			assert.Equal(t, map[string]int{"/Page.tmpl": 2, "/Other.tmpl": 3}, lines)
		})
	}
}

func TestCompile_DiagnosticsFollowInputOrder(t *testing.T) {
	cat := testCatalog(t)

	var files []File
	var want []string
	for i := 7; i >= 0; i-- {
		p := fmt.Sprintf("/U%d.tmpl", i)
		files = append(files, File{Path: p, Text: "<Missing />"})
		want = append(want, p)
	}

	res, err := Compile(context.Background(), cat, files, WithJobs(4))
	require.NoError(t, err)
	require.NotNil(t, res.Module)

	var got []string
	for _, d := range res.Diagnostics {
		if d.Code == transpile.CodeUnknownComponent {
			got = append(got, d.File)
		}
	}
	assert.Equal(t, want, got)
}

func TestCompile_Progress(t *testing.T) {
	cat := testCatalog(t)

	tests := []struct {
		name  string
		files []File
		want  []string
	}{
		{
			name:  "full run",
			files: []File{{Path: "A.tmpl", Text: "<p>a</p>"}},
			want:  []string{"Preparing Project", "Linking Declarations", "Resolving Components", "Compiling Module", "Done"},
		},
		{
			name:  "halted in declare",
			files: []File{{Path: "A.tmpl", Text: "<p>"}},
			want:  []string{"Preparing Project", "Done"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			_, err := Compile(context.Background(), cat, tt.files, WithProgress(func(p Phase) {
				got = append(got, p.Label())
			}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_ProgressChan(t *testing.T) {
	cat := testCatalog(t)
	files := []File{{Path: "A.tmpl", Text: "<p>a</p>"}}

	ch := make(chan Phase, 8)
	_, err := Compile(context.Background(), cat, files, WithProgressChan(ch))
	require.NoError(t, err)
	close(ch)

	var got []Phase
	for p := range ch {
		got = append(got, p)
	}
	assert.Equal(t, []Phase{PhaseDeclaring, PhaseLinking, PhaseResolving, PhaseEmitting, PhaseDone}, got)

	// an unread channel never blocks the compilation
	blocked := make(chan Phase)
	res, err := Compile(context.Background(), cat, files, WithProgressChan(blocked))
	require.NoError(t, err)
	assert.NotNil(t, res.Module)
}

func TestCompile_Cancelled(t *testing.T) {
	cat := testCatalog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Compile(ctx, cat, []File{{Path: "A.tmpl", Text: "<p>a</p>"}})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompile_NilCatalog(t *testing.T) {
	_, err := Compile(context.Background(), nil, []File{{Path: "A.tmpl", Text: "<p>a</p>"}})
	require.Error(t, err)
}

func TestPhases(t *testing.T) {
	tests := []struct {
		phase Phase
		label string
		name  string
	}{
		{PhaseDeclaring, "Preparing Project", "declaring"},
		{PhaseLinking, "Linking Declarations", "linking"},
		{PhaseResolving, "Resolving Components", "resolving"},
		{PhaseEmitting, "Compiling Module", "emitting"},
		{PhaseDone, "Done", "done"},
		{Phase(42), "Unknown", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.label, tt.phase.Label())
		assert.Equal(t, tt.name, tt.phase.String())
	}
}

func TestPrepare(t *testing.T) {
	units, provider, diags := Prepare([]File{
		{Path: `pages\Home.tmpl`, Text: "\r\n  <p>home</p>\r\n"},
		{Path: "_Imports.tmpl", Text: "@import \"templc/ui\""},
	}, NewOptions())
	assert.Empty(t, diags)
	require.Len(t, units, 2)

	home := units[0]
	assert.Equal(t, "/pages/Home.tmpl", home.Path())
	assert.Equal(t, "<p>home</p>\n", home.Text())
	assert.Equal(t, source.RoleRoot, home.Role())
	assert.Equal(t, source.KindImports, units[1].Kind())
	assert.Equal(t, source.RoleComponent, units[1].Role())

	assert.True(t, provider.Resolve("pages/Home.tmpl").Exists())
	assert.False(t, provider.Resolve("/missing.tmpl").Exists())
}

func TestSteps(t *testing.T) {
	cat := testCatalog(t)
	refs := cat.References()
	o := NewOptions()
	ctx := context.Background()

	units, provider, _ := Prepare([]File{
		{Path: "Page.tmpl", Text: `<Widget Count="1" />`},
		{Path: "Widget.tmpl", Text: "@param Count int\n<span>@Count</span>"},
	}, o)

	declared, diags, err := Declare(ctx, units, provider, o)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, declared, 2)
	for _, r := range declared {
		assert.Equal(t, transpile.ModeDeclaration, r.Mode)
		assert.NotContains(t, r.Code, "w.Component(")
	}

	temp, diags, err := Link(ctx, refs, declared, o)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.NotNil(t, temp)
	assert.Equal(t, o.PackagePath, temp.Path())

	t.Run("with the temporary module", func(t *testing.T) {
		resolved, diags, err := Resolve(ctx, units, provider, refs, temp, o)
		require.NoError(t, err)
		assert.Empty(t, diags)
		require.Len(t, resolved, 2)
		assert.True(t, strings.Contains(resolved[0].Code, "w.Component(&Widget{"))
	})

	t.Run("without it", func(t *testing.T) {
		resolved, diags, err := Resolve(ctx, units, provider, refs, nil, o)
		require.NoError(t, err)
		require.Len(t, resolved, 2)
		assert.Equal(t, []string{transpile.CodeUnknownComponent}, codes(diags))
	})
}
