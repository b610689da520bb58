package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnit_Normalization(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		text     string
		wantPath string
		wantText string
		wantKind Kind
	}{
		{
			name:     "relative path gets leading slash",
			path:     "Page.tmpl",
			text:     "<p>hi</p>",
			wantPath: "/Page.tmpl",
			wantText: "<p>hi</p>",
			wantKind: KindComponent,
		},
		{
			name:     "carriage returns and leading whitespace",
			path:     "/a/Widget.tmpl",
			text:     "\r\n  <p>\r\nx</p>\r\n",
			wantPath: "/a/Widget.tmpl",
			wantText: "<p>\nx</p>\n",
			wantKind: KindComponent,
		},
		{
			name:     "backslashes and dots",
			path:     `shared\..\shared\Card.tmpl`,
			text:     "",
			wantPath: "/shared/Card.tmpl",
			wantText: "",
			wantKind: KindComponent,
		},
		{
			name:     "imports unit",
			path:     "/a/_Imports.tmpl",
			text:     `@import "templc/ui"`,
			wantPath: "/a/_Imports.tmpl",
			wantText: `@import "templc/ui"`,
			wantKind: KindImports,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUnit(tt.path, tt.text)
			assert.Equal(t, tt.wantPath, u.Path())
			assert.Equal(t, tt.wantText, u.Text())
			assert.Equal(t, tt.wantKind, u.Kind())
			assert.Equal(t, RoleComponent, u.Role())
		})
	}
}

func TestUnit_Name(t *testing.T) {
	assert.Equal(t, "Page", NewUnit("/x/Page.tmpl", "").Name())
	assert.Equal(t, "/x", NewUnit("/x/Page.tmpl", "").Dir())
}

func TestMarkRoot(t *testing.T) {
	imports := NewUnit("/_Imports.tmpl", "")
	page := NewUnit("/Page.tmpl", "")
	widget := NewUnit("/Widget.tmpl", "")
	units := []*Unit{imports, page, widget}

	t.Run("explicit root", func(t *testing.T) {
		marked := MarkRoot(units, "Widget.tmpl")
		assert.Equal(t, RoleComponent, marked[1].Role())
		assert.Equal(t, RoleRoot, marked[2].Role())
		// originals untouched
		assert.Equal(t, RoleComponent, widget.Role())
	})

	t.Run("first component when unset", func(t *testing.T) {
		marked := MarkRoot(units, "")
		assert.Equal(t, RoleComponent, marked[0].Role())
		assert.Equal(t, RoleRoot, marked[1].Role())
	})

	t.Run("first component when missing", func(t *testing.T) {
		marked := MarkRoot(units, "/Nope.tmpl")
		assert.Equal(t, RoleRoot, marked[1].Role())
	})

	t.Run("remarking clears the previous root", func(t *testing.T) {
		marked := MarkRoot(MarkRoot(units, "/Page.tmpl"), "/Widget.tmpl")
		assert.Equal(t, RoleComponent, marked[1].Role())
		assert.Equal(t, RoleRoot, marked[2].Role())
	})
}

func TestTranspilerInput(t *testing.T) {
	units := MarkRoot([]*Unit{NewUnit("/Page.tmpl", "<p/>"), NewUnit("/Widget.tmpl", "<b/>")}, "")

	assert.Equal(t, "@page \"/main\"\n<p/>", TranspilerInput(units[0], "/main"))
	assert.Equal(t, "<b/>", TranspilerInput(units[1], "/main"))
	assert.Equal(t, 1, InjectedLines(RoleRoot))
	assert.Equal(t, 0, InjectedLines(RoleComponent))
}

func TestProvider(t *testing.T) {
	page := NewUnit("/a/b/Page.tmpl", "")
	rootImports := NewUnit("/_Imports.tmpl", "")
	leafImports := NewUnit("/a/b/_Imports.tmpl", "")
	p := NewProvider([]*Unit{page, rootImports, leafImports})

	h := p.Resolve("a/b/Page.tmpl")
	require.True(t, h.Exists())
	assert.Same(t, page, h.Unit())

	missing := p.Resolve("/a/Missing.tmpl")
	assert.False(t, missing.Exists())
	assert.Nil(t, missing.Unit())
	assert.Equal(t, Absent, missing)

	assert.Empty(t, p.Enumerate("/"))
	assert.NotNil(t, p.Enumerate("/a"))

	assert.Equal(t, []*Unit{rootImports, leafImports}, p.ImportsChain("/a/b/Page.tmpl"))
	assert.Equal(t, []*Unit{rootImports}, p.ImportsChain("/Top.tmpl"))

	var nilProvider *Provider
	assert.False(t, nilProvider.Resolve("/x").Exists())
}
