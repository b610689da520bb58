package module

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func checkPackage(t *testing.T, path, src string) (*token.FileSet, *types.Package) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "src.go", src, 0)
	require.NoError(t, err)
	pkg, err := (&types.Config{}).Check(path, fset, []*ast.File{file}, nil)
	require.NoError(t, err)
	return fset, pkg
}

func TestModule_EncodeDecodeLoad(t *testing.T) {
	fset, pkg := checkPackage(t, "templc.local/app", `package app

type Widget struct {
	Count int
	Label string
}

func (c *Widget) Route() string { return "/widget" }
`)

	m, err := New(fset, pkg)
	require.NoError(t, err)
	m.Components = []Component{{Name: "Widget", Route: "/widget", Params: []Param{{Name: "Count", Type: "int"}}}}
	m.Sources = []Source{{Name: "Widget.go", Code: "package app"}}

	data, err := m.Encode()
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "templc.local/app", back.Path)
	assert.Equal(t, "app", back.Name)
	assert.Empty(t, back.Imports)

	c, ok := back.Component("Widget")
	require.True(t, ok)
	assert.Equal(t, "/widget", c.Route)
	_, ok = back.Component("Missing")
	assert.False(t, ok)

	loaded, err := back.Load(token.NewFileSet(), make(map[string]*types.Package))
	require.NoError(t, err)
	obj := loaded.Scope().Lookup("Widget")
	require.NotNil(t, obj)
	st, ok := obj.Type().Underlying().(*types.Struct)
	require.True(t, ok)
	assert.Equal(t, 2, st.NumFields())
}

func TestModule_EncodeIsDeterministic(t *testing.T) {
	src := `package app

type A struct{ X int }
type B struct{ Y string }
`
	fset1, pkg1 := checkPackage(t, "templc.local/app", src)
	fset2, pkg2 := checkPackage(t, "templc.local/app", src)

	m1, err := New(fset1, pkg1)
	require.NoError(t, err)
	m2, err := New(fset2, pkg2)
	require.NoError(t, err)

	b1, err := m1.Encode()
	require.NoError(t, err)
	b2, err := m2.Encode()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode([]byte("not msgpack at all"))
	assert.Error(t, err)

	wrongFormat, err := msgpack.Marshal(&Module{Format: "other/v9", Path: "x"})
	require.NoError(t, err)
	_, err = Decode(wrongFormat)
	assert.ErrorContains(t, err, "unsupported module format")

	noPath, err := msgpack.Marshal(&Module{Format: Format})
	require.NoError(t, err)
	_, err = Decode(noPath)
	assert.ErrorContains(t, err, "no package path")
}
