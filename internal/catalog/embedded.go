package catalog

import (
	"context"
	"embed"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/conneroisu/templc/internal/module"
)

//go:embed lib
var libFS embed.FS

// libPrefix is the import path prefix of the bundled library.
const libPrefix = "templc/"

// EmbeddedFetcher builds modules from the Go sources bundled with templc.
// Every call type-checks from scratch and shares nothing with other calls.
func EmbeddedFetcher() FetchFunc {
	return func(ctx context.Context, name string) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b := &libBuilder{
			fset:     token.NewFileSet(),
			pkgs:     make(map[string]*types.Package),
			building: make(map[string]bool),
		}
		pkg, err := b.Import(name)
		if err != nil {
			return nil, err
		}

		m, err := module.New(b.fset, pkg)
		if err != nil {
			return nil, err
		}
		m.Components = module.ComponentsOf(pkg)
		return m.Encode()
	}
}

// EmbeddedModules lists the module names EmbeddedFetcher can build.
func EmbeddedModules() []string {
	entries, err := fs.ReadDir(libFS, "lib")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, libPrefix+e.Name())
		}
	}
	sort.Strings(names)
	return names
}

type libBuilder struct {
	fset     *token.FileSet
	pkgs     map[string]*types.Package
	building map[string]bool
}

func (b *libBuilder) Import(importPath string) (*types.Package, error) {
	if pkg, ok := b.pkgs[importPath]; ok {
		return pkg, nil
	}
	if b.building[importPath] {
		return nil, fmt.Errorf("import cycle through %s", importPath)
	}
	if !strings.HasPrefix(importPath, libPrefix) {
		return nil, fmt.Errorf("module %s is not bundled", importPath)
	}

	dir := path.Join("lib", strings.TrimPrefix(importPath, libPrefix))
	entries, err := fs.ReadDir(libFS, dir)
	if err != nil {
		return nil, fmt.Errorf("module %s is not bundled", importPath)
	}

	b.building[importPath] = true
	defer delete(b.building, importPath)

	var files []*ast.File
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".gosrc" {
			continue
		}
		data, err := fs.ReadFile(libFS, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		f, err := parser.ParseFile(b.fset, importPath+"/"+e.Name(), data, parser.ParseComments)
		if err != nil {
			return nil, fmt.Errorf("parsing bundled module %s: %w", importPath, err)
		}
		files = append(files, f)
	}

	conf := types.Config{Importer: b}
	pkg, err := conf.Check(importPath, b.fset, files, nil)
	if err != nil {
		return nil, fmt.Errorf("checking bundled module %s: %w", importPath, err)
	}
	b.pkgs[importPath] = pkg
	return pkg, nil
}
