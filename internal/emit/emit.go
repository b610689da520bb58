// Package emit compiles generated Go in memory and serializes the result
// into a module.
//
// Nothing here touches the filesystem or the catalog: the catalog's
// references are read through a request-scoped importer and the only output
// is the returned Module and its bytes.
package emit

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"

	"github.com/conneroisu/templc/internal/catalog"
	"github.com/conneroisu/templc/internal/diag"
	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/module"
	"github.com/conneroisu/templc/internal/source"
	"github.com/conneroisu/templc/internal/transpile"
)

// DefaultPackagePath is used when Options.PackagePath is empty.
const DefaultPackagePath = "templc.local/app"

// Unit is one generated Go file.
type Unit struct {
	Name      string
	Code      string
	Path      string
	Role      source.Role
	SourceMap *transpile.SourceMap
	Shape     module.Component
}

// UnitFrom adapts a transpile result.
func UnitFrom(r *transpile.Result) Unit {
	return Unit{
		Name:      r.FileName,
		Code:      r.Code,
		Path:      r.Unit.Path(),
		Role:      r.Unit.Role(),
		SourceMap: r.SourceMap,
		Shape:     r.Shape,
	}
}

// Options configures a compilation.
type Options struct {
	PackagePath string
	// Link compiles declaration code for the temporary module: function
	// bodies are skipped, soft errors such as unused imports are dropped,
	// and component shapes keep unexported params.
	Link bool
}

// Module is a compiled batch.
type Module struct {
	Package *types.Package
	Files   []*ast.File
	Fset    *token.FileSet
	// Reference is set once the module could be serialized.
	Reference *catalog.Reference

	units []Unit
	link  bool
}

// Emit parses and type-checks units against refs. Syntax errors stop the
// compilation before type checking. The module is serialized when the host
// compile reported no errors, and always when linking.
//
// The returned error is reserved for cancellation and for failures that
// are not the user's fault; everything else is a diagnostic.
func Emit(ctx context.Context, units []Unit, refs []catalog.Reference, opts Options) (*Module, []diag.Diagnostic, error) {
	if err := errors.Cancelled(ctx, "emit"); err != nil {
		return nil, nil, err
	}
	if opts.PackagePath == "" {
		opts.PackagePath = DefaultPackagePath
	}

	generated := make(diag.GeneratedFiles, len(units))
	for _, u := range units {
		generated[u.Name] = diag.GeneratedFile{
			Source:   u.Path,
			Role:     u.Role,
			Injected: source.InjectedLines(u.Role),
			Lines:    u.SourceMap.Lookup,
		}
	}

	fset := token.NewFileSet()
	files := make([]*ast.File, 0, len(units))
	var diags []diag.Diagnostic
	for _, u := range units {
		f, err := parser.ParseFile(fset, u.Name, u.Code, parser.AllErrors|parser.ParseComments)
		if err != nil {
			diags = append(diags, diag.FromHostError(err, generated)...)
			continue
		}
		files = append(files, f)
	}
	mod := &Module{Files: files, Fset: fset, units: units, link: opts.Link}
	if len(diags) > 0 {
		return mod, diag.AboveInfo(diags), nil
	}

	if err := errors.Cancelled(ctx, "emit"); err != nil {
		return nil, nil, err
	}

	conf := types.Config{
		Importer:         catalog.NewImporter(fset, refs),
		IgnoreFuncBodies: opts.Link,
		Error: func(err error) {
			if te, ok := err.(types.Error); ok && te.Soft && opts.Link {
				return
			}
			diags = diag.AppendHostError(diags, err, generated)
		},
	}
	// Check reports every problem through conf.Error; its return value
	// only repeats the first one.
	pkg, _ := conf.Check(opts.PackagePath, fset, files, nil)
	mod.Package = pkg
	diags = diag.AboveInfo(diags)

	if pkg == nil || (!opts.Link && diag.HasErrors(diags)) {
		return mod, diags, nil
	}

	data, err := Serialize(mod)
	if err != nil {
		if opts.Link {
			// A temporary module that cannot be written only costs
			// component resolution; the errors are already reported.
			return mod, diags, nil
		}
		return nil, diags, errors.WrapInternal(err, errors.ErrCodeExportFailed, "serializing module")
	}
	ref, err := catalog.NewReference(data)
	if err != nil {
		return nil, diags, errors.WrapInternal(err, errors.ErrCodeExportFailed, "reading back serialized module")
	}
	mod.Reference = &ref
	return mod, diags, nil
}

// Serialize writes mod as module bytes: export data, generated sources and
// component shapes with their routes.
func Serialize(mod *Module) (data []byte, err error) {
	if mod == nil || mod.Package == nil {
		return nil, fmt.Errorf("nothing to serialize")
	}
	// export data writers panic on some malformed packages
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("writing export data: %v", r)
		}
	}()

	m, err := module.New(mod.Fset, mod.Package)
	if err != nil {
		return nil, err
	}

	routes := make(map[string]string, len(mod.units))
	for _, u := range mod.units {
		m.Sources = append(m.Sources, module.Source{Name: u.Name, Code: u.Code})
		if u.Shape.Route != "" {
			routes[u.Shape.Name] = u.Shape.Route
		}
	}

	if mod.link {
		m.Components = module.LocalComponentsOf(mod.Package)
	} else {
		m.Components = module.ComponentsOf(mod.Package)
	}
	for i := range m.Components {
		m.Components[i].Route = routes[m.Components[i].Name]
	}
	return m.Encode()
}
