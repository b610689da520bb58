// Package module defines the binary module format templc emits and consumes.
//
// A module is a msgpack envelope around Go export data (as produced by
// gcexportdata.Write) plus the metadata a later compilation needs: the
// package path, the modules it imports, the generated sources and the shapes
// of the components it declares. Reference modules in the catalog and the
// modules returned by the pipeline share this format, so a compiled batch can
// serve as a dependency of another.
package module

import (
	"bytes"
	"fmt"
	"go/token"
	"go/types"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/tools/go/gcexportdata"
)

// Format identifies the envelope layout.
const Format = "templc/module/v1"

// Module is the decoded envelope.
type Module struct {
	Format     string      `msgpack:"format"`
	Path       string      `msgpack:"path"`
	Name       string      `msgpack:"name"`
	Imports    []string    `msgpack:"imports"`
	ExportData []byte      `msgpack:"export_data"`
	Sources    []Source    `msgpack:"sources,omitempty"`
	Components []Component `msgpack:"components,omitempty"`
}

// Source is one generated Go file.
type Source struct {
	Name string `msgpack:"name"`
	Code string `msgpack:"code"`
}

// Component describes a component type declared by the module.
type Component struct {
	Name   string  `msgpack:"name"`
	Route  string  `msgpack:"route,omitempty"`
	Params []Param `msgpack:"params,omitempty"`
}

// Param is one public component parameter.
type Param struct {
	Name string `msgpack:"name"`
	Type string `msgpack:"type"`
	// Text is set when the parameter's underlying type is a string, so
	// literal attribute values can be quoted.
	Text bool `msgpack:"text,omitempty"`
}

// New builds an envelope for a type-checked package, writing its export
// data. Imports are taken from the package and sorted.
func New(fset *token.FileSet, pkg *types.Package) (*Module, error) {
	var buf bytes.Buffer
	if err := gcexportdata.Write(&buf, fset, pkg); err != nil {
		return nil, fmt.Errorf("writing export data for %s: %w", pkg.Path(), err)
	}

	imports := make([]string, 0, len(pkg.Imports()))
	for _, imp := range pkg.Imports() {
		imports = append(imports, imp.Path())
	}
	sort.Strings(imports)

	return &Module{
		Format:     Format,
		Path:       pkg.Path(),
		Name:       pkg.Name(),
		Imports:    imports,
		ExportData: buf.Bytes(),
	}, nil
}

// Encode serializes the envelope.
func (m *Module) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding module %s: %w", m.Path, err)
	}
	return buf.Bytes(), nil
}

// Decode parses an envelope and checks its format.
func Decode(data []byte) (*Module, error) {
	var m Module
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding module: %w", err)
	}
	if m.Format != Format {
		return nil, fmt.Errorf("unsupported module format %q", m.Format)
	}
	if m.Path == "" {
		return nil, fmt.Errorf("module has no package path")
	}
	return &m, nil
}

// Load decodes the export data into a package. Packages it references are
// created in, or taken from, imports.
func (m *Module) Load(fset *token.FileSet, imports map[string]*types.Package) (*types.Package, error) {
	pkg, err := gcexportdata.Read(bytes.NewReader(m.ExportData), fset, imports, m.Path)
	if err != nil {
		return nil, fmt.Errorf("reading export data for %s: %w", m.Path, err)
	}
	return pkg, nil
}

// Component looks up a declared component by type name.
func (m *Module) Component(name string) (Component, bool) {
	for _, c := range m.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}

// RuntimePath is the import path of the templating runtime every component
// renders through.
const RuntimePath = "templc/runtime"

// ComponentsOf lists the struct types of pkg that are components: exported
// types whose pointer has a method Render(*runtime.Buffer) error. Params are
// the exported struct fields in declaration order. Routes are left empty.
func ComponentsOf(pkg *types.Package) []Component {
	return componentsOf(pkg, false)
}

// LocalComponentsOf is ComponentsOf as seen from inside pkg: unexported
// fields are params too.
func LocalComponentsOf(pkg *types.Package) []Component {
	return componentsOf(pkg, true)
}

func componentsOf(pkg *types.Package, unexported bool) []Component {
	scope := pkg.Scope()
	var out []Component
	for _, name := range scope.Names() {
		tn, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !tn.Exported() || tn.IsAlias() {
			continue
		}
		named, ok := tn.Type().(*types.Named)
		if !ok {
			continue
		}
		st, ok := named.Underlying().(*types.Struct)
		if !ok || !isComponent(named) {
			continue
		}
		c := Component{Name: name}
		for i := 0; i < st.NumFields(); i++ {
			f := st.Field(i)
			if f.Embedded() || (!f.Exported() && !unexported) {
				continue
			}
			c.Params = append(c.Params, Param{
				Name: f.Name(),
				Type: types.TypeString(f.Type(), types.RelativeTo(pkg)),
				Text: isText(f.Type()),
			})
		}
		out = append(out, c)
	}
	return out
}

func isComponent(named *types.Named) bool {
	obj, _, _ := types.LookupFieldOrMethod(types.NewPointer(named), false, named.Obj().Pkg(), "Render")
	fn, ok := obj.(*types.Func)
	if !ok {
		return false
	}
	sig := fn.Type().(*types.Signature)
	if sig.Params().Len() != 1 || sig.Results().Len() != 1 {
		return false
	}
	ptr, ok := sig.Params().At(0).Type().(*types.Pointer)
	if !ok {
		return false
	}
	buf, ok := ptr.Elem().(*types.Named)
	if !ok || buf.Obj().Name() != "Buffer" || buf.Obj().Pkg() == nil || buf.Obj().Pkg().Path() != RuntimePath {
		return false
	}
	return types.Identical(sig.Results().At(0).Type(), types.Universe.Lookup("error").Type())
}

func isText(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsString != 0
}
