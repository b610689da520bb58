package catalog

import (
	"bytes"
	"fmt"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/gcexportdata"
)

// Importer resolves imports from reference export data. It belongs to one
// compilation: it decodes into its own FileSet and package map, so it is not
// safe for concurrent use and must not outlive the request.
type Importer struct {
	fset    *token.FileSet
	refs    map[string]Reference
	imports map[string]*types.Package
}

// NewImporter builds an importer over the given reference sets. A path that
// appears in more than one set resolves to the last one.
func NewImporter(fset *token.FileSet, sets ...[]Reference) *Importer {
	refs := make(map[string]Reference)
	for _, set := range sets {
		for _, r := range set {
			refs[r.path] = r
		}
	}
	return &Importer{
		fset:    fset,
		refs:    refs,
		imports: make(map[string]*types.Package),
	}
}

// Import implements types.Importer.
func (imp *Importer) Import(path string) (*types.Package, error) {
	if pkg, ok := imp.imports[path]; ok && pkg.Complete() {
		return pkg, nil
	}

	ref, ok := imp.refs[path]
	if !ok {
		return nil, fmt.Errorf("%s is not in the reference catalog", path)
	}

	pkg, err := gcexportdata.Read(bytes.NewReader(ref.exportData), imp.fset, imp.imports, path)
	if err != nil {
		return nil, fmt.Errorf("reading export data for %s: %w", path, err)
	}
	return pkg, nil
}

// Has reports whether path can be imported.
func (imp *Importer) Has(path string) bool {
	_, ok := imp.refs[path]
	return ok
}
