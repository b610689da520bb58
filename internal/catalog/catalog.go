// Package catalog holds the reference modules every compilation in the
// process builds against.
//
// A Catalog is created once at startup by Initialize, which fetches a fixed
// set of root modules and the modules they declare as dependencies. After
// that it is immutable and shared by all concurrent requests. Requests never
// share decoded type information: each one builds its own importer over the
// catalog's bytes.
package catalog

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/logging"
	"github.com/conneroisu/templc/internal/module"
)

// DefaultRoots are the modules fetched when no roots are configured. Their
// declared imports cover the rest of the baseline.
var DefaultRoots = []string{"templc/ui", "templc/runtime"}

// FetchFunc retrieves the encoded module with the given name. A non-nil
// error aborts catalog initialization.
type FetchFunc func(ctx context.Context, name string) ([]byte, error)

// Reference is a compiler-consumable handle on one module.
type Reference struct {
	path       string
	name       string
	imports    []string
	components []module.Component
	exportData []byte
	raw        []byte
}

// NewReference wraps an encoded module.
func NewReference(data []byte) (Reference, error) {
	m, err := module.Decode(data)
	if err != nil {
		return Reference{}, err
	}
	return Reference{
		path:       m.Path,
		name:       m.Name,
		imports:    m.Imports,
		components: m.Components,
		exportData: m.ExportData,
		raw:        data,
	}, nil
}

func (r Reference) Path() string { return r.path }
func (r Reference) Name() string { return r.name }
func (r Reference) Size() int    { return len(r.raw) }

// Imports returns the paths this module depends on.
func (r Reference) Imports() []string {
	return append([]string(nil), r.imports...)
}

// Components returns the component shapes the module declares.
func (r Reference) Components() []module.Component {
	return append([]module.Component(nil), r.components...)
}

// Bytes returns a copy of the encoded module.
func (r Reference) Bytes() []byte {
	return append([]byte(nil), r.raw...)
}

// Catalog is the immutable baseline reference set.
type Catalog struct {
	refs   []Reference
	byPath map[string]int
}

// Option configures Initialize.
type Option func(*options)

type options struct {
	roots  []string
	logger logging.Logger
}

// WithRoots replaces DefaultRoots.
func WithRoots(roots ...string) Option {
	return func(o *options) {
		if len(roots) > 0 {
			o.roots = roots
		}
	}
}

// WithLogger sets the logger used during initialization.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Initialize fetches the root modules, then every module they import that
// is not a root, each exactly once. All fetches of a round run concurrently
// and the first failure aborts the whole initialization.
func Initialize(ctx context.Context, fetch FetchFunc, opts ...Option) (*Catalog, error) {
	o := options{roots: DefaultRoots, logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.WithComponent("catalog")

	roots := dedupe(o.roots)
	fetched, err := fetchAll(ctx, fetch, roots)
	if err != nil {
		logger.Error(ctx, err, "Fetching root modules failed", "roots", roots)
		return nil, err
	}

	var deps []string
	for _, name := range roots {
		for _, imp := range fetched[name].imports {
			if _, ok := fetched[imp]; !ok {
				deps = append(deps, imp)
			}
		}
	}
	deps = dedupe(deps)
	sort.Strings(deps)

	more, err := fetchAll(ctx, fetch, deps)
	if err != nil {
		logger.Error(ctx, err, "Fetching dependency modules failed", "dependencies", deps)
		return nil, err
	}
	for name, ref := range more {
		fetched[name] = ref
	}

	refs := make([]Reference, 0, len(fetched))
	for _, ref := range fetched {
		refs = append(refs, ref)
	}
	cat := New(refs...)

	logger.Info(ctx, "Reference catalog initialized", "modules", len(refs), "roots", len(roots))
	return cat, nil
}

// New builds a catalog directly from references. Initialize is the usual
// way in; New serves tests and callers that already hold module bytes.
func New(refs ...Reference) *Catalog {
	sorted := make([]Reference, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].path < sorted[j].path })

	byPath := make(map[string]int, len(sorted))
	for i, r := range sorted {
		byPath[r.path] = i
	}
	return &Catalog{refs: sorted, byPath: byPath}
}

// References returns the baseline reference set sorted by path.
func (c *Catalog) References() []Reference {
	out := make([]Reference, len(c.refs))
	copy(out, c.refs)
	return out
}

// Lookup finds a reference by package path.
func (c *Catalog) Lookup(path string) (Reference, bool) {
	i, ok := c.byPath[path]
	if !ok {
		return Reference{}, false
	}
	return c.refs[i], true
}

// Len is the number of modules in the catalog.
func (c *Catalog) Len() int {
	return len(c.refs)
}

func fetchAll(ctx context.Context, fetch FetchFunc, names []string) (map[string]Reference, error) {
	out := make(map[string]Reference, len(names))
	if len(names) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			data, err := fetch(gctx, name)
			if err != nil {
				return errors.FetchError(name, err)
			}
			ref, err := NewReference(data)
			if err != nil {
				return errors.ModuleError(name, "reference module is not a valid module", err)
			}
			if ref.path != name {
				return errors.NewBuildError(errors.ErrCodeModuleFormat,
					"fetched module declares path "+ref.path, nil).WithModule(name)
			}
			mu.Lock()
			out[name] = ref
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
