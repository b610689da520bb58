package transpile

import (
	"github.com/conneroisu/templc/internal/module"
)

// Resolver tells the transpiler which components exist. An empty package
// path means the package being compiled.
type Resolver interface {
	Component(pkgPath, name string) (module.Component, bool)
}

// Shapes is a Resolver over component shapes collected from modules.
// It is filled before transpiling starts and only read afterwards.
type Shapes struct {
	byPkg map[string]map[string]module.Component
}

// NewShapes returns an empty shape set.
func NewShapes() *Shapes {
	return &Shapes{byPkg: make(map[string]map[string]module.Component)}
}

// Add registers the components of one package.
func (s *Shapes) Add(pkgPath string, comps ...module.Component) {
	m, ok := s.byPkg[pkgPath]
	if !ok {
		m = make(map[string]module.Component, len(comps))
		s.byPkg[pkgPath] = m
	}
	for _, c := range comps {
		m[c.Name] = c
	}
}

// Component implements Resolver.
func (s *Shapes) Component(pkgPath, name string) (module.Component, bool) {
	if s == nil {
		return module.Component{}, false
	}
	c, ok := s.byPkg[pkgPath][name]
	return c, ok
}

// Len is the number of registered components.
func (s *Shapes) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, m := range s.byPkg {
		n += len(m)
	}
	return n
}
