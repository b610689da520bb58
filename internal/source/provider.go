package source

import (
	"path"
	"strings"
)

// Handle is the result of resolving a logical path. A handle for a path
// that was not supplied is absent rather than an error; the transpiler
// decides whether that matters.
type Handle struct {
	unit *Unit
}

// Absent is the handle returned for unknown paths.
var Absent = Handle{}

func (h Handle) Exists() bool { return h.unit != nil }
func (h Handle) Unit() *Unit  { return h.unit }

// Provider stands in for a filesystem over the units of one request.
// It is read-only after construction and safe for concurrent use.
type Provider struct {
	units map[string]*Unit
}

// NewProvider indexes units by logical path. Later units win on duplicate
// paths.
func NewProvider(units []*Unit) *Provider {
	m := make(map[string]*Unit, len(units))
	for _, u := range units {
		m[u.path] = u
	}
	return &Provider{units: m}
}

// Resolve looks up a single logical path.
func (p *Provider) Resolve(logicalPath string) Handle {
	if p == nil {
		return Absent
	}
	if u, ok := p.units[NormalizePath(logicalPath)]; ok {
		return Handle{unit: u}
	}
	return Absent
}

// Enumerate never lists anything: the provider only answers direct lookups.
func (p *Provider) Enumerate(basePath string) []*Unit {
	return []*Unit{}
}

// ImportsChain returns the imports units that apply to the unit at
// logicalPath, outermost directory first. Missing levels are skipped.
func (p *Provider) ImportsChain(logicalPath string) []*Unit {
	dir := path.Dir(NormalizePath(logicalPath))

	var dirs []string
	for {
		dirs = append(dirs, dir)
		if dir == "/" {
			break
		}
		dir = path.Dir(dir)
	}

	var chain []*Unit
	for i := len(dirs) - 1; i >= 0; i-- {
		h := p.Resolve(strings.TrimSuffix(dirs[i], "/") + "/" + ImportsFileName)
		if h.Exists() {
			chain = append(chain, h.Unit())
		}
	}
	return chain
}
