// Package source holds the in-memory component sources of one compilation
// request and the virtual provider the transpiler resolves them through.
package source

import (
	"fmt"
	"path"
	"strings"
)

// Ext is the file extension of component sources.
const Ext = ".tmpl"

// ImportsFileName is the base name of units that only contribute @import
// directives to the components in their directory and below.
const ImportsFileName = "_Imports" + Ext

// Kind is what a unit contributes to the compilation.
type Kind int

const (
	KindComponent Kind = iota
	KindImports
)

func (k Kind) String() string {
	if k == KindImports {
		return "imports"
	}
	return "component"
}

// Role distinguishes the single root/page unit from every other unit.
type Role int

const (
	RoleComponent Role = iota
	RoleRoot
)

func (r Role) String() string {
	if r == RoleRoot {
		return "root"
	}
	return "component"
}

// Unit is one normalized source text. It is immutable once constructed.
type Unit struct {
	path string
	text string
	kind Kind
	role Role
}

// NewUnit normalizes path and text and derives the unit kind from the
// file name.
func NewUnit(logicalPath, text string) *Unit {
	p := NormalizePath(logicalPath)
	kind := KindComponent
	if path.Base(p) == ImportsFileName {
		kind = KindImports
	}
	return &Unit{
		path: p,
		text: NormalizeText(text),
		kind: kind,
	}
}

func (u *Unit) Path() string { return u.path }
func (u *Unit) Text() string { return u.text }
func (u *Unit) Kind() Kind   { return u.kind }
func (u *Unit) Role() Role   { return u.role }

// Name is the file base name without extension.
func (u *Unit) Name() string {
	return strings.TrimSuffix(path.Base(u.path), path.Ext(u.path))
}

// Dir is the directory part of the logical path.
func (u *Unit) Dir() string {
	return path.Dir(u.path)
}

func (u *Unit) String() string {
	return fmt.Sprintf("%s (%s, %s)", u.path, u.kind, u.role)
}

// withRole returns a copy of u with a different role.
func (u *Unit) withRole(role Role) *Unit {
	c := *u
	c.role = role
	return &c
}

// NormalizePath turns a caller supplied path into a clean, slash separated
// path with a leading separator.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	return path.Clean("/" + p)
}

// NormalizeText strips carriage returns and leading whitespace.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimLeft(s, " \t\n\v\f")
}

// MarkRoot returns a copy of units in which exactly one component unit
// carries RoleRoot: the one at rootPath, or the first component unit when
// rootPath is empty or matches nothing.
func MarkRoot(units []*Unit, rootPath string) []*Unit {
	out := make([]*Unit, len(units))
	copy(out, units)

	idx := -1
	if rootPath != "" {
		want := NormalizePath(rootPath)
		for i, u := range out {
			if u.kind == KindComponent && u.path == want {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		for i, u := range out {
			if u.kind == KindComponent {
				idx = i
				break
			}
		}
	}

	for i, u := range out {
		switch {
		case i == idx:
			out[i] = u.withRole(RoleRoot)
		case u.role != RoleComponent:
			out[i] = u.withRole(RoleComponent)
		}
	}
	return out
}

// RouteDirective is the line injected ahead of the root unit's text.
func RouteDirective(route string) string {
	return fmt.Sprintf("@page %q\n", route)
}

// InjectedLines is the number of lines the pipeline puts in front of a
// unit of the given role.
func InjectedLines(role Role) int {
	if role == RoleRoot {
		return strings.Count(RouteDirective("/"), "\n")
	}
	return 0
}

// TranspilerInput is the text handed to the transpiler for u: the root
// unit gets the route directive, every other unit is untouched.
func TranspilerInput(u *Unit, route string) string {
	if u.role == RoleRoot {
		return RouteDirective(route) + u.text
	}
	return u.text
}
