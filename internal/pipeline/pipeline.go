// Package pipeline compiles a batch of component sources into a module.
//
// A compilation runs three steps over the batch. Declare transpiles every
// unit to its shape only; Link compiles those shapes into a temporary
// module; Resolve transpiles every unit in full, resolving component tags
// through the catalog and the temporary module. The resolved code is then
// compiled against the catalog alone. Only an error in Declare stops the
// batch early: later steps always run so the caller gets every diagnostic
// in one round trip.
package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/templc/internal/catalog"
	"github.com/conneroisu/templc/internal/diag"
	"github.com/conneroisu/templc/internal/emit"
	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/logging"
	"github.com/conneroisu/templc/internal/source"
	"github.com/conneroisu/templc/internal/transpile"
)

// File is one caller supplied source.
type File struct {
	Path string `json:"path" yaml:"path"`
	Text string `json:"text" yaml:"text"`
}

// Result is the outcome of a compilation. Module is nil exactly when
// Diagnostics holds an error.
type Result struct {
	Module      []byte            `json:"module"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
}

// Failed reports whether the compilation produced no module.
func (r *Result) Failed() bool {
	return r.Module == nil
}

// Prepare normalizes files into units, marks the root unit and indexes
// them. A path given twice keeps its first position and its last text.
// Two component units whose file names give the same Go type are an error.
func Prepare(files []File, o Options) ([]*source.Unit, *source.Provider, []diag.Diagnostic) {
	var diags []diag.Diagnostic
	units := make([]*source.Unit, 0, len(files))
	index := make(map[string]int, len(files))

	for _, f := range files {
		u := source.NewUnit(f.Path, f.Text)
		if i, ok := index[u.Path()]; ok {
			diags = append(diags, diag.FromTemplating(diag.TemplatingMessage{
				Code:     transpile.CodeDuplicateUnit,
				Severity: diag.SevWarning,
				Text:     fmt.Sprintf("%s is supplied more than once, using the last copy", u.Path()),
				File:     u.Path(),
			}))
			units[i] = u
			continue
		}
		index[u.Path()] = len(units)
		units = append(units, u)
	}

	diags = append(diags, typeCollisions(units)...)
	units = source.MarkRoot(units, o.RootPath)
	return units, source.NewProvider(units), diags
}

func typeCollisions(units []*source.Unit) []diag.Diagnostic {
	var diags []diag.Diagnostic
	owners := make(map[string]string, len(units))
	for _, u := range units {
		if u.Kind() != source.KindComponent {
			continue
		}
		name := transpile.TypeName(u.Path())
		if first, ok := owners[name]; ok {
			diags = append(diags, diag.FromTemplating(diag.TemplatingMessage{
				Code:     transpile.CodeTypeCollision,
				Severity: diag.SevError,
				Text:     fmt.Sprintf("%s and %s both define component %s; rename one of them", first, u.Path(), name),
				File:     u.Path(),
			}))
			continue
		}
		owners[name] = u.Path()
	}
	return diags
}

// Declare transpiles every component unit in declaration mode. Results are
// in input order.
func Declare(ctx context.Context, units []*source.Unit, provider *source.Provider, o Options) ([]*transpile.Result, []diag.Diagnostic, error) {
	return transpileAll(ctx, "declare", units, provider, transpile.ModeDeclaration, nil, o)
}

// Link compiles declaration output into the temporary module. Its
// reference is nil when the declarations did not type-check.
func Link(ctx context.Context, refs []catalog.Reference, declared []*transpile.Result, o Options) (*catalog.Reference, []diag.Diagnostic, error) {
	mod, diags, err := emit.Emit(ctx, emitUnits(declared), refs, emit.Options{
		PackagePath: o.PackagePath,
		Link:        true,
	})
	if err != nil {
		return nil, nil, err
	}
	return mod.Reference, diags, nil
}

// Resolve transpiles every component unit in full. Component tags resolve
// against refs and, when temp is set, against the batch's own components.
func Resolve(ctx context.Context, units []*source.Unit, provider *source.Provider, refs []catalog.Reference, temp *catalog.Reference, o Options) ([]*transpile.Result, []diag.Diagnostic, error) {
	shapes := transpile.NewShapes()
	for _, r := range refs {
		shapes.Add(r.Path(), r.Components()...)
	}
	if temp != nil {
		shapes.Add("", temp.Components()...)
	}
	return transpileAll(ctx, "resolve", units, provider, transpile.ModeFull, shapes, o)
}

// Compile runs the whole pipeline over files against cat. The error is
// reserved for cancellation and internal failures.
func Compile(ctx context.Context, cat *catalog.Catalog, files []File, opts ...Option) (*Result, error) {
	o := NewOptions(opts...)
	if cat == nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "compile needs a reference catalog")
	}
	return compile(ctx, cat, files, o)
}

func compile(ctx context.Context, cat *catalog.Catalog, files []File, o Options) (*Result, error) {
	logger := o.Logger.WithComponent("pipeline")
	perf := logging.StartOperation(logger, "compile")

	o.report(PhaseDeclaring)
	units, provider, prepDiags := Prepare(files, o)
	if !hasComponents(units) {
		o.report(PhaseDone)
		return &Result{Diagnostics: diag.Merge(prepDiags, []diag.Diagnostic{diag.FromTemplating(diag.TemplatingMessage{
			Code:     transpile.CodeEmptyBatch,
			Severity: diag.SevError,
			Text:     "no component sources were supplied",
		})})}, nil
	}

	declared, declDiags, err := Declare(ctx, units, provider, o)
	if err != nil {
		return nil, err
	}
	if diag.HasErrors(prepDiags) || diag.HasErrors(declDiags) {
		logger.Debug(ctx, "Declaration pass failed, skipping compilation",
			"units", len(units), "errors", diag.Count(declDiags, diag.SevError))
		o.report(PhaseDone)
		return &Result{Diagnostics: diag.Merge(prepDiags, declDiags)}, nil
	}

	refs := cat.References()

	o.report(PhaseLinking)
	temp, linkDiags, err := Link(ctx, refs, declared, o)
	if err != nil {
		return nil, err
	}
	if temp == nil {
		logger.Debug(ctx, "Temporary module unavailable, resolving against the catalog only")
	}

	o.report(PhaseResolving)
	resolved, resolveDiags, err := Resolve(ctx, units, provider, refs, temp, o)
	if err != nil {
		return nil, err
	}

	o.report(PhaseEmitting)
	mod, emitDiags, err := emit.Emit(ctx, emitUnits(resolved), refs, emit.Options{PackagePath: o.PackagePath})
	if err != nil {
		return nil, err
	}

	res := &Result{Diagnostics: diag.Merge(prepDiags, declDiags, linkDiags, resolveDiags, emitDiags)}
	if !diag.HasErrors(res.Diagnostics) {
		if mod.Reference == nil {
			return nil, errors.NewInternalError(errors.ErrCodeExportFailed,
				"compilation succeeded without producing a module", nil)
		}
		res.Module = mod.Reference.Bytes()
	}

	o.report(PhaseDone)
	perf.End(ctx, "units", len(units),
		"errors", diag.Count(res.Diagnostics, diag.SevError),
		"warnings", diag.Count(res.Diagnostics, diag.SevWarning),
		"module_bytes", len(res.Module))
	return res, nil
}

// transpileAll runs the transpiler over the component units of a batch,
// at most o.Jobs at a time.
func transpileAll(ctx context.Context, phase string, units []*source.Unit, provider *source.Provider, mode transpile.Mode, resolver transpile.Resolver, o Options) ([]*transpile.Result, []diag.Diagnostic, error) {
	if err := errors.Cancelled(ctx, phase); err != nil {
		return nil, nil, err
	}
	fn := o.transpile
	if fn == nil {
		fn = transpile.Transpile
	}
	topts := transpile.Options{PackageName: o.PackageName}

	var components []*source.Unit
	for _, u := range units {
		if u.Kind() == source.KindComponent {
			components = append(components, u)
		}
	}

	results := make([]*transpile.Result, len(components))
	g, gctx := errgroup.WithContext(ctx)
	if o.Jobs > 0 {
		g.SetLimit(o.Jobs)
	}
	for i, u := range components {
		g.Go(func() error {
			if err := errors.Cancelled(gctx, phase); err != nil {
				return err
			}
			results[i] = fn(u, source.TranspilerInput(u, o.RootRoute), mode, provider, resolver, topts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var diags []diag.Diagnostic
	for _, r := range results {
		diags = append(diags, r.Diagnostics...)
	}
	return results, diags, nil
}

func hasComponents(units []*source.Unit) bool {
	for _, u := range units {
		if u.Kind() == source.KindComponent {
			return true
		}
	}
	return false
}

func emitUnits(results []*transpile.Result) []emit.Unit {
	out := make([]emit.Unit, 0, len(results))
	for _, r := range results {
		out = append(out, emit.UnitFrom(r))
	}
	return out
}
