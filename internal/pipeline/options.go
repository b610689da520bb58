package pipeline

import (
	"runtime"

	"github.com/conneroisu/templc/internal/emit"
	"github.com/conneroisu/templc/internal/logging"
	"github.com/conneroisu/templc/internal/source"
	"github.com/conneroisu/templc/internal/transpile"
)

// Phase is a step of the pipeline, reported to progress observers.
type Phase int

const (
	PhaseDeclaring Phase = iota
	PhaseLinking
	PhaseResolving
	PhaseEmitting
	PhaseDone
)

var phaseLabels = map[Phase]string{
	PhaseDeclaring: "Preparing Project",
	PhaseLinking:   "Linking Declarations",
	PhaseResolving: "Resolving Components",
	PhaseEmitting:  "Compiling Module",
	PhaseDone:      "Done",
}

// Label is the human readable name of the phase.
func (p Phase) Label() string {
	if l, ok := phaseLabels[p]; ok {
		return l
	}
	return "Unknown"
}

func (p Phase) String() string {
	switch p {
	case PhaseDeclaring:
		return "declaring"
	case PhaseLinking:
		return "linking"
	case PhaseResolving:
		return "resolving"
	case PhaseEmitting:
		return "emitting"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// TranspileFunc has the signature of transpile.Transpile.
type TranspileFunc func(unit *source.Unit, input string, mode transpile.Mode, provider *source.Provider, resolver transpile.Resolver, opts transpile.Options) *transpile.Result

// Options holds the settings of one compilation. Build it with NewOptions.
type Options struct {
	PackagePath string
	PackageName string
	RootPath    string
	RootRoute   string
	Jobs        int
	Logger      logging.Logger

	observers []func(Phase)
	transpile TranspileFunc
}

// Option configures Compile.
type Option func(*Options)

// WithPackage sets the import path and name of the compiled package.
func WithPackage(path, name string) Option {
	return func(o *Options) {
		if path != "" {
			o.PackagePath = path
		}
		if name != "" {
			o.PackageName = name
		}
	}
}

// WithRoot selects the root unit and the route injected into it.
func WithRoot(path, route string) Option {
	return func(o *Options) {
		o.RootPath = path
		if route != "" {
			o.RootRoute = route
		}
	}
}

// WithJobs bounds how many units are transpiled at once.
func WithJobs(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Jobs = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithProgress calls fn as each phase starts. fn runs on the compiling
// goroutine and must not block.
func WithProgress(fn func(Phase)) Option {
	return func(o *Options) {
		if fn != nil {
			o.observers = append(o.observers, fn)
		}
	}
}

// WithProgressChan sends each phase to ch. Sends never block: a phase is
// dropped when ch is full.
func WithProgressChan(ch chan<- Phase) Option {
	return WithProgress(func(p Phase) {
		select {
		case ch <- p:
		default:
		}
	})
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{
		PackagePath: emit.DefaultPackagePath,
		PackageName: transpile.DefaultPackageName,
		RootRoute:   "/",
		Jobs:        runtime.GOMAXPROCS(0),
		Logger:      logging.Discard(),
		transpile:   transpile.Transpile,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// withTranspiler replaces the transpiler, for tests that observe calls.
func withTranspiler(fn TranspileFunc) Option {
	return func(o *Options) {
		o.transpile = fn
	}
}

func (o *Options) report(p Phase) {
	for _, fn := range o.observers {
		fn(p)
	}
}
