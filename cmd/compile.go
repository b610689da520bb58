package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/templc/internal/diag"
	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/pipeline"
	"github.com/conneroisu/templc/internal/watcher"
)

var (
	compileOut    string
	compileFormat string
	compileRoot   string
	compileRoute  string
)

// errCompileFailed makes the process exit non-zero after the diagnostics
// have been printed.
var errCompileFailed = errors.NewBuildError(errors.ErrCodeCompileFailed, "compilation failed", nil)

var compileCmd = &cobra.Command{
	Use:   "compile [files or directories...]",
	Short: "Compile component sources into a module",
	Long: `Compile a batch of .tmpl sources into a single module.

Directories are walked recursively; hidden entries are skipped. Logical
paths are relative to the directory with a leading slash. A file given
directly keeps its relative path.

Examples:
  templc compile ./components --out app.mod
  templc compile Page.tmpl Card.tmpl --format json
  templc compile ./components --root /Home.tmpl --route /home`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().StringVarP(&compileOut, "out", "o", "", "write the module to this file")
	compileCmd.Flags().StringVarP(&compileFormat, "format", "f", "text", "diagnostic output format (text, json, yaml)")
	compileCmd.Flags().StringVar(&compileRoot, "root", "", "logical path of the root unit")
	compileCmd.Flags().StringVar(&compileRoute, "route", "", "route injected into the root unit")
}

func runCompile(cmd *cobra.Command, args []string) error {
	if err := validateFormat(compileFormat); err != nil {
		return err
	}

	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	env, err := setup(cmd)
	if err != nil {
		return err
	}

	var extra []pipeline.Option
	if compileRoot != "" || compileRoute != "" {
		extra = append(extra, pipeline.WithRoot(compileRoot, compileRoute))
	}
	res, err := pipeline.Compile(cmd.Context(), env.catalog, files, compileOptions(env.cfg, env.logger, extra...)...)
	if err != nil {
		return err
	}

	if !res.Failed() && compileOut != "" {
		if err := os.WriteFile(compileOut, res.Module, 0o644); err != nil {
			return errors.WrapIO(err, errors.ErrCodeFileWriteFailed, "writing module")
		}
	}

	if err := writeReport(cmd.OutOrStdout(), compileFormat, newReport(res, compileOut)); err != nil {
		return err
	}
	if res.Failed() {
		return errCompileFailed
	}
	return nil
}

// collectFiles reads every argument. Directories contribute all sources
// below them.
func collectFiles(args []string) ([]pipeline.File, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "resolving working directory")
	}

	var files []pipeline.File
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "reading sources")
		}

		if info.IsDir() {
			dirFiles, err := watcher.CollectSources(arg)
			if err != nil {
				return nil, err
			}
			files = append(files, dirFiles...)
			continue
		}

		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, errors.WrapIO(err, errors.ErrCodeFileNotFound, "reading sources")
		}
		files = append(files, pipeline.File{Path: logicalPath(wd, arg), Text: string(data)})
	}
	return files, nil
}

// logicalPath names a file argument inside the batch. Absolute paths below
// wd are made relative to it; other absolute paths are kept whole so two
// files never share a name.
func logicalPath(wd, name string) string {
	if filepath.IsAbs(name) {
		if rel, err := filepath.Rel(wd, name); err == nil && filepath.IsLocal(rel) {
			name = rel
		}
	}
	return "/" + strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "/")
}

// report is the printable outcome of one compilation.
type report struct {
	Failed      bool              `json:"failed"      yaml:"failed"`
	ModuleSize  int               `json:"module_size" yaml:"module_size"`
	Output      string            `json:"output,omitempty" yaml:"output,omitempty"`
	Errors      int               `json:"errors"      yaml:"errors"`
	Warnings    int               `json:"warnings"    yaml:"warnings"`
	Diagnostics []diag.Diagnostic `json:"diagnostics" yaml:"diagnostics"`
}

func newReport(res *pipeline.Result, out string) report {
	r := report{
		Failed:      res.Failed(),
		ModuleSize:  len(res.Module),
		Errors:      diag.Count(res.Diagnostics, diag.SevError),
		Warnings:    diag.Count(res.Diagnostics, diag.SevWarning),
		Diagnostics: res.Diagnostics,
	}
	if r.Diagnostics == nil {
		r.Diagnostics = []diag.Diagnostic{}
	}
	if !r.Failed {
		r.Output = out
	}
	return r
}

func validateFormat(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("unsupported format: %s (supported: text, json, yaml)", format))
	}
}

func writeReport(w io.Writer, format string, r report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		writeText(w, r)
		return nil
	}
}

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	okColor      = color.New(color.FgGreen, color.Bold)
)

func severityColor(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return errorColor
	case diag.SevWarning:
		return warningColor
	default:
		return infoColor
	}
}

func writeText(w io.Writer, r report) {
	for _, d := range r.Diagnostics {
		loc := d.File
		if d.HasLine() {
			loc = fmt.Sprintf("%s:%d", d.File, d.Line)
		}
		if loc != "" {
			fmt.Fprintf(w, "%s: ", loc)
		}
		severityColor(d.Severity).Fprintf(w, "%s %s", d.Severity, d.Code)
		fmt.Fprintf(w, ": %s\n", d.Message)
	}

	if r.Failed {
		errorColor.Fprintf(w, "✗ %d error(s), %d warning(s)\n", r.Errors, r.Warnings)
		return
	}
	okColor.Fprintf(w, "✓ compiled %d bytes", r.ModuleSize)
	fmt.Fprintf(w, ", %d warning(s)", r.Warnings)
	if r.Output != "" {
		fmt.Fprintf(w, " → %s", r.Output)
	}
	fmt.Fprintln(w)
}
