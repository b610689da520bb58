package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/pipeline"
	"github.com/conneroisu/templc/internal/watcher"
)

var (
	watchOut      string
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Recompile a directory whenever its sources change",
	Long: `Compile every .tmpl source below the directory, then recompile the
whole batch after each change. The module is rewritten only when a
compilation succeeds.

Examples:
  templc watch ./components --out app.mod
  templc watch ./components --debounce 500ms`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchOut, "out", "o", "", "write the module to this file")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 300*time.Millisecond, "wait this long after the last change before compiling")
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx, stop := context.WithCancelCause(cmd.Context())
	defer stop(nil)
	out := cmd.OutOrStdout()

	build := func(ctx context.Context) error {
		return rebuild(ctx, env, dir, watchOut, out)
	}
	if err := build(ctx); err != nil {
		return err
	}

	fw, err := watcher.NewFileWatcher(watchDebounce, env.logger)
	if err != nil {
		return err
	}
	fw.AddFilter(watcher.SourceFilter)
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		env.logger.Info(ctx, "Sources changed", "events", len(events), "first", events[0].Path)
		err := build(ctx)
		if stopsWatch(err) {
			stop(err)
		}
		return err
	})
	if err := fw.AddRecursive(dir); err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}
	defer fw.Stop()

	env.logger.Info(ctx, "Watching for changes", "dir", dir)
	<-ctx.Done()
	if cmd.Context().Err() != nil {
		return nil
	}
	return context.Cause(ctx)
}

// stopsWatch reports whether a failed rebuild ends the watch. Recoverable
// failures are logged and the next change is compiled again.
func stopsWatch(err error) bool {
	return err != nil && !errors.IsRecoverable(err)
}

// rebuild compiles every source below dir and reports the outcome. Failed
// compilations are reported, not returned.
func rebuild(ctx context.Context, env *environment, dir, outPath string, w io.Writer) error {
	files, err := watcher.CollectSources(dir)
	if err != nil {
		return err
	}

	res, err := pipeline.Compile(ctx, env.catalog, files, compileOptions(env.cfg, env.logger)...)
	if err != nil {
		return err
	}

	if !res.Failed() && outPath != "" {
		if err := os.WriteFile(outPath, res.Module, 0o644); err != nil {
			return errors.WrapIO(err, errors.ErrCodeFileWriteFailed, "writing module")
		}
	}
	writeText(w, newReport(res, outPath))
	return nil
}
