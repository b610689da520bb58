package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/templc/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the compile server and playground",
	Long: `Start an HTTP server that compiles component batches on request.

Endpoints:
  GET  /              playground page
  POST /api/compile   compile a JSON batch, answer with the result
  POST /overlay       compile a JSON batch, answer with an HTML overlay
  GET  /ws            compile one batch, streaming phase progress
  GET  /api/catalog   list reference modules
  GET  /modules/      serve reference modules to other templc processes
  GET  /health        health check

Examples:
  templc serve
  templc serve --port 3000
  templc serve --host 0.0.0.0`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("host", "H", "", "host to bind to (default localhost)")
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (default 7331)")
	bindFlags(serveCmd.Flags(), map[string]string{
		"host": "server.host",
		"port": "server.port",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	srv := server.New(env.cfg, env.catalog, env.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
