//go:build integration
// +build integration

package integration_tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/templc/internal/catalog"
	"github.com/conneroisu/templc/internal/config"
	"github.com/conneroisu/templc/internal/module"
	"github.com/conneroisu/templc/internal/pipeline"
	"github.com/conneroisu/templc/internal/server"
	"github.com/conneroisu/templc/internal/testutils"
	"github.com/conneroisu/templc/internal/watcher"
)

// e2eSystem is a catalog origin, a compile server fetching its reference
// modules from that origin over HTTP, and a project directory.
type e2eSystem struct {
	ComponentsDir string
	Origin        *httptest.Server
	Compiler      *httptest.Server
	Catalog       *catalog.Catalog
}

func newE2ESystem(t *testing.T) *e2eSystem {
	t.Helper()

	origin := httptest.NewServer(server.New(config.Defaults(), testutils.Catalog(t), nil).Handler())
	t.Cleanup(origin.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cat, err := catalog.Initialize(ctx, catalog.HTTPFetcher(origin.URL+server.ModulesPrefix, origin.Client()))
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Catalog.Source = config.SourceHTTP
	cfg.Catalog.URL = origin.URL + server.ModulesPrefix
	compiler := httptest.NewServer(server.New(cfg, cat, nil).Handler())
	t.Cleanup(compiler.Close)

	project := testutils.CreateTempProject(t)
	return &e2eSystem{
		ComponentsDir: filepath.Join(project, "components"),
		Origin:        origin,
		Compiler:      compiler,
		Catalog:       cat,
	}
}

func (s *e2eSystem) compile(t *testing.T) *pipeline.Result {
	t.Helper()
	files, err := watcher.CollectSources(s.ComponentsDir)
	require.NoError(t, err)

	body, err := json.Marshal(server.CompileRequest{Files: files})
	require.NoError(t, err)
	resp, err := http.Post(s.Compiler.URL+"/api/compile", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res pipeline.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return &res
}

func TestE2E_CompileAgainstRemoteCatalog(t *testing.T) {
	sys := newE2ESystem(t)
	testutils.WriteSources(t, sys.ComponentsDir, map[string]string{
		"_Imports.tmpl":     `@import "templc/ui"`,
		"Page.tmpl":         "<main>\n<Card Title=\"hi\" />\n<ui.Badge Label=\"new\" Count=\"2\" />\n</main>",
		"widgets/Card.tmpl": "@param Title string\n<section>@Title</section>",
	})

	res := sys.compile(t)
	require.False(t, res.Failed(), "%v", res.Diagnostics)

	mod, err := module.Decode(res.Module)
	require.NoError(t, err)
	assert.Contains(t, mod.Imports, "templc/ui")
	names := make([]string, 0, len(mod.Components))
	for _, c := range mod.Components {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"Page", "Card"}, names)
}

func TestE2E_WatchRecompiles(t *testing.T) {
	sys := newE2ESystem(t)
	page := filepath.Join(sys.ComponentsDir, "Page.tmpl")
	require.NoError(t, os.WriteFile(page, []byte("<p>@Missing</p>"), 0o644))
	require.True(t, sys.compile(t).Failed())

	fw, err := watcher.NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	fw.AddFilter(watcher.SourceFilter)
	require.NoError(t, fw.AddRecursive(sys.ComponentsDir))

	var mu sync.Mutex
	var results []*pipeline.Result
	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		files, err := watcher.CollectSources(sys.ComponentsDir)
		if err != nil {
			return err
		}
		res, err := pipeline.Compile(ctx, sys.Catalog, files)
		if err != nil {
			return err
		}
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))
	defer fw.Stop()

	require.NoError(t, os.WriteFile(page, []byte("@param Missing string\n<p>@Missing</p>"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) > 0 && !results[len(results)-1].Failed()
	}, 5*time.Second, 20*time.Millisecond)
}

func TestE2E_WebSocketPhases(t *testing.T) {
	sys := newE2ESystem(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(sys.Compiler.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	req := server.CompileRequest{Files: []pipeline.File{{Path: "/Page.tmpl", Text: "<p>hello</p>"}}}
	require.NoError(t, wsjson.Write(ctx, conn, req))

	var phases []string
	for {
		var f server.Frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		if f.Type == server.FramePhase {
			phases = append(phases, f.Phase)
			continue
		}
		require.Equal(t, server.FrameResult, f.Type)
		assert.False(t, f.Result.Failed())
		break
	}
	assert.Equal(t, pipeline.PhaseDone.Label(), phases[len(phases)-1])
}
