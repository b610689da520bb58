package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/templc/internal/pipeline"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(9), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.NotNil(t, watcher.logger)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestFilters(t *testing.T) {
	tests := []struct {
		path   string
		source bool
		hidden bool
	}{
		{path: "pages/Home.tmpl", source: true},
		{path: "Home.templ"},
		{path: "main.go"},
		{path: ".git/HEAD", hidden: true},
		{path: "pages/.cache/A.tmpl", source: true, hidden: true},
		{path: "pages/A.tmpl~", hidden: true},
		{path: "#A.tmpl#", hidden: true},
		{path: "./A.tmpl", source: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.source, SourceFilter(tt.path))
			assert.Equal(t, !tt.hidden, NoHiddenFilter(tt.path))
		})
	}
}

func TestAddRecursive(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pages", "admin"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	file := filepath.Join(root, "A.tmpl")
	require.NoError(t, os.WriteFile(file, []byte("<p></p>"), 0o644))

	watcher, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.AddRecursive(root))
	assert.ElementsMatch(t, []string{
		root,
		filepath.Join(root, "pages"),
		filepath.Join(root, "pages", "admin"),
	}, watcher.watcher.WatchList())

	assert.Error(t, watcher.AddRecursive(file))
	assert.Error(t, watcher.AddRecursive(filepath.Join(root, "missing")))
	assert.Error(t, watcher.AddRecursive("../elsewhere"))
}

func TestDebouncer_CoalescesByPath(t *testing.T) {
	d := &Debouncer{
		delay:  20 * time.Millisecond,
		events: make(chan ChangeEvent, 10),
		output: make(chan []ChangeEvent, 10),
	}

	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "/b.tmpl"})
	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "/a.tmpl"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "/b.tmpl"})

	select {
	case events := <-d.output:
		require.Len(t, events, 2)
		assert.Equal(t, "/a.tmpl", events[0].Path)
		assert.Equal(t, "/b.tmpl", events[1].Path)
		assert.Equal(t, EventTypeModified, events[1].Type)
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never flushed")
	}
}

func TestFileWatcher_DeliversChanges(t *testing.T) {
	root := t.TempDir()

	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(SourceFilter)
	watcher.AddFilter(NoHiddenFilter)

	var mu sync.Mutex
	var seen []string
	got := make(chan struct{}, 1)
	watcher.AddHandler(func(ctx context.Context, events []ChangeEvent) error {
		mu.Lock()
		for _, e := range events {
			seen = append(seen, filepath.Base(e.Path))
		}
		mu.Unlock()
		select {
		case got <- struct{}{}:
		default:
		}
		return nil
	})

	require.NoError(t, watcher.AddRecursive(root))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Page.tmpl"), []byte("<p></p>"), 0o644))

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "Page.tmpl")
	assert.NotContains(t, seen, "notes.txt")
}

func TestCollectSources(t *testing.T) {
	root := t.TempDir()
	write := func(rel, text string) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(text), 0o644))
	}
	write("Page.tmpl", "<p>page</p>")
	write("_Imports.tmpl", "@import \"templc/ui\"")
	write("widgets/Card.tmpl", "<div></div>")
	write("widgets/readme.md", "# no")
	write(".hidden/Secret.tmpl", "<p></p>")

	files, err := CollectSources(root)
	require.NoError(t, err)
	assert.Equal(t, []pipeline.File{
		{Path: "/Page.tmpl", Text: "<p>page</p>"},
		{Path: "/_Imports.tmpl", Text: "@import \"templc/ui\""},
		{Path: "/widgets/Card.tmpl", Text: "<div></div>"},
	}, files)

	_, err = CollectSources(filepath.Join(root, "missing"))
	assert.Error(t, err)
}
