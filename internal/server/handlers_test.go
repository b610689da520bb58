package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/module"
)

// compileResponse mirrors pipeline.Result on the wire.
type compileResponse struct {
	Module      []byte `json:"module"`
	Diagnostics []struct {
		Code     string `json:"code"`
		Severity string `json:"severity"`
		File     string `json:"file"`
		Line     *int   `json:"line"`
		Origin   string `json:"origin"`
	} `json:"diagnostics"`
}

func post(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleCompile(t *testing.T) {
	s := setupTestServer(t)

	t.Run("module", func(t *testing.T) {
		rec := post(t, s, "/api/compile", `{"files":[
			{"path":"Page.tmpl","text":"<Widget Count=\"1\" />"},
			{"path":"Widget.tmpl","text":"@param Count int\n<span>@Count</span>"}]}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp compileResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Diagnostics)
		require.NotEmpty(t, resp.Module)

		m, err := module.Decode(resp.Module)
		require.NoError(t, err)
		_, ok := m.Component("Widget")
		assert.True(t, ok)
	})

	t.Run("diagnostics", func(t *testing.T) {
		rec := post(t, s, "/api/compile", `{"files":[{"path":"Page.tmpl","text":"<p>@Foo</p>"}]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"module":null`)

		var resp compileResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Diagnostics, 1)
		d := resp.Diagnostics[0]
		assert.Equal(t, errors.CodeHostUndefined, d.Code)
		assert.Equal(t, "error", d.Severity)
		assert.Equal(t, "host", d.Origin)
		assert.Equal(t, "/Page.tmpl", d.File)
		require.NotNil(t, d.Line)
		assert.Equal(t, 1, *d.Line)
	})

	t.Run("root override", func(t *testing.T) {
		rec := post(t, s, "/api/compile", `{"files":[
			{"path":"A.tmpl","text":"<p>a</p>"},
			{"path":"B.tmpl","text":"<p>b</p>"}],"root":"B.tmpl","route":"/b"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp compileResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		m, err := module.Decode(resp.Module)
		require.NoError(t, err)
		b, ok := m.Component("B")
		require.True(t, ok)
		assert.Equal(t, "/b", b.Route)
	})
}

func TestHandleCompile_BadRequests(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "files"},
		{name: "unknown field", body: `{"files":[{"path":"A.tmpl","text":""}],"extra":1}`},
		{name: "no files", body: `{"files":[]}`},
		{name: "empty path", body: `{"files":[{"path":" ","text":"<p></p>"}]}`},
		{name: "traversal", body: `{"files":[{"path":"../A.tmpl","text":"<p></p>"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, s, "/api/compile", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, errors.ErrCodeInvalidRequest, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/compile", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleOverlay(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name     string
		body     string
		contains []string
	}{
		{
			name:     "clean",
			body:     `{"files":[{"path":"A.tmpl","text":"<p>a</p>"}]}`,
			contains: []string{`class="ok"`, "0 warning(s)"},
		},
		{
			name: "escaped diagnostics",
			body: `{"files":[{"path":"A.tmpl","text":"<p>@(1 + \"<b>\")</p>"}]}`,
			contains: []string{
				"1 error(s)",
				`<li class="sev-error">`,
				"/A.tmpl:1",
				errors.CodeHostTypeMismatch,
				"&lt;b&gt;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, s, "/overlay", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
			for _, want := range tt.contains {
				assert.Contains(t, rec.Body.String(), want)
			}
			assert.NotContains(t, rec.Body.String(), "<b>")
		})
	}

	rec := post(t, s, "/overlay", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCompile_CachesResults(t *testing.T) {
	s := setupTestServer(t)
	require.NotNil(t, s.results)
	body := `{"files":[{"path":"/Page.tmpl","text":"<p>@Foo</p>"}]}`

	var bodies []string
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/compile", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}
	assert.Equal(t, bodies[0], bodies[1])

	stats := s.results.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)

	// A different root is a different compilation.
	rec := httptest.NewRecorder()
	withRoot := `{"files":[{"path":"/Page.tmpl","text":"<p>@Foo</p>"}],"route":"/x"}`
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/compile", strings.NewReader(withRoot)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, s.results.Stats().Entries)
}
