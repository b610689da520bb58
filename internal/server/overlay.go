package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"

	"github.com/conneroisu/templc/internal/diag"
	"github.com/conneroisu/templc/internal/pipeline"
)

const overlayStyle = `<style>
.templc-overlay{font-family:ui-monospace,monospace;font-size:13px;background:#1e1e1e;color:#ddd;padding:16px;border-radius:6px}
.templc-overlay h2{margin:0 0 12px;font-size:15px}
.templc-overlay li{list-style:none;padding:4px 0;border-bottom:1px solid #333}
.templc-overlay .sev-error{color:#f48771}
.templc-overlay .sev-warning{color:#cca700}
.templc-overlay .ok{color:#89d185}
.templc-overlay .loc{color:#9cdcfe}
</style>`

// Overlay renders a compilation result as an HTML fragment.
func Overlay(res *pipeline.Result) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, overlayStyle+`<div class="templc-overlay">`); err != nil {
			return err
		}

		errs := diag.Count(res.Diagnostics, diag.SevError)
		warns := diag.Count(res.Diagnostics, diag.SevWarning)
		summary := fmt.Sprintf(`<h2 class="ok">Compiled, %d bytes, %d warning(s)</h2>`, len(res.Module), warns)
		if res.Failed() {
			summary = fmt.Sprintf(`<h2 class="sev-error">%d error(s), %d warning(s)</h2>`, errs, warns)
		}
		if _, err := io.WriteString(w, summary+"<ul>"); err != nil {
			return err
		}

		for _, d := range res.Diagnostics {
			if err := diagnosticItem(d).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</ul></div>")
		return err
	})
}

func diagnosticItem(d diag.Diagnostic) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		loc := d.File
		if d.HasLine() {
			loc = fmt.Sprintf("%s:%d", d.File, d.Line)
		}
		_, err := fmt.Fprintf(w, `<li class="sev-%s"><span class="loc">%s</span> %s %s: %s</li>`,
			templ.EscapeString(d.Severity.String()),
			templ.EscapeString(loc),
			templ.EscapeString(d.Origin.String()),
			templ.EscapeString(d.Code),
			templ.EscapeString(d.Message))
		return err
	})
}

// handleOverlay compiles the request and answers with the overlay HTML.
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := decodeCompileRequest(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.compile(r.Context(), req)
	if err != nil {
		s.logger.Error(r.Context(), err, "Compilation aborted", "files", len(req.Files))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	templ.Handler(Overlay(res)).ServeHTTP(w, r)
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>templc playground</title>
<style>
body{font-family:system-ui,sans-serif;margin:0;padding:20px;background:#f5f5f5}
textarea{width:100%%;height:240px;font-family:ui-monospace,monospace}
#phase{color:#555;margin:8px 0}
</style>
</head>
<body>
<h1>templc playground</h1>
<p>Compiling against: %s</p>
<textarea id="src">@param Name string
&lt;p&gt;Hello @Name&lt;/p&gt;</textarea>
<button id="run">Compile</button>
<div id="phase"></div>
<div id="out"></div>
<script>
document.getElementById("run").onclick = function () {
  var files = [{path: "/Page.tmpl", text: document.getElementById("src").value}];
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  ws.onopen = function () { ws.send(JSON.stringify({files: files})); };
  ws.onmessage = function (ev) {
    var f = JSON.parse(ev.data);
    if (f.type === "phase") { document.getElementById("phase").textContent = f.phase; return; }
    fetch("/overlay", {method: "POST", headers: {"Content-Type": "application/json"}, body: JSON.stringify({files: files})})
      .then(function (r) { return r.text(); })
      .then(function (html) { document.getElementById("out").innerHTML = html; });
  };
};
</script>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var modules []string
	for _, ref := range s.catalog.References() {
		modules = append(modules, ref.Path())
	}
	page := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, indexPage, templ.EscapeString(fmt.Sprint(modules)))
		return err
	})
	templ.Handler(page).ServeHTTP(w, r)
}
