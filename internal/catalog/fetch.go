package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxModuleSize bounds a single fetched module.
const maxModuleSize = 64 << 20

// ModuleFileExt is appended to a module name to form its URL path.
const ModuleFileExt = ".mod"

// HTTPFetcher fetches modules from {baseURL}/{name}.mod. Any non-2xx
// response is a failure.
func HTTPFetcher(baseURL string, client *http.Client) FetchFunc {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	base := strings.TrimSuffix(baseURL, "/")

	return func(ctx context.Context, name string) ([]byte, error) {
		url := base + "/" + strings.TrimPrefix(name, "/") + ModuleFileExt
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building request for %s: %w", url, err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("GET %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxModuleSize+1))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", url, err)
		}
		if len(data) > maxModuleSize {
			return nil, fmt.Errorf("module %s exceeds %d bytes", name, maxModuleSize)
		}
		return data, nil
	}
}

// Handler serves the catalog's modules in the layout HTTPFetcher expects,
// so one templc process can act as the catalog source of another.
func (c *Catalog) Handler(prefix string) http.Handler {
	return http.StripPrefix(strings.TrimSuffix(prefix, "/"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/")
		if !strings.HasSuffix(name, ModuleFileExt) {
			http.NotFound(w, r)
			return
		}
		ref, ok := c.Lookup(strings.TrimSuffix(name, ModuleFileExt))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/msgpack")
		_, _ = w.Write(ref.raw)
	}))
}
