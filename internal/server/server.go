// Package server exposes the compilation pipeline over HTTP: a JSON compile
// endpoint, a websocket that streams phase progress, and an HTML overlay
// that renders diagnostics.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/templc/internal/cache"
	"github.com/conneroisu/templc/internal/catalog"
	"github.com/conneroisu/templc/internal/config"
	"github.com/conneroisu/templc/internal/logging"
	"github.com/conneroisu/templc/internal/pipeline"
)

// maxRequestBytes bounds the body of a compile request.
const maxRequestBytes = 8 << 20

// resultTTL is how long a cached compile result is served.
const resultTTL = 10 * time.Minute

// ModulesPrefix is where the catalog's reference modules are served, in
// the layout catalog.HTTPFetcher reads.
const ModulesPrefix = "/modules/"

// Server serves compilations against a single reference catalog.
type Server struct {
	config  *config.Config
	catalog *catalog.Catalog
	logger  logging.Logger

	httpServer  *http.Server
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]struct{}
	clientsMutex sync.Mutex

	// limiter is nil when compilations are not rate limited.
	limiter *RateLimiter
	// results is nil when the result cache is disabled.
	results *cache.ResultCache

	shutdownOnce sync.Once
}

// New creates a server. cat must already be initialized.
func New(cfg *config.Config, cat *catalog.Catalog, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		config:  cfg,
		catalog: cat,
		logger:  logger.WithComponent("server"),
		clients: make(map[*websocket.Conn]struct{}),
	}
	if cfg.Server.CacheMB > 0 {
		s.results = cache.New(int64(cfg.Server.CacheMB)<<20, resultTTL)
	}
	if cfg.Server.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.Server.RateLimit, cfg.Server.Burst, s.logger)
	}
	return s
}

// Handler returns the routes wrapped in the server's middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/catalog", s.handleCatalog)
	mux.HandleFunc("/api/compile", s.limited(s.handleCompile))
	mux.HandleFunc("/overlay", s.limited(s.handleOverlay))
	mux.HandleFunc("/ws", s.limited(s.handleWebSocket))
	mux.Handle(ModulesPrefix, s.catalog.Handler(ModulesPrefix))
	mux.HandleFunc("/", s.handleIndex)
	return s.addMiddleware(mux)
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Playground listening", "addr", "http://"+addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown closes open websockets and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.clientsMutex.Lock()
		for conn := range s.clients {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]struct{})
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

// compileOptions maps the compile section of the configuration onto
// pipeline options.
func (s *Server) compileOptions(extra ...pipeline.Option) []pipeline.Option {
	c := s.config.Compile
	opts := []pipeline.Option{
		pipeline.WithPackage(c.PackagePath, c.PackageName),
		pipeline.WithRoot(c.RootPath, c.RootRoute),
		pipeline.WithJobs(c.Jobs),
		pipeline.WithLogger(s.logger),
	}
	return append(opts, extra...)
}

// compile runs req through the result cache when it is enabled. The
// websocket path bypasses it to stream progress.
func (s *Server) compile(ctx context.Context, req *CompileRequest) (*pipeline.Result, error) {
	run := func(ctx context.Context) (*pipeline.Result, error) {
		return pipeline.Compile(ctx, s.catalog, req.Files, s.compileOptions(req.options()...)...)
	}
	if s.results == nil {
		return run(ctx)
	}

	res, cached, err := s.results.Do(ctx, cache.Key(req.Files, req.Root, req.Route), run)
	if cached {
		s.logger.Debug(ctx, "Compile cache hit", "files", len(req.Files))
	}
	return res, err
}

// limited applies the compile rate limit, if any.
func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return h
	}
	return s.limiter.Middleware(h)
}

func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.isAllowedOrigin(r.Header.Get("Origin")) {
			w.Header().Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		applySecurityHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if s.rejectForeignOrigin(w, r) {
			return
		}

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

// isAllowedOrigin accepts the playground's own origins.
func (s *Server) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range s.originPatterns() {
		if origin == "http://"+allowed || origin == "https://"+allowed {
			return true
		}
	}
	return false
}

func (s *Server) originPatterns() []string {
	port := s.config.Server.Port
	return []string{
		fmt.Sprintf("%s:%d", s.config.Server.Host, port),
		fmt.Sprintf("localhost:%d", port),
		fmt.Sprintf("127.0.0.1:%d", port),
	}
}

func (s *Server) track(conn *websocket.Conn) {
	s.clientsMutex.Lock()
	s.clients[conn] = struct{}{}
	s.clientsMutex.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.clientsMutex.Lock()
	delete(s.clients, conn)
	s.clientsMutex.Unlock()
}
