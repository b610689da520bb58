package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/conneroisu/templc/internal/errors"
)

// CSPConfig lists Content-Security-Policy directive sources. Empty
// directives are omitted.
type CSPConfig struct {
	DefaultSrc     []string
	ScriptSrc      []string
	StyleSrc       []string
	ConnectSrc     []string
	ObjectSrc      []string
	FrameAncestors []string
	BaseURI        []string
}

// playgroundCSP allows the inline playground script and its websocket.
var playgroundCSP = &CSPConfig{
	DefaultSrc:     []string{"'self'"},
	ScriptSrc:      []string{"'self'", "'unsafe-inline'"},
	StyleSrc:       []string{"'self'", "'unsafe-inline'"},
	ConnectSrc:     []string{"'self'", "ws:", "wss:"},
	ObjectSrc:      []string{"'none'"},
	FrameAncestors: []string{"'none'"},
	BaseURI:        []string{"'self'"},
}

func buildCSPHeader(csp *CSPConfig) string {
	var directives []string
	add := func(name string, values []string) {
		if len(values) > 0 {
			directives = append(directives, fmt.Sprintf("%s %s", name, strings.Join(values, " ")))
		}
	}

	add("default-src", csp.DefaultSrc)
	add("script-src", csp.ScriptSrc)
	add("style-src", csp.StyleSrc)
	add("connect-src", csp.ConnectSrc)
	add("object-src", csp.ObjectSrc)
	add("frame-ancestors", csp.FrameAncestors)
	add("base-uri", csp.BaseURI)

	return strings.Join(directives, "; ")
}

func applySecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Security-Policy", buildCSPHeader(playgroundCSP))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
}

// rejectForeignOrigin refuses state-changing requests sent by pages on
// other origins. Requests without an Origin header are not from browsers
// and pass.
func (s *Server) rejectForeignOrigin(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" || s.isAllowedOrigin(origin) {
		return false
	}

	s.logger.Warn(r.Context(),
		errors.NewValidationError(errors.ErrCodeInvalidRequest, "foreign origin"),
		"Rejected cross-origin request", "origin", origin, "ip", clientIP(r))
	http.Error(w, "Forbidden", http.StatusForbidden)
	return true
}
