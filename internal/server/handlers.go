package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conneroisu/templc/internal/errors"
	"github.com/conneroisu/templc/internal/pipeline"
	"github.com/conneroisu/templc/internal/version"
)

// CompileRequest is the body of POST /api/compile and the first websocket
// message.
type CompileRequest struct {
	Files []pipeline.File `json:"files"`
	// Root optionally overrides the configured root unit.
	Root  string `json:"root,omitempty"`
	Route string `json:"route,omitempty"`
}

// ErrorResponse is returned for requests that never reach the pipeline.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CatalogEntry describes one reference module.
type CatalogEntry struct {
	Path       string   `json:"path"`
	Imports    []string `json:"imports"`
	Size       int      `json:"size"`
	Components []string `json:"components"`
}

func (req *CompileRequest) validate() error {
	if len(req.Files) == 0 {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "request has no files")
	}
	for i, f := range req.Files {
		if strings.TrimSpace(f.Path) == "" {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("file %d has no path", i))
		}
		if strings.Contains(f.Path, "..") {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("path %q contains traversal", f.Path))
		}
	}
	return nil
}

func (req *CompileRequest) options() []pipeline.Option {
	if req.Root == "" && req.Route == "" {
		return nil
	}
	return []pipeline.Option{pipeline.WithRoot(req.Root, req.Route)}
}

func decodeCompileRequest(r io.Reader) (*CompileRequest, error) {
	var req CompileRequest
	dec := json.NewDecoder(io.LimitReader(r, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.ErrCodeInvalidRequest,
			"invalid JSON request")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// handleCompile runs one compilation and answers with the pipeline result.
// Diagnosed failures are still 200: only requests the pipeline could not
// run get an error status.
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := decodeCompileRequest(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.compile(r.Context(), req)
	if err != nil {
		s.logger.Error(r.Context(), err, "Compilation aborted", "files", len(req.Files))
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	refs := s.catalog.References()
	entries := make([]CatalogEntry, 0, len(refs))
	for _, ref := range refs {
		e := CatalogEntry{
			Path:       ref.Path(),
			Imports:    ref.Imports(),
			Size:       ref.Size(),
			Components: []string{},
		}
		for _, c := range ref.Components() {
			e.Components = append(e.Components, c.Name)
		}
		entries = append(entries, e)
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"catalog":   s.catalog.Len(),
	}
	if s.results != nil {
		health["cache"] = s.results.Stats()
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(context.Background(), err, "Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: errors.CodeOf(err)})
}
