package server

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/conneroisu/templc/internal/pipeline"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed for the client to send its compile request.
	requestWait = 30 * time.Second
)

// Frame types sent over /ws.
const (
	FramePhase  = "phase"
	FrameResult = "result"
	FrameError  = "error"
)

// Frame is one message from the server to a websocket client. A session
// is any number of phase frames followed by one result or error frame.
type Frame struct {
	Type   string           `json:"type"`
	Phase  string           `json:"phase,omitempty"`
	Result *pipeline.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type compileOutcome struct {
	res *pipeline.Result
	err error
}

// handleWebSocket reads one compile request and streams its progress.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxRequestBytes)

	s.track(conn)
	defer s.untrack(conn)

	ctx := r.Context()
	readCtx, cancel := context.WithTimeout(ctx, requestWait)
	_, data, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		if websocket.CloseStatus(err) == -1 {
			s.logger.Warn(ctx, err, "WebSocket read failed")
		}
		return
	}

	req, err := decodeCompileRequest(bytes.NewReader(data))
	if err != nil {
		if s.writeFrame(ctx, conn, Frame{Type: FrameError, Error: err.Error()}) == nil {
			conn.Close(websocket.StatusPolicyViolation, "invalid compile request")
		}
		return
	}

	// Five phases at most, so sends never drop.
	phases := make(chan pipeline.Phase, 8)
	done := make(chan compileOutcome, 1)
	go func() {
		opts := s.compileOptions(append(req.options(), pipeline.WithProgressChan(phases))...)
		res, err := pipeline.Compile(ctx, s.catalog, req.Files, opts...)
		done <- compileOutcome{res: res, err: err}
	}()

	for {
		select {
		case p := <-phases:
			if err := s.writeFrame(ctx, conn, Frame{Type: FramePhase, Phase: p.Label()}); err != nil {
				return
			}
		case out := <-done:
			for len(phases) > 0 {
				if err := s.writeFrame(ctx, conn, Frame{Type: FramePhase, Phase: (<-phases).Label()}); err != nil {
					return
				}
			}
			final := Frame{Type: FrameResult, Result: out.res}
			if out.err != nil {
				s.logger.Error(ctx, out.err, "Compilation aborted", "files", len(req.Files))
				final = Frame{Type: FrameError, Error: out.err.Error()}
			}
			if err := s.writeFrame(ctx, conn, final); err != nil {
				return
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, f); err != nil {
		s.logger.Warn(ctx, err, "WebSocket write failed", "frame", f.Type)
		return err
	}
	return nil
}
