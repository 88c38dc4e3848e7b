package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/devctx-mcp/internal/admission"
	"github.com/jordigilh/devctx-mcp/internal/mcp"
)

const sseHeartbeatInterval = 15 * time.Second

// sseSession is one open SSE stream and the queue of JSON-RPC responses
// waiting to be written to it. Session lifetime equals the SSE
// connection's lifetime (spec §4.G): the table entry is removed the
// moment the stream's request context is cancelled.
type sseSession struct {
	id    string
	queue chan []byte
	done  chan struct{}
}

// SSE serves the GET /(or /sse) + POST /?session_id=<id> pairing spec
// §4.G describes: a client opens a long-lived event stream, learns its
// session id from the initial "endpoint" event, then POSTs JSON-RPC
// requests to that session's control path and reads the matching
// response back off the stream.
type SSE struct {
	server *mcp.Server
	gate   *admission.Gate
	log    *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*sseSession
}

func NewSSE(server *mcp.Server, gate *admission.Gate, log *logrus.Logger) *SSE {
	return &SSE{
		server:   server,
		gate:     gate,
		log:      log.WithField("component", "transport.sse"),
		sessions: make(map[string]*sseSession),
	}
}

func (s *SSE) Router() http.Handler {
	r := chi.NewRouter()

	var stream, post http.Handler = http.HandlerFunc(s.handleStream), http.HandlerFunc(s.handlePost)
	if s.gate != nil {
		stream = s.gate.Middleware(stream)
		post = s.gate.Middleware(post)
	}

	r.Get("/", stream.ServeHTTP)
	r.Get("/sse", stream.ServeHTTP)
	r.Post("/", post.ServeHTTP)

	return r
}

// handleStream opens the SSE stream for one session: it assigns a
// session_id, emits the initial "endpoint" event, then heartbeats and
// forwards queued responses until the client disconnects.
func (s *SSE) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess := &sseSession{
		id:    uuid.NewString(),
		queue: make(chan []byte, 32),
		done:  make(chan struct{}),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	defer s.closeSession(sess.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: /?session_id=%s\n\n", sess.id)
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.done:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg := <-sess.queue:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handlePost accepts one JSON-RPC request for an existing session,
// dispatches it, and publishes the response onto the session's SSE
// stream rather than returning it in the HTTP response body (spec
// §4.G: "the server acknowledges with 202 Accepted and publishes the
// response onto the matching SSE stream").
func (s *SSE) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session_id", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxHTTPBody+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxHTTPBody {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	// Dispatch happens after the 202 is written: the client is told the
	// request was accepted, and the response arrives asynchronously on
	// the SSE stream. Use a detached context — r.Context() is cancelled
	// the instant this handler returns, which is immediately after this
	// line, long before the handler below would finish.
	go s.respond(context.Background(), sess, body)
}

func (s *SSE) respond(ctx context.Context, sess *sseSession, body []byte) {
	resp := s.server.HandleMessage(ctx, body)
	select {
	case sess.queue <- resp:
	case <-sess.done:
	case <-time.After(5 * time.Second):
		s.log.WithField("session", sess.id).Warn("sse response dropped: queue full or stream gone")
	}
}

func (s *SSE) closeSession(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if ok {
		close(sess.done)
	}
}

