package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/devctx-mcp/internal/admission"
	"github.com/jordigilh/devctx-mcp/internal/mcp"
)

const maxHTTPBody = 10 * 1024 * 1024

// HTTP serves the dispatcher over a single POST endpoint, plus /health
// and /info, for request/response MCP clients that don't need streaming
// (spec §5's second transport).
type HTTP struct {
	server *mcp.Server
	info   mcp.ServerInfo
	gate   *admission.Gate
	log    *logrus.Entry
}

func NewHTTP(server *mcp.Server, info mcp.ServerInfo, gate *admission.Gate, log *logrus.Logger) *HTTP {
	return &HTTP{server: server, info: info, gate: gate, log: log.WithField("component", "transport.http")}
}

func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"POST", "GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/health", h.handleHealth)
	r.Get("/info", h.handleInfo)
	if h.gate != nil {
		r.Get("/stats", h.gate.StatsHandler().ServeHTTP)
		r.Get("/metrics", h.gate.MetricsHandler().ServeHTTP)
	}

	rpc := http.HandlerFunc(h.handleRPC)
	if h.gate != nil {
		r.Post("/", h.gate.Middleware(rpc).ServeHTTP)
	} else {
		r.Post("/", rpc)
	}

	return r
}

func (h *HTTP) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *HTTP) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.info)
}

func (h *HTTP) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxHTTPBody+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxHTTPBody {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	resp := h.server.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully, giving in-flight requests at most 10 seconds to finish.
func (h *HTTP) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Router()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
