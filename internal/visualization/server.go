package visualization

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nvandessel/loom/internal/metrics"
)

// Server serves read-only exports of a live topology and, when a gatherer
// is set, the Prometheus /metrics endpoint.
type Server struct {
	source     Source
	gatherer   prometheus.Gatherer
	listenAddr string
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a server over src. An empty listenAddr picks a free
// localhost port. A nil gatherer disables /metrics.
func NewServer(src Source, listenAddr string, gatherer prometheus.Gatherer) *Server {
	if listenAddr == "" {
		listenAddr = "localhost:0"
	}
	return &Server{
		source:     src,
		gatherer:   gatherer,
		listenAddr: listenAddr,
	}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/graph.json", s.handleJSON)
	mux.HandleFunc("/graph.dot", s.handleDOT)
	if s.gatherer != nil {
		mux.Handle("/metrics", metrics.Handler(s.gatherer))
	}
	return mux
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handleIndex lists the available endpoints.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "loom topology export")
	fmt.Fprintln(w, "  /graph.json")
	fmt.Fprintln(w, "  /graph.dot")
	if s.gatherer != nil {
		fmt.Fprintln(w, "  /metrics")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(RenderJSON(s.source)); err != nil {
		http.Error(w, "encode error: "+err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	fmt.Fprint(w, RenderDOT(s.source))
}
