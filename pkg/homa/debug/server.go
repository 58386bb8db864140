// Package debug exposes a read-only HTTP diagnostics surface over a
// running homa.Transport, grounded on the teacher's chi-routed HTTP
// servers (pkg/hypervisor's use of chi.NewRouter with the standard
// middleware stack).
package debug

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/skycoin/homatransport/pkg/homa"
)

// Server wraps a chi.Router exposing GET /rpcs and GET /stats over a
// Transport's live state.
type Server struct {
	router    chi.Router
	transport *homa.Transport
}

// NewServer builds a Server for transport.
func NewServer(transport *homa.Transport) *Server {
	s := &Server{transport: transport}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Get("/rpcs", s.handleRpcs)
	r.Get("/stats", s.handleStats)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) handleRpcs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.transport.RpcInfo())
}

type statsResponse struct {
	ServiceLocator string `json:"service_locator"`
	GrantsSent     uint64 `json:"grants_sent"`
	ResendsSent    uint64 `json:"resends_sent"`
	Timeouts       uint64 `json:"timeouts"`
	AbortsSent     uint64 `json:"aborts_sent"`
	AbortsReceived uint64 `json:"aborts_received"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.transport.Stats()
	resp := statsResponse{
		ServiceLocator: s.transport.GetServiceLocator(),
		GrantsSent:     stats.GrantsSent,
		ResendsSent:    stats.ResendsSent,
		Timeouts:       stats.Timeouts,
		AbortsSent:     stats.AbortsSent,
		AbortsReceived: stats.AbortsRecvd,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
