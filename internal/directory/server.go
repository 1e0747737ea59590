package directory

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Server exposes Registry over the consumed directory API of spec.md §6.
// It follows the teacher's server idiom (internal/server/server.go): a
// single mux, writeJSON/writeError helpers, ServeHTTP forwarding.
type Server struct {
	reg *Registry
	mux *http.ServeMux
}

// NewServer creates a Server with all routes registered.
func NewServer(reg *Registry) *Server {
	s := &Server{reg: reg, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /nodes", s.handleNodes)
	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("POST /heartbeat/{id}", s.handleHeartbeat)
	s.mux.HandleFunc("POST /unregister/{id}", s.handleUnregister)
	s.mux.HandleFunc("POST /fragment/register", s.handleFragmentRegister)
	s.mux.HandleFunc("GET /stats", s.handleStats)
}

// nodesResponse is the wire body of GET /nodes, spec.md §6 line 242.
type nodesResponse struct {
	Nodes []*NodeInfo `json:"nodes"`
}

// handleNodes implements GET /nodes?count=N&minSpace=B (spec.md §4.7 line
// 142, §6 line 242): count caps how many candidates are returned, minSpace
// filters out nodes without enough free space for the caller's largest
// shard. Both are optional; omitting either returns every online node.
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	minSpace, _ := strconv.ParseInt(r.URL.Query().Get("minSpace"), 10, 64)
	writeJSON(w, http.StatusOK, nodesResponse{Nodes: s.reg.NodesWithCapacity(minSpace, count)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var n NodeInfo
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.reg.Register(&n)
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.reg.Heartbeat(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	s.reg.Unregister(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "unregistered"})
}

func (s *Server) handleFragmentRegister(w http.ResponseWriter, r *http.Request) {
	var rec FragmentRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.reg.RegisterFragment(&rec); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Stats())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
