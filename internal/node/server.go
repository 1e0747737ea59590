package node

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ssd-technologies/myst/internal/cryptoutil"
	"github.com/ssd-technologies/myst/internal/directory"
	"github.com/ssd-technologies/myst/internal/ratelimit"
)

// Server is the storage node's HTTP surface: /store, /retrieve/{id}, /ping,
// /health, and /events. Grounded on the teacher's internal/server.Server
// mux-and-writeJSON pattern.
type Server struct {
	store     *Store
	identity  *Identity
	dataDir   string
	maxBytes  int64
	limiter   *ratelimit.Limiter
	dirClient *directory.Client
	mux       *http.ServeMux
	hub       *eventHub

	usedBytes atomic.Int64
}

// NewServer builds a Server with all routes registered. dirClient may be
// nil, in which case successful stores are not reported to the directory.
func NewServer(store *Store, identity *Identity, dataDir string, maxBytes int64, limiter *ratelimit.Limiter, dirClient *directory.Client) *Server {
	s := &Server{
		store:     store,
		identity:  identity,
		dataDir:   dataDir,
		maxBytes:  maxBytes,
		limiter:   limiter,
		dirClient: dirClient,
		mux:       http.NewServeMux(),
		hub:       newEventHub(),
	}
	if used, err := store.UsedSpace(); err == nil {
		s.usedBytes.Store(used)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ping", s.handlePing)
	s.mux.HandleFunc("POST /store", s.handleStore)
	s.mux.HandleFunc("GET /retrieve/{id}", s.handleRetrieve)
	s.mux.HandleFunc("GET /events", s.handleEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, _ := s.store.Count()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"node_id":     s.identity.NodeID,
		"fragments":   count,
		"used_bytes":  s.usedBytes.Load(),
		"max_bytes":   s.maxBytes,
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"node_id": s.identity.NodeID})
}

// storeMetadata mirrors transport.StoreMetadata's wire shape (spec.md §4.5
// step 8). Kept as a separate type, rather than importing internal/transport,
// to keep the node package decoupled from the pipeline's HTTP client.
type storeMetadata struct {
	FileHash        string `json:"file_hash"`
	PartitionIndex  int    `json:"partition_index"`
	RedundancyIndex int    `json:"redundancy_index"`
	DoubleEncrypted bool   `json:"double_encrypted"`
	Timestamp       int64  `json:"timestamp"`
}

type storeRequest struct {
	FragmentID string        `json:"fragment_id"`
	Data       []byte        `json:"data"`
	Checksum   string        `json:"checksum"`
	Metadata   storeMetadata `json:"metadata"`
}

type storeResponse struct {
	FragmentID string `json:"fragment_id"`
	Checksum   string `json:"checksum"`
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	var req storeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed store request")
		return
	}
	if req.FragmentID == "" || len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, "fragment_id and data are required")
		return
	}

	ip := ratelimit.ClientIP(r)
	if s.limiter != nil && !s.limiter.Allow(ip, int64(len(req.Data))) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if s.maxBytes > 0 && s.usedBytes.Load()+int64(len(req.Data)) > s.maxBytes {
		writeError(w, http.StatusInsufficientStorage, "node storage capacity exceeded")
		return
	}

	checksum := cryptoutil.SHA256Hex(req.Data)
	if req.Checksum != "" && req.Checksum != checksum {
		writeError(w, http.StatusBadRequest, "checksum mismatch")
		return
	}

	path := filepath.Join(s.dataDir, "fragments", req.FragmentID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "cannot prepare storage path")
		return
	}
	if err := os.WriteFile(path, req.Data, 0o600); err != nil {
		writeError(w, http.StatusInternalServerError, "cannot persist fragment")
		return
	}

	frag := &Fragment{
		FragmentID:     req.FragmentID,
		Path:           path,
		Size:           int64(len(req.Data)),
		Checksum:       checksum,
		FileHash:       req.Metadata.FileHash,
		PartitionIndex: req.Metadata.PartitionIndex,
		RedundancyIdx:  req.Metadata.RedundancyIndex,
		StoredAt:       nowUnix(),
	}
	if err := s.store.Put(frag); err != nil {
		writeError(w, http.StatusInternalServerError, "cannot record fragment")
		return
	}
	s.usedBytes.Add(frag.Size)
	s.reportFragment(frag)

	s.hub.publish(event{Type: "store", FragmentID: req.FragmentID, Time: time.Now()})
	writeJSON(w, http.StatusCreated, storeResponse{FragmentID: req.FragmentID, Checksum: checksum})
}

// reportFragment tells the directory about a freshly stored fragment,
// per spec.md §4.9. The report is best-effort: a directory that is slow or
// unreachable is logged and ignored, never failing the client's /store
// response.
func (s *Server) reportFragment(frag *Fragment) {
	if s.dirClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec := directory.FragmentRecord{
		FragmentID:     frag.FragmentID,
		NodeID:         s.identity.NodeID,
		Size:           frag.Size,
		FileHash:       frag.FileHash,
		PartitionIndex: frag.PartitionIndex,
	}
	if err := s.dirClient.RegisterFragment(ctx, rec); err != nil {
		log.Printf("[store] report fragment %s: %v", frag.FragmentID, err)
	}
}

type retrieveResponse struct {
	FragmentID string `json:"fragment_id"`
	Data       []byte `json:"data"`
	Checksum   string `json:"checksum"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	fragmentID := r.PathValue("id")
	frag, err := s.store.Get(fragmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "fragment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "cannot look up fragment")
		return
	}

	data, err := os.ReadFile(frag.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, "fragment data missing")
		return
	}

	if cryptoutil.SHA256Hex(data) != frag.Checksum {
		s.hub.publish(event{Type: "corruption", FragmentID: fragmentID, Time: time.Now()})
		writeError(w, http.StatusInternalServerError, "stored fragment failed integrity check")
		return
	}

	s.store.IncrementAccessCount(fragmentID)
	s.hub.publish(event{Type: "retrieve", FragmentID: fragmentID, Time: time.Now()})
	writeJSON(w, http.StatusOK, retrieveResponse{FragmentID: fragmentID, Data: data, Checksum: frag.Checksum})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
