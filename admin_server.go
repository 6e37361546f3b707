package parley

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminServer exposes operational endpoints for a Node over HTTP.
// All responses are JSON. Intended for admin/internal networks only.
type AdminServer struct {
	node     *Node
	server   *http.Server
	listener net.Listener
}

// NewAdminServer creates an AdminServer bound to the given address.
// The server is not started until Start() is called.
func NewAdminServer(node *Node, addr string) (*AdminServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	as := &AdminServer{
		node:     node,
		listener: ln,
		server: &http.Server{
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
	}

	mux.HandleFunc("/peers", as.handlePeers)
	mux.HandleFunc("/healthz", as.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(node.metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return as, nil
}

// Addr returns the listener's address (useful when binding to ":0").
func (as *AdminServer) Addr() string {
	return as.listener.Addr().String()
}

// Start begins serving HTTP requests. Non-blocking.
func (as *AdminServer) Start() {
	go func() {
		if err := as.server.Serve(as.listener); err != nil && err != http.ErrServerClosed {
			slog.Error("admin server error", "error", err)
		}
	}()
	slog.Info("admin server started", "addr", as.Addr())
}

// Stop gracefully shuts down the admin server.
func (as *AdminServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	as.server.Shutdown(ctx)
}

// --- handlers ---

// peerEntry is a single connection in the GET /peers response.
type peerEntry struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	PeerPort int    `json:"peer_port,omitempty"`
	Outbound bool   `json:"outbound"`
	LastSeen string `json:"last_seen"`
}

// peersResponse is the JSON structure for GET /peers.
type peersResponse struct {
	Node  string      `json:"node"`
	Peers []peerEntry `json:"peers"`
}

func (as *AdminServer) handlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := as.node.Registry().Snapshot()
	entries := make([]peerEntry, len(snap))
	for i, m := range snap {
		entries[i] = peerEntry{
			Name:     m.Name,
			Address:  m.Key,
			PeerPort: m.PeerPort,
			Outbound: m.Outbound,
			LastSeen: m.LastSeen.Format(time.RFC3339),
		}
	}

	writeJSON(w, peersResponse{Node: as.node.Name(), Peers: entries})
}

func (as *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":      "ok",
		"connections": as.node.Registry().Len(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("admin: json encode error", "error", err)
	}
}
