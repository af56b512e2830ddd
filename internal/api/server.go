// Package api serves the agent's debug endpoints: health, Prometheus
// metrics, and a JSON snapshot of the most recent export.
package api

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/google/clerk/internal/flow"
	"github.com/google/clerk/internal/meter"
)

// Record is one flow of the last export, rendered for JSON.
type Record struct {
	SrcIP     string `json:"src_ip"`
	DstIP     string `json:"dst_ip"`
	SrcPort   uint16 `json:"src_port"`
	DstPort   uint16 `json:"dst_port"`
	Protocol  uint8  `json:"protocol"`
	VLAN      uint16 `json:"vlan,omitempty"`
	TOS       uint8  `json:"tos,omitempty"`
	SrcASN    uint32 `json:"src_asn,omitempty"`
	DstASN    uint32 `json:"dst_asn,omitempty"`
	Bytes     uint64 `json:"bytes"`
	Packets   uint64 `json:"packets"`
	FirstNS   uint64 `json:"first_ns"`
	LastNS    uint64 `json:"last_ns"`
	EndReason uint8  `json:"end_reason"`
}

// Snapshot is what /flows returns.
type Snapshot struct {
	Taken time.Time `json:"taken"`
	Flows []Record  `json:"flows"`
}

// Server is the debug HTTP endpoint.
type Server struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewServer builds the server and starts listening on addr.
func NewServer(addr string) *Server {
	s := &Server{}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/flows", s.handleFlows)
	go func() {
		log.Infof("Debug API listening on %s", addr)
		if err := http.ListenAndServe(addr, r); err != nil {
			log.Errorf("Debug API server stopped: %v", err)
		}
	}()
	return s
}

// SetSnapshot records the reduced table of the current export cycle.
func (s *Server) SetSnapshot(flows flow.Table, factory *meter.Factory, taken time.Time) {
	snap := Snapshot{Taken: taken, Flows: make([]Record, 0, len(flows))}
	for key, stats := range flows {
		snap.Flows = append(snap.Flows, Record{
			SrcIP:     ipString(key.SrcIP, key.Network),
			DstIP:     ipString(key.DstIP, key.Network),
			SrcPort:   key.SrcPort,
			DstPort:   key.DstPort,
			Protocol:  key.Proto,
			VLAN:      key.VLAN,
			TOS:       key.TOS,
			SrcASN:    stats.SrcASN,
			DstASN:    stats.DstASN,
			Bytes:     stats.Bytes,
			Packets:   stats.Packets,
			FirstNS:   stats.FirstNS,
			LastNS:    stats.LastNS,
			EndReason: factory.EndReason(&stats),
		})
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

func (s *Server) handleFlows(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.snap); err != nil {
		log.Errorf("Encoding /flows response: %v", err)
	}
}

func ipString(ip [16]byte, network uint8) string {
	if network == flow.NetworkIPv4 {
		return net.IPv4(ip[12], ip[13], ip[14], ip[15]).String()
	}
	return net.IP(ip[:]).String()
}
